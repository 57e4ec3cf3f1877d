package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCollectsRejected(t *testing.T) {
	feed := `{
	  "webinars": [
	    {"id":"a","title":"A","provider":"P","url":"https://p.example/a"},
	    {"id":"b","title":"B","provider":"P"},
	    {"id":"c","title":"C","provider":"P","url":"not a url"},
	    {"id":"a","title":"A again","provider":"P","url":"https://p.example/a2"},
	    {"id":"d","title":42},
	    {"id":"e","title":"E","provider":"P","url":"ftp://p.example/e"}
	  ],
	  "last_updated": "2025-01-01T10:00:00",
	  "total_count": 6
	}`

	res, err := Parse([]byte(feed))
	require.NoError(t, err)

	require.Len(t, res.Document.Records, 1)
	assert.Equal(t, "a", res.Document.Records[0].ID)
	assert.Equal(t, CollectionWebinars, res.Document.Collection)
	assert.Equal(t, "2025-01-01T10:00:00", res.Document.LastUpdated)
	assert.Equal(t, 1, res.Document.TotalCount)

	require.Len(t, res.Rejected, 5)
	assert.Equal(t, Rejected{Index: 1, ID: "b", Reason: "missing required field: url"}, res.Rejected[0])
	assert.Equal(t, "c", res.Rejected[1].ID)
	assert.Equal(t, "duplicate id", res.Rejected[2].Reason)
	assert.Equal(t, "d", res.Rejected[3].ID)
	assert.Equal(t, "e", res.Rejected[4].ID)
}

func TestParseRecordsCollection(t *testing.T) {
	res, err := Parse([]byte(`{"records":[{"id":"n","title":"N","outlet":"O","url":"https://o.example"}],"last_updated":"2025-03-03"}`))
	require.NoError(t, err)
	assert.Equal(t, CollectionRecords, res.Document.Collection)
	require.Len(t, res.Document.Records, 1)
	assert.Equal(t, KindNews, res.Document.Records[0].Kind)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte(`<html>nope</html>`))
	require.Error(t, err)

	_, err = Parse([]byte(`{"last_updated":"x"}`))
	require.ErrorIs(t, err, ErrNoCollection)
}

func TestDocumentRoundTrip(t *testing.T) {
	feed := `{"webinars":[{"id":"a","title":"A","provider":"P","topics":["t"],"format":"on-demand","certificate_available":true,"url":"https://p.example/a"}],"last_updated":"2025-01-01","total_count":1}`

	res, err := Parse([]byte(feed))
	require.NoError(t, err)

	b, err := json.Marshal(res.Document)
	require.NoError(t, err)
	assert.JSONEq(t, feed, string(b))
}

func TestPeekToken(t *testing.T) {
	tok, err := PeekToken([]byte(`{"last_updated":"2025-06-01T00:00:00","webinars":[]}`))
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01T00:00:00", tok)

	tok, err = PeekToken([]byte(`{"webinars":[]}`))
	require.NoError(t, err)
	assert.Empty(t, tok)
}

func TestParseDate(t *testing.T) {
	testCases := []struct {
		in   string
		ok   bool
		want string
	}{
		{"2099-01-01", true, "2099-01-01"},
		{"2025-02-03T10:00:00Z", true, "2025-02-03"},
		{"March 5, 2025", true, "2025-03-05"},
		{"on-demand", false, ""},
		{"Unknown", false, ""},
		{"", false, ""},
		{"soon", false, ""},
	}
	for _, tc := range testCases {
		got, ok := ParseDate(tc.in)
		if ok != tc.ok {
			t.Errorf("ParseDate(%q) ok = %v, want %v", tc.in, ok, tc.ok)
			continue
		}
		if ok && got.Format(DateLayout) != tc.want {
			t.Errorf("ParseDate(%q) = %s, want %s", tc.in, got.Format(DateLayout), tc.want)
		}
	}
	assert.Equal(t, "2025-07-04", Today(time.Date(2025, 7, 4, 23, 0, 0, 0, time.UTC)))
}

func TestSlug(t *testing.T) {
	testCases := []struct {
		provider, title, date string
		expected              string
	}{
		{"Labroots", "Cell Biology 101", "", "labroots-cell-biology-101"},
		{"ISPE", "Qualité & Validation!", "", "ispe-qualite-validation"},
		{"Xtalks", "Trial Design", "2025-03-01", "xtalks-trial-design-2025-03-01"},
		{"", "", "", ""},
	}
	for _, tc := range testCases {
		if got := Slug(tc.provider, tc.title, tc.date); got != tc.expected {
			t.Errorf("Slug(%q, %q, %q) = %q, want %q", tc.provider, tc.title, tc.date, got, tc.expected)
		}
	}
}

func TestValidURL(t *testing.T) {
	assert.True(t, ValidURL("https://example.com/x"))
	assert.True(t, ValidURL("http://example.com"))
	assert.False(t, ValidURL("/relative/path"))
	assert.False(t, ValidURL("mailto:someone@example.com"))
	assert.False(t, ValidURL(""))
}
