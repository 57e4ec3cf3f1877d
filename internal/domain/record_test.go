package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webinarJSON = `{
  "id": "acme-gmp-basics",
  "title": "GMP Basics",
  "provider": "Acme",
  "topics": ["GMP", "Quality"],
  "format": "live",
  "duration_min": 60,
  "certificate_available": true,
  "certificate_process": "Complete the survey",
  "date_added": "2025-01-02",
  "live_date": "2025-02-01",
  "url": "https://acme.example/webinars/gmp",
  "description": "Intro to GMP",
  "likes": 3,
  "source": "scraped",
  "speaker": "Dr. Who"
}`

func TestRecordUnmarshalWebinar(t *testing.T) {
	var r Record
	require.NoError(t, json.Unmarshal([]byte(webinarJSON), &r))

	assert.Equal(t, KindWebinar, r.Kind)
	assert.Equal(t, "acme-gmp-basics", r.ID)
	assert.Equal(t, "Acme", r.Provider)
	assert.Equal(t, []string{"GMP", "Quality"}, r.Topics)
	assert.Equal(t, 60, r.DurationMin)
	assert.True(t, r.CertificateAvailable)
	assert.True(t, r.IsLive())
	assert.Equal(t, 3, r.Likes)
	assert.Equal(t, SourceScraped, r.Source)
	require.Contains(t, r.Extra, "speaker")
	assert.JSONEq(t, `"Dr. Who"`, string(r.Extra["speaker"]))
}

func TestRecordRoundTrip(t *testing.T) {
	var r Record
	require.NoError(t, json.Unmarshal([]byte(webinarJSON), &r))

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, webinarJSON, string(b))
}

func TestRecordNewsVocabulary(t *testing.T) {
	in := `{"id":"n1","title":"Recall issued","outlet":"FDA News","flags":["recall"],"status":"published","summary":"A recall","url":"https://news.example/n1","certificate_available":false}`

	var r Record
	require.NoError(t, json.Unmarshal([]byte(in), &r))
	assert.Equal(t, KindNews, r.Kind)
	assert.Equal(t, "FDA News", r.Provider)
	assert.Equal(t, []string{"recall"}, r.Topics)
	assert.Equal(t, "published", r.Format)
	assert.Equal(t, "A recall", r.Description)

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(b))
}

func TestRecordMixedVocabulary(t *testing.T) {
	in := `{"id":"n2","title":"Warning letter","outlet":"FDA News","topics":["fda"],"description":"Letter issued","url":"https://news.example/n2"}`

	var r Record
	require.NoError(t, json.Unmarshal([]byte(in), &r))
	assert.Equal(t, KindNews, r.Kind)
	assert.Equal(t, []string{"fda"}, r.Topics)
	assert.Equal(t, "Letter issued", r.Description)
	assert.Empty(t, r.Extra)
	assert.Contains(t, r.SearchText(), "fda")

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"n2","title":"Warning letter","outlet":"FDA News","flags":["fda"],"certificate_available":false,"summary":"Letter issued","url":"https://news.example/n2"}`, string(b))
}

func TestRecordTolerantScalars(t *testing.T) {
	in := `{"id":"x","title":"T","provider":"P","url":"https://p.example","certificate_available":"true","duration_min":"45","likes":-4,"topics":"single"}`

	var r Record
	require.NoError(t, json.Unmarshal([]byte(in), &r))
	assert.True(t, r.CertificateAvailable)
	assert.Equal(t, 45, r.DurationMin)
	assert.Equal(t, 0, r.Likes, "negative likes are floored")
	assert.Equal(t, []string{"single"}, r.Topics)
}

func TestRecordBadFieldType(t *testing.T) {
	var r Record
	err := json.Unmarshal([]byte(`{"id":"x","title":{"nested":true}}`), &r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field title")
}

func TestRecordCloneIsDeep(t *testing.T) {
	r := Record{ID: "a", Topics: []string{"one"}, Extra: map[string]json.RawMessage{"k": json.RawMessage(`1`)}}
	c := r.Clone()
	c.Topics[0] = "changed"
	c.Extra["k"] = json.RawMessage(`2`)

	assert.Equal(t, "one", r.Topics[0])
	assert.JSONEq(t, `1`, string(r.Extra["k"]))
}
