package sorting

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"webinar-directory/internal/domain"
)

func records() []domain.Record {
	return []domain.Record{
		{ID: "1", Title: "beta", Provider: "Acme", Topics: []string{"b", "a"}, DurationMin: 60, LiveDate: "2025-03-01", Likes: 2, CertificateAvailable: true},
		{ID: "2", Title: "Alpha", Provider: "acme", Topics: []string{"a"}, DurationMin: 30, LiveDate: "on-demand", Likes: 0},
		{ID: "3", Title: "gamma", Provider: "Zeta", Topics: []string{"a", "z"}, DurationMin: 60, LiveDate: "2025-01-15", Likes: 5, CertificateAvailable: true},
		{ID: "4", Title: "Delta", Provider: "Beta", DurationMin: 120, LiveDate: "Unknown", Likes: 2},
	}
}

func ids(rs []domain.Record) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func TestSort(t *testing.T) {
	testCases := []struct {
		field    string
		dir      Direction
		expected []string
	}{
		{FieldTitle, Asc, []string{"2", "1", "4", "3"}},
		{FieldTitle, Desc, []string{"3", "4", "1", "2"}},
		// "Acme" and "acme" tie case-insensitively and keep input order both ways
		{FieldProvider, Asc, []string{"1", "2", "4", "3"}},
		{FieldProvider, Desc, []string{"3", "4", "1", "2"}},
		{FieldTopics, Asc, []string{"4", "2", "3", "1"}},
		{FieldDuration, Asc, []string{"2", "1", "3", "4"}},
		{FieldDuration, Desc, []string{"4", "1", "3", "2"}},
		// sentinels map to 0 and sort first
		{FieldLiveDate, Asc, []string{"2", "4", "3", "1"}},
		{FieldLiveDate, Desc, []string{"1", "3", "2", "4"}},
		{FieldLikes, Asc, []string{"2", "1", "4", "3"}},
		{FieldLikes, Desc, []string{"3", "1", "4", "2"}},
		{FieldCertificate, Asc, []string{"2", "4", "1", "3"}},
		{"no_such_field", Asc, []string{"1", "2", "3", "4"}},
	}
	for _, tc := range testCases {
		t.Run(tc.field+"/"+string(tc.dir), func(t *testing.T) {
			assert.Equal(t, tc.expected, ids(Sort(records(), tc.field, tc.dir, nil)))
		})
	}
}

func TestSortUsesLikesResolver(t *testing.T) {
	override := map[string]int{"4": 10}
	likes := func(r domain.Record) int {
		if n, ok := override[r.ID]; ok {
			return n
		}
		return r.Likes
	}
	assert.Equal(t, []string{"4", "3", "1", "2"}, ids(Sort(records(), FieldLikes, Desc, likes)))
}

func TestSortDoesNotMutateInput(t *testing.T) {
	in := records()
	before := domain.CloneAll(in)
	Sort(in, FieldTitle, Desc, nil)
	assert.Equal(t, before, in)
}

func TestLiveDateKey(t *testing.T) {
	assert.Zero(t, LiveDateKey("on-demand"))
	assert.Zero(t, LiveDateKey("Unknown"))
	assert.Zero(t, LiveDateKey(""))
	assert.Zero(t, LiveDateKey("garbage"))
	assert.Equal(t, int64(4070908800), LiveDateKey("2099-01-01"))
}

func TestClick(t *testing.T) {
	var s State
	s = s.Click(FieldTitle)
	assert.Equal(t, State{Field: FieldTitle, Direction: Asc}, s)

	s = s.Click(FieldTitle)
	assert.Equal(t, Desc, s.Direction)

	s = s.Click(FieldTitle)
	assert.Equal(t, Asc, s.Direction)

	s = s.Click(FieldTitle).Click(FieldLikes)
	assert.Equal(t, State{Field: FieldLikes, Direction: Asc}, s, "a new field resets to ascending")
}

func TestOddClicksEndDescending(t *testing.T) {
	s := State{Field: FieldDuration, Direction: Asc}
	for i := 0; i < 3; i++ {
		s = s.Click(FieldDuration)
	}
	assert.Equal(t, Desc, s.Direction)
	assert.Equal(t, []string{"4", "1", "3", "2"}, ids(s.Apply(records(), nil)))
}

func TestZeroStateKeepsOrder(t *testing.T) {
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids(State{}.Apply(records(), nil)))
}

func TestParseDirection(t *testing.T) {
	assert.Equal(t, Desc, ParseDirection("DESC"))
	assert.Equal(t, Asc, ParseDirection("asc"))
	assert.Equal(t, Asc, ParseDirection("sideways"))
}
