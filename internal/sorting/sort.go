// Package sorting orders records by a chosen column with type-aware
// comparison.
package sorting

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"webinar-directory/internal/domain"
)

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection accepts "asc"/"desc" in any case; anything else is Asc.
func ParseDirection(s string) Direction {
	if strings.EqualFold(strings.TrimSpace(s), string(Desc)) {
		return Desc
	}
	return Asc
}

// Sortable fields.
const (
	FieldTitle       = "title"
	FieldProvider    = "provider"
	FieldTopics      = "topics"
	FieldFormat      = "format"
	FieldDuration    = "duration_min"
	FieldCertificate = "certificate_available"
	FieldDateAdded   = "date_added"
	FieldLiveDate    = "live_date"
	FieldLikes       = "likes"
	FieldSource      = "source"
	FieldID          = "id"
)

// LikesFunc resolves the like count shown for a record.
type LikesFunc func(r domain.Record) int

// key is a comparable projection of one record for one field.
type key struct {
	num int64
	str string
}

type keyFunc func(domain.Record) key

func keyFor(field string, likes LikesFunc) (keyFunc, bool) {
	text := func(f func(domain.Record) string) keyFunc {
		return func(r domain.Record) key { return key{str: strings.ToLower(f(r))} }
	}
	switch field {
	case FieldTitle:
		return text(func(r domain.Record) string { return r.Title }), true
	case FieldProvider:
		return text(func(r domain.Record) string { return r.Provider }), true
	case FieldTopics:
		return text(func(r domain.Record) string { return strings.Join(r.Topics, ",") }), true
	case FieldFormat:
		return text(func(r domain.Record) string { return r.Format }), true
	case FieldDateAdded:
		return text(func(r domain.Record) string { return r.DateAdded }), true
	case FieldSource:
		return text(func(r domain.Record) string { return string(r.Source) }), true
	case FieldID:
		return text(func(r domain.Record) string { return r.ID }), true
	case FieldCertificate:
		return text(func(r domain.Record) string { return strconv.FormatBool(r.CertificateAvailable) }), true
	case FieldDuration:
		return func(r domain.Record) key { return key{num: int64(r.DurationMin)} }, true
	case FieldLiveDate:
		return func(r domain.Record) key { return key{num: LiveDateKey(r.LiveDate)} }, true
	case FieldLikes:
		if likes == nil {
			likes = func(r domain.Record) int { return r.Likes }
		}
		return func(r domain.Record) key { return key{num: int64(likes(r))} }, true
	}
	return nil, false
}

// LiveDateKey maps a live_date to a unix timestamp. Sentinels, empty and
// unparseable values map to 0 so they sort before any real date.
func LiveDateKey(s string) int64 {
	t, ok := domain.ParseDate(s)
	if !ok {
		return 0
	}
	return t.Unix()
}

// Sort returns a new slice ordered by field. Equal keys keep their input
// order in both directions. An unknown field returns the input order.
func Sort(records []domain.Record, field string, dir Direction, likes LikesFunc) []domain.Record {
	out := domain.CloneAll(records)
	kf, ok := keyFor(field, likes)
	if !ok {
		return out
	}

	pos := make([]key, len(out))
	for i, r := range out {
		pos[i] = kf(r)
	}

	idx := make([]int, len(out))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		c := cmp.Compare(pos[a].num, pos[b].num)
		if c == 0 {
			c = cmp.Compare(pos[a].str, pos[b].str)
		}
		if dir == Desc {
			c = -c
		}
		return c
	})

	sorted := make([]domain.Record, len(out))
	for i, j := range idx {
		sorted[i] = out[j]
	}
	return sorted
}

// State is the column-header click state.
type State struct {
	Field     string
	Direction Direction
}

// Click applies a header click: the same field flips the direction, a new
// field starts ascending.
func (s State) Click(field string) State {
	if field == s.Field {
		if s.Direction == Asc {
			return State{Field: field, Direction: Desc}
		}
		return State{Field: field, Direction: Asc}
	}
	return State{Field: field, Direction: Asc}
}

// Apply sorts records by the current state. A zero State keeps input order.
func (s State) Apply(records []domain.Record, likes LikesFunc) []domain.Record {
	if s.Field == "" {
		return domain.CloneAll(records)
	}
	return Sort(records, s.Field, s.Direction, likes)
}
