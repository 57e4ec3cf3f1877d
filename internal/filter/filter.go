// Package filter narrows a record collection to the entries matching a set of
// independent predicates. Everything here is pure: inputs are never mutated.
package filter

import (
	"math"
	"net/url"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"webinar-directory/internal/domain"
)

// Duration buckets, closed ranges in minutes.
const (
	Duration0to30  = "0-30"
	Duration31to60 = "31-60"
	Duration61to90 = "61-90"
	Duration91Plus = "91+"
)

// Date modes.
const (
	DateLive     = "live"
	DateOnDemand = "on-demand"
	DateUpcoming = "upcoming"
)

// UpcomingWindowDays is how far ahead a live date still counts as upcoming.
const UpcomingWindowDays = 30

// Set holds the active predicates. An empty field matches everything.
type Set struct {
	Search      string
	Provider    string
	Topic       string
	Format      string
	Duration    string
	Certificate string // "true" or "false"
	DateMode    string
	LikedOnly   bool
}

// Options supplies the context a few predicates depend on.
type Options struct {
	Now time.Time
	// IsLiked reports the current user's own like membership. It is not the
	// global counter.
	IsLiked func(id string) bool
}

// Query parameter names understood by FromQuery.
const (
	ParamSearch      = "q"
	ParamProvider    = "provider"
	ParamTopic       = "topic"
	ParamFormat      = "format"
	ParamDuration    = "duration"
	ParamCertificate = "certificate"
	ParamDate        = "date"
	ParamLiked       = "liked"
)

// FromQuery reads a Set from URL query parameters.
func FromQuery(q url.Values) Set {
	liked, _ := strconv.ParseBool(q.Get(ParamLiked))
	return Set{
		Search:      q.Get(ParamSearch),
		Provider:    q.Get(ParamProvider),
		Topic:       q.Get(ParamTopic),
		Format:      q.Get(ParamFormat),
		Duration:    q.Get(ParamDuration),
		Certificate: q.Get(ParamCertificate),
		DateMode:    q.Get(ParamDate),
		LikedOnly:   liked,
	}
}

// Query is the inverse of FromQuery; inactive predicates are omitted.
func (s Set) Query() url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set(ParamSearch, s.Search)
	set(ParamProvider, s.Provider)
	set(ParamTopic, s.Topic)
	set(ParamFormat, s.Format)
	set(ParamDuration, s.Duration)
	set(ParamCertificate, s.Certificate)
	set(ParamDate, s.DateMode)
	if s.LikedOnly {
		q.Set(ParamLiked, "true")
	}
	return q
}

// Active reports whether any predicate would exclude something.
func (s Set) Active() bool {
	return strings.TrimSpace(s.Search) != "" ||
		s.Provider != "" ||
		s.Topic != "" ||
		s.Format != "" ||
		knownBucket(s.Duration) ||
		s.Certificate != "" ||
		knownDateMode(s.DateMode) ||
		s.LikedOnly
}

// Apply returns the records matching every active predicate, in input order.
// The result never aliases the input slice.
func Apply(records []domain.Record, s Set, opts Options) []domain.Record {
	out := make([]domain.Record, 0, len(records))
	for _, r := range records {
		if Match(r, s, opts) {
			out = append(out, r.Clone())
		}
	}
	return out
}

// Match reports whether a single record passes every active predicate.
func Match(r domain.Record, s Set, opts Options) bool {
	if q := strings.ToLower(strings.TrimSpace(s.Search)); q != "" && !strings.Contains(r.SearchText(), q) {
		return false
	}
	if s.Provider != "" && r.Provider != s.Provider {
		return false
	}
	if s.Topic != "" && !slices.Contains(r.Topics, s.Topic) {
		return false
	}
	if s.Format != "" && r.Format != s.Format {
		return false
	}
	if !inBucket(r.DurationMin, s.Duration) {
		return false
	}
	if s.Certificate != "" && strconv.FormatBool(r.CertificateAvailable) != strings.ToLower(strings.TrimSpace(s.Certificate)) {
		return false
	}
	if !matchDate(r, s.DateMode, opts.Now) {
		return false
	}
	if s.LikedOnly && (opts.IsLiked == nil || !opts.IsLiked(r.ID)) {
		return false
	}
	return true
}

func knownBucket(b string) bool {
	switch b {
	case Duration0to30, Duration31to60, Duration61to90, Duration91Plus:
		return true
	}
	return false
}

// inBucket treats an unknown bucket as no filter. A record without a
// duration (0) is in no bucket.
func inBucket(d int, bucket string) bool {
	if d <= 0 && knownBucket(bucket) {
		return false
	}
	switch bucket {
	case Duration0to30:
		return d <= 30
	case Duration31to60:
		return d >= 31 && d <= 60
	case Duration61to90:
		return d >= 61 && d <= 90
	case Duration91Plus:
		return d >= 91
	default:
		return true
	}
}

func knownDateMode(m string) bool {
	switch m {
	case DateLive, DateOnDemand, DateUpcoming:
		return true
	}
	return false
}

func matchDate(r domain.Record, mode string, now time.Time) bool {
	switch mode {
	case DateLive:
		return r.IsLive()
	case DateOnDemand:
		return strings.EqualFold(strings.TrimSpace(r.Format), domain.FormatOnDemand)
	case DateUpcoming:
		if !r.IsLive() {
			return false
		}
		d, ok := domain.ParseDate(r.LiveDate)
		if !ok {
			return false
		}
		days := DaysUntil(d, now)
		return days >= 0 && days <= UpcomingWindowDays
	default:
		return true
	}
}

// DaysUntil is the whole number of days from now to t, rounded up, so an
// event later today counts as 1 and one earlier today as 0.
func DaysUntil(t, now time.Time) int {
	return int(math.Ceil(t.Sub(now).Hours() / 24))
}

// Facets are the distinct values present in a collection, for populating
// filter choices.
type Facets struct {
	Providers []string
	Topics    []string
	Formats   []string
}

func CollectFacets(records []domain.Record) Facets {
	providers := map[string]bool{}
	topics := map[string]bool{}
	formats := map[string]bool{}
	for _, r := range records {
		if r.Provider != "" {
			providers[r.Provider] = true
		}
		for _, t := range r.Topics {
			if t != "" {
				topics[t] = true
			}
		}
		if r.Format != "" {
			formats[r.Format] = true
		}
	}
	return Facets{
		Providers: sortedKeys(providers),
		Topics:    sortedKeys(topics),
		Formats:   sortedKeys(formats),
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
