package domain

import (
	"encoding/json"
	"slices"
	"strings"
)

// Record is the canonical representation of a directory entry inside this service.
// Webinar feeds and news feeds both decode into it; Kind remembers which field
// vocabulary the record arrived with so it can be written back the same way.
type Record struct {
	Kind Kind

	ID       string
	Title    string
	Provider string   // "outlet" in news feeds
	Topics   []string // "flags" in news feeds
	Format   string   // "status" in news feeds

	DurationMin          int // webinar only
	CertificateAvailable bool
	CertificateProcess   string

	DateAdded   string // set at creation, never rewritten
	LiveDate    string // date, "on-demand" or "Unknown"
	URL         string
	Description string // "summary" in news feeds

	Likes  int
	Source Source

	// Extra keeps members this service does not model, so exports do not drop them.
	Extra map[string]json.RawMessage
}

type Kind int

const (
	KindWebinar Kind = iota
	KindNews
)

func (k Kind) String() string {
	if k == KindNews {
		return "news"
	}
	return "webinar"
}

type Source string

const (
	SourceScraped Source = "scraped"
	SourceManual  Source = "manual"
)

const (
	FormatLive     = "live"
	FormatOnDemand = "on-demand"

	LiveDateOnDemand = "on-demand"
	LiveDateUnknown  = "Unknown"
)

func (r Record) IsManual() bool { return r.Source == SourceManual }

func (r Record) IsLive() bool { return strings.EqualFold(strings.TrimSpace(r.Format), FormatLive) }

// Clone returns a copy that shares no slices or maps with r.
func (r Record) Clone() Record {
	out := r
	out.Topics = slices.Clone(r.Topics)
	if r.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = slices.Clone(v)
		}
	}
	return out
}

// CloneAll copies a record slice element by element.
func CloneAll(in []Record) []Record {
	out := make([]Record, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}

// SearchText is the haystack used by free-text search: title, description and tags.
func (r Record) SearchText() string {
	return strings.ToLower(r.Title + " " + r.Description + " " + strings.Join(r.Topics, " "))
}
