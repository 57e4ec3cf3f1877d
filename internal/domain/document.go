package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Collection keys a feed document may use for its record list.
const (
	CollectionWebinars = "webinars"
	CollectionRecords  = "records"
)

// Document is the feed envelope: the record list plus its metadata.
// Collection remembers which key the list was read from.
type Document struct {
	Collection  string
	Records     []Record
	LastUpdated string
	TotalCount  int
}

func (d Document) MarshalJSON() ([]byte, error) {
	key := d.Collection
	if key == "" {
		key = CollectionWebinars
	}
	recs := d.Records
	if recs == nil {
		recs = []Record{}
	}
	w := objectWriter{}
	w.field(key, recs)
	w.field("last_updated", d.LastUpdated)
	w.field("total_count", d.TotalCount)
	return w.close()
}

// Rejected is a feed entry that did not make it into the collection.
type Rejected struct {
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

// ParseResult holds the accepted document and the entries dropped on the way.
type ParseResult struct {
	Document Document
	Rejected []Rejected
}

var ErrNoCollection = errors.New("feed has no webinars or records collection")

type envelope struct {
	Webinars    *[]json.RawMessage `json:"webinars"`
	Records     *[]json.RawMessage `json:"records"`
	LastUpdated json.RawMessage    `json:"last_updated"`
	TotalCount  json.RawMessage    `json:"total_count"`
}

// PeekToken reads only the feed's self-reported version token (last_updated).
func PeekToken(data []byte) (string, error) {
	var env struct {
		LastUpdated json.RawMessage `json:"last_updated"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("parse feed token: %w", err)
	}
	return rawString(env.LastUpdated), nil
}

// Parse decodes a feed document. Individual entries that fail to decode or
// validate are collected in Rejected; only a document that cannot be read at
// all returns an error.
func Parse(data []byte) (ParseResult, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ParseResult{}, fmt.Errorf("parse feed: %w", err)
	}

	var (
		raw        []json.RawMessage
		collection string
	)
	switch {
	case env.Webinars != nil:
		raw, collection = *env.Webinars, CollectionWebinars
	case env.Records != nil:
		raw, collection = *env.Records, CollectionRecords
	default:
		return ParseResult{}, ErrNoCollection
	}

	res := ParseResult{
		Document: Document{
			Collection:  collection,
			Records:     make([]Record, 0, len(raw)),
			LastUpdated: rawString(env.LastUpdated),
		},
	}

	seen := make(map[string]bool, len(raw))
	for i, item := range raw {
		var r Record
		if err := json.Unmarshal(item, &r); err != nil {
			res.Rejected = append(res.Rejected, Rejected{Index: i, ID: peekID(item), Reason: err.Error()})
			continue
		}
		if err := r.Validate(); err != nil {
			res.Rejected = append(res.Rejected, Rejected{Index: i, ID: r.ID, Reason: err.Error()})
			continue
		}
		if seen[r.ID] {
			res.Rejected = append(res.Rejected, Rejected{Index: i, ID: r.ID, Reason: "duplicate id"})
			continue
		}
		seen[r.ID] = true
		res.Document.Records = append(res.Document.Records, r)
	}
	res.Document.TotalCount = len(res.Document.Records)
	return res, nil
}

// rawString accepts a JSON string or any other scalar and returns its text.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	v := strings.TrimSpace(string(raw))
	if v == "null" {
		return ""
	}
	return v
}

func peekID(item json.RawMessage) string {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(item, &probe); err != nil {
		return ""
	}
	return rawString(probe.ID)
}
