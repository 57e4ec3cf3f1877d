package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// fieldNames is the per-kind JSON vocabulary for the aliased members.
type fieldNames struct {
	provider    string
	topics      string
	format      string
	description string
}

var (
	webinarNames = fieldNames{provider: "provider", topics: "topics", format: "format", description: "description"}
	newsNames    = fieldNames{provider: "outlet", topics: "flags", format: "status", description: "summary"}
)

func namesFor(k Kind) fieldNames {
	if k == KindNews {
		return newsNames
	}
	return webinarNames
}

// detectKind picks the vocabulary: a record is news only when it carries news
// members and none of the webinar ones.
func detectKind(m map[string]json.RawMessage) Kind {
	_, hasProvider := m["provider"]
	_, hasOutlet := m["outlet"]
	_, hasSummary := m["summary"]
	_, hasFlags := m["flags"]
	if !hasProvider && (hasOutlet || hasSummary || hasFlags) {
		return KindNews
	}
	return KindWebinar
}

func otherKind(k Kind) Kind {
	if k == KindNews {
		return KindWebinar
	}
	return KindNews
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("record is null")
	}

	out := Record{Kind: detectKind(m)}
	names := namesFor(out.Kind)
	other := namesFor(otherKind(out.Kind))
	d := decoder{m: m}

	d.str("id", &out.ID)
	d.str("title", &out.Title)
	d.str(d.alias(names.provider, other.provider), &out.Provider)
	d.strs(d.alias(names.topics, other.topics), &out.Topics)
	d.str(d.alias(names.format, other.format), &out.Format)
	d.integer("duration_min", &out.DurationMin)
	d.boolean("certificate_available", &out.CertificateAvailable)
	d.str("certificate_process", &out.CertificateProcess)
	d.str("date_added", &out.DateAdded)
	d.str("live_date", &out.LiveDate)
	d.str("url", &out.URL)
	d.str(d.alias(names.description, other.description), &out.Description)
	d.integer("likes", &out.Likes)

	var src string
	d.str("source", &src)
	out.Source = Source(src)

	if d.err != nil {
		return d.err
	}
	if out.Likes < 0 {
		out.Likes = 0
	}
	if len(m) > 0 {
		out.Extra = m
	}
	*r = out
	return nil
}

// decoder pulls known members out of the raw map, leaving the rest as extras.
// The feed is produced by loosely typed tooling, so scalars are accepted in
// either their native or their string form.
type decoder struct {
	m   map[string]json.RawMessage
	err error
}

func (d *decoder) take(key string) (json.RawMessage, bool) {
	if d.err != nil {
		return nil, false
	}
	raw, ok := d.m[key]
	if !ok {
		return nil, false
	}
	delete(d.m, key)
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false
	}
	return raw, true
}

// alias returns key, or alt when only alt is present. Feeds mixing the two
// vocabularies still fill every field.
func (d *decoder) alias(key, alt string) string {
	if _, ok := d.m[key]; ok {
		return key
	}
	if _, ok := d.m[alt]; ok {
		return alt
	}
	return key
}

func (d *decoder) fail(key string, err error) {
	d.err = fmt.Errorf("field %s: %w", key, err)
}

func (d *decoder) str(key string, dst *string) {
	raw, ok := d.take(key)
	if !ok {
		return
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		d.fail(key, err)
		return
	}
	*dst = s
}

func (d *decoder) strs(key string, dst *[]string) {
	raw, ok := d.take(key)
	if !ok {
		return
	}
	var ss []string
	if err := json.Unmarshal(raw, &ss); err != nil {
		// a single tag sometimes shows up unwrapped
		var s string
		if err2 := json.Unmarshal(raw, &s); err2 != nil {
			d.fail(key, err)
			return
		}
		ss = []string{s}
	}
	*dst = ss
}

func (d *decoder) integer(key string, dst *int) {
	raw, ok := d.take(key)
	if !ok {
		return
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		*dst = int(math.Round(f))
		return
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		d.fail(key, err)
		return
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		d.fail(key, err)
		return
	}
	*dst = n
}

func (d *decoder) boolean(key string, dst *bool) {
	raw, ok := d.take(key)
	if !ok {
		return
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		*dst = b
		return
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		d.fail(key, err)
		return
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		d.fail(key, err)
		return
	}
	*dst = b
}

func (r Record) MarshalJSON() ([]byte, error) {
	names := namesFor(r.Kind)
	w := objectWriter{}

	w.field("id", r.ID)
	w.field("title", r.Title)
	w.field(names.provider, r.Provider)
	topics := r.Topics
	if topics == nil {
		topics = []string{}
	}
	w.field(names.topics, topics)
	if r.Format != "" {
		w.field(names.format, r.Format)
	}
	if r.DurationMin > 0 {
		w.field("duration_min", r.DurationMin)
	}
	w.field("certificate_available", r.CertificateAvailable)
	if r.CertificateProcess != "" {
		w.field("certificate_process", r.CertificateProcess)
	}
	if r.DateAdded != "" {
		w.field("date_added", r.DateAdded)
	}
	if r.LiveDate != "" {
		w.field("live_date", r.LiveDate)
	}
	w.field("url", r.URL)
	if r.Description != "" {
		w.field(names.description, r.Description)
	}
	if r.Likes > 0 {
		w.field("likes", r.Likes)
	}
	if r.Source != "" {
		w.field("source", string(r.Source))
	}

	keys := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		w.raw(k, r.Extra[k])
	}
	return w.close()
}

// objectWriter emits a JSON object with a fixed member order.
type objectWriter struct {
	buf bytes.Buffer
	n   int
	err error
}

func (w *objectWriter) key(k string) {
	if w.n == 0 {
		w.buf.WriteByte('{')
	} else {
		w.buf.WriteByte(',')
	}
	w.n++
	kb, _ := json.Marshal(k)
	w.buf.Write(kb)
	w.buf.WriteByte(':')
}

func (w *objectWriter) field(k string, v any) {
	if w.err != nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		w.err = fmt.Errorf("field %s: %w", k, err)
		return
	}
	w.key(k)
	w.buf.Write(b)
}

func (w *objectWriter) raw(k string, v json.RawMessage) {
	if w.err != nil {
		return
	}
	if !json.Valid(v) {
		w.err = fmt.Errorf("field %s: invalid raw json", k)
		return
	}
	w.key(k)
	w.buf.Write(v)
}

func (w *objectWriter) close() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	if w.n == 0 {
		return []byte("{}"), nil
	}
	w.buf.WriteByte('}')
	return w.buf.Bytes(), nil
}
