package server

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"

	"webinar-directory/internal/domain"
)

// feedEntry is one loaded version of the canonical file.
type feedEntry struct {
	body []byte
	br   []byte
	etag string
	doc  domain.Document
}

type feedCache struct {
	path string

	mu  sync.RWMutex
	cur *feedEntry
}

func (c *feedCache) get() *feedEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cur
}

// reload reads and parses the file. A file that does not parse is not
// cached; the previous entry stays.
func (c *feedCache) reload() (int, error) {
	body, err := os.ReadFile(c.path)
	if err != nil {
		return 0, fmt.Errorf("server: read feed: %w", err)
	}
	res, err := domain.Parse(body)
	if err != nil {
		return 0, fmt.Errorf("server: parse feed: %w", err)
	}

	var buf bytes.Buffer
	bw := brotli.NewWriterLevel(&buf, brotli.BestCompression)
	if _, err := bw.Write(body); err != nil {
		return 0, fmt.Errorf("server: compress feed: %w", err)
	}
	if err := bw.Close(); err != nil {
		return 0, fmt.Errorf("server: compress feed: %w", err)
	}

	e := &feedEntry{
		body: body,
		br:   buf.Bytes(),
		etag: etagFor(res.Document.LastUpdated, body),
		doc:  res.Document,
	}
	c.mu.Lock()
	c.cur = e
	c.mu.Unlock()
	return len(res.Document.Records), nil
}

// etagFor combines last_updated with a body checksum so that two writes
// within the same day still get distinct tags.
func etagFor(lastUpdated string, body []byte) string {
	return fmt.Sprintf(`"%s-%08x"`, strings.ReplaceAll(lastUpdated, `"`, ""), crc32.ChecksumIEEE(body))
}

// encodedETag derives the tag of an encoded representation; each content
// coding of the same body needs its own strong tag.
func encodedETag(etag, encoding string) string {
	return strings.TrimSuffix(etag, `"`) + "-" + encoding + `"`
}

func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimPrefix(strings.TrimSpace(part), "W/")
		if part == "*" || part == etag {
			return true
		}
	}
	return false
}

func acceptsEncoding(header, encoding string) bool {
	for _, part := range strings.Split(header, ",") {
		enc, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.TrimSpace(enc) != encoding {
			continue
		}
		return strings.ReplaceAll(strings.TrimSpace(params), " ", "") != "q=0"
	}
	return false
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	e := s.feed.get()
	if e == nil {
		writeError(w, http.StatusNotFound, "feed not available")
		return
	}

	body, encoding, etag := e.body, "identity", e.etag
	if acceptsEncoding(r.Header.Get("Accept-Encoding"), "br") {
		body, encoding, etag = e.br, "br", encodedETag(e.etag, "br")
	}

	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("ETag", etag)
	h.Add("Vary", "Accept-Encoding")
	if r.URL.Query().Has("t") {
		h.Set("Cache-Control", "no-cache")
	} else {
		h.Set("Cache-Control", "public, max-age=600")
	}

	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		s.metrics.feedServed.WithLabelValues("not_modified").Inc()
		w.WriteHeader(http.StatusNotModified)
		return
	}

	if encoding != "identity" {
		h.Set("Content-Encoding", encoding)
	}
	h.Set("Content-Length", strconv.Itoa(len(body)))
	s.metrics.feedServed.WithLabelValues(encoding).Inc()
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
