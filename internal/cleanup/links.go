// Package cleanup holds the batch maintenance jobs run against the canonical
// feed: dropping records whose links are broken and records that expired.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"webinar-directory/internal/concurrency"
	"webinar-directory/internal/domain"
	"webinar-directory/internal/httpx"
)

// LinkResult is the outcome of checking one record's URL.
type LinkResult struct {
	ID         string
	Title      string
	URL        string
	Valid      bool
	StatusCode int
	Reason     string
}

// Report collects the results of a link check, in input order.
type Report struct {
	Results []LinkResult
}

func (r Report) Valid() []LinkResult   { return r.filter(true) }
func (r Report) Invalid() []LinkResult { return r.filter(false) }

func (r Report) filter(valid bool) []LinkResult {
	var out []LinkResult
	for _, res := range r.Results {
		if res.Valid == valid {
			out = append(out, res)
		}
	}
	return out
}

// Keep returns the records whose links checked out, preserving order.
func (r Report) Keep(records []domain.Record) []domain.Record {
	ok := make(map[string]bool, len(r.Results))
	for _, res := range r.Results {
		if res.Valid {
			ok[res.ID] = true
		}
	}
	out := make([]domain.Record, 0, len(records))
	for _, rec := range records {
		if ok[rec.ID] {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// LinkChecker probes record URLs in parallel.
type LinkChecker struct {
	Client  *httpx.Client
	Workers int
	Logger  *slog.Logger
}

func (c *LinkChecker) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Validate checks every record's URL. A URL is valid only when it answers
// 200, after following redirects and falling back from HEAD to GET where the
// server refuses HEAD.
func (c *LinkChecker) Validate(ctx context.Context, records []domain.Record) Report {
	client := c.Client
	if client == nil {
		client = httpx.New(0)
	}
	opts := concurrency.DefaultOptions()
	if c.Workers > 0 {
		opts.Workers = c.Workers
	}

	c.logger().Info("validating links", "records", len(records), "workers", opts.Workers)
	results, errs := concurrency.Map(ctx, records, opts, func(ctx context.Context, _ int, r domain.Record) (LinkResult, error) {
		return c.check(ctx, client, r), nil
	})
	for i, err := range errs {
		if err != nil {
			results[i] = LinkResult{ID: records[i].ID, Title: records[i].Title, URL: records[i].URL, Reason: "Not checked: " + err.Error()}
		}
	}

	rep := Report{Results: results}
	c.logger().Info("links validated", "valid", len(rep.Valid()), "invalid", len(rep.Invalid()))
	return rep
}

func (c *LinkChecker) check(ctx context.Context, client *httpx.Client, r domain.Record) LinkResult {
	res := LinkResult{ID: r.ID, Title: r.Title, URL: r.URL}
	if strings.TrimSpace(r.URL) == "" {
		res.Reason = "No URL provided"
		return res
	}
	if !domain.ValidURL(r.URL) {
		res.Reason = "Invalid URL format"
		return res
	}

	status, err := client.Probe(ctx, r.URL)
	if err != nil {
		res.Reason = probeErrorReason(err)
		c.logger().Debug("link check failed", "id", r.ID, "url", r.URL, "error", err)
		return res
	}
	res.StatusCode = status
	res.Valid, res.Reason = statusReason(status)
	return res
}

func statusReason(status int) (bool, string) {
	switch status {
	case http.StatusOK:
		return true, "URL accessible"
	case http.StatusNotFound:
		return false, "404 Not Found"
	case http.StatusUnauthorized, http.StatusForbidden:
		return false, fmt.Sprintf("Access denied (%d)", status)
	default:
		return false, fmt.Sprintf("HTTP %d", status)
	}
}

func probeErrorReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "Request timeout"
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "Request timeout"
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return "Connection error"
	}
	return "Request error: " + err.Error()
}
