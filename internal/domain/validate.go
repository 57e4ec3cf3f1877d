package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the fields every record must carry. It does not enforce the
// certificate admission policy; that is applied when records are produced.
func (r Record) Validate() error {
	switch {
	case strings.TrimSpace(r.ID) == "":
		return fmt.Errorf("missing required field: id")
	case strings.TrimSpace(r.Title) == "":
		return fmt.Errorf("missing required field: title")
	case strings.TrimSpace(r.Provider) == "":
		return fmt.Errorf("missing required field: %s", namesFor(r.Kind).provider)
	case strings.TrimSpace(r.URL) == "":
		return fmt.Errorf("missing required field: url")
	}
	if !ValidURL(r.URL) {
		return fmt.Errorf("invalid url: %q", r.URL)
	}
	if r.DurationMin < 0 {
		return fmt.Errorf("invalid duration_min: %d", r.DurationMin)
	}
	return nil
}

// ValidURL reports whether s parses as an absolute http(s) URL.
func ValidURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}
