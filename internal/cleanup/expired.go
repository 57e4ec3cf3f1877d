package cleanup

import (
	"fmt"
	"strings"
	"time"

	"webinar-directory/internal/domain"
)

// DefaultMaxAgeDays is how long an on-demand record is kept after it was added.
const DefaultMaxAgeDays = 365

// Removal explains why Expired dropped a record.
type Removal struct {
	ID        string
	Title     string
	Provider  string
	Reason    string
	WasManual bool
}

// Expired splits records into those to keep and those past their useful life:
//
//   - a concrete live date before today is removed, manual or not;
//   - on-demand (or missing) and Unknown live dates fall back to date_added,
//     and are removed when it is older than maxAgeDays unless manual;
//   - an unreadable date_added removes a non-manual on-demand record;
//   - everything else, including unreadable live dates, is kept.
func Expired(records []domain.Record, now time.Time, maxAgeDays int) (kept []domain.Record, removed []Removal) {
	if maxAgeDays <= 0 {
		maxAgeDays = DefaultMaxAgeDays
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	cutoff := today.AddDate(0, 0, -maxAgeDays)

	kept = make([]domain.Record, 0, len(records))
	for _, r := range records {
		if reason, ok := expiryReason(r, today, cutoff, maxAgeDays); ok {
			removed = append(removed, Removal{ID: r.ID, Title: r.Title, Provider: r.Provider, Reason: reason, WasManual: r.IsManual()})
			continue
		}
		kept = append(kept, r.Clone())
	}
	return kept, removed
}

func expiryReason(r domain.Record, today, cutoff time.Time, maxAgeDays int) (string, bool) {
	live := strings.TrimSpace(r.LiveDate)
	onDemand := live == "" || strings.EqualFold(live, domain.LiveDateOnDemand)
	unknown := strings.EqualFold(live, domain.LiveDateUnknown)

	if !onDemand && !unknown {
		d, ok := domain.ParseDate(live)
		if !ok {
			return "", false
		}
		if d.Before(today) {
			return "Past live date: " + live, true
		}
		return "", false
	}

	added := strings.TrimSpace(r.DateAdded)
	if added == "" || strings.EqualFold(added, domain.LiveDateUnknown) {
		return "", false
	}
	if r.IsManual() {
		return "", false
	}
	d, ok := domain.ParseDate(added)
	if !ok {
		if onDemand {
			return "Invalid date_added format: " + added, true
		}
		return "", false
	}
	if !d.Before(cutoff) {
		return "", false
	}
	if onDemand {
		return fmt.Sprintf("On-demand record older than %d days (added: %s)", maxAgeDays, added), true
	}
	return fmt.Sprintf("Record with unknown live date older than %d days (added: %s)", maxAgeDays, added), true
}

// Stats counts records by source.
type Stats struct {
	Total    int
	Manual   int
	Scraped  int
	NoSource int
}

func SourceStats(records []domain.Record) Stats {
	s := Stats{Total: len(records)}
	for _, r := range records {
		switch r.Source {
		case domain.SourceManual:
			s.Manual++
		case domain.SourceScraped:
			s.Scraped++
		default:
			s.NoSource++
		}
	}
	return s
}
