package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"webinar-directory/internal/domain"
	"webinar-directory/internal/snapshot"
)

// Outcome summarises one job run. Output is a human-readable log of what
// was (or, on a dry run, would be) removed.
type Outcome struct {
	Before  int
	After   int
	Removed int
	DryRun  bool
	Written bool
	Output  string
}

// Job runs maintenance tasks against the canonical feed file and writes the
// result back through Writer.
type Job struct {
	Writer     *snapshot.FileWriter
	Checker    *LinkChecker
	MaxAgeDays int
	Now        func() time.Time
	Logger     *slog.Logger
}

func (j *Job) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}

func (j *Job) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *Job) load() (domain.Document, error) {
	data, err := os.ReadFile(j.Writer.Path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("cleanup: read %s: %w", j.Writer.Path, err)
	}
	res, err := domain.Parse(data)
	if err != nil {
		return domain.Document{}, fmt.Errorf("cleanup: %s: %w", j.Writer.Path, err)
	}
	for _, rj := range res.Rejected {
		j.logger().Warn("invalid record will be dropped", "index", rj.Index, "id", rj.ID, "reason", rj.Reason)
	}
	return res.Document, nil
}

func (j *Job) save(ctx context.Context, doc domain.Document, kept []domain.Record) error {
	doc.Records = kept
	doc.LastUpdated = j.now().UTC().Format(time.RFC3339)
	_, err := j.Writer.Write(ctx, doc)
	return err
}

// BrokenLinks removes records whose URL does not answer 200.
func (j *Job) BrokenLinks(ctx context.Context, dryRun bool) (Outcome, error) {
	doc, err := j.load()
	if err != nil {
		return Outcome{}, err
	}
	checker := j.Checker
	if checker == nil {
		checker = &LinkChecker{Logger: j.Logger}
	}
	rep := checker.Validate(ctx, doc.Records)
	if err := ctx.Err(); err != nil {
		return Outcome{}, fmt.Errorf("cleanup: link check interrupted: %w", err)
	}
	kept := rep.Keep(doc.Records)

	var b strings.Builder
	fmt.Fprintf(&b, "Checked %d records: %d valid, %d invalid\n", len(rep.Results), len(rep.Valid()), len(rep.Invalid()))
	for _, res := range rep.Invalid() {
		fmt.Fprintf(&b, "  remove %s (%s): %s\n", res.ID, res.URL, res.Reason)
	}
	return j.finish(ctx, doc, kept, dryRun, &b)
}

// ExpiredRecords removes records past their live date or maximum age.
func (j *Job) ExpiredRecords(ctx context.Context, dryRun bool) (Outcome, error) {
	doc, err := j.load()
	if err != nil {
		return Outcome{}, err
	}
	kept, removed := Expired(doc.Records, j.now(), j.MaxAgeDays)

	var b strings.Builder
	fmt.Fprintf(&b, "Checked %d records: %d expired\n", len(doc.Records), len(removed))
	for _, rm := range removed {
		manual := ""
		if rm.WasManual {
			manual = " [manual]"
		}
		fmt.Fprintf(&b, "  remove %s%s: %s\n", rm.ID, manual, rm.Reason)
	}
	return j.finish(ctx, doc, kept, dryRun, &b)
}

func (j *Job) finish(ctx context.Context, doc domain.Document, kept []domain.Record, dryRun bool, b *strings.Builder) (Outcome, error) {
	out := Outcome{
		Before:  len(doc.Records),
		After:   len(kept),
		Removed: len(doc.Records) - len(kept),
		DryRun:  dryRun,
	}
	switch {
	case dryRun:
		b.WriteString("Dry run, no changes written\n")
	case out.Removed == 0:
		b.WriteString("Nothing to remove\n")
	default:
		if err := j.save(ctx, doc, kept); err != nil {
			out.Output = b.String()
			return out, fmt.Errorf("cleanup: save: %w", err)
		}
		out.Written = true
		fmt.Fprintf(b, "Saved %d records\n", len(kept))
	}
	out.Output = b.String()
	j.logger().Info("cleanup finished", "before", out.Before, "removed", out.Removed, "dry_run", dryRun, "written", out.Written)
	return out, nil
}
