// Package snapshot serialises the record collection back to the feed format,
// both for user exports and for the server-side canonical file.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"webinar-directory/internal/domain"
)

var (
	ErrNoChanges     = errors.New("no changes to export")
	ErrEmptySnapshot = errors.New("snapshot has no records")
)

// Export builds a feed document stamped with today's date.
func Export(records []domain.Record, collection string, now time.Time) domain.Document {
	return domain.Document{
		Collection:  collection,
		Records:     domain.CloneAll(records),
		LastUpdated: domain.Today(now),
		TotalCount:  len(records),
	}
}

// ForPersist builds the document sent to the persist endpoint. last_updated
// carries a full timestamp.
func ForPersist(records []domain.Record, collection string, now time.Time) domain.Document {
	doc := Export(records, collection, now)
	doc.LastUpdated = now.UTC().Format(time.RFC3339)
	return doc
}

// Encode renders a document as indented JSON with a trailing newline.
func Encode(doc domain.Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("snapshot: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Source is what the exporter reads from; feed.Store satisfies it.
type Source interface {
	Records() []domain.Record
	Collection() string
	Modified() bool
}

// Exporter writes user-requested exports to a directory with deterministic
// names: <base>_updated.json for changes and <base>_all.json for everything.
type Exporter struct {
	Source Source
	Dir    string
	Base   string
	Now    func() time.Time
	Logger *slog.Logger
}

func (e *Exporter) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Exporter) base() string {
	if e.Base != "" {
		return e.Base
	}
	return "webinars"
}

func (e *Exporter) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// UpdatedName and AllName are the export file names.
func (e *Exporter) UpdatedName() string { return e.base() + "_updated.json" }
func (e *Exporter) AllName() string     { return e.base() + "_all.json" }

// ExportChanges writes the collection only when something changed since the
// last load. It does not reset the modified flag.
func (e *Exporter) ExportChanges(ctx context.Context) (string, error) {
	if !e.Source.Modified() {
		return "", ErrNoChanges
	}
	return e.write(ctx, e.UpdatedName())
}

// ExportAll writes the collection regardless of the modified flag.
func (e *Exporter) ExportAll(ctx context.Context) (string, error) {
	return e.write(ctx, e.AllName())
}

func (e *Exporter) write(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	doc := Export(e.Source.Records(), e.Source.Collection(), e.now())
	data, err := Encode(doc)
	if err != nil {
		return "", err
	}
	dir := e.Dir
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, name)
	if err := writeFileAtomic(path, data); err != nil {
		e.logger().Error("export failed", "path", path, "error", err)
		return "", err
	}
	e.logger().Info("export written", "path", path, "records", doc.TotalCount)
	return path, nil
}

// writeFileAtomic writes through a temp file in the same directory and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("snapshot: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("snapshot: temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("snapshot: write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("snapshot: sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("snapshot: close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("snapshot: chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("snapshot: rename to %s: %w", path, err)
	}
	return nil
}
