package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"webinar-directory/internal/domain"
)

// DefaultKeepBackups is how many dated backups FileWriter retains.
const DefaultKeepBackups = 5

const (
	backupStampLayout   = "20060102_150405"
	maxBackupsPerSecond = 999
)

// InvalidError marks a snapshot rejected before anything was written.
type InvalidError struct {
	Reason string
}

func (e *InvalidError) Error() string { return "invalid snapshot: " + e.Reason }

// IsInvalid reports whether err is a rejected-input error rather than an I/O failure.
func IsInvalid(err error) bool {
	var ie *InvalidError
	return errors.As(err, &ie) || errors.Is(err, ErrEmptySnapshot)
}

// FileWriter replaces the canonical feed file. Each write first copies the
// current file to <base>_backup_YYYYMMDD_HHMMSS[_NNN].json in BackupDir, then
// writes the new content atomically and prunes old backups. Writes from one
// process are serialised; concurrent clients still race, last write wins.
type FileWriter struct {
	Path      string
	BackupDir string // defaults to the directory of Path
	Keep      int    // defaults to DefaultKeepBackups
	Now       func() time.Time
	Logger    *slog.Logger

	// SkipBackup writes without copying the previous file first.
	SkipBackup bool

	mu sync.Mutex
}

// WriteResult describes one completed write.
type WriteResult struct {
	Path    string
	Backup  string // empty when there was no previous file
	Pruned  []string
	Records int
}

func (w *FileWriter) keep() int {
	if w.Keep > 0 {
		return w.Keep
	}
	return DefaultKeepBackups
}

func (w *FileWriter) backupDir() string {
	if w.BackupDir != "" {
		return w.BackupDir
	}
	return filepath.Dir(w.Path)
}

func (w *FileWriter) base() string {
	return strings.TrimSuffix(filepath.Base(w.Path), filepath.Ext(w.Path))
}

func (w *FileWriter) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}

func (w *FileWriter) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// WriteRaw validates a snapshot body and writes it. A body that is not a feed
// document, or that carries any invalid record, is rejected with an
// InvalidError and nothing is written.
func (w *FileWriter) WriteRaw(ctx context.Context, body []byte) (WriteResult, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return WriteResult{}, &InvalidError{Reason: "empty body"}
	}
	res, err := domain.Parse(body)
	if err != nil {
		return WriteResult{}, &InvalidError{Reason: err.Error()}
	}
	if len(res.Rejected) > 0 {
		rj := res.Rejected[0]
		return WriteResult{}, &InvalidError{Reason: fmt.Sprintf("record %d (%s): %s", rj.Index, rj.ID, rj.Reason)}
	}
	doc := res.Document
	if doc.LastUpdated == "" {
		doc.LastUpdated = w.now().UTC().Format(time.RFC3339)
	}
	return w.Write(ctx, doc)
}

// Write stores doc as the canonical file. total_count is recomputed.
func (w *FileWriter) Write(ctx context.Context, doc domain.Document) (WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return WriteResult{}, err
	}
	if len(doc.Records) == 0 {
		return WriteResult{}, ErrEmptySnapshot
	}
	doc.TotalCount = len(doc.Records)
	data, err := Encode(doc)
	if err != nil {
		return WriteResult{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	out := WriteResult{Path: w.Path, Records: doc.TotalCount}

	if !w.SkipBackup {
		backup, err := w.backupCurrent()
		if err != nil {
			return WriteResult{}, err
		}
		out.Backup = backup
	}

	if err := writeFileAtomic(w.Path, data); err != nil {
		return WriteResult{}, err
	}

	pruned, err := w.prune()
	if err != nil {
		// the new file is in place; a failed prune only leaves extra backups
		w.logger().Warn("pruning backups failed", "dir", w.backupDir(), "error", err)
	}
	out.Pruned = pruned

	w.logger().Info("feed written",
		"path", w.Path,
		"records", out.Records,
		"backup", out.Backup,
		"pruned", len(pruned),
	)
	return out, nil
}

func (w *FileWriter) backupCurrent() (string, error) {
	current, err := os.ReadFile(w.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("snapshot: read current %s: %w", w.Path, err)
	}
	path, err := w.freeBackupPath(w.now())
	if err != nil {
		return "", err
	}
	if err := writeFileAtomic(path, current); err != nil {
		return "", fmt.Errorf("snapshot: backup: %w", err)
	}
	return path, nil
}

// freeBackupPath picks the backup name for now. Writes within the same second
// get a _001, _002, ... suffix, which still sorts after the bare name.
func (w *FileWriter) freeBackupPath(now time.Time) (string, error) {
	stamp := now.Format(backupStampLayout)
	for n := 0; n <= maxBackupsPerSecond; n++ {
		name := fmt.Sprintf("%s_backup_%s.json", w.base(), stamp)
		if n > 0 {
			name = fmt.Sprintf("%s_backup_%s_%03d.json", w.base(), stamp, n)
		}
		path := filepath.Join(w.backupDir(), name)
		_, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", fmt.Errorf("snapshot: backup: %w", err)
		}
	}
	return "", fmt.Errorf("snapshot: backup: more than %d backups at %s", maxBackupsPerSecond, stamp)
}

// Backups lists existing backup files, newest first.
func (w *FileWriter) Backups() ([]string, error) {
	entries, err := os.ReadDir(w.backupDir())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: list backups: %w", err)
	}
	prefix := w.base() + "_backup_"
	var names []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || !strings.HasPrefix(n, prefix) || !strings.HasSuffix(n, ".json") {
			continue
		}
		names = append(names, n)
	}
	// the stamp layout sorts lexically
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	out := make([]string, len(names))
	for i, n := range names {
		out[i] = filepath.Join(w.backupDir(), n)
	}
	return out, nil
}

func (w *FileWriter) prune() ([]string, error) {
	backups, err := w.Backups()
	if err != nil {
		return nil, err
	}
	if len(backups) <= w.keep() {
		return nil, nil
	}
	var removed []string
	var errs []error
	for _, p := range backups[w.keep():] {
		if err := os.Remove(p); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, p)
	}
	return removed, errors.Join(errs...)
}
