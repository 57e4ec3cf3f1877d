package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"webinar-directory/internal/cleanup"
	"webinar-directory/internal/domain"
	"webinar-directory/internal/feed"
	"webinar-directory/internal/httpx"
	"webinar-directory/internal/server"
	"webinar-directory/internal/sftpclient"
	"webinar-directory/internal/snapshot"
)

func feedWriter(e *env) *snapshot.FileWriter {
	return &snapshot.FileWriter{
		Path:      e.cfg.Feed.Path,
		BackupDir: e.cfg.Feed.BackupDir,
		Keep:      e.cfg.Feed.KeepBackups,
		Logger:    e.log,
	}
}

func linkChecker(e *env) *cleanup.LinkChecker {
	client := httpx.New(e.cfg.Cleanup.LinkTimeout)
	client.Logger = e.log
	client.Retry.MaxAttempts = max(1, e.cfg.Cleanup.LinkRetries)
	return &cleanup.LinkChecker{Client: client, Workers: e.cfg.Cleanup.LinkWorkers, Logger: e.log}
}

func cleanupJob(e *env, w *snapshot.FileWriter) *cleanup.Job {
	return &cleanup.Job{
		Writer:     w,
		Checker:    linkChecker(e),
		MaxAgeDays: e.cfg.Cleanup.MaxAgeDays,
		Logger:     e.log,
	}
}

func newServeCmd(e *env) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the feed file with the like-persistence and admin endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := e.cfg.Server
			if addr != "" {
				cfg.Addr = addr
			}
			w := feedWriter(e)
			srv, err := server.New(server.Options{
				Config:    cfg,
				Writer:    w,
				Job:       cleanupJob(e, w),
				AdminHash: e.cfg.Admin.PasswordSHA256,
				Schedule:  e.cfg.Cleanup.Schedule,
				Logger:    e.log,
			})
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	return cmd
}

func printOutcome(out io.Writer, o cleanup.Outcome) {
	fmt.Fprint(out, o.Output)
	fmt.Fprintf(out, "Before: %d  After: %d  Removed: %d\n", o.Before, o.After, o.Removed)
}

func newValidateLinksCmd(e *env) *cobra.Command {
	var (
		dryRun  bool
		backup  bool
		workers int
	)
	cmd := &cobra.Command{
		Use:   "validate-links",
		Short: "Remove records whose URL does not answer 200",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := feedWriter(e)
			w.SkipBackup = !backup
			job := cleanupJob(e, w)
			if workers > 0 {
				job.Checker.Workers = workers
			}
			out, err := job.BrokenLinks(cmd.Context(), dryRun)
			printOutcome(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without writing")
	cmd.Flags().BoolVar(&backup, "backup", false, "keep a dated backup of the file before saving")
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel checks (default cleanup.link_workers)")
	return cmd
}

func newCleanupExpiredCmd(e *env) *cobra.Command {
	var (
		dryRun     bool
		maxAgeDays int
	)
	cmd := &cobra.Command{
		Use:   "cleanup-expired",
		Short: "Remove past live sessions and stale on-demand records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			job := cleanupJob(e, feedWriter(e))
			if maxAgeDays > 0 {
				job.MaxAgeDays = maxAgeDays
			}
			out, err := job.ExpiredRecords(cmd.Context(), dryRun)
			printOutcome(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without writing")
	cmd.Flags().IntVar(&maxAgeDays, "max-age-days", 0, "age limit for on-demand records (default cleanup.max_age_days)")
	return cmd
}

func newMarkManualCmd(e *env) *cobra.Command {
	var (
		ids      []string
		title    string
		provider string
		list     bool
		stats    bool
	)
	cmd := &cobra.Command{
		Use:   "mark-manual",
		Short: "Flag records in the feed file as manual entries",
		Long: "Flag records as manual entries so cleanup-expired keeps them past the age\n" +
			"limit. Select by --id, a case-insensitive --title substring or an exact\n" +
			"--provider. --list and --stats only report.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			store := feed.NewStore(feed.Options{Fetcher: feed.FileFetcher{Path: e.cfg.Feed.Path}, Logger: e.log})
			rep := store.Load(cmd.Context())
			if rep.Err != nil {
				return rep.Err
			}

			if stats {
				s := cleanup.SourceStats(store.Records())
				fmt.Fprintf(out, "Total: %d\nManual: %d\nScraped: %d\nNo source: %d\n", s.Total, s.Manual, s.Scraped, s.NoSource)
			}
			if list {
				p := newPrinter(out, "table")
				var rows [][]string
				for _, r := range store.Records() {
					if r.IsManual() {
						rows = append(rows, []string{r.ID, r.Title, r.Provider, r.DateAdded})
					}
				}
				p.table([]string{"ID", "TITLE", "PROVIDER", "ADDED"}, rows)
			}
			if len(ids) == 0 && title == "" && provider == "" {
				if !list && !stats {
					return fmt.Errorf("nothing selected: use --id, --title or --provider")
				}
				return nil
			}

			marked, err := markManual(store, ids, title, provider)
			for _, id := range marked {
				fmt.Fprintf(out, "marked %s\n", id)
			}
			if err != nil {
				return err
			}
			if !store.Modified() {
				fmt.Fprintln(out, "No records changed")
				return nil
			}
			return saveStore(cmd.Context(), e, store)
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&ids, "id", nil, "record id (repeatable)")
	f.StringVar(&title, "title", "", "title substring")
	f.StringVar(&provider, "provider", "", "provider name")
	f.BoolVar(&list, "list", false, "list manual records")
	f.BoolVar(&stats, "stats", false, "print source statistics")
	return cmd
}

func markManual(store *feed.Store, ids []string, title, provider string) ([]string, error) {
	var marked []string
	for _, id := range ids {
		if err := store.MarkManual(id); err != nil {
			return marked, err
		}
		marked = append(marked, id)
	}
	if title != "" || provider != "" {
		needle := strings.ToLower(title)
		marked = append(marked, store.MarkManualMatching(func(r domain.Record) bool {
			if title != "" && !strings.Contains(strings.ToLower(r.Title), needle) {
				return false
			}
			return provider == "" || strings.EqualFold(r.Provider, provider)
		})...)
	}
	return marked, nil
}

func saveStore(ctx context.Context, e *env, store *feed.Store) error {
	doc := snapshot.ForPersist(store.Records(), store.Collection(), time.Now())
	_, err := feedWriter(e).Write(ctx, doc)
	return err
}

func newPublishCmd(e *env) *cobra.Command {
	var remoteName string
	cmd := &cobra.Command{
		Use:   "publish <file>",
		Short: "Upload an exported feed file to the static host over SFTP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			local := args[0]
			if _, err := os.Stat(local); err != nil {
				return err
			}
			if remoteName == "" {
				remoteName = filepath.Base(e.cfg.Feed.Path)
			}
			remote, err := sftpclient.UploadFile(cmd.Context(), sftpclient.FromConfig(e.cfg.SFTP), local, remoteName)
			if err != nil {
				return err
			}
			e.log.Info("published", "local", local, "remote", remote)
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s to %s\n", local, remote)
			return nil
		},
	}
	cmd.Flags().StringVar(&remoteName, "remote-name", "", "remote file name (default: base name of feed.path)")
	return cmd
}
