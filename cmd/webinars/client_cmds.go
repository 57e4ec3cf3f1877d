package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"webinar-directory/internal/domain"
	"webinar-directory/internal/filter"
	"webinar-directory/internal/localstate"
	"webinar-directory/internal/sorting"
	"webinar-directory/internal/viewmodel"
)

// withClient opens a session, runs fn and closes the session, exporting
// unsaved changes on the way out.
func withClient(cmd *cobra.Command, e *env, fn func(ctx context.Context, c *client) error) error {
	ctx := cmd.Context()
	c, err := openClient(ctx, e)
	if err != nil {
		return err
	}
	runErr := fn(ctx, c)
	if err := c.close(ctx, cmd.OutOrStdout()); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func newListCmd(e *env) *cobra.Command {
	var (
		set    filter.Set
		field  string
		dir    string
		focus  string
		output string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records through the filter and sort pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, e, func(ctx context.Context, c *client) error {
				for _, a := range listActions(set, field, dir, focus) {
					// a missing focus id is reported as a notice, not a failure
					if err := c.model.Dispatch(ctx, a); err != nil {
						if _, ok := a.(viewmodel.Focus); !ok {
							return err
						}
					}
				}
				return newPrinter(cmd.OutOrStdout(), output).view(c.model.Render())
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&set.Search, "query", "q", "", "free-text search over title, provider, topics and description")
	f.StringVar(&set.Provider, "provider", "", "exact provider")
	f.StringVar(&set.Topic, "topic", "", "exact topic")
	f.StringVar(&set.Format, "format", "", "exact format (live, on-demand)")
	f.StringVar(&set.Duration, "duration", "", "duration bucket: 0-30, 31-60, 61-90, 91+")
	f.StringVar(&set.Certificate, "certificate", "", "certificate filter: true or false")
	f.StringVar(&set.DateMode, "date", "", "date mode: live, on-demand, upcoming")
	f.BoolVar(&set.LikedOnly, "liked", false, "only records you liked")
	f.StringVar(&field, "sort", "", "sort field (title, provider, likes, live_date, ...)")
	f.StringVar(&dir, "dir", "asc", "sort direction: asc or desc")
	f.StringVar(&focus, "id", "", "highlight one record")
	f.StringVarP(&output, "output", "o", "table", "output format: table or json")
	return cmd
}

// listActions turns list flags into the commands a user would issue.
func listActions(set filter.Set, field, dir, focus string) []viewmodel.Action {
	var out []viewmodel.Action
	if set.Active() {
		out = append(out, viewmodel.SetFilter{Set: set})
	}
	if field != "" {
		out = append(out, viewmodel.SortBy{Field: field})
		if sorting.ParseDirection(dir) == sorting.Desc {
			out = append(out, viewmodel.SortBy{Field: field})
		}
	}
	if focus != "" {
		out = append(out, viewmodel.Focus{ID: focus})
	}
	return out
}

func newLikeCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "like <id>",
		Short: "Like a record, or unlike it if already liked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, e, func(ctx context.Context, c *client) error {
				if err := c.dispatch(ctx, cmd.OutOrStdout(), viewmodel.ToggleLike{ID: args[0]}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s now has %d likes\n", args[0], c.ledger.Count(args[0]))
				return nil
			})
		},
	}
}

type recordFlags struct {
	id          string
	title       string
	provider    string
	url         string
	topics      []string
	format      string
	duration    int
	certificate bool
	process     string
	liveDate    string
	description string
}

func (f *recordFlags) bind(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.id, "id", "", "record id (generated from provider, title and live date when empty)")
	fl.StringVar(&f.title, "title", "", "title")
	fl.StringVar(&f.provider, "provider", "", "provider")
	fl.StringVar(&f.url, "url", "", "registration or recording URL")
	fl.StringSliceVar(&f.topics, "topic", nil, "topic (repeatable)")
	fl.StringVar(&f.format, "format", domain.FormatLive, "live or on-demand")
	fl.IntVar(&f.duration, "duration", 0, "duration in minutes")
	fl.BoolVar(&f.certificate, "certificate", false, "a certificate is available")
	fl.StringVar(&f.process, "certificate-process", "", "how the certificate is obtained")
	fl.StringVar(&f.liveDate, "live-date", "", "YYYY-MM-DD, on-demand or Unknown")
	fl.StringVar(&f.description, "description", "", "description")
}

func (f *recordFlags) record() domain.Record {
	return domain.Record{
		ID:                   f.id,
		Title:                f.title,
		Provider:             f.provider,
		URL:                  f.url,
		Topics:               f.topics,
		Format:               f.format,
		DurationMin:          f.duration,
		CertificateAvailable: f.certificate,
		CertificateProcess:   f.process,
		LiveDate:             f.liveDate,
		Description:          f.description,
	}
}

// applyChanged overrides the fields of r whose flags were set on cmd.
func (f *recordFlags) applyChanged(cmd *cobra.Command, r domain.Record) domain.Record {
	r = r.Clone()
	changed := cmd.Flags().Changed
	if changed("id") {
		r.ID = f.id
	}
	if changed("title") {
		r.Title = f.title
	}
	if changed("provider") {
		r.Provider = f.provider
	}
	if changed("url") {
		r.URL = f.url
	}
	if changed("topic") {
		r.Topics = f.topics
	}
	if changed("format") {
		r.Format = f.format
	}
	if changed("duration") {
		r.DurationMin = f.duration
	}
	if changed("certificate") {
		r.CertificateAvailable = f.certificate
	}
	if changed("certificate-process") {
		r.CertificateProcess = f.process
	}
	if changed("live-date") {
		r.LiveDate = f.liveDate
	}
	if changed("description") {
		r.Description = f.description
	}
	return r
}

func newAddCmd(e *env) *cobra.Command {
	var (
		rf    recordFlags
		stage bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a record as a manual entry",
		Long: "Add a record as a manual entry. The record is added to this session and\n" +
			"exported with the other changes, or with --stage kept in local state and\n" +
			"merged into the next session.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if stage {
				return stageRecord(cmd, e, rf.record())
			}
			return withClient(cmd, e, func(ctx context.Context, c *client) error {
				return c.dispatch(ctx, cmd.OutOrStdout(), viewmodel.AddRecord{Record: rf.record()})
			})
		},
	}
	rf.bind(cmd)
	cmd.Flags().BoolVar(&stage, "stage", false, "stage the record for the next session instead")
	return cmd
}

// stageRecord stores r in the local staging area without loading the feed.
func stageRecord(cmd *cobra.Command, e *env, r domain.Record) error {
	ctx := cmd.Context()
	r.Source = domain.SourceManual
	r.DateAdded = domain.Today(time.Now())
	if r.ID == "" {
		r.ID = domain.Slug(r.Provider, r.Title, r.LiveDate)
	}
	if err := r.Validate(); err != nil {
		return err
	}
	if e.cfg.Client.StatePath == "" {
		return fmt.Errorf("staging needs client.state_path")
	}
	db, err := localstate.OpenSQLite(e.cfg.Client.StatePath)
	if err != nil {
		return err
	}
	defer db.Close()
	session, err := localstate.OpenSession(ctx, db)
	if err != nil {
		return err
	}
	session.State.Stage(r)
	if err := session.Save(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Staged %s (%d waiting)\n", r.ID, len(session.State.Pending))
	return nil
}

func newEditCmd(e *env) *cobra.Command {
	var rf recordFlags
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of a record and export the result",
		Long: "Change fields of a record. Only the flags given are changed; --id renames\n" +
			"the record. date_added, the manual flag and the like counter are kept.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withClient(cmd, e, func(ctx context.Context, c *client) error {
				// a missing id leaves current empty and Replace reports not found
				current, _ := c.store.Get(id)
				edit := rf.applyChanged(cmd, current)
				return c.dispatch(ctx, cmd.OutOrStdout(), viewmodel.EditRecord{ID: id, Record: edit})
			})
		},
	}
	rf.bind(cmd)
	return cmd
}

func newDeleteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete records and export the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, e, func(ctx context.Context, c *client) error {
				for _, id := range args {
					if err := c.dispatch(ctx, cmd.OutOrStdout(), viewmodel.DeleteRecord{ID: id}); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newExportCmd(e *env) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the current records to <base>_updated.json, or <base>_all.json with --all",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, e, func(ctx context.Context, c *client) error {
				var a viewmodel.Action = viewmodel.ExportChanges{}
				if all {
					a = viewmodel.ExportAll{}
				}
				return c.dispatch(ctx, cmd.OutOrStdout(), a)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "export every record even without changes")
	return cmd
}

func newDiscardCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "discard",
		Short: "Reload the feed, dropping staged records and other local changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, e, func(ctx context.Context, c *client) error {
				return c.dispatch(ctx, cmd.OutOrStdout(), viewmodel.DiscardChanges{})
			})
		},
	}
}

func newShellCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive session: filter, sort, like, edit and export in one run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, e, func(ctx context.Context, c *client) error {
				return runShell(ctx, c, cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}
}

// splitAssign parses key=value.
func splitAssign(s string) (string, string, bool) {
	k, v, ok := strings.Cut(s, "=")
	return strings.TrimSpace(k), strings.TrimSpace(v), ok
}
