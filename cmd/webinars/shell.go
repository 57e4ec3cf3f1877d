package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"webinar-directory/internal/domain"
	"webinar-directory/internal/feed"
	"webinar-directory/internal/filter"
	"webinar-directory/internal/viewmodel"
)

const shellHelp = `commands:
  list                      show the table
  filter key=value ...      set filters (q, provider, topic, format, duration, certificate, date, liked)
  clear                     clear every filter
  sort <field>              click a column header; again flips the direction
  like <id>                 toggle your like
  edit <id> key=value ...   change fields (id, title, provider, url, topics,
                            format, duration, certificate, certificate_process,
                            live_date, description); topics is comma separated
  delete <id>               delete a record
  focus <id>                highlight a record
  discard                   reload the feed over local changes
  export | export-all       write <base>_updated.json or <base>_all.json
  integrate                 merge staged records
  help | quit`

// runShell reads one command per line until EOF or quit. Failed commands
// print their notice and the session continues.
func runShell(ctx context.Context, c *client, in io.Reader, out io.Writer) error {
	p := newPrinter(out, "table")
	sc := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			fmt.Fprint(out, "> ")
			continue
		}
		name, args := fields[0], fields[1:]
		if name == "quit" || name == "exit" {
			return nil
		}

		switch name {
		case "help":
			fmt.Fprintln(out, shellHelp)
		case "list":
			if err := p.view(c.model.Render()); err != nil {
				return err
			}
		default:
			a, err := shellAction(name, args, c.model.State().Filter, c.store.Get)
			if err != nil {
				fmt.Fprintln(out, err)
				break
			}
			err = c.dispatch(ctx, out, a)
			if err != nil && !errors.Is(err, feed.ErrNotFound) {
				c.log.Debug("shell command failed", "command", name, "error", err)
			}
		}
		fmt.Fprint(out, "> ")
	}
	fmt.Fprintln(out)
	return sc.Err()
}

func shellAction(name string, args []string, current filter.Set, lookup func(string) (domain.Record, bool)) (viewmodel.Action, error) {
	one := func() (string, error) {
		if len(args) != 1 {
			return "", fmt.Errorf("usage: %s <id>", name)
		}
		return args[0], nil
	}
	switch name {
	case "filter":
		q := current.Query()
		for _, kv := range args {
			k, v, ok := splitAssign(kv)
			if !ok {
				return nil, fmt.Errorf("filter: expected key=value, got %q", kv)
			}
			if v == "" {
				q.Del(k)
			} else {
				q.Set(k, v)
			}
		}
		return viewmodel.SetFilter{Set: filter.FromQuery(q)}, nil
	case "clear":
		return viewmodel.ClearFilters{}, nil
	case "sort":
		field, err := one()
		if err != nil {
			return nil, fmt.Errorf("usage: sort <field>")
		}
		return viewmodel.SortBy{Field: field}, nil
	case "like":
		id, err := one()
		return viewmodel.ToggleLike{ID: id}, err
	case "edit":
		if len(args) < 2 {
			return nil, fmt.Errorf("usage: edit <id> key=value ...")
		}
		id := args[0]
		r, _ := lookup(id)
		r = r.Clone()
		for _, kv := range args[1:] {
			k, v, ok := splitAssign(kv)
			if !ok {
				return nil, fmt.Errorf("edit: expected key=value, got %q", kv)
			}
			if err := setField(&r, k, v); err != nil {
				return nil, err
			}
		}
		return viewmodel.EditRecord{ID: id, Record: r}, nil
	case "delete":
		id, err := one()
		return viewmodel.DeleteRecord{ID: id}, err
	case "focus":
		id, err := one()
		return viewmodel.Focus{ID: id}, err
	case "discard":
		return viewmodel.DiscardChanges{}, nil
	case "export":
		return viewmodel.ExportChanges{}, nil
	case "export-all":
		return viewmodel.ExportAll{}, nil
	case "integrate":
		return viewmodel.IntegratePending{}, nil
	}
	return nil, fmt.Errorf("unknown command %q, try help", name)
}

// setField assigns one edit key. Values cannot contain spaces.
func setField(r *domain.Record, key, value string) error {
	switch key {
	case "id":
		r.ID = value
	case "title":
		r.Title = value
	case "provider":
		r.Provider = value
	case "url":
		r.URL = value
	case "topics":
		r.Topics = nil
		for _, t := range strings.Split(value, ",") {
			if t = strings.TrimSpace(t); t != "" {
				r.Topics = append(r.Topics, t)
			}
		}
	case "format":
		r.Format = value
	case "duration":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("edit: duration: %w", err)
		}
		r.DurationMin = n
	case "certificate":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("edit: certificate: %w", err)
		}
		r.CertificateAvailable = b
	case "certificate_process":
		r.CertificateProcess = value
	case "live_date":
		r.LiveDate = value
	case "description":
		r.Description = value
	default:
		return fmt.Errorf("edit: unknown field %q", key)
	}
	return nil
}
