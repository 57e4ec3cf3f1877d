package viewmodel

import (
	"webinar-directory/internal/domain"
	"webinar-directory/internal/filter"
)

// Action is a user command. The set is closed; see the types below.
type Action interface {
	actionName() string
}

type (
	// SetFilter replaces the whole filter set.
	SetFilter struct{ Set filter.Set }
	// ClearFilters resets every predicate.
	ClearFilters struct{}
	// SortBy is a column-header click.
	SortBy struct{ Field string }
	// ToggleLike likes or unlikes a record for the current user.
	ToggleLike struct{ ID string }
	// AddRecord runs the admin add-flow.
	AddRecord struct{ Record domain.Record }
	// EditRecord replaces every field of a record.
	EditRecord struct {
		ID     string
		Record domain.Record
	}
	DeleteRecord struct{ ID string }
	// DiscardChanges reloads the canonical feed over every local change.
	DiscardChanges struct{}
	// ExportChanges exports only when the store is modified.
	ExportChanges struct{}
	ExportAll     struct{}
	// Focus highlights one record, as a ?id= link does.
	Focus struct{ ID string }
	// IntegratePending merges records staged by an earlier admin session.
	IntegratePending struct{}
)

func (SetFilter) actionName() string        { return "set_filter" }
func (ClearFilters) actionName() string     { return "clear_filters" }
func (SortBy) actionName() string           { return "sort_by" }
func (ToggleLike) actionName() string       { return "toggle_like" }
func (AddRecord) actionName() string        { return "add_record" }
func (EditRecord) actionName() string       { return "edit_record" }
func (DeleteRecord) actionName() string     { return "delete_record" }
func (DiscardChanges) actionName() string   { return "discard_changes" }
func (ExportChanges) actionName() string    { return "export_changes" }
func (ExportAll) actionName() string        { return "export_all" }
func (Focus) actionName() string            { return "focus" }
func (IntegratePending) actionName() string { return "integrate_pending" }
