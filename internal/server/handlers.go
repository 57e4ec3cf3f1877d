package server

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"webinar-directory/internal/cleanup"
	"webinar-directory/internal/filter"
	"webinar-directory/internal/snapshot"
	"webinar-directory/internal/sorting"
	"webinar-directory/internal/viewmodel"
)

// Admin actions.
const (
	ActionCleanup = "cleanup"
	ActionExpire  = "expire"
)

const adminPasswordHeader = "X-Admin-Password"

func (s *Server) handleSaveLikes(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.metrics.likeSaves.WithLabelValues("rejected").Inc()
			writeError(w, http.StatusBadRequest, "request body too large")
			return
		}
		s.metrics.likeSaves.WithLabelValues("rejected").Inc()
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	res, err := s.writer.WriteRaw(r.Context(), body)
	if err != nil {
		if snapshot.IsInvalid(err) {
			s.metrics.likeSaves.WithLabelValues("rejected").Inc()
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.metrics.likeSaves.WithLabelValues("error").Inc()
		s.log.Error("save likes failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save likes")
		return
	}
	s.metrics.likeSaves.WithLabelValues("ok").Inc()
	if err := s.reloadFeed("save-likes"); err != nil {
		s.log.Warn("reload after save", "error", err)
	}
	s.log.Info("likes saved", "records", res.Records, "backup", res.Backup)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type adminRequest struct {
	Action string `json:"action"`
	DryRun bool   `json:"dry_run"`
}

type adminResponse struct {
	Success      bool   `json:"success"`
	RemovedCount int    `json:"removed_count"`
	Output       string `json:"output"`
	Error        string `json:"error,omitempty"`
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminHash != nil {
			sum := sha256.Sum256([]byte(r.Header.Get(adminPasswordHeader)))
			if subtle.ConstantTimeCompare(sum[:], s.adminHash) != 1 {
				s.log.Warn("admin request rejected", "remote", r.RemoteAddr)
				writeJSON(w, http.StatusUnauthorized, adminResponse{Error: "unauthorized"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, adminResponse{Error: "invalid request body"})
		return
	}
	switch req.Action {
	case ActionCleanup, ActionExpire:
	default:
		writeJSON(w, http.StatusBadRequest, adminResponse{Error: fmt.Sprintf("Unknown action: %s", req.Action)})
		return
	}

	if !s.jobMu.TryLock() {
		writeJSON(w, http.StatusConflict, adminResponse{Error: "a cleanup is already running"})
		return
	}
	out, err := s.runJob(r.Context(), req.Action, req.DryRun)
	s.jobMu.Unlock()

	if err != nil {
		s.log.Error("admin action failed", "action", req.Action, "error", err)
		writeJSON(w, http.StatusInternalServerError, adminResponse{Error: err.Error(), Output: out.Output})
		return
	}
	writeJSON(w, http.StatusOK, adminResponse{Success: true, RemovedCount: out.Removed, Output: out.Output})
}

// runJob executes one maintenance action. The caller holds jobMu.
func (s *Server) runJob(ctx context.Context, action string, dryRun bool) (cleanup.Outcome, error) {
	var (
		out cleanup.Outcome
		err error
	)
	switch action {
	case ActionCleanup:
		out, err = s.job.BrokenLinks(ctx, dryRun)
	case ActionExpire:
		out, err = s.job.ExpiredRecords(ctx, dryRun)
	default:
		return cleanup.Outcome{}, fmt.Errorf("unknown action %q", action)
	}
	if err != nil {
		s.metrics.jobRuns.WithLabelValues(action, "error").Inc()
		return out, err
	}
	s.metrics.jobRuns.WithLabelValues(action, "ok").Inc()
	if out.Written {
		s.metrics.jobRemoved.WithLabelValues(action).Add(float64(out.Removed))
		if err := s.reloadFeed(action); err != nil {
			s.log.Warn("reload after cleanup", "error", err)
		}
	}
	return out, nil
}

// Query parameters of /api/view besides the filter set.
const (
	paramSort     = "sort"
	paramDir      = "dir"
	paramID       = "id"
	paramLikedIDs = "liked_ids"
)

// handleView runs the filter and sort pipeline over the cached feed. The
// liked set is per user, so callers pass it as liked_ids.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	e := s.feed.get()
	if e == nil {
		writeError(w, http.StatusServiceUnavailable, "feed not available")
		return
	}
	q := r.URL.Query()

	st := viewmodel.State{Filter: filter.FromQuery(q)}
	if field := q.Get(paramSort); field != "" {
		st.Sort = sorting.State{Field: field, Direction: sorting.ParseDirection(q.Get(paramDir))}
	}

	liked := map[string]bool{}
	for _, id := range strings.Split(q.Get(paramLikedIDs), ",") {
		if id = strings.TrimSpace(id); id != "" {
			liked[id] = true
		}
	}

	if id := q.Get(paramID); id != "" {
		found := false
		for _, rec := range e.doc.Records {
			if rec.ID == id {
				found = true
				break
			}
		}
		if found {
			st.Highlight = id
		} else {
			st.Notices = []viewmodel.Notice{{Level: viewmodel.NoticeWarn, Text: "Record not found"}}
		}
	}

	v := viewmodel.Project(e.doc.Records, st, viewmodel.ProjectOptions{
		Now:     s.now(),
		IsLiked: func(id string) bool { return liked[id] },
	})
	w.Header().Set("ETag", e.etag)
	writeJSON(w, http.StatusOK, v)
}
