package server

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"
)

// watchFeed reloads the cache when the canonical file changes on disk. The
// directory is watched rather than the file because atomic writes replace
// the inode.
func (s *Server) watchFeed(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("server: watcher: %w", err)
	}
	target := filepath.Clean(s.feed.path)
	dir := filepath.Dir(target)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("server: watch %s: %w", dir, err)
	}
	s.log.Info("watching feed", "path", target)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.Warn("watcher error", "error", err)
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := s.reloadFeed("watch"); err != nil {
					s.log.Warn("reload on change failed", "error", err)
				}
			}
		}
	}()
	return nil
}

const expireJobName = "expire-records"

// startSchedule registers the expired-record job on s.schedule, a standard
// five-field cron expression.
func (s *Server) startSchedule() (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("server: create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.CronJob(s.schedule, false),
		gocron.NewTask(s.runScheduledExpiry),
		gocron.WithName(expireJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("server: schedule %s: %w", expireJobName, err)
	}
	sched.Start()
	s.log.Info("scheduled job added", "name", expireJobName, "cron", s.schedule)
	return sched, nil
}

func (s *Server) runScheduledExpiry() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	// an admin request already running wins; the next tick retries
	if !s.jobMu.TryLock() {
		s.log.Info("scheduled expiry skipped, job in progress")
		return
	}
	defer s.jobMu.Unlock()

	out, err := s.runJob(ctx, ActionExpire, false)
	if err != nil {
		s.log.Error("scheduled expiry failed", "error", err)
		return
	}
	s.log.Info("scheduled expiry done", "removed", out.Removed, "after", out.After)
}
