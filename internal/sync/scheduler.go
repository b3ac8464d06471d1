package sync

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/pagebase/core/internal/model"
	"github.com/pagebase/core/internal/store"
)

// Scheduler dispatches SyncConfig.cron_schedule entries onto the Executor,
// one robfig/cron entry per active, scheduled config.
type Scheduler struct {
	cron *cron.Cron
	exec *Executor
	st   *store.Store

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func NewScheduler(exec *Executor, st *store.Store) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		exec:    exec,
		st:      st,
		entries: make(map[string]cron.EntryID),
	}
}

func (s *Scheduler) Start() { s.cron.Start() }
func (s *Scheduler) Stop()  { s.cron.Stop() }

// Sync (re)registers cron entries to match the currently active, scheduled
// SyncConfigs, removing entries for configs that are no longer active or
// scheduled.
func (s *Scheduler) Sync(configs []model.SyncConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]model.SyncConfig)
	for _, c := range configs {
		if c.Active && c.CronSchedule != "" {
			wanted[c.ID] = c
		}
	}

	for id, entryID := range s.entries {
		if _, ok := wanted[id]; !ok {
			s.cron.Remove(entryID)
			delete(s.entries, id)
		}
	}

	for id, cfg := range wanted {
		if _, ok := s.entries[id]; ok {
			continue
		}
		cfg := cfg
		entryID, err := s.cron.AddFunc(cfg.CronSchedule, func() {
			_, _ = s.exec.Run(context.Background(), cfg, "schedule")
		})
		if err != nil {
			continue
		}
		s.entries[id] = entryID
	}
}
