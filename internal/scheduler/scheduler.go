// Package scheduler runs the monitoring and analysis passes on cron schedules
// in serve mode.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
)

// TaskFunc is one scheduled pass.
type TaskFunc func(ctx context.Context)

// Scheduler wraps robfig/cron. A task never overlaps with itself: a tick that
// arrives while the previous run is still going is skipped.
type Scheduler struct {
	cron    *cron.Cron
	log     *log.Logger
	tasks   map[string]cron.EntryID
	timeout time.Duration
	mu      sync.RWMutex
	running bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a scheduler whose tasks each get at most timeout to finish.
func New(logger *log.Logger, timeout time.Duration) *Scheduler {
	logger = logger.WithPrefix("scheduler")
	cl := cron.PrintfLogger(logger.StandardLog(log.StandardLogOptions{ForceLevel: log.DebugLevel}))

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:     logger,
		tasks:   make(map[string]cron.EntryID),
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add registers task under name, replacing any task of the same name.
// schedule accepts standard five-field cron expressions and descriptors such
// as "@every 1m".
func (s *Scheduler) Add(name, schedule string, task TaskFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.tasks[name]; ok {
		s.cron.Remove(id)
		delete(s.tasks, name)
	}

	id, err := s.cron.AddFunc(schedule, func() { s.runTask(name, task) })
	if err != nil {
		return err
	}
	s.tasks[name] = id
	s.log.Info("added task", "name", name, "schedule", schedule)
	return nil
}

func (s *Scheduler) runTask(name string, task TaskFunc) {
	start := time.Now()
	s.log.Debug("running scheduled task", "name", name)

	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	task(ctx)

	s.log.Debug("scheduled task completed", "name", name, "duration", time.Since(start).Round(time.Millisecond))
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.log.Info("scheduler started", "tasks", len(s.tasks))
}

// Stop cancels running tasks and waits for them until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cancel()
	select {
	case <-s.cron.Stop().Done():
		s.log.Info("scheduler stopped gracefully")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timeout")
	}
	s.running = false
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// TaskInfo describes one registered task.
type TaskInfo struct {
	Name    string    `json:"name"`
	NextRun time.Time `json:"next_run"`
	PrevRun time.Time `json:"prev_run,omitempty"`
}

// Tasks lists registered tasks sorted by name.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := make([]TaskInfo, 0, len(s.tasks))
	for name, id := range s.tasks {
		e := s.cron.Entry(id)
		info = append(info, TaskInfo{Name: name, NextRun: e.Next, PrevRun: e.Prev})
	}
	sort.Slice(info, func(i, j int) bool { return info[i].Name < info[j].Name })
	return info
}
