package cron

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
)

var (
	ErrUnknownJob  = errors.New("cron: unknown job")
	ErrUnknownTask = errors.New("cron: no handler for task")
)

// Handler performs a task. The returned summary is kept in the job state.
type Handler func(ctx context.Context, job Job) (string, error)

var parser = rcron.NewParser(rcron.Second | rcron.Minute | rcron.Hour | rcron.Dom | rcron.Month | rcron.Dow | rcron.Descriptor)

// Service schedules named jobs and persists them, with their last-run
// state, to a JSON file.
type Service struct {
	storePath string

	mu       sync.Mutex
	jobs     []Job
	handlers map[string]Handler
	cron     *rcron.Cron
	entries  map[string]rcron.EntryID
	runCtx   context.Context
	cancel   context.CancelFunc
	loaded   bool
}

func NewService(storePath string) *Service {
	return &Service{
		storePath: storePath,
		handlers:  make(map[string]Handler),
		entries:   make(map[string]rcron.EntryID),
	}
}

// Handle registers h for jobs whose Task is task.
func (s *Service) Handle(task string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[task] = h
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if err := s.loadLocked(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("load jobs: %w", err)
	}
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.cron = rcron.New(rcron.WithParser(parser))
	for _, job := range s.jobs {
		if job.Enabled {
			if err := s.registerLocked(job); err != nil {
				log.Printf("[cron] skip job %s: %v", job.Name, err)
			}
		}
	}
	c := s.cron
	runCtx := s.runCtx
	n := len(s.jobs)
	s.mu.Unlock()

	c.Start()
	log.Printf("[cron] started with %d jobs", n)

	go func() {
		<-runCtx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.entries = make(map[string]rcron.EntryID)
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
		log.Printf("[cron] stopped")
	}
}

func schedFor(sched Schedule) (rcron.Schedule, error) {
	switch sched.Kind {
	case KindCron:
		return parser.Parse(sched.Expr)
	case KindEvery:
		if sched.EveryMs <= 0 {
			return nil, fmt.Errorf("every schedule needs a positive interval")
		}
		return rcron.Every(time.Duration(sched.EveryMs) * time.Millisecond), nil
	}
	return nil, fmt.Errorf("unknown schedule kind %q", sched.Kind)
}

// registerLocked adds job to the running scheduler. Caller holds s.mu.
func (s *Service) registerLocked(job Job) error {
	if s.cron == nil {
		return nil
	}
	sched, err := schedFor(job.Schedule)
	if err != nil {
		return err
	}
	id := job.ID
	s.entries[id] = s.cron.Schedule(sched, rcron.FuncJob(func() {
		s.mu.Lock()
		ctx := s.runCtx
		s.mu.Unlock()
		if ctx == nil || ctx.Err() != nil {
			return
		}
		if _, err := s.run(ctx, id); err != nil {
			log.Printf("[cron] job %s: %v", id, err)
		}
	}))
	return nil
}

func (s *Service) unregisterLocked(id string) {
	if entry, ok := s.entries[id]; ok {
		if s.cron != nil {
			s.cron.Remove(entry)
		}
		delete(s.entries, id)
	}
}

func (s *Service) run(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return "", ErrUnknownJob
	}
	job := s.jobs[idx]
	h := s.handlers[job.Task]
	s.mu.Unlock()

	var (
		result string
		err    error
	)
	if h == nil {
		err = fmt.Errorf("%w %q", ErrUnknownTask, job.Task)
	} else {
		result, err = h(ctx, job)
	}

	state := JobState{LastRunAtMs: time.Now().UnixMilli(), LastStatus: "ok", LastResult: truncate(result, 200)}
	if err != nil {
		state.LastStatus = "error"
		state.LastError = err.Error()
	}

	s.mu.Lock()
	if idx := s.indexLocked(id); idx >= 0 {
		s.jobs[idx].State = state
	}
	saveErr := s.saveLocked()
	s.mu.Unlock()
	if saveErr != nil {
		log.Printf("[cron] save after %s: %v", job.Name, saveErr)
	}

	log.Printf("[cron] ran %s (%s): %s", job.Name, job.Task, state.LastStatus)
	return result, err
}

// RunNow runs the named job immediately, outside its schedule.
func (s *Service) RunNow(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	if err := s.loadLocked(); err != nil {
		s.mu.Unlock()
		return "", err
	}
	var id string
	for _, j := range s.jobs {
		if j.Name == name {
			id = j.ID
			break
		}
	}
	s.mu.Unlock()
	if id == "" {
		return "", fmt.Errorf("%w %q", ErrUnknownJob, name)
	}
	return s.run(ctx, id)
}

func (s *Service) AddJob(name, task string, sched Schedule) (Job, error) {
	if _, err := schedFor(sched); err != nil {
		return Job{}, fmt.Errorf("invalid schedule for %s: %w", name, err)
	}
	job := NewJob(name, task, sched)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return Job{}, err
	}
	s.jobs = append(s.jobs, job)
	if err := s.registerLocked(job); err != nil {
		return Job{}, err
	}
	return job, s.saveLocked()
}

// EnsureJob makes sure a job called name exists with the given task and
// schedule, updating a stored job whose definition changed. The stored
// enabled flag and run state are preserved.
func (s *Service) EnsureJob(name, task string, sched Schedule) (Job, error) {
	if _, err := schedFor(sched); err != nil {
		return Job{}, fmt.Errorf("invalid schedule for %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return Job{}, err
	}
	for i, j := range s.jobs {
		if j.Name != name {
			continue
		}
		if j.Task == task && j.Schedule == sched {
			return j, nil
		}
		s.unregisterLocked(j.ID)
		s.jobs[i].Task = task
		s.jobs[i].Schedule = sched
		if s.jobs[i].Enabled {
			if err := s.registerLocked(s.jobs[i]); err != nil {
				return Job{}, err
			}
		}
		return s.jobs[i], s.saveLocked()
	}

	job := NewJob(name, task, sched)
	s.jobs = append(s.jobs, job)
	if err := s.registerLocked(job); err != nil {
		return Job{}, err
	}
	return job, s.saveLocked()
}

func (s *Service) RemoveJob(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return false
	}
	s.unregisterLocked(id)
	s.jobs = append(s.jobs[:idx], s.jobs[idx+1:]...)
	if err := s.saveLocked(); err != nil {
		log.Printf("[cron] save after remove: %v", err)
	}
	return true
}

func (s *Service) EnableJob(id string, enabled bool) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return Job{}, ErrUnknownJob
	}
	s.jobs[idx].Enabled = enabled
	s.unregisterLocked(id)
	if enabled {
		if err := s.registerLocked(s.jobs[idx]); err != nil {
			return Job{}, err
		}
	}
	return s.jobs[idx], s.saveLocked()
}

func (s *Service) ListJobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		log.Printf("[cron] load jobs: %v", err)
	}
	out := make([]Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

func (s *Service) indexLocked(id string) int {
	for i, j := range s.jobs {
		if j.ID == id {
			return i
		}
	}
	return -1
}

// loadLocked reads the job file once. Caller holds s.mu.
func (s *Service) loadLocked() error {
	if s.loaded {
		return nil
	}
	data, err := os.ReadFile(s.storePath)
	if errors.Is(err, os.ErrNotExist) {
		s.loaded = true
		return nil
	}
	if err != nil {
		return err
	}
	var jobs []Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return fmt.Errorf("parse %s: %w", s.storePath, err)
	}
	s.jobs = jobs
	s.loaded = true
	return nil
}

func (s *Service) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.storePath), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.jobs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.storePath, data, 0o644)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
