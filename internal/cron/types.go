package cron

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	KindCron  = "cron"  // six-field expression with seconds
	KindEvery = "every" // fixed interval in milliseconds
)

type Schedule struct {
	Kind    string `json:"kind"`
	Expr    string `json:"expr,omitempty"`
	EveryMs int64  `json:"everyMs,omitempty"`
}

func (s Schedule) String() string {
	if s.Kind == KindEvery {
		return fmt.Sprintf("every %s", time.Duration(s.EveryMs)*time.Millisecond)
	}
	return s.Expr
}

// JobState is the outcome of the most recent run.
type JobState struct {
	LastRunAtMs int64  `json:"lastRunAtMs,omitempty"`
	LastStatus  string `json:"lastStatus,omitempty"`
	LastError   string `json:"lastError,omitempty"`
	LastResult  string `json:"lastResult,omitempty"`
}

// Job runs the handler registered for Task on Schedule.
type Job struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Task        string   `json:"task"`
	Schedule    Schedule `json:"schedule"`
	Enabled     bool     `json:"enabled"`
	State       JobState `json:"state"`
	CreatedAtMs int64    `json:"createdAtMs"`
}

func NewJob(name, task string, schedule Schedule) Job {
	return Job{
		ID:          uuid.NewString()[:8],
		Name:        name,
		Task:        task,
		Schedule:    schedule,
		Enabled:     true,
		CreatedAtMs: time.Now().UnixMilli(),
	}
}
