// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package parallel

import (
	"context"
	"runtime"
	"time"

	"github.com/juju/errors"
)

// DefaultTimeout bounds the wait for a batch of tasks.
const DefaultTimeout = 5 * time.Minute

// Task is an independent unit of work, usually bound to one user or one row.
type Task func() error

// Runner executes batches of tasks on a fixed-size worker pool. Tasks must only share
// state through values designed for concurrent use.
type Runner struct {
	numJobs  int
	timeout  time.Duration
	progress func()
}

type RunnerOption func(*Runner)

// WithJobs sets the number of workers. Non-positive values keep the default.
func WithJobs(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.numJobs = n
		}
	}
}

// WithTimeout sets the maximum time to wait for a batch. Zero disables the timeout.
func WithTimeout(timeout time.Duration) RunnerOption {
	return func(r *Runner) {
		r.timeout = timeout
	}
}

// WithProgress registers a callback invoked after each successful task.
func WithProgress(progress func()) RunnerOption {
	return func(r *Runner) {
		r.progress = progress
	}
}

// NewRunner creates a runner with one worker per CPU and the default timeout.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		numJobs: runtime.NumCPU(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) NumJobs() int {
	return r.numJobs
}

// Run executes all tasks and blocks until they complete, one of them fails or the
// timeout elapses. Tasks already started when the timeout elapses keep running in the
// background; their effects must not be trusted.
func (r *Runner) Run(ctx context.Context, tasks []Task) error {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- Parallel(runCtx, len(tasks), r.numJobs, func(_, jobId int) error {
			if err := tasks[jobId](); err != nil {
				return errors.Annotatef(err, "task %d failed", jobId)
			}
			if r.progress != nil {
				r.progress()
			}
			return nil
		})
	}()

	var timeout <-chan time.Time
	if r.timeout > 0 {
		timer := time.NewTimer(r.timeout)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case err := <-done:
		cancel()
		return err
	case <-timeout:
		cancel()
		return errors.Timeoutf("%d tasks not completed within %v", len(tasks), r.timeout)
	}
}
