// Package startup coordinates background worker lifecycles. Workers
// start in registration order with Fibonacci backoff between failed
// attempts and stop in reverse order on shutdown.
package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
)

type Worker interface {
	GetName() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type workerStatus int

const (
	statusPending workerStatus = iota
	statusStarted
	statusStopped
	statusFailed
)

type Startup struct {
	workers     []Worker
	statuses    map[string]workerStatus
	logger      ectologger.Logger
	maxAttempts int
}

func NewStartup(logger ectologger.Logger, maxAttempts int) *Startup {
	return &Startup{
		logger:      logger,
		statuses:    make(map[string]workerStatus),
		maxAttempts: maxAttempts,
	}
}

func (s *Startup) AddWorker(worker Worker) {
	s.workers = append(s.workers, worker)
	s.statuses[worker.GetName()] = statusPending
}

// Start brings every registered worker up. Workers already started on
// an earlier attempt are skipped, so a retry only touches what failed.
func (s *Startup) Start(ctx context.Context) error {
	var lastErr error

	// Fibonacci backoff sequence
	a, b := 1, 1
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		s.logger.WithField("attempt", attempt).Infof("Beginning startup attempt %d", attempt)

		lastErr = nil
		for _, worker := range s.workers {
			if err := s.startWorker(ctx, worker); err != nil {
				lastErr = err
				break
			}
		}
		if lastErr == nil {
			return nil
		}
		if attempt >= s.maxAttempts {
			break
		}

		s.logger.Infof("Retrying in %d seconds (attempt %d/%d)", a, attempt, s.maxAttempts)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(a) * time.Second):
		}
		a, b = b, a+b
	}

	return fmt.Errorf("startup failed after %d attempts: %w", s.maxAttempts, lastErr)
}

func (s *Startup) startWorker(ctx context.Context, worker Worker) error {
	if s.statuses[worker.GetName()] == statusStarted {
		return nil
	}

	s.logger.WithField("worker", worker.GetName()).Infof("Starting worker '%s'", worker.GetName())
	if err := worker.Start(ctx); err != nil {
		s.statuses[worker.GetName()] = statusFailed
		s.logger.WithError(err).WithField("worker", worker.GetName()).Errorf("Failed to start worker '%s'", worker.GetName())
		return err
	}
	s.statuses[worker.GetName()] = statusStarted
	return nil
}

// Stop stops started workers in reverse registration order
func (s *Startup) Stop(ctx context.Context) error {
	for i := len(s.workers) - 1; i >= 0; i-- {
		worker := s.workers[i]
		if s.statuses[worker.GetName()] != statusStarted {
			continue
		}

		s.logger.WithField("worker", worker.GetName()).Infof("Stopping worker '%s'", worker.GetName())
		if err := worker.Stop(ctx); err != nil {
			s.logger.WithError(err).WithField("worker", worker.GetName()).Errorf("Failed to stop worker '%s'", worker.GetName())
			return err
		}
		s.statuses[worker.GetName()] = statusStopped
	}
	return nil
}
