// Package tasks drives the polling pipeline on a fixed cadence across all
// enabled sources, fanning work out to a bounded pool so a slow source
// delays only its own worker.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/courant-io/courant/app/dedup"
	"github.com/courant-io/courant/app/feed"
	"github.com/courant-io/courant/app/notify"
	"github.com/courant-io/courant/app/registry"
	"github.com/courant-io/courant/app/subscription"
)

const taskTimeout = 5 * time.Minute

type Scheduler struct {
	reg          *registry.Registry
	index        *subscription.Index
	fetcher      *feed.Fetcher
	deduplicator *dedup.Deduplicator
	dispatcher   *notify.Dispatcher
	interval     time.Duration
	workerCount  int
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	taskQueue    chan TaskInterface
}

func NewScheduler(reg *registry.Registry, index *subscription.Index, fetcher *feed.Fetcher,
	deduplicator *dedup.Deduplicator, dispatcher *notify.Dispatcher,
	interval time.Duration, workerCount int) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		reg:          reg,
		index:        index,
		fetcher:      fetcher,
		deduplicator: deduplicator,
		dispatcher:   dispatcher,
		interval:     interval,
		workerCount:  workerCount,
		ctx:          ctx,
		cancel:       cancel,
		taskQueue:    make(chan TaskInterface, 300),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueSweep()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueSweep()
			}
		}
	}()
}

// Stop cancels in-flight work and drains the workers so a sweep never
// outlives the process.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

// enqueueSweep snapshots the enabled sources and queues one poll task per
// source. Sources registered after the snapshot join the next sweep.
func (s *Scheduler) enqueueSweep() {
	sources := s.reg.EnabledSources()
	if len(sources) == 0 {
		slog.Debug("No enabled sources to poll")
		return
	}

	slog.Debug("Enqueueing sweep", "sources", len(sources))

	for _, source := range sources {
		task := NewPollSourceTask(source, s.fetcher, s.deduplicator, s.reg, s.index, s.dispatcher)
		if err := s.EnqueueTask(task); err != nil {
			slog.Warn("Failed to enqueue poll task", "source", source.Key(), "error", err)
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()

	if err := task.Execute(taskCtx); err != nil {
		// Failures are isolated to their source and retried on the next
		// sweep; the loop continues.
		slog.Error("Worker task execution failed",
			"worker_id", workerID, "type", string(task.GetType()),
			"source", task.GetSourceKey(), "error", err)
	}
}
