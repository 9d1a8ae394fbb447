// Package scheduler runs one-shot and periodic jobs from a min-heap ordered
// by due time.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrStopped is returned when scheduling on a stopped scheduler
var ErrStopped = errors.New("scheduler is stopped")

// Job is the work run when a task is due. The context is cancelled when
// the scheduler stops.
type Job func(ctx context.Context)

type task struct {
	id       string
	runAt    time.Time
	interval time.Duration // zero for one-shot tasks
	job      Job
	index    int
}

// taskHeap is a min-heap of tasks ordered by runAt
type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	return h[i].runAt.Before(h[j].runAt)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x interface{}) {
	t := x.(*task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[0 : n-1]
	return t
}

// Scheduler runs due tasks on their own goroutines. A periodic task whose
// previous run is still going skips that tick.
type Scheduler struct {
	heap    taskHeap
	mu      sync.Mutex
	wakeup  chan struct{}
	tasks   map[string]*task
	running map[string]bool
	skipped int

	ctx     context.Context
	cancel  context.CancelFunc
	jobWg   sync.WaitGroup
	loopWg  sync.WaitGroup
	stopped bool
	logger  *slog.Logger
}

func New(logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		heap:    make(taskHeap, 0),
		wakeup:  make(chan struct{}, 1),
		tasks:   make(map[string]*task),
		running: make(map[string]bool),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}
	heap.Init(&s.heap)
	return s
}

// Start starts the scheduling loop
func (s *Scheduler) Start() {
	s.loopWg.Add(1)
	go s.run()
}

// Stop cancels running jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.cancel()
	s.mu.Unlock()

	s.loopWg.Wait()
	s.jobWg.Wait()
}

// Schedule runs job once at runAt, replacing any task with the same id
func (s *Scheduler) Schedule(id string, runAt time.Time, job Job) error {
	return s.add(&task{id: id, runAt: runAt, job: job})
}

// ScheduleEvery runs job every interval, starting after firstDelay
func (s *Scheduler) ScheduleEvery(id string, interval, firstDelay time.Duration, job Job) error {
	if interval <= 0 {
		return errors.New("interval must be positive")
	}
	return s.add(&task{
		id:       id,
		runAt:    time.Now().Add(firstDelay),
		interval: interval,
		job:      job,
	})
}

func (s *Scheduler) add(t *task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}

	if existing, ok := s.tasks[t.id]; ok {
		heap.Remove(&s.heap, existing.index)
		delete(s.tasks, t.id)
	}

	heap.Push(&s.heap, t)
	s.tasks[t.id] = t

	if s.heap[0] == t {
		s.notify()
	}
	return nil
}

func (s *Scheduler) notify() {
	select {
	case s.wakeup <- struct{}{}:
	default:
	}
}

// Cancel removes a scheduled task. A run already in progress is not
// interrupted.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return false
	}

	heap.Remove(&s.heap, t.index)
	delete(s.tasks, id)
	return true
}

func (s *Scheduler) run() {
	defer s.loopWg.Done()

	for {
		s.mu.Lock()

		if s.stopped {
			s.mu.Unlock()
			return
		}

		wait := 24 * time.Hour
		if s.heap.Len() > 0 {
			next := s.heap[0]
			wait = time.Until(next.runAt)

			if wait <= 0 {
				t := heap.Pop(&s.heap).(*task)
				delete(s.tasks, t.id)
				s.fire(t)
				s.mu.Unlock()
				continue
			}
		}

		s.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-s.wakeup:
			timer.Stop()
		case <-s.ctx.Done():
			timer.Stop()
			return
		}
	}
}

// fire starts t and re-queues it when periodic. Called with mu held.
func (s *Scheduler) fire(t *task) {
	if t.interval > 0 {
		next := &task{id: t.id, runAt: t.runAt.Add(t.interval), interval: t.interval, job: t.job}
		now := time.Now()
		for !next.runAt.After(now) {
			next.runAt = next.runAt.Add(t.interval)
		}
		heap.Push(&s.heap, next)
		s.tasks[t.id] = next
	}

	if s.running[t.id] {
		s.skipped++
		s.logger.Warn("skipping job, previous run still in progress", "job", t.id)
		return
	}

	s.running[t.id] = true
	s.jobWg.Add(1)
	go func() {
		defer s.jobWg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.running, t.id)
			s.mu.Unlock()
		}()
		t.job(s.ctx)
	}()
}

// Stats contains statistics about the scheduler
type Stats struct {
	Scheduled int
	Running   int
	Skipped   int
}

// Stats returns statistics about the scheduler
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Scheduled: len(s.tasks),
		Running:   len(s.running),
		Skipped:   s.skipped,
	}
}
