package scheduler

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFn is the body of a scheduled task.
type TaskFn func()

// TaskInfo describes one registered task for the admin surface.
type TaskInfo struct {
	Name     string        `json:"name"`
	Interval time.Duration `json:"interval"`
}

type task struct {
	interval time.Duration
	ticker   *time.Ticker
	stop     chan struct{}
}

// Scheduler runs named background tasks on fixed intervals. The stale-check
// sweeper is its main tenant. Each task runs on its own goroutine and
// recovers from panics, so one bad tick cannot kill the task.
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[string]*task
	logger *zap.Logger
	stopCh chan struct{}
}

// New creates a new Scheduler.
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		tasks:  make(map[string]*task),
		stopCh: make(chan struct{}),
		logger: logger,
	}
}

// AddTicker registers a task to run every interval. Registering a name
// that already exists stops the old task first.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.tasks[name]; ok {
		close(old.stop)
		delete(s.tasks, name)
	}

	tk := &task{
		interval: interval,
		ticker:   time.NewTicker(interval),
		stop:     make(chan struct{}),
	}
	s.tasks[name] = tk

	go s.run(name, tk, fn)
	s.logger.Info("scheduler task registered",
		zap.String("name", name),
		zap.Duration("interval", interval))
}

func (s *Scheduler) run(name string, tk *task, fn TaskFn) {
	defer tk.ticker.Stop()
	for {
		select {
		case <-tk.ticker.C:
			s.invoke(name, fn)
		case <-tk.stop:
			return
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) invoke(name string, fn TaskFn) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler task panicked",
				zap.String("task", name),
				zap.Any("recover", r))
		}
	}()
	fn()
}

// Remove stops and removes a task by name. Reports whether it existed.
func (s *Scheduler) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	tk, ok := s.tasks[name]
	if !ok {
		return false
	}
	close(tk.stop)
	delete(s.tasks, name)
	return true
}

// Stop stops every task. Safe to call more than once.
func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

// Tasks returns the registered tasks sorted by name.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskInfo, 0, len(s.tasks))
	for name, tk := range s.tasks {
		out = append(out, TaskInfo{Name: name, Interval: tk.interval})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
