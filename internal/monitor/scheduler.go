package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	"cabinair/internal/metrics"

	"github.com/go-co-op/gocron"
)

// Poller runs one monitoring cycle
type Poller interface {
	Poll(ctx context.Context) error
}

// Scheduler triggers Poll every interval, starting immediately.
// A tick that arrives while the previous cycle is still running is skipped.
type Scheduler struct {
	scheduler *gocron.Scheduler
	poller    Poller
	interval  time.Duration

	running sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a Scheduler for poller
func NewScheduler(poller Poller, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	s := gocron.NewScheduler(time.UTC)
	s.SetMaxConcurrentJobs(1, gocron.RescheduleMode)

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: s,
		poller:    poller,
		interval:  interval,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start schedules the periodic job and starts the underlying scheduler
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Every(s.interval).Do(s.tick); err != nil {
		return err
	}

	log.Printf("scheduler: polling every %s", s.interval)
	s.scheduler.StartAsync()
	return nil
}

// tick runs one cycle unless the previous one is still in flight
func (s *Scheduler) tick() {
	if !s.running.TryLock() {
		metrics.PollCyclesSkipped.Inc()
		log.Println("scheduler: previous cycle still running, skipping tick")
		return
	}
	defer s.running.Unlock()

	if s.ctx.Err() != nil {
		return
	}

	if err := s.poller.Poll(s.ctx); err != nil {
		log.Printf("scheduler: %v", err)
	}
}

// Stop stops future ticks and cancels the cycle in flight
func (s *Scheduler) Stop() {
	s.cancel()
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
