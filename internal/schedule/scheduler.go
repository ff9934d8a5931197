// Package schedule runs named jobs on cron specs.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"adekit/internal/logger"
)

// Job is a unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs jobs on a schedule until stopped.
type Scheduler interface {
	AddJob(job Job, spec string) error
	Start(ctx context.Context)
	Stop()
}

// CronScheduler is a Scheduler backed by robfig/cron with five-field specs.
// A job whose previous run is still in progress is skipped.
type CronScheduler struct {
	cron *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
	ctx     context.Context
}

func NewCronScheduler() *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &CronScheduler{
		cron:    cron.New(cron.WithParser(parser)),
		entries: make(map[string]cron.EntryID),
		ctx:     context.Background(),
	}
}

func (c *CronScheduler) AddJob(job Job, spec string) error {
	name := job.Name()
	log := zap.L().With(zap.String("job", name), zap.String("spec", spec))

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[name]; ok {
		return fmt.Errorf("job %q already scheduled", name)
	}
	entryID, err := c.cron.AddFunc(spec, c.wrap(job, spec))
	if err != nil {
		log.Error("schedule job failed", zap.Error(err))
		return fmt.Errorf("scheduling %s: %w", name, err)
	}
	c.entries[name] = entryID
	log.Info("job scheduled")
	return nil
}

// Next returns the next run time of the named job.
func (c *CronScheduler) Next(name string) (time.Time, bool) {
	c.mu.Lock()
	id, ok := c.entries[name]
	c.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return c.cron.Entry(id).Next, true
}

func (c *CronScheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()
	c.cron.Start()
}

// Stop halts the scheduler and waits for running jobs.
func (c *CronScheduler) Stop() {
	<-c.cron.Stop().Done()
}

func (c *CronScheduler) wrap(job Job, spec string) func() {
	var running atomic.Bool
	return func() {
		c.mu.Lock()
		ctx := c.ctx
		c.mu.Unlock()
		log := logger.FromContext(ctx).With(
			zap.String("job", job.Name()),
			zap.String("spec", spec),
		)

		if !running.CompareAndSwap(false, true) {
			log.Info("job skipped: still running")
			return
		}
		defer running.Store(false)

		_ = RunOnce(logger.WithContext(ctx, log), job)
	}
}

// RunOnce runs job immediately with the same logging as a scheduled run.
func RunOnce(ctx context.Context, job Job) error {
	log := logger.FromContext(ctx)
	start := time.Now()
	log.Info("job started")
	err := job.Run(ctx)
	elapsed := time.Since(start)
	if err != nil {
		log.Error("job finished", zap.Error(err), zap.Duration("duration", elapsed))
		return err
	}
	log.Info("job finished", zap.Duration("duration", elapsed))
	return nil
}
