// Package schedule triggers the recurring jobs: the daily digest run and
// the hourly counter report.
package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "siftgram/pkg/logx"
)

type Config struct {
	Timezone string // IANA TZ, e.g. "Asia/Jakarta"; empty means local time
}

// Job is one recurring trigger. Spec is a cron expression; 5-field,
// 6-field (with seconds) and descriptors like "@hourly" are accepted.
type Job struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

type Service struct {
	mu sync.Mutex

	cfg Config
	log logx.Logger

	parser cron.Parser
	loc    *time.Location
	c      *cron.Cron
	jobs   []Job

	base context.Context
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// ValidSpec checks a cron spec against the syntax Add accepts. Config
// validators use it to reject bad specs before they reach a Service.
func ValidSpec(spec string) error {
	p := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	_, err := p.Parse(strings.TrimSpace(spec))
	return err
}

// Add registers a job. The spec is validated immediately; a bad spec is a
// configuration error the caller should surface at startup.
func (s *Service) Add(j Job) error {
	if j.Run == nil {
		return fmt.Errorf("job %q has no run function", j.Name)
	}
	if _, err := s.parser.Parse(j.Spec); err != nil {
		return fmt.Errorf("job %q: invalid schedule %q: %w", j.Name, j.Spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, j)
	if s.c != nil {
		return s.addJobLocked(j)
	}
	return nil
}

// Start begins triggering. Jobs run on the cron goroutines with ctx as
// their base context; Stop or ctx cancellation ends them.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.base = ctx

	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	for _, j := range s.jobs {
		_ = s.addJobLocked(j)
	}
	s.c.Start()
	s.log.Info("service started", logx.String("tz", loc.String()), logx.Int("jobs", len(s.jobs)))
}

// Stop halts triggering and waits for running jobs, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.base = nil
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			// best-effort
		}
	}
	s.log.Info("service stopped")
}

func (s *Service) addJobLocked(j Job) error {
	_, err := s.c.AddFunc(j.Spec, func() { s.runJob(j) })
	return err
}

func (s *Service) runJob(j Job) {
	s.mu.Lock()
	ctx := s.base
	s.mu.Unlock()
	if ctx == nil {
		return
	}

	start := time.Now()
	runCtx := ctx
	var cancel context.CancelFunc
	if j.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	if err := j.Run(runCtx); err != nil {
		s.log.Warn("job failed",
			logx.String("job", j.Name),
			logx.Duration("took", time.Since(start)),
			logx.Err(err))
		return
	}
	s.log.Debug("job ok", logx.String("job", j.Name), logx.Duration("took", time.Since(start)))
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
