// Package app assembles the service: config, logging, the Telegram intake
// adapter, the filter pipeline, the digest generator and the periodic jobs.
// It owns startup order, config hot-reload fan-out and shutdown sequencing.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"siftgram/internal/config"
	"siftgram/internal/digest"
	"siftgram/internal/eventbus"
	"siftgram/internal/journal"
	"siftgram/internal/lookup"
	pprofsvc "siftgram/internal/observability/pprof"
	"siftgram/internal/pipeline"
	"siftgram/internal/platform"
	"siftgram/internal/platform/telegram"
	"siftgram/internal/policy"
	"siftgram/internal/runtime/supervisor"
	"siftgram/internal/schedule"
	"siftgram/internal/storage"
	"siftgram/internal/summarize"
	logx "siftgram/pkg/logx"
)

const (
	defaultPollTimeout  = 10 * time.Second
	defaultDigestSpec   = "0 8 * * *"
	defaultCountersSpec = "@hourly"

	// digest runs read a week of journal and may wait on the LLM.
	digestJobTimeout   = 10 * time.Minute
	countersJobTimeout = 30 * time.Second

	eventBuffer = 256
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	client *telegram.Adapter
	store  storage.Store

	resolver *lookup.Resolver
	dedup    *lookup.Dedup
	writer   *journal.Writer
	pol      *policy.Policy
	pipe     *pipeline.Pipeline
	back     *pipeline.Backfill
	gen      *digest.Generator
	arch     *storage.Archiver
	sched    *schedule.Service
	pprof    *pprofsvc.Service

	events chan platform.Message
}

// NewApp loads the config and builds every component. It talks to the
// network once (the Telegram identity check) but starts nothing; Start
// brings the service up.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	token := strings.TrimSpace(cfg.Telegram.Token)
	if token == "" {
		token = strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN"))
	}
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, defaultPollTimeout)
	if err != nil {
		return nil, err
	}
	client, err := telegram.New(telegram.Config{
		Token:       token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}
	self := client.Self()
	log.Info("authenticated",
		logx.Int64("id", self.ID),
		logx.String("username", self.Username))

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	resolver, err := lookup.New(client, lookup.Options{})
	if err != nil {
		return nil, err
	}
	dedup := lookup.NewDedup(cfg.Journal.DedupSize)

	// Folder data makes the exclude_folders mode effective; backends
	// without dialog listing degrade to an empty index.
	fctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	folders := folderIndex(fctx, client, log)
	cancel()

	mode := policy.Build(policy.Params{
		Mode:             cfg.Filter.Mode,
		BlockAllChannels: cfg.Filter.BlockAllChannels,
		Keywords:         cfg.Filter.ExcludeKeywords,
		Folders:          cfg.Filter.ExcludeFolders,
		AllowIDs:         cfg.Filter.AllowChatIDs,
	}, folders, log.With(logx.String("comp", "policy")))
	pol := policy.New(mode, self)

	if strings.TrimSpace(cfg.Journal.Dir) == "" {
		return nil, fmt.Errorf("journal.dir is required")
	}
	writer := journal.NewWriter(cfg.Journal.Dir, cfg.Journal.Prefix)

	pipe := pipeline.New(pol, resolver, dedup, writer, bus, log.With(logx.String("comp", "pipeline")))

	var back *pipeline.Backfill
	if cfg.Backfill.Enabled {
		back = pipeline.NewBackfill(client, pipe, pol, resolver, cfg.Backfill.HistoryLimit,
			log.With(logx.String("comp", "backfill")))
	}

	var sum digest.Summarizer
	if key := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); key != "" {
		scfg, err := mapSummarizerConfig(cfg)
		if err != nil {
			return nil, err
		}
		scfg.APIKey = key
		cl, err := summarize.NewClient(scfg, log.With(logx.String("comp", "summarize")))
		if err != nil {
			return nil, err
		}
		sum = cl
	} else {
		log.Info("OPENAI_API_KEY not set, digests use the fallback report")
	}

	gen := digest.NewGenerator(digest.Options{
		JournalDir: cfg.Journal.Dir,
		Prefix:     cfg.Journal.Prefix,
		ReportDir:  cfg.Digest.ReportDir,
		WindowDays: cfg.Digest.WindowDays,
		Mode:       pol.ModeName(),
		DeliverTo:  cfg.Digest.DeliverTo,
	}, sum, client, bus, log.With(logx.String("comp", "digest")))

	var arch *storage.Archiver
	if store != nil {
		arch = storage.NewArchiver(store, bus, log.With(logx.String("comp", "archive")))
	}

	sched := schedule.New(schedule.Config{Timezone: cfg.Schedule.Timezone},
		log.With(logx.String("comp", "schedule")))

	ppc, err := mapPprofConfig(cfg)
	if err != nil {
		return nil, err
	}
	pprofSvc := pprofsvc.New(ppc, log.With(logx.String("comp", "pprof")))

	return &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		client:   client,
		store:    store,
		resolver: resolver,
		dedup:    dedup,
		writer:   writer,
		pol:      pol,
		pipe:     pipe,
		back:     back,
		gen:      gen,
		arch:     arch,
		sched:    sched,
		pprof:    pprofSvc,
		events:   make(chan platform.Message, eventBuffer),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error
// or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true))

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateConfig(cfg)
	})

	if err := a.client.Start(a.sup.Context(), a.events); err != nil {
		return err
	}

	a.sup.Go("pipeline.run", func(c context.Context) error {
		return a.pipe.Run(c, a.events)
	})

	if a.back != nil {
		a.sup.Go0("pipeline.backfill", func(c context.Context) {
			if err := a.back.Run(c); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("backfill aborted", logx.Err(err))
			}
		})
	}

	if a.arch != nil {
		a.sup.Go("storage.archive", a.arch.Run)
	}

	if err := a.addJobs(); err != nil {
		return err
	}
	a.sched.Start(a.sup.Context())

	a.pprof.RegisterState("pipeline", func() any { return a.pipe.Snapshot() })
	a.pprof.RegisterState("supervisor", func() any { return a.sup.Snapshot() })
	a.pprof.RegisterState("telegram", func() any {
		if s := a.client.Supervisor(); s != nil {
			return s.Snapshot()
		}
		return nil
	})
	if a.pprof.Enabled() {
		a.pprof.Start(a.sup.Context())
	}

	// Observability tap: every bus event at debug level.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("topic", string(e.Topic)), logx.Time("time", e.Time))
			}
		}
	})

	// Hot reload config fan-out.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(c, last, newCfg)
				last = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("started", logx.String("mode", a.pol.ModeName()))
	return nil
}

func (a *App) addJobs() error {
	cfg := a.cfgm.Get()

	dspec := strings.TrimSpace(cfg.Schedule.Digest)
	if dspec == "" {
		dspec = defaultDigestSpec
	}
	if err := a.sched.Add(schedule.Job{
		Name:    "digest.daily",
		Spec:    dspec,
		Timeout: digestJobTimeout,
		Run: func(c context.Context) error {
			_, err := a.gen.Generate(c)
			return err
		},
	}); err != nil {
		return err
	}

	cspec := strings.TrimSpace(cfg.Schedule.Counters)
	if cspec == "" {
		cspec = defaultCountersSpec
	}
	return a.sched.Add(schedule.Job{
		Name:    "counters.report",
		Spec:    cspec,
		Timeout: countersJobTimeout,
		Run: func(c context.Context) error {
			a.pipe.ReportCounters()
			return nil
		},
	})
}

// applyConfig applies one committed reload. Only logging and pprof apply
// live; every other section needs a restart and is called out as such.
func (a *App) applyConfig(ctx context.Context, old, cur *config.Config) {
	changed, attrs := config.SummarizeConfigChange(old, cur)
	if len(changed) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(changed, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	hot, cold := config.SplitHotCold(changed)
	if len(cold) > 0 {
		a.log.Warn("restart required for changes to take effect",
			logx.String("sections", strings.Join(cold, ",")))
	}

	for _, s := range hot {
		switch s {
		case "logging":
			a.logs.Apply(logx.Config{
				Level:   cur.Logging.Level,
				Console: cur.Logging.Console,
				File: logx.FileConfig{
					Enabled: cur.Logging.File.Enabled,
					Path:    cur.Logging.File.Path,
				},
			})
		case "pprof":
			ppc, err := mapPprofConfig(cur)
			if err != nil {
				a.log.Warn("invalid pprof config, keeping previous", logx.Err(err))
				continue
			}
			a.pprof.Reconfigure(ctx, ppc)
		}
	}

	a.log.Info("config reloaded", fields...)
}

// DigestNow runs one digest immediately. It works without Start; the
// -digest-now flag uses it for one-shot runs.
func (a *App) DigestNow(ctx context.Context) (digest.Report, error) {
	return a.gen.Generate(ctx)
}

// Close releases resources when Start was never called. A started app
// goes through Stop instead.
func (a *App) Close() error {
	var err error
	if a.store != nil {
		err = a.store.Close()
	}
	if a.logs != nil {
		a.logs.Close()
	}
	return err
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// step runs one shutdown stage with an upper bound so a single
	// component cannot stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// Respect the caller's deadline; never extend it.
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			// Contract: fn must honor stepCtx and return promptly. If it
			// does not, log the leak when it eventually finishes.
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)))
			go func() {
				err := <-done
				if err != nil {
					a.log.Warn("stop step finished after deadline",
						logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
				} else {
					a.log.Info("stop step finished after deadline",
						logx.String("name", name), logx.Duration("took", time.Since(start)))
				}
			}()
		}
	}

	// Stop triggers first, then intake, then wait for the pipeline and
	// the archiver to drain before the store closes underneath them.
	step("schedule", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("telegram", 2*time.Second, func(c context.Context) error { return a.client.Stop(c) })
	step("pprof", time.Second, func(c context.Context) error { a.pprof.Stop(c); return nil })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

// folderIndex builds the chat-to-folder map the exclude_folders mode
// reads. Backends without dialog listing yield a nil index.
func folderIndex(ctx context.Context, client platform.Client, log logx.Logger) map[int64]string {
	dialogs, err := client.Dialogs(ctx)
	if err != nil {
		if errors.Is(err, platform.ErrUnsupported) {
			log.Debug("backend has no dialog listing, folder data unavailable")
		} else {
			log.Warn("dialog listing failed, folder data unavailable", logx.Err(err))
		}
		return nil
	}
	out := make(map[int64]string, len(dialogs))
	for _, d := range dialogs {
		if d.Folder != "" {
			out[d.ChatID] = d.Folder
		}
	}
	return out
}
