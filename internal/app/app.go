// Package app wires the components together: config, logging, storage,
// the Telegram adapter, the reminder scheduler, the control API and the
// retention job. It owns the startup and shutdown order.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"outagebot/internal/api"
	"outagebot/internal/bot"
	"outagebot/internal/config"
	"outagebot/internal/maintenance"
	"outagebot/internal/scheduler"
	"outagebot/internal/store"
	kit "outagebot/internal/transport"
	"outagebot/internal/transport/telegram"
	"outagebot/pkg/logx"
)

const updateChanSize = 256

type App struct {
	cfgm   *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	st      store.Store
	adapter *telegram.Adapter
	router  *bot.Router
	sched   *scheduler.Service
	apiSrv  *api.Server
	ret     *maintenance.Retention

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath, logx.NewConsole("info"))
	cfg, err := cfgm.Load()
	if err != nil {
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

	st, err := store.Open(store.Config{
		Path:        cfg.DatabasePath(),
		BusyTimeout: cfg.BusyTimeout(),
	}, logSvc.Logger())
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.PollTimeout(),
	}, logSvc.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		_ = st.Close()
		_ = logSvc.Close()
		return nil, err
	}

	sched := scheduler.New(schedulerConfig(cfg), st, ad, logSvc.Logger())
	router := bot.NewRouter(st, ad, logSvc.Logger())
	apiSrv := api.NewServer(api.Config{
		Addr:   cfg.API.Addr,
		Secret: cfg.API.Secret,
	}, sched, st, ad, logSvc.Logger())
	ret := maintenance.NewRetention(maintenance.Config{
		Enabled:  cfg.Retention.Enabled,
		Schedule: cfg.RetentionSchedule(),
		MaxAge:   cfg.RetentionMaxAge(),
	}, st, logSvc.Logger())

	a := &App{
		cfgm:    cfgm,
		logSvc:  logSvc,
		log:     log,
		st:      st,
		adapter: ad,
		router:  router,
		sched:   sched,
		apiSrv:  apiSrv,
		ret:     ret,
		updates: make(chan kit.Update, updateChanSize),
	}
	cfgm.OnChange = a.applyConfig
	return a, nil
}

func schedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		PollInterval: cfg.ReminderPollInterval(),
		SendTimeout:  cfg.ReminderSendTimeout(),
		RatePerSec:   cfg.Reminders.RatePerSec,
		GameURL:      cfg.Reminders.GameURL,
	}
}

// applyConfig hot-applies the reloadable subset: log level/sinks and
// scheduler knobs. Token, listen address and database path need a
// restart and are intentionally left alone.
func (a *App) applyConfig(cfg *config.Config) {
	a.logSvc.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	a.sched.Apply(schedulerConfig(cfg))
	a.log.Info("runtime config applied")
}

// Run starts every component, blocks until ctx is canceled, then shuts
// them down in reverse order. Inbound surfaces stop first so in-flight
// work can drain before storage closes.
func (a *App) Run(ctx context.Context) error {
	if err := a.adapter.Start(ctx, a.updates); err != nil {
		return err
	}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.router.Run(ctx, a.updates)
	}()
	go func() {
		defer wg.Done()
		a.sched.Run(ctx)
	}()
	if err := a.apiSrv.Start(); err != nil {
		return err
	}
	if err := a.ret.Start(); err != nil {
		a.log.Warn("retention start failed", logx.Err(err))
	}
	go func() {
		if err := a.cfgm.Watch(ctx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()
	go a.watchdog(ctx)

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("started")

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.shutdown(&wg)
	return nil
}

func (a *App) shutdown(wg *sync.WaitGroup) {
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.apiSrv.Shutdown(sctx); err != nil {
		a.log.Warn("api shutdown", logx.Err(err))
	}
	a.ret.Stop()
	if err := a.adapter.Stop(sctx); err != nil {
		a.log.Warn("telegram shutdown", logx.Err(err))
	}
	// The router and poll loop may still be finishing a handler or a
	// dispatch batch; storage closes only after both have returned.
	wg.Wait()
	if err := a.st.Close(); err != nil {
		a.log.Warn("store close", logx.Err(err))
	}
	a.log.Info("stopped")
	_ = a.logSvc.Close()
}

// watchdog pings systemd at half the configured WatchdogSec interval.
// No-op outside systemd or when the watchdog is not enabled.
func (a *App) watchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
