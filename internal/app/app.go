// Package app wires the bot together and owns its lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"partybot/internal/config"
	"partybot/internal/party"
	"partybot/internal/stamina"
	"partybot/internal/storage"
	"partybot/internal/transport/telegram"
	"partybot/pkg/logx"
)

type App struct {
	cfgPath string
	log     logx.Logger

	store   storage.Store
	adapter *telegram.Adapter
	cron    *cron.Cron
}

func New(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	log := logx.New(cfg.Logging.Level)

	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.Storage.BusyTimeout.Std(),
	}, log.With(logx.String("component", "storage")))
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.Telegram.PollTimeout.Std(),
		RatePerSec:  cfg.Telegram.NotifyRatePerSec,
	}, log.With(logx.String("component", "telegram")))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("creating telegram adapter: %w", err)
	}

	sync := party.NewSynchronizer(store, adapter, log.With(logx.String("component", "sync")))
	svc := party.NewService(store, sync, cfg.AdminSecret, log.With(logx.String("component", "party")))
	wiz := party.NewWizard(store, sync, adapter, cfg.Telegram.PartyChatID, log.With(logx.String("component", "wizard")))

	regen := stamina.Config{
		Period:     cfg.Stamina.Period.Std(),
		Cap:        cfg.Stamina.Cap,
		Thresholds: cfg.Stamina.Thresholds,
	}
	monitor := stamina.NewMonitor(store, adapter, regen, log.With(logx.String("component", "stamina")))
	reminder := party.NewReminder(store, adapter, cfg.Party.ReminderLead.Std(), log.With(logx.String("component", "reminder")))

	router := telegram.NewRouter(adapter, store, svc, wiz, regen, cfg.AdminSecret, log)
	router.Register()

	// Two independent fixed-interval sweeps. Each run gets its own
	// timeout so a stuck Telegram call cannot wedge the cron slot.
	c := cron.New()
	addSweep := func(name string, every time.Duration, fn func(ctx context.Context, now time.Time)) error {
		_, err := c.AddFunc(fmt.Sprintf("@every %s", every), func() {
			ctx, cancel := context.WithTimeout(context.Background(), every)
			defer cancel()
			fn(ctx, time.Now())
		})
		if err != nil {
			return fmt.Errorf("scheduling %s sweep: %w", name, err)
		}
		return nil
	}
	if err := addSweep("reminder", cfg.Party.SweepInterval.Std(), reminder.Sweep); err != nil {
		_ = store.Close()
		return nil, err
	}
	if err := addSweep("stamina", cfg.Stamina.SweepInterval.Std(), monitor.Sweep); err != nil {
		_ = store.Close()
		return nil, err
	}

	return &App{cfgPath: cfgPath, log: log, store: store, adapter: adapter, cron: c}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.adapter.Start(ctx)
	a.cron.Start()

	// Log level follows the config file without a restart.
	if err := config.Watch(ctx, a.cfgPath, a.log, func(cfg *config.Config) {
		logx.SetGlobalLevel(cfg.Logging.Level)
	}); err != nil {
		a.log.Warn("config watch unavailable", logx.Err(err))
	}

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("partybot started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx := a.cron.Stop() // lets in-flight sweeps finish
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}

	a.adapter.Stop()
	err := a.store.Close()
	a.log.Info("partybot stopped")
	return err
}
