package main

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"go-healthwatch/internal/alert"
	"go-healthwatch/internal/analyzer"
	"go-healthwatch/internal/config"
	"go-healthwatch/internal/db"
	"go-healthwatch/internal/downstate"
	"go-healthwatch/internal/models"
	"go-healthwatch/internal/monitor"
	"go-healthwatch/internal/probe"
	"go-healthwatch/internal/store"
)

func newNotifier(ac models.AlertConfig, cfg *config.Config, logger *log.Logger) *alert.Notifier {
	p, err := alert.GetProvider(ac, cfg.NotifyTimeout)
	if err != nil {
		logger.Error("could not create notification provider, alerts will be dropped", "err", err)
	}
	return alert.NewNotifier(p, logger)
}

// openStore never fails: an unreachable status store is alerted once and
// replaced by store.Unavailable so the checks still run.
func openStore(ctx context.Context, cfg *config.Config, n *alert.Notifier, logger *log.Logger) (store.Store, bool) {
	st, err := store.Open(ctx, cfg.StatusStoreDriver, cfg.StatusStoreSource())
	if err != nil {
		logger.Error("could not open status store", "driver", cfg.StatusStoreDriver, "err", err)
		n.Notify(ctx, alert.StoreUnavailable(err))
		return store.Unavailable{Err: err}, false
	}
	return st, true
}

// storeHolder keeps the serve-mode status store. While the handle is
// store.Unavailable every Get tries to open it again, so a store that comes
// up after startup is picked up by the next scheduled pass. The outage is
// alerted once, when it starts.
type storeHolder struct {
	mu       sync.Mutex
	open     func(ctx context.Context) (store.Store, error)
	notifier *alert.Notifier
	log      *log.Logger

	st   store.Store
	down bool
}

func newStoreHolder(cfg *config.Config, n *alert.Notifier, logger *log.Logger) *storeHolder {
	return &storeHolder{
		open: func(ctx context.Context) (store.Store, error) {
			return store.Open(ctx, cfg.StatusStoreDriver, cfg.StatusStoreSource())
		},
		notifier: n,
		log:      logger.WithPrefix("store"),
	}
}

func (h *storeHolder) Get(ctx context.Context) store.Store {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, unavailable := h.st.(store.Unavailable); h.st != nil && !unavailable {
		return h.st
	}

	st, err := h.open(ctx)
	if err != nil {
		h.log.Error("could not open status store", "err", err)
		if !h.down {
			h.notifier.Notify(ctx, alert.StoreUnavailable(err))
		}
		h.down = true
		h.st = store.Unavailable{Err: err}
		return h.st
	}
	if h.down {
		h.log.Info("status store is reachable again")
	}
	h.down = false
	h.st = st
	return h.st
}

func (h *storeHolder) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.st == nil {
		return nil
	}
	return h.st.Close()
}

func newDownState(cfg *config.Config, st store.Store) downstate.Store {
	if cfg.DownStateBackend == "table" {
		return downstate.NewTableStore(st)
	}
	return &downstate.FileStore{Path: cfg.DownStatePath}
}

func newRunner(cfg *config.Config, st store.Store, n *alert.Notifier, logger *log.Logger) *monitor.Runner {
	t := cfg.Thresholds()

	websites := monitor.NewWebsiteMonitor(
		probe.NewHTTPProber(cfg.ProbeTimeout),
		probe.NewCertInspector(cfg.CertTimeout),
		st, n, newDownState(cfg, st), t, cfg.Location(), logger)

	databases := monitor.NewDatabaseMonitor(
		db.NewTarget(cfg.TargetDB.DSN(), cfg.TargetDB.ConnectTimeout),
		st, cfg.ProjectName, cfg.TargetDBIdentity, logger)

	system := monitor.NewSystemMonitor(
		probe.NewSystemSampler(cfg.CPUSampleInterval, cfg.DiskPath),
		st, n, t, cfg.ProjectName, cfg.ServerName, logger)

	return monitor.NewRunner(websites, databases, system, n, cfg.URLs, logger)
}

func newAnalyzer(cfg *config.Config, st store.Store, n *alert.Notifier, logger *log.Logger) *analyzer.Analyzer {
	return analyzer.New(st, n, cfg.Thresholds(), cfg.AnalyzerWindow, logger)
}
