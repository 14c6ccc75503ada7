package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"go-healthwatch/internal/alert"
	"go-healthwatch/internal/metrics"
	"go-healthwatch/internal/models"
)

// Report summarises one run.
type Report struct {
	RunID    string
	Started  time.Time
	Finished time.Time

	Websites  []models.WebsiteStatus
	Database  *models.DatabaseHealth
	Server    *models.ServerHealth
	DownState models.DownState

	AlertsSent   int64
	AlertsFailed int64

	// Err is set when the run crashed and a script error alert was sent.
	Err error
}

type alertCounter interface {
	Sent() int64
	Failed() int64
}

// Runner executes one sequential monitoring pass.
type Runner struct {
	websites  *WebsiteMonitor
	databases *DatabaseMonitor
	system    *SystemMonitor
	notifier  Notifier
	urls      []string
	log       *log.Logger
}

func NewRunner(w *WebsiteMonitor, d *DatabaseMonitor, s *SystemMonitor, n Notifier, urls []string, logger *log.Logger) *Runner {
	return &Runner{
		websites:  w,
		databases: d,
		system:    s,
		notifier:  n,
		urls:      urls,
		log:       logger.WithPrefix("runner"),
	}
}

// Run checks websites, the monitored database and the host, then saves the
// down state. A crash anywhere sends one script error alert; the run still
// saves any loaded state and reports completion.
func (r *Runner) Run(ctx context.Context) (rep Report) {
	rep.RunID = uuid.NewString()
	rep.Started = time.Now()
	logger := r.log.With("run", rep.RunID)

	var sent0, failed0 int64
	counter, counting := r.notifier.(alertCounter)
	if counting {
		sent0, failed0 = counter.Sent(), counter.Failed()
	}

	logger.Info("starting monitoring run", "urls", len(r.urls))

	// State that was never loaded is not saved over the persisted copy.
	var loaded bool
	defer func() {
		if p := recover(); p != nil {
			rep.Err = fmt.Errorf("%v", p)
			logger.Error("monitoring run crashed", "panic", p)
			r.notifier.Notify(ctx, alert.ScriptError(p))
		}
		if loaded {
			r.websites.SaveState(ctx)
		}
		rep.DownState = r.websites.State()
		rep.Finished = time.Now()
		if counting {
			rep.AlertsSent = counter.Sent() - sent0
			rep.AlertsFailed = counter.Failed() - failed0
		}
		metrics.LastRun.WithLabelValues("run").SetToCurrentTime()
		logger.Info("monitoring run completed",
			"duration", rep.Finished.Sub(rep.Started).Round(time.Millisecond),
			"alerts_sent", rep.AlertsSent,
			"alerts_failed", rep.AlertsFailed)
	}()

	r.websites.LoadState(ctx)
	loaded = true
	rep.Websites = r.websites.Check(ctx, r.urls)

	r.databases.CheckConnectivity(ctx)
	dbRec := r.databases.CollectMetrics(ctx)
	rep.Database = &dbRec

	if row, ok := r.system.Check(ctx); ok {
		rep.Server = &row
	}
	return rep
}
