package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go-healthwatch/internal/monitor"
	"go-healthwatch/internal/scheduler"
)

type ServerConfig struct {
	Port int
}

// State is the latest outcome of each pass, shared with the HTTP handlers.
type State struct {
	mu          sync.RWMutex
	lastRun     *monitor.Report
	lastAnalyze time.Time
	analyzed    []string
}

func (s *State) SetRun(r monitor.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun = &r
}

func (s *State) SetAnalysis(at time.Time, alerts []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAnalyze = at
	s.analyzed = alerts
}

type siteView struct {
	URL       string    `json:"url"`
	Status    string    `json:"status"`
	DaysLeft  int       `json:"days_left"`
	DownCount int       `json:"down_count"`
	CheckedAt time.Time `json:"checked_at"`
}

type health struct {
	Status         string               `json:"status"`
	LastRunID      string               `json:"last_run_id,omitempty"`
	LastRun        *time.Time           `json:"last_run,omitempty"`
	LastAnalyze    *time.Time           `json:"last_analyze,omitempty"`
	AnalyzerAlerts int                  `json:"analyzer_alerts"`
	Sites          []siteView           `json:"sites"`
	Tasks          []scheduler.TaskInfo `json:"tasks,omitempty"`
}

func (s *State) snapshot() health {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := health{Status: "ok", AnalyzerAlerts: len(s.analyzed), Sites: []siteView{}}
	if !s.lastAnalyze.IsZero() {
		at := s.lastAnalyze
		h.LastAnalyze = &at
	}
	if s.lastRun == nil {
		h.Status = "starting"
		return h
	}

	h.LastRunID = s.lastRun.RunID
	finished := s.lastRun.Finished
	h.LastRun = &finished
	if s.lastRun.Err != nil {
		h.Status = "degraded"
	}
	for _, w := range s.lastRun.Websites {
		status := "UP"
		if !w.Up() {
			status = "DOWN"
		}
		h.Sites = append(h.Sites, siteView{
			URL:       w.URL,
			Status:    status,
			DaysLeft:  w.DaysLeft,
			DownCount: s.lastRun.DownState[w.URL].DownCount,
			CheckedAt: w.CheckedAt,
		})
	}
	sort.Slice(h.Sites, func(i, j int) bool {
		if h.Sites[i].Status != h.Sites[j].Status {
			return h.Sites[i].Status == "DOWN"
		}
		return h.Sites[i].URL < h.Sites[j].URL
	})
	return h
}

type Server struct {
	cfg   ServerConfig
	state *State
	tasks func() []scheduler.TaskInfo
	log   *log.Logger
	http  *http.Server
}

// New wires the health and metrics endpoints. tasks may be nil.
func New(cfg ServerConfig, state *State, tasks func() []scheduler.TaskInfo, logger *log.Logger) *Server {
	s := &Server{cfg: cfg, state: state, tasks: tasks, log: logger.WithPrefix("http")}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.state.snapshot()
	if s.tasks != nil {
		h.Tasks = s.tasks()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h); err != nil {
		s.log.Error("could not encode health", "err", err)
	}
}

// Start listens in the background. Listen errors other than a clean shutdown
// are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	s.log.Info("HTTP server listening", "addr", ln.Addr().String())
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server stopped", "err", err)
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
