package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-healthwatch/internal/alert"
	"go-healthwatch/internal/db"
	"go-healthwatch/internal/downstate"
	"go-healthwatch/internal/logging"
	"go-healthwatch/internal/models"
	"go-healthwatch/internal/probe"
	"go-healthwatch/internal/threshold"
)

// --- fakes ---

type fakeProber struct {
	results map[string]probe.HTTPResult
	panics  map[string]bool
}

func (f *fakeProber) Probe(_ context.Context, url string) probe.HTTPResult {
	if f.panics[url] {
		panic("prober exploded")
	}
	if r, ok := f.results[url]; ok {
		return r
	}
	return probe.HTTPResult{URL: url, StatusCode: 200}
}

type fakeInspector struct {
	mu     sync.Mutex
	expiry time.Time
	err    error
	calls  []string
}

func (f *fakeInspector) Inspect(_ context.Context, host string) probe.CertResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, host)
	return probe.CertResult{Host: host, Expiry: f.expiry, Err: f.err}
}

type fakeNotifier struct {
	texts []string
}

func (f *fakeNotifier) Notify(_ context.Context, text string) bool {
	f.texts = append(f.texts, text)
	return true
}

func (f *fakeNotifier) Sent() int64   { return int64(len(f.texts)) }
func (f *fakeNotifier) Failed() int64 { return 0 }

type fakeWriter struct {
	sites   []models.WebsiteStatus
	dbs     []models.DatabaseHealth
	servers []models.ServerHealth
	err     error
}

func (f *fakeWriter) InsertWebsiteStatus(_ context.Context, row models.WebsiteStatus) error {
	f.sites = append(f.sites, row)
	return f.err
}

func (f *fakeWriter) InsertDatabaseHealth(_ context.Context, row models.DatabaseHealth) error {
	f.dbs = append(f.dbs, row)
	return f.err
}

func (f *fakeWriter) InsertServerHealth(_ context.Context, row models.ServerHealth) error {
	f.servers = append(f.servers, row)
	return f.err
}

type memStates struct {
	state models.DownState
	saves int
}

func (m *memStates) Load(context.Context) (models.DownState, error) {
	out := models.DownState{}
	for k, v := range m.state {
		out[k] = v
	}
	return out, nil
}

func (m *memStates) Save(_ context.Context, s models.DownState) error {
	m.state = s
	m.saves++
	return nil
}

type fakeTarget struct {
	pingErr error
	stats   db.Metrics
	err     error
}

func (f *fakeTarget) Ping(context.Context) error { return f.pingErr }
func (f *fakeTarget) Metrics(context.Context) (db.Metrics, error) {
	return f.stats, f.err
}

type fakeSampler struct {
	sample probe.Sample
	err    error
	panics bool
}

func (f *fakeSampler) Sample(context.Context) (probe.Sample, error) {
	if f.panics {
		panic("sampler exploded")
	}
	return f.sample, f.err
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newWebsiteMonitor(p Prober, i Inspector, w StatusWriter, n Notifier, s downstate.Store) *WebsiteMonitor {
	m := NewWebsiteMonitor(p, i, w, n, s, models.DefaultThresholds(), time.UTC, logging.Discard())
	m.now = func() time.Time { return fixedNow }
	return m
}

func downResult(url string) probe.HTTPResult {
	return probe.HTTPResult{URL: url, Err: errors.New("connection refused")}
}

// --- websites ---

func TestWebsiteMonitor_ConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	const url = "https://down.test"
	prober := &fakeProber{results: map[string]probe.HTTPResult{url: downResult(url)}}
	inspector := &fakeInspector{expiry: fixedNow.AddDate(0, 0, 90)}
	notifier := &fakeNotifier{}
	writer := &fakeWriter{}
	states := &memStates{}

	for i := 0; i < 3; i++ {
		m := newWebsiteMonitor(prober, inspector, writer, notifier, states)
		m.LoadState(ctx)
		m.Check(ctx, []string{url})
		m.SaveState(ctx)
	}

	rec := states.state[url]
	assert.Equal(t, 3, rec.DownCount)
	assert.Len(t, rec.TimeRanges, 3)
	assert.Equal(t, "2024-06-01 12:00:00", rec.TimeRanges[0])

	assert.Len(t, notifier.texts, 3)
	for _, text := range notifier.texts {
		assert.Contains(t, text, url)
		assert.Contains(t, text, "DOWN")
	}

	require.Len(t, writer.sites, 3)
	for _, row := range writer.sites {
		assert.Equal(t, models.HTTPStatusDown, row.HTTPStatus)
		assert.Equal(t, models.DaysUnknown, row.DaysLeft)
	}
	assert.Empty(t, inspector.calls, "certificate must not be inspected for a down site")
}

func TestWebsiteMonitor_UpDoesNotResetStreak(t *testing.T) {
	ctx := context.Background()
	const url = "https://flaky.test"
	states := &memStates{state: models.DownState{url: {DownCount: 2, TimeRanges: []string{"a", "b"}}}}
	m := newWebsiteMonitor(&fakeProber{}, &fakeInspector{expiry: fixedNow.AddDate(0, 0, 60)}, &fakeWriter{}, &fakeNotifier{}, states)

	m.LoadState(ctx)
	m.Check(ctx, []string{url})
	m.SaveState(ctx)

	assert.Equal(t, 2, states.state[url].DownCount)
}

func TestWebsiteMonitor_SeedsNewURLs(t *testing.T) {
	ctx := context.Background()
	states := &memStates{}
	m := newWebsiteMonitor(&fakeProber{}, &fakeInspector{expiry: fixedNow.AddDate(0, 0, 60)}, &fakeWriter{}, &fakeNotifier{}, states)

	m.LoadState(ctx)
	m.Check(ctx, []string{"https://new.test"})
	m.SaveState(ctx)

	rec, ok := states.state["https://new.test"]
	require.True(t, ok)
	assert.Equal(t, 0, rec.DownCount)
	assert.NotNil(t, rec.TimeRanges)
}

func TestWebsiteMonitor_Certificate(t *testing.T) {
	tests := []struct {
		name       string
		expiry     time.Time
		err        error
		wantDays   int
		wantAlerts int
		wantText   string
	}{
		{name: "valid", expiry: fixedNow.AddDate(0, 0, 40), wantDays: 40},
		{name: "at warn boundary", expiry: fixedNow.AddDate(0, 0, 15), wantDays: 15},
		{name: "expiring", expiry: fixedNow.AddDate(0, 0, 10), wantDays: 10, wantAlerts: 1, wantText: "expires in 10 days"},
		{name: "already expired", expiry: fixedNow.AddDate(0, 0, -3), wantDays: -3, wantAlerts: 1, wantText: "expires in -3 days"},
		{name: "unavailable", err: probe.ErrCertificate, wantDays: models.DaysUnknown, wantAlerts: 1, wantText: "Could not retrieve SSL certificate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inspector := &fakeInspector{expiry: tt.expiry, err: tt.err}
			notifier := &fakeNotifier{}
			writer := &fakeWriter{}
			m := newWebsiteMonitor(&fakeProber{}, inspector, writer, notifier, &memStates{})

			rows := m.Check(context.Background(), []string{"https://shop.test/path"})

			require.Len(t, rows, 1)
			assert.Equal(t, tt.wantDays, rows[0].DaysLeft)
			assert.Equal(t, models.HTTPStatusUp, rows[0].HTTPStatus)
			assert.Equal(t, []string{"shop.test"}, inspector.calls)
			require.Len(t, notifier.texts, tt.wantAlerts)
			if tt.wantAlerts > 0 {
				assert.Contains(t, notifier.texts[0], tt.wantText)
			}
			require.Len(t, writer.sites, 1)
			assert.Equal(t, tt.wantDays, writer.sites[0].DaysLeft)
		})
	}
}

func TestWebsiteMonitor_PanicIsolated(t *testing.T) {
	prober := &fakeProber{panics: map[string]bool{"https://bad.test": true}}
	writer := &fakeWriter{}
	m := newWebsiteMonitor(prober, &fakeInspector{expiry: fixedNow.AddDate(0, 0, 60)}, writer, &fakeNotifier{}, &memStates{})

	rows := m.Check(context.Background(), []string{"https://bad.test", "https://good.test"})

	require.Len(t, rows, 1)
	assert.Equal(t, "https://good.test", rows[0].URL)
	require.Len(t, writer.sites, 1)
}

func TestWebsiteMonitor_PersistFailureKeepsGoing(t *testing.T) {
	writer := &fakeWriter{err: errors.New("disk full")}
	m := newWebsiteMonitor(&fakeProber{}, &fakeInspector{expiry: fixedNow.AddDate(0, 0, 60)}, writer, &fakeNotifier{}, &memStates{})

	rows := m.Check(context.Background(), []string{"https://a.test", "https://b.test"})
	assert.Len(t, rows, 2)
}

func TestWebsiteMonitor_FileState(t *testing.T) {
	ctx := context.Background()
	const url = "https://down.test"
	fs := &downstate.FileStore{Path: filepath.Join(t.TempDir(), "website_status.json")}
	prober := &fakeProber{results: map[string]probe.HTTPResult{url: downResult(url)}}

	for i := 0; i < 2; i++ {
		m := newWebsiteMonitor(prober, &fakeInspector{}, &fakeWriter{}, &fakeNotifier{}, fs)
		m.LoadState(ctx)
		m.Check(ctx, []string{url})
		m.SaveState(ctx)
	}

	state, err := fs.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, state[url].DownCount)
}

// --- database ---

func newDatabaseMonitor(target TargetDB, w StatusWriter) *DatabaseMonitor {
	m := NewDatabaseMonitor(target, w, "shop", "orders-db", logging.Discard())
	m.now = func() time.Time { return fixedNow }
	return m
}

func TestDatabaseMonitor_Active(t *testing.T) {
	writer := &fakeWriter{}
	target := &fakeTarget{stats: db.Metrics{TotalConnections: 12, ActiveConnections: 3, TotalQueries: 9000}}
	m := newDatabaseMonitor(target, writer)

	assert.True(t, m.CheckConnectivity(context.Background()))
	rec := m.CollectMetrics(context.Background())

	assert.Equal(t, models.DBActive, rec.Status)
	require.Len(t, writer.dbs, 1)
	assert.Equal(t, models.DatabaseHealth{
		ProjectName: "shop", DBName: "orders-db", Status: models.DBActive,
		TotalConnections: 12, ActiveConnections: 3, TotalQueries: 9000, CheckedAt: fixedNow,
	}, writer.dbs[0])
}

func TestDatabaseMonitor_Unreachable(t *testing.T) {
	writer := &fakeWriter{}
	boom := errors.New("connection refused")
	m := newDatabaseMonitor(&fakeTarget{pingErr: boom, err: boom}, writer)

	assert.False(t, m.CheckConnectivity(context.Background()))
	rec := m.CollectMetrics(context.Background())

	assert.Equal(t, models.DBInactive, rec.Status)
	require.Len(t, writer.dbs, 1, "exactly one row even when unreachable")
	assert.Zero(t, writer.dbs[0].TotalConnections)
	assert.Zero(t, writer.dbs[0].ActiveConnections)
	assert.Zero(t, writer.dbs[0].TotalQueries)
	assert.Equal(t, "orders-db", writer.dbs[0].DBName)
}

// --- system ---

func newSystemMonitor(s Sampler, w StatusWriter, n Notifier) *SystemMonitor {
	m := NewSystemMonitor(s, w, n, models.DefaultThresholds(), "shop", "web-1", logging.Discard())
	m.now = func() time.Time { return fixedNow }
	return m
}

func TestSystemMonitor_HighCPU(t *testing.T) {
	writer := &fakeWriter{}
	notifier := &fakeNotifier{}
	m := newSystemMonitor(&fakeSampler{sample: probe.Sample{CPUPercent: 90, MemoryPercent: 40, DiskPercent: 50}}, writer, notifier)

	row, ok := m.Check(context.Background())

	require.True(t, ok)
	assert.Equal(t, 90.0, row.CPUPercent)
	require.Len(t, notifier.texts, 1)
	assert.Equal(t, alert.HighUsage(threshold.Decision{Metric: threshold.MetricCPU, Value: 90, Max: 85, Exceeded: true}, "web-1", "shop"), notifier.texts[0])
	require.Len(t, writer.servers, 1)
	assert.Equal(t, 90.0, writer.servers[0].CPUPercent)
	assert.Equal(t, "web-1", writer.servers[0].ServerName)
}

func TestSystemMonitor_BoundaryAlertsEveryMetric(t *testing.T) {
	notifier := &fakeNotifier{}
	m := newSystemMonitor(&fakeSampler{sample: probe.Sample{CPUPercent: 85, MemoryPercent: 85, DiskPercent: 85}}, &fakeWriter{}, notifier)

	_, ok := m.Check(context.Background())

	require.True(t, ok)
	require.Len(t, notifier.texts, 3)
	assert.Contains(t, notifier.texts[0], "CPU")
	assert.Contains(t, notifier.texts[1], "Memory")
	assert.Contains(t, notifier.texts[2], "Disk")
}

func TestSystemMonitor_SamplingFailure(t *testing.T) {
	writer := &fakeWriter{}
	notifier := &fakeNotifier{}
	m := newSystemMonitor(&fakeSampler{err: probe.ErrSample}, writer, notifier)

	_, ok := m.Check(context.Background())

	assert.False(t, ok)
	assert.Empty(t, writer.servers)
	require.Len(t, notifier.texts, 1)
	assert.Contains(t, notifier.texts[0], "web-1")
}

// --- runner ---

func TestRunner_Run(t *testing.T) {
	ctx := context.Background()
	notifier := &fakeNotifier{}
	writer := &fakeWriter{}
	states := &memStates{}
	prober := &fakeProber{results: map[string]probe.HTTPResult{"https://down.test": downResult("https://down.test")}}

	r := NewRunner(
		newWebsiteMonitor(prober, &fakeInspector{expiry: fixedNow.AddDate(0, 0, 60)}, writer, notifier, states),
		newDatabaseMonitor(&fakeTarget{stats: db.Metrics{TotalConnections: 1}}, writer),
		newSystemMonitor(&fakeSampler{sample: probe.Sample{CPUPercent: 10}}, writer, notifier),
		notifier,
		[]string{"https://up.test", "https://down.test"},
		logging.Discard(),
	)

	rep := r.Run(ctx)

	assert.NoError(t, rep.Err)
	assert.NotEmpty(t, rep.RunID)
	assert.Len(t, rep.Websites, 2)
	require.NotNil(t, rep.Database)
	assert.Equal(t, models.DBActive, rep.Database.Status)
	require.NotNil(t, rep.Server)
	assert.Equal(t, int64(1), rep.AlertsSent)
	assert.Equal(t, 1, states.saves)
	assert.Equal(t, 1, rep.DownState["https://down.test"].DownCount)
	assert.False(t, rep.Finished.Before(rep.Started))
}

func TestRunner_CrashSendsOneScriptError(t *testing.T) {
	ctx := context.Background()
	notifier := &fakeNotifier{}
	writer := &fakeWriter{}
	states := &memStates{}
	prober := &fakeProber{results: map[string]probe.HTTPResult{"https://down.test": downResult("https://down.test")}}

	r := NewRunner(
		newWebsiteMonitor(prober, &fakeInspector{}, writer, notifier, states),
		newDatabaseMonitor(&fakeTarget{}, writer),
		newSystemMonitor(&fakeSampler{panics: true}, writer, notifier),
		notifier,
		[]string{"https://down.test"},
		logging.Discard(),
	)

	rep := r.Run(ctx)

	require.Error(t, rep.Err)
	var scriptErrors int
	for _, text := range notifier.texts {
		if text == alert.ScriptError("sampler exploded") {
			scriptErrors++
		}
	}
	assert.Equal(t, 1, scriptErrors)
	assert.Equal(t, 1, states.saves, "down state is saved even after a crash")
	assert.Equal(t, 1, states.state["https://down.test"].DownCount)
	assert.Nil(t, rep.Server)
}

type panickyStates struct {
	memStates
}

func (p *panickyStates) Load(context.Context) (models.DownState, error) {
	panic("state file exploded")
}

func TestRunner_CrashWhileLoadingState(t *testing.T) {
	notifier := &fakeNotifier{}
	writer := &fakeWriter{}
	states := &panickyStates{}

	r := NewRunner(
		newWebsiteMonitor(&fakeProber{}, &fakeInspector{}, writer, notifier, states),
		newDatabaseMonitor(&fakeTarget{}, writer),
		newSystemMonitor(&fakeSampler{}, writer, notifier),
		notifier,
		[]string{"https://a.test"},
		logging.Discard(),
	)

	rep := r.Run(context.Background())

	require.Error(t, rep.Err)
	assert.Equal(t, []string{alert.ScriptError("state file exploded")}, notifier.texts)
	assert.Equal(t, int64(1), rep.AlertsSent)
	assert.False(t, rep.Finished.IsZero(), "completion is still recorded")
	assert.Zero(t, states.saves, "unloaded state must not overwrite the saved copy")
	assert.Empty(t, writer.sites)
}
