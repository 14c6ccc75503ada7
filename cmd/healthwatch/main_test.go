package main

import (
	"bytes"
	"context"
	"errors"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-healthwatch/internal/alert"
	"go-healthwatch/internal/config"
	"go-healthwatch/internal/logging"
	"go-healthwatch/internal/models"
	"go-healthwatch/internal/store"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append(args, "--env-file", "", "--log-level", "error"))
	err := root.Execute()
	return out.String(), err
}

type webhook struct {
	mu    sync.Mutex
	texts []string
}

func (w *webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	w.mu.Lock()
	w.texts = append(w.texts, body.Text)
	w.mu.Unlock()
}

func (w *webhook) all() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.texts...)
}

func TestConfigCmd_MasksSecrets(t *testing.T) {
	t.Setenv("WEBHOOK_URL", "https://chat.example/secret-token")
	t.Setenv("TARGET_DB_PASSWORD", "hunter2")

	out, err := execute(t, "config")

	assert.Error(t, err, "incomplete configuration fails validation")
	assert.Contains(t, out, "WEBHOOK_URL")
	assert.Contains(t, out, "****")
	assert.NotContains(t, out, "secret-token")
	assert.NotContains(t, out, "hunter2")
}

func TestRunCmd_InvalidConfig(t *testing.T) {
	t.Setenv("WEBHOOK_URL", "")
	t.Setenv("URLS", "")

	_, err := execute(t, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WEBHOOK_URL")
}

func TestRunAndAnalyze_EndToEnd(t *testing.T) {
	hook := &webhook{}
	chat := httptest.NewServer(hook)
	defer chat.Close()

	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer site.Close()

	dir := t.TempDir()
	statePath := filepath.Join(dir, "website_status.json")
	for k, v := range map[string]string{
		"WEBHOOK_URL":         chat.URL,
		"NOTIFIER_TYPE":       "slack",
		"URLS":                site.URL + ",http://127.0.0.1:1",
		"PROJECT_NAME":        "shop",
		"SERVER_NAME":         "web-1",
		"STATUS_STORE_DRIVER": "sqlite",
		"STATUS_STORE_PATH":   filepath.Join(dir, "status.db"),
		"TARGET_DB_HOST":      "127.0.0.1",
		"TARGET_DB_PORT":      "1",
		"TARGET_DB_NAME":      "app",
		"TARGET_DB_USER":      "reader",
		"DOWN_STATE_PATH":     statePath,
		"CPU_SAMPLE_INTERVAL": "10ms",
		"PROBE_TIMEOUT":       "2s",
		"CERT_TIMEOUT":        "2s",
		"CPU_MAX":             "101",
		"MEMORY_MAX":          "101",
		"DISK_MAX":            "101",
	} {
		t.Setenv(k, v)
	}

	out, err := execute(t, "run")
	require.NoError(t, err)
	assert.Contains(t, out, "Run ")
	assert.Contains(t, out, "Database web-1: inactive")

	data, err := os.ReadFile(statePath)
	require.NoError(t, err)
	var state models.DownState
	require.NoError(t, json.Unmarshal(data, &state))
	assert.Equal(t, 1, state["http://127.0.0.1:1"].DownCount)
	assert.Equal(t, 0, state[site.URL].DownCount)

	// site down plus no certificate on the plain HTTP site
	live := hook.all()
	assert.Len(t, live, 2)

	out, err = execute(t, "analyze")
	require.NoError(t, err)
	assert.Contains(t, out, "alerts raised")

	// inactive database, plus both website rows carrying days_left -1,
	// plus the down row's status
	assert.Len(t, hook.all()[len(live):], 4)
}

type countingProvider struct {
	texts []string
}

func (p *countingProvider) Send(_ context.Context, text string) error {
	p.texts = append(p.texts, text)
	return nil
}

func TestStoreHolder_ReopensAfterOutage(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "status.db")
	provider := &countingProvider{}
	n := alert.NewNotifier(provider, logging.Discard())

	opens := 0
	h := &storeHolder{
		open: func(ctx context.Context) (store.Store, error) {
			opens++
			if opens <= 2 {
				return nil, errors.New("connection refused")
			}
			return store.Open(ctx, store.DriverSQLite, path)
		},
		notifier: n,
		log:      logging.Discard(),
	}
	t.Cleanup(func() { h.Close() })

	cfg := &config.Config{CPUMax: 85, MemoryMax: 85, DiskMax: 85, SSLExpiryWarnDays: 15, AnalyzerWindow: 3 * time.Minute}
	tick := func() []string {
		return newAnalyzer(cfg, h.Get(ctx), n, logging.Discard()).Run(ctx)
	}

	// store down at startup and on the first tick
	assert.IsType(t, store.Unavailable{}, h.Get(ctx))
	assert.Len(t, tick(), 3, "every table query fails while the store is down")
	require.Len(t, provider.texts, 4)
	assert.Contains(t, provider.texts[0], "Database connection failed")

	// store comes up before the next tick
	assert.Empty(t, tick())
	st := h.Get(ctx)
	require.NoError(t, st.InsertServerHealth(ctx, models.ServerHealth{ServerName: "web-1", CPUPercent: 10, CheckedAt: time.Now()}))
	assert.Equal(t, 3, opens, "a working store is not reopened")

	rows, err := st.RecentServerHealth(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Len(t, provider.texts, 4, "the outage is alerted once")
}
