package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pressly/goose/v3"

	"go-healthwatch/internal/models"
	"go-healthwatch/internal/store/migrations"
)

// sqlStore holds the queries common to both dialects. Queries are written
// with '?' placeholders and rebound for postgres.
type sqlStore struct {
	db       *sql.DB
	numbered bool
	dialect  string
	migrDir  string
}

var gooseMu sync.Mutex

func (s *sqlStore) migrate(ctx context.Context) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(s.dialect); err != nil {
		return fmt.Errorf("%w: set dialect: %v", ErrPersistence, err)
	}
	if err := goose.UpContext(ctx, s.db, s.migrDir); err != nil {
		return fmt.Errorf("%w: migrate: %v", ErrPersistence, err)
	}
	return nil
}

func (s *sqlStore) q(query string) string {
	if !s.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) exec(ctx context.Context, what, query string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, s.q(query), args...); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPersistence, what, err)
	}
	return nil
}

func (s *sqlStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// --- WEBSITES ---

func (s *sqlStore) InsertWebsiteStatus(ctx context.Context, row models.WebsiteStatus) error {
	if row.HTTPStatus == models.HTTPStatusDown {
		row.DaysLeft = models.DaysUnknown
	}
	return s.exec(ctx, "insert website status",
		"INSERT INTO ssl_certificate_status (url, days_left, http_status, checked_at) VALUES (?, ?, ?, ?)",
		row.URL, row.DaysLeft, row.HTTPStatus, row.CheckedAt.UTC())
}

func (s *sqlStore) RecentWebsiteStatuses(ctx context.Context, since time.Time) ([]models.WebsiteStatus, error) {
	rows, err := s.db.QueryContext(ctx, s.q(
		"SELECT id, url, days_left, http_status, checked_at FROM ssl_certificate_status WHERE checked_at >= ? ORDER BY checked_at, id"),
		since.UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: query website status: %v", ErrPersistence, err)
	}
	defer rows.Close()

	var out []models.WebsiteStatus
	for rows.Next() {
		var w models.WebsiteStatus
		var at timestamp
		if err := rows.Scan(&w.ID, &w.URL, &w.DaysLeft, &w.HTTPStatus, &at); err != nil {
			return nil, fmt.Errorf("%w: scan website status: %v", ErrPersistence, err)
		}
		w.CheckedAt = at.Time
		out = append(out, w)
	}
	return out, rowsErr(rows, "website status")
}

// --- DATABASE HEALTH ---

func (s *sqlStore) InsertDatabaseHealth(ctx context.Context, row models.DatabaseHealth) error {
	return s.exec(ctx, "insert database health",
		`INSERT INTO db_monitoring (project_name, db_name, db_status, total_connections, active_connections, total_queries, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		row.ProjectName, row.DBName, string(row.Status), row.TotalConnections, row.ActiveConnections, row.TotalQueries, row.CheckedAt.UTC())
}

// LatestDatabaseHealth returns, per db_name, the most recent row checked at or
// after since. Ties on checked_at resolve to the highest id.
func (s *sqlStore) LatestDatabaseHealth(ctx context.Context, since time.Time) ([]models.DatabaseHealth, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		WITH latest_entries AS (
			SELECT id, project_name, db_name, db_status, total_connections, active_connections, total_queries, checked_at,
				ROW_NUMBER() OVER (PARTITION BY db_name ORDER BY checked_at DESC, id DESC) AS rn
			FROM db_monitoring
			WHERE checked_at >= ?
		)
		SELECT id, project_name, db_name, db_status, total_connections, active_connections, total_queries, checked_at
		FROM latest_entries
		WHERE rn = 1
		ORDER BY db_name`), since.UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: query database health: %v", ErrPersistence, err)
	}
	defer rows.Close()

	var out []models.DatabaseHealth
	for rows.Next() {
		var d models.DatabaseHealth
		var status string
		var at timestamp
		if err := rows.Scan(&d.ID, &d.ProjectName, &d.DBName, &status, &d.TotalConnections, &d.ActiveConnections, &d.TotalQueries, &at); err != nil {
			return nil, fmt.Errorf("%w: scan database health: %v", ErrPersistence, err)
		}
		d.Status = models.DBStatus(status)
		d.CheckedAt = at.Time
		out = append(out, d)
	}
	return out, rowsErr(rows, "database health")
}

// --- SERVER HEALTH ---

func (s *sqlStore) InsertServerHealth(ctx context.Context, row models.ServerHealth) error {
	return s.exec(ctx, "insert server health",
		`INSERT INTO server_health (project_name, server_name, cpu_usage_percent, memory_usage_percent, disk_usage_percent, checked_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		row.ProjectName, row.ServerName, row.CPUPercent, row.MemoryPercent, row.DiskPercent, row.CheckedAt.UTC())
}

func (s *sqlStore) RecentServerHealth(ctx context.Context, since time.Time) ([]models.ServerHealth, error) {
	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT id, project_name, server_name, cpu_usage_percent, memory_usage_percent, disk_usage_percent, checked_at
		FROM server_health WHERE checked_at >= ? ORDER BY checked_at, id`), since.UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: query server health: %v", ErrPersistence, err)
	}
	defer rows.Close()

	var out []models.ServerHealth
	for rows.Next() {
		var h models.ServerHealth
		var at timestamp
		if err := rows.Scan(&h.ID, &h.ProjectName, &h.ServerName, &h.CPUPercent, &h.MemoryPercent, &h.DiskPercent, &at); err != nil {
			return nil, fmt.Errorf("%w: scan server health: %v", ErrPersistence, err)
		}
		h.CheckedAt = at.Time
		out = append(out, h)
	}
	return out, rowsErr(rows, "server health")
}

// --- DOWN STATE ---

func (s *sqlStore) LoadDownState(ctx context.Context) (models.DownState, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT url, down_count, time_ranges FROM website_down_state")
	if err != nil {
		return nil, fmt.Errorf("%w: query down state: %v", ErrPersistence, err)
	}
	defer rows.Close()

	state := models.DownState{}
	for rows.Next() {
		var url, ranges string
		var rec models.DownRecord
		if err := rows.Scan(&url, &rec.DownCount, &ranges); err != nil {
			return nil, fmt.Errorf("%w: scan down state: %v", ErrPersistence, err)
		}
		if err := json.Unmarshal([]byte(ranges), &rec.TimeRanges); err != nil {
			return nil, fmt.Errorf("%w: decode time ranges for %s: %v", ErrPersistence, url, err)
		}
		state[url] = rec
	}
	return state, rowsErr(rows, "down state")
}

// SaveDownState replaces the whole table with state.
func (s *sqlStore) SaveDownState(ctx context.Context, state models.DownState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrPersistence, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM website_down_state"); err != nil {
		return fmt.Errorf("%w: clear down state: %v", ErrPersistence, err)
	}
	insert := s.q("INSERT INTO website_down_state (url, down_count, time_ranges) VALUES (?, ?, ?)")
	for url, rec := range state {
		ranges := rec.TimeRanges
		if ranges == nil {
			ranges = []string{}
		}
		raw, err := json.Marshal(ranges)
		if err != nil {
			return fmt.Errorf("%w: encode time ranges for %s: %v", ErrPersistence, url, err)
		}
		if _, err := tx.ExecContext(ctx, insert, url, rec.DownCount, string(raw)); err != nil {
			return fmt.Errorf("%w: insert down state for %s: %v", ErrPersistence, url, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit down state: %v", ErrPersistence, err)
	}
	return nil
}

func rowsErr(rows *sql.Rows, what string) error {
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: iterate %s: %v", ErrPersistence, what, err)
	}
	return nil
}

// timestamp scans a time column whatever the driver hands back.
type timestamp struct{ time.Time }

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

func (t *timestamp) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case nil:
		t.Time = time.Time{}
		return nil
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (t *timestamp) parse(s string) error {
	s = strings.TrimSuffix(s, "Z")
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}
