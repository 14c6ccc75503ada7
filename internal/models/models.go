package models

import "time"

const (
	HTTPStatusUp   = 200
	HTTPStatusDown = 500

	// DaysUnknown marks a certificate that was not or could not be inspected.
	DaysUnknown = -1

	// DownTimeLayout is the layout of timestamps in DownRecord.TimeRanges.
	DownTimeLayout = "2006-01-02 15:04:05"
)

type WebsiteStatus struct {
	ID         int64
	URL        string
	HTTPStatus int
	DaysLeft   int
	CheckedAt  time.Time
}

func (w WebsiteStatus) Up() bool { return w.HTTPStatus == HTTPStatusUp }

type DownRecord struct {
	DownCount  int      `json:"down_count"`
	TimeRanges []string `json:"time_ranges"`
}

// DownState maps a URL to its down-streak audit trail.
type DownState map[string]DownRecord

// RecordDown increments the streak for url and appends at.
func (s DownState) RecordDown(url string, at time.Time) DownRecord {
	rec := s[url]
	rec.DownCount++
	rec.TimeRanges = append(rec.TimeRanges, at.Format(DownTimeLayout))
	s[url] = rec
	return rec
}

// Seed adds an empty record for every url that has none.
func (s DownState) Seed(urls []string) {
	for _, u := range urls {
		if _, ok := s[u]; !ok {
			s[u] = DownRecord{TimeRanges: []string{}}
		}
	}
}

type DBStatus string

const (
	DBActive   DBStatus = "active"
	DBInactive DBStatus = "inactive"
)

type DatabaseHealth struct {
	ID                int64
	ProjectName       string
	DBName            string
	Status            DBStatus
	TotalConnections  int
	ActiveConnections int
	TotalQueries      int64
	CheckedAt         time.Time
}

type ServerHealth struct {
	ID            int64
	ProjectName   string
	ServerName    string
	CPUPercent    float64
	MemoryPercent float64
	DiskPercent   float64
	CheckedAt     time.Time
}

// Thresholds is the alert policy for a run.
type Thresholds struct {
	CPUMax            float64
	MemoryMax         float64
	DiskMax           float64
	SSLExpiryWarnDays int
}

func DefaultThresholds() Thresholds {
	return Thresholds{CPUMax: 85, MemoryMax: 85, DiskMax: 85, SSLExpiryWarnDays: 15}
}

type AlertConfig struct {
	Type     string
	Settings map[string]string
}
