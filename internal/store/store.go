package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-healthwatch/internal/models"
)

var ErrPersistence = errors.New("persistence failed")

// Store is the append-only status backend shared by the monitors and the analyzer.
type Store interface {
	Init(ctx context.Context) error

	// Website / SSL
	InsertWebsiteStatus(ctx context.Context, row models.WebsiteStatus) error
	RecentWebsiteStatuses(ctx context.Context, since time.Time) ([]models.WebsiteStatus, error)

	// Database health
	InsertDatabaseHealth(ctx context.Context, row models.DatabaseHealth) error
	LatestDatabaseHealth(ctx context.Context, since time.Time) ([]models.DatabaseHealth, error)

	// Server health
	InsertServerHealth(ctx context.Context, row models.ServerHealth) error
	RecentServerHealth(ctx context.Context, since time.Time) ([]models.ServerHealth, error)

	// Website down state
	LoadDownState(ctx context.Context) (models.DownState, error)
	SaveDownState(ctx context.Context, state models.DownState) error

	Close() error
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// New returns an uninitialised store for driver. source is a DSN for
// postgres and a file path for sqlite.
func New(driver, source string) (Store, error) {
	switch driver {
	case DriverPostgres:
		return &PostgresStore{ConnStr: source}, nil
	case DriverSQLite:
		return &SQLiteStore{DBPath: source}, nil
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", ErrPersistence, driver)
	}
}

// Open creates and initialises a store in one step.
func Open(ctx context.Context, driver, source string) (Store, error) {
	s, err := New(driver, source)
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Unavailable stands in for a store that could not be opened. Every call
// fails with Err so the monitors log persistence failures and carry on.
type Unavailable struct {
	Err error
}

func (u Unavailable) fail() error {
	return fmt.Errorf("%w: store unavailable: %v", ErrPersistence, u.Err)
}

func (u Unavailable) Init(context.Context) error { return u.fail() }

func (u Unavailable) InsertWebsiteStatus(context.Context, models.WebsiteStatus) error {
	return u.fail()
}

func (u Unavailable) RecentWebsiteStatuses(context.Context, time.Time) ([]models.WebsiteStatus, error) {
	return nil, u.fail()
}

func (u Unavailable) InsertDatabaseHealth(context.Context, models.DatabaseHealth) error {
	return u.fail()
}

func (u Unavailable) LatestDatabaseHealth(context.Context, time.Time) ([]models.DatabaseHealth, error) {
	return nil, u.fail()
}

func (u Unavailable) InsertServerHealth(context.Context, models.ServerHealth) error {
	return u.fail()
}

func (u Unavailable) RecentServerHealth(context.Context, time.Time) ([]models.ServerHealth, error) {
	return nil, u.fail()
}

func (u Unavailable) LoadDownState(context.Context) (models.DownState, error) {
	return nil, u.fail()
}

func (u Unavailable) SaveDownState(context.Context, models.DownState) error { return u.fail() }

func (u Unavailable) Close() error { return nil }
