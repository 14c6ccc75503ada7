package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStore struct {
	DBPath string
	sqlStore
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	db, err := sql.Open("sqlite3", s.DBPath+"?_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("%w: open sqlite: %v", ErrPersistence, err)
	}
	// one writer; concurrent writers only get "database is locked"
	db.SetMaxOpenConns(1)

	s.sqlStore = sqlStore{db: db, dialect: "sqlite3", migrDir: "sqlite"}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return err
	}
	return nil
}
