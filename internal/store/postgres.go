package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

type PostgresStore struct {
	ConnStr string
	sqlStore
}

func (p *PostgresStore) Init(ctx context.Context) error {
	db, err := sql.Open("postgres", p.ConnStr)
	if err != nil {
		return fmt.Errorf("%w: open postgres: %v", ErrPersistence, err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("%w: connect postgres: %v", ErrPersistence, err)
	}

	p.sqlStore = sqlStore{db: db, numbered: true, dialect: "postgres", migrDir: "postgres"}
	if err := p.migrate(ctx); err != nil {
		db.Close()
		return err
	}
	return nil
}
