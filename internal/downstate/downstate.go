// Package downstate persists the per-URL down-streak audit trail between runs.
package downstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go-healthwatch/internal/models"
)

var ErrCorrupt = errors.New("down state unreadable")

type Store interface {
	Load(ctx context.Context) (models.DownState, error)
	Save(ctx context.Context, state models.DownState) error
}

// FileStore keeps the state as an indented JSON object keyed by URL.
type FileStore struct {
	Path string
}

// Load never fails hard: a missing file is an empty state, an unreadable or
// corrupt one is an empty state plus an ErrCorrupt the caller may log.
func (f *FileStore) Load(_ context.Context) (models.DownState, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return models.DownState{}, nil
	}
	if err != nil {
		return models.DownState{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	state := models.DownState{}
	if err := json.Unmarshal(data, &state); err != nil {
		return models.DownState{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, f.Path, err)
	}
	return state, nil
}

// Save replaces the file atomically so an overlapping run sees either the
// old or the new state.
func (f *FileStore) Save(_ context.Context, state models.DownState) error {
	data, err := json.MarshalIndent(state, "", "    ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.Path), filepath.Base(f.Path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.Path)
}

type table interface {
	LoadDownState(ctx context.Context) (models.DownState, error)
	SaveDownState(ctx context.Context, state models.DownState) error
}

// TableStore keeps the state in the status store's website_down_state table.
type TableStore struct {
	t table
}

func NewTableStore(t table) *TableStore { return &TableStore{t: t} }

func (s *TableStore) Load(ctx context.Context) (models.DownState, error) {
	state, err := s.t.LoadDownState(ctx)
	if err != nil {
		return models.DownState{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return state, nil
}

func (s *TableStore) Save(ctx context.Context, state models.DownState) error {
	return s.t.SaveDownState(ctx, state)
}
