package storage

import (
	"context"
	"errors"

	"bitevo/internal/model"
)

var ErrRunNotFound = errors.New("run not found")

// Store persists completed runs keyed by run id.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, runID string) (model.RunRecord, bool, error)
	// ListRuns returns every stored run, newest first.
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	DeleteRun(ctx context.Context, runID string) error
}
