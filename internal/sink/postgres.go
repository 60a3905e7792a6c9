package sink

import (
	"context"

	"github.com/mauv0809/quant-screener/internal/models"
)

// RecordInserter is the part of db.Repository the Postgres sink needs.
type RecordInserter interface {
	InsertRecord(ctx context.Context, runID int64, rec models.Record) error
}

// Postgres appends records to screener_records under one run.
type Postgres struct {
	repo  RecordInserter
	runID int64
}

func NewPostgres(repo RecordInserter, runID int64) *Postgres {
	return &Postgres{repo: repo, runID: runID}
}

func (p *Postgres) Emit(ctx context.Context, rec models.Record) error {
	return p.repo.InsertRecord(ctx, p.runID, rec)
}
