// Package sink persists consolidated screener records. Every sink appends;
// none update or delete.
package sink

import (
	"context"
	"errors"

	"github.com/mauv0809/quant-screener/internal/models"
)

// Sink receives one record at a time.
type Sink interface {
	Emit(ctx context.Context, rec models.Record) error
}

// Multi fans each record out to every sink, joining their errors.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, rec models.Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every record.
type Discard struct{}

func (Discard) Emit(context.Context, models.Record) error { return nil }
