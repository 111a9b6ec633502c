package repository

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/handover-bot/internal/docstore"
	"github.com/spec-kit/handover-bot/internal/observability"
	apperrors "github.com/spec-kit/handover-bot/pkg/util/errorutil"
)

// document binds a docstore backend to one named document and maps backend
// failures to StoreUnavailable.
type document struct {
	store   docstore.Backend
	name    string
	logger  *zap.Logger
	metrics *observability.Metrics
}

func (d document) load(ctx context.Context) ([]byte, error) {
	data, err := d.store.Load(ctx, d.name)
	if err != nil {
		return nil, d.storeError(err)
	}
	return data, nil
}

func (d document) update(ctx context.Context, fn docstore.Mutator) error {
	if err := d.store.Update(ctx, d.name, fn); err != nil {
		return d.storeError(err)
	}
	return nil
}

// malformed reports a document that failed to decode. Callers continue with empty state.
func (d document) malformed(err error) {
	d.logger.Warn("malformed document; treating as empty",
		zap.String("document", d.name),
		zap.String("backend", d.store.Kind()),
		zap.Error(err))
	d.metrics.RecordStoreError(d.name)
}

func (d document) storeError(err error) error {
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	d.logger.Error("document store failure",
		zap.String("document", d.name),
		zap.String("backend", d.store.Kind()),
		zap.Error(err))
	d.metrics.RecordStoreError(d.name)
	return apperrors.NewStoreUnavailable(d.name, err)
}
