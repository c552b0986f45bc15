// Package autofill keeps the device-side copy of the business collection
// that the autofill extension reads from. It is fed by bridge events.
package autofill

import (
	"context"
	"fmt"

	"github.com/gartstein/bizprofile/internal/profile/codec"
	e "github.com/gartstein/bizprofile/internal/profile/errors"
	"github.com/gartstein/bizprofile/internal/profile/events"
	"github.com/gartstein/bizprofile/internal/profile/models"
	"go.uber.org/zap"
)

type Storage interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Mirror applies snapshots for one device. An empty device accepts all.
type Mirror struct {
	storage Storage
	key     string
	device  string
	logger  *zap.Logger
}

func NewMirror(storage Storage, key, device string, logger *zap.Logger) *Mirror {
	return &Mirror{
		storage: storage,
		key:     key,
		device:  device,
		logger:  logger.Named("autofill_mirror"),
	}
}

// Apply handles one bridge event. A snapshot that does not decode is
// rejected and the previous copy is kept.
func (m *Mirror) Apply(ctx context.Context, event events.Event) error {
	if m.device != "" && event.Device != m.device {
		m.logger.Debug("Skipping event for another device", zap.String("device", event.Device))
		return nil
	}

	switch event.Type {
	case events.SnapshotReplaced:
		payload := string(event.Payload)
		list, err := codec.Decode(payload)
		if err != nil {
			return fmt.Errorf("%w: snapshot: %w", e.ErrInvalidInput, err)
		}
		if err := m.storage.Set(ctx, m.key, payload); err != nil {
			return fmt.Errorf("%w: %w", e.ErrPersistenceWrite, err)
		}
		m.logger.Info("Autofill snapshot replaced",
			zap.String("device", event.Device),
			zap.Int("businesses", len(list)),
		)
	case events.SnapshotCleared:
		if err := m.storage.Delete(ctx, m.key); err != nil {
			return fmt.Errorf("%w: %w", e.ErrPersistenceWrite, err)
		}
		m.logger.Info("Autofill snapshot cleared", zap.String("device", event.Device))
	default:
		m.logger.Warn("Ignoring unknown event type", zap.String("event_type", string(event.Type)))
	}
	return nil
}

// All returns the mirrored collection, empty when nothing was received yet.
func (m *Mirror) All(ctx context.Context) ([]models.Business, error) {
	blob, found, err := m.storage.Get(ctx, m.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", e.ErrPersistenceRead, err)
	}
	if !found {
		return []models.Business{}, nil
	}
	return codec.Decode(blob)
}

// Primary returns the business autofill should use by default.
func (m *Mirror) Primary(ctx context.Context) (*models.Business, error) {
	list, err := m.All(ctx)
	if err != nil {
		return nil, err
	}
	b, ok := models.Primary(list)
	if !ok {
		return nil, fmt.Errorf("%w: no primary business", e.ErrNotFound)
	}
	return &b, nil
}
