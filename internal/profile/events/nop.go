package events

import (
	"context"

	"go.uber.org/zap"
)

// Nop is the bridge used when no autofill transport is configured.
type Nop struct {
	Logger *zap.Logger
}

func (n Nop) ReplaceAll(_ context.Context, payload string) error {
	if n.Logger != nil {
		n.Logger.Debug("Autofill bridge disabled, skipping replace", zap.Int("bytes", len(payload)))
	}
	return nil
}

func (n Nop) ClearAll(context.Context) error {
	if n.Logger != nil {
		n.Logger.Debug("Autofill bridge disabled, skipping clear")
	}
	return nil
}
