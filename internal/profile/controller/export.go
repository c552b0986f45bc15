package controller

import (
	"context"
	"fmt"

	"github.com/gartstein/bizprofile/internal/profile/codec"
	e "github.com/gartstein/bizprofile/internal/profile/errors"
	"github.com/gartstein/bizprofile/internal/profile/models"
)

// ExportFormat selects the rendering used by Export.
type ExportFormat string

const (
	ExportText ExportFormat = "text"
	ExportJSON ExportFormat = "json"
)

// Export renders every stored business for sharing outside the app.
func (s *ProfileStore) Export(ctx context.Context, format ExportFormat) (string, error) {
	switch format {
	case ExportText, ExportJSON:
	default:
		return "", fmt.Errorf("%w: unknown export format %q", e.ErrInvalidInput, format)
	}

	list, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	if format == ExportText {
		return models.ExportText(list), nil
	}
	return codec.MarshalIndent(list)
}
