package handlers

import (
	"context"
	"net/http"

	"github.com/gartstein/bizprofile/internal/profile/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// AutofillReader answers autofill lookups from the mirrored snapshot.
type AutofillReader interface {
	All(ctx context.Context) ([]models.Business, error)
	Primary(ctx context.Context) (*models.Business, error)
}

// NewAutofillRouter serves the read-only autofill lookups of the agent.
func NewAutofillRouter(reader AutofillReader, logger *zap.Logger) http.Handler {
	h := &ProfileHandler{logger: logger.Named("autofill_handler")}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/v1/autofill", func(r chi.Router) {
		r.Get("/businesses", func(w http.ResponseWriter, r *http.Request) {
			list, err := reader.All(r.Context())
			if err != nil {
				h.writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, list)
		})
		r.Get("/primary", func(w http.ResponseWriter, r *http.Request) {
			b, err := reader.Primary(r.Context())
			if err != nil {
				h.writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, b)
		})
	})
	return r
}
