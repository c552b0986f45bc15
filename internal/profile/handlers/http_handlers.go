package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gartstein/bizprofile/internal/profile/auth"
	"github.com/gartstein/bizprofile/internal/profile/controller"
	e "github.com/gartstein/bizprofile/internal/profile/errors"
	"github.com/gartstein/bizprofile/internal/profile/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ProfileController defines the business logic interface
// that the HTTP handlers will invoke.
type ProfileController interface {
	List(ctx context.Context) ([]models.Business, error)
	Get(ctx context.Context, id string) (*models.Business, error)
	Add(ctx context.Context, business models.Business) (*models.Business, error)
	Update(ctx context.Context, business models.Business) (*models.Business, error)
	Patch(ctx context.Context, id string, patch models.BusinessPatch, checks ...func(models.Business) error) (*models.Business, error)
	SetPrimary(ctx context.Context, id string, primary bool) (*models.Business, error)
	Delete(ctx context.Context, id string) error
	ClearAll(ctx context.Context) error
	Export(ctx context.Context, format controller.ExportFormat) (string, error)
}

// ProfileHandler translates REST calls into profile store operations.
type ProfileHandler struct {
	ctrl   ProfileController
	logger *zap.Logger
}

func NewProfileHandler(ctrl ProfileController, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{
		ctrl:   ctrl,
		logger: logger.Named("profile_handler"),
	}
}

// RouterConfig carries what NewRouter needs besides the handler.
type RouterConfig struct {
	JWTSecret string
	Gatherer  prometheus.Gatherer
	// Ready backs /healthz. Nil means always ready.
	Ready func(ctx context.Context) error
}

// NewRouter mounts the REST API under /v1 next to /healthz and /metrics.
func NewRouter(h *ProfileHandler, cfg RouterConfig, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Ready(ctx); err != nil {
				writeError(w, http.StatusServiceUnavailable, err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.Middleware(cfg.JWTSecret))
		h.Routes(r)
	})
	return r
}

// Routes registers the business endpoints on r.
func (h *ProfileHandler) Routes(r chi.Router) {
	r.Route("/businesses", func(r chi.Router) {
		r.Get("/", h.ListBusinesses)
		r.Post("/", h.CreateBusiness)
		r.Delete("/", h.ClearBusinesses)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetBusiness)
			r.Put("/", h.UpdateBusiness)
			r.Patch("/", h.PatchBusiness)
			r.Delete("/", h.DeleteBusiness)
			r.Post("/primary", h.SetPrimary(true))
			r.Delete("/primary", h.SetPrimary(false))
			r.Get("/copy-text", h.CopyText)
		})
	})
	r.Get("/export", h.Export)
}

func (h *ProfileHandler) ListBusinesses(w http.ResponseWriter, r *http.Request) {
	list, err := h.ctrl.List(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ProfileHandler) GetBusiness(w http.ResponseWriter, r *http.Request) {
	b, err := h.ctrl.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *ProfileHandler) CreateBusiness(w http.ResponseWriter, r *http.Request) {
	var req businessRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeServiceError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.writeServiceError(w, err)
		return
	}

	b, err := h.ctrl.Add(r.Context(), req.toModel(""))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.Header().Set("Location", "/v1/businesses/"+b.ID)
	writeJSON(w, http.StatusCreated, b)
}

// UpdateBusiness replaces a stored business. The store ignores unknown ids,
// which is reported as 404.
func (h *ProfileHandler) UpdateBusiness(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req businessRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeServiceError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.writeServiceError(w, err)
		return
	}

	b, err := h.ctrl.Update(r.Context(), req.toModel(id))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if b == nil {
		h.writeServiceError(w, fmt.Errorf("%w: business %s", e.ErrNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// PatchBusiness applies a partial edit. The store validates the merged record
// inside the same operation that writes it.
func (h *ProfileHandler) PatchBusiness(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var patch models.BusinessPatch
	if err := decodeBody(r, &patch); err != nil {
		h.writeServiceError(w, err)
		return
	}
	if patch.IsEmpty() {
		h.writeServiceError(w, fmt.Errorf("%w: empty patch", e.ErrInvalidInput))
		return
	}

	b, err := h.ctrl.Patch(r.Context(), id, patch, validateMerged)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func validateMerged(b models.Business) error {
	return models.FormFromBusiness(b).Validate()
}

func (h *ProfileHandler) SetPrimary(primary bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := h.ctrl.SetPrimary(r.Context(), chi.URLParam(r, "id"), primary)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}

func (h *ProfileHandler) DeleteBusiness(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.ctrl.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.logger.Info("Business deleted", zap.String("id", id), zap.String("subject", subject(r)))
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProfileHandler) ClearBusinesses(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.ClearAll(r.Context()); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.logger.Info("Businesses cleared", zap.String("subject", subject(r)))
	w.WriteHeader(http.StatusNoContent)
}

// subject names the token holder behind a request, or "anonymous" when
// auth is disabled.
func subject(r *http.Request) string {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		return "anonymous"
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub
	}
	return "anonymous"
}

func (h *ProfileHandler) CopyText(w http.ResponseWriter, r *http.Request) {
	b, err := h.ctrl.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeText(w, "text/plain; charset=utf-8", models.CopyText(*b))
}

func (h *ProfileHandler) Export(w http.ResponseWriter, r *http.Request) {
	format := controller.ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = controller.ExportText
	}
	out, err := h.ctrl.Export(r.Context(), format)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	contentType := "text/plain; charset=utf-8"
	if format == controller.ExportJSON {
		contentType = "application/json"
	}
	writeText(w, contentType, out)
}
