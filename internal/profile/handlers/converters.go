package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	e "github.com/gartstein/bizprofile/internal/profile/errors"
	"github.com/gartstein/bizprofile/internal/profile/models"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
)

// Response is the standard JSON envelope for all API responses.
type Response struct {
	Data  any    `json:"data"`
	Error string `json:"error,omitempty"`
}

// businessRequest is the body of POST and PUT: the form plus the primary flag.
type businessRequest struct {
	models.FormData
	IsPrimary bool `json:"isPrimary"`
}

func (r businessRequest) toModel(id string) models.Business {
	return r.FormData.ToBusiness(id, r.IsPrimary)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Error: msg})
}

func writeText(w http.ResponseWriter, contentType, body string) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Join(e.ErrInvalidInput, err)
	}
	return nil
}

// mapServiceError maps domain or storage errors to gRPC status codes.
func (h *ProfileHandler) mapServiceError(err error) codes.Code {
	switch {
	case errors.Is(err, e.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, e.ErrDuplicateID):
		return codes.AlreadyExists
	case errors.Is(err, e.ErrInvalidInput):
		return codes.InvalidArgument
	case errors.Is(err, e.ErrPersistenceRead), errors.Is(err, e.ErrPersistenceWrite), errors.Is(err, e.ErrClosed):
		h.logger.Error("Storage unavailable", zap.Error(err))
		return codes.Unavailable
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		h.logger.Error("Internal server error", zap.Error(err))
		return codes.Internal
	}
}

// writeServiceError renders err with the HTTP status grpc-gateway would use
// for its gRPC code.
func (h *ProfileHandler) writeServiceError(w http.ResponseWriter, err error) {
	code := h.mapServiceError(err)
	msg := err.Error()
	if code == codes.Internal {
		msg = "internal server error"
	}
	writeError(w, runtime.HTTPStatusFromCode(code), msg)
}
