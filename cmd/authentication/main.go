// This is a **mock authentication service**, designed to provide JWT tokens
// for the profile service's write routes during local development.
package main

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/gartstein/bizprofile/internal/profile/auth"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	defaultPort   = "8081"       // Default port for the authentication service
	defaultSecret = "jwt_secret" // Secret for signing JWT
	tokenTTL      = 24 * time.Hour
)

// TokenResponse represents the response structure
type TokenResponse struct {
	Token string `json:"token"`
}

func tokenHandler(secret string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject := r.URL.Query().Get("sub")
		if subject == "" {
			subject = "12345"
		}

		token, err := auth.GenerateToken(subject, secret, tokenTTL)
		if err != nil {
			logger.Error("Failed to generate token", zap.Error(err))
			http.Error(w, "Failed to generate token", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(TokenResponse{Token: token}); err != nil {
			logger.Error("Failed to encode token", zap.Error(err))
		}
	}
}

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	secret := getenv("PROFILE_JWT_SECRET", defaultSecret)
	port := getenv("AUTH_PORT", defaultPort)

	r := chi.NewRouter()
	r.Get("/token", tokenHandler(secret, logger))

	logger.Info("Authentication service running", zap.String("port", port))
	srv := &http.Server{Addr: ":" + port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		logger.Fatal("Authentication service stopped", zap.Error(err))
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
