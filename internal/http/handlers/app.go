package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Simplereally/bloomstudio-sub005/internal/batch"
	"github.com/Simplereally/bloomstudio-sub005/internal/domain"
	"github.com/Simplereally/bloomstudio-sub005/internal/infra"
	"github.com/Simplereally/bloomstudio-sub005/internal/middleware"
	"github.com/Simplereally/bloomstudio-sub005/internal/progress"
	"github.com/Simplereally/bloomstudio-sub005/internal/storage"
)

type App struct {
	Service   *batch.Service
	Broker    *progress.Broker
	Store     *storage.FileStore
	Logger    infra.Logger
	JWTSecret string
}

func NewApp(service *batch.Service, broker *progress.Broker, store *storage.FileStore, logger infra.Logger, jwtSecret string) *App {
	return &App{Service: service, Broker: broker, Store: store, Logger: logger, JWTSecret: jwtSecret}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{"error": map[string]string{"code": code, "message": message}})
}

// fail translates domain errors into the API's error envelope.
func (a *App) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "batch not found")
	case errors.Is(err, domain.ErrNotAuthorized):
		a.error(w, http.StatusForbidden, "forbidden", "not your resource")
	case errors.Is(err, domain.ErrInvalidTransition):
		a.error(w, http.StatusConflict, "invalid_transition", err.Error())
	default:
		a.Logger.Error().Err(err).Msg("handler: internal error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
