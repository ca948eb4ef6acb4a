package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Simplereally/bloomstudio-sub005/internal/domain"
)

// pollFallback is how often an event stream re-reads its row even when no
// broker update arrives. It covers updates published by another process.
const pollFallback = 5 * time.Second

// BatchEvents streams progress for one batch as server-sent events. The
// current row is sent immediately, then on every recorded outcome. The stream
// closes once the batch reaches a terminal status.
func (a *App) BatchEvents(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "batch_id")

	job, err := a.Service.Get(r.Context(), jobID, userID)
	if err != nil {
		a.fail(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		a.error(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}

	updates, cancel := a.Broker.SubscribeJob(jobID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeEvent(w, flusher, job)
	if job.Status.Terminal() {
		return
	}

	ticker := time.NewTicker(pollFallback)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case update := <-updates:
			writeEvent(w, flusher, update)
			if update.Status.Terminal() {
				return
			}
		case <-ticker.C:
			current, err := a.Service.Get(r.Context(), jobID, userID)
			if err != nil {
				return
			}
			writeEvent(w, flusher, current)
			if current.Status.Terminal() {
				return
			}
		}
	}
}

// OwnerEvents streams updates for every batch the caller owns. Unlike
// BatchEvents it has no terminal condition; the client closes it.
func (a *App) OwnerEvents(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		a.error(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}

	updates, cancel := a.Broker.SubscribeOwner(userID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	active, err := a.Service.ListActive(r.Context(), userID)
	if err == nil {
		for i := range active {
			writeEvent(w, flusher, &active[i])
		}
	}

	ticker := time.NewTicker(pollFallback)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case update := <-updates:
			writeEvent(w, flusher, update)
		case <-ticker.C:
			active, err := a.Service.ListActive(r.Context(), userID)
			if err != nil {
				return
			}
			for i := range active {
				writeEvent(w, flusher, &active[i])
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, job *domain.BatchJob) {
	payload, err := json.Marshal(batchToDTO(job))
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("event: batch\ndata: "))
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte("\n\n"))
	flusher.Flush()
}
