package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MomenMushtaha/MessageAI-sub000/pkg/chat"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/models"
)

// router builds the debug HTTP surface: health, metrics and a small
// JSON API over the sync core for inspection and manual testing.
func (a *App) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", healthzHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.readyzHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/conversations", a.listConversations).Methods(http.MethodGet)
	v1.HandleFunc("/conversations/{id}/messages", a.listMessages).Methods(http.MethodGet)
	v1.HandleFunc("/conversations/{id}/messages", a.sendMessage).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/{id}/read", a.markRead).Methods(http.MethodPost)
	v1.HandleFunc("/messages/{id}/retry", a.retryMessage).Methods(http.MethodPost)
	v1.HandleFunc("/messages/{id}", a.deleteMessage).Methods(http.MethodDelete)
	return r
}

func healthzHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) readyzHandler(w http.ResponseWriter, _ *http.Request) {
	// Readiness means the local store answers queries.
	if _, err := a.store.GetConversations(a.userID); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (a *App) listConversations(w http.ResponseWriter, _ *http.Request) {
	convs, err := a.store.GetConversations(a.userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

func (a *App) listMessages(w http.ResponseWriter, r *http.Request) {
	convID := mux.Vars(r)["id"]
	msgs, err := a.store.GetAll(convID)
	if err != nil {
		writeError(w, err)
		return
	}
	visible := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.DeletedForEveryone || !m.DeletedFor(a.userID) {
			visible = append(visible, m)
		}
	}
	writeJSON(w, http.StatusOK, visible)
}

func (a *App) sendMessage(w http.ResponseWriter, r *http.Request) {
	convID := mux.Vars(r)["id"]
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	m, err := a.svc.Send(r.Context(), convID, body.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, m)
}

func (a *App) markRead(w http.ResponseWriter, r *http.Request) {
	convID := mux.Vars(r)["id"]
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if err := a.tracker.MarkRead(ctx, convID, a.userID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) retryMessage(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.RetrySend(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "retrying"})
}

func (a *App) deleteMessage(w http.ResponseWriter, r *http.Request) {
	forEveryone := r.URL.Query().Get("for_everyone") == "true"
	if err := a.svc.Delete(r.Context(), mux.Vars(r)["id"], forEveryone); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, chat.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, chat.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, chat.ErrPermission):
		code = http.StatusForbidden
	case errors.Is(err, chat.ErrRateLimited):
		code = http.StatusTooManyRequests
	case errors.Is(err, chat.ErrRemoteWrite):
		code = http.StatusBadGateway
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
