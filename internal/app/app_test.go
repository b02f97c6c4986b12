package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MomenMushtaha/MessageAI-sub000/pkg/config"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/models"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.DBPath = t.TempDir()
	cfg.Sync.MessageDebounce = config.Duration(5 * time.Millisecond)
	cfg.Sync.SendAttempts = 1
	a, err := New(cfg, "alice", nil)
	if err != nil {
		t.Fatalf("app new: %v", err)
	}
	t.Cleanup(a.shutdown)
	return a
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthAndReadiness(t *testing.T) {
	a := newTestApp(t)
	r := a.router()
	if w := doRequest(t, r, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Fatalf("healthz: %d", w.Code)
	}
	if w := doRequest(t, r, http.MethodGet, "/readyz", ""); w.Code != http.StatusOK {
		t.Fatalf("readyz: %d", w.Code)
	}
	if w := doRequest(t, r, http.MethodGet, "/metrics", ""); w.Code != http.StatusOK {
		t.Fatalf("metrics: %d", w.Code)
	}
}

func TestSendAndListOverHTTP(t *testing.T) {
	a := newTestApp(t)
	r := a.router()
	conv, err := a.svc.CreateOrGetConversation(context.Background(), models.ConversationDirect, []string{"alice", "bob"}, "")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	w := doRequest(t, r, http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", `{"text":"hello"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("send: %d %s", w.Code, w.Body.String())
	}
	var sent models.Message
	if err := json.Unmarshal(w.Body.Bytes(), &sent); err != nil {
		t.Fatalf("decode send response: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		lw := doRequest(t, r, http.MethodGet, "/v1/conversations/"+conv.ID+"/messages", "")
		if lw.Code != http.StatusOK {
			t.Fatalf("list: %d", lw.Code)
		}
		var msgs []models.Message
		if err := json.Unmarshal(lw.Body.Bytes(), &msgs); err != nil {
			t.Fatalf("decode list: %v", err)
		}
		if len(msgs) == 1 && msgs[0].ID == sent.ID && msgs[0].Status == models.StatusSent {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("message never confirmed over HTTP: %+v", msgs)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if w := doRequest(t, r, http.MethodGet, "/v1/conversations", ""); w.Code != http.StatusOK {
		t.Fatalf("conversations: %d", w.Code)
	}
}

func TestSendValidationOverHTTP(t *testing.T) {
	a := newTestApp(t)
	r := a.router()
	w := doRequest(t, r, http.MethodPost, "/v1/conversations/c1/messages", `{"text":"  "}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty text should 400, got %d", w.Code)
	}
	w = doRequest(t, r, http.MethodDelete, "/v1/messages/ghost", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown message should 404, got %d", w.Code)
	}
}
