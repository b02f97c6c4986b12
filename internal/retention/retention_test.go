package retention

import (
	"context"
	"testing"
	"time"

	"github.com/MomenMushtaha/MessageAI-sub000/pkg/config"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/models"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/store"
)

func TestRunOncePrunes(t *testing.T) {
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	old := models.Message{
		ID: "old", ConversationID: "c1", SenderID: "alice", Text: "stale",
		CreatedAt: time.Now().Add(-48 * time.Hour), Status: models.StatusSent, Synced: true,
	}
	if err := st.Put(old); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := RunOnce(st, 24*time.Hour); err != nil {
		t.Fatalf("run once: %v", err)
	}
	msgs, err := st.GetAll("c1")
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected pruned store, got %d rows", len(msgs))
	}
}

func TestStartValidatesCron(t *testing.T) {
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	cfg := config.RetentionConfig{Enabled: true, Cron: "not a cron", Period: config.Duration(24 * time.Hour)}
	if _, err := Start(context.Background(), cfg, st); err == nil {
		t.Fatalf("expected invalid cron to fail")
	}
}

func TestStartDisabledIsNoop(t *testing.T) {
	cancel, err := Start(context.Background(), config.RetentionConfig{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("disabled retention must not fail: %v", err)
	}
	cancel()
}
