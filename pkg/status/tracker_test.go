package status

import (
	"context"
	"testing"
	"time"

	"github.com/MomenMushtaha/MessageAI-sub000/pkg/models"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/remote"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/store"
)

func setup(t *testing.T) (*Tracker, *store.Store, *remote.MemoryFeed) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	feed := remote.NewMemoryFeed(100)
	return NewTracker(st, feed), st, feed
}

func seed(t *testing.T, st *store.Store, feed *remote.MemoryFeed, m models.Message) {
	t.Helper()
	conv := models.Conversation{
		ID:             m.ConversationID,
		Type:           models.ConversationDirect,
		ParticipantIDs: []string{"alice", "bob"},
	}
	if _, err := feed.EnsureConversation(context.Background(), conv); err != nil {
		t.Fatalf("ensure conversation: %v", err)
	}
	if err := feed.WriteMessageAndSummary(context.Background(), m, conv); err != nil {
		t.Fatalf("remote write: %v", err)
	}
	m.Status = models.StatusSent
	m.Synced = true
	if err := st.Put(m); err != nil {
		t.Fatalf("local put: %v", err)
	}
}

func TestReadImpliesDelivered(t *testing.T) {
	tr, st, feed := setup(t)
	seed(t, st, feed, models.Message{
		ID: "m1", ConversationID: "c1", SenderID: "alice",
		Text: "hi", CreatedAt: time.Unix(100, 0), Status: models.StatusSent,
	})
	if err := tr.MarkRead(context.Background(), "c1", "bob"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	got, err := st.Get("m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !models.Contains(got.ReadBy, "bob") {
		t.Fatalf("bob missing from readBy: %v", got.ReadBy)
	}
	if !models.Contains(got.DeliveredTo, "bob") {
		t.Fatalf("read must imply delivered: %v", got.DeliveredTo)
	}
}

func TestSkipsOwnAndAlreadyMarkedMessages(t *testing.T) {
	tr, st, feed := setup(t)
	seed(t, st, feed, models.Message{
		ID: "mine", ConversationID: "c1", SenderID: "bob",
		Text: "mine", CreatedAt: time.Unix(100, 0), Status: models.StatusSent,
	})
	seed(t, st, feed, models.Message{
		ID: "marked", ConversationID: "c1", SenderID: "alice",
		Text: "marked", CreatedAt: time.Unix(101, 0), Status: models.StatusSent,
		DeliveredTo: []string{"bob"}, ReadBy: []string{"bob"},
	})
	if err := tr.MarkRead(context.Background(), "c1", "bob"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	mine, _ := st.Get("mine")
	if models.Contains(mine.ReadBy, "bob") {
		t.Fatalf("own message must never be self-acknowledged")
	}
	marked, _ := st.Get("marked")
	if len(marked.ReadBy) != 1 || len(marked.DeliveredTo) != 1 {
		t.Fatalf("already-marked message grew its sets: %v %v", marked.DeliveredTo, marked.ReadBy)
	}
}

func TestRemoteFailureLeavesLocalUntouched(t *testing.T) {
	tr, st, feed := setup(t)
	seed(t, st, feed, models.Message{
		ID: "m1", ConversationID: "c1", SenderID: "alice",
		Text: "hi", CreatedAt: time.Unix(100, 0), Status: models.StatusSent,
	})
	feed.FailNext(1, remote.ErrTransient)
	if err := tr.MarkRead(context.Background(), "c1", "bob"); err == nil {
		t.Fatalf("expected batch failure")
	}
	got, _ := st.Get("m1")
	if len(got.ReadBy) != 0 {
		t.Fatalf("local state mutated despite remote failure: %v", got.ReadBy)
	}
}

// Two-participant flow: sender observes sent, then delivered, then read
// with no skipped state.
func TestDisplayStatusProgression(t *testing.T) {
	tr, st, feed := setup(t)
	participants := []string{"alice", "bob"}
	m := models.Message{
		ID: "m1", ConversationID: "c1", SenderID: "alice",
		Text: "hi", CreatedAt: time.Unix(100, 0), Status: models.StatusSent, Synced: true,
	}
	seed(t, st, feed, m)

	cur, _ := st.Get("m1")
	if s := models.DisplayStatus(&cur, participants); s != models.StatusSent {
		t.Fatalf("expected sent, got %s", s)
	}
	if err := tr.MarkDelivered(context.Background(), "c1", "bob"); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	cur, _ = st.Get("m1")
	if s := models.DisplayStatus(&cur, participants); s != models.StatusDelivered {
		t.Fatalf("expected delivered, got %s", s)
	}
	if err := tr.MarkRead(context.Background(), "c1", "bob"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	cur, _ = st.Get("m1")
	if s := models.DisplayStatus(&cur, participants); s != models.StatusRead {
		t.Fatalf("expected read, got %s", s)
	}
}
