package store

import (
	"testing"
	"time"

	"github.com/MomenMushtaha/MessageAI-sub000/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mkMsg(id, conv string, at time.Time) models.Message {
	return models.Message{
		ID:             id,
		ConversationID: conv,
		SenderID:       "alice",
		Text:           "hello " + id,
		CreatedAt:      at,
		Status:         models.StatusSent,
		Synced:         true,
	}
}

func TestPutIsIdempotentByID(t *testing.T) {
	s := openTestStore(t)
	m := mkMsg("m1", "c1", time.Unix(100, 0))
	if err := s.Put(m); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(m); err != nil {
		t.Fatalf("second put: %v", err)
	}
	got, err := s.GetAll("c1")
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 row after replay, got %d", len(got))
	}
}

func TestOrderingByCreatedAtWithIDTiebreak(t *testing.T) {
	s := openTestStore(t)
	base := time.Unix(1000, 0)
	// Insert out of order, including two rows at the same instant.
	for _, m := range []models.Message{
		mkMsg("m-c", "c1", base.Add(2*time.Second)),
		mkMsg("m-b", "c1", base.Add(time.Second)),
		mkMsg("m-a", "c1", base.Add(time.Second)),
		mkMsg("m-d", "c1", base),
	} {
		if err := s.Put(m); err != nil {
			t.Fatalf("put %s: %v", m.ID, err)
		}
	}
	got, err := s.GetAll("c1")
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	want := []string{"m-d", "m-a", "m-b", "m-c"}
	if len(got) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
}

func TestUpsertRelocatesRowWhenTimestampMoves(t *testing.T) {
	s := openTestStore(t)
	m := mkMsg("m1", "c1", time.Unix(100, 0))
	m.Status = models.StatusSending
	m.Synced = false
	if err := s.Put(m); err != nil {
		t.Fatalf("optimistic put: %v", err)
	}
	// Remote confirmation assigns the authoritative timestamp.
	m.CreatedAt = time.Unix(500, 0)
	m.Status = models.StatusSent
	m.Synced = true
	if err := s.Put(m); err != nil {
		t.Fatalf("confirm put: %v", err)
	}
	got, err := s.GetAll("c1")
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 row after relocation, got %d", len(got))
	}
	if !got[0].CreatedAt.Equal(time.Unix(500, 0)) {
		t.Fatalf("expected relocated timestamp, got %v", got[0].CreatedAt)
	}
	pending, err := s.GetPending()
	if err != nil {
		t.Fatalf("get pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("confirmed message should leave the pending index, got %d", len(pending))
	}
}

func TestPendingIndex(t *testing.T) {
	s := openTestStore(t)
	p := mkMsg("p1", "c1", time.Unix(10, 0))
	p.Status = models.StatusError
	p.Synced = false
	if err := s.Put(p); err != nil {
		t.Fatalf("put pending: %v", err)
	}
	if err := s.Put(mkMsg("s1", "c1", time.Unix(20, 0))); err != nil {
		t.Fatalf("put synced: %v", err)
	}
	pending, err := s.GetPending()
	if err != nil {
		t.Fatalf("get pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "p1" {
		t.Fatalf("expected only p1 pending, got %v", pending)
	}
}

func TestUpdateStatusIgnoresRegression(t *testing.T) {
	s := openTestStore(t)
	m := mkMsg("m1", "c1", time.Unix(10, 0))
	m.Status = models.StatusRead
	if err := s.Put(m); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.UpdateStatus("m1", models.StatusDelivered, true); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, err := s.Get("m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.StatusRead {
		t.Fatalf("stale update downgraded status to %s", got.Status)
	}
}

func TestUpdateMessageNotFound(t *testing.T) {
	s := openTestStore(t)
	err := s.UpdateMessage("ghost", func(m *models.Message) error { return nil })
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteMessages(t *testing.T) {
	s := openTestStore(t)
	for i, id := range []string{"a", "b", "c"} {
		if err := s.Put(mkMsg(id, "c1", time.Unix(int64(i), 0))); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	if err := s.Put(mkMsg("other", "c2", time.Unix(1, 0))); err != nil {
		t.Fatalf("put: %v", err)
	}
	n, err := s.DeleteMessages("c1")
	if err != nil {
		t.Fatalf("delete messages: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 deleted, got %d", n)
	}
	left, err := s.GetAll("c2")
	if err != nil || len(left) != 1 {
		t.Fatalf("other conversation should be untouched: %v %d", err, len(left))
	}
}

func TestPruneOlderThanSkipsPending(t *testing.T) {
	s := openTestStore(t)
	old := mkMsg("old", "c1", time.Now().Add(-48*time.Hour))
	if err := s.Put(old); err != nil {
		t.Fatalf("put: %v", err)
	}
	stuck := mkMsg("stuck", "c1", time.Now().Add(-48*time.Hour))
	stuck.Status = models.StatusError
	stuck.Synced = false
	if err := s.Put(stuck); err != nil {
		t.Fatalf("put: %v", err)
	}
	fresh := mkMsg("fresh", "c1", time.Now())
	if err := s.Put(fresh); err != nil {
		t.Fatalf("put: %v", err)
	}
	n, err := s.PruneOlderThan(24 * time.Hour)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned, got %d", n)
	}
	got, err := s.GetAll("c1")
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	ids := map[string]bool{}
	for _, m := range got {
		ids[m.ID] = true
	}
	if !ids["stuck"] || !ids["fresh"] || ids["old"] {
		t.Fatalf("unexpected survivors: %v", ids)
	}
}

func TestConversationsSortedByActivity(t *testing.T) {
	s := openTestStore(t)
	t1 := time.Unix(100, 0)
	t2 := time.Unix(200, 0)
	convs := []models.Conversation{
		{ID: "c1", Type: models.ConversationDirect, ParticipantIDs: []string{"alice", "bob"}, LastMessageAt: &t1},
		{ID: "c2", Type: models.ConversationGroup, ParticipantIDs: []string{"alice", "bob", "carol"}, LastMessageAt: &t2},
		{ID: "c3", Type: models.ConversationDirect, ParticipantIDs: []string{"bob", "carol"}, LastMessageAt: &t2},
	}
	for _, c := range convs {
		if err := s.PutConversation(c); err != nil {
			t.Fatalf("put conversation: %v", err)
		}
	}
	got, err := s.GetConversations("alice")
	if err != nil {
		t.Fatalf("get conversations: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected alice in 2 conversations, got %d", len(got))
	}
	if got[0].ID != "c2" || got[1].ID != "c1" {
		t.Fatalf("expected activity order c2,c1; got %s,%s", got[0].ID, got[1].ID)
	}
}

func TestDeleteConversationRemovesMessages(t *testing.T) {
	s := openTestStore(t)
	if err := s.PutConversation(models.Conversation{ID: "c1", Type: models.ConversationDirect, ParticipantIDs: []string{"alice", "bob"}}); err != nil {
		t.Fatalf("put conversation: %v", err)
	}
	if err := s.Put(mkMsg("m1", "c1", time.Unix(1, 0))); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.DeleteConversation("c1"); err != nil {
		t.Fatalf("delete conversation: %v", err)
	}
	if _, err := s.GetConversation("c1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	msgs, err := s.GetAll("c1")
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no messages, got %d", len(msgs))
	}
}
