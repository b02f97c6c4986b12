package models

import (
	"testing"
	"time"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusSending, StatusSent, true},
		{StatusSent, StatusDelivered, true},
		{StatusDelivered, StatusRead, true},
		{StatusRead, StatusDelivered, false},
		{StatusDelivered, StatusSent, false},
		{StatusSent, StatusSending, false},
		{StatusRead, StatusError, true},
		{StatusError, StatusSending, true},
		{StatusError, StatusSent, true},
		{StatusError, StatusRead, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransition(c.to); got != c.ok {
			t.Fatalf("%s -> %s: expected %v, got %v", c.from, c.to, c.ok, got)
		}
	}
}

func TestDirectConversationIDIsOrderIndependent(t *testing.T) {
	if DirectConversationID("bob", "alice") != "alice_bob" {
		t.Fatalf("unexpected id %s", DirectConversationID("bob", "alice"))
	}
	if DirectConversationID("alice", "bob") != DirectConversationID("bob", "alice") {
		t.Fatalf("id must be order independent")
	}
}

func TestCloneIsDeep(t *testing.T) {
	now := time.Now()
	m := Message{
		ID: "m1", Text: "original",
		DeliveredTo: []string{"bob"}, ReadBy: []string{"bob"},
		EditHistory: []string{"older"}, EditedAt: &now,
	}
	c := m.Clone()
	c.DeliveredTo[0] = "mallory"
	c.EditHistory[0] = "tampered"
	*c.EditedAt = now.Add(time.Hour)
	if m.DeliveredTo[0] != "bob" || m.EditHistory[0] != "older" || !m.EditedAt.Equal(now) {
		t.Fatalf("clone shares memory with the original: %+v", m)
	}
}

func TestDisplayStatus(t *testing.T) {
	participants := []string{"alice", "bob", "carol"}
	m := &Message{SenderID: "alice", Status: StatusSent}
	if s := DisplayStatus(m, participants); s != StatusSent {
		t.Fatalf("no acks should display sent, got %s", s)
	}
	m.DeliveredTo = []string{"bob"}
	if s := DisplayStatus(m, participants); s != StatusSent {
		t.Fatalf("partial delivery should display sent, got %s", s)
	}
	m.DeliveredTo = []string{"bob", "carol"}
	if s := DisplayStatus(m, participants); s != StatusDelivered {
		t.Fatalf("full delivery should display delivered, got %s", s)
	}
	m.ReadBy = []string{"bob", "carol"}
	if s := DisplayStatus(m, participants); s != StatusRead {
		t.Fatalf("full read should display read, got %s", s)
	}
	m.Status = StatusError
	if s := DisplayStatus(m, participants); s != StatusError {
		t.Fatalf("error must pass through, got %s", s)
	}
	solo := &Message{SenderID: "alice", Status: StatusSent}
	if s := DisplayStatus(solo, []string{"alice"}); s != StatusSent {
		t.Fatalf("self-chat is always sent, got %s", s)
	}
}
