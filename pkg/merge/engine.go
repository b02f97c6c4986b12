// Package merge reconciles local pending sends with authoritative
// remote snapshots into a single ordered, de-duplicated view.
package merge

import (
	"sort"

	"github.com/MomenMushtaha/MessageAI-sub000/pkg/models"
)

// Changes reports what a merge pass altered relative to the previous
// view. Consumers skip publishing when nothing changed.
type Changes struct {
	// NewIDs are message ids present now but absent from the previous
	// view.
	NewIDs []string
	// StatusChanged are same-id entries whose status, deliveredTo or
	// readBy differ from the previous view.
	StatusChanged []string
}

// Dirty reports whether the pass produced anything worth emitting.
func (c Changes) Dirty() bool {
	return len(c.NewIDs) > 0 || len(c.StatusChanged) > 0
}

// Merge builds a new view from an authoritative snapshot and the
// locally pending records.
//
// The snapshot wins for every id it contains. Pending records absent
// from the snapshot are appended; this holds even when their createdAt
// predates the snapshot's window, so a capped snapshot never drops an
// unconfirmed message that scrolled out of the remote fetch window.
// The result is sorted by createdAt ascending with id as tiebreak, so
// repeated merges of the same inputs order ties identically.
func Merge(prev, snapshot, pending []models.Message) ([]models.Message, Changes) {
	next := make([]models.Message, 0, len(snapshot)+len(pending))
	seen := make(map[string]struct{}, len(snapshot))
	for _, m := range snapshot {
		next = append(next, m)
		seen[m.ID] = struct{}{}
	}
	for _, m := range pending {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		next = append(next, m)
	}
	sort.SliceStable(next, func(i, j int) bool {
		if !next[i].CreatedAt.Equal(next[j].CreatedAt) {
			return next[i].CreatedAt.Before(next[j].CreatedAt)
		}
		return next[i].ID < next[j].ID
	})
	return next, diff(prev, next)
}

func diff(prev, next []models.Message) Changes {
	old := make(map[string]*models.Message, len(prev))
	for i := range prev {
		old[prev[i].ID] = &prev[i]
	}
	var ch Changes
	for i := range next {
		p, ok := old[next[i].ID]
		if !ok {
			ch.NewIDs = append(ch.NewIDs, next[i].ID)
			continue
		}
		if statusFieldsDiffer(p, &next[i]) {
			ch.StatusChanged = append(ch.StatusChanged, next[i].ID)
		}
	}
	return ch
}

func statusFieldsDiffer(a, b *models.Message) bool {
	return a.Status != b.Status ||
		!sameSet(a.DeliveredTo, b.DeliveredTo) ||
		!sameSet(a.ReadBy, b.ReadBy)
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for _, id := range a {
		if !models.Contains(b, id) {
			return false
		}
	}
	return true
}
