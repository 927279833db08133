package storage

import (
	"context"
	"time"

	"tableside/internal/logging"
)

// Resumer reopens a room around a stored snapshot. *lobby.Lobby satisfies it.
type Resumer interface {
	ResumeRoom(roomID, gameType, name string, snapshot []byte) error
}

// Resume reopens every match left active by a previous run and keeps
// recording into the same rows. Matches that no longer restore are closed as
// abandoned. It returns how many rooms were reopened.
func (r *Recorder) Resume(ctx context.Context, l Resumer) int {
	ids, err := r.store.ActiveMatches(ctx)
	if err != nil {
		logging.Errorf("store: list active matches: %v", err)
		return 0
	}
	n := 0
	for _, id := range ids {
		pm, err := r.store.LoadMatch(ctx, id)
		if err != nil {
			logging.Errorf("store: load match %s: %v", id, err)
			continue
		}
		if len(pm.Moves) != pm.Match.MoveCount {
			logging.Debugf("store: match %s has %d move rows for %d moves", id, len(pm.Moves), pm.Match.MoveCount)
		}
		if r.reopen(ctx, l, pm.Match) {
			n++
		}
	}
	return n
}

func (r *Recorder) reopen(ctx context.Context, l Resumer, m Match) bool {
	if err := l.ResumeRoom(m.RoomCode, m.GameType, m.Name, m.Snapshot); err != nil {
		logging.Errorf("store: resume %s: %v", m.RoomCode, err)
		if err := r.store.ForgetMatch(ctx, m.ID, time.Now()); err != nil {
			logging.Errorf("store: close %s: %v", m.ID, err)
		}
		return false
	}
	r.mu.Lock()
	r.matches[m.RoomCode] = m.ID
	r.mu.Unlock()
	return true
}
