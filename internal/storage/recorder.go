package storage

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"tableside/internal/lobby"
	"tableside/internal/logging"
	"tableside/internal/match"
)

// Recorder persists lobby match notices through a Store.
type Recorder struct {
	store   *Store
	timeout time.Duration

	mu      sync.Mutex
	matches map[string]uuid.UUID // room code -> match row
}

var _ lobby.Recorder = (*Recorder)(nil)

// NewRecorder returns a Recorder writing to store; each write gets timeout.
func NewRecorder(store *Store, timeout time.Duration) *Recorder {
	return &Recorder{store: store, timeout: timeout, matches: make(map[string]uuid.UUID)}
}

// moveRecord mirrors the JSON form of match.Move for any payload type.
type moveRecord struct {
	ID       string          `json:"id"`
	PlayerID string          `json:"playerId"`
	Kind     string          `json:"type"`
	Data     json.RawMessage `json:"data"`
	Sequence int             `json:"sequence"`
}

func decodeMove(v any) (moveRecord, error) {
	var mv moveRecord
	b, err := json.Marshal(v)
	if err != nil {
		return mv, err
	}
	err = json.Unmarshal(b, &mv)
	return mv, err
}

// MatchID returns the match row recorded for roomCode.
func (r *Recorder) MatchID(roomCode string) (uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.matches[roomCode]
	return id, ok
}

// Record implements lobby.Recorder.
func (r *Recorder) Record(room lobby.RoomInfo, n match.Notice, snapshot json.RawMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if n.Kind == match.EventGameStarted {
		id := uuid.New()
		r.mu.Lock()
		r.matches[room.ID] = id
		r.mu.Unlock()
		if err := r.store.CreateMatch(ctx, id, room.ID, room.GameType, room.Name, n.At); err != nil {
			logging.Errorf("store: create match %s: %v", room.ID, err)
		}
		for i, p := range room.Players {
			if err := r.store.EnsureSeat(ctx, id, p.ID, p.Name, i, n.At); err != nil {
				logging.Errorf("store: seat %s in %s: %v", p.ID, room.ID, err)
			}
		}
		r.snapshot(ctx, id, snapshot, 0, n.At)
		return
	}

	id, ok := r.MatchID(room.ID)
	if !ok {
		return
	}
	switch n.Kind {
	case match.EventMoveMade:
		mv, err := decodeMove(n.Move)
		if err != nil {
			logging.Errorf("store: decode move in %s: %v", room.ID, err)
			return
		}
		if err := r.store.RecordMove(ctx, id, mv.ID, mv.PlayerID, mv.Sequence, mv.Kind, mv.Data); err != nil {
			logging.Errorf("store: record move %d in %s: %v", mv.Sequence, room.ID, err)
		}
		r.snapshot(ctx, id, snapshot, mv.Sequence+1, n.At)
	case match.EventPlayerLeft:
		if n.Player == nil {
			return
		}
		if err := r.store.DeactivateSeat(ctx, id, n.Player.ID); err != nil {
			logging.Errorf("store: deactivate %s in %s: %v", n.Player.ID, room.ID, err)
		}
	case match.EventGameEnded:
		if n.Result == nil {
			return
		}
		res := n.Result
		if err := r.store.CompleteMatch(ctx, id, res.Winner, string(res.Reason), res.Details, n.At); err != nil {
			logging.Errorf("store: complete %s: %v", room.ID, err)
		}
		if err := r.store.UpdateMatch(ctx, id, MatchUpdate{Snapshot: snapshot}); err != nil {
			logging.Errorf("store: final snapshot %s: %v", room.ID, err)
		}
	}
}

func (r *Recorder) snapshot(ctx context.Context, id uuid.UUID, snap []byte, moves int, at time.Time) {
	if err := r.store.SaveSnapshot(ctx, id, snap, moves, at); err != nil {
		logging.Errorf("store: snapshot %s: %v", id, err)
	}
}

// Forget implements lobby.Recorder.
func (r *Recorder) Forget(roomCode string) {
	r.mu.Lock()
	id, ok := r.matches[roomCode]
	delete(r.matches, roomCode)
	r.mu.Unlock()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.store.ForgetMatch(ctx, id, time.Now()); err != nil {
		logging.Errorf("store: forget %s: %v", roomCode, err)
	}
}
