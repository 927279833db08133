package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tableside/internal/connect4"
	"tableside/internal/lobby"
	"tableside/internal/match"
)

func TestNilStoreIsNoop(t *testing.T) {
	var s *Store
	ctx := context.Background()
	id := uuid.New()
	now := time.Now()

	assert.Nil(t, NewStore(nil))
	assert.Nil(t, s.DB())
	assert.NoError(t, s.CreateMatch(ctx, id, "room", "connect4", "table", now))
	assert.NoError(t, s.EnsureSeat(ctx, id, "alice", "Alice", 0, now))
	assert.NoError(t, s.RecordMove(ctx, id, "m1", "alice", 0, "drop", []byte(`{"column":3}`)))
	assert.NoError(t, s.SaveSnapshot(ctx, id, []byte(`{}`), 1, now))
	assert.NoError(t, s.DeactivateSeat(ctx, id, "alice"))
	assert.NoError(t, s.CompleteMatch(ctx, id, "alice", "completed", "connected four", now))
	assert.NoError(t, s.ForgetMatch(ctx, id, now))

	_, err := s.LoadMatch(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	stats, err := s.FetchStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats)
}

func TestDecodeMoveKeepsPayload(t *testing.T) {
	mv := match.Move[connect4.Drop]{ID: "m1", PlayerID: "bob", Kind: "drop", Data: connect4.Drop{Column: 5}, Sequence: 3}
	rec, err := decodeMove(mv)
	require.NoError(t, err)
	assert.Equal(t, "m1", rec.ID)
	assert.Equal(t, "bob", rec.PlayerID)
	assert.Equal(t, "drop", rec.Kind)
	assert.Equal(t, 3, rec.Sequence)
	assert.JSONEq(t, `{"column":5}`, string(rec.Data))
}

func TestRecorderTracksRoomMatches(t *testing.T) {
	r := NewRecorder(nil, time.Second)
	room := lobby.RoomInfo{ID: "abc", GameType: connect4.GameID, Players: []match.Player{{ID: "alice"}, {ID: "bob"}}}

	// notices before a start are ignored
	r.Record(room, match.Notice{Kind: match.EventMoveMade}, nil)
	_, ok := r.MatchID("abc")
	assert.False(t, ok)

	r.Record(room, match.Notice{Kind: match.EventGameStarted, At: time.Now()}, json.RawMessage(`{}`))
	id, ok := r.MatchID("abc")
	require.True(t, ok)
	assert.NotEqual(t, uuid.Nil, id)

	r.Record(room, match.Notice{Kind: match.EventMoveMade, Move: match.Move[connect4.Drop]{ID: "m", Sequence: 0}}, nil)
	r.Record(room, match.Notice{Kind: match.EventGameEnded, Result: &match.Result{Reason: match.ReasonCompleted}}, nil)

	r.Forget("abc")
	_, ok = r.MatchID("abc")
	assert.False(t, ok)
}

func TestNilStoreResumesNothing(t *testing.T) {
	l := lobby.New(lobby.NewRegistry())
	assert.Zero(t, NewRecorder(nil, time.Second).Resume(context.Background(), l))
}

func TestReopenAdoptsMatchRow(t *testing.T) {
	reg := lobby.NewRegistry()
	reg.Register(connect4.Rules{}.Config(), connect4.NewSession)

	old := lobby.New(reg, lobby.WithRoomIDs(func() string { return "abc" }))
	old.AddPlayer(match.Player{ID: "alice", Name: "Alice"})
	old.AddPlayer(match.Player{ID: "bob", Name: "Bob"})
	id, err := old.CreateRoom("alice", connect4.GameID, "", false)
	require.NoError(t, err)
	require.NoError(t, old.JoinRoom("bob", id))
	require.NoError(t, old.SetReady("bob", id, true))
	require.NoError(t, old.MakeMove("alice", id, json.RawMessage(`{"column":2}`)))
	snap, err := old.Snapshot(id)
	require.NoError(t, err)

	rec := NewRecorder(nil, time.Second)
	l := lobby.New(reg, lobby.WithRecorder(rec))
	row := Match{ID: uuid.New(), RoomCode: id, GameType: connect4.GameID, Name: "table", Snapshot: snap, MoveCount: 1}
	require.True(t, rec.reopen(context.Background(), l, row))

	got, ok := rec.MatchID(id)
	require.True(t, ok)
	assert.Equal(t, row.ID, got)
	require.NoError(t, l.MakeMove("bob", id, json.RawMessage(`{"column":2}`)))

	// a row whose snapshot no longer restores is not adopted
	broken := Match{ID: uuid.New(), RoomCode: "def", GameType: connect4.GameID, Snapshot: []byte(`{}`)}
	assert.False(t, rec.reopen(context.Background(), l, broken))
	_, ok = rec.MatchID("def")
	assert.False(t, ok)
}
