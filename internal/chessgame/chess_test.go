package chessgame

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tableside/internal/match"
)

var (
	white = match.Player{ID: "w", Name: "White"}
	black = match.Player{ID: "b", Name: "Black"}
)

func started(t *testing.T) *Game {
	t.Helper()
	g, err := New("room", []match.Player{white, black})
	require.NoError(t, err)
	require.NoError(t, g.Start())
	return g
}

func playAll(t *testing.T, g *Game, moves ...string) {
	t.Helper()
	for i, m := range moves {
		who := white.ID
		if i%2 == 1 {
			who = black.ID
		}
		require.NoError(t, g.Play(who, m), "move %d %s", i, m)
	}
}

func TestFoolsMate(t *testing.T) {
	g := started(t)
	playAll(t, g, "f2f3", "e7e5", "g2g4", "d8h4")

	st := g.State()
	assert.Equal(t, match.StatusFinished, st.Status)
	assert.Equal(t, black.ID, st.Winner)
	assert.Equal(t, "checkmate", st.Details)
	assert.ErrorIs(t, g.Play(white.ID, "a2a3"), match.ErrFinished)

	v := g.ViewFor(white.ID)
	assert.False(t, v.IsYourTurn)
	assert.Equal(t, "white", v.Color)
	assert.Equal(t, black.ID, v.Winner)
}

func TestScholarsMate(t *testing.T) {
	g := started(t)
	playAll(t, g, "e2e4", "e7e5", "f1c4", "b8c6", "d1h5", "g8f6", "h5f7")
	assert.Equal(t, white.ID, g.State().Winner)
	assert.Equal(t, "1-0", g.Data().Outcome)
}

func TestIllegalMovesAreRejected(t *testing.T) {
	g := started(t)
	assert.ErrorIs(t, g.Play(white.ID, "e2e5"), match.ErrIllegalMove)
	assert.ErrorIs(t, g.Play(white.ID, "zz"), match.ErrIllegalMove)
	assert.ErrorIs(t, g.Play(black.ID, "e7e5"), match.ErrNotYourTurn)
	assert.Empty(t, g.Moves())

	require.NoError(t, g.Play(white.ID, "e2e4"))
	// black piece, white's seat: never legal for seat 0
	assert.False(t, Rules{}.IsLegal(g.Data(), match.Move[Step]{Data: Step{UCI: "e7e5"}}, 0))
	assert.True(t, Rules{}.IsLegal(g.Data(), match.Move[Step]{Data: Step{UCI: "e7e5"}}, 1))
}

func TestOnlyLegalMovesFromStart(t *testing.T) {
	start := Rules{}.Initial()
	for _, uci := range []string{"a1a8", "e2e5", "e7e5", "d1h8", "g1g3", "e1e2"} {
		mv := match.Move[Step]{Data: Step{UCI: uci}}
		assert.False(t, Rules{}.IsLegal(start, mv, 0), uci)

		p := Rules{}.Clone(start)
		assert.False(t, Rules{}.Apply(&p, mv, 0), uci)
		assert.Equal(t, start, p, uci)
	}
	for _, uci := range []string{"e2e4", "g1f3", "b1c3", "a2a3"} {
		assert.True(t, Rules{}.IsLegal(start, match.Move[Step]{Data: Step{UCI: uci}}, 0), uci)
	}

	g := started(t)
	assert.ErrorIs(t, g.Play(white.ID, "d1h8"), match.ErrIllegalMove)
	assert.Empty(t, g.Moves())
	assert.Equal(t, start.FEN, g.Data().FEN)
}

func TestUnderPromotionIsKept(t *testing.T) {
	g := started(t)
	playAll(t, g, "a2a4", "b7b5", "a4b5", "a7a6", "b5a6", "c8b7", "a6b7", "g8f6", "b7a8n")
	p := g.Data()
	assert.Equal(t, "b7a8n", p.Moves[8])
	assert.True(t, strings.HasPrefix(p.FEN, "N"), p.FEN)
}

func TestPromotionDefaultsToQueen(t *testing.T) {
	g := started(t)
	playAll(t, g, "a2a4", "b7b5", "a4b5", "a7a6", "b5a6", "c8b7", "a6b7", "g8f6", "b7a8")

	p := g.Data()
	require.Len(t, p.Moves, 9)
	assert.Equal(t, "b7a8q", p.Moves[8])
	assert.True(t, strings.HasPrefix(p.FEN, "Q"), p.FEN)
	assert.Equal(t, "b7a8q", g.Moves()[8].Data.UCI)
}

func TestSnapshotReplaysHistory(t *testing.T) {
	g := started(t)
	playAll(t, g, "e2e4", "e7e5", "g1f3")
	raw, err := g.Snapshot()
	require.NoError(t, err)

	other, err := New("room", []match.Player{white, black})
	require.NoError(t, err)
	require.NoError(t, other.Restore(raw))
	assert.Equal(t, g.Data(), other.Data())
	assert.Equal(t, black.ID, other.CurrentPlayer())

	// a FEN that disagrees with the history is refused
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	m["gameState"].(map[string]any)["data"].(map[string]any)["fen"] = "8/8/8/8/8/8/8/8 w - - 0 1"
	bad, err := json.Marshal(m)
	require.NoError(t, err)
	fresh, err := New("room", []match.Player{white, black})
	require.NoError(t, err)
	assert.ErrorIs(t, fresh.Restore(bad), match.ErrCorruptState)

	// so is a history shorter than the position's own move list
	require.NoError(t, json.Unmarshal(raw, &m))
	st := m["gameState"].(map[string]any)
	m["moves"] = m["moves"].([]any)[:2]
	st["moves"] = st["moves"].([]any)[:2]
	st["currentPlayer"] = white.ID
	m["currentPlayerIndex"] = 0
	short, err := json.Marshal(m)
	require.NoError(t, err)
	assert.ErrorIs(t, fresh.Restore(short), match.ErrCorruptState)
	assert.Empty(t, fresh.Moves())
}

func TestSessionSubmitsUCI(t *testing.T) {
	s, err := NewSession("room", []match.Player{white, black})
	require.NoError(t, err)
	require.NoError(t, s.Start())
	require.NoError(t, s.Submit(white.ID, json.RawMessage(`{"uci":"d2d4"}`)))
	assert.ErrorIs(t, s.Submit(black.ID, json.RawMessage(`{"uci":""}`)), match.ErrMalformedMove)

	v, ok := s.View("watcher").(View)
	require.True(t, ok)
	assert.Equal(t, "spectator", v.Role)
	assert.Equal(t, []string{"d2d4"}, v.UCI)
	assert.Equal(t, "black", s.View(black.ID).(View).Color)
}
