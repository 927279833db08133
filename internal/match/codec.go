package match

import (
	"encoding/json"
	"fmt"
)

// snapshot is the persisted form of a Controller.
type snapshot[D, M any] struct {
	State              State[D, M] `json:"gameState"`
	Moves              []Move[M]   `json:"moves"`
	Players            []Player    `json:"players"`
	CurrentPlayerIndex int         `json:"currentPlayerIndex"`
	IsStarted          bool        `json:"isStarted"`
	IsFinished         bool        `json:"isFinished"`
}

// Snapshot encodes the whole match, history included.
func (c *Controller[D, M]) Snapshot() ([]byte, error) {
	return json.Marshal(snapshot[D, M]{
		State:              c.State(),
		Moves:              c.Moves(),
		Players:            c.Players(),
		CurrentPlayerIndex: c.turn,
		IsStarted:          c.started,
		IsFinished:         c.finished,
	})
}

// Restore replaces the match with a previously taken snapshot. On any error
// the controller keeps its current state; the error wraps ErrCorruptState.
func (c *Controller[D, M]) Restore(b []byte) error {
	var s snapshot[D, M]
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if err := c.check(&s); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptState, err)
	}

	c.players = append([]Player{}, s.Players...)
	c.turn = s.CurrentPlayerIndex
	c.started = s.IsStarted
	c.finished = s.IsFinished
	c.status = s.State.Status
	c.winner = s.State.Winner
	c.reason = s.State.Reason
	c.details = s.State.Details
	c.data = s.State.Data
	c.moves = append([]Move[M]{}, s.Moves...)
	c.touched = s.State.Timestamp
	return nil
}

func (c *Controller[D, M]) check(s *snapshot[D, M]) error {
	st := &s.State
	if st.GameID != c.id {
		return fmt.Errorf("game id %q does not match %q", st.GameID, c.id)
	}
	if c.config.MaxPlayers > 0 && len(s.Players) > c.config.MaxPlayers {
		return fmt.Errorf("%d players exceed maximum %d", len(s.Players), c.config.MaxPlayers)
	}
	seen := make(map[string]struct{}, len(s.Players))
	for _, p := range s.Players {
		if p.ID == "" {
			return fmt.Errorf("player without id")
		}
		if _, ok := seen[p.ID]; ok {
			return fmt.Errorf("player %q seated twice", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	if len(st.Players) != len(s.Players) {
		return fmt.Errorf("roster mismatch")
	}
	for i := range st.Players {
		if st.Players[i].ID != s.Players[i].ID {
			return fmt.Errorf("roster mismatch at seat %d", i)
		}
	}

	idx := s.CurrentPlayerIndex
	if idx < 0 || (len(s.Players) > 0 && idx >= len(s.Players)) || (len(s.Players) == 0 && idx != 0) {
		return fmt.Errorf("turn pointer %d out of range", idx)
	}

	switch st.Status {
	case StatusWaiting:
		if s.IsStarted || s.IsFinished {
			return fmt.Errorf("waiting match flagged started")
		}
	case StatusPlaying, StatusPaused:
		if !s.IsStarted || s.IsFinished {
			return fmt.Errorf("%s match with inconsistent flags", st.Status)
		}
		if len(s.Players) == 0 || st.CurrentPlayer != s.Players[idx].ID {
			return fmt.Errorf("current player %q is not at the turn pointer", st.CurrentPlayer)
		}
	case StatusFinished:
		if !s.IsStarted || !s.IsFinished {
			return fmt.Errorf("finished match with inconsistent flags")
		}
		if !st.Reason.valid() {
			return fmt.Errorf("unknown end reason %q", st.Reason)
		}
	default:
		return fmt.Errorf("unknown status %q", st.Status)
	}
	if st.Winner != "" {
		if _, ok := seen[st.Winner]; !ok || st.Status != StatusFinished {
			return fmt.Errorf("winner %q recorded on an unfinished match or not seated", st.Winner)
		}
	}

	if len(st.Moves) != len(s.Moves) {
		return fmt.Errorf("history mismatch")
	}
	for i, mv := range s.Moves {
		if mv.Sequence != i {
			return fmt.Errorf("move %d has sequence %d", i, mv.Sequence)
		}
	}
	if !s.IsStarted && len(s.Moves) > 0 {
		return fmt.Errorf("moves recorded before start")
	}
	return c.rules.Validate(st.Data, len(s.Moves))
}
