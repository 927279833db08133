package match

import (
	"encoding/json"
	"fmt"
	"time"
)

// Notice is the game-agnostic form of an Event handed to orchestrators.
type Notice struct {
	Kind    EventKind `json:"kind"`
	MatchID string    `json:"matchId"`
	At      time.Time `json:"at"`
	Player  *Player   `json:"player,omitempty"`
	Move    any       `json:"move,omitempty"`
	Result  *Result   `json:"result,omitempty"`
	State   any       `json:"state,omitempty"`
}

// Session drives a match without knowing its payload types. Rooms hold
// Sessions so one directory can host every registered game.
type Session interface {
	ID() string
	Config() Config
	Start() error
	AddPlayer(p Player) error
	RemovePlayer(playerID string) error
	SetReady(playerID string, ready bool) error
	Submit(playerID string, payload json.RawMessage) error
	End(reason EndReason) error
	Status() Status
	Players() []Player
	CurrentPlayer() string
	MoveCount() int
	State() any
	View(playerID string) any
	Snapshot() ([]byte, error)
	Restore(b []byte) error
	Watch(fn func(Notice)) func()
}

// MoveDecoder turns a wire payload into a typed move body.
type MoveDecoder[M any] func(raw json.RawMessage) (M, error)

// Viewer projects the match for one player.
type Viewer[D, M any] func(c *Controller[D, M], playerID string) any

// Bind wraps c as a Session. view may be nil, in which case View returns the
// full state.
func Bind[D, M any](c *Controller[D, M], decode MoveDecoder[M], view Viewer[D, M]) Session {
	return &session[D, M]{c: c, decode: decode, view: view}
}

type session[D, M any] struct {
	c      *Controller[D, M]
	decode MoveDecoder[M]
	view   Viewer[D, M]
}

func (s *session[D, M]) ID() string { return s.c.ID() }
func (s *session[D, M]) Config() Config { return s.c.Config() }
func (s *session[D, M]) Start() error { return s.c.Start() }
func (s *session[D, M]) AddPlayer(p Player) error { return s.c.AddPlayer(p) }
func (s *session[D, M]) RemovePlayer(id string) error { return s.c.RemovePlayer(id) }
func (s *session[D, M]) SetReady(id string, r bool) error { return s.c.SetReady(id, r) }
func (s *session[D, M]) End(reason EndReason) error { return s.c.End(reason, "", "") }
func (s *session[D, M]) Status() Status { return s.c.Status() }
func (s *session[D, M]) Players() []Player { return s.c.Players() }
func (s *session[D, M]) CurrentPlayer() string { return s.c.CurrentPlayer() }
func (s *session[D, M]) MoveCount() int { return len(s.c.moves) }
func (s *session[D, M]) State() any { return s.c.State() }
func (s *session[D, M]) Snapshot() ([]byte, error) { return s.c.Snapshot() }
func (s *session[D, M]) Restore(b []byte) error { return s.c.Restore(b) }

func (s *session[D, M]) Submit(playerID string, payload json.RawMessage) error {
	data, err := s.decode(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMove, err)
	}
	return s.c.AttemptMove(Move[M]{PlayerID: playerID, Data: data}, playerID)
}

func (s *session[D, M]) View(playerID string) any {
	if s.view == nil {
		return s.c.State()
	}
	return s.view(s.c, playerID)
}

func (s *session[D, M]) Watch(fn func(Notice)) func() {
	return s.c.Events().OnAny(func(ev Event[D, M]) error {
		n := Notice{
			Kind:    ev.Kind,
			MatchID: ev.GameID,
			At:      ev.At,
			Player:  ev.Player,
			Result:  ev.Result,
		}
		if ev.Move != nil {
			n.Move = *ev.Move
		}
		if ev.State != nil {
			n.State = *ev.State
		}
		fn(n)
		return nil
	})
}
