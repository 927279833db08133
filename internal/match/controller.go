package match

import (
	"time"

	"github.com/google/uuid"
	"tableside/internal/logging"
)

// Option customises a Controller.
type Option func(*options)

type options struct {
	clock func() time.Time
}

// WithClock replaces time.Now for commit timestamps.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// Controller owns the lifecycle of one match: roster, turn pointer, history
// and termination. Everything game specific is delegated to Rules.
//
// A Controller is not safe for concurrent use. Callers serialise access per
// match, typically with a mutex held by the room that owns it.
type Controller[D, M any] struct {
	id     string
	rules  Rules[D, M]
	config Config
	events Bus[D, M]
	clock  func() time.Time

	players  []Player
	turn     int
	started  bool
	finished bool
	status   Status
	winner   string
	reason   EndReason
	details  string
	data     D
	moves    []Move[M]
	touched  time.Time
}

// New seats players in order and prepares a waiting match.
func New[D, M any](id string, rules Rules[D, M], players []Player, opts ...Option) (*Controller[D, M], error) {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	cfg := rules.Config()
	if cfg.MaxPlayers > 0 && len(players) > cfg.MaxPlayers {
		return nil, ErrRosterFull
	}
	seen := make(map[string]struct{}, len(players))
	for _, p := range players {
		if _, ok := seen[p.ID]; ok {
			return nil, ErrDuplicatePlayer
		}
		seen[p.ID] = struct{}{}
	}
	c := &Controller[D, M]{
		id:      id,
		rules:   rules,
		config:  cfg,
		clock:   o.clock,
		players: append([]Player(nil), players...),
		status:  StatusWaiting,
		data:    rules.Initial(),
		moves:   []Move[M]{},
	}
	c.touched = c.clock()
	return c, nil
}

// ID returns the match id, which is the room id that created it.
func (c *Controller[D, M]) ID() string { return c.id }

// Config returns the game type description.
func (c *Controller[D, M]) Config() Config { return c.config }

// Events exposes the notification bus.
func (c *Controller[D, M]) Events() *Bus[D, M] { return &c.events }

// Status returns the lifecycle phase.
func (c *Controller[D, M]) Status() Status { return c.status }

// Start moves a waiting match into play.
func (c *Controller[D, M]) Start() error {
	if c.finished {
		return ErrFinished
	}
	if c.started {
		return ErrAlreadyStarted
	}
	if len(c.players) < c.config.MinPlayers {
		return ErrTooFewPlayers
	}
	c.started = true
	c.status = StatusPlaying
	c.touched = c.clock()
	logging.Debugf("match %s started with %d players", c.id, len(c.players))

	st := c.State()
	c.events.Emit(Event[D, M]{Kind: EventGameStarted, GameID: c.id, At: c.touched, State: &st})
	return nil
}

// AddPlayer seats p at the end of the roster before the match starts.
func (c *Controller[D, M]) AddPlayer(p Player) error {
	if c.finished {
		return ErrFinished
	}
	if c.started {
		return ErrAlreadyStarted
	}
	if c.config.MaxPlayers > 0 && len(c.players) >= c.config.MaxPlayers {
		return ErrRosterFull
	}
	if c.Seat(p.ID) >= 0 {
		return ErrDuplicatePlayer
	}
	c.players = append(c.players, p)
	c.touched = c.clock()

	joined := p
	c.events.Emit(Event[D, M]{Kind: EventPlayerJoined, GameID: c.id, At: c.touched, Player: &joined})
	return nil
}

// RemovePlayer unseats a player. A match in progress that drops below the
// minimum roster ends as abandoned with no winner.
func (c *Controller[D, M]) RemovePlayer(playerID string) error {
	if c.finished {
		return ErrFinished
	}
	idx := c.Seat(playerID)
	if idx < 0 {
		return ErrUnknownPlayer
	}
	removed := c.players[idx]
	c.players = append(c.players[:idx:idx], c.players[idx+1:]...)
	if c.turn >= idx {
		c.turn = max(0, c.turn-1)
	}
	c.touched = c.clock()

	c.events.Emit(Event[D, M]{Kind: EventPlayerLeft, GameID: c.id, At: c.touched, Player: &removed})

	if c.started && len(c.players) < c.config.MinPlayers {
		c.end(ReasonAbandoned, "", "")
	}
	return nil
}

// SetReady flips the ready flag of a seated player.
func (c *Controller[D, M]) SetReady(playerID string, ready bool) error {
	if c.finished {
		return ErrFinished
	}
	idx := c.Seat(playerID)
	if idx < 0 {
		return ErrUnknownPlayer
	}
	c.players[idx].IsReady = ready
	c.touched = c.clock()

	p := c.players[idx]
	c.events.Emit(Event[D, M]{Kind: EventPlayerReadyChanged, GameID: c.id, At: c.touched, Player: &p})
	return nil
}

// AttemptMove is the only way to change the rules payload during play.
// playerID is the acting player; it overrides mv.PlayerID.
func (c *Controller[D, M]) AttemptMove(mv Move[M], playerID string) error {
	if !c.started {
		return ErrNotStarted
	}
	if c.finished {
		return ErrFinished
	}
	if c.CurrentPlayer() != playerID {
		return ErrNotYourTurn
	}
	seat := c.Seat(playerID)
	mv.PlayerID = playerID
	if !c.rules.IsLegal(c.data, mv, seat) {
		return ErrIllegalMove
	}

	next := c.rules.Clone(c.data)
	if !c.rules.Apply(&next, mv, seat) {
		return ErrRejected
	}

	now := c.clock()
	if mv.ID == "" {
		mv.ID = uuid.NewString()
	}
	if mv.Kind == "" {
		mv.Kind = DefaultMoveKind
	}
	mv.Sequence = len(c.moves)
	mv.At = now
	c.moves = append(c.moves, mv)

	out := c.rules.Evaluate(&next, c.Players())
	c.data = next
	if out.Over {
		c.end(ReasonCompleted, out.Winner, out.Reason)
	} else {
		c.turn = (c.turn + 1) % len(c.players)
	}
	c.touched = now
	logging.Debugf("match %s: move %d by %s", c.id, mv.Sequence, playerID)

	committed := mv
	c.events.Emit(Event[D, M]{Kind: EventMoveMade, GameID: c.id, At: now, Move: &committed})
	return nil
}

// End terminates a running match on behalf of the orchestrator, e.g. for a
// stalled game. Normal completion goes through AttemptMove.
func (c *Controller[D, M]) End(reason EndReason, winner, details string) error {
	if c.finished {
		return ErrFinished
	}
	if !c.started {
		return ErrNotStarted
	}
	if !reason.valid() {
		reason = ReasonTimeout
	}
	if winner != "" && c.Seat(winner) < 0 {
		return ErrUnknownPlayer
	}
	c.end(reason, winner, details)
	return nil
}

func (c *Controller[D, M]) end(reason EndReason, winner, details string) {
	c.finished = true
	c.status = StatusFinished
	c.winner = winner
	c.reason = reason
	c.details = details
	c.touched = c.clock()
	logging.Debugf("match %s ended: %s winner=%q %s", c.id, reason, winner, details)

	st := c.State()
	c.events.Emit(Event[D, M]{
		Kind:   EventGameEnded,
		GameID: c.id,
		At:     c.touched,
		Result: &Result{GameID: c.id, Winner: winner, Reason: reason, Details: details},
		State:  &st,
	})
}

// State returns a deep copy of the envelope and payload.
func (c *Controller[D, M]) State() State[D, M] {
	return State[D, M]{
		GameID:        c.id,
		Players:       c.Players(),
		CurrentPlayer: c.CurrentPlayer(),
		Status:        c.status,
		Winner:        c.winner,
		Reason:        c.reason,
		Details:       c.details,
		Data:          c.rules.Clone(c.data),
		Moves:         c.Moves(),
		Timestamp:     c.touched,
	}
}

// Data returns a deep copy of the rules payload.
func (c *Controller[D, M]) Data() D { return c.rules.Clone(c.data) }

// Moves returns a copy of the committed history.
func (c *Controller[D, M]) Moves() []Move[M] {
	return append([]Move[M]{}, c.moves...)
}

// Players returns a copy of the roster.
func (c *Controller[D, M]) Players() []Player {
	return append([]Player{}, c.players...)
}

// CurrentPlayer returns the id of the player whose move is awaited.
func (c *Controller[D, M]) CurrentPlayer() string {
	if c.turn < 0 || c.turn >= len(c.players) {
		return ""
	}
	return c.players[c.turn].ID
}

// Seat returns the roster index of playerID, or -1.
func (c *Controller[D, M]) Seat(playerID string) int {
	for i, p := range c.players {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

// Player returns the seated player with the given id.
func (c *Controller[D, M]) Player(playerID string) (Player, bool) {
	if i := c.Seat(playerID); i >= 0 {
		return c.players[i], true
	}
	return Player{}, false
}

// HasPlayer reports whether playerID is seated.
func (c *Controller[D, M]) HasPlayer(playerID string) bool { return c.Seat(playerID) >= 0 }

// IsPlayerTurn reports whether playerID holds the turn.
func (c *Controller[D, M]) IsPlayerTurn(playerID string) bool {
	return playerID != "" && c.CurrentPlayer() == playerID
}

// CanStart reports whether Start would succeed.
func (c *Controller[D, M]) CanStart() bool {
	if c.started || c.finished {
		return false
	}
	n := len(c.players)
	return n >= c.config.MinPlayers && (c.config.MaxPlayers <= 0 || n <= c.config.MaxPlayers)
}
