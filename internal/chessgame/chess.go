package chessgame

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/corentings/chess/v2"
	"tableside/internal/logging"
	"tableside/internal/match"
)

// GameID is the registry key for chess.
const GameID = "chess"

// Position is the chess rules payload. The UCI history is authoritative;
// FEN, Outcome and Method are derived from it after every move.
type Position struct {
	Moves   []string `json:"uci"`
	FEN     string   `json:"fen"`
	Turn    string   `json:"turn"`
	Outcome string   `json:"outcome"`
	Method  string   `json:"method,omitempty"`
}

// Step is the move payload.
type Step struct {
	UCI string `json:"uci"`
}

// Rules implements match.Rules for standard chess. Seat 0 plays white.
type Rules struct{}

var _ match.Rules[Position, Step] = Rules{}

func (Rules) Config() match.Config {
	return match.Config{
		ID:                GameID,
		Name:              GameID,
		DisplayName:       "Chess",
		Description:       "Classic chess. Moves are sent in UCI; pawns reaching the last rank become queens unless told otherwise.",
		MinPlayers:        2,
		MaxPlayers:        2,
		EstimatedDuration: "10-40 minutes",
		Difficulty:        "hard",
		Category:          "board",
		Thumbnail:         "♟️",
	}
}

func (Rules) Initial() Position {
	g := chess.NewGame()
	return describe(g, []string{})
}

func (Rules) Clone(p Position) Position {
	p.Moves = append([]string{}, p.Moves...)
	return p
}

// IsLegal replays the history and tries the move; turn order is checked by
// the controller, so it also rejects moves for the colour not on move.
func (r Rules) IsLegal(p Position, mv match.Move[Step], seat int) bool {
	if !onMove(p, seat) {
		return false
	}
	g, err := replay(p.Moves)
	if err != nil {
		return false
	}
	_, err = push(g, mv.Data.UCI)
	return err == nil
}

func (Rules) Apply(p *Position, mv match.Move[Step], seat int) bool {
	if !onMove(*p, seat) {
		return false
	}
	g, err := replay(p.Moves)
	if err != nil {
		logging.Errorf("chess: replay %v", err)
		return false
	}
	played, err := push(g, mv.Data.UCI)
	if err != nil {
		return false
	}
	*p = describe(g, append(p.Moves, played))
	return true
}

func (Rules) Evaluate(p *Position, players []match.Player) match.Outcome {
	seat := -1
	switch chess.Outcome(p.Outcome) {
	case chess.NoOutcome:
		return match.Outcome{}
	case chess.WhiteWon:
		seat = 0
	case chess.BlackWon:
		seat = 1
	}
	out := match.Outcome{Over: true, Reason: strings.ToLower(p.Method)}
	if seat >= 0 && seat < len(players) {
		out.Winner = players[seat].ID
	}
	return out
}

// Validate replays the history and checks the derived fields agree.
func (Rules) Validate(p Position, moves int) error {
	if len(p.Moves) != moves {
		return fmt.Errorf("position lists %d moves but history has %d", len(p.Moves), moves)
	}
	g, err := replay(p.Moves)
	if err != nil {
		return err
	}
	want := describe(g, p.Moves)
	if want.FEN != p.FEN {
		return fmt.Errorf("fen %q does not follow from history (want %q)", p.FEN, want.FEN)
	}
	if want.Outcome != p.Outcome {
		return fmt.Errorf("outcome %q does not follow from history", p.Outcome)
	}
	return nil
}

var (
	errNoMove  = errors.New("empty move")
	errIllegal = errors.New("not a legal move in this position")
)

func replay(moves []string) (*chess.Game, error) {
	g := chess.NewGame()
	for i, s := range moves {
		if _, err := push(g, s); err != nil {
			return nil, fmt.Errorf("move %d %q: %w", i, s, err)
		}
	}
	return g, nil
}

// push plays s on g and returns the UCI actually played. A bare four
// character pawn push onto the last rank is retried as a queen promotion.
func push(g *chess.Game, s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", errNoMove
	}
	if g.Outcome() != chess.NoOutcome {
		return "", fmt.Errorf("game already decided")
	}
	err := play(g, s)
	if err != nil && len(s) == 4 && promotes(s) {
		if qerr := play(g, s+"q"); qerr == nil {
			return s + "q", nil
		}
	}
	if err != nil {
		return "", err
	}
	return s, nil
}

// play decodes s and pushes it only if it is one of the position's legal
// moves; Game.Move itself applies anything it is given.
func play(g *chess.Game, s string) error {
	m, err := chess.UCINotation{}.Decode(g.Position(), s)
	if err != nil {
		return err
	}
	for _, valid := range g.ValidMoves() {
		if valid.S1() == m.S1() && valid.S2() == m.S2() && valid.Promo() == m.Promo() {
			return g.Move(&valid, nil)
		}
	}
	return fmt.Errorf("%w: %s", errIllegal, s)
}

func promotes(s string) bool {
	return (s[1] == '7' && s[3] == '8') || (s[1] == '2' && s[3] == '1')
}

func describe(g *chess.Game, moves []string) Position {
	pos := g.Position()
	p := Position{
		Moves:   moves,
		FEN:     pos.String(),
		Turn:    pos.Turn().String(),
		Outcome: string(g.Outcome()),
	}
	if g.Outcome() != chess.NoOutcome {
		p.Method = g.Method().String()
	}
	return p
}

// onMove reports whether seat owns the colour to play after p.Moves.
func onMove(p Position, seat int) bool {
	return seat == len(p.Moves)%2
}

// Game is one chess match.
type Game struct {
	*match.Controller[Position, Step]
}

// New creates a waiting chess match for roomID.
func New(roomID string, players []match.Player, opts ...match.Option) (*Game, error) {
	c, err := match.New[Position, Step](roomID, Rules{}, players, opts...)
	if err != nil {
		return nil, err
	}
	return &Game{Controller: c}, nil
}

// Play submits a UCI move for playerID.
func (g *Game) Play(playerID, uci string) error {
	return g.AttemptMove(match.Move[Step]{PlayerID: playerID, Kind: "uci", Data: Step{UCI: uci}}, playerID)
}

// View is what a single chess player is shown.
type View struct {
	FEN        string   `json:"fen"`
	Turn       string   `json:"turn"`
	UCI        []string `json:"uci"`
	Color      string   `json:"color,omitempty"`
	Role       string   `json:"role"`
	IsYourTurn bool     `json:"isYourTurn"`
	Status     string   `json:"status"`
	Winner     string   `json:"winner,omitempty"`
}

// ViewFor projects the match for playerID; unseated ids are spectators.
func (g *Game) ViewFor(playerID string) View {
	p := g.Data()
	v := View{
		FEN:        p.FEN,
		Turn:       p.Turn,
		UCI:        p.Moves,
		Role:       "spectator",
		IsYourTurn: g.IsPlayerTurn(playerID),
		Status:     string(g.Status()),
	}
	switch g.Seat(playerID) {
	case 0:
		v.Color, v.Role = "white", "player"
	case 1:
		v.Color, v.Role = "black", "player"
	}
	if g.Status() == match.StatusFinished {
		v.IsYourTurn = false
		v.Winner = g.State().Winner
		if p.Outcome != string(chess.NoOutcome) {
			v.Status = fmt.Sprintf("%s by %s", p.Outcome, p.Method)
		}
	}
	return v
}

// Session exposes the match to a lobby.
func (g *Game) Session() match.Session {
	return match.Bind[Position, Step](g.Controller, decodeStep, func(_ *match.Controller[Position, Step], playerID string) any {
		return g.ViewFor(playerID)
	})
}

// NewSession matches the lobby factory signature.
func NewSession(roomID string, players []match.Player) (match.Session, error) {
	g, err := New(roomID, players)
	if err != nil {
		return nil, err
	}
	return g.Session(), nil
}

func decodeStep(raw json.RawMessage) (Step, error) {
	var s Step
	if err := json.Unmarshal(raw, &s); err != nil {
		return Step{}, err
	}
	if strings.TrimSpace(s.UCI) == "" {
		return Step{}, errNoMove
	}
	return s, nil
}
