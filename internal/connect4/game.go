package connect4

import (
	"encoding/json"
	"fmt"
	"strings"

	"tableside/internal/match"
)

// GameID is the registry key for Connect 4.
const GameID = "connect4"

const rulesText = `
Be the first player to connect 4 of your pieces in a row.
Players take turns dropping pieces into columns; a piece falls to the lowest free row.
If the board fills up with no winner, the game is a draw.`

// Rules implements match.Rules for a 6x7 drop-piece game.
type Rules struct{}

var _ match.Rules[Board, Drop] = Rules{}

// Config describes Connect 4 to lobbies.
func (Rules) Config() match.Config {
	return match.Config{
		ID:                GameID,
		Name:              GameID,
		DisplayName:       "Connect 4",
		Description:       "Drop pieces to connect 4 in a row - horizontally, vertically, or diagonally!",
		MinPlayers:        2,
		MaxPlayers:        2,
		EstimatedDuration: "5-10 minutes",
		Difficulty:        "easy",
		Category:          "board",
		Thumbnail:         "🔴",
		Rules:             strings.TrimSpace(rulesText),
	}
}

func (Rules) Initial() Board { return NewBoard() }

func (Rules) Clone(b Board) Board { return b.Clone() }

func (Rules) Validate(b Board, moves int) error {
	if b.MoveCount != moves {
		return fmt.Errorf("board holds %d drops but history has %d", b.MoveCount, moves)
	}
	return b.Validate()
}

// IsLegal only checks the board; turn order belongs to the controller.
func (Rules) IsLegal(b Board, mv match.Move[Drop], seat int) bool {
	return b.CanDrop(mv.Data.Column)
}

func (Rules) Apply(b *Board, mv match.Move[Drop], seat int) bool {
	if seat < 0 || seat > 1 {
		return false
	}
	return b.Place(mv.Data.Column, Cell(seat+1)) >= 0
}

// Evaluate checks for a win through the last piece, then for a full board.
func (Rules) Evaluate(b *Board, players []match.Player) match.Outcome {
	lm := b.LastMove
	if lm == nil {
		return match.Outcome{}
	}
	if cells, ok := b.WinFrom(lm.Row, lm.Col); ok {
		b.WinningCells = cells
		winner := ""
		if i := int(lm.Player) - 1; i >= 0 && i < len(players) {
			winner = players[i].ID
		}
		return match.Outcome{Over: true, Winner: winner, Reason: "connected four"}
	}
	if b.Full() {
		return match.Outcome{Over: true, Reason: "board full"}
	}
	return match.Outcome{}
}

// Game is one Connect 4 match.
type Game struct {
	*match.Controller[Board, Drop]
}

// New creates a waiting match for roomID.
func New(roomID string, players []match.Player, opts ...match.Option) (*Game, error) {
	c, err := match.New[Board, Drop](roomID, Rules{}, players, opts...)
	if err != nil {
		return nil, err
	}
	return &Game{Controller: c}, nil
}

// Drop submits a drop into col on behalf of playerID.
func (g *Game) Drop(playerID string, col int) error {
	return g.AttemptMove(match.Move[Drop]{PlayerID: playerID, Kind: "drop", Data: Drop{Column: col}}, playerID)
}

// View is what a single player is shown.
type View struct {
	Board            Grid         `json:"board"`
	IsYourTurn       bool         `json:"isYourTurn"`
	PlayerNumber     int          `json:"playerNumber"`
	CurrentPlayer    string       `json:"currentPlayer"`
	MoveCount        int          `json:"moveCount"`
	LastMove         *Placement   `json:"lastMove,omitempty"`
	WinningCells     []Placement  `json:"winningCells"`
	AvailableColumns []int        `json:"availableColumns"`
	Status           match.Status `json:"status"`
	Winner           string       `json:"winner,omitempty"`
}

// ViewFor projects the match for playerID. PlayerNumber is 0 for spectators.
func (g *Game) ViewFor(playerID string) View {
	b := g.Data()
	name := ""
	if p, ok := g.Player(g.CurrentPlayer()); ok {
		name = p.Name
	}
	st := g.Status()
	v := View{
		Board:            b.Grid,
		IsYourTurn:       g.IsPlayerTurn(playerID),
		PlayerNumber:     g.Seat(playerID) + 1,
		CurrentPlayer:    name,
		MoveCount:        b.MoveCount,
		LastMove:         b.LastMove,
		WinningCells:     b.WinningCells,
		AvailableColumns: b.AvailableColumns(),
		Status:           st,
	}
	if st == match.StatusFinished {
		v.IsYourTurn = false
		v.AvailableColumns = []int{}
		v.Winner = g.State().Winner
	}
	return v
}

// BoardState returns a copy of the grid.
func (g *Game) BoardState() Grid { return g.Data().Grid }

// WinningCells returns the winning run, empty until someone wins.
func (g *Game) WinningCells() []Placement { return g.Data().WinningCells }

// AvailableMoves returns the columns that accept a piece.
func (g *Game) AvailableMoves() []int {
	b := g.Data()
	return b.AvailableColumns()
}

// MoveCount returns the number of pieces on the board.
func (g *Game) MoveCount() int { return g.Data().MoveCount }

// LastMove returns the most recent placement, if any.
func (g *Game) LastMove() (Placement, bool) {
	if lm := g.Data().LastMove; lm != nil {
		return *lm, true
	}
	return Placement{}, false
}

// Session exposes the match to a lobby.
func (g *Game) Session() match.Session {
	return match.Bind[Board, Drop](g.Controller, decodeDrop, func(_ *match.Controller[Board, Drop], playerID string) any {
		return g.ViewFor(playerID)
	})
}

// NewSession builds a Connect 4 session; it matches the lobby factory signature.
func NewSession(roomID string, players []match.Player) (match.Session, error) {
	g, err := New(roomID, players)
	if err != nil {
		return nil, err
	}
	return g.Session(), nil
}

func decodeDrop(raw json.RawMessage) (Drop, error) {
	var d struct {
		Column *int `json:"column"`
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return Drop{}, err
	}
	if d.Column == nil {
		return Drop{}, fmt.Errorf("missing column")
	}
	return Drop{Column: *d.Column}, nil
}
