package connect4

import (
	"errors"
	"fmt"
)

// Board dimensions and the run length that wins.
const (
	Rows    = 6
	Cols    = 7
	Connect = 4
)

// Cell holds 0 for empty or the 1-based seat number of the piece owner.
type Cell uint8

const (
	Empty   Cell = 0
	Player1 Cell = 1
	Player2 Cell = 2
)

// Grid is indexed [row][col]; row 0 is the top, row Rows-1 the bottom.
type Grid [Rows][Cols]Cell

// Placement identifies one piece on the board.
type Placement struct {
	Row    int  `json:"row"`
	Col    int  `json:"col"`
	Player Cell `json:"player"`
}

// Board is the Connect 4 rules payload.
type Board struct {
	Grid         Grid        `json:"board"`
	LastMove     *Placement  `json:"lastMove,omitempty"`
	WinningCells []Placement `json:"winningCells"`
	MoveCount    int         `json:"moveCount"`
}

// Drop is the move payload: the column a piece is dropped into.
type Drop struct {
	Column int `json:"column"`
}

// NewBoard returns an empty board.
func NewBoard() Board {
	return Board{WinningCells: []Placement{}}
}

// Clone returns a deep copy.
func (b Board) Clone() Board {
	out := b
	if b.LastMove != nil {
		lm := *b.LastMove
		out.LastMove = &lm
	}
	out.WinningCells = append([]Placement{}, b.WinningCells...)
	return out
}

func inBounds(row, col int) bool {
	return row >= 0 && row < Rows && col >= 0 && col < Cols
}

// CanDrop reports whether col exists and still has room.
func (b *Board) CanDrop(col int) bool {
	return col >= 0 && col < Cols && b.Grid[0][col] == Empty
}

// LowestEmpty returns the row a piece dropped into col would land on, or -1.
func (b *Board) LowestEmpty(col int) int {
	if col < 0 || col >= Cols {
		return -1
	}
	for row := Rows - 1; row >= 0; row-- {
		if b.Grid[row][col] == Empty {
			return row
		}
	}
	return -1
}

// Place drops a piece for player into col and records it as the last move.
// It returns the landing row, or -1 when the column is full.
func (b *Board) Place(col int, player Cell) int {
	row := b.LowestEmpty(col)
	if row < 0 {
		return -1
	}
	b.Grid[row][col] = player
	b.LastMove = &Placement{Row: row, Col: col, Player: player}
	b.MoveCount++
	return row
}

// Full reports whether every column is topped out.
func (b *Board) Full() bool {
	for col := 0; col < Cols; col++ {
		if b.Grid[0][col] == Empty {
			return false
		}
	}
	return true
}

// AvailableColumns lists the columns that accept another piece.
func (b *Board) AvailableColumns() []int {
	out := make([]int, 0, Cols)
	for col := 0; col < Cols; col++ {
		if b.Grid[0][col] == Empty {
			out = append(out, col)
		}
	}
	return out
}

// directions in reporting order: horizontal, vertical, down-right, down-left.
var directions = [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}

// WinFrom looks for a run of at least Connect pieces through (row, col).
// Only lines through that cell are searched. The first direction that wins
// is returned, ordered from its negative end.
func (b *Board) WinFrom(row, col int) ([]Placement, bool) {
	if !inBounds(row, col) {
		return nil, false
	}
	player := b.Grid[row][col]
	if player == Empty {
		return nil, false
	}
	for _, d := range directions {
		if cells := b.run(row, col, d[0], d[1], player); len(cells) >= Connect {
			return cells, true
		}
	}
	return nil, false
}

func (b *Board) run(row, col, dr, dc int, player Cell) []Placement {
	var back []Placement
	for r, c := row-dr, col-dc; inBounds(r, c) && b.Grid[r][c] == player; r, c = r-dr, c-dc {
		back = append(back, Placement{Row: r, Col: c, Player: player})
	}
	cells := make([]Placement, 0, len(back)+Connect)
	for i := len(back) - 1; i >= 0; i-- {
		cells = append(cells, back[i])
	}
	cells = append(cells, Placement{Row: row, Col: col, Player: player})
	for r, c := row+dr, col+dc; inBounds(r, c) && b.Grid[r][c] == player; r, c = r+dr, c+dc {
		cells = append(cells, Placement{Row: r, Col: c, Player: player})
	}
	return cells
}

// errors reported by Validate
var (
	errBadCell      = errors.New("cell value out of range")
	errFloating     = errors.New("floating piece")
	errPieceBalance = errors.New("piece counts out of balance")
)

// Validate checks that the board could have been produced by legal drops.
func (b *Board) Validate() error {
	counts := [3]int{}
	for col := 0; col < Cols; col++ {
		seenEmpty := false
		for row := Rows - 1; row >= 0; row-- {
			v := b.Grid[row][col]
			if v > Player2 {
				return fmt.Errorf("%w at %d,%d", errBadCell, row, col)
			}
			if v == Empty {
				seenEmpty = true
				continue
			}
			if seenEmpty {
				return fmt.Errorf("%w at %d,%d", errFloating, row, col)
			}
			counts[v]++
		}
	}
	if counts[1] < counts[2] || counts[1]-counts[2] > 1 {
		return fmt.Errorf("%w: %d vs %d", errPieceBalance, counts[1], counts[2])
	}
	if b.MoveCount != counts[1]+counts[2] {
		return fmt.Errorf("move count %d does not match %d pieces", b.MoveCount, counts[1]+counts[2])
	}
	if lm := b.LastMove; lm != nil {
		if !inBounds(lm.Row, lm.Col) || b.Grid[lm.Row][lm.Col] != lm.Player || lm.Player == Empty {
			return fmt.Errorf("last move %+v not on board", *lm)
		}
	} else if b.MoveCount > 0 {
		return fmt.Errorf("pieces on board without a last move")
	}
	for _, w := range b.WinningCells {
		if !inBounds(w.Row, w.Col) || b.Grid[w.Row][w.Col] != w.Player {
			return fmt.Errorf("winning cell %+v not on board", w)
		}
	}
	return nil
}
