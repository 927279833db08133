package storage

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Match is one played match of any registered game type.
type Match struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	RoomCode    string    `gorm:"index"`
	GameType    string    `gorm:"index"`
	Name        string
	Status      string
	Winner      string
	Reason      string
	Details     string
	MoveCount   int
	Snapshot    datatypes.JSON
	Active      bool `gorm:"index"`
	CompletedAt *time.Time
	LastSeen    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Seats       []Seat
	Moves       []Move
}

// Seat links a player to a match.
type Seat struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	MatchID   uuid.UUID `gorm:"type:uuid;index;uniqueIndex:idx_match_player"`
	PlayerID  string    `gorm:"uniqueIndex:idx_match_player"`
	Name      string
	Number    int
	Active    bool
	LastSeen  time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Move stores a single committed move.
type Move struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	MatchID   uuid.UUID `gorm:"type:uuid;index"`
	MoveID    string
	PlayerID  string `gorm:"index"`
	Sequence  int
	Kind      string
	Data      datatypes.JSON
	CreatedAt time.Time
}
