package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store wraps a gorm DB instance and provides helpers for persisting matches.
// A nil *Store is valid and silently drops writes.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new store helper from a gorm DB.
func NewStore(db *gorm.DB) *Store {
	if db == nil {
		return nil
	}
	return &Store{db: db}
}

// DB exposes the underlying gorm DB instance.
func (s *Store) DB() *gorm.DB {
	if s == nil {
		return nil
	}
	return s.db
}

// ErrNotFound is returned when a record is not found.
var ErrNotFound = gorm.ErrRecordNotFound

// MatchUpdate represents a partial update to a match row.
type MatchUpdate struct {
	Status      *string
	Winner      *string
	Reason      *string
	Details     *string
	MoveCount   *int
	Snapshot    []byte
	Active      *bool
	LastSeen    *time.Time
	CompletedAt *time.Time
}

// CreateMatch inserts a new active match row.
func (s *Store) CreateMatch(ctx context.Context, id uuid.UUID, roomCode, gameType, name string, startedAt time.Time) error {
	if s == nil {
		return nil
	}
	m := Match{
		ID:       id,
		RoomCode: roomCode,
		GameType: gameType,
		Name:     name,
		Status:   "playing",
		Active:   true,
		LastSeen: startedAt,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error
}

// UpdateMatch applies partial updates to the match row.
func (s *Store) UpdateMatch(ctx context.Context, id uuid.UUID, upd MatchUpdate) error {
	if s == nil {
		return nil
	}
	updates := make(map[string]any)
	if upd.Status != nil {
		updates["status"] = *upd.Status
	}
	if upd.Winner != nil {
		updates["winner"] = *upd.Winner
	}
	if upd.Reason != nil {
		updates["reason"] = *upd.Reason
	}
	if upd.Details != nil {
		updates["details"] = *upd.Details
	}
	if upd.MoveCount != nil {
		updates["move_count"] = *upd.MoveCount
	}
	if upd.Snapshot != nil {
		updates["snapshot"] = datatypes.JSON(upd.Snapshot)
	}
	if upd.Active != nil {
		updates["active"] = *upd.Active
	}
	if upd.LastSeen != nil {
		updates["last_seen"] = *upd.LastSeen
	}
	if upd.CompletedAt != nil {
		updates["completed_at"] = *upd.CompletedAt
	}
	if len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&Match{}).Where("id = ?", id).Updates(updates).Error
}

// SaveSnapshot stores the latest encoded match state.
func (s *Store) SaveSnapshot(ctx context.Context, id uuid.UUID, snapshot []byte, moveCount int, lastSeen time.Time) error {
	if s == nil || len(snapshot) == 0 {
		return nil
	}
	return s.UpdateMatch(ctx, id, MatchUpdate{Snapshot: snapshot, MoveCount: &moveCount, LastSeen: &lastSeen})
}

// EnsureSeat upserts the seat of playerID in a match.
func (s *Store) EnsureSeat(ctx context.Context, matchID uuid.UUID, playerID, name string, number int, lastSeen time.Time) error {
	if s == nil {
		return nil
	}
	seat := Seat{
		MatchID:  matchID,
		PlayerID: playerID,
		Name:     name,
		Number:   number,
		Active:   true,
		LastSeen: lastSeen,
	}
	return s.db.WithContext(ctx).
		Where("match_id = ? AND player_id = ?", matchID, playerID).
		Assign(map[string]any{
			"name":      name,
			"number":    number,
			"active":    true,
			"last_seen": lastSeen,
		}).
		FirstOrCreate(&seat).Error
}

// DeactivateSeat marks the player's seat as inactive.
func (s *Store) DeactivateSeat(ctx context.Context, matchID uuid.UUID, playerID string) error {
	if s == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&Seat{}).
		Where("match_id = ? AND player_id = ?", matchID, playerID).
		Updates(map[string]any{"active": false}).Error
}

// RecordMove inserts a move row for the given match.
func (s *Store) RecordMove(ctx context.Context, matchID uuid.UUID, moveID, playerID string, sequence int, kind string, data []byte) error {
	if s == nil {
		return nil
	}
	move := Move{
		MatchID:  matchID,
		MoveID:   moveID,
		PlayerID: playerID,
		Sequence: sequence,
		Kind:     kind,
		Data:     datatypes.JSON(data),
	}
	return s.db.WithContext(ctx).Create(&move).Error
}

// CompleteMatch marks a match as finished with the provided outcome.
func (s *Store) CompleteMatch(ctx context.Context, id uuid.UUID, winner, reason, details string, completedAt time.Time) error {
	if s == nil {
		return nil
	}
	status := "finished"
	active := false
	return s.UpdateMatch(ctx, id, MatchUpdate{
		Status:      &status,
		Winner:      &winner,
		Reason:      &reason,
		Details:     &details,
		Active:      &active,
		CompletedAt: &completedAt,
	})
}

// ForgetMatch closes a match whose room disappeared. Completed matches keep
// their outcome.
func (s *Store) ForgetMatch(ctx context.Context, id uuid.UUID, when time.Time) error {
	if s == nil {
		return nil
	}
	return s.db.WithContext(ctx).Model(&Match{}).
		Where("id = ? AND active = ?", id, true).
		Updates(map[string]any{
			"status":       "finished",
			"reason":       "abandoned",
			"active":       false,
			"completed_at": when,
		}).Error
}

// ActiveMatches lists the ids of matches still marked in play, oldest first.
func (s *Store) ActiveMatches(ctx context.Context) ([]uuid.UUID, error) {
	if s == nil {
		return nil, nil
	}
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&Match{}).
		Where("active = ? AND snapshot IS NOT NULL", true).
		Order("last_seen").
		Pluck("id", &ids).Error
	return ids, err
}

// PersistedMatch is a stored match with its seats and history.
type PersistedMatch struct {
	Match Match
	Seats []Seat
	Moves []Move
}

// LoadMatch fetches a persisted match with its seats and ordered moves.
func (s *Store) LoadMatch(ctx context.Context, id uuid.UUID) (*PersistedMatch, error) {
	if s == nil {
		return nil, gorm.ErrRecordNotFound
	}
	var m Match
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	var seats []Seat
	if err := s.db.WithContext(ctx).Where("match_id = ?", id).Order("number").Find(&seats).Error; err != nil {
		return nil, err
	}
	var moves []Move
	if err := s.db.WithContext(ctx).Where("match_id = ?", id).Order("sequence").Find(&moves).Error; err != nil {
		return nil, err
	}
	return &PersistedMatch{Match: m, Seats: seats, Moves: moves}, nil
}

// Stats represents aggregate counts for matches.
type Stats struct {
	Started   int64 `json:"started"`
	Completed int64 `json:"completed"`
	Active    int64 `json:"active"`
	Moves     int64 `json:"moves"`
}

// FetchStats aggregates match counts.
func (s *Store) FetchStats(ctx context.Context) (Stats, error) {
	var stats Stats
	if s == nil {
		return stats, nil
	}
	if err := s.db.WithContext(ctx).Model(&Match{}).Count(&stats.Started).Error; err != nil {
		return stats, err
	}
	if err := s.db.WithContext(ctx).Model(&Match{}).Where("active = ?", true).Count(&stats.Active).Error; err != nil {
		return stats, err
	}
	if err := s.db.WithContext(ctx).Model(&Match{}).Where("completed_at IS NOT NULL").Count(&stats.Completed).Error; err != nil {
		return stats, err
	}
	if err := s.db.WithContext(ctx).Model(&Move{}).Count(&stats.Moves).Error; err != nil {
		return stats, err
	}
	return stats, nil
}
