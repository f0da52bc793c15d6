package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/undercover/internal/game"
)

type PlayerStats struct {
	UserID               string
	GamesPlayed          int
	GamesWon             int
	GamesAsUndercover    int
	GamesWonAsUndercover int
	GamesAsCivilian      int
	GamesWonAsCivilian   int
	LastPlayed           time.Time
}

type StatsStore struct {
	db *pgxpool.Pool
}

func NewStatsStore(db *pgxpool.Pool) *StatsStore {
	return &StatsStore{db: db}
}

func (s *StatsStore) InitForUser(ctx context.Context, userID string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO player_stats (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	return err
}

func (s *StatsStore) Get(ctx context.Context, userID string) (PlayerStats, error) {
	var st PlayerStats
	err := s.db.QueryRow(ctx, `
		SELECT user_id, games_played, games_won,
		       games_as_undercover, games_won_as_undercover,
		       games_as_civilian, games_won_as_civilian,
		       last_played
		FROM player_stats
		WHERE user_id=$1
	`, userID).Scan(&st.UserID, &st.GamesPlayed, &st.GamesWon,
		&st.GamesAsUndercover, &st.GamesWonAsUndercover,
		&st.GamesAsCivilian, &st.GamesWonAsCivilian,
		&st.LastPlayed)

	if errors.Is(err, pgx.ErrNoRows) {
		// missing stats are not fatal, treat as zeroes
		return PlayerStats{UserID: userID}, nil
	}
	if err != nil {
		return PlayerStats{}, err
	}
	return st, nil
}

// RecordGame bumps one player's counters after a finished game.
func (s *StatsStore) RecordGame(ctx context.Context, userID string, role game.Role, won bool) error {
	wonN := 0
	if won {
		wonN = 1
	}
	asUC, wonUC, asCiv, wonCiv := 0, 0, 0, 0
	switch role {
	case game.RoleUndercover:
		asUC = 1
		wonUC = wonN
	case game.RoleCivilian:
		asCiv = 1
		wonCiv = wonN
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO player_stats (
			user_id, games_played, games_won,
			games_as_undercover, games_won_as_undercover,
			games_as_civilian, games_won_as_civilian, last_played
		)
		VALUES ($1, 1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (user_id) DO UPDATE SET
			games_played = player_stats.games_played + 1,
			games_won = player_stats.games_won + $2,
			games_as_undercover = player_stats.games_as_undercover + $3,
			games_won_as_undercover = player_stats.games_won_as_undercover + $4,
			games_as_civilian = player_stats.games_as_civilian + $5,
			games_won_as_civilian = player_stats.games_won_as_civilian + $6,
			last_played = now()
	`, userID, wonN, asUC, wonUC, asCiv, wonCiv)
	return err
}
