package game

import "time"

// PlayerID is an opaque identity, stable across reconnects.
type PlayerID = string

type Role string

const (
	RoleCivilian   Role = "civilian"
	RoleUndercover Role = "undercover"
)

type Player struct {
	ID         PlayerID  `json:"id"`
	Name       string    `json:"name"`
	Role       Role      `json:"role,omitempty"`
	Word       string    `json:"word,omitempty"`
	IsAlive    bool      `json:"is_alive"`
	LastAction time.Time `json:"last_action"`
}

type ChatMessage struct {
	PlayerID   PlayerID  `json:"player_id"`
	PlayerName string    `json:"player_name"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

// WordPair is one drawn civilian/undercover word pairing.
type WordPair struct {
	CivilianWord   string `json:"civilian_word"`
	UndercoverWord string `json:"undercover_word"`
}

// WordSource supplies word pairs for game starts.
type WordSource interface {
	RandomWordPair() (WordPair, bool)
}

// EliminatedTie is the sentinel stored in ResultPhase when no single
// player had a strict plurality.
const EliminatedTie = "tie"
