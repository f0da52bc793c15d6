package room

import (
	"encoding/json"

	"example.com/undercover/internal/game"
)

// Envelope is the wire frame in both directions: a type tag plus an
// opaque data object.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func envelope(msgType string, data any) Envelope {
	return Envelope{Type: msgType, Data: mustJSON(data)}
}

// Inbound payloads.

type JoinPayload struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
}

type ReadyPayload struct {
	PlayerID string `json:"player_id"`
}

type DescribePayload struct {
	PlayerID string `json:"player_id"`
	Content  string `json:"content"`
}

type VotePayload struct {
	PlayerID string `json:"player_id"`
	TargetID string `json:"target_id"`
}

type ChatPayload struct {
	PlayerID string `json:"player_id"`
	Content  string `json:"content"`
}

type LeavePayload struct {
	PlayerID string `json:"player_id"`
}

type KickPayload struct {
	PlayerID string `json:"player_id"`
	TargetID string `json:"target_id"`
}

// Outbound payloads.

type NotificationPayload struct {
	Message      string      `json:"message"`
	TotalPlayers int         `json:"total_players,omitempty"`
	ReadyCount   int         `json:"ready_count,omitempty"`
	MinPlayers   int         `json:"min_players,omitempty"`
	VoteCount    []VoteCount `json:"vote_count,omitempty"`
}

type VoteCount struct {
	PlayerID   game.PlayerID `json:"player_id"`
	PlayerName string        `json:"player_name"`
	Votes      int           `json:"votes"`
}

type ErrorPayload struct {
	Code    game.ErrorCode `json:"code"`
	Message string         `json:"message"`
}

type CountdownPayload struct {
	Seconds int `json:"seconds"`
}

type MessagePayload struct {
	Message string `json:"message"`
}

type DescriptionsUpdatePayload struct {
	Message      string                  `json:"message,omitempty"`
	Descriptions []game.DescriptionEntry `json:"descriptions"`
}

type ChatBroadcastPayload struct {
	PlayerID   game.PlayerID `json:"player_id"`
	PlayerName string        `json:"player_name"`
	Content    string        `json:"content"`
	Timestamp  int64         `json:"timestamp"`
}

// PlayerView is one player inside a state snapshot. Role and word are
// filled only for the recipient's own entry until full disclosure at game
// over.
type PlayerView struct {
	ID      game.PlayerID `json:"id"`
	Name    string        `json:"name"`
	IsAlive bool          `json:"is_alive"`
	IsReady *bool         `json:"is_ready,omitempty"`
	Role    game.Role     `json:"role,omitempty"`
	Word    string        `json:"word,omitempty"`
}

type VoteView struct {
	PlayerID game.PlayerID `json:"player_id"`
	TargetID game.PlayerID `json:"target_id"`
}

// StateSnapshot is the personalized state_update payload.
type StateSnapshot struct {
	State          string                  `json:"state"`
	Players        []PlayerView            `json:"players"`
	TotalPlayers   int                     `json:"total_players"`
	Host           game.PlayerID           `json:"host"`
	CurrentPlayer  game.PlayerID           `json:"current_player,omitempty"`
	Descriptions   []game.DescriptionEntry `json:"descriptions,omitempty"`
	Eliminated     *game.PlayerID          `json:"eliminated,omitempty"`
	Votes          []VoteView              `json:"votes,omitempty"`
	Winner         game.Role               `json:"winner,omitempty"`
	CivilianWord   string                  `json:"civilian_word,omitempty"`
	UndercoverWord string                  `json:"undercover_word,omitempty"`
	ChatMessages   []ChatBroadcastPayload  `json:"chat_messages,omitempty"`
	EliminatedChat []ChatBroadcastPayload  `json:"eliminated_chat_messages,omitempty"`
}

func chatPayloads(msgs []game.ChatMessage) []ChatBroadcastPayload {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]ChatBroadcastPayload, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ChatBroadcastPayload{
			PlayerID:   m.PlayerID,
			PlayerName: m.PlayerName,
			Content:    m.Content,
			Timestamp:  m.Timestamp.Unix(),
		})
	}
	return out
}
