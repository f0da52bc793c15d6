// Package storage is the Redis persistence layer: room state with a
// bounded TTL, finished-game results, an append-only per-room history,
// versioned crash-recovery checkpoints, sliding-expiry sessions, user
// profiles and the player-to-room binding.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"example.com/undercover/internal/game"
)

const historyKeep = 1000

type Options struct {
	StateTTL      time.Duration
	ResultTTL     time.Duration
	CheckpointTTL time.Duration
	SessionTTL    time.Duration
}

type Redis struct {
	rdb  *redis.Client
	opts Options
}

func NewRedis(rdb *redis.Client, opts Options) *Redis {
	if opts.StateTTL <= 0 {
		opts.StateTTL = time.Hour
	}
	if opts.ResultTTL <= 0 {
		opts.ResultTTL = 24 * time.Hour
	}
	if opts.CheckpointTTL <= 0 {
		opts.CheckpointTTL = 24 * time.Hour
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	return &Redis{rdb: rdb, opts: opts}
}

func roomStateKey(roomID string) string    { return fmt.Sprintf("room:%s:state", roomID) }
func gameResultKey(roomID string) string   { return fmt.Sprintf("game:%s:result", roomID) }
func historyKey(roomID string) string      { return fmt.Sprintf("game_history:%s", roomID) }
func checkpointKey(roomID string) string   { return fmt.Sprintf("checkpoint:%s", roomID) }
func verificationKey(roomID string) string { return fmt.Sprintf("state_verification:%s", roomID) }
func sessionKey(sessionID string) string   { return fmt.Sprintf("session:%s", sessionID) }
func userKey(userID string) string         { return fmt.Sprintf("user:%s", userID) }
func playerKey(playerID string) string     { return fmt.Sprintf("player:%s", playerID) }

// SaveRoomState overwrites the room record and refreshes its TTL, so an
// untouched room eventually becomes unreachable. The verification hash
// rides along with every save, so a later checkpoint of the same state
// can prove it matches the last thing written.
func (s *Redis) SaveRoomState(ctx context.Context, roomID string, st *game.State) error {
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode room state: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, roomStateKey(roomID), b, s.opts.StateTTL)
	pipe.Set(ctx, verificationKey(roomID), stateHash(b), s.opts.StateTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func stateHash(encoded []byte) string {
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

func (s *Redis) LoadRoomState(ctx context.Context, roomID string) (*game.State, bool, error) {
	val, err := s.rdb.Get(ctx, roomStateKey(roomID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var st game.State
	if err := json.Unmarshal(val, &st); err != nil {
		return nil, false, fmt.Errorf("decode room state: %w", err)
	}
	st.Normalize()
	return &st, true, nil
}

func (s *Redis) DeleteRoomState(ctx context.Context, roomID string) error {
	return s.rdb.Del(ctx, roomStateKey(roomID), verificationKey(roomID), checkpointKey(roomID)).Err()
}

// GameResult is the terminal record of one finished game, with full role
// disclosure.
type GameResult struct {
	RoomID    string        `json:"room_id"`
	Winner    game.Role     `json:"winner"`
	Players   []game.Player `json:"players"`
	Timestamp time.Time     `json:"timestamp"`
}

func (s *Redis) SaveGameResult(ctx context.Context, roomID string, winner game.Role, players []game.Player) error {
	b, err := json.Marshal(GameResult{
		RoomID:    roomID,
		Winner:    winner,
		Players:   players,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode game result: %w", err)
	}
	return s.rdb.Set(ctx, gameResultKey(roomID), b, s.opts.ResultTTL).Err()
}

func (s *Redis) LoadGameResult(ctx context.Context, roomID string) (GameResult, bool, error) {
	val, err := s.rdb.Get(ctx, gameResultKey(roomID)).Bytes()
	if err == redis.Nil {
		return GameResult{}, false, nil
	}
	if err != nil {
		return GameResult{}, false, err
	}
	var res GameResult
	if err := json.Unmarshal(val, &res); err != nil {
		return GameResult{}, false, fmt.Errorf("decode game result: %w", err)
	}
	return res, true, nil
}

// AppendHistory pushes a state snapshot onto the room's history log.
// Index 0 is the newest entry; the log is trimmed to a bounded length.
func (s *Redis) AppendHistory(ctx context.Context, roomID string, st *game.State) error {
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, historyKey(roomID), b)
	pipe.LTrim(ctx, historyKey(roomID), 0, historyKeep-1)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Redis) LatestHistory(ctx context.Context, roomID string) (*game.State, bool, error) {
	val, err := s.rdb.LIndex(ctx, historyKey(roomID), 0).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var st game.State
	if err := json.Unmarshal(val, &st); err != nil {
		return nil, false, fmt.Errorf("decode history entry: %w", err)
	}
	st.Normalize()
	return &st, true, nil
}

// Checkpoint is a versioned snapshot written for crash recovery. The
// consistency flag records whether the state hash matched the previous
// save at checkpoint time.
type Checkpoint struct {
	State        *game.State `json:"state"`
	Version      uint64      `json:"version"`
	Timestamp    time.Time   `json:"timestamp"`
	IsConsistent bool        `json:"is_consistent"`
}

func (s *Redis) SaveCheckpoint(ctx context.Context, roomID string, st *game.State, version uint64) error {
	consistent, err := s.VerifyStateConsistency(ctx, roomID, st)
	if err != nil {
		return err
	}
	b, err := json.Marshal(Checkpoint{
		State:        st,
		Version:      version,
		Timestamp:    time.Now().UTC(),
		IsConsistent: consistent,
	})
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	return s.rdb.Set(ctx, checkpointKey(roomID), b, s.opts.CheckpointTTL).Err()
}

func (s *Redis) LoadCheckpoint(ctx context.Context, roomID string) (Checkpoint, bool, error) {
	val, err := s.rdb.Get(ctx, checkpointKey(roomID)).Bytes()
	if err == redis.Nil {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(val, &cp); err != nil {
		return Checkpoint{}, false, fmt.Errorf("decode checkpoint: %w", err)
	}
	if cp.State != nil {
		cp.State.Normalize()
	}
	return cp, true, nil
}

// VerifyStateConsistency hashes the state and compares it to the hash
// recorded by the last SaveRoomState. A room with no recorded hash is
// trivially consistent.
func (s *Redis) VerifyStateConsistency(ctx context.Context, roomID string, st *game.State) (bool, error) {
	b, err := json.Marshal(st)
	if err != nil {
		return false, fmt.Errorf("encode state for hashing: %w", err)
	}
	prev, err := s.rdb.Get(ctx, verificationKey(roomID)).Result()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return prev == stateHash(b), nil
}

// RecoverRoomState is the restart path. The live state record is always
// newest, so it wins when present; after that the latest checkpoint if
// its consistency flag is set, then the newest history entry, and a room
// with none of those starts empty.
func (s *Redis) RecoverRoomState(ctx context.Context, roomID string) (*game.State, bool, error) {
	if st, ok, err := s.LoadRoomState(ctx, roomID); err != nil || ok {
		return st, ok, err
	}
	cp, ok, err := s.LoadCheckpoint(ctx, roomID)
	if err != nil {
		return nil, false, err
	}
	if ok && cp.IsConsistent && cp.State != nil {
		return cp.State, true, nil
	}
	return s.LatestHistory(ctx, roomID)
}

// Session is an authenticated user session. Reads slide the expiry
// forward, so only abandoned sessions lapse.
type Session struct {
	ID        string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Redis) SaveSession(ctx context.Context, sess Session) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.rdb.Set(ctx, sessionKey(sess.ID), b, s.opts.SessionTTL).Err()
}

func (s *Redis) GetSession(ctx context.Context, sessionID string) (Session, bool, error) {
	key := sessionKey(sessionID)
	val, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	var sess Session
	if err := json.Unmarshal(val, &sess); err != nil {
		return Session{}, false, fmt.Errorf("decode session: %w", err)
	}
	sess.ExpiresAt = time.Now().UTC().Add(s.opts.SessionTTL)
	if b, err := json.Marshal(sess); err == nil {
		_ = s.rdb.Set(ctx, key, b, s.opts.SessionTTL).Err()
	}
	return sess, true, nil
}

func (s *Redis) DeleteSession(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, sessionKey(sessionID)).Err()
}

// UserProfile is the public face of an account. Unlike everything else in
// this package it has no TTL.
type UserProfile struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Redis) SaveUserProfile(ctx context.Context, u UserProfile) error {
	b, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode user profile: %w", err)
	}
	return s.rdb.Set(ctx, userKey(u.ID), b, 0).Err()
}

func (s *Redis) GetUserProfile(ctx context.Context, userID string) (UserProfile, bool, error) {
	val, err := s.rdb.Get(ctx, userKey(userID)).Bytes()
	if err == redis.Nil {
		return UserProfile{}, false, nil
	}
	if err != nil {
		return UserProfile{}, false, err
	}
	var u UserProfile
	if err := json.Unmarshal(val, &u); err != nil {
		return UserProfile{}, false, fmt.Errorf("decode user profile: %w", err)
	}
	return u, true, nil
}

func (s *Redis) DeleteUserProfile(ctx context.Context, userID string) error {
	return s.rdb.Del(ctx, userKey(userID)).Err()
}

// BindPlayerRoom records which room a player currently sits in. The
// connection registry answers this for the local process; the binding is
// what survives a restart.
func (s *Redis) BindPlayerRoom(ctx context.Context, playerID, name, roomID string) error {
	return s.rdb.HSet(ctx, playerKey(playerID), "name", name, "room_id", roomID).Err()
}

func (s *Redis) PlayerRoom(ctx context.Context, playerID string) (string, bool, error) {
	roomID, err := s.rdb.HGet(ctx, playerKey(playerID), "room_id").Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return roomID, roomID != "", nil
}

func (s *Redis) ClearPlayerRoom(ctx context.Context, playerID string) error {
	return s.rdb.Del(ctx, playerKey(playerID)).Err()
}
