// Package room hosts one game session per Room: a single mutex guards the
// phase value, the channel map and the room metadata, so every intent,
// timer tick and broadcast runs through one critical section. Methods with
// the Locked suffix expect the caller to hold mu.
package room

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"example.com/undercover/internal/game"
)

// Storage is the persistence contract the room drives after each
// mutation. Failures are logged and swallowed; the in-memory phase value
// stays the source of truth during a live session.
type Storage interface {
	SaveRoomState(ctx context.Context, roomID string, st *game.State) error
	DeleteRoomState(ctx context.Context, roomID string) error
	RecoverRoomState(ctx context.Context, roomID string) (*game.State, bool, error)
	SaveCheckpoint(ctx context.Context, roomID string, st *game.State, version uint64) error
	AppendHistory(ctx context.Context, roomID string, st *game.State) error
	SaveGameResult(ctx context.Context, roomID string, winner game.Role, players []game.Player) error
	BindPlayerRoom(ctx context.Context, playerID, name, roomID string) error
	ClearPlayerRoom(ctx context.Context, playerID string) error
}

type Config struct {
	MinPlayers int
	MaxPlayers int
	Timing     game.Timing

	// Heartbeat drives timeout checks and idle/empty expiry; the
	// countdown runs on its own 1-second tick.
	Heartbeat time.Duration
	MaxIdle   time.Duration

	// CheckpointEvery writes a recovery checkpoint plus a history entry
	// once per this many saves. Zero disables checkpointing.
	CheckpointEvery uint64
}

type Room struct {
	ID string

	cfg   Config
	log   *slog.Logger
	store Storage
	words game.WordSource
	reg   *ConnectionRegistry
	now   func() time.Time
	rng   *rand.Rand

	// onDelete removes the room from the directory; onEvict asks the
	// directory to pull a player out of another room. Rooms never hold
	// references to each other.
	onDelete func(roomID string)
	onEvict  func(playerID game.PlayerID, roomID string)

	mu           sync.Mutex
	state        *game.State
	channels     map[game.PlayerID]chan []byte
	order        []game.PlayerID
	lastActivity time.Time
	isNew        bool
	deleted      bool
	saves        uint64
	done         chan struct{}
}

func New(id string, cfg Config, store Storage, words game.WordSource, reg *ConnectionRegistry, log *slog.Logger) *Room {
	if log == nil {
		log = slog.Default()
	}
	r := &Room{
		ID:       id,
		cfg:      cfg,
		log:      log.With("room", id),
		store:    store,
		words:    words,
		reg:      reg,
		now:      time.Now,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		state:    game.NewState(cfg.MinPlayers, cfg.MaxPlayers, "", cfg.Timing),
		channels: make(map[game.PlayerID]chan []byte),
		isNew:    true,
		done:     make(chan struct{}),
	}
	r.lastActivity = r.now()
	return r
}

// SetDeleteCallback wires directory removal; called once before Run.
func (r *Room) SetDeleteCallback(fn func(roomID string)) { r.onDelete = fn }

// SetEvictCallback wires cross-room eviction; called once before Run.
func (r *Room) SetEvictCallback(fn func(playerID game.PlayerID, roomID string)) { r.onEvict = fn }

// Restore replaces the in-memory phase with the recovered one, if any.
// Used when the directory re-creates a room that has persisted state.
func (r *Room) Restore(ctx context.Context) error {
	st, ok, err := r.store.RecoverRoomState(ctx, r.ID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	st.Normalize()
	r.mu.Lock()
	r.state = st
	r.order = r.order[:0]
	for _, p := range st.Players {
		r.order = append(r.order, p.ID)
	}
	r.mu.Unlock()
	r.log.Info("room state recovered", "phase", st.Phase, "players", len(st.Players))
	return nil
}

// HandleEnvelope dispatches one inbound frame from the given connection.
// The returned error is for the sender only; no other player is notified.
func (r *Room) HandleEnvelope(ctx context.Context, env Envelope, ch chan []byte) error {
	switch env.Type {
	case "join":
		var p JoinPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.PlayerID == "" || p.PlayerName == "" {
			return badPayload("join")
		}
		return r.Join(ctx, p.PlayerID, p.PlayerName, ch)
	case "ready":
		var p ReadyPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.PlayerID == "" {
			return badPayload("ready")
		}
		return r.Ready(ctx, p.PlayerID)
	case "describe":
		var p DescribePayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.PlayerID == "" {
			return badPayload("describe")
		}
		return r.Describe(ctx, p.PlayerID, p.Content)
	case "vote":
		var p VotePayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.PlayerID == "" || p.TargetID == "" {
			return badPayload("vote")
		}
		return r.Vote(ctx, p.PlayerID, p.TargetID)
	case "chat":
		var p ChatPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.PlayerID == "" {
			return badPayload("chat")
		}
		return r.Chat(ctx, p.PlayerID, p.Content)
	case "eliminated_chat":
		var p ChatPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.PlayerID == "" {
			return badPayload("eliminated_chat")
		}
		return r.EliminatedChat(ctx, p.PlayerID, p.Content)
	case "leave":
		var p LeavePayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.PlayerID == "" {
			return badPayload("leave")
		}
		return r.Leave(ctx, p.PlayerID)
	case "kick":
		var p KickPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.PlayerID == "" || p.TargetID == "" {
			return badPayload("kick")
		}
		return r.Kick(ctx, p.PlayerID, p.TargetID)
	default:
		return &game.Error{Code: game.CodeInvalidAction, Message: fmt.Sprintf("unknown message type %q", env.Type)}
	}
}

func badPayload(msgType string) error {
	return &game.Error{Code: game.CodeInvalidAction, Message: fmt.Sprintf("invalid %s payload", msgType)}
}

// Join admits a new player or re-binds the channel of a returning one.
// A player live in another room is evicted from there first, through the
// directory.
func (r *Room) Join(ctx context.Context, playerID game.PlayerID, name string, ch chan []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted {
		return errRoomDeleted()
	}

	if p := r.playerLocked(playerID); p != nil {
		r.reg.Register(playerID, r.ID, ch)
		r.channels[playerID] = ch
		r.touchLocked()
		r.broadcastLocked(envelope("notification", NotificationPayload{
			Message: fmt.Sprintf("%s reconnected", p.Name),
		}))
		r.broadcastStateLocked()
		return nil
	}

	ev, err := r.state.AddPlayer(game.Player{ID: playerID, Name: name, LastAction: r.now()})
	if err != nil {
		return err
	}
	// register only after the seat is granted, so a rejected join never
	// disturbs the player's binding in another room
	if prev, had := r.reg.Register(playerID, r.ID, ch); had && prev.RoomID != r.ID && r.onEvict != nil {
		r.onEvict(playerID, prev.RoomID)
	}
	r.channels[playerID] = ch
	r.order = append(r.order, playerID)
	r.isNew = false
	r.touchLocked()
	if err := r.store.BindPlayerRoom(ctx, playerID, name, r.ID); err != nil {
		r.log.Error("bind player room", "player", playerID, "error", err)
	}
	r.applyLocked(ctx, ev)
	return nil
}

func (r *Room) Ready(ctx context.Context, playerID game.PlayerID) error {
	return r.intent(ctx, func() (game.Event, error) {
		return r.state.PlayerReady(playerID, r.now())
	})
}

func (r *Room) Describe(ctx context.Context, playerID game.PlayerID, content string) error {
	return r.intent(ctx, func() (game.Event, error) {
		return r.state.AddDescription(playerID, content, r.now())
	})
}

func (r *Room) Vote(ctx context.Context, voter, target game.PlayerID) error {
	return r.intent(ctx, func() (game.Event, error) {
		return r.state.AddVote(voter, target, r.now())
	})
}

func (r *Room) Chat(ctx context.Context, playerID game.PlayerID, content string) error {
	return r.intent(ctx, func() (game.Event, error) {
		return r.state.AddChat(playerID, content, r.now())
	})
}

func (r *Room) EliminatedChat(ctx context.Context, playerID game.PlayerID, content string) error {
	return r.intent(ctx, func() (game.Event, error) {
		return r.state.AddEliminatedChat(playerID, content, r.now())
	})
}

func (r *Room) Kick(ctx context.Context, kicker, target game.PlayerID) error {
	return r.intent(ctx, func() (game.Event, error) {
		return r.state.KickPlayer(kicker, target)
	})
}

// Leave removes the player outright in Lobby/GameOver. During a running
// game it only marks them dead and drops the channel; they stay in the
// player list for win-condition bookkeeping.
func (r *Room) Leave(ctx context.Context, playerID game.PlayerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted {
		return errRoomDeleted()
	}
	p := r.playerLocked(playerID)
	if p == nil {
		return nil
	}

	switch r.state.Phase {
	case game.PhaseLobby, game.PhaseGameOver:
		ev, err := r.state.RemovePlayer(playerID)
		if err != nil {
			return err
		}
		r.dropPlayerLocked(ctx, playerID)
		r.forgetOrderLocked(playerID)
		r.applyLocked(ctx, ev)
	default:
		name := p.Name
		ev, err := r.state.PlayerDeparted(playerID, r.now())
		if err != nil {
			return err
		}
		r.dropPlayerLocked(ctx, playerID)
		r.touchLocked()
		r.broadcastLocked(envelope("notification", NotificationPayload{
			Message: fmt.Sprintf("%s left the game", name),
		}))
		r.broadcastStateLocked()
		r.saveLocked(ctx)
		if ev != nil {
			r.applyLocked(ctx, ev)
		}
	}
	return nil
}

// EvictPlayer is the directory-driven removal of a player who joined a
// different room. Missing players are a no-op, so stale eviction requests
// are harmless.
func (r *Room) EvictPlayer(ctx context.Context, playerID game.PlayerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted || r.playerLocked(playerID) == nil {
		return
	}
	r.sendToLocked(playerID, envelope("kicked_from_other_room", MessagePayload{
		Message: "you joined another room and were disconnected from this one",
	}))

	switch r.state.Phase {
	case game.PhaseLobby, game.PhaseGameOver:
		if ev, err := r.state.RemovePlayer(playerID); err == nil {
			r.dropPlayerLocked(ctx, playerID)
			r.forgetOrderLocked(playerID)
			r.applyLocked(ctx, ev)
			return
		}
	}
	ev, err := r.state.PlayerDeparted(playerID, r.now())
	if err != nil {
		r.log.Error("evict from running game", "player", playerID, "error", err)
	}
	r.dropPlayerLocked(ctx, playerID)
	r.broadcastStateLocked()
	r.saveLocked(ctx)
	if ev != nil {
		r.applyLocked(ctx, ev)
	}
}

// intent runs one state-machine operation under the room lock and applies
// the resulting event chain before releasing it.
func (r *Room) intent(ctx context.Context, op func() (game.Event, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted {
		return errRoomDeleted()
	}
	ev, err := op()
	if err != nil {
		return err
	}
	r.touchLocked()
	r.applyLocked(ctx, ev)
	return nil
}

func errRoomDeleted() error {
	return &game.Error{Code: game.CodeRoomDeleted, Message: "room has been deleted"}
}

// applyLocked is the trampoline: events that chain into further
// transitions are queued and processed here, inside the same critical
// section as the triggering intent, with bounded stack depth.
func (r *Room) applyLocked(ctx context.Context, ev game.Event) {
	queue := []game.Event{ev}
	for len(queue) > 0 {
		next := r.handleEventLocked(ctx, queue[0])
		queue = append(queue[1:], next...)
	}
}

func (r *Room) handleEventLocked(ctx context.Context, ev game.Event) []game.Event {
	switch e := ev.(type) {
	case game.PlayerJoined:
		r.broadcastLocked(envelope("notification", NotificationPayload{
			Message:      fmt.Sprintf("%s joined the game", e.Player.Name),
			TotalPlayers: len(r.state.Players),
		}))
		r.broadcastStateLocked()
		r.saveLocked(ctx)

	case game.PlayerLeft:
		r.broadcastLocked(envelope("notification", NotificationPayload{
			Message: fmt.Sprintf("%s left the game", e.Player.Name),
		}))
		r.broadcastStateLocked()
		r.saveLocked(ctx)

	case game.PlayerKicked:
		r.sendToLocked(e.Player.ID, envelope("kicked", MessagePayload{
			Message: fmt.Sprintf("you were kicked from the room by %s", r.nameLocked(e.Kicker)),
		}))
		r.dropPlayerLocked(ctx, e.Player.ID)
		r.forgetOrderLocked(e.Player.ID)
		r.broadcastLocked(envelope("notification", NotificationPayload{
			Message: fmt.Sprintf("%s was kicked by %s", e.Player.Name, r.nameLocked(e.Kicker)),
		}))
		r.broadcastStateLocked()
		r.saveLocked(ctx)

	case game.PlayerReady:
		if e.Reset {
			r.broadcastLocked(envelope("notification", NotificationPayload{
				Message: "a new game is being set up",
			}))
		}
		r.broadcastLocked(envelope("notification", NotificationPayload{
			Message:    fmt.Sprintf("%s is %s", r.nameLocked(e.PlayerID), readyWord(e.Ready)),
			ReadyCount: len(r.state.Ready),
			MinPlayers: r.cfg.MinPlayers,
		}))
		r.broadcastStateLocked()
		if e.CanStart && len(r.state.Ready) == len(r.state.Players) {
			ev, err := r.state.StartGame(r.words, r.order, r.rng, r.now())
			if err != nil {
				r.log.Error("auto start failed", "error", err)
			} else {
				r.saveLocked(ctx)
				return []game.Event{ev}
			}
		}
		r.saveLocked(ctx)

	case game.GameStarted:
		r.broadcastLocked(envelope("notification", NotificationPayload{
			Message: "the game has started, describe phase begins",
		}))
		r.broadcastStateLocked()
		r.saveLocked(ctx)

	case game.DescriptionAdded:
		r.broadcastDescriptionsLocked(fmt.Sprintf("%s finished describing", r.nameLocked(e.PlayerID)))
		advance, err := r.state.AdvanceDescribePhase(r.now())
		if err != nil {
			r.log.Error("advance describe phase", "error", err)
			return nil
		}
		r.saveLocked(ctx)
		return []game.Event{advance}

	case game.NextPlayer:
		r.broadcastDescriptionsLocked(fmt.Sprintf("it is %s's turn to describe", r.nameLocked(e.PlayerID)))
		r.broadcastStateLocked()
		r.saveLocked(ctx)

	case game.DescribePhaseComplete:
		r.broadcastDescriptionsLocked("")
		r.broadcastLocked(envelope("notification", NotificationPayload{
			Message: "describe phase is over, voting begins",
		}))
		r.broadcastStateLocked()
		r.saveLocked(ctx)

	case game.VoteAdded:
		r.broadcastLocked(envelope("notification", NotificationPayload{
			Message: fmt.Sprintf("%s voted for %s", r.nameLocked(e.Voter), r.nameLocked(e.Target)),
		}))
		r.saveLocked(ctx)

	case game.VotePhaseComplete:
		r.broadcastLocked(envelope("notification", r.tallyNotificationLocked(e.Votes)))
		r.broadcastStateLocked()
		r.saveLocked(ctx)

	case game.RoundComplete:
		if cur, ok := r.state.CurrentPlayer(); ok {
			r.broadcastLocked(envelope("notification", NotificationPayload{
				Message: fmt.Sprintf("a new round begins, %s describes first", cur.Name),
			}))
		}
		r.broadcastStateLocked()
		r.saveLocked(ctx)

	case game.GameEnded:
		if err := r.store.SaveGameResult(ctx, r.ID, e.Winner, r.state.Players); err != nil {
			r.log.Error("save game result", "error", err)
		}
		r.broadcastGameOverLocked(e.Winner)
		r.saveLocked(ctx)

	case game.ChatAdded:
		r.broadcastLocked(envelope("chat", ChatBroadcastPayload{
			PlayerID:   e.Message.PlayerID,
			PlayerName: e.Message.PlayerName,
			Content:    e.Message.Content,
			Timestamp:  e.Message.Timestamp.Unix(),
		}))
		r.saveLocked(ctx)

	case game.EliminatedChatAdded:
		r.broadcastEliminatedLocked(envelope("eliminated_chat", ChatBroadcastPayload{
			PlayerID:   e.Message.PlayerID,
			PlayerName: e.Message.PlayerName,
			Content:    e.Message.Content,
			Timestamp:  e.Message.Timestamp.Unix(),
		}))
		r.saveLocked(ctx)
	}
	return nil
}

func readyWord(ready bool) string {
	if ready {
		return "ready"
	}
	return "no longer ready"
}

func (r *Room) tallyNotificationLocked(votes map[game.PlayerID]game.PlayerID) NotificationPayload {
	count := make(map[game.PlayerID]int)
	for _, target := range votes {
		count[target]++
	}
	views := make([]VoteCount, 0, len(count))
	for id, c := range count {
		views = append(views, VoteCount{PlayerID: id, PlayerName: r.nameLocked(id), Votes: c})
	}

	msg := "voting is over"
	switch eliminated := r.state.Eliminated; eliminated {
	case game.EliminatedTie:
		msg = "the vote is tied, nobody is eliminated"
	case "":
	default:
		msg = fmt.Sprintf("%s was voted out", r.nameLocked(eliminated))
	}
	return NotificationPayload{Message: msg, VoteCount: views}
}

// Run drives the room lifecycle: the heartbeat tick checks expiry and
// phase deadlines, the countdown tick rebroadcasts the remaining seconds.
func (r *Room) Run(ctx context.Context) {
	heartbeat := time.NewTicker(r.cfg.Heartbeat)
	countdown := time.NewTicker(time.Second)
	defer heartbeat.Stop()
	defer countdown.Stop()

	r.log.Debug("room lifecycle started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			r.log.Debug("room lifecycle stopped")
			return
		case <-heartbeat.C:
			if r.expireIfIdle(ctx) {
				return
			}
			r.checkTimeout(ctx)
		case <-countdown.C:
			r.tickCountdown(ctx)
		}
	}
}

func (r *Room) expireIfIdle(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted {
		return true
	}
	empty := len(r.channels) == 0
	idle := r.now().Sub(r.lastActivity)
	if (empty && !r.isNew) || (empty && idle > r.cfg.MaxIdle) {
		r.deleteLocked(ctx)
		return true
	}
	return false
}

func (r *Room) checkTimeout(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkTimeoutLocked(ctx)
}

func (r *Room) checkTimeoutLocked(ctx context.Context) {
	if r.deleted {
		return
	}
	var (
		ev  game.Event
		err error
	)
	switch r.state.CheckTimeout(r.now()) {
	case game.TimeoutNone:
		return
	case game.TimeoutDescribe:
		ev, err = r.state.HandleDescribeTimeout(r.now())
	case game.TimeoutVote:
		ev, err = r.state.HandleVoteTimeout(r.rng, r.now())
	case game.TimeoutResult:
		ev, err = r.state.ProcessResultPhase(r.now())
	}
	if err != nil {
		r.log.Error("forced transition failed", "error", err)
		return
	}
	r.applyLocked(ctx, ev)
}

// tickCountdown broadcasts the remaining seconds of a timed phase. A
// countdown that just hit zero forces an immediate timeout check instead
// of waiting for the next heartbeat.
func (r *Room) tickCountdown(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted {
		return
	}
	secs, ok := r.state.UpdateCountdown(r.now())
	if ok {
		r.broadcastLocked(envelope("countdown", CountdownPayload{Seconds: secs}))
		return
	}
	r.checkTimeoutLocked(ctx)
}

// Delete is idempotent: the first call broadcasts a closing notice, does
// a best-effort final save and invokes the directory removal callback;
// later intents fail with a room-deleted error.
func (r *Room) Delete(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteLocked(ctx)
}

func (r *Room) deleteLocked(ctx context.Context) {
	if r.deleted {
		return
	}
	r.deleted = true
	r.log.Info("deleting room", "players", len(r.state.Players))

	r.broadcastLocked(envelope("room_closing", MessagePayload{Message: "the room is closing"}))
	if err := r.store.SaveRoomState(ctx, r.ID, r.state); err != nil {
		r.log.Error("final state save failed", "error", err)
	}
	for id, ch := range r.channels {
		r.reg.Unregister(id, ch)
		if err := r.store.ClearPlayerRoom(ctx, id); err != nil {
			r.log.Error("clear player room", "player", id, "error", err)
		}
	}
	r.channels = make(map[game.PlayerID]chan []byte)
	close(r.done)
	if r.onDelete != nil {
		r.onDelete(r.ID)
	}
}

// Status reports connected players, total players and idle time for
// directory listings.
func (r *Room) Status() (connected, total int, phase game.Phase, deleted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels), len(r.state.Players), r.state.Phase, r.deleted
}

func (r *Room) playerLocked(id game.PlayerID) *game.Player {
	for i := range r.state.Players {
		if r.state.Players[i].ID == id {
			return &r.state.Players[i]
		}
	}
	return nil
}

func (r *Room) nameLocked(id game.PlayerID) string {
	if p := r.playerLocked(id); p != nil {
		return p.Name
	}
	return string(id)
}

func (r *Room) touchLocked() {
	r.lastActivity = r.now()
}

// dropPlayerLocked forgets the player's channel and registry binding.
// Disconnect detaches a dropped connection without removing the player,
// leaving the seat open for a reconnect.
func (r *Room) Disconnect(ch chan []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted {
		return
	}
	for id, bound := range r.channels {
		if bound != ch {
			continue
		}
		delete(r.channels, id)
		r.reg.Unregister(id, ch)
		r.broadcastLocked(envelope("notification", NotificationPayload{
			Message: fmt.Sprintf("%s disconnected", r.nameLocked(id)),
		}))
		return
	}
}

// forgetOrderLocked removes a departed player from the start order, so a
// later rejoin cannot seat the same id twice.
func (r *Room) forgetOrderLocked(id game.PlayerID) {
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

func (r *Room) dropPlayerLocked(ctx context.Context, id game.PlayerID) {
	if ch, ok := r.channels[id]; ok {
		r.reg.Unregister(id, ch)
		delete(r.channels, id)
	}
	if err := r.store.ClearPlayerRoom(ctx, id); err != nil {
		r.log.Error("clear player room", "player", id, "error", err)
	}
}

// sendToLocked delivers one frame to one player without blocking. A full
// channel means a dead or stalled connection: the registration is dropped
// so one slow client never delays the rest of the room.
func (r *Room) sendToLocked(id game.PlayerID, env Envelope) {
	ch, ok := r.channels[id]
	if !ok {
		return
	}
	b, _ := json.Marshal(env)
	select {
	case ch <- b:
	default:
		r.log.Warn("dropping stalled connection", "player", id)
		r.reg.Unregister(id, ch)
		delete(r.channels, id)
	}
}

func (r *Room) broadcastLocked(env Envelope) {
	b, _ := json.Marshal(env)
	for id, ch := range r.channels {
		select {
		case ch <- b:
		default:
			r.log.Warn("dropping stalled connection", "player", id)
			r.reg.Unregister(id, ch)
			delete(r.channels, id)
		}
	}
}

// broadcastEliminatedLocked delivers only to channels whose players are
// no longer alive.
func (r *Room) broadcastEliminatedLocked(env Envelope) {
	for id := range r.channels {
		if p := r.playerLocked(id); p != nil && !p.IsAlive {
			r.sendToLocked(id, env)
		}
	}
}

func (r *Room) broadcastDescriptionsLocked(message string) {
	r.broadcastLocked(envelope("descriptions_update", DescriptionsUpdatePayload{
		Message:      message,
		Descriptions: r.state.OrderedDescriptions(),
	}))
}

// broadcastStateLocked sends a personalized snapshot to every connected
// player: role and word appear only in the recipient's own entry until
// game over discloses everything.
func (r *Room) broadcastStateLocked() {
	for id := range r.channels {
		r.sendToLocked(id, envelope("state_update", r.snapshotLocked(id)))
	}
}

// SendStateTo pushes a fresh personal snapshot to one player.
func (r *Room) SendStateTo(id game.PlayerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.playerLocked(id) == nil {
		return
	}
	r.sendToLocked(id, envelope("state_update", r.snapshotLocked(id)))
}

func (r *Room) snapshotLocked(recipient game.PlayerID) StateSnapshot {
	st := r.state
	disclose := st.Phase == game.PhaseGameOver

	players := make([]PlayerView, 0, len(st.Players))
	for _, p := range st.Players {
		view := PlayerView{ID: p.ID, Name: p.Name, IsAlive: p.IsAlive}
		if st.Phase == game.PhaseLobby {
			ready := st.Ready[p.ID]
			view.IsReady = &ready
		}
		if disclose || p.ID == recipient {
			view.Role = p.Role
			view.Word = p.Word
		}
		players = append(players, view)
	}

	snap := StateSnapshot{
		State:        string(st.Phase),
		Players:      players,
		TotalPlayers: len(st.Players),
		Host:         st.Host,
		Descriptions: st.OrderedDescriptions(),
		ChatMessages: chatPayloads(st.Chat),
	}

	if cur, ok := st.CurrentPlayer(); ok {
		snap.CurrentPlayer = cur.ID
	}
	if st.Phase == game.PhaseResult && st.Eliminated != "" && st.Eliminated != game.EliminatedTie {
		eliminated := st.Eliminated
		snap.Eliminated = &eliminated
	}
	if len(st.Votes) > 0 {
		votes := make([]VoteView, 0, len(st.Votes))
		for _, p := range st.Players {
			if target, ok := st.Votes[p.ID]; ok {
				votes = append(votes, VoteView{PlayerID: p.ID, TargetID: target})
			}
		}
		snap.Votes = votes
	}
	if disclose {
		snap.Winner = st.Winner
		for _, p := range st.Players {
			switch p.Role {
			case game.RoleCivilian:
				if snap.CivilianWord == "" {
					snap.CivilianWord = p.Word
				}
			case game.RoleUndercover:
				if snap.UndercoverWord == "" {
					snap.UndercoverWord = p.Word
				}
			}
		}
	}
	if p := r.playerLocked(recipient); p != nil && (!p.IsAlive || disclose) {
		snap.EliminatedChat = chatPayloads(st.EliminatedChat)
	}
	return snap
}

func (r *Room) broadcastGameOverLocked(winner game.Role) {
	r.broadcastStateLocked()

	var civilianWord, undercoverWord string
	for _, p := range r.state.Players {
		switch p.Role {
		case game.RoleCivilian:
			if civilianWord == "" {
				civilianWord = p.Word
			}
		case game.RoleUndercover:
			if undercoverWord == "" {
				undercoverWord = p.Word
			}
		}
	}
	r.broadcastLocked(envelope("notification", NotificationPayload{
		Message: fmt.Sprintf("game over, the %s side wins. civilian word: %s, undercover word: %s",
			winner, civilianWord, undercoverWord),
	}))
}

// saveLocked persists the current phase value, best effort. Every Nth
// save additionally writes a recovery checkpoint and a history entry.
func (r *Room) saveLocked(ctx context.Context) {
	if err := r.store.SaveRoomState(ctx, r.ID, r.state); err != nil {
		r.log.Error("save room state", "error", err)
		return
	}
	r.saves++
	if r.cfg.CheckpointEvery == 0 || r.saves%r.cfg.CheckpointEvery != 0 {
		return
	}
	if err := r.store.SaveCheckpoint(ctx, r.ID, r.state, r.saves); err != nil {
		r.log.Error("save checkpoint", "error", err)
	}
	if err := r.store.AppendHistory(ctx, r.ID, r.state); err != nil {
		r.log.Error("append history", "error", err)
	}
}
