package game

import (
	"math"
	"math/rand"
	"time"
)

// AddPlayer admits a player to the lobby. Re-adding an existing id is
// idempotent: the join event is returned again, no duplicate is inserted,
// and the id is dropped from the ready set so a reconnecting player has to
// confirm again before start.
func (s *State) AddPlayer(p Player) (Event, error) {
	if s.Phase != PhaseLobby {
		return nil, reject(CodeGameAlreadyStarted, "game already started")
	}
	if existing := s.player(p.ID); existing != nil {
		delete(s.Ready, p.ID)
		return PlayerJoined{Player: *existing}, nil
	}
	if len(s.Players) >= s.MaxPlayers {
		return nil, reject(CodeRoomFull, "room is full (%d players)", s.MaxPlayers)
	}
	p.IsAlive = true
	p.Role = ""
	p.Word = ""
	if len(s.Players) == 0 {
		s.Host = p.ID
	}
	s.Players = append(s.Players, p)
	delete(s.Ready, p.ID)
	return PlayerJoined{Player: p}, nil
}

func (s *State) RemovePlayer(id PlayerID) (Event, error) {
	if s.Phase != PhaseLobby && s.Phase != PhaseGameOver {
		return nil, reject(CodeGameAlreadyStarted, "game already started")
	}
	idx := -1
	for i := range s.Players {
		if s.Players[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, reject(CodePlayerNotFound, "player %s not in room", id)
	}
	left := s.Players[idx]
	s.Players = append(s.Players[:idx], s.Players[idx+1:]...)
	delete(s.Ready, id)
	if s.Host == id && len(s.Players) > 0 {
		s.Host = s.Players[0].ID
	}
	return PlayerLeft{Player: left}, nil
}

func (s *State) KickPlayer(kicker, target PlayerID) (Event, error) {
	if s.Phase != PhaseLobby {
		return nil, reject(CodeInvalidState, "kicking is only possible in the lobby")
	}
	if s.Host != kicker {
		return nil, reject(CodePermissionDenied, "only the host can kick players")
	}
	if kicker == target {
		return nil, reject(CodeInvalidAction, "the host cannot kick themselves")
	}
	idx := -1
	for i := range s.Players {
		if s.Players[i].ID == target {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, reject(CodePlayerNotFound, "player %s not in room", target)
	}
	kicked := s.Players[idx]
	s.Players = append(s.Players[:idx], s.Players[idx+1:]...)
	delete(s.Ready, target)
	return PlayerKicked{Player: kicked, Kicker: kicker}, nil
}

// PlayerReady toggles ready state in the lobby. In GameOver it first
// performs the implicit reset back to a lobby: players come back alive with
// roles and words cleared, the ready set is emptied, public chat is kept,
// the eliminated stream is cleared and the host becomes the first player in
// the original order.
func (s *State) PlayerReady(id PlayerID, now time.Time) (Event, error) {
	wasReset := false
	switch s.Phase {
	case PhaseLobby:
	case PhaseGameOver:
		if err := s.resetToLobby(now); err != nil {
			return nil, err
		}
		wasReset = true
	default:
		return nil, reject(CodeGameAlreadyStarted, "game already started")
	}

	p := s.player(id)
	if p == nil {
		return nil, reject(CodePlayerNotFound, "player %s not in room", id)
	}
	ready := !s.Ready[id]
	if ready {
		s.Ready[id] = true
	} else {
		delete(s.Ready, id)
	}
	p.LastAction = now
	return PlayerReady{PlayerID: id, Ready: ready, CanStart: len(s.Ready) >= s.MinPlayers, Reset: wasReset}, nil
}

func (s *State) resetToLobby(now time.Time) error {
	if len(s.Players) == 0 {
		return reject(CodeInvalidState, "no players left to host a new game")
	}
	for i := range s.Players {
		s.Players[i].Role = ""
		s.Players[i].Word = ""
		s.Players[i].IsAlive = true
		s.Players[i].LastAction = now
	}
	s.Phase = PhaseLobby
	s.Host = s.Players[0].ID
	s.Ready = make(map[PlayerID]bool)
	s.EliminatedChat = nil
	s.CurrentIndex = 0
	s.Descriptions = nil
	s.Votes = nil
	s.Eliminated = ""
	s.Winner = ""
	s.PhaseStart = time.Time{}
	s.Remaining = 0
	return nil
}

// UndercoverCount is 1 for up to six players, a quarter of the table
// (rounded up) beyond that.
func UndercoverCount(players int) int {
	if players <= 6 {
		return 1
	}
	return int(math.Ceil(float64(players) * 0.25))
}

// StartGame assigns roles and words and opens the first describe round.
// A failing word source aborts the transition; the state stays in the
// lobby untouched.
func (s *State) StartGame(words WordSource, order []PlayerID, rng *rand.Rand, now time.Time) (Event, error) {
	if s.Phase != PhaseLobby {
		return nil, reject(CodeGameAlreadyStarted, "game already started")
	}
	if len(s.Ready) < s.MinPlayers {
		return nil, reject(CodeInvalidState, "need at least %d ready players, have %d", s.MinPlayers, len(s.Ready))
	}

	ordered := make([]Player, 0, len(s.Players))
	seen := make(map[PlayerID]bool, len(order))
	for _, id := range order {
		if seen[id] {
			continue
		}
		seen[id] = true
		if p := s.player(id); p != nil {
			ordered = append(ordered, *p)
		}
	}

	pair, ok := words.RandomWordPair()
	if !ok {
		return nil, reject(CodeInternalError, "word source has no word pairs")
	}

	undercover := UndercoverCount(len(ordered))
	perm := rng.Perm(len(ordered))
	for i := range ordered {
		ordered[i].Role = RoleCivilian
		ordered[i].Word = pair.CivilianWord
		ordered[i].IsAlive = true
		ordered[i].LastAction = now
	}
	for i := 0; i < undercover && i < len(perm); i++ {
		ordered[perm[i]].Role = RoleUndercover
		ordered[perm[i]].Word = pair.UndercoverWord
	}

	s.Players = ordered
	s.enterDescribe(0, now)

	// The event payload carries no secrets; roles and words reach each
	// player only through their personal snapshot.
	public := make([]Player, len(ordered))
	copy(public, ordered)
	for i := range public {
		public[i].Role = ""
		public[i].Word = ""
	}
	return GameStarted{Players: public}, nil
}

func (s *State) AddDescription(id PlayerID, content string, now time.Time) (Event, error) {
	if s.Phase != PhaseDescribe {
		return nil, reject(CodeInvalidState, "not in the describe phase")
	}
	if s.CurrentIndex >= len(s.Players) {
		return nil, reject(CodeInvalidState, "describe phase already finished")
	}
	current := &s.Players[s.CurrentIndex]
	if current.ID != id {
		return nil, reject(CodeNotYourTurn, "it is %s's turn to describe", current.Name)
	}
	if !current.IsAlive {
		return nil, reject(CodeNotYourTurn, "eliminated players do not describe")
	}
	s.Descriptions[id] = content
	current.LastAction = now
	return DescriptionAdded{PlayerID: id, Content: content}, nil
}

// AdvanceDescribePhase moves the turn to the next alive player, or closes
// the phase into voting when nobody is left.
func (s *State) AdvanceDescribePhase(now time.Time) (Event, error) {
	if s.Phase != PhaseDescribe {
		return nil, reject(CodeInvalidState, "not in the describe phase")
	}
	for i := s.CurrentIndex + 1; i < len(s.Players); i++ {
		if s.Players[i].IsAlive {
			s.CurrentIndex = i
			s.PhaseStart = now
			s.Remaining = s.Timing.DescribeTurn
			return NextPlayer{PlayerID: s.Players[i].ID}, nil
		}
	}
	s.enterVote(now)
	return DescribePhaseComplete{}, nil
}

func (s *State) AddVote(voter, target PlayerID, now time.Time) (Event, error) {
	if s.Phase != PhaseVote {
		return nil, reject(CodeInvalidState, "not in the vote phase")
	}
	v := s.player(voter)
	if v == nil {
		return nil, reject(CodePlayerNotFound, "player %s not in room", voter)
	}
	if !v.IsAlive {
		return nil, reject(CodeInvalidAction, "eliminated players cannot vote")
	}
	if _, voted := s.Votes[voter]; voted {
		return nil, reject(CodeAlreadyVoted, "you already voted this round")
	}
	if voter == target {
		return nil, reject(CodeInvalidVote, "you cannot vote for yourself")
	}
	t := s.player(target)
	if t == nil {
		return nil, reject(CodePlayerNotFound, "player %s not in room", target)
	}
	if !t.IsAlive {
		return nil, reject(CodeInvalidVote, "target is already eliminated")
	}

	s.Votes[voter] = target
	v.LastAction = now

	if len(s.Votes) == s.aliveCount() {
		final := copyVotes(s.Votes)
		s.tallyVotes(now)
		return VotePhaseComplete{Votes: final}, nil
	}
	return VoteAdded{Voter: voter, Target: target}, nil
}

// PlayerDeparted marks a player dead when they leave a running game, and
// resolves whatever the table was waiting on them for. Their unvoted
// ballot stops counting toward vote completion, so a vote phase that now
// holds every alive ballot tallies immediately, and a describe turn
// belonging to the leaver advances past them.
func (s *State) PlayerDeparted(id PlayerID, now time.Time) (Event, error) {
	switch s.Phase {
	case PhaseLobby, PhaseGameOver:
		return nil, reject(CodeInvalidState, "no running game to depart from")
	}
	p := s.player(id)
	if p == nil {
		return nil, reject(CodePlayerNotFound, "player %s not in room", id)
	}
	p.IsAlive = false
	delete(s.Votes, id)

	if s.Phase == PhaseDescribe && s.CurrentIndex < len(s.Players) && s.Players[s.CurrentIndex].ID == id {
		return s.AdvanceDescribePhase(now)
	}
	if alive := s.aliveCount(); s.Phase == PhaseVote && alive > 0 && len(s.Votes) >= alive {
		final := copyVotes(s.Votes)
		s.tallyVotes(now)
		return VotePhaseComplete{Votes: final}, nil
	}
	return nil, nil
}

// tallyVotes computes the plurality and moves to the result phase. Several
// targets tied for the maximum yield the tie sentinel and nobody is marked.
func (s *State) tallyVotes(now time.Time) {
	count := make(map[PlayerID]int)
	for _, target := range s.Votes {
		count[target]++
	}
	max := 0
	for _, c := range count {
		if c > max {
			max = c
		}
	}
	var top []PlayerID
	for id, c := range count {
		if c == max {
			top = append(top, id)
		}
	}
	eliminated := EliminatedTie
	if len(top) == 1 {
		eliminated = top[0]
	}
	s.enterResult(eliminated, now)
}

// ProcessResultPhase applies the elimination, evaluates the win conditions
// in order and either ends the game or opens the next describe round at the
// first alive player in original order.
func (s *State) ProcessResultPhase(now time.Time) (Event, error) {
	if s.Phase != PhaseResult {
		return nil, reject(CodeInvalidState, "not in the result phase")
	}
	if s.Eliminated != EliminatedTie {
		if p := s.player(s.Eliminated); p != nil {
			p.IsAlive = false
		}
	}

	aliveUndercover, aliveCivilian := 0, 0
	for i := range s.Players {
		if !s.Players[i].IsAlive {
			continue
		}
		if s.Players[i].Role == RoleUndercover {
			aliveUndercover++
		} else {
			aliveCivilian++
		}
	}
	totalAlive := aliveUndercover + aliveCivilian

	switch {
	case aliveUndercover == 0:
		s.enterGameOver(RoleCivilian)
		return GameEnded{Winner: RoleCivilian}, nil
	case aliveUndercover > aliveCivilian || (totalAlive <= 2 && aliveUndercover > 0):
		s.enterGameOver(RoleUndercover)
		return GameEnded{Winner: RoleUndercover}, nil
	}

	first := -1
	for i := range s.Players {
		if s.Players[i].IsAlive {
			first = i
			break
		}
	}
	if first < 0 {
		return nil, reject(CodeInternalError, "no alive players after result phase")
	}
	s.enterDescribe(first, now)
	return RoundComplete{}, nil
}

// AddChat appends to the public stream. Public chat is closed during the
// describe phase so descriptions stay the only channel.
func (s *State) AddChat(id PlayerID, content string, now time.Time) (Event, error) {
	switch s.Phase {
	case PhaseLobby, PhaseVote, PhaseResult, PhaseGameOver:
	default:
		return nil, reject(CodeInvalidState, "chat is closed during the describe phase")
	}
	p := s.player(id)
	if p == nil {
		return nil, reject(CodePlayerNotFound, "player %s not in room", id)
	}
	msg := ChatMessage{PlayerID: id, PlayerName: p.Name, Content: content, Timestamp: now}
	s.Chat = append(s.Chat, msg)
	p.LastAction = now
	return ChatAdded{Message: msg}, nil
}

// AddEliminatedChat appends to the eliminated-only stream, open from the
// describe phase onward to players who are out.
func (s *State) AddEliminatedChat(id PlayerID, content string, now time.Time) (Event, error) {
	switch s.Phase {
	case PhaseDescribe, PhaseVote, PhaseResult, PhaseGameOver:
	default:
		return nil, reject(CodeInvalidState, "the eliminated chat opens once the game is running")
	}
	p := s.player(id)
	if p == nil {
		return nil, reject(CodePlayerNotFound, "player %s not in room", id)
	}
	if p.IsAlive {
		return nil, reject(CodeInvalidAction, "only eliminated players can use this chat")
	}
	msg := ChatMessage{PlayerID: id, PlayerName: p.Name, Content: content, Timestamp: now}
	s.EliminatedChat = append(s.EliminatedChat, msg)
	return EliminatedChatAdded{Message: msg}, nil
}

func copyVotes(votes map[PlayerID]PlayerID) map[PlayerID]PlayerID {
	out := make(map[PlayerID]PlayerID, len(votes))
	for k, v := range votes {
		out[k] = v
	}
	return out
}
