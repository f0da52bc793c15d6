package game

import "time"

type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhaseDescribe Phase = "describe"
	PhaseVote     Phase = "vote"
	PhaseResult   Phase = "result"
	PhaseGameOver Phase = "game_over"
)

// Timing holds the per-phase deadlines. It is fixed at construction and
// survives serialization so a restored room keeps its original pacing.
type Timing struct {
	DescribeTurn time.Duration `json:"describe_turn"`
	Vote         time.Duration `json:"vote"`
	ResultDelay  time.Duration `json:"result_delay"`
}

// State is the whole game-phase value. Exactly one phase is active;
// every operation switches on Phase and rejects anything else. Transitions
// replace the variant fields wholesale, which is what makes the value safe
// to guard with a single lock in the room.
//
// Host and the two chat streams are shared across phases, so they live in
// the common envelope instead of being duplicated per variant.
type State struct {
	Phase  Phase  `json:"phase"`
	Timing Timing `json:"timing"`

	Host           PlayerID      `json:"host"`
	Chat           []ChatMessage `json:"chat_messages"`
	EliminatedChat []ChatMessage `json:"eliminated_chat_messages"`

	// Players is ordered: join order in the lobby, the start_game order
	// afterwards. Lobby membership is by ID lookup.
	Players    []Player `json:"players"`
	MinPlayers int      `json:"min_players"`
	MaxPlayers int      `json:"max_players"`

	// Lobby
	Ready map[PlayerID]bool `json:"ready,omitempty"`

	// DescribePhase / VotePhase
	CurrentIndex int                   `json:"current_index,omitempty"`
	Descriptions map[PlayerID]string   `json:"descriptions,omitempty"`
	Votes        map[PlayerID]PlayerID `json:"votes,omitempty"`

	// Timers for the active timed phase.
	PhaseStart time.Time     `json:"phase_start,omitempty"`
	Remaining  time.Duration `json:"remaining,omitempty"`

	// ResultPhase
	Eliminated PlayerID `json:"eliminated,omitempty"`

	// GameOver
	Winner Role `json:"winner,omitempty"`
}

func NewState(min, max int, host PlayerID, timing Timing) *State {
	return &State{
		Phase:      PhaseLobby,
		Timing:     timing,
		Host:       host,
		MinPlayers: min,
		MaxPlayers: max,
		Ready:      make(map[PlayerID]bool),
	}
}

// Normalize rebuilds the map fields a JSON round trip may have dropped.
// Empty maps marshal as absent under omitempty, so a decoded state can
// carry nil where the active phase expects a writable map. Callers that
// decode a persisted state must call this before handing it to the
// transition methods.
func (s *State) Normalize() {
	if s.Ready == nil && s.Phase == PhaseLobby {
		s.Ready = make(map[PlayerID]bool)
	}
	if s.Descriptions == nil && (s.Phase == PhaseDescribe || s.Phase == PhaseVote) {
		s.Descriptions = make(map[PlayerID]string)
	}
	if s.Votes == nil && (s.Phase == PhaseVote || s.Phase == PhaseResult) {
		s.Votes = make(map[PlayerID]PlayerID)
	}
}

func (s *State) player(id PlayerID) *Player {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return &s.Players[i]
		}
	}
	return nil
}

func (s *State) aliveCount() int {
	n := 0
	for i := range s.Players {
		if s.Players[i].IsAlive {
			n++
		}
	}
	return n
}

// PlayersPublic returns the player list with role and word stripped.
// During a running game nobody learns another player's role from a shared
// payload; in GameOver the full list is disclosed instead.
func (s *State) PlayersPublic() []Player {
	if s.Phase == PhaseGameOver {
		return append([]Player(nil), s.Players...)
	}
	out := make([]Player, 0, len(s.Players))
	for _, p := range s.Players {
		p.Role = ""
		p.Word = ""
		out = append(out, p)
	}
	return out
}

// OrderedDescriptions returns the recorded descriptions in player order.
func (s *State) OrderedDescriptions() []DescriptionEntry {
	if s.Phase != PhaseDescribe && s.Phase != PhaseVote {
		return nil
	}
	out := make([]DescriptionEntry, 0, len(s.Descriptions))
	for _, p := range s.Players {
		if d, ok := s.Descriptions[p.ID]; ok {
			out = append(out, DescriptionEntry{PlayerID: p.ID, PlayerName: p.Name, Content: d})
		}
	}
	return out
}

type DescriptionEntry struct {
	PlayerID   PlayerID `json:"player_id"`
	PlayerName string   `json:"player_name"`
	Content    string   `json:"content"`
}

// CurrentPlayer returns the player whose describe turn it is.
func (s *State) CurrentPlayer() (Player, bool) {
	if s.Phase != PhaseDescribe || s.CurrentIndex >= len(s.Players) {
		return Player{}, false
	}
	return s.Players[s.CurrentIndex], true
}

// enterDescribe replaces the variant fields for a fresh describe round
// starting at index, keeping both chat streams.
func (s *State) enterDescribe(index int, now time.Time) {
	s.Phase = PhaseDescribe
	s.Ready = nil
	s.CurrentIndex = index
	s.Descriptions = make(map[PlayerID]string)
	s.Votes = nil
	s.Eliminated = ""
	s.PhaseStart = now
	s.Remaining = s.Timing.DescribeTurn
}

func (s *State) enterVote(now time.Time) {
	s.Phase = PhaseVote
	s.Votes = make(map[PlayerID]PlayerID)
	s.CurrentIndex = 0
	s.PhaseStart = now
	s.Remaining = s.Timing.Vote
}

func (s *State) enterResult(eliminated PlayerID, now time.Time) {
	s.Phase = PhaseResult
	s.Eliminated = eliminated
	s.Descriptions = nil
	s.PhaseStart = now
	s.Remaining = s.Timing.ResultDelay
}

func (s *State) enterGameOver(winner Role) {
	s.Phase = PhaseGameOver
	s.Winner = winner
	s.Votes = nil
	s.Eliminated = ""
	s.PhaseStart = time.Time{}
	s.Remaining = 0
}
