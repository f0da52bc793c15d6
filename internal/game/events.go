package game

// Event is the domain outcome of a successful state-machine operation.
// The room translates events into outbound messages and follow-up
// transitions; the state machine itself never performs I/O.
type Event interface{ isEvent() }

type PlayerJoined struct{ Player Player }

type PlayerLeft struct{ Player Player }

type PlayerKicked struct {
	Player Player
	Kicker PlayerID
}

// PlayerReady reports the toggle outcome. CanStart is true when the ready
// count now meets the room minimum. Reset is true when the toggle arrived
// in GameOver and implicitly rebuilt the lobby first.
type PlayerReady struct {
	PlayerID PlayerID
	Ready    bool
	CanStart bool
	Reset    bool
}

// GameStarted carries the ordered player list with roles and words
// stripped; each recipient learns their own only through their personal
// snapshot.
type GameStarted struct{ Players []Player }

type DescriptionAdded struct {
	PlayerID PlayerID
	Content  string
}

type NextPlayer struct{ PlayerID PlayerID }

type DescribePhaseComplete struct{}

type VoteAdded struct {
	Voter  PlayerID
	Target PlayerID
}

// VotePhaseComplete means the tally ran and the state is now ResultPhase.
type VotePhaseComplete struct{ Votes map[PlayerID]PlayerID }

// RoundComplete means nobody won yet and a new describe round began.
type RoundComplete struct{}

type GameEnded struct{ Winner Role }

type ChatAdded struct{ Message ChatMessage }

type EliminatedChatAdded struct{ Message ChatMessage }

func (PlayerJoined) isEvent()          {}
func (PlayerLeft) isEvent()            {}
func (PlayerKicked) isEvent()          {}
func (PlayerReady) isEvent()           {}
func (GameStarted) isEvent()           {}
func (DescriptionAdded) isEvent()      {}
func (NextPlayer) isEvent()            {}
func (DescribePhaseComplete) isEvent() {}
func (VoteAdded) isEvent()             {}
func (VotePhaseComplete) isEvent()     {}
func (RoundComplete) isEvent()         {}
func (GameEnded) isEvent()             {}
func (ChatAdded) isEvent()             {}
func (EliminatedChatAdded) isEvent()   {}
