package game

import (
	"math/rand"
	"time"
)

// TimeoutKind names the forced transition a deadline check asks for.
type TimeoutKind int

const (
	TimeoutNone TimeoutKind = iota
	TimeoutDescribe
	TimeoutVote
	TimeoutResult
)

func (s *State) phaseDuration() (time.Duration, bool) {
	switch s.Phase {
	case PhaseDescribe:
		return s.Timing.DescribeTurn, true
	case PhaseVote:
		return s.Timing.Vote, true
	case PhaseResult:
		return s.Timing.ResultDelay, true
	default:
		return 0, false
	}
}

// CheckTimeout reports whether the current phase has run past its deadline.
// A describe turn whose active player already submitted is never overdue,
// and a vote phase with every ballot in resolves through AddVote instead.
func (s *State) CheckTimeout(now time.Time) TimeoutKind {
	limit, ok := s.phaseDuration()
	if !ok {
		return TimeoutNone
	}
	expired := now.Sub(s.PhaseStart) >= limit || s.Remaining == 0

	switch s.Phase {
	case PhaseDescribe:
		if s.CurrentIndex >= len(s.Players) {
			return TimeoutNone
		}
		if _, done := s.Descriptions[s.Players[s.CurrentIndex].ID]; done {
			return TimeoutNone
		}
		if expired {
			return TimeoutDescribe
		}
	case PhaseVote:
		if len(s.Votes) >= s.aliveCount() {
			return TimeoutNone
		}
		if expired {
			return TimeoutVote
		}
	case PhaseResult:
		if expired {
			return TimeoutResult
		}
	}
	return TimeoutNone
}

// HandleDescribeTimeout skips the active player without a description.
func (s *State) HandleDescribeTimeout(now time.Time) (Event, error) {
	return s.AdvanceDescribePhase(now)
}

// HandleVoteTimeout fills in missing ballots and tallies. Every alive
// player who has not voted gets a uniformly random vote for another alive
// player. With one or zero alive players there is nobody to vote for, so
// the round resolves directly: a sole survivor is marked eliminated, an
// empty table resolves as a tie.
func (s *State) HandleVoteTimeout(rng *rand.Rand, now time.Time) (Event, error) {
	if s.Phase != PhaseVote {
		return nil, reject(CodeInvalidState, "not in the vote phase")
	}

	var alive []PlayerID
	for i := range s.Players {
		if s.Players[i].IsAlive {
			alive = append(alive, s.Players[i].ID)
		}
	}

	if len(alive) <= 1 {
		eliminated := EliminatedTie
		if len(alive) == 1 {
			eliminated = alive[0]
		}
		final := copyVotes(s.Votes)
		s.enterResult(eliminated, now)
		return VotePhaseComplete{Votes: final}, nil
	}

	for _, voter := range alive {
		if _, voted := s.Votes[voter]; voted {
			continue
		}
		others := make([]PlayerID, 0, len(alive)-1)
		for _, id := range alive {
			if id != voter {
				others = append(others, id)
			}
		}
		s.Votes[voter] = others[rng.Intn(len(others))]
	}

	final := copyVotes(s.Votes)
	s.tallyVotes(now)
	return VotePhaseComplete{Votes: final}, nil
}

// UpdateCountdown recomputes the seconds left in a timed phase, floored at
// zero. The second return value is false when the phase is untimed or the
// countdown just hit zero, which is the caller's cue to run the timeout
// check immediately.
func (s *State) UpdateCountdown(now time.Time) (int, bool) {
	limit, ok := s.phaseDuration()
	if !ok {
		return 0, false
	}
	remaining := limit - now.Sub(s.PhaseStart)
	if remaining < 0 {
		remaining = 0
	}
	s.Remaining = remaining
	secs := int(remaining / time.Second)
	return secs, secs > 0
}
