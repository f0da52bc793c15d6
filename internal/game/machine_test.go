package game

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubWords struct {
	pair WordPair
	ok   bool
}

func (s stubWords) RandomWordPair() (WordPair, bool) { return s.pair, s.ok }

var testWords = stubWords{pair: WordPair{CivilianWord: "apple", UndercoverWord: "pear"}, ok: true}

var testTiming = Timing{
	DescribeTurn: 60 * time.Second,
	Vote:         30 * time.Second,
	ResultDelay:  5 * time.Second,
}

func t0() time.Time {
	return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
}

// newLobby builds a lobby with n players p1..pn, all ready.
func newLobby(t *testing.T, n int) *State {
	t.Helper()
	max := 8
	if n > max {
		max = n
	}
	s := NewState(3, max, "p1", testTiming)
	for i := 1; i <= n; i++ {
		id := PlayerID(fmt.Sprintf("p%d", i))
		_, err := s.AddPlayer(Player{ID: id, Name: "Player " + string(id)})
		require.NoError(t, err)
		_, err = s.PlayerReady(id, t0())
		require.NoError(t, err)
	}
	return s
}

func startOrder(s *State) []PlayerID {
	order := make([]PlayerID, 0, len(s.Players))
	for _, p := range s.Players {
		order = append(order, p.ID)
	}
	return order
}

// startGame runs a game into the first describe round with a fixed seed.
func startGame(t *testing.T, s *State, seed int64) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	_, err := s.StartGame(testWords, startOrder(s), rng, t0())
	require.NoError(t, err)
}

// describeAll submits a description for every alive player in turn, landing
// the state in the vote phase.
func describeAll(t *testing.T, s *State) {
	t.Helper()
	for s.Phase == PhaseDescribe {
		cur, ok := s.CurrentPlayer()
		require.True(t, ok)
		_, err := s.AddDescription(cur.ID, "something round", t0())
		require.NoError(t, err)
		_, err = s.AdvanceDescribePhase(t0())
		require.NoError(t, err)
	}
	require.Equal(t, PhaseVote, s.Phase)
}

func TestUndercoverCount(t *testing.T) {
	cases := []struct {
		players int
		want    int
	}{
		{3, 1},
		{4, 1},
		{6, 1},
		{7, 2},
		{8, 2},
		{9, 3},
		{12, 3},
		{13, 4},
	}
	for _, tc := range cases {
		if got := UndercoverCount(tc.players); got != tc.want {
			t.Fatalf("UndercoverCount(%d)=%d want %d", tc.players, got, tc.want)
		}
	}
}

func TestLobby_Scenarios(t *testing.T) {
	cases := []struct {
		name string
		run  func(t *testing.T)
	}{
		{
			name: "re-adding an existing player is idempotent and clears ready",
			run: func(t *testing.T) {
				s := newLobby(t, 3)
				ev, err := s.AddPlayer(Player{ID: "p2", Name: "Other Name"})
				require.NoError(t, err)
				joined, ok := ev.(PlayerJoined)
				require.True(t, ok)
				if joined.Player.ID != "p2" {
					t.Fatalf("joined id=%s want p2", joined.Player.ID)
				}
				if len(s.Players) != 3 {
					t.Fatalf("players=%d want 3", len(s.Players))
				}
				if s.Ready["p2"] {
					t.Fatalf("p2 must re-confirm ready after rejoin")
				}
			},
		},
		{
			name: "room full",
			run: func(t *testing.T) {
				s := newLobby(t, 8)
				_, err := s.AddPlayer(Player{ID: "p9", Name: "Late"})
				if CodeOf(err) != CodeRoomFull {
					t.Fatalf("err=%v want room full", err)
				}
			},
		},
		{
			name: "host leaving hands the room to the next player",
			run: func(t *testing.T) {
				s := newLobby(t, 3)
				_, err := s.RemovePlayer("p1")
				require.NoError(t, err)
				if s.Host != "p2" {
					t.Fatalf("host=%s want p2", s.Host)
				}
			},
		},
		{
			name: "only the host kicks, and never themselves",
			run: func(t *testing.T) {
				s := newLobby(t, 3)
				_, err := s.KickPlayer("p2", "p3")
				if CodeOf(err) != CodePermissionDenied {
					t.Fatalf("err=%v want permission denied", err)
				}
				_, err = s.KickPlayer("p1", "p1")
				if CodeOf(err) != CodeInvalidAction {
					t.Fatalf("err=%v want invalid action", err)
				}
				ev, err := s.KickPlayer("p1", "p3")
				require.NoError(t, err)
				kicked := ev.(PlayerKicked)
				if kicked.Player.ID != "p3" || kicked.Kicker != "p1" {
					t.Fatalf("unexpected kick event %+v", kicked)
				}
				if s.player("p3") != nil {
					t.Fatalf("p3 still in room after kick")
				}
			},
		},
		{
			name: "ready toggle reports can_start at min_players",
			run: func(t *testing.T) {
				s := NewState(3, 8, "p1", testTiming)
				for _, id := range []PlayerID{"p1", "p2", "p3"} {
					_, err := s.AddPlayer(Player{ID: id, Name: string(id)})
					require.NoError(t, err)
				}
				ev, _ := s.PlayerReady("p1", t0())
				if ev.(PlayerReady).CanStart {
					t.Fatalf("can_start with one ready player")
				}
				_, _ = s.PlayerReady("p2", t0())
				ev, _ = s.PlayerReady("p3", t0())
				if !ev.(PlayerReady).CanStart {
					t.Fatalf("expected can_start with three ready players")
				}
				// toggling off drops below the minimum again
				ev, _ = s.PlayerReady("p3", t0())
				r := ev.(PlayerReady)
				if r.Ready || r.CanStart {
					t.Fatalf("toggle off: %+v", r)
				}
			},
		},
		{
			name: "no joins or kicks once the game is running",
			run: func(t *testing.T) {
				s := newLobby(t, 4)
				startGame(t, s, 1)
				_, err := s.AddPlayer(Player{ID: "p9", Name: "Late"})
				if CodeOf(err) != CodeGameAlreadyStarted {
					t.Fatalf("add: err=%v", err)
				}
				_, err = s.KickPlayer("p1", "p2")
				if CodeOf(err) != CodeInvalidState {
					t.Fatalf("kick: err=%v", err)
				}
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, tc.run)
	}
}

func TestStartGame_RolesAndWords(t *testing.T) {
	for _, n := range []int{3, 6, 7, 9, 12} {
		s := newLobby(t, n)
		startGame(t, s, int64(n))

		if s.Phase != PhaseDescribe {
			t.Fatalf("n=%d phase=%s want describe", n, s.Phase)
		}
		undercover := 0
		for _, p := range s.Players {
			if !p.IsAlive {
				t.Fatalf("n=%d player %s not alive at start", n, p.ID)
			}
			switch p.Role {
			case RoleUndercover:
				undercover++
				if p.Word != "pear" {
					t.Fatalf("undercover word=%q", p.Word)
				}
			case RoleCivilian:
				if p.Word != "apple" {
					t.Fatalf("civilian word=%q", p.Word)
				}
			default:
				t.Fatalf("player %s has no role", p.ID)
			}
		}
		if want := UndercoverCount(n); undercover != want {
			t.Fatalf("n=%d undercover=%d want %d", n, undercover, want)
		}
	}
}

func TestStartGame_Rejections(t *testing.T) {
	s := NewState(3, 8, "p1", testTiming)
	for _, id := range []PlayerID{"p1", "p2", "p3"} {
		_, _ = s.AddPlayer(Player{ID: id, Name: string(id)})
	}
	_, _ = s.PlayerReady("p1", t0())
	_, _ = s.PlayerReady("p2", t0())

	rng := rand.New(rand.NewSource(1))
	_, err := s.StartGame(testWords, startOrder(s), rng, t0())
	if CodeOf(err) != CodeInvalidState {
		t.Fatalf("two ready players: err=%v", err)
	}

	_, _ = s.PlayerReady("p3", t0())
	_, err = s.StartGame(stubWords{ok: false}, startOrder(s), rng, t0())
	if CodeOf(err) != CodeInternalError {
		t.Fatalf("empty word source: err=%v", err)
	}
	if s.Phase != PhaseLobby {
		t.Fatalf("failed start must leave the lobby untouched, phase=%s", s.Phase)
	}
	for _, p := range s.Players {
		if p.Role != "" || p.Word != "" {
			t.Fatalf("failed start leaked role/word to %s", p.ID)
		}
	}
}

func TestDescribe_TurnOrderAndRejections(t *testing.T) {
	s := newLobby(t, 4)
	startGame(t, s, 1)

	cur, ok := s.CurrentPlayer()
	require.True(t, ok)
	if cur.ID != "p1" {
		t.Fatalf("first turn=%s want p1", cur.ID)
	}

	_, err := s.AddDescription("p2", "jumping the queue", t0())
	if CodeOf(err) != CodeNotYourTurn {
		t.Fatalf("out of turn: err=%v", err)
	}

	_, err = s.AddDescription("p1", "red and crunchy", t0())
	require.NoError(t, err)
	ev, err := s.AdvanceDescribePhase(t0())
	require.NoError(t, err)
	if next := ev.(NextPlayer); next.PlayerID != "p2" {
		t.Fatalf("next=%s want p2", next.PlayerID)
	}

	describeAll(t, s)
	if len(s.Descriptions) != 0 {
		// descriptions are re-exposed through OrderedDescriptions until
		// the result phase wipes them
		entries := s.OrderedDescriptions()
		if len(entries) != 4 || entries[0].PlayerID != "p1" {
			t.Fatalf("ordered descriptions: %+v", entries)
		}
	}
}

func TestVote_TallyAndRejections(t *testing.T) {
	cases := []struct {
		name string
		run  func(t *testing.T)
	}{
		{
			name: "plurality eliminates, last ballot closes the phase",
			run: func(t *testing.T) {
				s := newLobby(t, 4)
				startGame(t, s, 1)
				describeAll(t, s)

				_, err := s.AddVote("p1", "p3", t0())
				require.NoError(t, err)
				_, err = s.AddVote("p2", "p3", t0())
				require.NoError(t, err)
				_, err = s.AddVote("p3", "p1", t0())
				require.NoError(t, err)
				ev, err := s.AddVote("p4", "p3", t0())
				require.NoError(t, err)

				done, ok := ev.(VotePhaseComplete)
				require.True(t, ok)
				if len(done.Votes) != 4 {
					t.Fatalf("votes=%d want 4", len(done.Votes))
				}
				if s.Phase != PhaseResult || s.Eliminated != "p3" {
					t.Fatalf("phase=%s eliminated=%s", s.Phase, s.Eliminated)
				}
			},
		},
		{
			name: "tie eliminates nobody",
			run: func(t *testing.T) {
				s := newLobby(t, 4)
				startGame(t, s, 1)
				describeAll(t, s)

				_, _ = s.AddVote("p1", "p2", t0())
				_, _ = s.AddVote("p2", "p1", t0())
				_, _ = s.AddVote("p3", "p1", t0())
				_, _ = s.AddVote("p4", "p2", t0())

				if s.Eliminated != EliminatedTie {
					t.Fatalf("eliminated=%s want tie", s.Eliminated)
				}
			},
		},
		{
			name: "double, self and dead-target votes are rejected",
			run: func(t *testing.T) {
				s := newLobby(t, 4)
				startGame(t, s, 1)
				describeAll(t, s)

				_, err := s.AddVote("p1", "p1", t0())
				if CodeOf(err) != CodeInvalidVote {
					t.Fatalf("self vote: err=%v", err)
				}
				_, err = s.AddVote("p1", "p2", t0())
				require.NoError(t, err)
				_, err = s.AddVote("p1", "p3", t0())
				if CodeOf(err) != CodeAlreadyVoted {
					t.Fatalf("double vote: err=%v", err)
				}
				_, err = s.AddVote("p2", "ghost", t0())
				if CodeOf(err) != CodePlayerNotFound {
					t.Fatalf("unknown target: err=%v", err)
				}
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, tc.run)
	}
}

// forceResult walks a started game to the result phase with the given
// player voted out.
func forceResult(t *testing.T, s *State, target PlayerID) {
	t.Helper()
	describeAll(t, s)
	var alive []PlayerID
	for _, p := range s.Players {
		if p.IsAlive {
			alive = append(alive, p.ID)
		}
	}
	for _, voter := range alive {
		tgt := target
		if voter == target {
			for _, other := range alive {
				if other != voter {
					tgt = other
					break
				}
			}
		}
		_, err := s.AddVote(voter, tgt, t0())
		require.NoError(t, err)
	}
	require.Equal(t, PhaseResult, s.Phase)
	require.Equal(t, target, s.Eliminated)
}

func undercoverOf(s *State) PlayerID {
	for _, p := range s.Players {
		if p.Role == RoleUndercover {
			return p.ID
		}
	}
	return ""
}

func TestResult_WinConditionsAndNextRound(t *testing.T) {
	t.Run("civilians win once the last undercover is out", func(t *testing.T) {
		s := newLobby(t, 4)
		startGame(t, s, 1)
		forceResult(t, s, undercoverOf(s))

		ev, err := s.ProcessResultPhase(t0())
		require.NoError(t, err)
		if ev.(GameEnded).Winner != RoleCivilian {
			t.Fatalf("winner=%s want civilian", ev.(GameEnded).Winner)
		}
		if s.Phase != PhaseGameOver || s.Winner != RoleCivilian {
			t.Fatalf("phase=%s winner=%s", s.Phase, s.Winner)
		}
	})

	t.Run("otherwise the next describe round starts at the first alive player", func(t *testing.T) {
		s := newLobby(t, 5)
		startGame(t, s, 2)

		// vote out a civilian; with five players one undercover remains
		var civilian PlayerID
		for _, p := range s.Players {
			if p.Role == RoleCivilian {
				civilian = p.ID
				break
			}
		}
		forceResult(t, s, civilian)

		ev, err := s.ProcessResultPhase(t0())
		require.NoError(t, err)
		if _, ok := ev.(RoundComplete); !ok {
			t.Fatalf("event=%T want RoundComplete", ev)
		}
		if s.Phase != PhaseDescribe {
			t.Fatalf("phase=%s want describe", s.Phase)
		}
		cur, _ := s.CurrentPlayer()
		if !cur.IsAlive {
			t.Fatalf("turn went to eliminated player %s", cur.ID)
		}
		for _, p := range s.Players {
			if p.IsAlive {
				if p.ID != cur.ID {
					t.Fatalf("turn=%s want first alive %s", cur.ID, p.ID)
				}
				break
			}
		}
		if len(s.Descriptions) != 0 || s.Votes != nil {
			t.Fatalf("round leftovers survived: %v %v", s.Descriptions, s.Votes)
		}
	})

	t.Run("undercover wins when two players remain", func(t *testing.T) {
		s := newLobby(t, 4)
		startGame(t, s, 1)
		uc := undercoverOf(s)

		// eliminate two civilians over two rounds
		for round := 0; round < 2; round++ {
			var civilian PlayerID
			for _, p := range s.Players {
				if p.IsAlive && p.Role == RoleCivilian {
					civilian = p.ID
					break
				}
			}
			forceResult(t, s, civilian)
			ev, err := s.ProcessResultPhase(t0())
			require.NoError(t, err)
			if round == 0 {
				if _, ok := ev.(RoundComplete); !ok {
					t.Fatalf("round 0: event=%T", ev)
				}
			} else {
				if ev.(GameEnded).Winner != RoleUndercover {
					t.Fatalf("winner=%v want undercover", ev)
				}
			}
		}
		if s.Phase != PhaseGameOver || s.Winner != RoleUndercover {
			t.Fatalf("phase=%s winner=%s", s.Phase, s.Winner)
		}
		if p := s.player(uc); p == nil || !p.IsAlive {
			t.Fatalf("undercover should have survived")
		}
	})

	t.Run("tie eliminates nobody and the round just continues", func(t *testing.T) {
		s := newLobby(t, 4)
		startGame(t, s, 1)
		describeAll(t, s)
		_, _ = s.AddVote("p1", "p2", t0())
		_, _ = s.AddVote("p2", "p1", t0())
		_, _ = s.AddVote("p3", "p1", t0())
		_, _ = s.AddVote("p4", "p2", t0())

		_, err := s.ProcessResultPhase(t0())
		require.NoError(t, err)
		if s.aliveCount() != 4 {
			t.Fatalf("alive=%d want 4 after tie", s.aliveCount())
		}
		if s.Phase != PhaseDescribe {
			t.Fatalf("phase=%s want describe", s.Phase)
		}
	})
}

func TestReset_FromGameOver(t *testing.T) {
	s := newLobby(t, 4)
	startGame(t, s, 1)
	_, err := s.AddChat("p1", "good game", t0().Add(time.Minute))
	if err == nil {
		t.Fatalf("chat must be closed during describe")
	}
	forceResult(t, s, undercoverOf(s))
	_, err = s.ProcessResultPhase(t0())
	require.NoError(t, err)

	_, err = s.AddChat("p2", "rematch?", t0())
	require.NoError(t, err)

	ev, err := s.PlayerReady("p2", t0())
	require.NoError(t, err)
	r := ev.(PlayerReady)
	if !r.Reset || !r.Ready {
		t.Fatalf("expected implicit reset, got %+v", r)
	}

	if s.Phase != PhaseLobby {
		t.Fatalf("phase=%s want lobby", s.Phase)
	}
	if s.Host != "p1" {
		t.Fatalf("host=%s want first player p1", s.Host)
	}
	if len(s.Chat) != 1 {
		t.Fatalf("public chat must survive the reset, len=%d", len(s.Chat))
	}
	if len(s.EliminatedChat) != 0 {
		t.Fatalf("eliminated chat must be cleared")
	}
	for _, p := range s.Players {
		if !p.IsAlive || p.Role != "" || p.Word != "" {
			t.Fatalf("player %s not reset: %+v", p.ID, p)
		}
	}
	if !s.Ready["p2"] || len(s.Ready) != 1 {
		t.Fatalf("ready set after reset: %v", s.Ready)
	}
}

func TestEliminatedChat_Gating(t *testing.T) {
	s := newLobby(t, 4)
	startGame(t, s, 1)

	_, err := s.AddEliminatedChat("p1", "hello from the shadows", t0())
	if CodeOf(err) != CodeInvalidAction {
		t.Fatalf("alive player: err=%v", err)
	}

	target := undercoverOf(s)
	forceResult(t, s, target)
	_, err = s.ProcessResultPhase(t0())
	require.NoError(t, err)
	// game is over now; the stream stays open for the eliminated player
	_, err = s.AddEliminatedChat(target, "you got me", t0())
	require.NoError(t, err)
	if len(s.EliminatedChat) != 1 {
		t.Fatalf("eliminated chat len=%d want 1", len(s.EliminatedChat))
	}
}

func TestPublicPlayers_RedactionLifecycle(t *testing.T) {
	s := newLobby(t, 4)
	startGame(t, s, 1)

	for _, p := range s.PlayersPublic() {
		if p.Role != "" || p.Word != "" {
			t.Fatalf("running game leaked role/word for %s", p.ID)
		}
	}

	forceResult(t, s, undercoverOf(s))
	_, err := s.ProcessResultPhase(t0())
	require.NoError(t, err)

	disclosed := 0
	for _, p := range s.PlayersPublic() {
		if p.Role != "" && p.Word != "" {
			disclosed++
		}
	}
	if disclosed != 4 {
		t.Fatalf("game over must disclose everyone, got %d", disclosed)
	}
}

func TestStartGame_DuplicateOrderEntries(t *testing.T) {
	s := newLobby(t, 3)
	order := append([]PlayerID{"p1"}, startOrder(s)...)
	rng := rand.New(rand.NewSource(1))
	_, err := s.StartGame(testWords, order, rng, t0())
	require.NoError(t, err)

	if len(s.Players) != 3 {
		t.Fatalf("players=%d want 3", len(s.Players))
	}
	seen := make(map[PlayerID]bool)
	for _, p := range s.Players {
		if seen[p.ID] {
			t.Fatalf("player %s seated twice", p.ID)
		}
		seen[p.ID] = true
	}
}

func TestPlayerDeparted_Scenarios(t *testing.T) {
	t.Run("rejected outside a running game", func(t *testing.T) {
		s := newLobby(t, 3)
		_, err := s.PlayerDeparted("p1", t0())
		if CodeOf(err) != CodeInvalidState {
			t.Fatalf("code=%s want invalid_state", CodeOf(err))
		}
	})

	t.Run("last missing ballot resolves the vote", func(t *testing.T) {
		s := newLobby(t, 4)
		startGame(t, s, 1)
		describeAll(t, s)

		for voter, target := range map[PlayerID]PlayerID{"p1": "p2", "p2": "p1", "p3": "p2"} {
			_, err := s.AddVote(voter, target, t0())
			require.NoError(t, err)
		}

		ev, err := s.PlayerDeparted("p4", t0())
		require.NoError(t, err)
		if _, ok := ev.(VotePhaseComplete); !ok {
			t.Fatalf("event=%T want VotePhaseComplete", ev)
		}
		require.Equal(t, PhaseResult, s.Phase)
		require.Equal(t, PlayerID("p2"), s.Eliminated)
	})

	t.Run("a departed ballot stops counting", func(t *testing.T) {
		s := newLobby(t, 4)
		startGame(t, s, 1)
		describeAll(t, s)

		for voter, target := range map[PlayerID]PlayerID{"p1": "p2", "p2": "p1", "p4": "p2"} {
			_, err := s.AddVote(voter, target, t0())
			require.NoError(t, err)
		}

		ev, err := s.PlayerDeparted("p4", t0())
		require.NoError(t, err)
		require.Nil(t, ev, "p3 has not voted yet")
		require.Equal(t, PhaseVote, s.Phase)
		if _, voted := s.Votes["p4"]; voted {
			t.Fatal("departed ballot still in the vote set")
		}

		// the last alive ballot now closes the phase
		ev, err = s.AddVote("p3", "p2", t0())
		require.NoError(t, err)
		if _, ok := ev.(VotePhaseComplete); !ok {
			t.Fatalf("event=%T want VotePhaseComplete", ev)
		}
		require.Equal(t, PhaseResult, s.Phase)
	})

	t.Run("departing describer forfeits the turn", func(t *testing.T) {
		s := newLobby(t, 4)
		startGame(t, s, 1)

		cur, ok := s.CurrentPlayer()
		require.True(t, ok)
		ev, err := s.PlayerDeparted(cur.ID, t0())
		require.NoError(t, err)
		if _, ok := ev.(NextPlayer); !ok {
			t.Fatalf("event=%T want NextPlayer", ev)
		}
		next, ok := s.CurrentPlayer()
		require.True(t, ok)
		if next.ID == cur.ID || !next.IsAlive {
			t.Fatalf("turn stayed with the departed player")
		}
	})
}
