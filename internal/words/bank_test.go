package words

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultBank_Draws(t *testing.T) {
	b := Default()

	pair, ok := b.RandomWordPair()
	if !ok {
		t.Fatalf("default bank must not be empty")
	}
	if pair.CivilianWord == "" || pair.UndercoverWord == "" {
		t.Fatalf("empty word in %+v", pair)
	}

	if _, ok := b.PairByDifficulty(DifficultyEasy); !ok {
		t.Fatalf("default bank has easy pairs")
	}
	if _, ok := b.PairByDifficulty(DifficultyHard); ok {
		t.Fatalf("default bank has no hard pairs")
	}
	if _, ok := b.PairBySimilarity(0.75); !ok {
		t.Fatalf("expected a pair with similarity >= 0.75")
	}
	if _, ok := b.PairBySimilarity(0.99); ok {
		t.Fatalf("no default pair is that similar")
	}
	if _, ok := b.PairFromCategory("food"); !ok {
		t.Fatalf("food category missing")
	}
	if _, ok := b.PairFromCategory("nope"); ok {
		t.Fatalf("unknown category must not draw")
	}
}

func TestBank_FileRoundTripAndFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "words.json")

	b := Default()
	b.AddCategory("animals")
	b.AddPair("animals", Pair{CivilianWord: "wolf", UndercoverWord: "dog", Similarity: 0.9, Difficulty: DifficultyHard})
	require.NoError(t, b.SaveToFile(path))

	loaded, err := FromFile(path)
	require.NoError(t, err)
	if got := loaded.Stats().ByCategory["animals"]; got != 1 {
		t.Fatalf("animals pairs=%d want 1", got)
	}
	if _, ok := loaded.PairByDifficulty(DifficultyHard); !ok {
		t.Fatalf("hard pair lost in round trip")
	}

	if _, err := FromFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	if _, err := FromFile(path); err == nil {
		t.Fatalf("expected error for malformed file")
	}

	// Open never fails, it falls back to the defaults
	fb := Open(path, nil)
	if _, ok := fb.RandomWordPair(); !ok {
		t.Fatalf("fallback bank must be playable")
	}
}

func TestBank_StatsAndValidate(t *testing.T) {
	b := Default()
	s := b.Stats()
	if s.TotalCategories != 2 || s.TotalPairs != 4 {
		t.Fatalf("stats %+v", s)
	}
	if len(b.Validate()) != 0 {
		t.Fatalf("default bank must validate clean: %v", b.Validate())
	}

	b.AddCategory("empty")
	b.AddPair("food", Pair{CivilianWord: "", UndercoverWord: "x", Similarity: 2})
	problems := b.Validate()
	if len(problems) != 3 {
		t.Fatalf("problems=%v want empty category, empty word and range error", problems)
	}
}

func TestParseDifficulty(t *testing.T) {
	cases := []struct {
		in   string
		want Difficulty
	}{
		{"easy", DifficultyEasy},
		{"EASY", DifficultyEasy},
		{"hard", DifficultyHard},
		{"medium", DifficultyMedium},
		{"whatever", DifficultyMedium},
	}
	for _, tc := range cases {
		if got := ParseDifficulty(tc.in); got != tc.want {
			t.Fatalf("ParseDifficulty(%q)=%s want %s", tc.in, got, tc.want)
		}
	}
}
