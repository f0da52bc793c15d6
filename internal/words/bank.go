// Package words holds the word-pair bank the games draw from. Pairs are
// grouped into named categories and carry a similarity score and a
// difficulty tag for curated draws.
package words

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"strings"
	"sync"

	"example.com/undercover/internal/game"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty maps free-form input to a difficulty, defaulting to
// medium for anything unrecognized.
func ParseDifficulty(s string) Difficulty {
	switch strings.ToLower(s) {
	case "easy":
		return DifficultyEasy
	case "hard":
		return DifficultyHard
	default:
		return DifficultyMedium
	}
}

type Pair struct {
	CivilianWord   string     `json:"civilian_word"`
	UndercoverWord string     `json:"undercover_word"`
	Similarity     float64    `json:"similarity"`
	Difficulty     Difficulty `json:"difficulty"`
}

type bankFile struct {
	Categories map[string][]Pair `json:"categories"`
}

// Bank is safe for concurrent draws; mutation is a tooling concern and
// takes the write lock.
type Bank struct {
	mu         sync.RWMutex
	categories map[string][]Pair
	all        []Pair
}

// Open loads the bank from path, falling back to the built-in defaults
// when the file is missing or malformed so a server always starts with a
// playable bank.
func Open(path string, log *slog.Logger) *Bank {
	if log == nil {
		log = slog.Default()
	}
	if path == "" {
		return Default()
	}
	b, err := FromFile(path)
	if err != nil {
		log.Warn("word bank unavailable, using built-in defaults", "path", path, "error", err)
		return Default()
	}
	log.Info("word bank loaded", "path", path, "pairs", len(b.all))
	return b
}

func FromFile(path string) (*Bank, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read word bank: %w", err)
	}
	var data bankFile
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse word bank: %w", err)
	}
	b := &Bank{categories: data.Categories}
	if b.categories == nil {
		b.categories = make(map[string][]Pair)
	}
	b.rebuildLocked()
	return b, nil
}

// Default returns the small built-in bank.
func Default() *Bank {
	b := &Bank{categories: map[string][]Pair{
		"food": {
			{CivilianWord: "apple", UndercoverWord: "pear", Similarity: 0.8, Difficulty: DifficultyEasy},
			{CivilianWord: "banana", UndercoverWord: "orange", Similarity: 0.7, Difficulty: DifficultyEasy},
		},
		"electronics": {
			{CivilianWord: "phone", UndercoverWord: "tablet", Similarity: 0.7, Difficulty: DifficultyEasy},
			{CivilianWord: "desktop", UndercoverWord: "laptop", Similarity: 0.8, Difficulty: DifficultyEasy},
		},
	}}
	b.rebuildLocked()
	return b
}

func (b *Bank) SaveToFile(path string) error {
	b.mu.RLock()
	data := bankFile{Categories: b.categories}
	raw, err := json.MarshalIndent(data, "", "  ")
	b.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode word bank: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write word bank: %w", err)
	}
	return nil
}

// rebuildLocked flattens categories into the draw slice. Callers hold the
// write lock or own the bank exclusively.
func (b *Bank) rebuildLocked() {
	b.all = b.all[:0]
	for _, pairs := range b.categories {
		b.all = append(b.all, pairs...)
	}
}

// RandomWordPair draws a uniformly random pair across all categories.
func (b *Bank) RandomWordPair() (game.WordPair, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.all) == 0 {
		return game.WordPair{}, false
	}
	p := b.all[rand.Intn(len(b.all))]
	return game.WordPair{CivilianWord: p.CivilianWord, UndercoverWord: p.UndercoverWord}, true
}

func (b *Bank) PairByDifficulty(d Difficulty) (Pair, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return pickWhere(b.all, func(p Pair) bool { return p.Difficulty == d })
}

func (b *Bank) PairBySimilarity(min float64) (Pair, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return pickWhere(b.all, func(p Pair) bool { return p.Similarity >= min })
}

func (b *Bank) PairFromCategory(category string) (Pair, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	pairs := b.categories[category]
	if len(pairs) == 0 {
		return Pair{}, false
	}
	return pairs[rand.Intn(len(pairs))], true
}

func pickWhere(all []Pair, keep func(Pair) bool) (Pair, bool) {
	matching := make([]Pair, 0, len(all))
	for _, p := range all {
		if keep(p) {
			matching = append(matching, p)
		}
	}
	if len(matching) == 0 {
		return Pair{}, false
	}
	return matching[rand.Intn(len(matching))], true
}

func (b *Bank) Categories() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.categories))
	for name := range b.categories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (b *Bank) CategoryWords(category string) []Pair {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Pair(nil), b.categories[category]...)
}

func (b *Bank) AddPair(category string, p Pair) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.categories[category] = append(b.categories[category], p)
	b.rebuildLocked()
}

func (b *Bank) AddCategory(category string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.categories[category]; !ok {
		b.categories[category] = nil
	}
}

func (b *Bank) RemoveCategory(category string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.categories, category)
	b.rebuildLocked()
}

type Stats struct {
	TotalPairs      int
	TotalCategories int
	ByDifficulty    map[Difficulty]int
	ByCategory      map[string]int
}

func (b *Bank) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := Stats{
		TotalPairs:      len(b.all),
		TotalCategories: len(b.categories),
		ByDifficulty:    make(map[Difficulty]int),
		ByCategory:      make(map[string]int),
	}
	for _, p := range b.all {
		s.ByDifficulty[p.Difficulty]++
	}
	for name, pairs := range b.categories {
		s.ByCategory[name] = len(pairs)
	}
	return s
}

// Validate reports structural problems: empty categories, blank words and
// similarity scores outside [0,1].
func (b *Bank) Validate() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var problems []string
	for _, name := range b.categoriesSortedLocked() {
		pairs := b.categories[name]
		if len(pairs) == 0 {
			problems = append(problems, fmt.Sprintf("category %q has no word pairs", name))
		}
		for i, p := range pairs {
			if p.CivilianWord == "" || p.UndercoverWord == "" {
				problems = append(problems, fmt.Sprintf("category %q pair %d has an empty word", name, i+1))
			}
			if p.Similarity < 0 || p.Similarity > 1 {
				problems = append(problems, fmt.Sprintf("category %q pair %d similarity %.2f out of range", name, i+1, p.Similarity))
			}
		}
	}
	return problems
}

func (b *Bank) categoriesSortedLocked() []string {
	out := make([]string, 0, len(b.categories))
	for name := range b.categories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
