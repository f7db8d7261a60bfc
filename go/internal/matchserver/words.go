package matchserver

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/mcdev12/wordduel/go/internal/wire"
)

// Difficulty selects the word pool and the per-player time budget
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty accepts the three difficulty names, defaulting to medium
func ParseDifficulty(s string) (Difficulty, error) {
	switch d := Difficulty(strings.ToLower(strings.TrimSpace(s))); d {
	case "":
		return DifficultyMedium, nil
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return d, nil
	}
	return "", ruleErr(wire.ReasonInvalidInput, "unknown difficulty %q", s)
}

// Word is a secret word with its hints, revealed in order
type Word struct {
	Text  string
	Hints []string
}

// WordSource picks the secret word for a new session
type WordSource interface {
	Pick(d Difficulty) (Word, error)
}

// StaticWords is a fixed in-memory word list
type StaticWords struct {
	mu    sync.Mutex
	rng   *rand.Rand
	words map[Difficulty][]Word
}

// NewStaticWords returns the built-in list. A nil rng uses a time-seeded source.
func NewStaticWords(rng *rand.Rand) *StaticWords {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &StaticWords{rng: rng, words: seedWords}
}

// NewFixedWords always returns w, whatever the difficulty
func NewFixedWords(w Word) *StaticWords {
	w.Text = strings.ToUpper(w.Text)
	list := []Word{w}
	return &StaticWords{
		rng: rand.New(rand.NewSource(1)),
		words: map[Difficulty][]Word{
			DifficultyEasy:   list,
			DifficultyMedium: list,
			DifficultyHard:   list,
		},
	}
}

func (s *StaticWords) Pick(d Difficulty) (Word, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.words[d]
	if len(list) == 0 {
		return Word{}, fmt.Errorf("no words for difficulty %s", d)
	}
	return list[s.rng.Intn(len(list))], nil
}

var seedWords = map[Difficulty][]Word{
	DifficultyEasy: {
		{"CAKE", []string{"a sweet dessert", "served at parties", "often has cream"}},
		{"BOOK", []string{"you read it", "it has pages", "found in a library"}},
		{"TREE", []string{"grows tall", "has leaves", "gives shade"}},
		{"FISH", []string{"lives in water", "it swims", "has fins"}},
		{"STAR", []string{"shines at night", "up in the sky", "it twinkles"}},
		{"BIRD", []string{"has wings", "it flies", "it sings"}},
		{"MOON", []string{"seen at night", "orbits the earth", "has craters"}},
		{"SHIP", []string{"moves on water", "carries cargo", "has a captain"}},
		{"RING", []string{"worn on a finger", "round like a loop", "usually shiny"}},
		{"DESK", []string{"for studying", "has drawers", "found in a classroom"}},
	},
	DifficultyMedium: {
		{"PUZZLE", []string{"a thinking game", "comes in pieces", "you have to solve it"}},
		{"GUITAR", []string{"a musical instrument", "it has strings", "played with fingers"}},
		{"WINDOW", []string{"lets light in", "made of glass", "you can open it"}},
		{"BRIDGE", []string{"crosses a river", "joins two sides", "cars drive over it"}},
		{"CAMERA", []string{"takes pictures", "has a lens", "keeps memories"}},
		{"FOREST", []string{"full of trees", "home to wildlife", "green and dense"}},
		{"MARKET", []string{"a place to shop", "sells food", "usually crowded"}},
		{"ROCKET", []string{"goes to space", "launched upward", "astronauts ride it"}},
		{"PENCIL", []string{"used for writing", "has an eraser", "made of wood"}},
		{"SINGER", []string{"performs songs", "uses their voice", "on a stage"}},
	},
	DifficultyHard: {
		{"STRAWBERRY", []string{"a red fruit", "has tiny seeds", "sweet and juicy"}},
		{"TELEVISION", []string{"shows programs", "has a screen", "in the living room"}},
		{"BUTTERFLY", []string{"colorful wings", "flies gently", "comes from a cocoon"}},
		{"PINEAPPLE", []string{"a tropical fruit", "spiky outside", "yellow and sweet"}},
		{"MICROSCOPE", []string{"used in science", "makes small things big", "for tiny details"}},
		{"HELICOPTER", []string{"flies with rotors", "hovers in the air", "used for rescues"}},
		{"NEWSPAPER", []string{"daily news", "printed on paper", "has headlines"}},
		{"TELESCOPE", []string{"see the stars", "used in astronomy", "has a lens"}},
		{"VOLLEYBALL", []string{"a team sport", "played over a net", "hit with hands"}},
		{"FLASHLIGHT", []string{"gives light", "used in the dark", "needs batteries"}},
	},
}
