package session

import (
	"strings"

	"github.com/mcdev12/wordduel/go/internal/wire"
)

// UpdateFromDoc converts a wire state document into an engine Update.
// Unknown status values are dropped rather than guessed at.
func UpdateFromDoc(doc *wire.StateDoc) Update {
	if doc == nil {
		return Update{}
	}

	u := Update{
		Seq:        doc.Seq,
		WordLength: doc.WordLength,
		Coins:      doc.Coins,
		Draw:       doc.Draw,
		Hints:      doc.Hints,
	}

	if doc.Status != nil {
		switch p := Phase(*doc.Status); p {
		case PhaseWaiting, PhaseActive, PhasePaused, PhaseFinished:
			u.Phase = &p
		}
	}
	if doc.Turn != nil {
		t := PlayerID(*doc.Turn)
		u.Turn = &t
	}
	if doc.Winner != nil {
		w := PlayerID(*doc.Winner)
		u.Winner = &w
	}
	for _, p := range doc.Players {
		u.Players = append(u.Players, PlayerID(p))
	}
	if len(doc.Revealed) > 0 {
		u.Revealed = make(map[int]string, len(doc.Revealed))
		for _, r := range doc.Revealed {
			u.Revealed[r.Position] = strings.ToUpper(r.Letter)
		}
	}
	for _, g := range doc.Guesses {
		gl := GuessedLetter{Letter: strings.ToUpper(g.Letter), Correct: g.Correct}
		if g.Position != nil {
			p := *g.Position
			gl.Position = &p
		}
		u.Guesses = append(u.Guesses, gl)
	}
	if len(doc.Scores) > 0 {
		u.Scores = make(map[PlayerID]int, len(doc.Scores))
		for p, v := range doc.Scores {
			u.Scores[PlayerID(p)] = v
		}
	}
	if len(doc.Clocks) > 0 {
		u.Clocks = make(map[PlayerID]int, len(doc.Clocks))
		for p, v := range doc.Clocks {
			u.Clocks[PlayerID(p)] = v
		}
	}
	return u
}
