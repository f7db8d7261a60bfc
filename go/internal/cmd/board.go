package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mcdev12/wordduel/go/internal/session"
	"github.com/mcdev12/wordduel/go/internal/wire"
)

func renderBoard(w io.Writer, s session.State, clocks map[session.PlayerID]time.Duration) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "session %s  [%s]\n", s.SessionID, s.Phase)
	if s.WordLength > 0 {
		fmt.Fprintf(w, "  %s\n", s.Masked())
		nums := make([]string, s.WordLength)
		for i := range nums {
			nums[i] = fmt.Sprint((i + 1) % 10)
		}
		fmt.Fprintf(w, "  %s\n", strings.Join(nums, " "))
	}

	players := append([]session.PlayerID(nil), s.Players...)
	sort.Slice(players, func(i, j int) bool { return players[i] < players[j] })
	for _, p := range players {
		marker := " "
		if s.Phase == session.PhaseActive && s.Turn == p {
			marker = ">"
		}
		label := string(p)
		if p == s.Self {
			label += " (you)"
		}
		fmt.Fprintf(w, "%s %-16s %4d pts  %s\n", marker, label, s.Scores[p], formatClock(clocks[p]))
	}

	if len(s.Guesses) > 0 {
		var wrong []string
		for _, g := range s.Guesses {
			if !g.Correct {
				wrong = append(wrong, g.Letter)
			}
		}
		if len(wrong) > 0 {
			fmt.Fprintf(w, "  misses: %s\n", strings.Join(wrong, " "))
		}
	}
	if s.IsParticipant(s.Self) {
		fmt.Fprintf(w, "  coins: %d\n", s.Coins)
	}
	for i, h := range s.Hints {
		fmt.Fprintf(w, "  hint %d: %s\n", i+1, h)
	}

	switch {
	case s.Phase == session.PhaseFinished && s.Draw:
		fmt.Fprintln(w, "  draw")
	case s.Phase == session.PhaseFinished && s.Winner != "":
		fmt.Fprintf(w, "  winner: %s\n", s.Winner)
	case s.Phase == session.PhaseActive && s.IsMyTurn():
		fmt.Fprintln(w, "  your turn")
	}
}

func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int((d + time.Second - 1) / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

func printSessions(w io.Writer, list []wire.SessionSummary) {
	if len(list) == 0 {
		fmt.Fprintln(w, "no sessions")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPLAYERS\tDIFFICULTY\tLETTERS\tCREATED")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			s.SessionID,
			strings.Join(s.Players, ", "),
			s.Difficulty,
			s.WordLength,
			s.CreatedAt.Local().Format(time.Kitchen),
		)
	}
	tw.Flush()
}
