package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mcdev12/wordduel/go/internal/client"
	"github.com/mcdev12/wordduel/go/internal/config"
	"github.com/mcdev12/wordduel/go/internal/protocol"
	"github.com/mcdev12/wordduel/go/internal/transport"
)

type commandKind int

const (
	cmdGuessLetter commandKind = iota
	cmdGuessWord
	cmdHint
	cmdReveal
	cmdPause
	cmdResume
	cmdHelp
	cmdQuit
)

type command struct {
	kind     commandKind
	letter   string
	position int // zero-based
	word     string
}

const commandHelp = `l <letter> <pos>  guess a letter at a position (1 = first)
w <word>          guess the whole word
hint              buy a hint
reveal            buy a letter
pause | resume    stop or restart both clocks
quit              leave the session`

// parseCommand reads one input line. Positions are typed one-based.
func parseCommand(line string) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, errors.New("empty command")
	}

	switch strings.ToLower(fields[0]) {
	case "l", "letter":
		if len(fields) != 3 {
			return command{}, errors.New("usage: l <letter> <pos>")
		}
		pos, err := strconv.Atoi(fields[2])
		if err != nil || pos < 1 {
			return command{}, fmt.Errorf("bad position %q", fields[2])
		}
		return command{kind: cmdGuessLetter, letter: fields[1], position: pos - 1}, nil
	case "w", "word":
		if len(fields) != 2 {
			return command{}, errors.New("usage: w <word>")
		}
		return command{kind: cmdGuessWord, word: fields[1]}, nil
	case "hint":
		return command{kind: cmdHint}, nil
	case "reveal":
		return command{kind: cmdReveal}, nil
	case "pause":
		return command{kind: cmdPause}, nil
	case "resume":
		return command{kind: cmdResume}, nil
	case "help", "?":
		return command{kind: cmdHelp}, nil
	case "quit", "q", "exit":
		return command{kind: cmdQuit}, nil
	}
	return command{}, fmt.Errorf("unknown command %q (try help)", fields[0])
}

// execute submits c and describes the confirmed outcome
func execute(ctx context.Context, p *protocol.Protocol, c command) (string, error) {
	switch c.kind {
	case cmdGuessLetter:
		res, err := p.RequestGuessLetter(ctx, c.letter, c.position)
		if err != nil {
			return "", err
		}
		if res.Correct != nil && *res.Correct {
			return fmt.Sprintf("%s is at position %d", strings.ToUpper(c.letter), c.position+1), nil
		}
		return fmt.Sprintf("%s is not at position %d", strings.ToUpper(c.letter), c.position+1), nil

	case cmdGuessWord:
		res, err := p.RequestGuessWord(ctx, c.word)
		if err != nil {
			return "", err
		}
		if res.Correct != nil && *res.Correct {
			return "correct!", nil
		}
		return "wrong word. " + res.Detail, nil

	case cmdHint:
		res, err := p.RequestHint(ctx)
		if err != nil {
			return "", err
		}
		return "hint: " + res.Hint, nil

	case cmdReveal:
		res, err := p.RequestRevealLetter(ctx)
		if err != nil {
			return "", err
		}
		if res.Position != nil {
			return fmt.Sprintf("position %d is %s", *res.Position+1, res.Letter), nil
		}
		return "revealed " + res.Letter, nil

	case cmdPause:
		if _, err := p.RequestPause(ctx); err != nil {
			return "", err
		}
		return "paused", nil

	case cmdResume:
		if _, err := p.RequestResume(ctx); err != nil {
			return "", err
		}
		return "resumed", nil

	case cmdHelp:
		return commandHelp, nil
	}
	return "", fmt.Errorf("unsupported command")
}

// describeError turns an action failure into a line for the player
func describeError(err error) string {
	var rejected *transport.RejectedError
	switch {
	case errors.Is(err, protocol.ErrIllegalMove),
		errors.Is(err, protocol.ErrInvalidInput),
		errors.Is(err, protocol.ErrInsufficientCoins):
		return "not allowed: " + err.Error()
	case errors.As(err, &rejected):
		return "server refused: " + rejected.Error()
	default:
		return "request failed, try again: " + err.Error()
	}
}

// play runs the session view until the player quits, the input ends or the
// server rejects the credentials
func play(ctx context.Context, cfg *config.ClientConfig, api *transport.API, sessionID string, in io.Reader, out io.Writer) error {
	dialer, err := client.NewDialer(*cfg)
	if err != nil {
		return err
	}
	r := client.New(client.RunnerConfig(*cfg, sessionID), api, dialer, nil)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- r.Run(ctx) }()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	states, unsubscribe := r.Engine().Subscribe()
	defer unsubscribe()
	notices := r.Notices()

	// input is held back until the first authoritative state has arrived
	var input <-chan string

	fmt.Fprintln(out, "type help for commands")
	for {
		select {
		case err := <-runErr:
			return err

		case s := <-states:
			renderBoard(out, s, r.Clock().Display(time.Now()))
			if input == nil && lines != nil && s.LastSyncSeq > 0 {
				input = lines
			}

		case n, ok := <-notices:
			if !ok {
				notices = nil
				continue
			}
			fmt.Fprintf(out, "* %s\n", n)

		case line, ok := <-input:
			if !ok {
				input, lines = nil, nil
				cancel()
				continue
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			c, err := parseCommand(line)
			if err != nil {
				fmt.Fprintln(out, err)
				continue
			}
			if c.kind == cmdQuit {
				input = nil
				cancel()
				continue
			}
			msg, err := execute(ctx, r.Protocol(), c)
			if err != nil {
				if errors.Is(err, transport.ErrUnauthorized) {
					cancel()
					return err
				}
				fmt.Fprintln(out, describeError(err))
				continue
			}
			fmt.Fprintln(out, msg)
		}
	}
}
