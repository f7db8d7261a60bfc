package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordduel/go/internal/client"
	"github.com/mcdev12/wordduel/go/internal/config"
	"github.com/mcdev12/wordduel/go/internal/transport"
)

const usage = `usage: wordduel [flags] <command>

commands:
  new [easy|medium|hard]   create a session and wait for an opponent
  pending                  list sessions waiting for a second player
  paused                   list your paused sessions
  join <session-id>        join a session and play it
  play <session-id>        open a session you already play in

flags:
`

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	fs := flag.NewFlagSet("wordduel", flag.ExitOnError)
	fs.StringVar(&cfg.Client.PlayerID, "player", cfg.Client.PlayerID, "player id")
	fs.StringVar(&cfg.Client.ServerURL, "server", cfg.Client.ServerURL, "match server URL")
	fs.StringVar(&cfg.Client.Push, "push", cfg.Client.Push, "push transport: ws, nats or none")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, &cfg.Client, fs.Args(), os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, transport.ErrUnauthorized) {
			fmt.Fprintln(os.Stderr, "credentials rejected; set WORDDUEL_TOKEN or enable dev login on the server")
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.ClientConfig, args []string, in io.Reader, out io.Writer) error {
	api := client.NewAPI(*cfg)
	if err := client.Login(ctx, api, cfg); err != nil {
		return err
	}

	switch cmd, rest := args[0], args[1:]; cmd {
	case "new":
		difficulty := ""
		if len(rest) > 0 {
			difficulty = rest[0]
		}
		sum, err := api.NewSession(ctx, difficulty)
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		fmt.Fprintf(out, "created %s (%s, %d letters)\n", sum.SessionID, sum.Difficulty, sum.WordLength)
		fmt.Fprintln(out, "waiting for an opponent to join...")
		return play(ctx, cfg, api, sum.SessionID, in, out)

	case "pending":
		list, err := api.PendingSessions(ctx)
		if err != nil {
			return fmt.Errorf("list pending sessions: %w", err)
		}
		printSessions(out, list)
		return nil

	case "paused":
		list, err := api.PausedSessions(ctx)
		if err != nil {
			return fmt.Errorf("list paused sessions: %w", err)
		}
		printSessions(out, list)
		return nil

	case "join":
		if len(rest) != 1 {
			return errors.New("join needs a session id")
		}
		if _, err := api.JoinSession(ctx, rest[0]); err != nil {
			return fmt.Errorf("join session: %w", err)
		}
		return play(ctx, cfg, api, rest[0], in, out)

	case "play":
		if len(rest) != 1 {
			return errors.New("play needs a session id")
		}
		return play(ctx, cfg, api, rest[0], in, out)
	}
	return fmt.Errorf("unknown command %q", args[0])
}
