package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcdev12/wordduel/go/internal/config"
	"github.com/mcdev12/wordduel/go/internal/session"
	"github.com/mcdev12/wordduel/go/internal/transport"
)

// NewAPI returns a pull client for cfg.ServerURL carrying cfg.Token, if set
func NewAPI(cfg config.ClientConfig) *transport.API {
	api := transport.NewAPI(transport.NewPullClient(cfg.ServerURL, cfg.PullTimeout))
	if cfg.Token != "" {
		api.SetToken(cfg.Token)
	}
	return api
}

// NewDialer picks the push transport named by cfg.Push. It returns nil for
// PushNone, which runs sessions on polling alone.
func NewDialer(cfg config.ClientConfig) (transport.Dialer, error) {
	switch cfg.Push {
	case config.PushWebSocket:
		return transport.NewWSDialer(cfg.ServerURL, cfg.HandshakeTimeout), nil
	case config.PushNATS:
		nc := transport.DefaultNATSConfig()
		nc.URL = cfg.NATSURL
		nc.SubjectPrefix = cfg.SubjectPrefix
		nc.Timeout = cfg.HandshakeTimeout
		return transport.NewNATSDialer(nc), nil
	case config.PushNone:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown push transport %q", cfg.Push)
}

// Login makes sure cfg carries a bearer token, asking the server for a
// development token when none is configured. The token is set on api.
func Login(ctx context.Context, api *transport.API, cfg *config.ClientConfig) error {
	if cfg.Token != "" {
		api.SetToken(cfg.Token)
		return nil
	}
	if cfg.PlayerID == "" {
		return errors.New("player id is required to request a token")
	}
	tok, err := api.Token(ctx, cfg.PlayerID)
	if err != nil {
		return fmt.Errorf("request token: %w", err)
	}
	cfg.Token = tok.Token
	api.SetToken(tok.Token)
	return nil
}

// RunnerConfig derives a runner configuration for sessionID from cfg
func RunnerConfig(cfg config.ClientConfig, sessionID string) Config {
	return Config{
		SessionID:    sessionID,
		Player:       session.PlayerID(cfg.PlayerID),
		Token:        cfg.Token,
		PollInterval: cfg.PollInterval,
		TickInterval: cfg.TickInterval,
	}
}
