package transport

import (
	"context"
	"net/url"

	"github.com/mcdev12/wordduel/go/internal/wire"
)

// API is the typed view of the match server's pull endpoints
type API struct {
	pull *PullClient
}

func NewAPI(pull *PullClient) *API {
	return &API{pull: pull}
}

// SetToken replaces the bearer credential
func (a *API) SetToken(token string) {
	a.pull.SetToken(token)
}

func sessionPath(sessionID, action string) string {
	return "/session/" + url.PathEscape(sessionID) + "/" + action
}

// State fetches the full session snapshot
func (a *API) State(ctx context.Context, sessionID string) (*wire.StateDoc, error) {
	var doc wire.StateDoc
	if err := a.pull.Get(ctx, sessionPath(sessionID, "state"), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (a *API) action(ctx context.Context, sessionID, action string, payload any) (*wire.ActionResponse, error) {
	var resp wire.ActionResponse
	if err := a.pull.Post(ctx, sessionPath(sessionID, action), payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (a *API) GuessLetter(ctx context.Context, sessionID, letter string, position int) (*wire.ActionResponse, error) {
	return a.action(ctx, sessionID, "guess-letter", wire.GuessLetterRequest{Letter: letter, Position: position})
}

func (a *API) GuessWord(ctx context.Context, sessionID, word string) (*wire.ActionResponse, error) {
	return a.action(ctx, sessionID, "guess-word", wire.GuessWordRequest{Word: word})
}

func (a *API) Hint(ctx context.Context, sessionID string) (*wire.ActionResponse, error) {
	return a.action(ctx, sessionID, "hint", nil)
}

func (a *API) RevealLetter(ctx context.Context, sessionID string) (*wire.ActionResponse, error) {
	return a.action(ctx, sessionID, "reveal-letter", nil)
}

func (a *API) Pause(ctx context.Context, sessionID string) (*wire.ActionResponse, error) {
	return a.action(ctx, sessionID, "pause", nil)
}

func (a *API) Resume(ctx context.Context, sessionID string) (*wire.ActionResponse, error) {
	return a.action(ctx, sessionID, "resume", nil)
}

func (a *API) TimeoutCheck(ctx context.Context, sessionID string) (*wire.ActionResponse, error) {
	return a.action(ctx, sessionID, "timeout-check", nil)
}

// Lobby endpoints

func (a *API) PendingSessions(ctx context.Context) ([]wire.SessionSummary, error) {
	var out []wire.SessionSummary
	if err := a.pull.Get(ctx, "/pending-sessions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *API) PausedSessions(ctx context.Context) ([]wire.SessionSummary, error) {
	var out []wire.SessionSummary
	if err := a.pull.Get(ctx, "/paused-sessions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *API) JoinSession(ctx context.Context, sessionID string) (*wire.SessionSummary, error) {
	var out wire.SessionSummary
	if err := a.pull.Post(ctx, "/join-session/"+url.PathEscape(sessionID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) NewSession(ctx context.Context, difficulty string) (*wire.SessionSummary, error) {
	var out wire.SessionSummary
	if err := a.pull.Post(ctx, "/new-session", wire.NewSessionRequest{Difficulty: difficulty}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Token asks the server for a development bearer token
func (a *API) Token(ctx context.Context, player string) (*wire.TokenResponse, error) {
	var out wire.TokenResponse
	if err := a.pull.Post(ctx, "/auth/token", wire.TokenRequest{Player: player}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
