package wire

import "time"

// Session status values as they appear on the wire
const (
	StatusWaiting  = "waiting"
	StatusActive   = "active"
	StatusPaused   = "paused"
	StatusFinished = "finished"
)

// StateDoc is a (possibly partial) session document. Every field is optional:
// an omitted field means "no information", not "empty".
type StateDoc struct {
	SessionID  string         `json:"session_id,omitempty"`
	Seq        uint64         `json:"seq,omitempty"`
	Status     *string        `json:"status,omitempty"`
	Turn       *string        `json:"turn,omitempty"`
	WordLength *int           `json:"word_length,omitempty"`
	Players    []string       `json:"players,omitempty"`
	Revealed   []RevealedDoc  `json:"revealed,omitempty"`
	Guesses    []GuessDoc     `json:"guessed_letters,omitempty"`
	Hints      []string       `json:"hints,omitempty"`
	Scores     map[string]int `json:"scores,omitempty"`
	Clocks     map[string]int `json:"clocks,omitempty"` // remaining seconds per player
	ClockAsOf  *time.Time     `json:"clock_as_of,omitempty"`
	Coins      *int           `json:"coins,omitempty"` // requesting player's balance
	Winner     *string        `json:"winner,omitempty"`
	Draw       *bool          `json:"draw,omitempty"`
}

// RevealedDoc is a position known to be correct
type RevealedDoc struct {
	Position int    `json:"position"`
	Letter   string `json:"letter"`
}

// GuessDoc is one guessed letter
type GuessDoc struct {
	Letter   string `json:"letter"`
	Correct  bool   `json:"correct"`
	Position *int   `json:"position,omitempty"`
	Player   string `json:"player,omitempty"`
}

// GuessLetterRequest is the body of POST session/{id}/guess-letter
type GuessLetterRequest struct {
	Letter   string `json:"letter"`
	Position int    `json:"position"`
}

// GuessWordRequest is the body of POST session/{id}/guess-word
type GuessWordRequest struct {
	Word string `json:"word"`
}

// NewSessionRequest is the body of POST new-session
type NewSessionRequest struct {
	Difficulty string `json:"difficulty"`
}

// TokenRequest is the body of POST auth/token
type TokenRequest struct {
	Player string `json:"player"`
}

// TokenResponse carries a bearer credential
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ActionResponse is returned by every session action endpoint
type ActionResponse struct {
	State    StateDoc `json:"state"`
	Correct  *bool    `json:"correct,omitempty"`
	Hint     string   `json:"hint,omitempty"`
	Letter   string   `json:"letter,omitempty"`
	Position *int     `json:"position,omitempty"`
	TimedOut *bool    `json:"timed_out,omitempty"`
	Detail   string   `json:"detail,omitempty"`
}

// ErrorBody is the JSON body of every rejected request
type ErrorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// SessionSummary is a lobby listing entry
type SessionSummary struct {
	SessionID  string    `json:"session_id"`
	Players    []string  `json:"players"`
	Difficulty string    `json:"difficulty"`
	Status     string    `json:"status"`
	WordLength int       `json:"word_length"`
	CreatedAt  time.Time `json:"created_at"`
}

// Reason codes carried in ErrorBody.Error
const (
	ReasonNotYourTurn       = "not_your_turn"
	ReasonNotActive         = "not_active"
	ReasonNotPaused         = "not_paused"
	ReasonInvalidInput      = "invalid_input"
	ReasonPositionResolved  = "position_resolved"
	ReasonInsufficientCoins = "insufficient_coins"
	ReasonNoHintsLeft       = "no_hints_left"
	ReasonNothingToReveal   = "nothing_to_reveal"
	ReasonNotParticipant    = "not_participant"
	ReasonNotJoinable       = "not_joinable"
	ReasonNotFound          = "not_found"
	ReasonUnauthorized      = "unauthorized"
	ReasonTimedOut          = "timed_out"
)
