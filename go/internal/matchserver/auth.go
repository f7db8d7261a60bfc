package matchserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/wordduel/go/internal/wire"
)

// Authenticator issues and verifies HS256 bearer tokens carrying the player id
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	clock  clockwork.Clock
}

func NewAuthenticator(secret string, ttl time.Duration, clock clockwork.Clock) *Authenticator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl, clock: clock}
}

// Issue signs a token for player
func (a *Authenticator) Issue(player string) (string, time.Time, error) {
	now := a.clock.Now()
	exp := now.Add(a.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   player,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	ss, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return ss, exp, nil
}

// Verify returns the player a valid token was issued to
func (a *Authenticator) Verify(tokenStr string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims,
		func(t *jwt.Token) (interface{}, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.clock.Now),
	)
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", errors.New("invalid token")
	}
	return claims.Subject, nil
}

type ctxPlayerKey struct{}

// bearerOrQuery reads the Authorization header, falling back to ?token= for
// WebSocket clients that cannot set headers
func bearerOrQuery(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// requireAuth rejects requests without a valid bearer token
func (a *Authenticator) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := bearerOrQuery(r)
		if tokenStr == "" {
			writeJSON(w, http.StatusUnauthorized, wire.ErrorBody{Error: wire.ReasonUnauthorized, Detail: "missing bearer token"})
			return
		}
		player, err := a.Verify(tokenStr)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, wire.ErrorBody{Error: wire.ReasonUnauthorized, Detail: "invalid token"})
			return
		}
		ctx := context.WithValue(r.Context(), ctxPlayerKey{}, player)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func currentPlayer(r *http.Request) string {
	p, _ := r.Context().Value(ctxPlayerKey{}).(string)
	return p
}
