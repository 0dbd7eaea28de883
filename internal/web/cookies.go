// ABOUTME: Session cookie handling for the chat UI
// ABOUTME: Uses HS256 signed JWTs so session IDs cannot be forged

package web

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionCookieName is the name of the chat session cookie.
const SessionCookieName = "mailbox_session"

// SessionDuration is how long a session cookie stays valid.
const SessionDuration = 7 * 24 * time.Hour

// Cookie errors
var (
	ErrInvalidCookie = errors.New("invalid session cookie")
	ErrMissingClaim  = errors.New("missing required claim")
)

// sessionCodec signs and verifies session identifiers carried in cookies.
type sessionCodec struct {
	secret []byte
}

func newSessionCodec(secret []byte) *sessionCodec {
	return &sessionCodec{secret: secret}
}

// Encode wraps a session ID in a signed token.
func (c *sessionCodec) Encode(sessionID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": sessionID,
		"iat": now.Unix(),
		"exp": now.Add(SessionDuration).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Decode verifies a token and extracts the session ID from the "sub" claim.
func (c *sessionCodec) Decode(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCookie, err)
	}
	if !token.Valid {
		return "", ErrInvalidCookie
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidCookie
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	return sub, nil
}

// sessionID returns the caller's session ID, minting a fresh one when the
// cookie is absent or fails verification. The second return reports
// whether a new cookie must be set on the response.
func (s *Server) sessionID(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return uuid.NewString(), true
	}
	id, err := s.codec.Decode(cookie.Value)
	if err != nil {
		s.logger.Debug("rejecting session cookie", "error", err)
		return uuid.NewString(), true
	}
	return id, false
}

// setSessionCookie writes a signed session cookie on the response.
func (s *Server) setSessionCookie(w http.ResponseWriter, sessionID string) {
	token, err := s.codec.Encode(sessionID)
	if err != nil {
		s.logger.Error("failed to sign session cookie", "error", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(SessionDuration.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
