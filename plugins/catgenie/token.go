package catgenie

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// newAccessToken wraps the exchanged token. Opaque tokens never expire on
// our side; JWTs carry their own exp claim.
func newAccessToken(raw string) *oauth2.Token {
	tok := &oauth2.Token{AccessToken: raw, TokenType: "Bearer"}
	if exp, ok := jwtExpiry(raw); ok {
		tok.Expiry = exp
	}
	return tok
}

// jwtExpiry reads the exp claim without verifying the signature; the vendor
// key is not published and the value is only used to schedule re-exchange.
func jwtExpiry(raw string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// TokenSource returns an oauth2.TokenSource bound to ctx that serves the
// cached access token and exchanges the refresh token when needed.
func (c *Client) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &clientTokenSource{ctx: ctx, client: c}
}

type clientTokenSource struct {
	ctx    context.Context
	client *Client
}

func (s *clientTokenSource) Token() (*oauth2.Token, error) {
	if tok := s.client.cachedToken(); tok != nil {
		return tok, nil
	}
	if _, err := s.client.AcquireAccessToken(s.ctx); err != nil {
		return nil, err
	}
	if tok := s.client.cachedToken(); tok != nil {
		return tok, nil
	}
	return nil, newError(KindUnknown, "token", 0, errTokenMissing)
}

func (c *Client) cachedToken() *oauth2.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.token.Valid() {
		return nil
	}
	return c.token
}

// InvalidateToken drops the cached access token.
func (c *Client) InvalidateToken() {
	c.mu.Lock()
	c.token = nil
	c.mu.Unlock()
}

// HasToken reports whether a usable access token is cached.
func (c *Client) HasToken() bool {
	return c.cachedToken() != nil
}
