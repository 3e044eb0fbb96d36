package push

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrPushDisabled is returned by decodeToken when the account has
// streaming disabled — the caller should fall back to polling without
// retrying the auth request.
var ErrPushDisabled = errors.New("push: streaming not enabled for this account")

// authResponse is the wire response from the auth server's /v2/auth
// endpoint.
type authResponse struct {
	PushEnabled bool   `json:"pushEnabled"`
	Token       string `json:"token"`
}

// jwtPayload is the subset of standard JWT claims this client reads, plus
// Split's custom capability claim listing the subscribed channels.
type jwtPayload struct {
	Exp          int64  `json:"exp"`
	Iat          int64  `json:"iat"`
	Capabilities string `json:"x-ably-capability"`
}

// Token is a decoded streaming auth token.
type Token struct {
	Raw      string
	Channels []string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// RefreshGrace is subtracted from a token's lifetime to compute when the
// client should proactively fetch a replacement, per the reference SDK.
const RefreshGrace = 10 * time.Minute

// RefreshAt returns when the token should be refreshed: exp - iat - grace
// after issuance, floored at zero.
func (t Token) RefreshAt() time.Duration {
	lifetime := t.ExpiresAt.Sub(t.IssuedAt) - RefreshGrace
	if lifetime < 0 {
		return 0
	}
	return lifetime
}

func decodeToken(body []byte) (Token, error) {
	var resp authResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Token{}, err
	}
	if !resp.PushEnabled || strings.TrimSpace(resp.Token) == "" {
		return Token{}, ErrPushDisabled
	}

	parts := strings.Split(resp.Token, ".")
	if len(parts) != 3 {
		return Token{}, errors.New("push: malformed jwt")
	}
	payload, err := base64.StdEncoding.DecodeString(padBase64(parts[1]))
	if err != nil {
		return Token{}, err
	}
	var claims jwtPayload
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Token{}, err
	}

	var channels []string
	if claims.Capabilities != "" {
		var capMap map[string][]string
		if err := json.Unmarshal([]byte(claims.Capabilities), &capMap); err == nil {
			for ch := range capMap {
				channels = append(channels, ch)
			}
		}
	}

	return Token{
		Raw:       resp.Token,
		Channels:  channels,
		ExpiresAt: time.Unix(claims.Exp, 0),
		IssuedAt:  time.Unix(claims.Iat, 0),
	}, nil
}

func padBase64(s string) string {
	if rem := len(s) % 4; rem != 0 {
		s += strings.Repeat("=", 4-rem)
	}
	return s
}
