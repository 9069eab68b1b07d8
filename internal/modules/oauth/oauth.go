// Package oauth turns an identity provider access token into a verified
// identity. The token exchange itself happens in the client.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const ProviderGoogle = "google"

var ErrInvalidToken = errors.New("invalid or expired provider token")

// Identity is an external account the provider vouches for.
type Identity struct {
	Provider string
	Subject  string
	Email    string
	Name     string
}

// Verifier resolves a provider access token to an Identity.
type Verifier interface {
	Verify(ctx context.Context, accessToken string) (Identity, error)
}

// Google calls the OpenID userinfo endpoint with the access token.
type Google struct {
	userInfoURL string
	client      *http.Client
}

func NewGoogle(userInfoURL string, client *http.Client) *Google {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Google{userInfoURL: userInfoURL, client: client}
}

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

func (g *Google) Verify(ctx context.Context, accessToken string) (Identity, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return Identity{}, ErrInvalidToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return Identity{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("google userinfo: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest:
		return Identity{}, ErrInvalidToken
	case resp.StatusCode >= 300:
		return Identity{}, fmt.Errorf("google userinfo: unexpected status %d", resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return Identity{}, fmt.Errorf("google userinfo: decode: %w", err)
	}
	if info.Sub == "" || info.Email == "" || !info.EmailVerified {
		return Identity{}, ErrInvalidToken
	}

	return Identity{
		Provider: ProviderGoogle,
		Subject:  info.Sub,
		Email:    strings.ToLower(strings.TrimSpace(info.Email)),
		Name:     strings.TrimSpace(info.Name),
	}, nil
}
