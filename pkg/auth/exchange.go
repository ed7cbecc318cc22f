package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	Audience     string `json:"audience"`
	Scope        string `json:"scope"`
}

type tokenResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresIn   *float64 `json:"expires_in"`
}

type tokenError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// TokenURL returns the token endpoint for an Auth0 domain. A domain that
// already carries a scheme is used as is.
func TokenURL(domain string) string {
	domain = strings.TrimRight(domain, "/")
	if strings.HasPrefix(domain, "https://") || strings.HasPrefix(domain, "http://") {
		return domain + "/oauth/token"
	}
	return "https://" + domain + "/oauth/token"
}

func (s *Store) exchange(ctx context.Context, username, password string) (Credential, error) {
	resp, err := s.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(tokenRequest{
			GrantType:    "password",
			ClientID:     s.cfg.ClientID,
			ClientSecret: s.cfg.ClientSecret,
			Username:     username,
			Password:     password,
			Audience:     s.cfg.Audience,
			Scope:        s.cfg.Scope,
		}).
		Post(TokenURL(s.cfg.Domain))
	if err != nil {
		return Credential{}, fmt.Errorf("%w: token request: %w", ErrAuthentication, err)
	}

	if !resp.IsSuccess() {
		var te tokenError
		msg := strings.TrimSpace(string(resp.Body()))
		if json.Unmarshal(resp.Body(), &te) == nil && te.Error != "" {
			msg = te.Error
			if te.Description != "" {
				msg += ": " + te.Description
			}
		}
		return Credential{}, fmt.Errorf("%w: token endpoint returned %d: %s", ErrAuthentication, resp.StatusCode(), msg)
	}

	var tr tokenResponse
	if err := json.Unmarshal(resp.Body(), &tr); err != nil {
		return Credential{}, fmt.Errorf("%w: decoding token response: %w", ErrAuthentication, err)
	}
	if tr.AccessToken == "" {
		return Credential{}, fmt.Errorf("%w: token response has no access_token", ErrAuthentication)
	}

	return Credential{
		Token:     tr.AccessToken,
		ExpiresAt: s.expiresAt(tr),
	}, nil
}

// expiresAt prefers expires_in, then the token's own exp claim, then the
// configured default lifetime.
func (s *Store) expiresAt(tr tokenResponse) time.Time {
	now := s.clock.Now()
	if tr.ExpiresIn != nil {
		return now.Add(time.Duration(*tr.ExpiresIn * float64(time.Second)))
	}
	if exp, ok := jwtExpiry(tr.AccessToken); ok && exp.After(now) {
		return exp
	}
	return now.Add(s.cfg.DefaultTTL)
}

// jwtExpiry reads the exp claim without verifying the signature. The token is
// only inspected to schedule a refresh.
func jwtExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
