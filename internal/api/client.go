// Package api is the request/response client for the PsiChat backend. It
// covers the auth surface the session layer needs (login, register, who am
// I, profile updates) and history loading; the realtime path lives in
// internal/realtime.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/psichat/client-go/internal/config"
	"github.com/psichat/client-go/internal/domain"
	"github.com/psichat/client-go/pkg/log"
)

var (
	// ErrUnauthorized marks a rejected credential (401/403).
	ErrUnauthorized = errors.New("unauthorized")
)

// Client talks to the backend REST API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

func NewClient(cfg config.APIConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  log.L(),
	}
}

// AuthResponse is the backend's answer to login and register.
type AuthResponse struct {
	AccessToken string      `json:"access_token"`
	User        domain.User `json:"user"`
}

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// ProfileUpdate patches the authenticated user's profile.
type ProfileUpdate struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Login exchanges credentials for a token and user.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var out AuthResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates an account and returns its first session.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", "", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me is the "who am I" probe: it validates the token and returns the user
// behind it. A rejected token surfaces as ErrUnauthorized.
func (c *Client) Me(ctx context.Context, token string) (*domain.User, error) {
	var out domain.User
	if err := c.do(ctx, http.MethodGet, "/auth/me", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfile patches the profile and returns the updated user.
func (c *Client) UpdateProfile(ctx context.Context, token string, req ProfileUpdate) (*domain.User, error) {
	var out domain.User
	if err := c.do(ctx, http.MethodPatch, "/auth/me", token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SessionMessages loads the persisted history of a counseling session, used
// to seed the timeline before the realtime stream takes over.
func (c *Client) SessionMessages(ctx context.Context, token string, sessionID int64) ([]domain.Message, error) {
	var out []domain.Message
	path := fmt.Sprintf("/tutor-chat/session/%d/messages", sessionID)
	if err := c.do(ctx, http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	case resp.StatusCode >= 400:
		detail := readDetail(resp.Body)
		c.logger.Debug().Int(log.FieldStatus, resp.StatusCode).Str("path", path).Msg("request rejected")
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, detail)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// readDetail pulls the backend's {"detail": "..."} error body, if any.
func readDetail(r io.Reader) string {
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(r).Decode(&body); err != nil || body.Detail == "" {
		return "request failed"
	}
	return body.Detail
}
