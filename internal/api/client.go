// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package api implements the client for the transportation platform REST
// API. Every business operation (authentication, provisioning, fleet CRUD,
// statistics) is delegated to it over HTTPS with a bearer access token.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/schooltransit/busadmin/internal/model"
)

// DefaultTimeout bounds every outbound call when no timeout is configured.
// The session bootstrap runs behind it too; an unbounded hang there would
// block every page behind the loading state.
const DefaultTimeout = 10 * time.Second

// Client talks to the platform API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client for the given API origin.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// envelope is the common response wrapper used by the platform API.
// Endpoints differ in which fields they populate.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	User    json.RawMessage `json:"user"`
	Message string          `json:"message"`
}

// do issues a request and decodes the response envelope. A non-2xx status
// is returned as *Error carrying the upstream {message} verbatim.
func (c *Client) do(ctx context.Context, method, path, token string, body any) (*envelope, error) {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api request %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		var env envelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err == nil {
			apiErr.Message = env.Message
		}
		return nil, apiErr
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding response from %s %s: %w", method, path, err)
	}
	return &env, nil
}

// decodeData unmarshals the envelope's data field into out.
func decodeData(env *envelope, out any) error {
	if len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

// Credentials is an email/password pair for credential exchange.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is what the login and register endpoints issue: the canonical
// user record plus bearer tokens. RefreshToken may be empty.
type Session struct {
	User         *model.User `json:"user"`
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
}

// loginResponse matches the credential-exchange wire shape.
type loginResponse struct {
	User         *model.User `json:"user"`
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	Message      string      `json:"message"`
}

// login performs credential exchange against the given endpoint.
func (c *Client) login(ctx context.Context, path string, body any) (*Session, error) {
	var reqBody io.Reader
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}
	reqBody = bytes.NewReader(buf)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api request POST %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var lr loginResponse
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(&lr); err == nil {
			apiErr.Message = lr.Message
		}
		return nil, apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, fmt.Errorf("decoding response from POST %s: %w", path, err)
	}
	if lr.User == nil || lr.AccessToken == "" {
		return nil, fmt.Errorf("malformed credential response from POST %s", path)
	}
	return &Session{User: lr.User, AccessToken: lr.AccessToken, RefreshToken: lr.RefreshToken}, nil
}

// LoginSuperAdmin exchanges super-administrator credentials for a session.
func (c *Client) LoginSuperAdmin(ctx context.Context, creds Credentials) (*Session, error) {
	return c.login(ctx, "/super-admin/login", creds)
}

// LoginSchoolAdmin exchanges school-administrator credentials for a session.
func (c *Client) LoginSchoolAdmin(ctx context.Context, creds Credentials) (*Session, error) {
	return c.login(ctx, "/school-admin/login", creds)
}

// RegisterRequest is the super-admin self-registration payload. The shared
// secret is forwarded verbatim; the platform validates it.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Secret   string `json:"secret"`
}

// RegisterSuperAdmin registers a new super administrator, gated by the
// shared secret value.
func (c *Client) RegisterSuperAdmin(ctx context.Context, req RegisterRequest) (*Session, error) {
	return c.login(ctx, "/super-admin/register", req)
}

// Me validates the token and returns the canonical user record. This is
// the session bootstrap call: any failure means the token must be treated
// as invalid.
func (c *Client) Me(ctx context.Context, token string) (*model.User, error) {
	env, err := c.do(ctx, http.MethodGet, "/auth/me", token, nil)
	if err != nil {
		return nil, err
	}
	var user model.User
	if len(env.User) == 0 {
		return nil, fmt.Errorf("malformed response from GET /auth/me: missing user")
	}
	if err := json.Unmarshal(env.User, &user); err != nil {
		return nil, fmt.Errorf("decoding user from GET /auth/me: %w", err)
	}
	return &user, nil
}
