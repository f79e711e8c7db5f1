package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// HTTPProvider authenticates against the identity collaborator's JSON API.
//
// The wire contract mirrors the collaborator:
//
//	POST {base}/login    {"email","password"}          -> 200 {"access_token","user_id","username"}
//	POST {base}/register {"email","password","username"} -> 201 same shape
//
// 401 maps to ErrInvalidCredentials, 403 to ErrAccountInactive, 409 to
// ErrEmailTaken; anything else wraps ErrUnavailable.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// HTTPOption configures an HTTPProvider.
type HTTPOption func(*HTTPProvider)

// WithHTTPClient sets the http.Client used for provider calls.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(p *HTTPProvider) {
		if c != nil {
			p.client = c
		}
	}
}

// WithLogger sets the logger for provider diagnostics.
func WithLogger(l *slog.Logger) HTTPOption {
	return func(p *HTTPProvider) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewHTTPProvider creates a provider talking to the collaborator at baseURL.
func NewHTTPProvider(baseURL string, opts ...HTTPOption) *HTTPProvider {
	p := &HTTPProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type authResponse struct {
	AccessToken string      `json:"access_token"`
	UserID      json.Number `json:"user_id"`
	Username    string      `json:"username"`
	Error       string      `json:"error,omitempty"`
}

// Login exchanges credentials for an Identity.
func (p *HTTPProvider) Login(ctx context.Context, email, password string) (Identity, error) {
	return p.post(ctx, "/login", map[string]string{
		"email":    email,
		"password": password,
	}, email)
}

// Register creates an account and signs it in.
func (p *HTTPProvider) Register(ctx context.Context, email, password, name string) (Identity, error) {
	return p.post(ctx, "/register", map[string]string{
		"email":    email,
		"password": password,
		"username": name,
	}, email)
}

func (p *HTTPProvider) post(ctx context.Context, path string, body map[string]string, email string) (Identity, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: encode request: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("identity provider unreachable", "path", path, "error", err)
		return Identity{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusUnauthorized:
		return Identity{}, ErrInvalidCredentials
	case http.StatusForbidden:
		return Identity{}, ErrAccountInactive
	case http.StatusConflict:
		return Identity{}, ErrEmailTaken
	default:
		return Identity{}, fmt.Errorf("%w: unexpected status %s", ErrUnavailable, resp.Status)
	}

	var ar authResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return Identity{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if ar.AccessToken == "" {
		return Identity{}, fmt.Errorf("%w: response carried no token", ErrUnavailable)
	}

	return Identity{
		Token:  ar.AccessToken,
		UserID: userID(ar.UserID),
		Name:   ar.Username,
		Email:  email,
	}, nil
}

// userID renders the collaborator's numeric-or-string user id.
func userID(n json.Number) string {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10)
	}
	return n.String()
}
