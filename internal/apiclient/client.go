// Package apiclient talks to the remote employee API. Every authenticated call
// takes its bearer token from the session carried by ctx and fails before any
// network I/O when that session is missing or expired.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/phillip-england/staffsuite/internal/employee"
	"github.com/phillip-england/staffsuite/internal/form"
	"github.com/phillip-england/staffsuite/internal/session"
)

const DefaultTimeout = 8 * time.Second

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 64 << 10

type Client struct {
	baseURL string
	http    *http.Client
	nowFunc func() time.Time
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
		nowFunc: time.Now,
	}
}

// NewWithHTTPClient lets callers supply their own transport.
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	c := New(baseURL, 0)
	if hc != nil {
		c.http = hc
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	ID    json.RawMessage `json:"id"`
	Name  string          `json:"name"`
	Email string          `json:"email"`
	Token struct {
		Token string `json:"token"`
	} `json:"token"`
}

// Login exchanges credentials for an identity and a bearer token. It never
// retries and never touches session state.
func (c *Client) Login(ctx context.Context, email, password string) (session.Identity, string, error) {
	body, err := json.Marshal(loginRequest{Email: strings.TrimSpace(email), Password: password})
	if err != nil {
		return session.Identity{}, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return session.Identity{}, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return session.Identity{}, "", &UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return session.Identity{}, "", decodeFailure(resp)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return session.Identity{}, "", ErrInvalidCredentials
	}

	var payload loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return session.Identity{}, "", ErrInvalidCredentials
	}
	token := strings.TrimSpace(payload.Token.Token)
	if token == "" {
		return session.Identity{}, "", ErrInvalidCredentials
	}
	id, err := rawID(payload.ID)
	if err != nil {
		return session.Identity{}, "", ErrInvalidCredentials
	}
	return session.Identity{ID: id, Name: payload.Name, Email: payload.Email}, token, nil
}

func (c *Client) ListEmployees(ctx context.Context) ([]employee.Employee, error) {
	var list []employee.Employee
	if err := c.do(ctx, http.MethodGet, "/users", nil, &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = []employee.Employee{}
	}
	return list, nil
}

func (c *Client) GetEmployee(ctx context.Context, id string) (employee.Employee, error) {
	var e employee.Employee
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(id), nil, &e); err != nil {
		return employee.Employee{}, err
	}
	return e, nil
}

func (c *Client) CreateEmployee(ctx context.Context, f employee.Form) error {
	f = f.Normalized()
	return c.do(ctx, http.MethodPost, "/users", f, nil)
}

// UpdateEmployee sends the editable fields only; passwords are never updated
// through this path.
func (c *Client) UpdateEmployee(ctx context.Context, id string, f employee.Form) error {
	f = f.Normalized()
	f.Password = ""
	return c.do(ctx, http.MethodPut, "/users/"+url.PathEscape(id), f, nil)
}

func (c *Client) DeleteEmployee(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/users/"+url.PathEscape(id), nil, nil)
}

func (c *Client) bearer(ctx context.Context) (string, error) {
	s, ok := session.FromContext(ctx)
	if !ok || strings.TrimSpace(s.AccessToken) == "" {
		return "", ErrUnauthenticated
	}
	if s.Expired(c.nowFunc()) {
		return "", ErrUnauthenticated
	}
	return s.AccessToken, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	token, err := c.bearer(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeFailure(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &UpstreamError{Status: resp.StatusCode, Message: "malformed response", Err: err}
	}
	return nil
}

type failurePayload struct {
	Message string            `json:"message"`
	Error   string            `json:"error"`
	Errors  []form.FieldError `json:"errors"`
}

func decodeFailure(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrUnauthenticated
	}
	var payload failurePayload
	if len(bytes.TrimSpace(raw)) > 0 {
		_ = json.Unmarshal(raw, &payload)
	}
	if len(payload.Errors) > 0 {
		return &ValidationError{Status: resp.StatusCode, Fields: payload.Errors}
	}
	return &UpstreamError{Status: resp.StatusCode, Message: readMessage(&payload)}
}

func readMessage(p *failurePayload) string {
	if msg := strings.TrimSpace(p.Message); msg != "" {
		return msg
	}
	return strings.TrimSpace(p.Error)
}

func rawID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", errors.New("id is neither string nor number")
	}
	return n.String(), nil
}
