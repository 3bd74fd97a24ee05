package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phillip-england/staffsuite/internal/employee"
	"github.com/phillip-england/staffsuite/internal/session"
)

func authed(token string) context.Context {
	return session.WithSession(context.Background(), session.Session{
		ID:          "s1",
		AccessToken: token,
		IssuedAt:    time.Now(),
		MaxAge:      time.Hour,
	})
}

func TestLoginSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/login" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body loginRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body.Email != "ana@example.com" || body.Password != "secret1" {
			t.Errorf("unexpected credentials %+v", body)
		}
		_, _ = w.Write([]byte(`{"id":7,"name":"Ana","email":"ana@example.com","token":{"type":"bearer","token":"abc"}}`))
	}))
	defer srv.Close()

	user, token, err := New(srv.URL, time.Second).Login(context.Background(), " ana@example.com ", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token != "abc" || user.ID != "7" || user.Name != "Ana" {
		t.Fatalf("unexpected login result %+v %q", user, token)
	}
}

func TestLoginRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Invalid user credentials"}`))
	}))
	defer srv.Close()

	if _, _, err := New(srv.URL, time.Second).Login(context.Background(), "a@b.co", "wrong!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginWithoutTokenIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":1,"name":"Ana","email":"a@b.co","token":{}}`))
	}))
	defer srv.Close()

	if _, _, err := New(srv.URL, time.Second).Login(context.Background(), "a@b.co", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	_, _, err := New(base, time.Second).Login(context.Background(), "a@b.co", "secret1")
	var upstream *UpstreamError
	if !errors.As(err, &upstream) || upstream.Status != 0 {
		t.Fatalf("expected transport UpstreamError, got %v", err)
	}
}

func TestAuthenticatedCallWithoutSessionMakesNoRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	if _, err := c.ListEmployees(context.Background()); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}

	expired := session.WithSession(context.Background(), session.Session{
		AccessToken: "tok",
		IssuedAt:    time.Now().Add(-2 * time.Hour),
		MaxAge:      time.Hour,
	})
	if err := c.DeleteEmployee(expired, "42"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for expired session, got %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("expected zero requests, got %d", hits.Load())
	}
}

func TestListEmployeesSendsBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected authorization %q", got)
		}
		_, _ = w.Write([]byte(`[{"id":1,"fullName":"Ana","email":"a@b.co","roleId":1},{"id":"2","fullName":"Bia","email":"b@b.co","roleId":"2"}]`))
	}))
	defer srv.Close()

	list, err := New(srv.URL, time.Second).ListEmployees(authed("tok"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "1" || list[1].RoleID != "2" {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestDeleteEmployeeIssuesSingleDelete(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodDelete || r.URL.Path != "/users/42" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := New(srv.URL, time.Second).DeleteEmployee(authed("tok"), "42"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly one request, got %d", calls.Load())
	}
}

func TestUpdateEmployeeOmitsPassword(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/users/5" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if _, ok := body["password"]; ok {
			t.Errorf("update must not carry a password: %v", body)
		}
		if body["fullName"] != "Ana Souza" {
			t.Errorf("expected trimmed name, got %v", body["fullName"])
		}
	}))
	defer srv.Close()

	f := employee.Form{FullName: " Ana Souza ", Email: "a@b.co", Password: "ignored", RoleID: "1"}
	if err := New(srv.URL, time.Second).UpdateEmployee(authed("tok"), "5", f); err != nil {
		t.Fatalf("update: %v", err)
	}
}

func TestCreateEmployeeValidationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":[{"field":"email","rule":"database.unique","message":"unique validation failure"}]}`))
	}))
	defer srv.Close()

	err := New(srv.URL, time.Second).CreateEmployee(authed("tok"), employee.Form{FullName: "Ana", Email: "a@b.co", Password: "secret1", RoleID: "2"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Fields) != 1 || verr.Fields[0].Rule != "database.unique" {
		t.Fatalf("unexpected fields %+v", verr.Fields)
	}
}

func TestRemoteUnauthorizedMapsToUnauthenticated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	if _, err := New(srv.URL, time.Second).GetEmployee(authed("tok"), "1"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestUpstreamMessageIsExposed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"database offline"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).ListEmployees(authed("tok"))
	if got := UserMessage(err); got != "database offline" {
		t.Fatalf("unexpected user message %q", got)
	}
}
