package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"unibro/pkg/apierr"
	"unibro/pkg/kv"
	"unibro/pkg/notify"
)

type fakeBackend struct {
	mu      sync.Mutex
	deleted []string
	srv     *httptest.Server
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var in struct{ Email, Password string }
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in.Password != "Aa1!aaaa" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid email or password"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "token": "t1", "user": map[string]any{"id": 1, "fullName": "Ada", "email": in.Email, "role": "admin"}})
	})
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	mux.HandleFunc("GET /api/resources/{id}", func(w http.ResponseWriter, r *http.Request) {
		status := "approved"
		if r.PathValue("id") == "2" {
			status = "rejected"
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"id": r.PathValue("id"), "title": "Lab Report", "status": status}})
	})
	mux.HandleFunc("DELETE /api/resources/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.deleted = append(b.deleted, r.PathValue("id"))
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	mux.HandleFunc("GET /api/resources/admin/all", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": []map[string]any{{"id": 1, "status": "pending"}, {"id": 2, "status": "approved"}}})
	})
	mux.HandleFunc("GET /api/resources/pending", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": []map[string]any{{"id": 1, "status": "pending"}}})
	})
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func writeCLIConfig(t *testing.T, apiURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "unibro.yaml")
	content := "apiBaseURL: \"" + apiURL + "\"\nlogLevel: error\nsession:\n  backend: memory\nbroadcast:\n  driver: none\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

type harness struct {
	t           *testing.T
	config      string
	store       kv.Store
	broadcaster notify.Broadcaster
}

type closeCounter struct {
	mu     sync.Mutex
	closed int
}

func (c *closeCounter) Broadcast(context.Context, string) error { return nil }

func (c *closeCounter) Listen(context.Context, func(string)) error { return nil }

func (c *closeCounter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *closeCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (h harness) run(stdin string, args ...string) (string, error) {
	var out, errOut bytes.Buffer
	err := Execute(context.Background(), Options{
		Stdin:       strings.NewReader(stdin),
		Stdout:      &out,
		Stderr:      &errOut,
		KV:          h.store,
		Broadcaster: h.broadcaster,
		Args:        append([]string{"--config", h.config}, args...),
	})
	return out.String(), err
}

func newHarness(t *testing.T, b *fakeBackend) harness {
	return harness{t: t, config: writeCLIConfig(t, b.srv.URL), store: kv.NewMemoryStore()}
}

func TestLoginWhoamiLogout(t *testing.T) {
	h := newHarness(t, newFakeBackend(t))

	out, err := h.run("Aa1!aaaa\n", "login", "--email", "ada@x.com")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(out, "Logged in as ada@x.com") {
		t.Fatalf("unexpected login output %q", out)
	}

	out, err = h.run("", "whoami", "--json")
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	var who struct {
		User struct {
			Email string `json:"email"`
		} `json:"user"`
	}
	if err := json.Unmarshal([]byte(out), &who); err != nil || who.User.Email != "ada@x.com" {
		t.Fatalf("unexpected whoami output %q: %v", out, err)
	}

	if _, err := h.run("", "logout"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := h.run("", "whoami"); !errors.Is(err, apierr.ErrAuthRequired) {
		t.Fatalf("expected logged out, got %v", err)
	}
}

func TestLoginFailureSurfacesMessage(t *testing.T) {
	h := newHarness(t, newFakeBackend(t))
	_, err := h.run("", "login", "--email", "ada@x.com", "--password", "nope")
	if err == nil || err.Error() != "Invalid email or password" {
		t.Fatalf("expected backend message, got %v", err)
	}
}

func TestAppClosedWhenCommandFails(t *testing.T) {
	h := newHarness(t, newFakeBackend(t))
	bc := &closeCounter{}
	h.broadcaster = bc
	if _, err := h.run("", "login", "--email", "ada@x.com", "--password", "nope"); err == nil {
		t.Fatalf("expected login failure")
	}
	if bc.count() != 1 {
		t.Fatalf("expected app closed once after failure, got %d", bc.count())
	}
	if _, err := h.run("", "login", "--email", "ada@x.com", "--password", "Aa1!aaaa"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if bc.count() != 2 {
		t.Fatalf("expected app closed after success, got %d", bc.count())
	}
}

func TestDeleteConfirmation(t *testing.T) {
	b := newFakeBackend(t)
	h := newHarness(t, b)
	if _, err := h.run("", "login", "--email", "ada@x.com", "--password", "Aa1!aaaa"); err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := h.run("lab report\n", "resources", "delete", "1"); !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("expected confirmation mismatch, got %v", err)
	}
	if len(b.deleted) != 0 {
		t.Fatalf("delete must not fire on mismatch")
	}
	if _, err := h.run("Lab Report\n", "resources", "delete", "1"); err != nil {
		t.Fatalf("delete approved: %v", err)
	}
	if _, err := h.run("", "resources", "delete", "2"); err != nil {
		t.Fatalf("delete rejected: %v", err)
	}
	if strings.Join(b.deleted, ",") != "1,2" {
		t.Fatalf("unexpected deletes %v", b.deleted)
	}
}

func TestAdminDashboard(t *testing.T) {
	h := newHarness(t, newFakeBackend(t))
	if _, err := h.run("", "login", "--email", "ada@x.com", "--password", "Aa1!aaaa"); err != nil {
		t.Fatalf("login: %v", err)
	}
	out, err := h.run("", "admin", "all")
	if err != nil {
		t.Fatalf("admin all: %v", err)
	}
	if !strings.Contains(out, "Total 2  Pending 1  Approved 1  Rejected 0") || !strings.Contains(out, "Awaiting review: 1") {
		t.Fatalf("unexpected dashboard %q", out)
	}
}

func TestRejectWithoutReasonFailsLocally(t *testing.T) {
	h := newHarness(t, newFakeBackend(t))
	if _, err := h.run("", "login", "--email", "ada@x.com", "--password", "Aa1!aaaa"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := h.run("", "admin", "reject", "1"); !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUploadWithoutBlobConfig(t *testing.T) {
	h := newHarness(t, newFakeBackend(t))
	file := filepath.Join(t.TempDir(), "a.pdf")
	if err := os.WriteFile(file, []byte("%PDF-1.4\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := h.run("", "resources", "upload", file, "--title", "A")
	if err == nil || !strings.Contains(err.Error(), "blob storage is not configured") {
		t.Fatalf("expected blob config error, got %v", err)
	}
}
