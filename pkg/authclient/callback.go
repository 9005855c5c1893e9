package authclient

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"strings"
	"time"

	"unibro/pkg/domain"
)

const callbackPage = `<!doctype html><html><body><p>%s</p><p>You can close this window.</p></body></html>`

// CallbackHandler serves the OAuth return route. It completes the sign-in
// with the ?token= query parameter and reports the outcome to done.
func (c *Client) CallbackHandler(done func(domain.User, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.URL.Query().Get("token"))
		user, err := c.CompleteOAuthCallback(r.Context(), token)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, callbackPage, html.EscapeString("Sign-in failed: "+err.Error()))
		} else {
			fmt.Fprintf(w, callbackPage, html.EscapeString("Signed in as "+user.Email))
		}
		if done != nil {
			done(user, err)
		}
	})
}

// WaitForCallback listens on addr for a single OAuth callback at path and
// returns the signed-in user. It stops when ctx ends.
func (c *Client) WaitForCallback(ctx context.Context, addr, path string) (domain.User, error) {
	if path == "" {
		path = "/auth/callback"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return domain.User{}, fmt.Errorf("listen for oauth callback: %w", err)
	}
	type outcome struct {
		user domain.User
		err  error
	}
	results := make(chan outcome, 1)
	mux := http.NewServeMux()
	mux.Handle(path, c.CallbackHandler(func(u domain.User, err error) {
		select {
		case results <- outcome{u, err}:
		default:
		}
	}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case results <- outcome{err: err}:
			default:
			}
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	select {
	case <-ctx.Done():
		return domain.User{}, ctx.Err()
	case res := <-results:
		return res.user, res.err
	}
}
