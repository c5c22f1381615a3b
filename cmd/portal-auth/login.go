package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bobmcallan/employee-portal/internal/app"
	"github.com/bobmcallan/employee-portal/internal/interfaces"
)

// loginTimeout bounds how long login waits for the browser.
const loginTimeout = 5 * time.Minute

func runLogin(ctx context.Context, a *app.App, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	scope := fs.String("scope", "", "space separated scopes (default from config)")
	noPKCE := fs.Bool("no-pkce", false, "disable PKCE")
	timeout := fs.Duration("timeout", loginTimeout, "how long to wait for the browser")
	if err := fs.Parse(args); err != nil {
		return err
	}

	redirect, err := loopbackRedirect(a.Config.Keycloak.RedirectURI)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", redirect.Host, err)
	}

	authURL, err := a.AccountService.BeginLogin(strings.Fields(*scope), !*noPKCE)
	if err != nil {
		ln.Close()
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	result, err := awaitCallback(ctx, ln, redirect.Path, a.AccountService, authURL, stdout)
	if err != nil {
		if a.AccountService.CancelLogin() {
			a.Logger.Debug().Msg("Abandoned authorization in progress")
		}
		return err
	}

	fmt.Fprintf(stdout, "Signed in as %s (session valid until %s)\n",
		result.User.Username, result.Tokens.RefreshExpiresAt().Local().Format(time.RFC1123))
	return nil
}

// loopbackRedirect checks that the redirect URI can be served locally.
func loopbackRedirect(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect uri: %w", err)
	}
	if u.Scheme != "http" {
		return nil, fmt.Errorf("redirect uri %q is not an http loopback address", raw)
	}
	switch u.Hostname() {
	case "127.0.0.1", "localhost", "::1":
	default:
		return nil, fmt.Errorf("redirect uri %q is not an http loopback address", raw)
	}
	if u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), "80")
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u, nil
}

type callbackOutcome struct {
	result *interfaces.LoginResult
	err    error
}

// awaitCallback serves the redirect path on ln until one callback has been
// handled or ctx is done.
func awaitCallback(ctx context.Context, ln net.Listener, path string, accounts interfaces.AccountService, authURL string, stdout io.Writer) (*interfaces.LoginResult, error) {
	done := make(chan callbackOutcome, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		result, err := accounts.CompleteLogin(r.Context(), r.URL.String())
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, "Sign-in failed: %v\n", err)
		} else {
			fmt.Fprintln(w, "Signed in. You can close this window.")
		}
		select {
		case done <- callbackOutcome{result: result, err: err}:
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go srv.Serve(ln)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}()

	fmt.Fprintln(stdout, "Open this URL in your browser to sign in:")
	fmt.Fprintln(stdout, authURL)

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.New("timed out waiting for the browser")
		}
		return nil, ctx.Err()
	}
}
