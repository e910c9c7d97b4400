// Command scottystack manages a login session against the app backend from
// the terminal, and can run a local stand-in backend for development.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scottscharl/scottystack"
	"github.com/scottscharl/scottystack/internal/config"
	"github.com/scottscharl/scottystack/internal/devserver"
	"github.com/scottscharl/scottystack/internal/logutil"
	"github.com/scottscharl/scottystack/internal/sessionstore"
	"github.com/scottscharl/scottystack/pkg/models"
)

const usage = `usage: scottystack [-config file] [-env file] <command> [flags]

commands:
  login      -email E -password P     log in and save the session
  register   -email E -password P     create an account and log in
  logout                              forget the saved session
  whoami                              print the saved session
  refresh                             renew the saved token now
  watch                               keep the session fresh until interrupted
  devserver  [-addr host:port]        run a local auth backend
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// env is what every command gets to work with.
type env struct {
	cfg    *config.Config
	log    *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("scottystack", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := global.String("config", "", "config file (yaml, toml or json)")
	envPath := global.String("env", ".env", "dotenv file holding VITE_PB_URL")
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	e := &env{
		cfg:    cfg,
		log:    logutil.NewLogger(logutil.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File}),
		stdout: stdout,
		stderr: stderr,
	}

	cmd, rest := global.Arg(0), global.Args()[1:]
	var cmdErr error
	switch cmd {
	case "login":
		cmdErr = e.withClient(ctx, func(c *scottystack.Client) error { return e.login(ctx, c, rest) })
	case "register":
		cmdErr = e.withClient(ctx, func(c *scottystack.Client) error { return e.register(ctx, c, rest) })
	case "logout":
		cmdErr = e.withClient(ctx, func(c *scottystack.Client) error {
			c.Logout()
			fmt.Fprintln(stdout, "Logged out.")
			return nil
		})
	case "whoami":
		cmdErr = e.withClient(ctx, func(c *scottystack.Client) error { return e.whoami(c) })
	case "refresh":
		cmdErr = e.withClient(ctx, func(c *scottystack.Client) error {
			if err := c.Refresh(ctx); err != nil {
				return err
			}
			return e.whoami(c)
		})
	case "watch":
		cmdErr = e.withClient(ctx, func(c *scottystack.Client) error { return e.watch(ctx, c) })
	case "devserver":
		cmdErr = e.devserver(ctx, rest)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		global.Usage()
		return 2
	}

	if cmdErr != nil {
		if errors.Is(cmdErr, flag.ErrHelp) {
			return 2
		}
		fmt.Fprintln(stderr, "Error:", userMessage(cmdErr))
		e.log.Debug("command failed", "command", cmd, "err", cmdErr)
		return 1
	}
	return 0
}

// userMessage prefers the friendly text of an AuthError.
func userMessage(err error) string {
	var ae *models.AuthError
	if errors.As(err, &ae) {
		return ae.Message
	}
	return err.Error()
}

// withClient opens the session store, restores the saved session, runs fn
// and saves whatever session fn left behind.
func (e *env) withClient(ctx context.Context, fn func(c *scottystack.Client) error) error {
	store, err := sessionstore.Open(ctx, e.cfg.Store.SessionStore(), e.log)
	if err != nil {
		return err
	}

	c, err := scottystack.New(
		scottystack.WithLogger(e.log),
		scottystack.WithBaseURL(e.cfg.BaseURL),
		scottystack.WithTimeout(e.cfg.RequestTimeout),
		scottystack.WithPollInterval(e.cfg.Scheduler.PollInterval),
		scottystack.WithRefreshWindow(e.cfg.Scheduler.RefreshWindow),
		scottystack.WithSessionStore(store),
	)
	if err != nil {
		store.Close()
		return err
	}
	c.Restore(ctx)

	runErr := fn(c)

	// the command ctx may already be cancelled by a signal
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Close(closeCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func credentialFlags(name string, args []string, stderr io.Writer) (email, password string, err error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&email, "email", "", "account email")
	fs.StringVar(&password, "password", os.Getenv("SCOTTYSTACK_PASSWORD"), "account password (or SCOTTYSTACK_PASSWORD)")
	err = fs.Parse(args)
	return email, password, err
}

func (e *env) login(ctx context.Context, c *scottystack.Client, args []string) error {
	email, password, err := credentialFlags("login", args, e.stderr)
	if err != nil {
		return err
	}
	if err := models.ValidateLogin(email, password); err != nil {
		return err
	}

	id, err := c.Login(ctx, email, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "Logged in as %s.\n", id.Email)
	return nil
}

func (e *env) register(ctx context.Context, c *scottystack.Client, args []string) error {
	email, password, err := credentialFlags("register", args, e.stderr)
	if err != nil {
		return err
	}
	// the terminal has no confirmation field, so the password confirms itself
	if err := models.ValidateRegistration(email, password, password); err != nil {
		return err
	}

	id, err := c.Register(ctx, email, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "Account created. Logged in as %s.\n", id.Email)
	return nil
}

func (e *env) whoami(c *scottystack.Client) error {
	sess := c.Session()
	if sess.IsEmpty() {
		fmt.Fprintln(e.stdout, "Not logged in.")
		return nil
	}
	fmt.Fprintf(e.stdout, "%s (id %s, verified %t)\n", sess.Identity.Email, sess.Identity.ID, sess.Identity.Verified)
	fmt.Fprintf(e.stdout, "token expires %s (in %s)\n",
		sess.ExpiresAt.Local().Format(time.RFC1123), sess.Remaining(time.Now()).Round(time.Second))
	return nil
}

func (e *env) watch(ctx context.Context, c *scottystack.Client) error {
	if c.Session().IsEmpty() {
		return errors.New("not logged in")
	}

	changes := make(chan models.Session, 8)
	unsubscribe := c.Subscribe(func(s models.Session) {
		select {
		case changes <- s:
		default:
		}
	})
	defer unsubscribe()

	fmt.Fprintf(e.stdout, "Watching session for %s. Press Ctrl+C to stop.\n", c.Session().Identity.Email)
	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-changes:
			if s.IsEmpty() {
				fmt.Fprintln(e.stdout, "Session ended. Please log in again.")
				return nil
			}
			fmt.Fprintf(e.stdout, "%s token renewed, expires %s\n",
				time.Now().Format(time.TimeOnly), s.ExpiresAt.Local().Format(time.RFC1123))
			if err := c.Persist(ctx); err != nil {
				e.log.Warn("failed to save renewed session", "err", err)
			}
		}
	}
}

func (e *env) devserver(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("devserver", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	addr := fs.String("addr", e.cfg.DevServer.Addr, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	srv := devserver.New(
		devserver.WithLogger(logutil.WithFields(e.log, "component", "devserver")),
		devserver.WithSecret(e.cfg.DevServer.Secret),
		devserver.WithTokenTTL(e.cfg.DevServer.TokenTTL),
	)
	fmt.Fprintf(e.stdout, "Dev backend on http://%s (Ctrl+C to stop)\n", *addr)
	return srv.ListenAndServe(ctx, *addr)
}
