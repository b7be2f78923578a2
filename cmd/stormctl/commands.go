package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"github.com/nkiryanov/storm/internal/client"
)

type env struct {
	client      *client.Client
	sessionFile string
	stdin       io.Reader
	stdout      io.Writer
	stderr      io.Writer
}

type command struct {
	name string
	help string
	run  func(ctx context.Context, e *env, args []string) error
}

var commands = []command{
	{"register", "Create account", runRegister},
	{"login", "Sign in", runLogin},
	{"logout", "Sign out and revoke tokens", runLogout},
	{"me", "Show current user profile", runMe},
	{"update-me", "Update profile", runUpdateMe},
	{"verify", "Check the access token is accepted", runVerify},
	{"status", "Show local session state", runStatus},
}

func findCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func commandNames() string {
	names := make([]string, 0, len(commands))
	for _, c := range commands {
		names = append(names, c.name)
	}
	return strings.Join(names, ", ")
}

func commandHelp() string {
	var b strings.Builder
	for _, c := range commands {
		fmt.Fprintf(&b, "  %-10s %s\n", c.name, c.help)
	}
	return b.String()
}

func newFlagSet(e *env, name string, usage string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(e.stderr)
	fs.Usage = func() {
		fmt.Fprintf(e.stderr, "Usage: stormctl %s %s\n", name, usage)
		fs.PrintDefaults()
	}
	return fs
}

func printProfile(w io.Writer, identity client.Identity) error {
	data, err := json.MarshalIndent(identity, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func runRegister(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "register", "--email <email> --username <name> [--full-name <name>]")
	email := fs.String("email", "", "Email")
	username := fs.String("username", "", "Username")
	fullName := fs.String("full-name", "", "Full name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *username == "" {
		return errors.New("--email and --username are required")
	}

	password, err := getPassword(e.stdin, e.stderr, "Password: ")
	if err != nil {
		return err
	}

	params := client.RegisterParams{Email: *email, Username: *username, Password: password}
	if fs.Changed("full-name") {
		params.FullName = fullName
	}

	identity, err := e.client.Register(ctx, params)
	if err != nil {
		return err
	}

	fmt.Fprintf(e.stdout, "Registered %s (%s)\n", identity.Username, identity.Email)
	return nil
}

func runLogin(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "login", "--email <email>")
	email := fs.String("email", "", "Email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("--email is required")
	}

	password, err := getPassword(e.stdin, e.stderr, "Password: ")
	if err != nil {
		return err
	}

	identity, err := e.client.Login(ctx, *email, password)
	if err != nil {
		return err
	}

	fmt.Fprintf(e.stdout, "Logged in as %s\n", identity.Username)
	return nil
}

func runLogout(ctx context.Context, e *env, args []string) error {
	if err := e.client.Logout(ctx); err != nil {
		return err
	}

	fmt.Fprintln(e.stdout, "Logged out")
	return nil
}

func runMe(ctx context.Context, e *env, args []string) error {
	identity, err := e.client.Me(ctx)
	if err != nil {
		return err
	}
	return printProfile(e.stdout, identity)
}

func runUpdateMe(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "update-me", "[--full-name <name>] [--avatar-url <url>]")
	fullName := fs.String("full-name", "", "Full name")
	avatarURL := fs.String("avatar-url", "", "Avatar URL")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var params client.UpdateProfileParams
	if fs.Changed("full-name") {
		params.FullName = fullName
	}
	if fs.Changed("avatar-url") {
		params.AvatarURL = avatarURL
	}
	if params.FullName == nil && params.AvatarURL == nil {
		return errors.New("nothing to update, set --full-name or --avatar-url")
	}

	identity, err := e.client.UpdateMe(ctx, params)
	if err != nil {
		return err
	}
	return printProfile(e.stdout, identity)
}

func runVerify(ctx context.Context, e *env, args []string) error {
	if err := e.client.VerifyToken(ctx); err != nil {
		return err
	}

	fmt.Fprintln(e.stdout, "Token is valid")
	return nil
}

func runStatus(ctx context.Context, e *env, args []string) error {
	session := e.client.Session()
	if !e.client.Authenticated() || session.User == nil {
		fmt.Fprintf(e.stdout, "Not logged in (session file %s)\n", e.sessionFile)
		return nil
	}

	fmt.Fprintf(e.stdout, "Logged in as %s <%s> (session file %s)\n", session.User.Username, session.User.Email, e.sessionFile)
	return nil
}
