package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/nkiryanov/storm/internal/client"
	"github.com/nkiryanov/storm/internal/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Getenv, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", describe(err))
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, getenv func(string) string, stdin io.Reader, stdout io.Writer, stderr io.Writer) error {
	cfg := NewConfig()
	cfg.LoadEnv(getenv)

	rest, err := cfg.ParseFlags(args, stderr)
	switch {
	case errors.Is(err, pflag.ErrHelp):
		return nil
	case err != nil:
		return err
	case len(rest) == 0:
		return fmt.Errorf("command required, one of: %s", commandNames())
	}

	cmd, ok := findCommand(rest[0])
	if !ok {
		return fmt.Errorf("unknown command %q, expected one of: %s", rest[0], commandNames())
	}

	l := logger.NewNoOpLogger()
	if cfg.Verbose {
		l, err = logger.New(logger.EnvDevelopment, logger.LevelDebug)
		if err != nil {
			return err
		}
	}

	c, err := client.New(client.Config{
		BaseURL: cfg.Server,
		Timeout: cfg.Timeout,
		Logger:  l,
		OnSessionExpired: func() {
			fmt.Fprintln(stderr, "Session expired, please sign in again")
		},
	}, client.NewFileStore(cfg.SessionFile))
	if err != nil {
		return err
	}

	return cmd.run(ctx, &env{
		client:      c,
		sessionFile: cfg.SessionFile,
		stdin:       stdin,
		stdout:      stdout,
		stderr:      stderr,
	}, rest[1:])
}

// Human readable error, with validation details if any
func describe(err error) string {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || len(apiErr.Fields) == 0 {
		return err.Error()
	}

	fields := make([]string, 0, len(apiErr.Fields))
	for name, msg := range apiErr.Fields {
		fields = append(fields, fmt.Sprintf("  %s: %s", name, msg))
	}
	sort.Strings(fields)
	return apiErr.Message + "\n" + strings.Join(fields, "\n")
}
