package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/nkiryanov/storm/internal/client"
)

const defaultServer = "http://localhost:8000"

type Config struct {
	// Server address
	Server string

	// File the session is kept in between runs
	SessionFile string

	Timeout time.Duration

	Verbose bool
}

func NewConfig() *Config {
	return &Config{
		Server:      defaultServer,
		SessionFile: defaultSessionFile(),
		Timeout:     client.DefaultTimeout,
	}
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".storm", "session.json")
	}
	return filepath.Join(dir, "storm", "session.json")
}

func (c *Config) LoadEnv(getenv func(string) string) {
	if v := getenv("STORM_SERVER"); v != "" {
		c.Server = v
	}
	if v := getenv("STORM_SESSION_FILE"); v != "" {
		c.SessionFile = v
	}
}

// ParseFlags parses global flags and returns the rest (command and its args)
func (c *Config) ParseFlags(args []string, out io.Writer) ([]string, error) {
	fs := pflag.NewFlagSet("stormctl", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprintf(out, "Usage: stormctl [flags] <command> [command flags]\n\nCommands:\n%s\nFlags:\n", commandHelp())
		fs.PrintDefaults()
	}

	fs.StringVar(&c.Server, "server", c.Server, "Server address")
	fs.StringVar(&c.SessionFile, "session-file", c.SessionFile, "File to keep the session in")
	fs.DurationVar(&c.Timeout, "timeout", c.Timeout, "Request timeout")
	fs.BoolVarP(&c.Verbose, "verbose", "v", c.Verbose, "Log client activity to stderr")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return fs.Args(), nil
}
