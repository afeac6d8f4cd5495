package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/secstore/secstore"
	"github.com/secstore/secstore/internal/backend"
	"github.com/secstore/secstore/internal/backend/local"
	"github.com/secstore/secstore/internal/backend/retry"
	"github.com/secstore/secstore/internal/backend/s3"
	"github.com/secstore/secstore/internal/debug"
	"github.com/secstore/secstore/internal/errors"
)

var version = "0.1.0-dev (compiled manually)"

// GlobalOptions holds all global options for secstore.
type GlobalOptions struct {
	Store        string
	PasswordFile string
	Quiet        bool
	NoCache      bool

	password string
}

var globalOptions = GlobalOptions{}

func (gopts *GlobalOptions) AddFlags(f *pflag.FlagSet) {
	f.StringVarP(&gopts.Store, "store", "s", os.Getenv("SECSTORE_STORE"), "store location (default: $SECSTORE_STORE)")
	f.StringVarP(&gopts.PasswordFile, "password-file", "p", os.Getenv("SECSTORE_PASSWORD_FILE"), "read the store password from this file (default: $SECSTORE_PASSWORD_FILE)")
	f.BoolVarP(&gopts.Quiet, "quiet", "q", false, "do not output comprehensive progress report")
	f.BoolVar(&gopts.NoCache, "no-cache", false, "do not keep decrypted blocks in memory")
}

// Printf writes the message to stdout unless quiet was passed.
func Printf(format string, args ...interface{}) {
	if globalOptions.Quiet {
		return
	}
	fmt.Printf(format, args...)
}

// Warnf writes the message to stderr.
func Warnf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
}

// resolvePassword returns the password for the store, in this order: the
// password file, the environment variable SECSTORE_PASSWORD, an interactive
// prompt.
func resolvePassword(gopts *GlobalOptions, prompt string) (string, error) {
	if gopts.password != "" {
		return gopts.password, nil
	}

	if gopts.PasswordFile != "" {
		buf, err := os.ReadFile(gopts.PasswordFile)
		if err != nil {
			return "", errors.Wrap(err, "ReadFile")
		}
		return strings.TrimSpace(string(buf)), nil
	}

	if pw, ok := os.LookupEnv("SECSTORE_PASSWORD"); ok {
		return pw, nil
	}

	return readPassword(prompt)
}

// readPassword reads the password from the terminal without echoing it.
func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.Fatal("stdin is not a terminal, use --password-file or $SECSTORE_PASSWORD")
	}

	fmt.Fprint(os.Stderr, prompt)
	buf, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", errors.Wrap(err, "ReadPassword")
	}

	if len(buf) == 0 {
		return "", errors.Fatal("an empty password is not allowed")
	}

	return string(buf), nil
}

// readPasswordTwice prompts for a new password and its confirmation.
func readPasswordTwice(prompt1, prompt2 string) (string, error) {
	if pw, ok := os.LookupEnv("SECSTORE_PASSWORD"); ok {
		return pw, nil
	}
	if globalOptions.PasswordFile != "" {
		return resolvePassword(&globalOptions, prompt1)
	}

	pw1, err := readPassword(prompt1)
	if err != nil {
		return "", err
	}

	pw2, err := readPassword(prompt2)
	if err != nil {
		return "", err
	}

	if pw1 != pw2 {
		return "", errors.Fatal("passwords do not match")
	}

	return pw1, nil
}

// openBackend opens an existing backend at the given location.
func openBackend(ctx context.Context, location string) (backend.Backend, error) {
	be, err := parseLocation(ctx, location, false)
	if err != nil {
		return nil, err
	}

	return wrapRetry(be), nil
}

// createBackend creates a new backend at the given location.
func createBackend(ctx context.Context, location string) (backend.Backend, error) {
	be, err := parseLocation(ctx, location, true)
	if err != nil {
		return nil, err
	}

	return wrapRetry(be), nil
}

func parseLocation(ctx context.Context, location string, create bool) (backend.Backend, error) {
	if location == "" {
		return nil, errors.Fatal("Please specify a store location (-s or $SECSTORE_STORE)")
	}

	debug.Log("parsing location %v", location)

	if strings.HasPrefix(location, "s3:") {
		cfg, err := s3.ParseConfig(location)
		if err != nil {
			return nil, err
		}
		cfg.ApplyEnvironment()

		if create {
			return s3.Create(ctx, cfg, http.DefaultTransport)
		}
		return s3.Open(ctx, cfg, http.DefaultTransport)
	}

	cfg, err := local.ParseConfig(location)
	if err != nil {
		return nil, err
	}

	if create {
		return local.Create(ctx, cfg)
	}
	return local.Open(ctx, cfg)
}

func wrapRetry(be backend.Backend) backend.Backend {
	return retry.New(be, 15*time.Minute, func(msg string, err error, d time.Duration) {
		Warnf("%v returned error, retrying after %v: %v\n", msg, d, err)
	})
}

func storeOptions(gopts *GlobalOptions) secstore.Options {
	opts := secstore.Options{}
	if gopts.NoCache {
		opts.CacheSize = -1
	}
	return opts
}

// OpenStore opens the store specified by the global options.
func OpenStore(ctx context.Context, gopts *GlobalOptions) (*secstore.Store, error) {
	password, err := resolvePassword(gopts, "enter password for store: ")
	if err != nil {
		return nil, err
	}
	gopts.password = password

	be, err := openBackend(ctx, gopts.Store)
	if err != nil {
		return nil, err
	}

	s, err := secstore.Open(ctx, be, password, storeOptions(gopts))
	if err != nil {
		return nil, err
	}

	debug.Log("opened store %v", s.Config().ID.Str())
	return s, nil
}
