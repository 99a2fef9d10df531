package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/fwojciec/ragchat"
	"github.com/fwojciec/ragchat/badger"
	raghttp "github.com/fwojciec/ragchat/http"
	ragjson "github.com/fwojciec/ragchat/json"
	"github.com/fwojciec/ragchat/sqlite"
	"github.com/fwojciec/ragchat/toml"
	"github.com/spf13/cobra"
)

// app holds what every subcommand needs. It is filled in by the root
// command's PersistentPreRunE.
type app struct {
	configPath string
	verbose    bool

	stdout io.Writer
	stderr io.Writer

	cfg    toml.Config
	logger *slog.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	rootCmd := &cobra.Command{
		Use:           "ragchat",
		Short:         "Chat with a retrieval-augmented generation backend",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		RunE: a.runChat,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to config file (default ~/.ragchat/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newChatCmd(a))
	rootCmd.AddCommand(newAskCmd(a))
	rootCmd.AddCommand(newSessionCmd(a))
	rootCmd.AddCommand(newHistoryCmd(a))

	return rootCmd
}

func (a *app) init() error {
	path := a.configPath
	if path == "" {
		path = toml.DefaultPath()
	}
	cfg, err := toml.LoadOrCreate(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg
	a.logger = newLogger(a.stderr, a.verbose)
	a.logger.Debug("config loaded", "path", path, "endpoint", cfg.Endpoint, "store", cfg.Store)
	return nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// closingStore is a ragchat.Store that holds resources until closed.
type closingStore interface {
	ragchat.Store
	Close() error
}

func openStore(cfg toml.Config, logger *slog.Logger) (closingStore, error) {
	switch cfg.Store {
	case toml.StoreSQLite:
		return sqlite.Open(filepath.Join(cfg.DataDir, "ragchat.db"))
	case toml.StoreBadger:
		bc := badger.DefaultConfig()
		bc.Path = filepath.Join(cfg.DataDir, "badger")
		bc.Logger = logger.With("component", "badger")
		return badger.Open(bc)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func newClient(cfg toml.Config, logger *slog.Logger) *raghttp.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.Timeout()
	return raghttp.New(cfg.Endpoint,
		raghttp.WithHTTPClient(&http.Client{Transport: transport}),
		raghttp.WithChatPath(cfg.ChatPath),
		raghttp.WithLogger(logger.With("component", "http")),
	)
}

// withSessions opens the store, runs fn with a SessionStore over it and
// closes the store.
func (a *app) withSessions(fn func(*ragchat.SessionStore) error) (err error) {
	store, err := openStore(a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	sessions := ragchat.NewSessionStore(store, ragjson.Codec{},
		ragchat.WithSessionLogger(a.logger.With("component", "session")))
	return fn(sessions)
}

// withConversation is withSessions plus a Conversation over the active
// session.
func (a *app) withConversation(ctx context.Context, fn func(*ragchat.Conversation) error) error {
	return a.withSessions(func(sessions *ragchat.SessionStore) error {
		conv, err := ragchat.NewConversation(ctx, sessions, newClient(a.cfg, a.logger),
			ragchat.WithLogger(a.logger.With("component", "conversation")))
		if err != nil {
			return err
		}
		return fn(conv)
	})
}
