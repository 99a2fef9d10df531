package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fwojciec/ragchat"
	bt "github.com/fwojciec/ragchat/bubbletea"
	"github.com/fwojciec/ragchat/fs"
	"github.com/spf13/cobra"
)

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat (default)",
		Args:  cobra.NoArgs,
		RunE:  a.runChat,
	}
}

func (a *app) runChat(cmd *cobra.Command, _ []string) error {
	// The TUI owns the terminal, so logs go to a file in the data directory.
	if err := os.MkdirAll(a.cfg.DataDir, 0o755); err != nil {
		return err
	}
	logFile, err := os.OpenFile(filepath.Join(a.cfg.DataDir, "ragchat.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	a.logger = newLogger(logFile, a.verbose)

	ctx := cmd.Context()
	return a.withConversation(ctx, func(conv *ragchat.Conversation) error {
		model := bt.New(conv, a.cfg.Settings, ragchat.DefaultTheme(), bt.WithImageLoader(fs.LoadImages))
		if err := bt.Run(ctx, model); err != nil {
			return fmt.Errorf("TUI: %w", err)
		}
		return nil
	})
}
