// Command ragchat is a terminal client for a retrieval-augmented chat
// backend.
//
// Usage:
//
//	ragchat [chat]                     interactive chat
//	ragchat ask <message> [--image g]  one-shot question, answer on stdout
//	ragchat session [reset]            show or replace the session id
//	ragchat history [--format f]       export the current history
//
// Configuration is read from ~/.ragchat/config.toml, created with defaults
// on first run.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ragchat: %v\n", err)
		os.Exit(1)
	}
}
