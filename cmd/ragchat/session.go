package main

import (
	"fmt"

	"github.com/fwojciec/ragchat"
	"github.com/spf13/cobra"
)

func newSessionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Print the current session id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSessions(func(sessions *ragchat.SessionStore) error {
				session, err := sessions.GetOrCreate(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, session.ID)
				return nil
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Discard the current history and start a new session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSessions(func(sessions *ragchat.SessionStore) error {
				session, err := sessions.Reset(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, session.ID)
				return nil
			})
		},
	})

	return cmd
}
