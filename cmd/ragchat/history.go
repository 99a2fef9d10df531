package main

import (
	"bytes"
	"fmt"

	"github.com/fwojciec/ragchat"
	ragjson "github.com/fwojciec/ragchat/json"
	ragyaml "github.com/fwojciec/ragchat/yaml"
	"github.com/spf13/cobra"
)

func newHistoryCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Export the history of the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			codec, err := exportCodec(format)
			if err != nil {
				return err
			}
			return a.withSessions(func(sessions *ragchat.SessionStore) error {
				session, err := sessions.GetOrCreate(cmd.Context())
				if err != nil {
					return err
				}
				msgs, err := sessions.LoadHistory(cmd.Context(), session.ID)
				if err != nil {
					return err
				}
				data, err := codec.MarshalHistory(session.ID, msgs)
				if err != nil {
					return err
				}
				if !bytes.HasSuffix(data, []byte("\n")) {
					data = append(data, '\n')
				}
				_, err = a.stdout.Write(data)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or yaml")

	return cmd
}

func exportCodec(format string) (ragchat.HistoryCodec, error) {
	switch format {
	case "json":
		return ragjson.Codec{Indent: "  "}, nil
	case "yaml":
		return ragyaml.Codec{}, nil
	default:
		return nil, fmt.Errorf("unknown format %q: must be \"json\" or \"yaml\"", format)
	}
}
