package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fwojciec/ragchat"
	"github.com/fwojciec/ragchat/fs"
	"github.com/spf13/cobra"
)

func newAskCmd(a *app) *cobra.Command {
	var images []string

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Ask a single question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var attached []ragchat.Image
			if len(images) > 0 {
				var err error
				attached, err = fs.LoadImages(images...)
				if err != nil {
					return err
				}
			}
			input := strings.Join(args, " ")

			return a.withConversation(cmd.Context(), func(conv *ragchat.Conversation) error {
				var out streamSanitizer
				err := conv.Send(cmd.Context(), input, a.cfg.Settings, attached, func(c ragchat.StreamChunk) {
					fmt.Fprint(a.stdout, out.Write(c.Content))
				})
				fmt.Fprintln(a.stdout, out.Flush())
				if err != nil {
					return err
				}
				msgs := conv.Messages()
				printAnswerFooter(a.stdout, msgs[len(msgs)-1])
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVarP(&images, "image", "i", nil, "attach images matching a glob pattern (repeatable)")

	return cmd
}

// printAnswerFooter writes the sources and token count of an answer.
func printAnswerFooter(w io.Writer, m ragchat.Message) {
	if len(m.Sources) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for i, src := range m.Sources {
			title := sanitize(src.Title())
			if title == "" {
				title = "untitled"
			}
			if score, ok := src.Score(); ok {
				fmt.Fprintf(w, "  [%d] %s (score %.2f)\n", i+1, title, score)
			} else {
				fmt.Fprintf(w, "  [%d] %s\n", i+1, title)
			}
		}
	}
	if m.Confidence != nil {
		fmt.Fprintf(w, "\n%d tokens\n", int(*m.Confidence))
	}
}
