package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haowjy/meridian-agent-go"
	"github.com/haowjy/meridian-agent-go/providers/claudeagent"
)

func newReplayCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <transcript.ndjson>",
		Short: "Translate a recorded stream-json transcript",
		Long: `Translate a transcript recorded from 'claude --print --output-format stream-json --verbose'
and print the resulting events. No worker is started.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.validConfig()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read transcript: %w", err)
			}

			provider, err := newProvider(cfg, claudeagent.WithQuery(claudeagent.ReplayQuery(data)))
			if err != nil {
				return err
			}

			convo := &llmprovider.Context{Messages: []llmprovider.Message{
				{Role: llmprovider.RoleUser, Content: "replay " + args[0]},
			}}
			return stream(cmd.Context(), cmd, a, provider, convo)
		},
	}
}
