package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/haowjy/meridian-agent-go"
	"github.com/haowjy/meridian-agent-go/internal/config"
	"github.com/haowjy/meridian-agent-go/internal/logger"
	"github.com/haowjy/meridian-agent-go/providers/claudeagent"
	"github.com/haowjy/meridian-agent-go/providers/claudeagent/claudecli"
	"github.com/haowjy/meridian-agent-go/providers/lorem"
)

const defaultMockModel = "lorem-fast"

func newQueryCmd(a *app) *cobra.Command {
	var (
		mock        bool
		historyFile string
		temperature float64
	)

	cmd := &cobra.Command{
		Use:   "query [prompt]",
		Short: "Run one query and print the translated events",
		Long: `Run one query against the claude CLI worker (or the lorem mock with --mock)
and print the translated events. The prompt is read from stdin when no argument is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("temperature") {
				a.cfg.Agent.Temperature = &temperature
			}
			if mock && !strings.HasPrefix(a.cfg.Agent.Model, "lorem-") {
				log.Debug().Str("model", a.cfg.Agent.Model).Str("mock_model", defaultMockModel).Msg("using mock model")
				a.cfg.Agent.Model = defaultMockModel
			}

			cfg, err := a.validConfig()
			if err != nil {
				return err
			}

			prompt, err := readPrompt(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			convo, err := buildContext(historyFile, prompt, cfg.Agent.SystemPrompt)
			if err != nil {
				return err
			}

			var upstream claudeagent.Option
			if mock {
				upstream = claudeagent.WithQuery(lorem.NewQuery(lorem.WithLogger(logger.Get())))
			} else {
				upstream = claudeagent.WithLoader(claudecli.Loader(cliConfig(cfg)))
			}

			provider, err := newProvider(cfg, upstream)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return stream(ctx, cmd, a, provider, convo)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&mock, "mock", false, "use the lorem mock worker instead of the claude CLI")
	flags.StringVar(&historyFile, "history", "", "JSON file with prior messages ([{\"role\": ..., \"content\": ...}])")
	flags.Float64Var(&temperature, "temperature", 0, "sampling temperature (not supported by the claude CLI)")
	flags.Int("max-tokens", 0, "maximum output tokens (0 = model default)")
	flags.String("system-prompt", "", "system prompt")
	flags.String("cli-path", "claude", "path to the claude CLI")

	_ = a.v.BindPFlag("agent.max_tokens", flags.Lookup("max-tokens"))
	_ = a.v.BindPFlag("agent.system_prompt", flags.Lookup("system-prompt"))
	_ = a.v.BindPFlag("cli.path", flags.Lookup("cli-path"))

	return cmd
}

func readPrompt(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt from stdin: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("empty prompt")
	}
	return prompt, nil
}

// buildContext loads prior messages (if any) and appends the prompt as the
// last user message.
func buildContext(historyFile, prompt, systemPrompt string) (*llmprovider.Context, error) {
	convo := &llmprovider.Context{}

	if historyFile != "" {
		data, err := os.ReadFile(historyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read history: %w", err)
		}
		var history []struct {
			Role    string      `json:"role"`
			Content interface{} `json:"content"`
		}
		if err := json.Unmarshal(data, &history); err != nil {
			return nil, fmt.Errorf("failed to parse history: %w", err)
		}
		for _, msg := range history {
			convo.Messages = append(convo.Messages, llmprovider.Message{Role: msg.Role, Content: msg.Content})
		}
	}

	convo.Messages = append(convo.Messages, llmprovider.Message{Role: llmprovider.RoleUser, Content: prompt})
	if systemPrompt != "" {
		convo.SystemPrompt = &systemPrompt
	}
	return convo, nil
}

func cliConfig(cfg *config.Config) claudecli.Config {
	return claudecli.Config{
		CLIPath:     cfg.CLI.Path,
		WorkDir:     cfg.CLI.WorkDir,
		Env:         cfg.CLI.Env,
		ExtraArgs:   cfg.CLI.ExtraArgs,
		StopTimeout: cfg.CLI.StopTimeout,
		Logger:      logger.Get().With().Str("component", "claudecli").Logger(),
	}
}

func newProvider(cfg *config.Config, upstream claudeagent.Option) (*claudeagent.Provider, error) {
	return claudeagent.NewProvider(
		upstream,
		claudeagent.WithToolPolicy(llmprovider.ExecutionSide(cfg.Agent.ToolPolicy)),
		claudeagent.WithPromptStrategy(claudeagent.PromptStrategy(cfg.Agent.PromptStrategy)),
		claudeagent.WithPermissionMode(claudeagent.PermissionMode(cfg.Agent.PermissionMode)),
		claudeagent.WithLogger(logger.Get().With().Str("provider", llmprovider.ProviderClaudeAgent.String()).Logger()),
	)
}

// stream runs the query and prints its events.
func stream(ctx context.Context, cmd *cobra.Command, a *app, provider *claudeagent.Provider, convo *llmprovider.Context) error {
	cfg := a.cfg
	model := llmprovider.Model{ID: cfg.Agent.Model, Provider: provider.Name()}

	if !provider.SupportsModel(model.ID) && !strings.HasPrefix(model.ID, "lorem-") {
		log.Warn().Str("model", model.ID).Msg("model is not a known Claude model; passing it through")
	}

	events := provider.Stream(ctx, model, convo, cfg.RequestParams())
	_, err := printEvents(cmd.OutOrStdout(), cmd.ErrOrStderr(), events, a.v.GetBool("output.json"))
	return err
}
