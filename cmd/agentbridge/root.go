package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/haowjy/meridian-agent-go/internal/config"
	"github.com/haowjy/meridian-agent-go/internal/logger"
)

// app holds the state shared by the commands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	envFile string
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "agentbridge",
		Short: "agentbridge - Claude Agent stream translator",
		Long: `agentbridge runs one-shot queries against the Claude Agent worker (the claude CLI
in stream-json mode) and prints the translated assistant event stream.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (default: ./agentbridge.yaml)")
	flags.StringVar(&a.envFile, "env-file", "", "dotenv file to load (default: ./.env if present)")
	flags.StringP("model", "m", "claude-sonnet-4-5", "model ID")
	flags.String("tool-policy", "server", "where tools run (server/client)")
	flags.String("permission-mode", "bypassPermissions", "worker permission mode (default/acceptEdits/bypassPermissions/plan)")
	flags.Bool("json", false, "print events as JSON lines")
	flags.String("log-level", "warn", "log level (trace/debug/info/warn/error)")
	flags.String("log-format", "console", "log format (json/console)")

	_ = a.v.BindPFlag("agent.model", flags.Lookup("model"))
	_ = a.v.BindPFlag("agent.tool_policy", flags.Lookup("tool-policy"))
	_ = a.v.BindPFlag("agent.permission_mode", flags.Lookup("permission-mode"))
	_ = a.v.BindPFlag("output.json", flags.Lookup("json"))
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("log.format", flags.Lookup("log-format"))

	rootCmd.AddCommand(newQueryCmd(a), newReplayCmd(a), newModelsCmd(a))

	return rootCmd
}

func (a *app) initConfig() error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	} else {
		// Optional; a missing .env is fine.
		_ = godotenv.Load()
	}

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.SetConfigName("agentbridge")
		a.v.SetConfigType("yaml")
		a.v.AddConfigPath(".")
		a.v.AddConfigPath("$HOME/.agentbridge")
	}

	a.v.SetEnvPrefix("AGENTBRIDGE")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()
	_ = a.v.BindEnv("agent.temperature")

	setDefaults(a.v)

	if err := a.v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	a.cfg = &config.Config{}
	if err := a.v.Unmarshal(a.cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := logger.Init(&a.cfg.Log); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}

	log.Debug().Str("config_file", a.v.ConfigFileUsed()).Msg("configuration loaded")
	return nil
}

func setDefaults(v *viper.Viper) {
	// Agent
	v.SetDefault("agent.model", "claude-sonnet-4-5")
	v.SetDefault("agent.max_tokens", 0)
	v.SetDefault("agent.system_prompt", "")
	v.SetDefault("agent.tool_policy", "server")
	v.SetDefault("agent.prompt_strategy", "history-in-prompt")
	v.SetDefault("agent.permission_mode", "bypassPermissions")

	// CLI worker
	v.SetDefault("cli.path", "claude")
	v.SetDefault("cli.work_dir", "")
	v.SetDefault("cli.stop_timeout", "500ms")

	// Output
	v.SetDefault("output.json", false)

	// Log
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.time_format", "RFC3339")
}

// validConfig returns the loaded configuration after validating it.
func (a *app) validConfig() (*config.Config, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return a.cfg, nil
}
