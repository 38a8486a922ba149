package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/haowjy/meridian-agent-go"
	"github.com/haowjy/meridian-agent-go/providers/claudeagent"
)

// Config is the root configuration of agentbridge.
type Config struct {
	Agent AgentConfig `mapstructure:"agent"`
	CLI   CLIConfig   `mapstructure:"cli"`
	Log   LogConfig   `mapstructure:"log"`
}

// AgentConfig selects the model and the translation behavior.
type AgentConfig struct {
	Model          string   `mapstructure:"model"`
	MaxTokens      int      `mapstructure:"max_tokens"` // 0 = worker default
	Temperature    *float64 `mapstructure:"temperature"`
	SystemPrompt   string   `mapstructure:"system_prompt"`
	ToolPolicy     string   `mapstructure:"tool_policy"`     // server, client
	PromptStrategy string   `mapstructure:"prompt_strategy"` // history-in-prompt, history-as-turns
	PermissionMode string   `mapstructure:"permission_mode"` // default, acceptEdits, bypassPermissions, plan
}

// CLIConfig configures the claude CLI worker process.
type CLIConfig struct {
	Path        string            `mapstructure:"path"`
	WorkDir     string            `mapstructure:"work_dir"`
	ExtraArgs   []string          `mapstructure:"extra_args"`
	Env         map[string]string `mapstructure:"env"`
	StopTimeout time.Duration     `mapstructure:"stop_timeout"`
}

// LogConfig configures logging (zerolog).
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // console, json
	Output     string `mapstructure:"output"` // stderr, stdout, file
	FilePath   string `mapstructure:"file_path"`
	TimeFormat string `mapstructure:"time_format"`
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Agent.Model == "" {
		return errors.New("agent.model is required")
	}

	if !llmprovider.ExecutionSide(c.Agent.ToolPolicy).IsValid() {
		return fmt.Errorf("invalid agent.tool_policy %q, must be server/client", c.Agent.ToolPolicy)
	}

	if !claudeagent.PromptStrategy(c.Agent.PromptStrategy).IsValid() {
		return fmt.Errorf("invalid agent.prompt_strategy %q, must be %s/%s",
			c.Agent.PromptStrategy, claudeagent.HistoryInPrompt, claudeagent.HistoryAsTurns)
	}

	if !claudeagent.PermissionMode(c.Agent.PermissionMode).IsValid() {
		return fmt.Errorf("invalid agent.permission_mode %q", c.Agent.PermissionMode)
	}

	if c.Agent.PromptStrategy == string(claudeagent.HistoryAsTurns) {
		return errors.New("agent.prompt_strategy history-as-turns is not supported by the claude CLI worker")
	}

	if err := llmprovider.ValidateRequestParams(c.RequestParams()); err != nil {
		return err
	}

	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[c.Log.Format] {
		return errors.New("invalid log.format, must be console/json")
	}

	if c.Log.Output == "file" && c.Log.FilePath == "" {
		return errors.New("log.file_path is required when log.output is file")
	}

	return nil
}

// RequestParams returns the per-call stream options from the agent settings.
func (c *Config) RequestParams() *llmprovider.RequestParams {
	params := &llmprovider.RequestParams{Temperature: c.Agent.Temperature}
	if c.Agent.MaxTokens != 0 {
		maxTokens := c.Agent.MaxTokens
		params.MaxTokens = &maxTokens
	}
	return params
}
