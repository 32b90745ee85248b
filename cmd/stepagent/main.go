// Command stepagent is an interactive terminal agent: each line typed at the
// prompt starts a turn in which the model plans, runs tools and answers.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/martinemde/stepagent/agentloop"
	"github.com/martinemde/stepagent/config"
	"github.com/martinemde/stepagent/logs"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"provider":              config.KeyProvider,
	"model":                 config.KeyModel,
	"base-url":              config.KeyBaseURL,
	"api-key":               config.KeyAPIKey,
	"profile":               config.KeyProfile,
	"work-dir":              config.KeyWorkDir,
	"temperature":           config.KeyTemperature,
	"max-tokens":            config.KeyMaxTokens,
	"command-timeout":       config.KeyCommandTimeout,
	"max-retries":           config.KeyMaxRetries,
	"max-backend-failures":  config.KeyMaxBackendFailures,
	"loop-detection-window": config.KeyLoopDetectionWindow,
	"instructions":          config.KeyInstructions,
	"project-docs":          config.KeyProjectDocs,
	"log-level":             config.KeyLogLevel,
	"log-file":              config.KeyLogFile,
	"color":                 config.KeyColor,
	"history-file":          config.KeyHistoryFile,
}

func newRootCmd() *cobra.Command {
	v := config.New()
	var configFile, envFile string

	cmd := &cobra.Command{
		Use:   "stepagent",
		Short: "Terminal agent that plans, runs tools and answers in JSON steps",
		Long: "stepagent reads one request per line, asks the model for one JSON step at a time\n" +
			"(start, plan, action, observe, output/end) and runs the tools the model asks for\n" +
			"until it answers. Ctrl-C cancels the current turn; Ctrl-C or Ctrl-D at the prompt exits.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "Config file (default: ./stepagent.yaml or $XDG_CONFIG_HOME/stepagent/stepagent.yaml).")
	flags.StringVar(&envFile, "env-file", ".env", "Dotenv file exported into the environment when present.")
	flags.String("provider", config.DefaultProvider, "Provider: "+strings.Join(config.Providers, "|")+".")
	flags.String("model", "", "Model name (default depends on the provider).")
	flags.String("base-url", "", "Base URL for OpenAI-compatible providers.")
	flags.String("api-key", "", "API key (default: the provider's *_API_KEY variable).")
	flags.String("profile", config.DefaultProfile, "Prompt profile: "+strings.Join(agentloop.ProfileNames(), "|")+".")
	flags.String("work-dir", "", "Directory tools run in (default: current directory).")
	flags.Float64("temperature", 0, "Sampling temperature (provider default when unset).")
	flags.Int("max-tokens", 0, "Max output tokens per reply (0 uses the provider default).")
	flags.Duration("command-timeout", 0, "Timeout per run_command call (0 disables).")
	flags.Int("max-retries", 2, "Client retries per model request.")
	flags.Int("max-backend-failures", 0, "End a turn after this many consecutive failed requests (0 keeps retrying).")
	flags.Int("loop-detection-window", 6, "Warn when this many recent actions repeat (0 disables).")
	flags.String("instructions", "", "Extra instructions appended to the system prompt.")
	flags.Bool("project-docs", true, "Append AGENTS.md files to the system prompt.")
	flags.String("log-level", "warn", "Log level: debug|info|warn|error.")
	flags.String("log-file", "", "Append JSON logs to this file.")
	flags.Bool("color", true, "Colorize console output when stdout is a terminal.")
	flags.String("history-file", "", "Readline history file.")

	if err := bindFlags(v, flags); err != nil {
		panic(err)
	}
	cmd.AddCommand(newModelsCmd())
	return cmd
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, stdin io.Reader, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger, closeLog, err := logs.New(logs.Options{
		Level:    cfg.LogLevel,
		Terminal: stderr,
		File:     cfg.LogFile,
		Journal:  logs.UnderSystemd(),
	})
	if err != nil {
		return err
	}
	defer closeLog()
	logger.Info("starting", "provider", cfg.Provider, "model", cfg.Model, "profile", cfg.Profile, "config", cfg.ConfigFile)

	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	env := agentloop.NewLocalExecutionEnvironment(cfg.WorkDir)
	if err := env.Initialize(); err != nil {
		return fmt.Errorf("prepare working directory: %w", err)
	}
	registry, err := agentloop.NewCoreToolRegistry(cfg.CommandTimeout)
	if err != nil {
		return err
	}
	profile, err := agentloop.ProfileByName(cfg.Profile)
	if err != nil {
		return err
	}

	out := newConsole(stdout, cfg.Color && isTerminal(stdout))
	sessionConfig := cfg.SessionConfig()
	session := agentloop.NewSession(client, profile, registry, env, &sessionConfig,
		agentloop.WithLogger(logger),
		agentloop.WithEventHandler(out.handle),
	)
	defer session.Close()

	reader, err := newLineReader(stdin, stdout, cfg.HistoryFile)
	if err != nil {
		return err
	}
	defer reader.Close()

	for {
		line, err := reader.ReadLine()
		if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := submit(ctx, session, line, out); err != nil {
			return err
		}
	}
}

// submit runs one turn. Ctrl-C cancels only this turn; the final answer is
// printed by the console's event handler.
func submit(ctx context.Context, session *agentloop.Session, line string, out *console) error {
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	start := time.Now()
	_, err := session.Submit(turnCtx, line)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, context.Canceled):
		out.interrupted()
		return nil
	case errors.Is(err, agentloop.ErrSessionClosed):
		return err
	default:
		out.error(fmt.Errorf("turn failed after %s: %w", time.Since(start).Round(time.Millisecond), err))
		return nil
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
