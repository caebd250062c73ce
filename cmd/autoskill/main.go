package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/autoskill-ai/autoskill/pkg/backend"
	"github.com/autoskill-ai/autoskill/pkg/lifecycle"
	"github.com/autoskill-ai/autoskill/pkg/logger"
	"github.com/autoskill-ai/autoskill/pkg/presenter"
	skilltypes "github.com/autoskill-ai/autoskill/pkg/types/skill"
)

func init() {
	// Environment variables
	viper.SetEnvPrefix("AUTOSKILL")
	viper.AutomaticEnv()

	// Config file support
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.autoskill")
	viper.AddConfigPath(".")

	// Load config file if it exists (ignore errors if it doesn't)
	_ = viper.ReadInConfig()
}

var rootCmd = &cobra.Command{
	Use:   "autoskill",
	Short: "Generate, run, and evolve reusable agent skills",
	Long: `Autoskill turns natural-language task descriptions into versioned,
validated, executable skills. Skills are synthesized by an LLM, checked
against a security profile, deduplicated by description similarity, and
repaired automatically when they fail at runtime.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := logger.SetLogLevel(viper.GetString("log_level")); err != nil {
			presenter.Warning("invalid log level, falling back to info")
		}
		logger.SetLogFormat(viper.GetString("log_format"))
		presenter.SetQuiet(viper.GetBool("quiet"))
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// loadConfig assembles the runtime configuration from defaults, the config
// file, environment variables, flags, and the active profile.
func loadConfig() (skilltypes.Config, error) {
	cfg := skilltypes.DefaultConfig()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "failed to decode configuration")
	}

	if profile := viper.GetString("profile"); profile != "" && profile != "default" {
		overlay := viper.GetStringMap("profiles." + profile)
		if len(overlay) == 0 {
			return cfg, errors.Errorf("unknown profile %q", profile)
		}
		if err := applyProfile(&cfg, overlay); err != nil {
			return cfg, err
		}
	}

	if cfg.SkillsDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return cfg, errors.Wrap(err, "failed to resolve home directory")
		}
		cfg.SkillsDir = filepath.Join(home, ".autoskill", "skills")
	}
	return cfg, nil
}

// applyProfile decodes a named profile from the config file on top of the
// base configuration, leaving unset profile fields alone.
func applyProfile(config *skilltypes.Config, profile map[string]any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		Result:           config,
		WeaklyTypedInput: true,
		ZeroFields:       false, // Don't overwrite with zero values
	})
	if err != nil {
		return errors.Wrap(err, "failed to create profile decoder")
	}
	if err := decoder.Decode(profile); err != nil {
		return errors.Wrap(err, "failed to apply profile configuration")
	}
	return nil
}

// newBackend builds the model backend from the configured provider.
// Anthropic provides no embedding endpoint, so its completions are paired
// with OpenAI embeddings when an OpenAI key is available; without one,
// duplicate detection is disabled.
func newBackend() (backend.Backend, error) {
	provider := viper.GetString("provider")
	if provider == "" {
		provider = "openai"
	}

	switch provider {
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, errors.New("OPENAI_API_KEY is not set")
		}
		var opts []backend.OpenAIOption
		if model := viper.GetString("model"); model != "" {
			opts = append(opts, backend.WithModel(model))
		}
		if baseURL := viper.GetString("openai_base_url"); baseURL != "" {
			opts = append(opts, backend.WithBaseURL(baseURL))
		}
		return backend.NewOpenAIBackend(apiKey, opts...), nil
	case "anthropic":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, errors.New("ANTHROPIC_API_KEY is not set")
		}
		var opts []backend.AnthropicOption
		if model := viper.GetString("model"); model != "" {
			opts = append(opts, backend.WithAnthropicModel(anthropic.Model(model)))
		}
		completer := backend.NewAnthropicBackend(apiKey, opts...)
		if openaiKey := os.Getenv("OPENAI_API_KEY"); openaiKey != "" {
			return backend.NewComposite(completer, backend.NewOpenAIBackend(openaiKey)), nil
		}
		presenter.Warning("no OPENAI_API_KEY set; duplicate detection is disabled with the anthropic provider")
		return backend.NewComposite(completer, nil), nil
	default:
		return nil, errors.Errorf("unknown provider %q (expected openai or anthropic)", provider)
	}
}

// newManager wires a lifecycle manager for one command invocation.
func newManager() (*lifecycle.Manager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	b, err := newBackend()
	if err != nil {
		return nil, err
	}
	return lifecycle.New(cfg, b)
}

func main() {
	rootCmd.PersistentFlags().String("profile", "", "Configuration profile to apply")
	rootCmd.PersistentFlags().String("provider", "", "Model provider (openai or anthropic)")
	rootCmd.PersistentFlags().String("model", "", "Model name (overrides the provider default)")
	rootCmd.PersistentFlags().String("skills-dir", "", "Directory where skills are stored")
	rootCmd.PersistentFlags().String("isolation-level", "", "Default isolation level (none or venv)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "fmt", "Log format (fmt or json)")
	rootCmd.PersistentFlags().Bool("quiet", false, "Suppress non-essential output")

	viper.BindPFlag("profile", rootCmd.PersistentFlags().Lookup("profile"))
	viper.BindPFlag("provider", rootCmd.PersistentFlags().Lookup("provider"))
	viper.BindPFlag("model", rootCmd.PersistentFlags().Lookup("model"))
	viper.BindPFlag("skills_dir", rootCmd.PersistentFlags().Lookup("skills-dir"))
	viper.BindPFlag("isolation_level", rootCmd.PersistentFlags().Lookup("isolation-level"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))

	rootCmd.AddCommand(
		createCmd,
		execCmd,
		listCmd,
		infoCmd,
		updateCmd,
		deleteCmd,
		restoreCmd,
		reloadCmd,
		isolationCmd,
		templatesCmd,
		schemaCmd,
		versionCmd,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
