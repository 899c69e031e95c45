package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/harunnryd/cryscope/pkg/cryscope"
	"github.com/harunnryd/cryscope/pkg/logging"
)

const defaultEnvFile = ".env"

type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
	logFormat  string
	verbose    bool

	cfg    cryscope.Config
	logger *slog.Logger
}

// NewRootCommand builds the command tree. Each call returns fresh flag state.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "cryscope",
		Short: "Realtime baby-cry analysis client",
		Long: `cryscope streams 16 kHz mono audio to the DashScope realtime service and
prints the incremental text analysis.

The API key is read from transport.settings.api_key or DASHSCOPE_API_KEY,
which may live in a .env file next to the working directory.

Examples:
  # Analyse a recording with the default configuration
  cryscope stream --wav cry.wav

  # Use a config file and emit JSON lines
  cryscope --config configs/cryscope.example.yaml stream --json`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "config file (YAML)")
	pf.StringVar(&opts.envFile, "env-file", "", "dotenv file to load before reading config (default: ./.env if present)")
	pf.StringVar(&opts.logLevel, "log-level", "", "override log_level (debug, info, warn, error)")
	pf.StringVar(&opts.logFormat, "log-format", "", "override log_format (text, json)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(newStreamCommand(opts))
	cmd.AddCommand(newVersionCommand(opts))
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

// load reads the env file and config, then installs the process logger.
func (o *rootOptions) load(cmd *cobra.Command) error {
	if err := loadEnvFile(o.envFile); err != nil {
		return err
	}
	cfg, err := cryscope.LoadConfig(o.configPath)
	if err != nil {
		return err
	}
	if strings.TrimSpace(o.logLevel) != "" {
		cfg.LogLevel = o.logLevel
	}
	if strings.TrimSpace(o.logFormat) != "" {
		cfg.LogFormat = o.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	o.cfg = cfg
	o.logger = logging.InitLogger(cmd.ErrOrStderr(), logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})
	return nil
}

// loadEnvFile loads an explicit dotenv file, or ./.env when it exists.
// Variables already set in the environment win.
func loadEnvFile(path string) error {
	if strings.TrimSpace(path) != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(defaultEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", defaultEnvFile, err)
	}
	return nil
}
