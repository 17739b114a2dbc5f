// Package cmd implements the vision-bot command line interface.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/soocke/vision-bot-go/config"
	"github.com/soocke/vision-bot-go/debug"
	"github.com/soocke/vision-bot-go/internal/output"
	"github.com/soocke/vision-bot-go/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "vision-bot",
	Short: "Locate reference images on web pages and screens",
	Long: "A visual element locator for browser automation: finds where a reference\n" +
		"image (needle) appears inside a live page or screen capture (haystack)\n" +
		"using normalized cross-correlation, with retry-until-timeout semantics.",
}

var (
	cfg       *config.Config
	logger    *slog.Logger
	newLogger func(debug bool) *slog.Logger
)

// Execute runs the root command. loggerFn builds the process logger once the
// --debug flag is known.
func Execute(loggerFn func(bool) *slog.Logger) {
	newLogger = loggerFn
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version.Version, version.Commit, version.BuildDate)
	rootCmd.PersistentFlags().String("format", "yaml", "Output format: yaml, json")
	rootCmd.PersistentFlags().Bool("pretty", false, "Pretty-print JSON output")
	rootCmd.PersistentFlags().String("config", "", "Path to JSON config file")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging and runtime stats")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		format, _ := rootCmd.PersistentFlags().GetString("format")
		switch format {
		case "yaml":
			output.OutputFormat = output.FormatYAML
		case "json":
			output.OutputFormat = output.FormatJSON
		default:
			return fmt.Errorf("unsupported format: %s (use yaml or json)", format)
		}
		if pretty, _ := rootCmd.PersistentFlags().GetBool("pretty"); pretty {
			output.PrettyOutput = true
		}

		cfgPath, _ := rootCmd.PersistentFlags().GetString("config")
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config %s: %w", cfgPath, err)
		}
		if debugFlag, _ := rootCmd.PersistentFlags().GetBool("debug"); debugFlag {
			cfg.Debug = true
		}
		logger = newLogger(cfg.Debug)
		if cfg.Debug {
			debug.StartRuntimeLogger(2*time.Second, logger)
		}
		return nil
	}
}
