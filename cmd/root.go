// -- cmd/root.go --
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/answerbook/internal/config"
	"github.com/xkilldash9x/answerbook/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

// flagBindings maps persistent flags onto configuration keys. Flags only
// win when set explicitly.
var flagBindings = map[string]string{
	"log-level":    "logger.level",
	"browser-path": "browser.exec_path",
}

// NewRootCommand builds a fresh command tree. Each call returns independent
// flag state.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "answerbook",
		Short: "Answerbook opens the book of answers in a headless browser.",
		Long: `Answerbook drives a headless browser through the book of answers page,
clicks the book and returns the revealed answer as an image or as text.

Hold your question in mind, then run "answerbook open".`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			for flag, key := range flagBindings {
				if f := cmd.Flags().Lookup(flag); f != nil {
					if err := v.BindPFlag(key, f); err != nil {
						return err
					}
				}
			}

			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "answerbook"})
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if headful, _ := cmd.Flags().GetBool("headful"); headful {
				cfg.Browser.Headless = false
			}

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Starting answerbook", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			observability.Sync()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml or ~/.answerbook/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("browser-path", "", "browser executable; empty searches the usual install locations")
	rootCmd.PersistentFlags().Bool("headful", false, "show the browser window")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newOpenCmd(), newServeCmd(), newModesCmd(), newVersionCmd())
	return rootCmd
}

// Execute runs the command tree with ctx, logging any failure.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		observability.Sync()
		return err
	}
	return nil
}

// configFrom returns the configuration loaded by the root command, or the
// defaults when a subcommand runs without it.
func configFrom(cmd *cobra.Command) *config.Config {
	if cfg, ok := cmd.Context().Value(configKey).(*config.Config); ok && cfg != nil {
		return cfg
	}
	return config.NewDefaultConfig()
}
