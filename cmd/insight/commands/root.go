// Package commands implements the insight CLI.
package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/moolen/insight/internal/logging"
	"github.com/spf13/cobra"
)

// Version is overridden at build time with -ldflags "-X ...commands.Version=...".
var Version = "0.1.0"

var (
	configPath    string
	logLevelFlags []string
)

var rootCmd = &cobra.Command{
	Use:   "insight",
	Short: "Insight - answers marketing questions from metrics, social trends and creatives",
	Long: `Insight routes a marketing question to the capabilities that can answer it
(campaign metrics, Thai social media trends, creative analysis), calls them
concurrently and merges their answers into one report.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLog(logLevelFlags)
	},
}

// Execute runs the root command and prints the error, if any.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", getEnv("INSIGHT_CONFIG", ""),
		"Path to the router config file (default: built-in defaults)")
	// --log-level debug, or per package: --log-level router=debug --log-level adapter.*=warn
	rootCmd.PersistentFlags().StringSliceVar(&logLevelFlags, "log-level",
		[]string{"info"},
		"Log level. Use 'level' for the default or 'package=level' per package, e.g. --log-level router.dispatcher=debug")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(initCmd)
}

// setupLog initializes logging from --log-level flags and LOG_LEVEL_* variables.
func setupLog(flags []string) error {
	defaultLevel, packageLevels, err := parseLogLevelFlags(flags, os.Environ())
	if err != nil {
		return err
	}
	return logging.Initialize(defaultLevel, packageLevels)
}

// parseLogLevelFlags merges LOG_LEVEL_<PKG> variables with flags; flags win.
// LOG_LEVEL_ROUTER_DISPATCHER=debug sets router.dispatcher.
func parseLogLevelFlags(flags, environ []string) (string, map[string]string, error) {
	levels := make(map[string]string)
	for _, kv := range environ {
		if !strings.HasPrefix(kv, "LOG_LEVEL_") {
			continue
		}
		key, level, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		pkg := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(key, "LOG_LEVEL_"), "_", "."))
		levels[pkg] = level
	}

	for _, flag := range flags {
		if pkg, level, ok := strings.Cut(flag, "="); ok {
			levels[pkg] = level
		} else {
			levels["default"] = flag
		}
	}

	defaultLevel := "info"
	if level, ok := levels["default"]; ok {
		defaultLevel = level
		delete(levels, "default")
	}
	if _, err := logging.ParseLevel(defaultLevel); err != nil {
		return "", nil, err
	}
	for pkg, level := range levels {
		if _, err := logging.ParseLevel(level); err != nil {
			return "", nil, fmt.Errorf("invalid log level for package %q: %w", pkg, err)
		}
	}
	return defaultLevel, levels, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
