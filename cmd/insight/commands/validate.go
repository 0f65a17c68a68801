package commands

import (
	"fmt"

	"github.com/moolen/insight/internal/adapter"
	"github.com/moolen/insight/internal/config"
	"github.com/moolen/insight/internal/router"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [config]",
	Short: "Check a router config file without starting anything",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := configPath
	if len(args) == 1 {
		path = args[0]
	}
	out := cmd.OutOrStdout()
	styled := isTerminal(out)

	if err := validateFile(path); err != nil {
		msg := fmt.Sprintf("✗ %s: %v", displayPath(path), err)
		if styled {
			msg = errorStyle.Render(msg)
		}
		fmt.Fprintln(out, msg)
		return err
	}

	msg := fmt.Sprintf("✓ %s is valid", displayPath(path))
	if styled {
		msg = okStyle.Render(msg)
	}
	fmt.Fprintln(out, msg)
	return nil
}

func validateFile(path string) error {
	file, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := adapter.Check(file, adapter.DefaultFactories()); err != nil {
		return err
	}
	return router.CheckConfig(file)
}

func displayPath(path string) string {
	if path == "" {
		return "built-in defaults"
	}
	return path
}
