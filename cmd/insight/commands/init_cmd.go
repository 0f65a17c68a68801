package commands

import (
	"fmt"
	"os"

	"github.com/moolen/insight/internal/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default router config",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := "insight.yaml"
	if len(args) == 1 {
		path = args[0]
	}
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.WriteFile(path, config.Defaults()); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	msg := "Wrote " + path
	if isTerminal(out) {
		msg = okStyle.Render("✓ ") + msg + mutedStyle.Render("  (check it with: insight validate "+path+")")
	}
	fmt.Fprintln(out, msg)
	return nil
}
