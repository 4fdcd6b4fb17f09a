package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall [distribution]",
	Short: "Delete an installation",
	Long:  "Deletes the installation directory of a distribution. Waits for any running installation of it to finish first.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runUninstall,
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
}

func runUninstall(cmd *cobra.Command, args []string) error {
	dist, err := distributionArg(args)
	if err != nil {
		return outputError(err.Error())
	}

	c, err := newClient()
	if err != nil {
		return outputError(err.Error())
	}

	removed, err := c.Uninstall(cmd.Context(), dist)
	if err != nil {
		return outputError(err.Error())
	}
	if !removed {
		return outputNotice(fmt.Sprintf("%s is not installed", dist.ID))
	}

	return outputSuccess(map[string]any{
		"distribution": dist.ID,
		"removed":      removed,
	}, func(w io.Writer) {
		fmt.Fprintf(w, "removed %s\n", c.InstallDir(dist))
	})
}
