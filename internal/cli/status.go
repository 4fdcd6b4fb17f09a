package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [distribution]",
	Short: "Show installation status",
	Long:  "Reports whether a distribution is installed for the target platform and where its executable lives.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// statusData is the output of the status command.
type statusData struct {
	Distribution string `json:"distribution"`
	Platform     string `json:"platform"`
	Installed    bool   `json:"installed"`
	InstallDir   string `json:"installDir"`
	Executable   string `json:"executable,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	dist, err := distributionArg(args)
	if err != nil {
		return outputError(err.Error())
	}

	c, err := newClient()
	if err != nil {
		return outputError(err.Error())
	}

	exe, installed := c.ExecutablePath(dist)
	status := statusData{
		Distribution: dist.ID,
		Platform:     c.Platform().String(),
		Installed:    installed,
		InstallDir:   c.InstallDir(dist),
		Executable:   exe,
	}

	return outputSuccess(status, func(w io.Writer) {
		fmt.Fprintf(w, "distribution: %s\n", status.Distribution)
		fmt.Fprintf(w, "platform:     %s\n", status.Platform)
		fmt.Fprintf(w, "installed:    %t\n", status.Installed)
		fmt.Fprintf(w, "directory:    %s\n", status.InstallDir)
		if status.Executable != "" {
			fmt.Fprintf(w, "executable:   %s\n", status.Executable)
		}
	})
}
