package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/grantcarthew/chromium4go"
)

var installCmd = &cobra.Command{
	Use:   "install [distribution]",
	Short: "Download and install a distribution",
	Long:  "Installs a distribution into the downloads directory unless it is already present. Defaults to the latest trunk build.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInstall,
}

var (
	installOverwrite   bool
	installKeepArchive bool
)

func init() {
	installCmd.Flags().BoolVar(&installOverwrite, "overwrite", false, "Delete any existing installation first")
	installCmd.Flags().BoolVar(&installKeepArchive, "keep-archive", false, "Keep the downloaded archive")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	dist, err := distributionArg(args)
	if err != nil {
		return outputError(err.Error())
	}

	c, err := newClient()
	if err != nil {
		return outputError(err.Error())
	}

	exe, err := c.Resolve(cmd.Context(), dist, chromium4go.ResolveOptions{
		Overwrite:   installOverwrite,
		KeepArchive: installKeepArchive,
		Status:      outputStatus,
		Progress:    progressPrinter(),
	})
	if err != nil {
		return outputError(err.Error())
	}
	if exe == "" {
		return outputError(fmt.Sprintf("no executable found in %s", c.InstallDir(dist)))
	}

	return outputSuccess(map[string]string{
		"distribution": dist.ID,
		"executable":   exe,
	}, func(w io.Writer) {
		fmt.Fprintln(w, exe)
	})
}

// progressPrinter reports download progress in MiB when debugging.
func progressPrinter() chromium4go.ProgressFunc {
	last := int64(-1)
	return func(total int64) {
		mib := total >> 20
		if mib == last {
			return
		}
		last = mib
		debugf("downloaded %d MiB", mib)
	}
}
