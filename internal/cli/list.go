package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/grantcarthew/chromium4go"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List known distributions",
	Long:  "Lists every distribution c4go can install, with its executable name on each platform.",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

// distributionInfo is the JSON form of a distribution.
type distributionInfo struct {
	ID          string            `json:"id"`
	Description string            `json:"description"`
	Executables map[string]string `json:"executables"`
}

func runList(cmd *cobra.Command, args []string) error {
	var infos []distributionInfo
	for _, d := range chromium4go.Distributions() {
		exes := map[string]string{}
		for p, name := range d.Executables {
			exes[p.String()] = name
		}
		infos = append(infos, distributionInfo{ID: d.ID, Description: d.Description, Executables: exes})
	}

	return outputSuccess(infos, func(w io.Writer) {
		for _, info := range infos {
			fmt.Fprintf(w, "%s\n  %s\n", info.ID, info.Description)
		}
	})
}
