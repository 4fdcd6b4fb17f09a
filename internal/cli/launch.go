package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/grantcarthew/chromium4go"
)

var launchCmd = &cobra.Command{
	Use:   "launch [distribution]",
	Short: "Launch a browser session",
	Long: `Resolves a distribution, installing it when missing, and launches it with
remote debugging enabled. The command blocks until the browser exits or
c4go receives SIGINT or SIGTERM, then closes the session.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLaunch,
}

var (
	launchHeadless    bool
	launchApp         string
	launchWindowSize  string
	launchDisableGPU  bool
	launchExtensions  []string
	launchReinstall   bool
	launchSystem      bool
	launchURL         string
	launchClearOrigin string
	launchPort        int
	launchOverwrite   bool
)

func init() {
	launchCmd.Flags().BoolVar(&launchHeadless, "headless", false, "Run browser in headless mode")
	launchCmd.Flags().StringVar(&launchApp, "app", "", "Open URL in app mode")
	launchCmd.Flags().StringVar(&launchWindowSize, "window-size", "", "Headless window size as WxH")
	launchCmd.Flags().BoolVar(&launchDisableGPU, "disable-gpu", false, "Disable GPU acceleration in headless mode")
	launchCmd.Flags().StringSliceVar(&launchExtensions, "extension", nil, "Built-in extension ID to load (repeatable)")
	launchCmd.Flags().BoolVar(&launchReinstall, "reinstall-extensions", false, "Download extensions again even if present")
	launchCmd.Flags().BoolVar(&launchSystem, "system", false, "Use the system Chrome instead of an installed distribution")
	launchCmd.Flags().StringVar(&launchURL, "url", "", "Navigate to URL after launch")
	launchCmd.Flags().StringVar(&launchClearOrigin, "clear-origin", "", "Clear cached data and storage of the origin serving URL after launch")
	launchCmd.Flags().IntVar(&launchPort, "port", 0, "CDP port for browser (default: a free port chosen by the browser)")
	launchCmd.Flags().BoolVar(&launchOverwrite, "overwrite", false, "Reinstall the distribution before launching")
	launchCmd.MarkFlagsMutuallyExclusive("headless", "app")
	launchCmd.MarkFlagsMutuallyExclusive("system", "overwrite")
	rootCmd.AddCommand(launchCmd)
}

// holdSession blocks until the session should end. Replaceable for testing.
var holdSession = func(ctx context.Context, s *chromium4go.Session) {
	select {
	case <-ctx.Done():
	case <-s.Done():
	}
}

// launchData is the output of the launch command.
type launchData struct {
	Session    string   `json:"session"`
	Executable string   `json:"executable"`
	Port       int      `json:"port"`
	Version    string   `json:"version,omitempty"`
	Extensions []string `json:"extensions,omitempty"`
}

func runLaunch(cmd *cobra.Command, args []string) error {
	dist, err := distributionArg(args)
	if err != nil {
		return outputError(err.Error())
	}

	opts, err := launchOptions()
	if err != nil {
		return outputError(err.Error())
	}

	exts, err := launchExtensionList()
	if err != nil {
		return outputError(err.Error())
	}

	c, err := newClient()
	if err != nil {
		return outputError(err.Error())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessOpts := chromium4go.SessionOptions{
		Launch:              opts,
		Extensions:          exts,
		ReinstallExtensions: launchReinstall,
		Overwrite:           launchOverwrite,
		Status:              outputStatus,
		Progress:            progressPrinter(),
	}

	var s *chromium4go.Session
	if launchSystem {
		exe, ferr := chromium4go.SystemChrome()
		if ferr != nil {
			return outputError(ferr.Error())
		}
		debugf("using system chrome %s", exe)
		s, err = c.Launch(ctx, exe, sessOpts)
	} else {
		s, err = c.CreateSession(ctx, dist, sessOpts)
	}
	if err != nil {
		return outputError(err.Error())
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			debugf("close session: %v", cerr)
		}
	}()

	if launchClearOrigin != "" {
		outputStatus("Clearing data of " + launchClearOrigin)
		if err := s.ClearOriginData(ctx, launchClearOrigin); err != nil {
			return outputError(err.Error())
		}
	}
	if launchURL != "" {
		if err := s.Navigate(ctx, launchURL); err != nil {
			return outputError(err.Error())
		}
	}

	data := launchData{
		Session:    s.ID(),
		Executable: s.Options().Binary(),
		Port:       s.Options().Port(),
	}
	if v, err := s.Version(ctx); err == nil {
		data.Version = v.Full
	} else {
		debugf("browser version unavailable: %v", err)
	}
	for _, e := range s.Extensions() {
		data.Extensions = append(data.Extensions, e.ID)
	}

	if err := outputSuccess(data, func(w io.Writer) {
		fmt.Fprintf(w, "session %s started on port %d\n", data.Session, data.Port)
		if data.Version != "" {
			fmt.Fprintf(w, "browser: %s\n", data.Version)
		}
		fmt.Fprintln(w, "press Ctrl+C to quit")
	}); err != nil {
		return err
	}

	holdSession(ctx, s)
	debugf("session %s ending", s.ID())
	return nil
}

// launchOptions builds the launch options from the flags.
func launchOptions() (chromium4go.LaunchOptions, error) {
	var opts chromium4go.LaunchOptions

	switch {
	case launchApp != "":
		opts = chromium4go.AppOptions(launchApp)
	case launchHeadless:
		w, h, err := parseWindowSize(launchWindowSize)
		if err != nil {
			return opts, err
		}
		opts = chromium4go.HeadlessOptions(launchDisableGPU, w, h)
	default:
		if launchWindowSize != "" {
			w, h, err := parseWindowSize(launchWindowSize)
			if err != nil {
				return opts, err
			}
			opts = opts.WithFlags(fmt.Sprintf("--window-size=%d,%d", w, h))
		}
		if launchDisableGPU {
			opts = opts.WithFlags("--disable-gpu")
		}
	}

	if launchPort != 0 {
		opts = opts.WithPort(launchPort)
	}
	return opts, nil
}

// parseWindowSize accepts "WxH" or "W,H". Empty means the defaults.
func parseWindowSize(s string) (int, int, error) {
	if s == "" {
		return 0, 0, nil
	}
	sep := "x"
	if strings.Contains(s, ",") {
		sep = ","
	}
	ws, hs, ok := strings.Cut(strings.ToLower(s), sep)
	if !ok {
		return 0, 0, fmt.Errorf("invalid window size %q: expected WxH", s)
	}
	w, err := strconv.Atoi(strings.TrimSpace(ws))
	if err != nil || w <= 0 {
		return 0, 0, fmt.Errorf("invalid window width %q", ws)
	}
	h, err := strconv.Atoi(strings.TrimSpace(hs))
	if err != nil || h <= 0 {
		return 0, 0, fmt.Errorf("invalid window height %q", hs)
	}
	return w, h, nil
}

// launchExtensionList maps --extension IDs to built-in extensions.
func launchExtensionList() ([]chromium4go.Extension, error) {
	var exts []chromium4go.Extension
	for _, id := range launchExtensions {
		e, ok := chromium4go.LookupExtension(id)
		if !ok {
			var known []string
			for _, c := range chromium4go.CommonExtensions() {
				known = append(known, c.ID)
			}
			return nil, fmt.Errorf("unknown extension %q (known: %s)", id, strings.Join(known, ", "))
		}
		exts = append(exts, e)
	}
	return exts, nil
}
