package cli

import (
	"github.com/grantcarthew/chromium4go"
	"github.com/grantcarthew/chromium4go/internal/logging"
)

// ClientFactory builds the library client from the global flags.
type ClientFactory func(cfg chromium4go.Config) (*chromium4go.Client, error)

// clientFactory is the package-level factory, replaceable for testing.
var clientFactory ClientFactory = chromium4go.New

// SetClientFactory sets the client factory (for testing).
func SetClientFactory(f ClientFactory) {
	clientFactory = f
}

// ResetClientFactory resets to the default factory.
func ResetClientFactory() {
	clientFactory = chromium4go.New
}

// newClient returns a client configured from the persistent flags. The
// CLI handles signals itself, so sessions skip their exit hook.
func newClient() (*chromium4go.Client, error) {
	cfg := chromium4go.Config{
		DownloadsDir:    downloadsDir,
		Platform:        platformName,
		ConfigPath:      configPath,
		DotEnvPath:      dotEnvPath,
		DisableExitHook: true,
	}
	if Debug {
		cfg.Logger = logging.New(true)
	}
	debugf("client config: downloads=%q platform=%q config=%q env=%q", downloadsDir, platformName, configPath, dotEnvPath)
	return clientFactory(cfg)
}

// distributionArg resolves the optional distribution argument, defaulting
// to the latest trunk build.
func distributionArg(args []string) (chromium4go.Distribution, error) {
	if len(args) == 0 {
		return chromium4go.LatestTrunk, nil
	}
	return chromium4go.LookupDistribution(args[0])
}
