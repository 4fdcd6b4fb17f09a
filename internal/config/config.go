// Package config resolves property overrides and the directories used for
// browser installations.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// EnvHome overrides the user home directory installations are rooted at.
	EnvHome = "CHROMIUM4GO_HOME"

	// DownloadsDirName is the directory below home holding installations.
	DownloadsDirName = "chromium4go-downloads"

	// ConfigDirName holds the optional config.yaml below home.
	ConfigDirName = ".chromium4go"

	// ConfigFileName is the YAML file read from ConfigDirName.
	ConfigFileName = "config.yaml"
)

// Properties is a read-only view of configuration keys. Keys use the dotted
// form, e.g. "chromium4go.download-url.latest-trunk.linux_x64".
type Properties struct {
	overrides map[string]string
	env       func(string) (string, bool)
	dotenv    map[string]string
	file      map[string]string
}

// Empty returns Properties that only ever yield defaults.
func Empty() Properties {
	return Properties{env: func(string) (string, bool) { return "", false }}
}

// FromMap returns Properties backed solely by m.
func FromMap(m map[string]string) Properties {
	p := Empty()
	p.overrides = copyMap(m)
	return p
}

// LoadOptions controls where Load looks for properties.
type LoadOptions struct {
	// Overrides take precedence over every other source.
	Overrides map[string]string

	// DotEnvPath defaults to ".env" in the working directory.
	DotEnvPath string

	// ConfigPath defaults to <home>/.chromium4go/config.yaml.
	ConfigPath string
}

// Load reads properties from the process environment, a .env file and the
// YAML config file. Missing files are not an error.
func Load(opts LoadOptions) (Properties, error) {
	p := Properties{
		overrides: copyMap(opts.Overrides),
		env:       os.LookupEnv,
	}

	dotEnvPath := opts.DotEnvPath
	if dotEnvPath == "" {
		dotEnvPath = ".env"
	}
	dotenv, err := godotenv.Read(dotEnvPath)
	switch {
	case err == nil:
		p.dotenv = dotenv
	case errors.Is(err, fs.ErrNotExist):
	default:
		return Properties{}, fmt.Errorf("read %s: %w", dotEnvPath, err)
	}

	configPath := opts.ConfigPath
	if configPath == "" {
		home, err := Home()
		if err != nil {
			return Properties{}, err
		}
		configPath = filepath.Join(home, ConfigDirName, ConfigFileName)
	}
	file, err := readYAML(configPath)
	if err != nil {
		return Properties{}, err
	}
	p.file = file

	return p, nil
}

// Get returns the value for key. Lookup order is overrides, environment
// (EnvKey form), .env file (EnvKey or dotted form), config file.
func (p Properties) Get(key string) (string, bool) {
	if v, ok := p.overrides[key]; ok {
		return v, true
	}
	envKey := EnvKey(key)
	if p.env != nil {
		if v, ok := p.env(envKey); ok && v != "" {
			return v, true
		}
	}
	if v, ok := p.dotenv[envKey]; ok && v != "" {
		return v, true
	}
	if v, ok := p.dotenv[key]; ok && v != "" {
		return v, true
	}
	if v, ok := p.file[key]; ok && v != "" {
		return v, true
	}
	return "", false
}

// GetOr returns the value for key or def when unset.
func (p Properties) GetOr(key, def string) string {
	if v, ok := p.Get(key); ok {
		return v
	}
	return def
}

// With returns a copy of p with key set as an override.
func (p Properties) With(key, value string) Properties {
	out := p
	out.overrides = copyMap(p.overrides)
	out.overrides[key] = value
	return out
}

// EnvKey converts a dotted property key to its environment variable form.
func EnvKey(key string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(key) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Home returns the directory installations are rooted at: EnvHome when set,
// otherwise the user home directory.
func Home() (string, error) {
	if home := os.Getenv(EnvHome); home != "" {
		return home, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return home, nil
}

// DownloadsDir returns <home>/chromium4go-downloads.
func DownloadsDir() (string, error) {
	home, err := Home()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DownloadsDirName), nil
}

// readYAML loads a YAML document and flattens nested maps into dotted keys.
func readYAML(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	out := map[string]string{}
	flatten("", raw, out)
	return out, nil
}

func flatten(prefix string, in map[string]any, out map[string]string) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case nil:
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
