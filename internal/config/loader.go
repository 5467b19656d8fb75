package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Workspace holds the machine-level configuration shared by every project:
// tool acquisition, cache policy, and execution limits.
type Workspace struct {
	Tool          ToolSettings
	Cache         CacheSettings
	Timeout       time.Duration
	Workers       int
	WatchDebounce time.Duration
	MetricsListen string
}

// Loader handles workspace configuration loading from defaults, config file,
// environment and flags.
type Loader struct{}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load assembles the workspace configuration for a command invocation. dir is
// the directory the command operates on (used for the config-file walk-up);
// configFile, when non-empty, is an explicit --config path that wins over
// discovery.
func (l *Loader) Load(cmd *cobra.Command, dir, configFile string) (*Workspace, error) {
	l.setupViperDefaults()

	if err := l.loadConfigFile(dir, configFile); err != nil {
		return nil, err
	}

	l.bindEnvironment()
	l.bindCommandFlags(cmd)

	return l.workspace()
}

// setupViperDefaults registers default values for every workspace key.
func (l *Loader) setupViperDefaults() {
	viper.SetDefault("tool.name", DefaultToolName)
	viper.SetDefault("tool.version", "")
	viper.SetDefault("tool.path", "")
	viper.SetDefault("tool.download_url", DefaultDownloadURL)
	viper.SetDefault("tool.checksum_url", DefaultChecksumURL)
	viper.SetDefault("tool.verify", true)
	viper.SetDefault("tool.max_retries", DefaultMaxRetries)
	viper.SetDefault("tool.retry_backoff", DefaultRetryBackoff)
	viper.SetDefault("tool.retry_initial", DefaultRetryInitial)
	viper.SetDefault("tool.retry_max", DefaultRetryMax)
	viper.SetDefault("tool.retention", DefaultRetention)
	viper.SetDefault("tool.dir", "")

	viper.SetDefault("cache.dir", "")
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.freshness.validate", DefaultFreshnessValidate)
	viper.SetDefault("cache.freshness.generate", DefaultFreshnessGenerate)
	viper.SetDefault("cache.freshness.docs", DefaultFreshnessDocs)
	viper.SetDefault("cache.failures.validate", true)
	viper.SetDefault("cache.failures.generate", false)
	viper.SetDefault("cache.failures.docs", false)
	viper.SetDefault("cache.max_output_bytes", DefaultMaxOutputBytes)

	viper.SetDefault("timeout", DefaultTimeout)
	viper.SetDefault("workers", DefaultWorkers)
	viper.SetDefault("watch.debounce", DefaultWatchDebounce)
	viper.SetDefault("metrics.listen", "")
}

// loadConfigFile reads the workspace config file. Precedence: explicit
// --config path, then a .schemactl.yaml found walking up from dir, then
// $XDG_CONFIG_HOME/schemactl, then $HOME.
func (l *Loader) loadConfigFile(dir, configFile string) error {
	if configFile != "" {
		viper.SetConfigFile(configFile)

		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", configFile, err)
		}

		return nil
	}

	if path := FindWorkspaceConfig(dir); path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", path, err)
		}

		return nil
	}

	for _, candidate := range globalConfigPaths() {
		if _, err := os.Stat(candidate); err == nil {
			viper.SetConfigFile(candidate)

			if err := viper.ReadInConfig(); err == nil {
				break
			}
		}
	}

	return nil
}

// globalConfigPaths lists the machine-level config file candidates.
func globalConfigPaths() []string {
	var paths []string

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "schemactl", "config.yaml"))
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "schemactl", "config.yaml"),
			filepath.Join(home, ".schemactl.yaml"),
		)
	}

	return paths
}

// bindEnvironment enables SCHEMACTL_* environment overrides, e.g.
// SCHEMACTL_TOOL_VERSION for tool.version.
func (l *Loader) bindEnvironment() {
	viper.SetEnvPrefix("SCHEMACTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// bindCommandFlags binds the flags that mirror workspace keys.
func (l *Loader) bindCommandFlags(cmd *cobra.Command) {
	if cmd == nil {
		return
	}

	bind := func(key, flag string) {
		if f := cmd.Flags().Lookup(flag); f != nil {
			_ = viper.BindPFlag(key, f)
		}
	}

	bind("tool.version", "tool-version")
	bind("timeout", "timeout")
	bind("workers", "workers")
	bind("metrics.listen", "metrics-listen")
}

// workspace materializes the Workspace from viper state and fills directory
// defaults that depend on the host.
func (l *Loader) workspace() (*Workspace, error) {
	w := &Workspace{
		Tool: ToolSettings{
			Name:         viper.GetString("tool.name"),
			Version:      viper.GetString("tool.version"),
			Path:         viper.GetString("tool.path"),
			DownloadURL:  viper.GetString("tool.download_url"),
			ChecksumURL:  viper.GetString("tool.checksum_url"),
			Verify:       viper.GetBool("tool.verify"),
			MaxRetries:   viper.GetInt("tool.max_retries"),
			RetryBackoff: viper.GetString("tool.retry_backoff"),
			RetryInitial: viper.GetDuration("tool.retry_initial"),
			RetryMax:     viper.GetDuration("tool.retry_max"),
			Retention:    viper.GetDuration("tool.retention"),
			Dir:          viper.GetString("tool.dir"),
		},
		Cache: CacheSettings{
			Dir:     viper.GetString("cache.dir"),
			Enabled: viper.GetBool("cache.enabled"),
			Freshness: map[string]time.Duration{
				KindValidate: viper.GetDuration("cache.freshness.validate"),
				KindGenerate: viper.GetDuration("cache.freshness.generate"),
				KindDocs:     viper.GetDuration("cache.freshness.docs"),
			},
			CacheFailures: map[string]bool{
				KindValidate: viper.GetBool("cache.failures.validate"),
				KindGenerate: viper.GetBool("cache.failures.generate"),
				KindDocs:     viper.GetBool("cache.failures.docs"),
			},
			MaxOutputBytes: viper.GetInt("cache.max_output_bytes"),
		},
		Timeout:       viper.GetDuration("timeout"),
		Workers:       viper.GetInt("workers"),
		WatchDebounce: viper.GetDuration("watch.debounce"),
		MetricsListen: viper.GetString("metrics.listen"),
	}

	if w.Cache.Dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("failed to determine cache directory: %w", err)
		}

		w.Cache.Dir = filepath.Join(base, "schemactl")
	}

	if w.Tool.Dir == "" {
		w.Tool.Dir = filepath.Join(w.Cache.Dir, "tools")
	}

	return w, nil
}
