package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamancini/firmup/internal/backup"
	"github.com/adamancini/firmup/internal/config"
	"github.com/adamancini/firmup/internal/device"
	"github.com/adamancini/firmup/internal/fetch"
	"github.com/adamancini/firmup/internal/interactive"
	"github.com/adamancini/firmup/internal/logging"
	"github.com/adamancini/firmup/internal/output"
	"github.com/adamancini/firmup/internal/update"
)

// retryDelay is the pause between download attempts.
var retryDelay = 3 * time.Second

// stdinIsTerminal decides whether confirmation prompts can be shown.
var stdinIsTerminal = interactive.IsTerminal

var errNotTerminal = errors.New("stdin is not a terminal, cannot ask for confirmation; re-run with --yes")

// loadConfig resolves the config file from --config and the standard locations.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Resolve(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Path != "" {
		logging.New("cmd").WithField("path", cfg.Path).Debug("loaded config")
	}
	return cfg, nil
}

// newFetcher builds the download stack described by cfg.
func newFetcher(cfg *config.Config) (*fetch.Fetcher, error) {
	timeout, err := cfg.HTTP.TimeoutDuration()
	if err != nil {
		return nil, err
	}

	ua := cfg.HTTP.UserAgent
	if ua == "" {
		ua = "firmup/" + firmupVersion
	}

	transport := fetch.NewHTTPTransport(
		fetch.WithTimeout(timeout),
		fetch.WithUserAgent(ua),
		fetch.WithLogger(logging.New("http")),
	)
	retrying := fetch.NewRetryTransport(transport, cfg.HTTP.Retries, retryDelay, logging.New("retry"))

	return fetch.New(cfg.URLTemplate, retrying), nil
}

// openDevice opens the device mounted at path.
func openDevice(path string, cfg *config.Config) (*device.Device, error) {
	return device.Open(path, device.WithInfoFile(cfg.DeviceInfoFile))
}

// newUpdater wires an updater for dev from cfg.
func newUpdater(dev *device.Device, cfg *config.Config, force bool) (*update.Updater, *fetch.Fetcher, error) {
	fetcher, err := newFetcher(cfg)
	if err != nil {
		return nil, nil, err
	}
	u := update.NewUpdater(dev, fetcher,
		update.WithAllowlist(update.NewAllowlist(cfg.SupportedDevices...)),
		update.WithForce(force),
	)
	return u, fetcher, nil
}

// newBackupManager returns the backup manager for the configured directory.
func newBackupManager(cfg *config.Config) (*backup.Manager, error) {
	dir, err := cfg.BackupDir()
	if err != nil {
		return nil, err
	}
	return backup.NewManagerWithDir(dir, firmupVersion), nil
}

// consoleWriter picks where human-readable progress goes. Structured output
// owns stdout, so progress moves to stderr.
func consoleWriter(format output.Format, stdout, stderr io.Writer) io.Writer {
	if format.Structured() {
		return stderr
	}
	return stdout
}

// formatSize renders a byte count for humans.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// completeDevicePath completes the device argument with directories.
func completeDevicePath(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return nil, cobra.ShellCompDirectiveFilterDirs
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

// completeBackupID completes backup IDs, newest first.
func completeBackupID(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	manager, err := backupManager()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	backups, err := manager.List()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	ids := []string{"latest"}
	for _, b := range backups {
		ids = append(ids, b.ID+"\t"+b.Model)
	}
	return ids, cobra.ShellCompDirectiveNoFileComp
}
