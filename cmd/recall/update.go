package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	recallserver "github.com/HendryAvila/recall/internal/server"
	"github.com/HendryAvila/recall/internal/updater"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update recall to the latest release",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(os.Stderr, "Checking for updates...")

		result := updater.CheckVersion(recallserver.Version)
		if !result.UpdateAvailable {
			fmt.Fprintf(os.Stderr, "Already at the latest version (v%s)\n", result.CurrentVersion)
			return nil
		}

		fmt.Fprintf(os.Stderr, "New version available: v%s -> v%s\nDownloading...\n",
			result.CurrentVersion, result.LatestVersion)

		if err := updater.SelfUpdate(recallserver.Version); err != nil {
			return fmt.Errorf("update failed: %w (download manually from %s)", err, result.ReleaseURL)
		}

		fmt.Fprintf(os.Stderr, "Updated to v%s. Restart recall to use the new version.\n",
			result.LatestVersion)
		return nil
	},
}

// checkForUpdates runs a non-blocking version check and prints a notice
// to stderr when an update exists. Stderr only: stdout belongs to the
// MCP stdio transport.
func checkForUpdates() {
	result := updater.CheckVersion(recallserver.Version)
	if result.UpdateAvailable {
		fmt.Fprintf(os.Stderr,
			"Update available: v%s -> v%s (run: recall update)\nRelease: %s\n",
			result.CurrentVersion, result.LatestVersion, result.ReleaseURL,
		)
	}
}
