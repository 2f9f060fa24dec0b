package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/recall/internal/memory"
	recallserver "github.com/HendryAvila/recall/internal/server"
)

// openStore opens just the activity store for one-shot commands that
// need no embedding or summarization machinery.
func openStore() (*memory.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return memory.New(memory.Config{
		DataDir:          cfg.DataDir,
		MachineID:        cfg.MachineID,
		MaxSearchResults: cfg.Store.MaxSearchResults,
		ParentLinkWindow: cfg.Store.ParentLinkWindow.Std(),
		StaleSessionAge:  cfg.Store.StaleSessionAge.Std(),
		StuckBatchAge:    cfg.Store.StuckBatchAge.Std(),
	})
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay unapplied resolution events so statuses converge",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		backfilled, err := store.BackfillResolutionEvents()
		if err != nil {
			return err
		}
		result, err := store.ReplayUnappliedEvents()
		if err != nil {
			return err
		}
		fmt.Printf("Replay complete: %d applied, %d skipped, %d backfilled\n",
			result.Applied, result.Skipped, backfilled)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write a full JSON backup for another machine to import",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		data, err := store.Export()
		if err != nil {
			return err
		}
		payload, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[0], payload, 0o600); err != nil {
			return err
		}
		fmt.Printf("Exported %d sessions, %d observations, %d resolution events to %s\n",
			len(data.Sessions), len(data.Observations), len(data.ResolutionEvents), args[0])
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import another machine's backup and reconcile statuses",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var data memory.ExportData
		if err := json.Unmarshal(raw, &data); err != nil {
			return fmt.Errorf("parsing backup: %w", err)
		}

		result, err := store.Import(&data)
		if err != nil {
			return err
		}
		replay, err := store.ReplayUnappliedEvents()
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d sessions, %d batches, %d activities, %d observations, %d events\n",
			result.SessionsImported, result.BatchesImported, result.ActivitiesImported,
			result.ObservationsImported, result.EventsImported)
		fmt.Printf("Replay applied %d, skipped %d\n", replay.Applied, replay.Skipped)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store counts and pending work",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		stats, err := store.Stats()
		if err != nil {
			return err
		}
		fmt.Printf("Machine:       %s\n", store.MachineID())
		fmt.Printf("Sessions:      %d\n", stats.TotalSessions)
		fmt.Printf("Batches:       %d (%d pending)\n", stats.TotalBatches, stats.PendingBatches)
		fmt.Printf("Activities:    %d\n", stats.TotalActivities)
		fmt.Printf("Observations:  %d\n", stats.TotalObservations)
		fmt.Printf("Unapplied resolution events: %d\n", stats.UnappliedEvents)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("recall v%s\n", recallserver.Version)
	},
}
