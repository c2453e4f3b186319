package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"gomunki/internal/pending"
)

func newPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "Summarize updates waiting to be installed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			tracker := pending.NewTracker(e.Paths)
			info := tracker.PendingUpdateInfo()
			status := tracker.ForceInstallPackageCheck(e.Prefs.InstallAppleSoftwareUpdates)

			if outputJSON {
				return writePendingJSON(cmd, info, status)
			}
			writePendingTable(cmd, info, status)
			return nil
		},
	}
}

func writePendingJSON(cmd *cobra.Command, info pending.Info, status pending.ForceInstallStatus) error {
	payload := struct {
		Installs      int       `json:"installs"`
		Removals      int       `json:"removals"`
		AppleUpdates  int       `json:"apple_updates"`
		Total         int       `json:"total"`
		OldestDays    float64   `json:"oldest_days"`
		ForcedDueDate time.Time `json:"forced_due_date,omitempty"`
		ForceStatus   string    `json:"force_install_status"`
	}{
		Installs:      info.InstallCount,
		Removals:      info.RemovalCount,
		AppleUpdates:  info.AppleCount,
		Total:         info.PendingCount,
		OldestDays:    info.OldestDays,
		ForcedDueDate: info.ForcedDueDate,
		ForceStatus:   status.String(),
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func writePendingTable(cmd *cobra.Command, info pending.Info, status pending.ForceInstallStatus) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "installs:\t%d\n", info.InstallCount)
	fmt.Fprintf(w, "removals:\t%d\n", info.RemovalCount)
	fmt.Fprintf(w, "apple updates:\t%d\n", info.AppleCount)
	fmt.Fprintf(w, "total pending:\t%d\n", info.PendingCount)
	fmt.Fprintf(w, "oldest (days):\t%.1f\n", info.OldestDays)
	if !info.ForcedDueDate.IsZero() {
		fmt.Fprintf(w, "forced due date:\t%s\n", info.ForcedDueDate.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "force-install status:\t%s\n", status)
}
