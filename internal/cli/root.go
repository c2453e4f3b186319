// Package cli wires the managedsoftwareupdate command tree.
package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"gomunki/internal/stop"
)

var (
	prefsPath   string
	overlayPath string
	installDir  string
	verbosity   int
	outputJSON  bool
	showStatus  bool
)

// Execute runs the root cobra command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "managedsoftwareupdate",
		Short: "Managed software client agent",
		PersistentPreRun: func(*cobra.Command, []string) {
			notifyStopSignals()
		},
	}

	cmd.PersistentFlags().StringVar(&prefsPath, "prefs", "", "Path to the ManagedInstalls preference plist")
	cmd.PersistentFlags().StringVar(&overlayPath, "config", "", "Path to a YAML preference overlay")
	cmd.PersistentFlags().StringVar(&installDir, "installdir", "", "Override the managed-installs directory")
	cmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase console verbosity")
	cmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output machine-readable JSON")
	cmd.PersistentFlags().BoolVar(&showStatus, "progress", false, "Show the interactive progress display")

	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newInstallCmd())
	cmd.AddCommand(newAutoCmd())
	cmd.AddCommand(newPendingCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// notifyStopSignals translates SIGINT/SIGTERM into the cooperative stop flag
// consulted between items and at recursion boundaries.
func notifyStopSignals() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ch
		stop.Request()
	}()
}
