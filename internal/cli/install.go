package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"gomunki/internal/display"
	"gomunki/internal/install"
	"gomunki/internal/pending"
	"gomunki/internal/report"
	"gomunki/internal/tempdir"
	"gomunki/pkg/plist"
)

func newInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install pending updates and process removals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			defer tempdir.Cleanup()

			return runInstall(cmd.Context(), e)
		},
	}
}

func newAutoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auto",
		Short: "Check for updates, then install anything pending",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			defer tempdir.Cleanup()

			if _, err := runCheck(cmd.Context(), e); err != nil {
				return err
			}
			return runInstall(cmd.Context(), e)
		},
	}
}

// runInstall applies the actions recorded by the last check run and reports
// the post action owed, if any.
func runInstall(ctx context.Context, e *env) error {
	doc, err := plist.ReadFile(e.Paths.InstallInfoFile)
	if err != nil {
		var notFound *plist.NotFoundError
		if errors.As(err, &notFound) {
			display.MajorStatus("Nothing to install; run a check first")
			return nil
		}
		return err
	}

	installs := doc.DictSlice("managed_installs")
	removals := doc.DictSlice("removals")

	executor := install.NewExecutor(nil, e.Paths)
	if e.Prefs.ScriptTimeoutSeconds > 0 {
		executor.ScriptTimeout = time.Duration(e.Prefs.ScriptTimeoutSeconds) * time.Second
	}

	var action install.PostAction
	work := func() {
		removeAction := executor.RemoveAll(ctx, removals)
		installAction := executor.InstallAll(ctx, installs)
		action = removeAction.Max(installAction)
	}

	if display.GetOptions().ShowProgress {
		model := display.NewProgressModel("Installing managed software")
		if err := display.RunWithWork(os.Stdout, model, func(func(tea.Msg)) { work() }); err != nil {
			return err
		}
	} else {
		work()
	}

	tracker := pending.NewTracker(e.Paths)
	if err := tracker.SavePendingUpdateTimes(); err != nil {
		return err
	}
	if err := report.Save(e.Paths.ReportFile); err != nil {
		return err
	}

	if action != install.PostActionNone {
		display.MajorStatus("A %s is required to finish the installation", action)
		fmt.Printf("post action required: %s\n", action)
	}
	return nil
}
