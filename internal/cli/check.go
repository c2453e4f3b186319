package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"gomunki/internal/catalogs"
	"gomunki/internal/conditions"
	"gomunki/internal/display"
	"gomunki/internal/manifests"
	"gomunki/internal/pending"
	"gomunki/internal/report"
	"gomunki/internal/tempdir"
	"gomunki/pkg/plist"
)

// checkSelectors is the order in which the resolver flattens the manifest
// lists during a check run.
var checkSelectors = []manifests.Selector{
	manifests.SelectorManagedInstalls,
	manifests.SelectorManagedUpdates,
	manifests.SelectorManagedUninstalls,
	manifests.SelectorOptionalInstalls,
	manifests.SelectorDefaultInstalls,
	manifests.SelectorFeaturedItems,
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the repo for available updates and download them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			defer tempdir.Cleanup()

			ii, err := runCheck(cmd.Context(), e)
			if err != nil {
				return err
			}

			pendingCount := len(ii.ManagedInstalls) + len(ii.Removals)
			if pendingCount == 0 {
				display.MajorStatus("No pending updates")
			} else {
				display.MajorStatus("%d update(s) pending", pendingCount)
			}
			return nil
		},
	}
}

// runCheck performs a full check run: discover the primary manifest, resolve
// every selector, merge the self-serve manifest, garbage-collect the manifest
// cache, and persist install info, pending-update times, the report, and the
// preference-domain state keys.
func runCheck(ctx context.Context, e *env) (*manifests.InstallInfo, error) {
	report.Reset()
	report.Record("StartTime", time.Now().UTC())
	report.Record("ManagedInstallVersion", Version)

	svc := e.fetchService()
	opts := e.fetchOptions()
	store := catalogs.NewStore(svc, opts)
	resolver := manifests.NewResolver(svc, store, conditions.DefaultFacts(), opts)
	resolver.ClientIdentifier = e.Prefs.ClientIdentifier

	display.MajorStatus("Retrieving manifests")
	name, path, err := resolver.PrimaryManifest(ctx)
	if err != nil {
		recordCheckFailure(e, err)
		return nil, err
	}
	report.Record("ManifestName", name)

	primary, err := plist.ReadFile(path)
	if err != nil {
		recordCheckFailure(e, err)
		return nil, err
	}
	primaryCatalogs := primary.StringSlice("catalogs")

	ii := manifests.NewInstallInfo()
	for _, selector := range checkSelectors {
		if err := resolver.Resolve(ctx, path, selector, nil, ii); err != nil {
			recordCheckFailure(e, err)
			return nil, err
		}
	}
	if err := resolver.ResolveSelfServe(ctx, e.Paths.SelfServeManifest, primaryCatalogs, ii); err != nil {
		recordCheckFailure(e, err)
		return nil, err
	}

	if err := manifests.CleanupManifestsDir(e.Paths.ManifestsDir, resolver.Table.List()); err != nil {
		return nil, fmt.Errorf("manifest cleanup: %w", err)
	}
	if err := ii.WriteFile(e.Paths.InstallInfoFile); err != nil {
		return nil, err
	}

	tracker := pending.NewTracker(e.Paths)
	if err := tracker.SavePendingUpdateTimes(); err != nil {
		return nil, err
	}
	info := tracker.PendingUpdateInfo()

	report.Record("ItemsToInstall", int64(info.InstallCount))
	report.Record("ItemsToRemove", int64(info.RemovalCount))
	report.Record("EndTime", time.Now().UTC())
	if err := report.Save(e.Paths.ReportFile); err != nil {
		return nil, err
	}

	state := plist.Dict{
		"LastCheckDate":      time.Now().UTC(),
		"LastCheckResult":    int64(checkResultFor(info.PendingCount)),
		"PendingUpdateCount": int64(info.PendingCount),
		"OldestUpdateDays":   info.OldestDays,
	}
	if !info.ForcedDueDate.IsZero() {
		state["ForcedUpdateDueDate"] = info.ForcedDueDate
	}
	if info.PendingCount > 0 {
		last, _ := e.Prefs.State("LastNotifiedDate")
		lastNotified, _ := last.(time.Time)
		if pending.ShouldNotify(lastNotified, e.Prefs.DaysBetweenNotifications) {
			display.MajorStatus("Notifying user of %d pending update(s)", info.PendingCount)
			state["LastNotifiedDate"] = time.Now().UTC()
		}
	}
	if err := e.Prefs.SetState(state); err != nil {
		return nil, err
	}

	return ii, nil
}

func checkResultFor(pendingCount int) int {
	if pendingCount > 0 {
		return 1
	}
	return 0
}

func recordCheckFailure(e *env, err error) {
	report.Record("Errors", plist.Array{err.Error()})
	report.Save(e.Paths.ReportFile)
	e.Prefs.SetState(plist.Dict{
		"LastCheckDate":   time.Now().UTC(),
		"LastCheckResult": int64(-1),
	})
}
