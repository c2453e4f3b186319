package install

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"gomunki/internal/display"
	"gomunki/internal/logx"
	"gomunki/internal/paths"
	"gomunki/internal/report"
	"gomunki/internal/stop"
	"gomunki/pkg/plist"
)

// PostAction is the machine-level action owed after a run. Aggregating two
// actions keeps the more disruptive one.
type PostAction int

const (
	PostActionNone PostAction = iota
	PostActionLogout
	PostActionRestart
	PostActionShutdown
)

func (a PostAction) String() string {
	switch a {
	case PostActionLogout:
		return "logout"
	case PostActionRestart:
		return "restart"
	case PostActionShutdown:
		return "shutdown"
	default:
		return "none"
	}
}

// Max returns the more disruptive of the two actions.
func (a PostAction) Max(other PostAction) PostAction {
	if other > a {
		return other
	}
	return a
}

func postActionFor(restartAction string) PostAction {
	switch restartAction {
	case "RequireRestart", "RecommendRestart":
		return PostActionRestart
	case "RequireLogout":
		return PostActionLogout
	case "RequireShutdown":
		return PostActionShutdown
	default:
		return PostActionNone
	}
}

// Executor applies resolved install and removal records.
type Executor struct {
	Runner Runner
	Paths  paths.InstallPaths

	// ScriptTimeout bounds each pre/post/uninstall script run. Zero means
	// DefaultScriptTimeout.
	ScriptTimeout time.Duration

	log *logrus.Entry
}

func NewExecutor(runner Runner, p paths.InstallPaths) *Executor {
	if runner == nil {
		runner = CmdRunner{}
	}
	return &Executor{Runner: runner, Paths: p, log: logx.Component("install")}
}

// InstallAll processes the managed-install records in order, skipping items
// already installed, and returns the aggregated post action. Per-item
// failures are reported and do not abort the pass; a requested stop does.
func (e *Executor) InstallAll(ctx context.Context, items []plist.Dict) PostAction {
	action := PostActionNone
	for i, item := range items {
		if stop.Requested() {
			e.log.Info("stop requested; ending install pass")
			return action
		}
		if item.BoolDefault("installed", false) {
			continue
		}
		name := item.StringDefault("name", "unknown")
		display.MajorStatus("Installing %s (%d of %d)", item.StringDefault("display_name", name), i+1, len(items))

		if err := e.installItem(ctx, item); err != nil {
			e.log.Errorf("install of %s failed: %v", name, err)
			display.Error("Install of %s failed: %v", name, err)
			report.Append("InstallResults", plist.Dict{
				"name":   name,
				"status": int64(-1),
				"note":   err.Error(),
			})
			continue
		}

		report.Append("InstallResults", plist.Dict{
			"name":    name,
			"version": item.StringDefault("version_to_install", ""),
			"status":  int64(0),
		})
		action = action.Max(postActionFor(item.StringDefault("RestartAction", "")))
	}
	return action
}

func (e *Executor) installItem(ctx context.Context, item plist.Dict) error {
	name := item.StringDefault("name", "unknown")
	if err := e.runEmbeddedScript(ctx, item, "preinstall_script", name); err != nil {
		return err
	}

	installerType := item.StringDefault("installer_type", "copy_from_dmg")
	switch installerType {
	case "copy_from_dmg", "":
		if err := e.installCopyFromDMG(ctx, item); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported installer_type %q", installerType)
	}

	return e.runEmbeddedScript(ctx, item, "postinstall_script", name)
}

// installCopyFromDMG mounts the cached disk image and lands every
// items_to_copy entry. The image is unmounted only if this call attached it.
func (e *Executor) installCopyFromDMG(ctx context.Context, item plist.Dict) error {
	installerItem, ok := item.String("installer_item")
	if !ok || installerItem == "" {
		return fmt.Errorf("item has no installer_item")
	}
	copies := item.DictSlice("items_to_copy")
	if len(copies) == 0 {
		return fmt.Errorf("item has no items_to_copy")
	}

	dmgPath := filepath.Join(e.Paths.CacheDir, filepath.Base(installerItem))
	mountpoint, alreadyMounted, err := e.mountImage(ctx, dmgPath)
	if err != nil {
		return err
	}
	if !alreadyMounted {
		defer func() {
			if err := e.unmountImage(ctx, mountpoint); err != nil {
				e.log.Warnf("could not unmount %s: %v", mountpoint, err)
			}
		}()
	}

	for _, entry := range copies {
		if err := e.copyFromMountpoint(mountpoint, entry); err != nil {
			return err
		}
	}
	return nil
}

// RemoveAll processes removal records in order and returns the aggregated
// post action.
func (e *Executor) RemoveAll(ctx context.Context, items []plist.Dict) PostAction {
	action := PostActionNone
	for i, item := range items {
		if stop.Requested() {
			e.log.Info("stop requested; ending removal pass")
			return action
		}
		if !item.BoolDefault("installed", false) {
			continue
		}
		name := item.StringDefault("name", "unknown")
		display.MajorStatus("Removing %s (%d of %d)", item.StringDefault("display_name", name), i+1, len(items))

		if err := e.removeItem(ctx, item); err != nil {
			e.log.Errorf("removal of %s failed: %v", name, err)
			display.Error("Removal of %s failed: %v", name, err)
			report.Append("RemovalResults", plist.Dict{
				"name":   name,
				"status": int64(-1),
				"note":   err.Error(),
			})
			continue
		}

		report.Append("RemovalResults", plist.Dict{
			"name":   name,
			"status": int64(0),
		})
		action = action.Max(postActionFor(item.StringDefault("RestartAction", "")))
	}
	return action
}

func (e *Executor) removeItem(ctx context.Context, item plist.Dict) error {
	name := item.StringDefault("name", "unknown")
	if err := e.runEmbeddedScript(ctx, item, "preuninstall_script", name); err != nil {
		return err
	}

	method := item.StringDefault("uninstall_method", "remove_copied_items")
	switch method {
	case "remove_copied_items", "":
		if err := e.removeCopiedItems(item); err != nil {
			return err
		}
	case "uninstall_script":
		if err := e.runEmbeddedScript(ctx, item, "uninstall_script", name); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported uninstall_method %q", method)
	}

	return e.runEmbeddedScript(ctx, item, "postuninstall_script", name)
}

// removeCopiedItems deletes the destinations recorded in items_to_copy.
// Already-absent destinations are fine.
func (e *Executor) removeCopiedItems(item plist.Dict) error {
	copies := item.DictSlice("items_to_copy")
	if len(copies) == 0 {
		return fmt.Errorf("item has no items_to_copy to remove")
	}
	for _, entry := range copies {
		source := entry.StringDefault("source_item", "")
		dest, err := resolveDestination(entry, filepath.Base(source))
		if err != nil {
			return err
		}
		display.MinorStatus("Removing %s", dest)
		if err := os.RemoveAll(dest); err != nil {
			return fmt.Errorf("remove %s: %w", dest, err)
		}
	}
	return nil
}

// CleanupCachedInstaller drops the downloaded payload after a successful
// install unless caching is requested.
func (e *Executor) CleanupCachedInstaller(item plist.Dict) {
	installerItem, ok := item.String("installer_item")
	if !ok || installerItem == "" {
		return
	}
	path := filepath.Join(e.Paths.CacheDir, filepath.Base(installerItem))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		e.log.Warnf("could not remove cached installer %s: %v", path, err)
	}
}
