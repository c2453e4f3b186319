package pending

import (
	"time"

	"gomunki/pkg/plist"
)

// soonWindow is how far ahead a deadline still counts as coming up soon.
const soonWindow = 4 * time.Hour

// normalizeForceInstallDate converts a stored force_install_after_date, a
// naive wall-clock instant serialized as UTC, into the corresponding local
// instant by subtracting the local zone offset.
func normalizeForceInstallDate(raw time.Time) time.Time {
	_, offset := raw.In(time.Local).Zone()
	return raw.Add(-time.Duration(offset) * time.Second)
}

// ForceInstallPackageCheck scans pending items for forced-install deadlines
// and reports the most severe status found. The managed installs are always
// consulted; the Apple updates only when Apple installation is enabled.
//
// Items past their deadline with no RestartAction and no unattended_install
// flag are flipped to unattended and the document is written back.
func (t *Tracker) ForceInstallPackageCheck(appleEnabled bool) ForceInstallStatus {
	sources := []struct {
		path string
		key  string
	}{
		{t.Paths.InstallInfoFile, categoryInstalls},
	}
	if appleEnabled {
		sources = append(sources, struct {
			path string
			key  string
		}{t.Paths.AppleUpdatesFile, categoryApple})
	}

	result := StatusNone
	for _, source := range sources {
		doc, err := plist.ReadFile(source.path)
		if err != nil {
			continue
		}
		result = t.checkDocument(doc, source.path, source.key, result)
	}
	return result
}

func (t *Tracker) checkDocument(doc plist.Dict, path, key string, result ForceInstallStatus) ForceInstallStatus {
	items := doc.DictSlice(key)
	if len(items) == 0 {
		return result
	}

	now := nowFunc()
	dirty := false
	rebuilt := make(plist.Array, len(items))

	for i, item := range items {
		rebuilt[i] = item

		raw, ok := item.Date("force_install_after_date")
		if !ok {
			continue
		}
		deadline := normalizeForceInstallDate(raw)

		if !now.Before(deadline) {
			result = result.Max(StatusNow)
			switch item.StringDefault("RestartAction", "") {
			case "RequireLogout":
				result = result.Max(StatusLogout)
			case "RequireRestart", "RecommendRestart":
				result = result.Max(StatusRestart)
			case "":
				if _, has := item["unattended_install"]; !has {
					flipped := item.Clone()
					flipped["unattended_install"] = true
					rebuilt[i] = flipped
					dirty = true
				}
			}
			continue
		}

		if result == StatusNone && !now.Add(soonWindow).Before(deadline) {
			result = StatusSoon
		}
	}

	if dirty {
		updated := doc.Clone()
		updated[key] = rebuilt
		if err := plist.WriteFile(path, updated); err != nil {
			t.log.Errorf("writing back %s after unattended flip: %v", path, err)
		}
	}
	return result
}
