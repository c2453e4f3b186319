package pending

import (
	"time"

	"github.com/sirupsen/logrus"

	"gomunki/internal/logx"
	"gomunki/internal/paths"
	"gomunki/pkg/plist"
)

// Stubbed in tests.
var nowFunc = time.Now

// Tracker owns the on-disk pending-update state: the notification-tracking
// document (category -> name -> firstSeen) and the Apple-history document
// (productKey -> firstSeen/displayName/version). Nothing else writes these
// files.
type Tracker struct {
	Paths paths.InstallPaths

	log *logrus.Entry
}

func NewTracker(p paths.InstallPaths) *Tracker {
	return &Tracker{Paths: p, log: logx.Component("pending")}
}

type pendingItem struct {
	name       string
	productKey string
	display    string
	version    string
}

const (
	categoryInstalls = "managed_installs"
	categoryRemovals = "removals"
	categoryApple    = "AppleUpdates"
)

// currentPending collects the (category, name) set from the current
// install-info and Apple-updates documents. Missing or malformed documents
// contribute nothing.
func (t *Tracker) currentPending() map[string][]pendingItem {
	current := map[string][]pendingItem{}

	if info, err := plist.ReadFile(t.Paths.InstallInfoFile); err == nil {
		for _, item := range info.DictSlice(categoryInstalls) {
			if item.BoolDefault("installed", false) {
				continue
			}
			if name, ok := item.String("name"); ok && name != "" {
				current[categoryInstalls] = append(current[categoryInstalls], pendingItem{name: name})
			}
		}
		for _, item := range info.DictSlice(categoryRemovals) {
			if !item.BoolDefault("installed", false) {
				continue
			}
			if name, ok := item.String("name"); ok && name != "" {
				current[categoryRemovals] = append(current[categoryRemovals], pendingItem{name: name})
			}
		}
	}

	if apple, err := plist.ReadFile(t.Paths.AppleUpdatesFile); err == nil {
		for _, item := range apple.DictSlice(categoryApple) {
			name, ok := item.String("name")
			if !ok || name == "" {
				continue
			}
			current[categoryApple] = append(current[categoryApple], pendingItem{
				name:       name,
				productKey: item.StringDefault("productKey", name),
				display:    item.StringDefault("display_name", name),
				version:    item.StringDefault("version_to_install", ""),
			})
		}
	}

	return current
}

// SavePendingUpdateTimes rewrites the tracking document from the current
// pending set. A firstSeen already on record is carried forward; Apple
// updates missing from the record fall back to the Apple-history document,
// which is extended at now for genuinely new products. Anything else is
// stamped now.
func (t *Tracker) SavePendingUpdateTimes() error {
	now := nowFunc().UTC()

	prior, err := plist.ReadFile(t.Paths.TrackingFile)
	if err != nil {
		prior = plist.Dict{}
	}
	history, err := plist.ReadFile(t.Paths.AppleHistoryFile)
	if err != nil {
		history = plist.Dict{}
	}
	historyDirty := false

	doc := plist.Dict{}
	for category, items := range t.currentPending() {
		catDict := plist.Dict{}
		for _, item := range items {
			if seen, ok := priorFirstSeen(prior, category, item.name); ok {
				catDict[item.name] = seen
				continue
			}
			if category == categoryApple {
				record, ok := history.Dict(item.productKey)
				if !ok {
					record = plist.Dict{
						"firstSeen":   now,
						"displayName": item.display,
						"version":     item.version,
					}
					history[item.productKey] = record
					historyDirty = true
				}
				if seen, ok := record.Date("firstSeen"); ok {
					catDict[item.name] = seen
					continue
				}
			}
			catDict[item.name] = now
		}
		doc[category] = catDict
	}

	if historyDirty {
		if err := plist.WriteFile(t.Paths.AppleHistoryFile, history); err != nil {
			return err
		}
	}
	return plist.WriteFile(t.Paths.TrackingFile, doc)
}

func priorFirstSeen(prior plist.Dict, category, name string) (time.Time, bool) {
	catDict, ok := prior.Dict(category)
	if !ok {
		return time.Time{}, false
	}
	return catDict.Date(name)
}

// OldestPendingUpdateInDays reports the age of the oldest pending update. A
// missing or malformed tracking document reads as zero.
func (t *Tracker) OldestPendingUpdateInDays() float64 {
	doc, err := plist.ReadFile(t.Paths.TrackingFile)
	if err != nil {
		return 0
	}

	now := nowFunc().UTC()
	oldest := now
	for category := range doc {
		catDict, ok := doc.Dict(category)
		if !ok {
			continue
		}
		for name := range catDict {
			if seen, ok := catDict.Date(name); ok && seen.Before(oldest) {
				oldest = seen
			}
		}
	}
	return now.Sub(oldest).Hours() / 24
}

// Info is the combined pending-update summary surfaced in the report.
type Info struct {
	InstallCount int
	RemovalCount int
	AppleCount   int
	PendingCount int
	OldestDays   float64

	// ForcedDueDate is the earliest forced-install deadline across all
	// pending items, zero when none carry one.
	ForcedDueDate time.Time
}

// PendingUpdateInfo summarizes the current pending set for reporting.
func (t *Tracker) PendingUpdateInfo() Info {
	var info Info

	if doc, err := plist.ReadFile(t.Paths.InstallInfoFile); err == nil {
		for _, item := range doc.DictSlice(categoryInstalls) {
			if item.BoolDefault("installed", false) {
				continue
			}
			info.InstallCount++
			t.trackForcedDate(&info, item)
		}
		for _, item := range doc.DictSlice(categoryRemovals) {
			if item.BoolDefault("installed", false) {
				info.RemovalCount++
			}
		}
	}
	if doc, err := plist.ReadFile(t.Paths.AppleUpdatesFile); err == nil {
		for _, item := range doc.DictSlice(categoryApple) {
			info.AppleCount++
			t.trackForcedDate(&info, item)
		}
	}

	info.PendingCount = info.InstallCount + info.RemovalCount + info.AppleCount
	info.OldestDays = t.OldestPendingUpdateInDays()
	return info
}

func (t *Tracker) trackForcedDate(info *Info, item plist.Dict) {
	raw, ok := item.Date("force_install_after_date")
	if !ok {
		return
	}
	deadline := normalizeForceInstallDate(raw)
	if info.ForcedDueDate.IsZero() || deadline.Before(info.ForcedDueDate) {
		info.ForcedDueDate = deadline
	}
}
