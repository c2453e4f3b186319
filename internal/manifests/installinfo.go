package manifests

import (
	"strings"

	"gomunki/pkg/plist"
)

// InstallInfo accumulates the resolved actions of a run. It is mutated only
// by the resolver; the executor and the pending-update tracker consume it
// read-only.
type InstallInfo struct {
	ManagedInstalls  []plist.Dict
	Removals         []plist.Dict
	OptionalInstalls []plist.Dict
	FeaturedItems    []string
	ProblemItems     []plist.Dict

	featuredSeen       map[string]bool
	processedInstalls  map[string]bool
	processedRemovals  map[string]bool
	processedOptionals map[string]bool
}

// NewInstallInfo returns an empty accumulator.
func NewInstallInfo() *InstallInfo {
	return &InstallInfo{
		featuredSeen:       map[string]bool{},
		processedInstalls:  map[string]bool{},
		processedRemovals:  map[string]bool{},
		processedOptionals: map[string]bool{},
	}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// AddFeatured merges a featured item, deduplicating by name.
func (ii *InstallInfo) AddFeatured(name string) {
	key := normalizeName(name)
	if key == "" || ii.featuredSeen[key] {
		return
	}
	ii.featuredSeen[key] = true
	ii.FeaturedItems = append(ii.FeaturedItems, name)
}

func (ii *InstallInfo) markInstallProcessed(name string) bool {
	key := normalizeName(name)
	if ii.processedInstalls[key] {
		return false
	}
	ii.processedInstalls[key] = true
	return true
}

func (ii *InstallInfo) markRemovalProcessed(name string) bool {
	key := normalizeName(name)
	if ii.processedRemovals[key] {
		return false
	}
	ii.processedRemovals[key] = true
	return true
}

func (ii *InstallInfo) markOptionalProcessed(name string) bool {
	key := normalizeName(name)
	if ii.processedOptionals[key] {
		return false
	}
	ii.processedOptionals[key] = true
	return true
}

// AddProblem records an item that could not be resolved or downloaded.
func (ii *InstallInfo) AddProblem(name, detail string) {
	ii.ProblemItems = append(ii.ProblemItems, plist.Dict{
		"name":   name,
		"note":   detail,
		"status": int64(-1),
	})
}

// ToDict serializes the accumulator into the InstallInfo document layout.
func (ii *InstallInfo) ToDict() plist.Dict {
	doc := plist.Dict{
		"managed_installs":  dictArray(ii.ManagedInstalls),
		"removals":          dictArray(ii.Removals),
		"optional_installs": dictArray(ii.OptionalInstalls),
		"problem_items":     dictArray(ii.ProblemItems),
	}
	featured := make(plist.Array, len(ii.FeaturedItems))
	for i, name := range ii.FeaturedItems {
		featured[i] = name
	}
	doc["featured_items"] = featured
	return doc
}

// WriteFile persists the document atomically.
func (ii *InstallInfo) WriteFile(path string) error {
	return plist.WriteFile(path, ii.ToDict())
}

func dictArray(items []plist.Dict) plist.Array {
	arr := make(plist.Array, len(items))
	for i, item := range items {
		arr[i] = item
	}
	return arr
}
