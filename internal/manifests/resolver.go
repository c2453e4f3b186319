// Package manifests resolves the manifest hierarchy into install and removal
// actions. Resolution walks included manifests depth-first, evaluates
// conditional subtrees, and hands item names to the per-selector processors.
package manifests

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"gomunki/internal/catalogs"
	"gomunki/internal/conditions"
	"gomunki/internal/fetch"
	"gomunki/internal/logx"
	"gomunki/internal/stop"
	"gomunki/pkg/plist"
)

// Selector names the manifest list a resolution pass flattens.
type Selector string

const (
	SelectorManagedInstalls   Selector = "managed_installs"
	SelectorManagedUpdates    Selector = "managed_updates"
	SelectorOptionalInstalls  Selector = "optional_installs"
	SelectorManagedUninstalls Selector = "managed_uninstalls"
	SelectorDefaultInstalls   Selector = "default_installs"
	SelectorFeaturedItems     Selector = "featured_items"
)

// Stubbed in tests.
var (
	hostname     = os.Hostname
	serialNumber = conditions.SerialNumber
)

// Resolver drives manifest resolution for one run.
type Resolver struct {
	Fetcher   *fetch.Service
	Catalogs  *catalogs.Store
	Table     *Table
	Facts     conditions.Facts
	FetchOpts fetch.Options

	// ClientIdentifier, when set, names the primary manifest explicitly.
	ClientIdentifier string

	log *logrus.Entry
}

// NewResolver wires a resolver from its collaborators.
func NewResolver(fetcher *fetch.Service, store *catalogs.Store, facts conditions.Facts, opts fetch.Options) *Resolver {
	return &Resolver{
		Fetcher:   fetcher,
		Catalogs:  store,
		Table:     NewTable(),
		Facts:     facts,
		FetchOpts: opts,
		log:       logx.Component("manifests"),
	}
}

// getManifest fetches a manifest by name, memoizing through the
// active-manifest table, and validates that it parses.
func (r *Resolver) getManifest(ctx context.Context, name string) (string, error) {
	if path, ok := r.Table.Get(name); ok {
		return path, nil
	}
	path, err := r.Fetcher.Manifest(ctx, name, r.FetchOpts)
	if err != nil {
		return "", err
	}
	if _, err := plist.ReadFile(path); err != nil {
		return "", fmt.Errorf("manifest %s: %w", name, err)
	}
	r.Table.Add(name, path)
	return path, nil
}

// PrimaryManifest discovers and fetches the primary manifest. With no
// explicit client identifier it tries the fully-qualified hostname, the
// short hostname, the machine serial number, and finally site_default; a
// not-retrieved failure steps to the next candidate, and only the final
// candidate's failure is fatal.
func (r *Resolver) PrimaryManifest(ctx context.Context) (name, path string, err error) {
	if r.ClientIdentifier != "" {
		path, err = r.getManifest(ctx, r.ClientIdentifier)
		return r.ClientIdentifier, path, err
	}

	var candidates []string
	if fqdn, herr := hostname(); herr == nil && fqdn != "" {
		candidates = append(candidates, fqdn)
		if short, _, found := strings.Cut(fqdn, "."); found && short != fqdn {
			candidates = append(candidates, short)
		}
	}
	if serial := serialNumber(); serial != "" {
		candidates = append(candidates, serial)
	}
	candidates = append(candidates, "site_default")

	for i, candidate := range candidates {
		r.log.Debugf("trying primary manifest %s", candidate)
		path, err = r.getManifest(ctx, candidate)
		if err == nil {
			return candidate, path, nil
		}
		if i < len(candidates)-1 && fetch.NotRetrieved(err) {
			continue
		}
		return "", "", fmt.Errorf("primary manifest %s: %w", candidate, err)
	}
	// Unreachable: the loop always returns on the last candidate.
	return "", "", err
}

// Resolve processes one manifest file for the given selector, accumulating
// into ii. parentCatalogs carries the inherited catalog set.
func (r *Resolver) Resolve(ctx context.Context, manifestPath string, selector Selector, parentCatalogs []string, ii *InstallInfo) error {
	if stop.Requested() {
		return nil
	}

	manifest, err := plist.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("read manifest %s: %w", manifestPath, err)
	}
	return r.resolveDict(ctx, manifest, manifestPath, selector, parentCatalogs, ii)
}

// resolveDict handles both file-backed manifests and the embedded manifests
// inside conditional_items.
func (r *Resolver) resolveDict(ctx context.Context, manifest plist.Dict, source string, selector Selector, parentCatalogs []string, ii *InstallInfo) error {
	if stop.Requested() {
		return nil
	}

	catalogList := manifest.StringSlice("catalogs")
	if len(catalogList) == 0 {
		catalogList = parentCatalogs
	}
	if len(catalogList) == 0 {
		r.log.Warnf("manifest %s has no catalogs and no inherited catalogs; ignoring", source)
		return nil
	}

	for _, included := range manifest.StringSlice("included_manifests") {
		if stop.Requested() {
			return nil
		}
		if included == "" {
			continue
		}
		path, err := r.getManifest(ctx, included)
		if err != nil {
			return fmt.Errorf("included manifest %s: %w", included, err)
		}
		if err := r.Resolve(ctx, path, selector, catalogList, ii); err != nil {
			return err
		}
	}

	for _, entry := range manifest.DictSlice("conditional_items") {
		if stop.Requested() {
			return nil
		}
		condition, ok := entry.String("condition")
		if !ok || condition == "" {
			r.log.Warnf("conditional item in %s has no condition; skipping", source)
			continue
		}
		if !r.conditionHolds(condition, catalogList, source) {
			continue
		}
		if err := r.resolveDict(ctx, entry, source, selector, catalogList, ii); err != nil {
			return err
		}
	}

	return r.applySelector(ctx, manifest, selector, catalogList, ii)
}

func (r *Resolver) conditionHolds(condition string, catalogList []string, source string) bool {
	facts := make(conditions.Facts, len(r.Facts)+1)
	for k, v := range r.Facts {
		facts[k] = v
	}
	facts["catalogs"] = catalogList

	ok, err := conditions.Evaluate(condition, facts)
	if err != nil {
		r.log.Warnf("condition in %s did not evaluate: %v", source, err)
		return false
	}
	return ok
}

func (r *Resolver) applySelector(ctx context.Context, manifest plist.Dict, selector Selector, catalogList []string, ii *InstallInfo) error {
	names := manifest.StringSlice(string(selector))

	switch selector {
	case SelectorFeaturedItems:
		for _, name := range names {
			ii.AddFeatured(name)
		}
		return nil
	case SelectorDefaultInstalls:
		for _, name := range names {
			if name == "" {
				continue
			}
			if err := r.processOptionalInstall(ctx, name, catalogList, ii, true); err != nil {
				return err
			}
		}
		return nil
	}

	for _, name := range names {
		if stop.Requested() {
			return nil
		}
		if name == "" {
			continue
		}
		var err error
		switch selector {
		case SelectorManagedInstalls:
			err = r.processInstall(ctx, name, catalogList, ii)
		case SelectorManagedUpdates:
			err = r.processManagedUpdate(ctx, name, catalogList, ii)
		case SelectorOptionalInstalls:
			err = r.processOptionalInstall(ctx, name, catalogList, ii, false)
		case SelectorManagedUninstalls:
			err = r.processRemoval(ctx, name, catalogList, ii)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ResolveSelfServe merges the local self-serve manifest, whose chosen items
// are processed as installs against the primary manifest's catalogs.
func (r *Resolver) ResolveSelfServe(ctx context.Context, selfServePath string, parentCatalogs []string, ii *InstallInfo) error {
	if _, err := os.Stat(selfServePath); err != nil {
		return nil
	}
	r.log.Debugf("processing self-serve manifest %s", selfServePath)
	return r.Resolve(ctx, selfServePath, SelectorManagedInstalls, parentCatalogs, ii)
}
