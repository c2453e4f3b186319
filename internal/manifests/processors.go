package manifests

import (
	"context"
	"errors"
	"path/filepath"

	"gomunki/internal/catalogs"
	"gomunki/internal/display"
	"gomunki/pkg/plist"
)

// recordKeys are the pkginfo fields carried into an install-info record.
var recordKeys = []string{
	"name",
	"display_name",
	"description",
	"installer_type",
	"installer_item_hash",
	"installer_item_size",
	"installs",
	"items_to_copy",
	"RestartAction",
	"force_install_after_date",
	"unattended_install",
	"blocking_applications",
	"preinstall_script",
	"postinstall_script",
	"minimum_os_version",
	"uninstall_method",
}

func installRecord(item plist.Dict) plist.Dict {
	record := plist.Dict{}
	for _, key := range recordKeys {
		if value, ok := item[key]; ok {
			record[key] = value
		}
	}
	if version, ok := item.String("version"); ok {
		record["version_to_install"] = version
	}
	if location, ok := item.String("installer_item_location"); ok {
		record["installer_item"] = location
	}
	return record
}

func (r *Resolver) lookupItem(ctx context.Context, name string, catalogList []string, ii *InstallInfo) (plist.Dict, bool, error) {
	item, err := r.Catalogs.BestItem(ctx, name, catalogList)
	if err != nil {
		var notFound *catalogs.ItemNotFoundError
		if errors.As(err, &notFound) {
			r.log.Warnf("could not process item %s: no pkginfo found in catalogs %v", name, catalogList)
			ii.AddProblem(name, "no pkginfo found in catalogs")
			return nil, false, nil
		}
		return nil, false, err
	}
	return item, true, nil
}

func (r *Resolver) processInstall(ctx context.Context, name string, catalogList []string, ii *InstallInfo) error {
	if !ii.markInstallProcessed(name) {
		return nil
	}
	item, found, err := r.lookupItem(ctx, name, catalogList, ii)
	if err != nil || !found {
		return err
	}

	record := installRecord(item)
	if isInstalled(item) {
		display.Detail("%s version %s is already installed", name, record.StringDefault("version_to_install", "?"))
		record["installed"] = true
		ii.ManagedInstalls = append(ii.ManagedInstalls, record)
		return nil
	}
	record["installed"] = false

	if err := r.downloadPayload(ctx, name, item, record, ii); err != nil {
		return err
	}
	if _, ok := record["installer_item"]; !ok {
		return nil
	}
	ii.ManagedInstalls = append(ii.ManagedInstalls, record)
	return nil
}

// downloadPayload fetches the installer item into the cache. Download
// failures are per-item problems, not fatal to the run; the record's
// installer_item key is left unset on failure.
func (r *Resolver) downloadPayload(ctx context.Context, name string, item, record plist.Dict, ii *InstallInfo) error {
	location, ok := item.String("installer_item_location")
	if !ok || location == "" {
		r.log.Warnf("item %s has no installer_item_location", name)
		ii.AddProblem(name, "no installer item location in pkginfo")
		delete(record, "installer_item")
		return nil
	}

	hash, _ := item.String("installer_item_hash")
	display.MinorStatus("Downloading %s", record.StringDefault("display_name", name))
	_, dest, err := r.Fetcher.Package(ctx, location, hash, r.FetchOpts)
	if err != nil {
		r.log.Errorf("download of %s failed: %v", name, err)
		ii.AddProblem(name, "download failed: "+err.Error())
		delete(record, "installer_item")
		return nil
	}
	record["installer_item"] = filepath.Base(dest)
	return nil
}

// processManagedUpdate acts only when some version of the item is present;
// an absent item is left alone, an outdated one is treated as an install.
func (r *Resolver) processManagedUpdate(ctx context.Context, name string, catalogList []string, ii *InstallInfo) error {
	if !ii.markInstallProcessed(name) {
		return nil
	}
	item, found, err := r.lookupItem(ctx, name, catalogList, ii)
	if err != nil || !found {
		return err
	}
	if !someVersionInstalled(item) {
		display.Detail("%s is not installed; no update needed", name)
		return nil
	}
	if isInstalled(item) {
		return nil
	}

	record := installRecord(item)
	record["installed"] = false
	if err := r.downloadPayload(ctx, name, item, record, ii); err != nil {
		return err
	}
	if _, ok := record["installer_item"]; !ok {
		return nil
	}
	ii.ManagedInstalls = append(ii.ManagedInstalls, record)
	return nil
}

// processOptionalInstall records an item offered for self-service. Payloads
// are not downloaded until the item is chosen.
func (r *Resolver) processOptionalInstall(ctx context.Context, name string, catalogList []string, ii *InstallInfo, isDefault bool) error {
	if !ii.markOptionalProcessed(name) {
		return nil
	}
	item, found, err := r.lookupItem(ctx, name, catalogList, ii)
	if err != nil || !found {
		return err
	}

	record := installRecord(item)
	record["installed"] = isInstalled(item)
	if isDefault {
		record["default_install"] = true
	}
	ii.OptionalInstalls = append(ii.OptionalInstalls, record)
	return nil
}

func (r *Resolver) processRemoval(ctx context.Context, name string, catalogList []string, ii *InstallInfo) error {
	if !ii.markRemovalProcessed(name) {
		return nil
	}
	item, found, err := r.lookupItem(ctx, name, catalogList, ii)
	if err != nil || !found {
		return err
	}
	if !someVersionInstalled(item) {
		display.Detail("%s is not installed; no removal needed", name)
		return nil
	}

	record := plist.Dict{
		"name":      name,
		"installed": true,
	}
	for _, key := range []string{"display_name", "uninstall_method", "installs", "items_to_copy", "RestartAction", "blocking_applications", "preuninstall_script", "postuninstall_script"} {
		if value, ok := item[key]; ok {
			record[key] = value
		}
	}
	if version, ok := item.String("version"); ok {
		record["installed_version"] = version
	}
	ii.Removals = append(ii.Removals, record)
	return nil
}
