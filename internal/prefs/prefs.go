// Package prefs loads the ManagedInstalls preference domain. Preferences live
// in a property-list file; administrators may also drop a YAML overlay next to
// it which is merged over the plist values.
package prefs

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"gomunki/pkg/plist"
)

// DefaultPath is the standard location of the preference domain.
const DefaultPath = "/Library/Preferences/ManagedInstalls.plist"

// Redirect policies for the fetcher.
const (
	RedirectsNone  = "none"
	RedirectsHTTPS = "https"
	RedirectsAll   = "all"
)

// Preferences holds the configurable behaviour of the agent.
type Preferences struct {
	SoftwareRepoURL   string
	ClientIdentifier  string
	ManagedInstallDir string

	InstallAppleSoftwareUpdates bool
	AppleSoftwareUpdatesOnly    bool
	DaysBetweenNotifications    int
	ScriptTimeoutSeconds        int

	UseClientCertificate                     bool
	UseClientCertificateCNAsClientIdentifier bool

	FollowHTTPRedirects   string
	AdditionalHTTPHeaders []string

	// Path of the plist file the preferences were loaded from; persistent
	// state keys are written back here.
	path string
}

// Default returns the baseline preferences.
func Default() Preferences {
	return Preferences{
		SoftwareRepoURL:          "http://munki/repo",
		ManagedInstallDir:        "",
		DaysBetweenNotifications: 1,
		FollowHTTPRedirects:      RedirectsNone,
	}
}

// Load reads the plist preference domain at path (missing file means
// defaults) and merges the YAML overlay at overlayPath when present.
func Load(path, overlayPath string) (Preferences, error) {
	p := Default()
	p.path = path

	doc, err := plist.ReadFile(path)
	if err != nil {
		var notFound *plist.NotFoundError
		if !errors.As(err, &notFound) {
			return Preferences{}, fmt.Errorf("read preferences: %w", err)
		}
	} else {
		p.applyDict(doc)
	}

	if overlayPath != "" {
		if err := p.applyOverlay(overlayPath); err != nil {
			return Preferences{}, err
		}
	}
	return p, nil
}

func (p *Preferences) applyDict(doc plist.Dict) {
	if v, ok := doc.String("SoftwareRepoURL"); ok {
		p.SoftwareRepoURL = v
	}
	if v, ok := doc.String("ClientIdentifier"); ok {
		p.ClientIdentifier = v
	}
	if v, ok := doc.String("ManagedInstallDir"); ok {
		p.ManagedInstallDir = v
	}
	if v, ok := doc.Bool("InstallAppleSoftwareUpdates"); ok {
		p.InstallAppleSoftwareUpdates = v
	}
	if v, ok := doc.Bool("AppleSoftwareUpdatesOnly"); ok {
		p.AppleSoftwareUpdatesOnly = v
	}
	if v, ok := doc.Int("DaysBetweenNotifications"); ok {
		p.DaysBetweenNotifications = int(v)
	}
	if v, ok := doc.Int("ScriptTimeoutSeconds"); ok {
		p.ScriptTimeoutSeconds = int(v)
	}
	if v, ok := doc.Bool("UseClientCertificate"); ok {
		p.UseClientCertificate = v
	}
	if v, ok := doc.Bool("UseClientCertificateCNAsClientIdentifier"); ok {
		p.UseClientCertificateCNAsClientIdentifier = v
	}
	if v, ok := doc.String("FollowHTTPRedirects"); ok {
		p.FollowHTTPRedirects = v
	}
	if headers := doc.StringSlice("AdditionalHttpHeaders"); len(headers) > 0 {
		p.AdditionalHTTPHeaders = headers
	}
}

// overlay mirrors Preferences with pointer fields so the YAML file only
// overrides what it mentions.
type overlay struct {
	SoftwareRepoURL             *string  `yaml:"software_repo_url"`
	ClientIdentifier            *string  `yaml:"client_identifier"`
	ManagedInstallDir           *string  `yaml:"managed_install_dir"`
	InstallAppleSoftwareUpdates *bool    `yaml:"install_apple_software_updates"`
	AppleSoftwareUpdatesOnly    *bool    `yaml:"apple_software_updates_only"`
	DaysBetweenNotifications    *int     `yaml:"days_between_notifications"`
	ScriptTimeoutSeconds        *int     `yaml:"script_timeout_seconds"`
	FollowHTTPRedirects         *string  `yaml:"follow_http_redirects"`
	AdditionalHTTPHeaders       []string `yaml:"additional_http_headers"`
}

func (p *Preferences) applyOverlay(path string) error {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read preferences overlay: %w", err)
	}

	var o overlay
	if err := yaml.Unmarshal(contents, &o); err != nil {
		return fmt.Errorf("unmarshal preferences overlay: %w", err)
	}

	if o.SoftwareRepoURL != nil {
		p.SoftwareRepoURL = *o.SoftwareRepoURL
	}
	if o.ClientIdentifier != nil {
		p.ClientIdentifier = *o.ClientIdentifier
	}
	if o.ManagedInstallDir != nil {
		p.ManagedInstallDir = *o.ManagedInstallDir
	}
	if o.InstallAppleSoftwareUpdates != nil {
		p.InstallAppleSoftwareUpdates = *o.InstallAppleSoftwareUpdates
	}
	if o.AppleSoftwareUpdatesOnly != nil {
		p.AppleSoftwareUpdatesOnly = *o.AppleSoftwareUpdatesOnly
	}
	if o.DaysBetweenNotifications != nil {
		p.DaysBetweenNotifications = *o.DaysBetweenNotifications
	}
	if o.ScriptTimeoutSeconds != nil {
		p.ScriptTimeoutSeconds = *o.ScriptTimeoutSeconds
	}
	if o.FollowHTTPRedirects != nil {
		p.FollowHTTPRedirects = *o.FollowHTTPRedirects
	}
	if len(o.AdditionalHTTPHeaders) > 0 {
		p.AdditionalHTTPHeaders = o.AdditionalHTTPHeaders
	}
	return nil
}

// SetState writes persistent state keys (LastCheckDate, PendingUpdateCount,
// and friends) back into the preference domain. The read-modify-write cycle
// is atomic at the file level.
func (p Preferences) SetState(values plist.Dict) error {
	if p.path == "" {
		return errors.New("preferences not bound to a file")
	}
	doc, err := plist.ReadFile(p.path)
	if err != nil {
		var notFound *plist.NotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read preferences for update: %w", err)
		}
		doc = plist.Dict{}
	}
	for k, v := range values {
		doc[k] = v
	}
	return plist.WriteFile(p.path, doc)
}

// State reads a persistent state value from the preference domain.
func (p Preferences) State(key string) (any, bool) {
	if p.path == "" {
		return nil, false
	}
	doc, err := plist.ReadFile(p.path)
	if err != nil {
		return nil, false
	}
	v, ok := doc[key]
	return v, ok
}
