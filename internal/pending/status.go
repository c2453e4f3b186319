// Package pending tracks updates that have been offered but not yet
// installed: first-seen timestamps per item, age calculations, and the
// escalation status of forced-install deadlines.
package pending

// ForceInstallStatus ranks how urgently a forced install is due. The values
// are ordered; combining two statuses keeps the more severe one.
type ForceInstallStatus int

const (
	StatusNone ForceInstallStatus = iota
	StatusSoon
	StatusNow
	StatusLogout
	StatusRestart
)

func (s ForceInstallStatus) String() string {
	switch s {
	case StatusSoon:
		return "soon"
	case StatusNow:
		return "now"
	case StatusLogout:
		return "logout"
	case StatusRestart:
		return "restart"
	default:
		return "none"
	}
}

// Max returns the more severe of the two statuses.
func (s ForceInstallStatus) Max(other ForceInstallStatus) ForceInstallStatus {
	if other > s {
		return other
	}
	return s
}
