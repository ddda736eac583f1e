package core

import "strings"

// DisplayName returns the label used for a in reports: the nickname when one
// is set, otherwise the canonical name.
func DisplayName(a Admin) string {
	if nick := strings.TrimSpace(a.Nickname); nick != "" {
		return nick
	}
	return a.Name
}

// DisplayName is a convenience wrapper around the package-level DisplayName.
func (a Admin) DisplayName() string {
	return DisplayName(a)
}
