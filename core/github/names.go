package github

import (
	"strings"

	"release-sync/core/reconcile"
)

var _ reconcile.AssetNamer = (*Service)(nil)

// NormalizeAssetName returns the name GitHub stores for an upload named name.
func (s *Service) NormalizeAssetName(name string) string {
	return AssetName(name)
}

// AssetName applies GitHub's asset file name rules: every run of characters outside
// [A-Za-z0-9._+-] becomes a single period unless a period is already adjacent, and
// leading or trailing periods are dropped.
// A name with nothing left becomes "default".
func AssetName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	pending, lastDot := false, false
	for _, r := range name {
		if !allowedInAssetName(r) {
			pending = true
			continue
		}
		if pending && r != '.' && !lastDot {
			b.WriteByte('.')
		}
		pending = false
		lastDot = r == '.'
		b.WriteRune(r)
	}

	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "default"
	}
	return out
}

func allowedInAssetName(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.', r == '-', r == '_', r == '+':
		return true
	default:
		return false
	}
}
