package config

import (
	"os"
	"strings"
)

const (
	WipeScopeUser     = "user"
	WipeScopeBusiness = "business"
)

// PayItemWipeScope controls which pay items a sync run clears for a user before writing the partner's records.
//
// Set via env:
// - PAYITEM_SYNC_WIPE_SCOPE=user      every pay item the user owns, across all businesses (default)
// - PAYITEM_SYNC_WIPE_SCOPE=business  only the pay items under the business being synced
func PayItemWipeScope() string {
	if strings.EqualFold(strings.TrimSpace(os.Getenv("PAYITEM_SYNC_WIPE_SCOPE")), WipeScopeBusiness) {
		return WipeScopeBusiness
	}
	return WipeScopeUser
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
