package volume

import (
	"regexp"
	"strings"
)

var backupSuffix = regexp.MustCompile(`-backup-\d+$`)

// IsReservedName reports whether a file name is produced by the store
// engine or the recovery/health machinery rather than being a tenant
// byte file - forensic backups, engine backup/journal files, and
// volume health probes. Both the
// corruption-recovery scan and the reconciler's junk/orphan sweeps
// exclude these by this one filter so the two stay consistent.
func IsReservedName(name string) bool {
	switch {
	case strings.HasPrefix(name, ".health-"):
		return true
	case strings.Contains(name, ".corrupted."):
		return true
	case strings.HasSuffix(name, "-journal"):
		return true
	case strings.HasSuffix(name, ".compact.tmp"):
		return true
	case backupSuffix.MatchString(name):
		return true
	default:
		return false
	}
}
