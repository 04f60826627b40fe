package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultDBDir is used when no volume is mounted.
const DefaultDBDir = ".data/xmtp"

// DBDir returns the directory holding client databases.
//
// Order:
// - RAILWAY_VOLUME_MOUNT_PATH
// - DefaultDBDir (relative to the working directory)
func DBDir() string {
	if d := strings.TrimSpace(os.Getenv("RAILWAY_VOLUME_MOUNT_PATH")); d != "" {
		return d
	}
	return DefaultDBDir
}

// DBPath is the database file for one inbox on one network env.
func DBPath(dir, env, inboxID string) string {
	return filepath.Join(dir, fmt.Sprintf("xmtp-%s-%s.db3", env, inboxID))
}

// HasDBFiles reports whether dir contains at least one *.db3 file.
func HasDBFiles(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".db3") {
			return true
		}
	}
	return false
}
