package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// projectFiles are the top-level entries Initialize creates
func projectFiles() []string {
	return []string{"seller.yml", "buyer.toml", "offer.json", PoliciesDir}
}

// CheckExisting returns an error naming every project file already present in dir
func CheckExisting(dir string) error {
	var existing []string
	for _, name := range projectFiles() {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if info.IsDir() {
			name += "/"
		}
		existing = append(existing, name)
	}

	switch len(existing) {
	case 0:
		return nil
	case 1:
		return fmt.Errorf("project already initialized\n\nFound existing: %s\n\nUse 'parley init --force' to reinitialize (this will overwrite existing configuration)", existing[0])
	default:
		return fmt.Errorf("project already initialized\n\nFound existing files:\n  - %s\n\nUse 'parley init --force' to reinitialize (this will overwrite existing configuration)",
			strings.Join(existing, "\n  - "))
	}
}
