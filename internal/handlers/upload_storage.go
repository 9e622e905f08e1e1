package handlers

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// safeDeleteUpload removes a stored upload addressed by its public URL path.
// Anything that does not resolve inside <publicDir>/uploads is refused.
func safeDeleteUpload(publicDir, urlPath string) error {
	trimmed := strings.TrimSpace(urlPath)
	if trimmed == "" {
		return nil
	}

	cleanRel := path.Clean("/" + strings.TrimPrefix(trimmed, "/"))
	cleanRel = strings.TrimPrefix(cleanRel, "/")

	if !strings.HasPrefix(cleanRel, "uploads/") {
		return fmt.Errorf("refusing to delete non-upload path: %s", urlPath)
	}

	cleanBase, err := filepath.Abs(publicDir)
	if err != nil {
		return err
	}
	cleanTarget := filepath.Clean(filepath.Join(cleanBase, filepath.FromSlash(cleanRel)))
	if !strings.HasPrefix(cleanTarget, cleanBase+string(os.PathSeparator)) {
		return fmt.Errorf("refusing to delete path outside public root: %s", urlPath)
	}

	if err := os.Remove(cleanTarget); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	return nil
}
