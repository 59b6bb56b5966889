package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dyike/ThesisGo/internal/logger"
)

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SafePathSegment turns free text such as a company name into a single
// directory name.
func SafePathSegment(s string) string {
	s = unsafePathChars.ReplaceAllString(strings.TrimSpace(s), "_")
	s = strings.Trim(s, "._")
	if s == "" {
		return "unnamed"
	}
	return s
}

func WriteMarkdown(dir, fileName, content string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, fileName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}
	logger.Get().Debugf("[Report] written to: %s", path)
	return nil
}
