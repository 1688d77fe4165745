package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

func GetRandomUserAgent() string {
	return userAgents[time.Now().UnixNano()%int64(len(userAgents))]
}

// SanitizeFileName strips characters that are illegal in file names or paths
// on any supported OS, then trims trailing dots and spaces. Applying it to an
// already clean name returns the name unchanged.
func SanitizeFileName(name string) string {
	name = invalidNameChars.ReplaceAllString(name, "")
	name = trailingDotsSpaces.ReplaceAllString(name, "")
	return strings.TrimLeft(name, " ")
}

// RenewOutputPath returns the first "name-(n).ext" sibling that neither exists
// on disk nor is in reserved.
func RenewOutputPath(outputPath string, reserved map[string]bool) string {
	dir := filepath.Dir(outputPath)
	base := filepath.Base(outputPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	index := 1
	for {
		outputPath = filepath.Join(dir, fmt.Sprintf("%s-(%d)%s", name, index, ext))
		if _, err := os.Stat(outputPath); os.IsNotExist(err) && !reserved[outputPath] {
			return outputPath
		}
		index++
	}
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func ParseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			result[key] = value
		}
	}
	return result
}
