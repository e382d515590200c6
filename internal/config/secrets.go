package config

import (
	"fmt"
	"os"
	"strings"
)

// getEnv retrieves an environment variable value.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrFile returns the contents of the file named by fileKey when set
// (Docker secrets pattern), otherwise the value of directKey. File contents
// are trimmed. An unreadable file is an error rather than a silent fallback.
func getEnvOrFile(directKey, fileKey string) (string, error) {
	if path := os.Getenv(fileKey); path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading secret file: %w", err)
		}
		return strings.TrimSpace(string(content)), nil
	}
	return os.Getenv(directKey), nil
}

// getEnvWithFileFallback reads prefix+key, honoring prefix+key+"_FILE".
func getEnvWithFileFallback(prefix, key string) (string, error) {
	return getEnvOrFile(prefix+key, prefix+key+"_FILE")
}

// parseBool parses a boolean string, returning defaultValue on parse failure.
// Accepts: true/false, 1/0, yes/no, on/off (case-insensitive).
func parseBool(s string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return defaultValue
	}
}

// splitList splits a comma separated list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
