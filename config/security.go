package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	maxConfigSize = 10 << 20 // 10MB
	maxDepth      = 100
	maxEnvVarLen  = 10000
	maxPathLen    = 4096
)

// format is the syntax of a pipeline file, chosen by extension
type format int

const (
	formatJSON format = iota
	formatYAML
)

func formatOf(path string) (format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return formatJSON, nil
	case ".yaml", ".yml":
		return formatYAML, nil
	default:
		return 0, fmt.Errorf("unsupported config file extension: %s", path)
	}
}

// validateConfigPath does basic path validation
func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("empty config path")
	}
	if len(path) > maxPathLen {
		return fmt.Errorf("path too long: %d > %d", len(path), maxPathLen)
	}

	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("cannot resolve absolute path: %w", err)
	}

	// Relative paths must stay inside the working directory
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("cannot get working directory: %w", err)
		}
		relPath, err := filepath.Rel(cwd, absPath)
		if err != nil || strings.HasPrefix(relPath, "..") {
			return fmt.Errorf("path traversal not allowed: %s resolves outside working directory", path)
		}
	}

	_, err = formatOf(path)
	return err
}

// safeReadFile reads a config file with security validation
func safeReadFile(path string) ([]byte, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot stat config file: %w", err)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes > %d", info.Size(), maxConfigSize)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file: %w", err)
	}
	return data, nil
}

// validateEnvVar does basic environment variable validation
func validateEnvVar(key, value string) error {
	if value == "" {
		return nil
	}
	if len(value) > maxEnvVarLen {
		return fmt.Errorf("environment variable %s too long: %d > %d", key, len(value), maxEnvVarLen)
	}
	if strings.Contains(value, "\x00") {
		return fmt.Errorf("null byte in environment variable %s", key)
	}
	return nil
}

// validateJSONDepth checks nesting depth before the document is decoded
func validateJSONDepth(data []byte) error {
	depth := 0
	inString := false
	escaped := false

	for _, b := range data {
		if escaped {
			escaped = false
			continue
		}
		if b == '\\' && inString {
			escaped = true
			continue
		}
		if b == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch b {
		case '{', '[':
			depth++
			if depth > maxDepth {
				return fmt.Errorf("JSON nesting too deep: %d > %d", depth, maxDepth)
			}
		case '}', ']':
			depth--
			if depth < 0 {
				return errors.New("malformed JSON: unbalanced brackets")
			}
		}
	}

	if depth != 0 {
		return fmt.Errorf("malformed JSON: unclosed brackets (depth=%d)", depth)
	}
	return nil
}

// validateValueDepth checks nesting depth of an already decoded YAML document, whose
// block syntax has no brackets to count
func validateValueDepth(v any, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("YAML nesting too deep: > %d", maxDepth)
	}
	switch t := v.(type) {
	case map[string]any:
		for _, child := range t {
			if err := validateValueDepth(child, depth+1); err != nil {
				return err
			}
		}
	case []any:
		for _, child := range t {
			if err := validateValueDepth(child, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}
