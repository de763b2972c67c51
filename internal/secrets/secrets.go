// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys from a directory of plain-text files, with
// environment variables as a fallback. Each file in the directory represents
// one secret: the filename is the key name and the file contents (trimmed)
// are the value.
//
// Supported key files: mistral-api-key, anthropic-api-key, gemini-api-key, tavily-api-key.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Key names recognized by the CLI.
const (
	MistralAPIKey   = "mistral-api-key"
	AnthropicAPIKey = "anthropic-api-key"
	GeminiAPIKey    = "gemini-api-key"
	TavilyAPIKey    = "tavily-api-key"
)

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files produce a warning on stderr but do not abort.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not read secret %s: %v\n", name, err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// Set resolves secrets from loaded files first and the environment second.
type Set struct {
	files  map[string]string
	getenv func(string) string
}

// NewSet wraps a map returned by Load. A nil map is allowed.
func NewSet(files map[string]string) *Set {
	if files == nil {
		files = map[string]string{}
	}
	return &Set{files: files, getenv: os.Getenv}
}

// EnvName maps a key file name to its environment variable,
// e.g. "mistral-api-key" to "MISTRAL_API_KEY".
func EnvName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// Get returns the value for key, or "" when neither source has it.
func (s *Set) Get(key string) string {
	if v, ok := s.files[key]; ok {
		return v
	}
	return strings.TrimSpace(s.getenv(EnvName(key)))
}

// Require returns the value for key or an error naming both places it was looked for.
func (s *Set) Require(key string) (string, error) {
	if v := s.Get(key); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%s not set: add .secrets/%s or export %s", key, key, EnvName(key))
}

// Names returns the sorted names of the file-backed secrets.
func (s *Set) Names() []string {
	keys := make([]string, 0, len(s.files))
	for k := range s.files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
