// Package i18n looks up localized interface strings by key.
package i18n

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/mordilloSan/go_logger/logger"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed strings/*.yaml
var builtin embed.FS

// ErrMissingString is returned when a key exists in no loaded table.
var ErrMissingString = errors.New("missing string")

const placeholder = "{$a}"

var supported = []language.Tag{language.English, language.French}

var matcher = language.NewMatcher(supported)

// Table resolves string keys for one language, falling back to English.
type Table struct {
	mu       sync.RWMutex
	lang     language.Tag
	strings  map[string]string
	fallback map[string]string
}

// New returns a table for the closest supported match of lang (e.g. "fr-CA" → fr).
func New(lang string) (*Table, error) {
	tag := language.English
	if lang != "" {
		requested, err := language.Parse(lang)
		if err != nil {
			return nil, fmt.Errorf("parse language %q: %w", lang, err)
		}
		_, idx, _ := matcher.Match(requested)
		tag = supported[idx]
	}

	fallback, err := loadBuiltin(language.English)
	if err != nil {
		return nil, err
	}
	t := &Table{lang: tag, fallback: fallback, strings: fallback}
	if tag != language.English {
		if t.strings, err = loadBuiltin(tag); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func loadBuiltin(tag language.Tag) (map[string]string, error) {
	base, _ := tag.Base()
	data, err := builtin.ReadFile("strings/" + base.String() + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("builtin strings for %s: %w", tag, err)
	}
	return Parse(data)
}

// Parse decodes a flat YAML mapping of key to string.
func Parse(data []byte) (map[string]string, error) {
	out := map[string]string{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode strings: %w", err)
	}
	return out, nil
}

// LoadOverrides merges the strings in a YAML file over the table's language.
func (t *Table) LoadOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	extra, err := Parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	merged := make(map[string]string, len(t.strings)+len(extra))
	for k, v := range t.strings {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	t.strings = merged
	logger.Infof("Loaded %d string overrides from %s", len(extra), path)
	return nil
}

// Language returns the tag the table serves.
func (t *Table) Language() language.Tag {
	return t.lang
}

// Localize returns the string for key with "{$a}" replaced by the first argument.
func (t *Table) Localize(key string, a ...string) (string, error) {
	t.mu.RLock()
	s, ok := t.strings[key]
	if !ok {
		s, ok = t.fallback[key]
	}
	t.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingString, key)
	}
	if len(a) > 0 {
		s = strings.ReplaceAll(s, placeholder, a[0])
	}
	return s, nil
}
