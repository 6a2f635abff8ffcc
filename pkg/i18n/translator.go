// Package i18n is a pure lookup table for user-facing strings. Domain
// code works with canonical keys and English fallbacks; a language
// bundle is a flat yaml map of key to translated string.
package i18n

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Translator resolves message keys against a loaded bundle.
type Translator struct {
	messages map[string]string
}

// Load reads a yaml bundle from disk.
func Load(path string) (*Translator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read language bundle: %w", err)
	}

	messages := make(map[string]string)
	if err := yaml.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to parse language bundle %s: %w", path, err)
	}
	return &Translator{messages: messages}, nil
}

// Nop returns a translator that always answers with the fallback.
func Nop() *Translator {
	return &Translator{messages: map[string]string{}}
}

// Get returns the translation for key, or fallback when the bundle has
// no entry. No side effects.
func (t *Translator) Get(key, fallback string) string {
	if msg, ok := t.messages[key]; ok && msg != "" {
		return msg
	}
	return fallback
}
