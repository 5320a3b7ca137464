package locale

import (
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/language"
)

// Locale registry. Concrete locales register themselves from
// pkg/locales/*/ init functions.
var (
	localesMu sync.RWMutex
	locales   = make(map[string]*Locale)
)

// canonicalFallback serves Default() when no en-US pack is linked in,
// e.g. in leaf package tests.
var canonicalFallback = sync.OnceValue(func() *Locale {
	return New("en-US").Build()
})

// Register adds a locale to the global registry. Called by locale
// implementations in their init() functions.
func Register(l *Locale) {
	localesMu.Lock()
	defer localesMu.Unlock()
	locales[strings.ToLower(l.Name)] = l
}

// Get returns a locale by name, case-insensitively.
func Get(name string) (*Locale, bool) {
	localesMu.RLock()
	defer localesMu.RUnlock()
	l, ok := locales[strings.ToLower(name)]
	return l, ok
}

// Default returns the en-US locale, registered or canonical fallback.
func Default() *Locale {
	if l, ok := Get("en-US"); ok {
		return l
	}
	return canonicalFallback()
}

// List returns all registered locale names (sorted).
func List() []string {
	localesMu.RLock()
	defer localesMu.RUnlock()
	names := make([]string, 0, len(locales))
	for name := range locales {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MatchTag finds the best registered locale for a language tag using
// the standard matcher. The second result is false when nothing is
// registered.
func MatchTag(tag language.Tag) (*Locale, bool) {
	localesMu.RLock()
	names := make([]string, 0, len(locales))
	for name := range locales {
		names = append(names, name)
	}
	localesMu.RUnlock()
	if len(names) == 0 {
		return nil, false
	}
	sort.Strings(names)

	tags := make([]language.Tag, len(names))
	for i, name := range names {
		l, _ := Get(name)
		tags[i] = l.Tag
	}
	m := language.NewMatcher(tags)
	_, idx, _ := m.Match(tag)
	return Get(names[idx])
}
