package stats

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Canonical author labels. Every rating is attributed to exactly one of
// these or to a verbatim submitted name.
const (
	AuthorEditorial = "Fatherhood.gov"
	AuthorGenerated = "AI Generated"
	AuthorUnknown   = "Unknown"
)

// Item id prefixes used by the context inference fallback. Editorial items
// are seeded with stable source ids; submitted items get generated ids.
const (
	editorialIDPrefix = "fatherhood-"
	submittedIDPrefix = "custom-"
)

// authorAliasFile is the YAML shape of an alias configuration file.
type authorAliasFile struct {
	Editorial []string `yaml:"editorial"`
	Generated []string `yaml:"generated"`
}

// AuthorResolver maps raw author attributions to canonical labels so both
// aggregation paths group ratings identically. Resolution is deterministic
// and pure: same inputs, same label, no I/O.
type AuthorResolver struct {
	editorialAliases map[string]struct{}
	generatedAliases map[string]struct{}
}

// NewAuthorResolver returns a resolver with the built-in alias sets.
func NewAuthorResolver() *AuthorResolver {
	return newResolver(
		[]string{"fatherhood.gov", "fatherhood.com"},
		[]string{"ai", "ai generated"},
	)
}

// NewAuthorResolverFromFile loads alias sets from a YAML file and merges
// them over the built-in defaults. Unknown keys are ignored.
func NewAuthorResolverFromFile(path string) (*AuthorResolver, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read author aliases %q: %w", path, err)
	}

	var parsed authorAliasFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse author aliases %q: %w", path, err)
	}

	r := NewAuthorResolver()
	for _, alias := range parsed.Editorial {
		r.editorialAliases[normalizeAlias(alias)] = struct{}{}
	}
	for _, alias := range parsed.Generated {
		r.generatedAliases[normalizeAlias(alias)] = struct{}{}
	}
	return r, nil
}

func newResolver(editorial, generated []string) *AuthorResolver {
	r := &AuthorResolver{
		editorialAliases: make(map[string]struct{}, len(editorial)),
		generatedAliases: make(map[string]struct{}, len(generated)),
	}
	for _, alias := range editorial {
		r.editorialAliases[normalizeAlias(alias)] = struct{}{}
	}
	for _, alias := range generated {
		r.generatedAliases[normalizeAlias(alias)] = struct{}{}
	}
	return r
}

func normalizeAlias(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Resolve maps a raw author plus context to a canonical author label.
//
// Rules, in order: trim and case-fold; empty or "unknown" becomes the
// Unknown sentinel; alias sets collapse to the editorial or generated
// label; a non-empty non-alias name is kept verbatim (trimmed). Only when
// the author is still Unknown is context consulted: daily mode and
// editorial-style item ids attribute to the editorial label, everything
// else defaults to the generated label. The context fallback is a pinned
// policy, not a guarantee of ground truth.
func (r *AuthorResolver) Resolve(rawAuthor, itemID, mode string) string {
	trimmed := strings.TrimSpace(rawAuthor)
	lower := strings.ToLower(trimmed)

	switch {
	case lower == "" || lower == "unknown":
		// fall through to context inference
	default:
		if _, ok := r.editorialAliases[lower]; ok {
			return AuthorEditorial
		}
		if _, ok := r.generatedAliases[lower]; ok {
			return AuthorGenerated
		}
		return trimmed
	}

	if mode == "daily" {
		return AuthorEditorial
	}
	if strings.HasPrefix(itemID, editorialIDPrefix) {
		return AuthorEditorial
	}
	if strings.HasPrefix(itemID, submittedIDPrefix) {
		return AuthorGenerated
	}
	return AuthorGenerated
}
