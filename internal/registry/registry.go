// Package registry holds the immutable workspace, domain, and language-code
// tables the gateway validates requests against. The registry is built once at
// startup and never mutated, so concurrent readers need no locking.
package registry

import (
	"errors"
	"fmt"
	"strings"
)

// Lookup failures. Callers map these onto the HTTP-facing error taxonomy.
var (
	// ErrUnknownAPIKey indicates the API key resolves to no workspace.
	ErrUnknownAPIKey = errors.New("unknown api key")

	// ErrUnknownDomain indicates the domain code is not configured.
	ErrUnknownDomain = errors.New("unknown domain")

	// ErrUnknownLanguage indicates a language code with no canonical mapping.
	ErrUnknownLanguage = errors.New("unknown language")
)

// LanguagePair is a directed (source, target) pair of canonical 3-letter codes.
type LanguagePair struct {
	Src string
	Tgt string
}

// String renders the pair in the hyphenated wire form, e.g. "est-eng".
func (p LanguagePair) String() string { return p.Src + "-" + p.Tgt }

// Domain is a named translation engine profile with its supported pairs.
// Pairs preserve configuration declaration order; source-language inference
// depends on that order.
type Domain struct {
	Code  string
	Name  string
	Pairs []LanguagePair
}

// Supports reports whether the domain serves the given directed pair.
func (d Domain) Supports(src, tgt string) bool {
	for _, p := range d.Pairs {
		if p.Src == src && p.Tgt == tgt {
			return true
		}
	}
	return false
}

// TargetLanguages returns the distinct target codes across the domain's pairs,
// in first-seen order.
func (d Domain) TargetLanguages() []string {
	seen := make(map[string]struct{}, len(d.Pairs))
	var out []string
	for _, p := range d.Pairs {
		if _, ok := seen[p.Tgt]; ok {
			continue
		}
		seen[p.Tgt] = struct{}{}
		out = append(out, p.Tgt)
	}
	return out
}

// Workspace is a tenant scope granting access to a subset of domains.
// RoutingPattern, when non-empty, selects the legacy caller-declared routing
// scheme for v1 requests.
type Workspace struct {
	Name           string
	Domains        []string
	RoutingPattern []string
}

// Allows reports whether the workspace grants access to the domain code.
func (w Workspace) Allows(domain string) bool {
	for _, d := range w.Domains {
		if d == domain {
			return true
		}
	}
	return false
}

// Registry resolves API keys, domain codes, and language aliases.
// All maps are populated by New and read-only afterwards.
type Registry struct {
	workspacesByKey map[string]Workspace
	domains         map[string]Domain
	languageCodes   map[string]string
}

// New builds a registry from already-parsed configuration tables.
// apiKeys maps key -> workspace name; languageCodes maps external alias ->
// canonical 3-letter code.
func New(
	apiKeys map[string]string,
	workspaces map[string]Workspace,
	domains map[string]Domain,
	languageCodes map[string]string,
) (*Registry, error) {
	r := &Registry{
		workspacesByKey: make(map[string]Workspace, len(apiKeys)),
		domains:         domains,
		languageCodes:   languageCodes,
	}
	for key, name := range apiKeys {
		ws, ok := workspaces[name]
		if !ok {
			return nil, fmt.Errorf("api key refers to undefined workspace %q", name)
		}
		r.workspacesByKey[key] = ws
	}
	for _, ws := range workspaces {
		for _, domain := range ws.Domains {
			if _, ok := domains[domain]; !ok {
				return nil, fmt.Errorf("workspace %q grants undefined domain %q", ws.Name, domain)
			}
		}
	}
	return r, nil
}

// LookupWorkspace resolves the workspace granted to an API key.
func (r *Registry) LookupWorkspace(apiKey string) (Workspace, error) {
	ws, ok := r.workspacesByKey[apiKey]
	if !ok {
		return Workspace{}, ErrUnknownAPIKey
	}
	return ws, nil
}

// LookupDomain resolves a domain by its code.
func (r *Registry) LookupDomain(code string) (Domain, error) {
	d, ok := r.domains[code]
	if !ok {
		return Domain{}, ErrUnknownDomain
	}
	return d, nil
}

// CanonicalLanguage maps an external language identifier (2- or 3-letter ISO
// code or alias) to the canonical internal 3-letter code.
func (r *Registry) CanonicalLanguage(code string) (string, error) {
	canonical, ok := r.languageCodes[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return "", ErrUnknownLanguage
	}
	return canonical, nil
}
