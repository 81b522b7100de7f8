package translate

import (
	"errors"
	"fmt"

	"github.com/tartunlp/translation-gateway/internal/registry"
)

// RawInput is the unvalidated request surface as the HTTP layer received it.
// Src and Domain may be empty: an empty Domain falls back to the configured
// default, and an empty Src is inferred from the domain's supported pairs.
type RawInput struct {
	APIKey      string
	Text        TextPayload
	Src         string
	Tgt         string
	Domain      string
	Application string
}

// Validator turns raw input into a Request whose fields are valid by
// construction. It is a pure function of its input and the registry snapshot;
// no broker interaction happens before validation succeeds.
type Validator struct {
	registry      *registry.Registry
	defaultDomain string
	maxTextLength int
}

// NewValidator builds a validator over an immutable registry.
func NewValidator(reg *registry.Registry, defaultDomain string, maxTextLength int) *Validator {
	return &Validator{
		registry:      reg,
		defaultDomain: defaultDomain,
		maxTextLength: maxTextLength,
	}
}

// Validate resolves and checks every field of the raw input, returning the
// validated request and the workspace that authorized it.
func (v *Validator) Validate(in RawInput) (Request, registry.Workspace, error) {
	ws, err := v.registry.LookupWorkspace(in.APIKey)
	if err != nil {
		return Request{}, registry.Workspace{}, NewStatusError(
			ClassUnauthorized, "Incorrect API key.", err)
	}

	domainCode := in.Domain
	if domainCode == "" {
		domainCode = v.defaultDomain
	}
	domain, err := v.registry.LookupDomain(domainCode)
	if err != nil {
		return Request{}, ws, NewStatusError(
			ClassUnprocessable, fmt.Sprintf("Domain '%s' not available.", domainCode), err)
	}
	if !ws.Allows(domainCode) {
		return Request{}, ws, NewStatusError(
			ClassForbidden,
			fmt.Sprintf("Incorrect API key for domain '%s'.", domainCode),
			ErrDomainNotPermitted)
	}

	tgt, err := v.registry.CanonicalLanguage(in.Tgt)
	if err != nil {
		return Request{}, ws, NewStatusError(
			ClassUnprocessable, fmt.Sprintf("Unknown language '%s'.", in.Tgt), err)
	}

	var src string
	if in.Src != "" {
		src, err = v.registry.CanonicalLanguage(in.Src)
		if err != nil {
			return Request{}, ws, NewStatusError(
				ClassUnprocessable, fmt.Sprintf("Unknown language '%s'.", in.Src), err)
		}
	} else {
		src, err = inferSource(domain, tgt)
		if err != nil {
			return Request{}, ws, NewStatusError(
				ClassUnprocessable,
				fmt.Sprintf("Incorrect output language '%s' for domain '%s'.", in.Tgt, domainCode),
				err)
		}
	}

	if !domain.Supports(src, tgt) {
		return Request{}, ws, NewStatusError(
			ClassUnprocessable,
			fmt.Sprintf("Language pair '%s-%s' not available for domain '%s'.", src, tgt, domainCode),
			ErrUnsupportedPair)
	}

	if length := in.Text.Len(); length > v.maxTextLength {
		return Request{}, ws, NewStatusError(
			ClassPayloadTooLarge,
			fmt.Sprintf("Field 'text' must not contain more than %d characters.", v.maxTextLength),
			ErrTextTooLong)
	}

	return Request{
		Text:        in.Text,
		Src:         src,
		Tgt:         tgt,
		Domain:      domainCode,
		Application: in.Application,
	}, ws, nil
}

// inferSource scans the domain's pairs in declaration order and returns the
// source of the first pair whose target matches. Configurations with several
// pairs sharing a target are resolved by that same order, deterministically.
func inferSource(domain registry.Domain, tgt string) (string, error) {
	for _, p := range domain.Pairs {
		if p.Tgt == tgt {
			return p.Src, nil
		}
	}
	return "", ErrUnsupportedPair
}

// IsNotFound reports whether err is one of the registry's lookup failures.
func IsNotFound(err error) bool {
	return errors.Is(err, registry.ErrUnknownAPIKey) ||
		errors.Is(err, registry.ErrUnknownDomain) ||
		errors.Is(err, registry.ErrUnknownLanguage)
}
