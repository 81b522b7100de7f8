package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/tartunlp/translation-gateway/internal/registry"
	"github.com/tartunlp/translation-gateway/internal/translate"
)

// requestV2 is the current-generation request body.
type requestV2 struct {
	Text        translate.TextPayload `json:"text"`
	Src         string                `json:"src"`
	Tgt         string                `json:"tgt"`
	Domain      string                `json:"domain"`
	Application string                `json:"application"`
}

// domainV2 describes one domain in the configuration response.
type domainV2 struct {
	Name      string   `json:"name"`
	Code      string   `json:"code"`
	Languages []string `json:"languages"`
}

// configV2 is the configuration response body. XMLSupport is a deprecated
// field kept for wire compatibility.
type configV2 struct {
	XMLSupport bool       `json:"xml_support"`
	Domains    []domainV2 `json:"domains"`
}

// apiKey extracts the v2 credential from the x-api-key header.
func apiKey(r *http.Request) string {
	return r.Header.Get("x-api-key")
}

// handleConfigV2 returns the domains and language pairs available to the
// authenticated workspace.
func (s *Server) handleConfigV2(w http.ResponseWriter, r *http.Request) {
	ws, err := s.registry.LookupWorkspace(apiKey(r))
	if err != nil {
		s.writeError(w, translate.NewStatusError(
			translate.ClassUnauthorized, "Incorrect API key.", err))
		return
	}

	resp := configV2{XMLSupport: true, Domains: make([]domainV2, 0, len(ws.Domains))}
	for _, code := range ws.Domains {
		domain, err := s.registry.LookupDomain(code)
		if err != nil {
			continue
		}
		pairs := make([]string, 0, len(domain.Pairs))
		for _, p := range domain.Pairs {
			pairs = append(pairs, p.String())
		}
		resp.Domains = append(resp.Domains, domainV2{
			Name:      domain.Name,
			Code:      domain.Code,
			Languages: pairs,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleTranslateV2 validates and dispatches a translation request,
// returning the worker reply verbatim.
func (s *Server) handleTranslateV2(w http.ResponseWriter, r *http.Request) {
	var body requestV2
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, translate.NewStatusError(
			translate.ClassUnprocessable, "Malformed request body.", err))
		return
	}
	if body.Src == "" || body.Tgt == "" {
		s.writeError(w, translate.NewStatusError(
			translate.ClassUnprocessable, "Fields 'src' and 'tgt' are required.", nil))
		return
	}

	// The deprecated application header still applies when the body field
	// is empty.
	application := body.Application
	if application == "" {
		application = r.Header.Get("application")
	}

	// The current generation always routes by the fixed triple; workspace
	// routing patterns belong to the legacy surface only.
	resp, err := s.translateAndRespond(r.Context(), translate.RawInput{
		APIKey:      apiKey(r),
		Text:        body.Text,
		Src:         body.Src,
		Tgt:         body.Tgt,
		Domain:      body.Domain,
		Application: application,
	}, func(registry.Workspace) translate.RoutingStrategy {
		return translate.TripleKey{Exchange: s.exchange}
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// workspaceDomains resolves every domain granted to a workspace, skipping
// codes the registry no longer knows.
func (s *Server) workspaceDomains(ws registry.Workspace) []registry.Domain {
	out := make([]registry.Domain, 0, len(ws.Domains))
	for _, code := range ws.Domains {
		if d, err := s.registry.LookupDomain(code); err == nil {
			out = append(out, d)
		}
	}
	return out
}
