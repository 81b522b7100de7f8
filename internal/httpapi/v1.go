package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/tartunlp/translation-gateway/internal/correction"
	"github.com/tartunlp/translation-gateway/internal/registry"
	"github.com/tartunlp/translation-gateway/internal/translate"
)

// requestV1 is the legacy request body: text only, languages and domain
// travel as query parameters.
type requestV1 struct {
	Text translate.TextPayload `json:"text"`
}

// responseV1 is the legacy response shape, echoing the input back.
type responseV1 struct {
	Status string `json:"status"`
	Input  any    `json:"input"`
	Result any    `json:"result"`
}

// domainV1 describes one domain option in the legacy configuration shape.
type domainV1 struct {
	ODomain string   `json:"odomain"`
	Name    string   `json:"name"`
	Lang    []string `json:"lang"`
}

// configV1 is the legacy configuration response.
type configV1 struct {
	Domain  string     `json:"domain"`
	Options []domainV1 `json:"options"`
}

// correctionV1 is a submitted translation correction.
type correctionV1 struct {
	Text                 string `json:"text"`
	OriginalTranslation  string `json:"original_translation"`
	CorrectedTranslation string `json:"corrected_translation"`
}

// handleConfigV1 returns the legacy configuration shape: the workspace name
// and, per domain, the distinct output languages.
func (s *Server) handleConfigV1(w http.ResponseWriter, r *http.Request) {
	ws, err := s.registry.LookupWorkspace(r.URL.Query().Get("auth"))
	if err != nil {
		s.writeError(w, translate.NewStatusError(
			translate.ClassUnauthorized, "Incorrect API key.", err))
		return
	}

	resp := configV1{Domain: ws.Name}
	for _, domain := range s.workspaceDomains(ws) {
		resp.Options = append(resp.Options, domainV1{
			ODomain: domain.Code,
			Name:    domain.Name,
			Lang:    domain.TargetLanguages(),
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleTranslateV1 serves the deprecated generation: auth, output language,
// and domain come from the query string and the source language is inferred
// from the domain's supported pairs.
func (s *Server) handleTranslateV1(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var body requestV1
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, translate.NewStatusError(
			translate.ClassUnprocessable, "Malformed request body.", err))
		return
	}

	resp, err := s.translateAndRespond(r.Context(), translate.RawInput{
		APIKey: query.Get("auth"),
		Text:   body.Text,
		Tgt:    query.Get("olang"),
		Domain: query.Get("odomain"),
		// Legacy callers are a CAT-tool integration.
		Application: "memoq",
	}, func(ws registry.Workspace) translate.RoutingStrategy {
		return translate.StrategyFor(s.exchange, ws)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, responseV1{
		Status: "done",
		Input:  body.Text.Value(),
		Result: resp.Result.Value(),
	})
}

// handleCorrectionV1 appends a human-submitted correction to the sink.
func (s *Server) handleCorrectionV1(w http.ResponseWriter, r *http.Request) {
	if _, err := s.registry.LookupWorkspace(r.URL.Query().Get("auth")); err != nil {
		s.writeError(w, translate.NewStatusError(
			translate.ClassUnauthorized, "Incorrect API key.", err))
		return
	}
	if s.sink == nil {
		s.writeError(w, translate.NewStatusError(
			translate.ClassStorage, "Corrections are not enabled.", nil))
		return
	}

	var body correctionV1
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, translate.NewStatusError(
			translate.ClassUnprocessable, "Malformed request body.", err))
		return
	}

	err := s.sink.Append(r.Context(), correction.Entry{
		Timestamp:            time.Now().UTC(),
		RequestText:          body.Text,
		OriginalTranslation:  body.OriginalTranslation,
		CorrectedTranslation: body.CorrectedTranslation,
	})
	if err != nil {
		s.writeError(w, translate.NewStatusError(
			translate.ClassStorage, "Could not store the correction.", err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "done"})
}
