package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tartunlp/translation-gateway/internal/broker"
	"github.com/tartunlp/translation-gateway/internal/correction"
	"github.com/tartunlp/translation-gateway/internal/httpapi"
	"github.com/tartunlp/translation-gateway/internal/registry"
	"github.com/tartunlp/translation-gateway/internal/translate"
)

const maxTestLength = 50

// fakeBroker records published calls and replies from a canned handler.
type fakeBroker struct {
	mu    sync.Mutex
	calls []fakeCall
	reply func(body []byte, routingKey string) ([]byte, error)
}

type fakeCall struct {
	body       []byte
	routingKey string
}

func (b *fakeBroker) Call(_ context.Context, body []byte, routingKey string, _ time.Duration) ([]byte, error) {
	b.mu.Lock()
	b.calls = append(b.calls, fakeCall{body: body, routingKey: routingKey})
	b.mu.Unlock()
	if b.reply == nil {
		return []byte(`{"result":"Thank you!"}`), nil
	}
	return b.reply(body, routingKey)
}

func (b *fakeBroker) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func (b *fakeBroker) lastCall(t *testing.T) fakeCall {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(t, b.calls)
	return b.calls[len(b.calls)-1]
}

// memorySink collects correction entries in memory.
type memorySink struct {
	mu      sync.Mutex
	entries []correction.Entry
}

func (s *memorySink) Append(_ context.Context, entry correction.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func newTestServer(t *testing.T, fb *fakeBroker, sink correction.Sink) http.Handler {
	t.Helper()
	reg, err := registry.New(
		map[string]string{"acme-key": "acme", "legacy-key": "legacy"},
		map[string]registry.Workspace{
			"acme": {Name: "acme", Domains: []string{"general"}},
			"legacy": {
				Name:           "legacy",
				Domains:        []string{"general"},
				RoutingPattern: []string{"src", "tgt", "domain"},
			},
		},
		map[string]registry.Domain{
			"general": {Code: "general", Name: "General", Pairs: []registry.LanguagePair{
				{Src: "est", Tgt: "eng"},
				{Src: "eng", Tgt: "est"},
			}},
		},
		map[string]string{"et": "est", "est": "est", "en": "eng", "eng": "eng"},
	)
	require.NoError(t, err)

	server := httpapi.NewServer(httpapi.Config{
		Validator:   translate.NewValidator(reg, "general", maxTestLength),
		Registry:    reg,
		Broker:      fb,
		Sink:        sink,
		Exchange:    "translation",
		CallTimeout: time.Second,
	})
	return server.Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestTranslateV2RoundTrip(t *testing.T) {
	fb := &fakeBroker{}
	handler := newTestServer(t, fb, nil)

	rec := doJSON(t, handler, http.MethodPost, "/v2",
		`{"text":"Aitäh!","src":"est","tgt":"eng"}`,
		map[string]string{"x-api-key": "acme-key"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"result":"Thank you!"}`, rec.Body.String())

	call := fb.lastCall(t)
	assert.Equal(t, "translation.est.eng.general", call.routingKey)
	assert.JSONEq(t, `{"text":"Aitäh!","src":"est","tgt":"eng","domain":"general"}`, string(call.body))
}

// A workspace routing pattern must never leak onto the current generation:
// v2 always routes by the fixed exchange.src.tgt.domain triple.
func TestTranslateV2IgnoresWorkspaceRoutingPattern(t *testing.T) {
	fb := &fakeBroker{}
	handler := newTestServer(t, fb, nil)

	rec := doJSON(t, handler, http.MethodPost, "/v2",
		`{"text":"Aitäh!","src":"est","tgt":"eng"}`,
		map[string]string{"x-api-key": "legacy-key"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "translation.est.eng.general", fb.lastCall(t).routingKey)
}

func TestTranslateV2UnknownKeyNoPublish(t *testing.T) {
	fb := &fakeBroker{}
	handler := newTestServer(t, fb, nil)

	rec := doJSON(t, handler, http.MethodPost, "/v2",
		`{"text":"x","src":"est","tgt":"eng"}`,
		map[string]string{"x-api-key": "wrong"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Incorrect API key")
	assert.Equal(t, 0, fb.callCount(), "no broker interaction for an invalid request")
}

func TestTranslateV2UnknownLanguageNoPublish(t *testing.T) {
	fb := &fakeBroker{}
	handler := newTestServer(t, fb, nil)

	rec := doJSON(t, handler, http.MethodPost, "/v2",
		`{"text":"x","src":"est","tgt":"xx"}`,
		map[string]string{"x-api-key": "acme-key"})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, 0, fb.callCount())
}

func TestTranslateV2PayloadTooLarge(t *testing.T) {
	fb := &fakeBroker{}
	handler := newTestServer(t, fb, nil)

	long := strings.Repeat("a", maxTestLength+1)
	rec := doJSON(t, handler, http.MethodPost, "/v2",
		`{"text":"`+long+`","src":"est","tgt":"eng"}`,
		map[string]string{"x-api-key": "acme-key"})

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, 0, fb.callCount())
}

func TestTranslateV2BrokerTimeout(t *testing.T) {
	fb := &fakeBroker{reply: func([]byte, string) ([]byte, error) {
		return nil, broker.ErrCallTimeout
	}}
	handler := newTestServer(t, fb, nil)

	rec := doJSON(t, handler, http.MethodPost, "/v2",
		`{"text":"x","src":"est","tgt":"eng"}`,
		map[string]string{"x-api-key": "acme-key"})

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Contains(t, rec.Body.String(), "timed out")
}

func TestTranslateV2BrokerDown(t *testing.T) {
	fb := &fakeBroker{reply: func([]byte, string) ([]byte, error) {
		return nil, broker.ErrConnectionLost
	}}
	handler := newTestServer(t, fb, nil)

	rec := doJSON(t, handler, http.MethodPost, "/v2",
		`{"text":"x","src":"est","tgt":"eng"}`,
		map[string]string{"x-api-key": "acme-key"})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestConfigV2(t *testing.T) {
	handler := newTestServer(t, &fakeBroker{}, nil)

	rec := doJSON(t, handler, http.MethodGet, "/v2", "",
		map[string]string{"x-api-key": "acme-key"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		XMLSupport bool `json:"xml_support"`
		Domains    []struct {
			Name      string   `json:"name"`
			Code      string   `json:"code"`
			Languages []string `json:"languages"`
		} `json:"domains"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Domains, 1)
	assert.Equal(t, "general", resp.Domains[0].Code)
	assert.Equal(t, []string{"est-eng", "eng-est"}, resp.Domains[0].Languages)

	rec = doJSON(t, handler, http.MethodGet, "/v2", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// Legacy flow: target-only query, source inferred, workspace routing pattern
// applied on top of the workspace name.
func TestTranslateV1InfersSourceAndUsesPattern(t *testing.T) {
	fb := &fakeBroker{}
	handler := newTestServer(t, fb, nil)

	rec := doJSON(t, handler, http.MethodPost,
		"/v1?auth=legacy-key&olang=eng&odomain=general",
		`{"text":"Aitäh!"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t,
		`{"status":"done","input":"Aitäh!","result":"Thank you!"}`,
		rec.Body.String())

	call := fb.lastCall(t)
	assert.Equal(t, "legacy.est.eng.general", call.routingKey)

	var published struct {
		Src         string `json:"src"`
		Tgt         string `json:"tgt"`
		Application string `json:"application"`
	}
	require.NoError(t, json.Unmarshal(call.body, &published))
	assert.Equal(t, "est", published.Src)
	assert.Equal(t, "eng", published.Tgt)
	assert.Equal(t, "memoq", published.Application)
}

func TestTranslateV1TripleKeyWithoutPattern(t *testing.T) {
	fb := &fakeBroker{}
	handler := newTestServer(t, fb, nil)

	rec := doJSON(t, handler, http.MethodPost,
		"/v1?auth=acme-key&olang=eng&odomain=general",
		`{"text":"Aitäh!"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "translation.est.eng.general", fb.lastCall(t).routingKey)
}

func TestTranslateV1UnknownOutputLanguage(t *testing.T) {
	fb := &fakeBroker{}
	handler := newTestServer(t, fb, nil)

	rec := doJSON(t, handler, http.MethodPost,
		"/v1?auth=acme-key&olang=xx&odomain=general",
		`{"text":"x"}`, nil)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, 0, fb.callCount())
}

func TestConfigV1Shape(t *testing.T) {
	handler := newTestServer(t, &fakeBroker{}, nil)

	rec := doJSON(t, handler, http.MethodGet, "/v1?auth=acme-key", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Domain  string `json:"domain"`
		Options []struct {
			ODomain string   `json:"odomain"`
			Name    string   `json:"name"`
			Lang    []string `json:"lang"`
		} `json:"options"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "acme", resp.Domain)
	require.Len(t, resp.Options, 1)
	assert.Equal(t, "general", resp.Options[0].ODomain)
	assert.ElementsMatch(t, []string{"eng", "est"}, resp.Options[0].Lang)
}

func TestCorrectionV1(t *testing.T) {
	sink := &memorySink{}
	handler := newTestServer(t, &fakeBroker{}, sink)

	rec := doJSON(t, handler, http.MethodPost, "/v1/corrected?auth=acme-key",
		`{"text":"Aitäh!","original_translation":"Thanks!","corrected_translation":"Thank you!"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.entries, 1)
	assert.Equal(t, "Aitäh!", sink.entries[0].RequestText)
	assert.Equal(t, "Thank you!", sink.entries[0].CorrectedTranslation)
	assert.False(t, sink.entries[0].Timestamp.IsZero())
}

func TestCorrectionV1RequiresAuth(t *testing.T) {
	handler := newTestServer(t, &fakeBroker{}, &memorySink{})

	rec := doJSON(t, handler, http.MethodPost, "/v1/corrected?auth=wrong",
		`{"text":"x"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
