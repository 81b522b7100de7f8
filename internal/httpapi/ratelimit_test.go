package httpapi_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tartunlp/translation-gateway/internal/httpapi"
	"github.com/tartunlp/translation-gateway/internal/registry"
	"github.com/tartunlp/translation-gateway/internal/translate"
)

func TestKeyLimiterLocalBucket(t *testing.T) {
	limiter := httpapi.NewKeyLimiter(0, 2, nil, nil)
	ctx := context.Background()

	assert.True(t, limiter.Allow(ctx, "key-a"))
	assert.True(t, limiter.Allow(ctx, "key-a"))
	assert.False(t, limiter.Allow(ctx, "key-a"), "burst exhausted")

	// Buckets are per key.
	assert.True(t, limiter.Allow(ctx, "key-b"))
}

func TestTranslateV2RateLimited(t *testing.T) {
	reg, err := registry.New(
		map[string]string{"acme-key": "acme"},
		map[string]registry.Workspace{"acme": {Name: "acme", Domains: []string{"general"}}},
		map[string]registry.Domain{
			"general": {Code: "general", Pairs: []registry.LanguagePair{{Src: "est", Tgt: "eng"}}},
		},
		map[string]string{"est": "est", "eng": "eng"},
	)
	require.NoError(t, err)

	fb := &fakeBroker{}
	server := httpapi.NewServer(httpapi.Config{
		Validator:   translate.NewValidator(reg, "general", maxTestLength),
		Registry:    reg,
		Broker:      fb,
		Limiter:     httpapi.NewKeyLimiter(0, 1, nil, nil),
		Exchange:    "translation",
		CallTimeout: time.Second,
	})
	handler := server.Handler()

	body := `{"text":"x","src":"est","tgt":"eng"}`
	header := map[string]string{"x-api-key": "acme-key"}

	rec := doJSON(t, handler, http.MethodPost, "/v2", body, header)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/v2", body, header)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 1, fb.callCount(), "limited request must not publish")
}
