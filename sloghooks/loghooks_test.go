package sloghooks

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unkn0wn-root/slcache"
)

func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		out = append(out, rec)
	}
	return out
}

func TestHooks_SamplesSelfHeal(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := New(l, Options{SelfHealEvery: 3, Redact: func(s string) string { return s }})

	for i := 0; i < 9; i++ {
		h.SelfHeal("entity:country", "region:entity:country:cache.country[1]", "corrupt")
	}
	recs := records(t, &buf)
	require.Len(t, recs, 3)
	assert.Equal(t, "slcache.self_heal", recs[0]["msg"])
	assert.Equal(t, "region:entity:country:cache.country[1]", recs[0]["key"])
}

func TestHooks_RedactsKeysByDefault(t *testing.T) {
	var buf bytes.Buffer
	h := New(slog.New(slog.NewJSONHandler(&buf, nil)), Options{})

	h.RegionPutRejected("query", "region:query:query[0123]")
	h.EntityCacheHit("entity:country", slcache.EntityCacheKey{}) // ignored

	recs := records(t, &buf)
	require.Len(t, recs, 1)
	assert.Equal(t, "WARN", recs[0]["level"])
	key, _ := recs[0]["key"].(string)
	assert.Len(t, key, 16)
	assert.NotContains(t, key, "query")
}

func TestHooks_NilLogger(t *testing.T) {
	h := New(nil, Options{})
	assert.NotPanics(t, func() {
		h.QueryCachePutAborted("query", slcache.QueryCacheKey{}, "entity")
		h.SelfHeal("r", "k", "decode")
		h.RegionPutRejected("r", "k")
	})
}
