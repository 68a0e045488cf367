package slog

import (
	"bytes"
	"encoding/json"
	stdslog "log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unkn0wn-root/slcache"
)

func TestLogger_JSONRecord(t *testing.T) {
	var buf bytes.Buffer
	h := stdslog.NewJSONHandler(&buf, &stdslog.HandlerOptions{Level: stdslog.LevelInfo})
	l := New(stdslog.New(h))

	l.Debug("filtered", slcache.Fields{"x": 1})
	assert.Zero(t, buf.Len())

	l.Warn("region put rejected", slcache.Fields{"region": "entity:city", "key": "cache.city[3]"})

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "region put rejected", rec["msg"])
	assert.Equal(t, "slcache", rec["component"])
	assert.Equal(t, "entity:city", rec["region"])
	assert.Equal(t, "cache.city[3]", rec["key"])
}
