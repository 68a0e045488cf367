// Package sloghooks logs the high-signal slcache events (aborted query puts,
// self-healed entries, rejected writes) through log/slog. Hit/miss/put
// events are ignored; use slcache.Statistics or hooks/prom for those.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/slcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery uint64
	AbortEvery    uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	slcache.NopHooks

	l    *slog.Logger
	opts Options

	selfHealCtr atomic.Uint64
	abortCtr    atomic.Uint64
}

var _ slcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) QueryCachePutAborted(region string, key slcache.QueryCacheKey, reason string) {
	if h.l == nil || !sample(h.opts.AbortEvery, &h.abortCtr) {
		return
	}
	h.l.Info("slcache.query_put_aborted",
		"region", region,
		"key", h.redact(key.Hash()),
		"reason", reason)
}

func (h *Hooks) SelfHeal(region, storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("slcache.self_heal",
		"region", region,
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) RegionPutRejected(region, storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("slcache.region_put_rejected",
		"region", region,
		"key", h.redact(storageKey))
}
