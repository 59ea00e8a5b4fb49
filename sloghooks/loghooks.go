// Package sloghooks logs renderq hook events through log/slog with optional
// sampling for the noisy ones (fast-tier evictions and durable self-heals can
// fire thousands of times during a fast scroll).
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/renderq"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	EvictEvery    uint64
	SelfHealEvery uint64
	// Optional asset-ID redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	evictCtr    atomic.Uint64
	selfHealCtr atomic.Uint64
}

var _ renderq.Hooks = (*Hooks)(nil)

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

func (h *Hooks) StaleResultDropped(key renderq.Key, taskGen, currentGen uint64) {
	if h.l == nil {
		return
	}
	h.l.Debug("renderq.stale_result_dropped",
		"asset", h.redact(key.AssetID),
		"class", string(key.Class),
		"task_gen", taskGen,
		"current_gen", currentGen)
}

func (h *Hooks) RenderFailed(key renderq.Key, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("renderq.render_failed",
		"asset", h.redact(key.AssetID),
		"class", string(key.Class),
		"err", err)
}

func (h *Hooks) RenderTimeout(key renderq.Key, elapsed time.Duration) {
	if h.l == nil {
		return
	}
	h.l.Warn("renderq.render_timeout",
		"asset", h.redact(key.AssetID),
		"class", string(key.Class),
		"elapsed", elapsed)
}

func (h *Hooks) QueueOverflow(evicted renderq.Key, prio renderq.Priority, inserted bool) {
	if h.l == nil {
		return
	}
	h.l.Debug("renderq.queue_overflow",
		"asset", h.redact(evicted.AssetID),
		"class", string(evicted.Class),
		"priority", int(prio),
		"incoming_admitted", inserted)
}

func (h *Hooks) FastTierEvicted(key renderq.Key, sizeBytes int64) {
	if h.l == nil || !sample(h.opts.EvictEvery, &h.evictCtr) {
		return
	}
	h.l.Debug("renderq.fast_tier_evicted",
		"asset", h.redact(key.AssetID),
		"class", string(key.Class),
		"size_bytes", sizeBytes)
}

func (h *Hooks) DurableWriteFailed(key renderq.Key, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("renderq.durable_write_failed",
		"asset", h.redact(key.AssetID),
		"class", string(key.Class),
		"err", err)
}

func (h *Hooks) SelfHealDurable(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("renderq.self_heal_durable",
		"key", h.redact(storageKey),
		"reason", reason)
}
