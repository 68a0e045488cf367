package slcache

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	c "github.com/unkn0wn-root/slcache/codec"
	gen "github.com/unkn0wn-root/slcache/genstore"
	"github.com/unkn0wn-root/slcache/internal/wire"
	pr "github.com/unkn0wn-root/slcache/provider"
)

// Region is a named store of cache entries: one per cached entity type, one per
// cached to-many association, one or more for queries.
//
// Implementations must be safe for concurrent use. Each call is atomic on its
// own; a Get racing a Put of the same key may observe either value.
type Region interface {
	Name() string
	Contains(ctx context.Context, key CacheKey) (bool, error)
	// Get returns (entry, true, nil) on hit and (nil, false, nil) on miss.
	Get(ctx context.Context, key CacheKey) (Entry, bool, error)
	// Put never drops a write silently: a refused write is a *RegionAccessError.
	Put(ctx context.Context, key CacheKey, entry Entry) error
	Evict(ctx context.Context, key CacheKey) error
	EvictAll(ctx context.Context) error
	Size(ctx context.Context) int
	// Entries yields (key hash, entry) pairs. Finite, unordered, diagnostics only.
	Entries(ctx context.Context) iter.Seq2[string, Entry]
}

// SetCostFunc computes the provider cost of one stored frame.
type SetCostFunc func(storageKey string, frame []byte) int64

// RegionOptions configure a DefaultRegion. Name and Provider are required.
type RegionOptions struct {
	Name     string
	Provider pr.Provider

	Codec          c.Codec[Envelope] // nil => codec.Msgpack
	GenStore       gen.GenStore      // nil => in-process LocalGenStore owned by the region
	TTL            time.Duration     // 0 => no expiry (provider permitting)
	Logger         Logger
	Hooks          Hooks
	ComputeSetCost SetCostFunc // default 1
}

// DefaultRegion keeps entries in a provider.Provider.
//
// Storage layout:
//
//	region:<name>:<key hash>  ->  wire frame(kind, region generation, codec(envelope))
//
// EvictAll bumps the region generation; frames stamped with an older
// generation read as misses and are deleted on access.
type DefaultRegion struct {
	name           string
	provider       pr.Provider
	codec          c.Codec[Envelope]
	gen            gen.GenStore
	ownsGen        bool
	ttl            time.Duration
	log            Logger
	hooks          Hooks
	computeSetCost SetCostFunc

	// hash -> CacheKey of every key written through this instance
	keys sync.Map
}

var _ Region = (*DefaultRegion)(nil)

func NewRegion(opts RegionOptions) (*DefaultRegion, error) {
	if opts.Name == "" {
		return nil, errors.New("slcache: region name is required")
	}
	if opts.Provider == nil {
		return nil, fmt.Errorf("slcache: region %q: provider is required", opts.Name)
	}

	r := &DefaultRegion{
		name:     opts.Name,
		provider: opts.Provider,
		ttl:      opts.TTL,
	}
	if opts.Codec != nil {
		r.codec = opts.Codec
	} else {
		r.codec = c.Msgpack[Envelope]{}
	}
	if opts.GenStore != nil {
		r.gen = opts.GenStore
	} else {
		r.gen = gen.NewLocalGenStore(0, 0)
		r.ownsGen = true
	}
	if opts.ComputeSetCost != nil {
		r.computeSetCost = opts.ComputeSetCost
	} else {
		r.computeSetCost = defaultCost
	}
	r.log = coalesce[Logger](opts.Logger, NopLogger{})
	r.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	return r, nil
}

func (r *DefaultRegion) Name() string { return r.name }

// Close releases the generation store if the region created it. The provider
// is usually shared by several regions and is left open.
func (r *DefaultRegion) Close(ctx context.Context) error {
	if r.ownsGen {
		return r.gen.Close(ctx)
	}
	return nil
}

func (r *DefaultRegion) Contains(ctx context.Context, key CacheKey) (bool, error) {
	_, ok, err := r.Get(ctx, key)
	return ok, err
}

func (r *DefaultRegion) Get(ctx context.Context, key CacheKey) (Entry, bool, error) {
	hash := key.Hash()
	sk := r.storageKey(hash)

	raw, ok, err := r.provider.Get(ctx, sk)
	if err != nil {
		return nil, false, r.accessErr("get", hash, err)
	}
	if !ok {
		r.keys.Delete(hash)
		return nil, false, nil
	}

	kind, g, payload, err := wire.Decode(raw)
	if err != nil {
		r.selfHeal(ctx, hash, "corrupt")
		return nil, false, nil
	}
	cur, err := r.gen.Snapshot(ctx, r.name)
	if err != nil {
		return nil, false, r.accessErr("get", hash, err)
	}
	if g != cur {
		r.selfHeal(ctx, hash, "stale_generation")
		return nil, false, nil
	}
	env, err := r.codec.Decode(payload)
	if err != nil {
		r.selfHeal(ctx, hash, "decode")
		return nil, false, nil
	}
	e, err := env.Entry()
	if err != nil || e.Kind() != EntryKind(kind) {
		r.selfHeal(ctx, hash, "kind_mismatch")
		return nil, false, nil
	}
	return e, true, nil
}

func (r *DefaultRegion) Put(ctx context.Context, key CacheKey, entry Entry) error {
	hash := key.Hash()
	sk := r.storageKey(hash)

	env, err := NewEnvelope(entry)
	if err != nil {
		return err
	}
	payload, err := r.codec.Encode(env)
	if err != nil {
		return fmt.Errorf("region %q: encode %q: %w", r.name, hash, err)
	}
	g, err := r.gen.Snapshot(ctx, r.name)
	if err != nil {
		return r.accessErr("put", hash, err)
	}

	frame := wire.Encode(byte(entry.Kind()), g, payload)
	ok, err := r.provider.Set(ctx, sk, frame, r.computeSetCost(sk, frame), r.ttl)
	if err != nil {
		return r.accessErr("put", hash, err)
	}
	if !ok {
		r.hooks.RegionPutRejected(r.name, sk)
		r.log.Debug("region put rejected by provider (pressure)", Fields{"region": r.name, "key": hash})
		return r.accessErr("put", hash, ErrWriteRejected)
	}
	r.keys.Store(hash, key)
	return nil
}

func (r *DefaultRegion) Evict(ctx context.Context, key CacheKey) error {
	hash := key.Hash()
	r.keys.Delete(hash)
	if err := r.provider.Del(ctx, r.storageKey(hash)); err != nil {
		return r.accessErr("evict", hash, err)
	}
	return nil
}

// EvictAll invalidates every entry of the region, including entries written by
// other processes sharing the same GenStore.
func (r *DefaultRegion) EvictAll(ctx context.Context) error {
	newGen, err := r.gen.Bump(ctx, r.name)
	if err != nil {
		return r.accessErr("evict_all", "", err)
	}
	// known keys are deleted eagerly; the rest self-heal on read
	r.keys.Range(func(k, _ any) bool {
		hash := k.(string)
		r.keys.Delete(hash)
		_ = r.provider.Del(ctx, r.storageKey(hash))
		return true
	})
	r.log.Debug("region evicted (bumped generation)", Fields{"region": r.name, "newGen": newGen})
	return nil
}

// Size counts the keys written through this instance that have not been
// evicted or observed missing. Entries written by other processes are not seen.
func (r *DefaultRegion) Size(context.Context) int {
	n := 0
	r.keys.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (r *DefaultRegion) Entries(ctx context.Context) iter.Seq2[string, Entry] {
	return func(yield func(string, Entry) bool) {
		r.keys.Range(func(k, v any) bool {
			e, ok, err := r.Get(ctx, v.(CacheKey))
			if err != nil || !ok {
				return true
			}
			return yield(k.(string), e)
		})
	}
}

func (r *DefaultRegion) storageKey(hash string) string {
	return "region:" + r.name + ":" + hash
}

func (r *DefaultRegion) selfHeal(ctx context.Context, hash, reason string) {
	sk := r.storageKey(hash)
	r.keys.Delete(hash)
	_ = r.provider.Del(ctx, sk)
	r.hooks.SelfHeal(r.name, sk, reason)
	r.log.Debug("region entry dropped on read", Fields{"region": r.name, "key": hash, "reason": reason})
}

func (r *DefaultRegion) accessErr(op, hash string, err error) error {
	return &RegionAccessError{Region: r.name, Op: op, Key: hash, Err: err}
}
