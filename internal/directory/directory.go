// Package directory provides a read-through cache over the instrument
// catalogue, translating venue symbols into stable internal instrument ids.
package directory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hadron/hadron/internal/errs"
	"github.com/hadron/hadron/internal/schema"
)

// Store is the subset of the persistence layer the Directory depends on.
type Store interface {
	LookupOrCreate(ctx context.Context, ticker string, assetClass schema.AssetClass, source schema.Source) (int64, error)
}

// EquitiesStore supports the equities resolve contract, which never creates
// a missing instrument.
type EquitiesStore interface {
	Lookup(ctx context.Context, ticker string, assetClass schema.AssetClass, source schema.Source) (int64, bool, error)
}

// Directory is a monotonic-additive, in-process cache in front of the
// instrument store. Entries are never evicted: once a (ticker, assetClass,
// source) signature resolves, it resolves for the life of the process.
type Directory struct {
	store    Store
	equities EquitiesStore
	cache    sync.Map // key -> int64
}

// New constructs a Directory backed by store for create-if-absent lookups
// and equities for strict equities resolution. equities may be nil if the
// caller only needs ResolveOrCreate.
func New(store Store, equities EquitiesStore) *Directory {
	return &Directory{store: store, equities: equities}
}

func cacheKey(ticker string, assetClass schema.AssetClass, source schema.Source) string {
	return strings.ToUpper(ticker) + "|" + string(assetClass) + "|" + string(source)
}

// Resolve implements the equities lookup contract: exact match, then
// case-insensitive match, then NotFound. It never creates a missing entry.
func (d *Directory) Resolve(ctx context.Context, ticker string, assetClass schema.AssetClass, source schema.Source) (int64, error) {
	key := cacheKey(ticker, assetClass, source)
	if id, ok := d.cache.Load(key); ok {
		return id.(int64), nil
	}

	if d.equities == nil {
		return 0, errs.New("directory.Resolve", errs.CodeInvariant, errs.WithMessage("equities store not configured"))
	}

	id, found, err := d.equities.Lookup(ctx, ticker, assetClass, source)
	if err != nil {
		return 0, errs.New("directory.Resolve", errs.CodeStorageTransient, errs.WithCause(err))
	}
	if !found {
		return 0, errs.New("directory.Resolve", errs.CodeLookupMiss,
			errs.WithMessage(fmt.Sprintf("no instrument for ticker %q", ticker)))
	}

	d.cache.Store(key, id)
	return id, nil
}

// ResolveOrCreate implements the prediction-market lookup contract: cache
// hit short-circuits; a miss upserts an active "other"-class instrument and
// caches the resulting id.
func (d *Directory) ResolveOrCreate(ctx context.Context, ticker string, source schema.Source) (int64, error) {
	key := cacheKey(ticker, schema.AssetClassOther, source)
	if id, ok := d.cache.Load(key); ok {
		return id.(int64), nil
	}

	id, err := d.store.LookupOrCreate(ctx, ticker, schema.AssetClassOther, source)
	if err != nil {
		return 0, errs.New("directory.ResolveOrCreate", errs.CodeStorageTransient, errs.WithCause(err))
	}

	d.cache.Store(key, id)
	return id, nil
}
