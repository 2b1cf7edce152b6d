// Package registry owns the address to CallRecord mapping and enforces
// single ownership: the first caller to register an address owns it for the
// lifetime of the record.
package registry

import (
	"iter"
	"sync"

	apperrors "github.com/call-scanner/internal/errors"
	"github.com/call-scanner/internal/types"
)

// Registry is the only shared mutable state in the system. Reads take the
// read lock; every mutation of a record happens under the write lock, which
// serializes ticks against inbound registrations for the same record.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*types.CallRecord
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		records: make(map[string]*types.CallRecord),
	}
}

// Register creates a CallRecord for an address. Registration is a
// compare-and-set on ownership: if the address is already tracked, the
// mention is appended to the existing record for reporting, ownership does
// not change, and an ALREADY_TRACKED error is returned alongside a copy of
// the owning record.
func (reg *Registry) Register(address string, caller types.Caller, channelID string, mention types.Mention) (*types.CallRecord, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if existing, ok := reg.records[address]; ok {
		existing.Mentions = append(existing.Mentions, mention)
		return existing.Clone(), apperrors.NewAlreadyTrackedError(address, existing.Caller.UserID)
	}

	record := &types.CallRecord{
		Address:         address,
		Caller:          caller,
		FirstSeenAt:     mention.Timestamp,
		OriginChannelID: channelID,
		Mentions:        []types.Mention{mention},
	}
	reg.records[address] = record

	return record.Clone(), nil
}

// Get returns a copy of the record for an address.
func (reg *Registry) Get(address string) (*types.CallRecord, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	record, ok := reg.records[address]
	if !ok {
		return nil, false
	}
	return record.Clone(), true
}

// Evict removes the record for an address. Idempotent; reports whether a
// record was removed.
func (reg *Registry) Evict(address string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, ok := reg.records[address]; !ok {
		return false
	}
	delete(reg.records, address)
	return true
}

// Len returns the number of tracked addresses.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.records)
}

// Addresses returns a restartable sequence of tracked addresses. Each
// iteration takes a fresh snapshot, so re-ranging reflects current state.
func (reg *Registry) Addresses() iter.Seq[string] {
	return func(yield func(string) bool) {
		reg.mu.RLock()
		addresses := make([]string, 0, len(reg.records))
		for address := range reg.records {
			addresses = append(addresses, address)
		}
		reg.mu.RUnlock()

		for _, address := range addresses {
			if !yield(address) {
				return
			}
		}
	}
}

// SetTokenData stores resolved token identity (and the creation-time market
// cap, when present) on a record. Returns false if the record was evicted
// between resolution start and completion.
func (reg *Registry) SetTokenData(address string, data types.TokenData) (types.MarketCapUpdate, *types.CallRecord, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	record, ok := reg.records[address]
	if !ok {
		return types.MarketCapUpdate{}, nil, false
	}

	update := record.SetTokenData(data)
	return update, record.Clone(), true
}

// ApplyMarketCap applies one market cap observation to a record under the
// registry lock. Returns false if the record no longer exists.
func (reg *Registry) ApplyMarketCap(address string, marketCap float64) (types.MarketCapUpdate, *types.CallRecord, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	record, ok := reg.records[address]
	if !ok {
		return types.MarketCapUpdate{}, nil, false
	}

	update := record.ApplyMarketCap(marketCap)
	return update, record.Clone(), true
}

// Snapshot returns a deep copy of the full mapping, suitable for persistence
// and reporting.
func (reg *Registry) Snapshot() map[string]*types.CallRecord {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	snapshot := make(map[string]*types.CallRecord, len(reg.records))
	for address, record := range reg.records {
		snapshot[address] = record.Clone()
	}
	return snapshot
}

// Restore replaces the registry contents with a previously saved mapping.
func (reg *Registry) Restore(records map[string]*types.CallRecord) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.records = make(map[string]*types.CallRecord, len(records))
	for address, record := range records {
		reg.records[address] = record.Clone()
	}
}
