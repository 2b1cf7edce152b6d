package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	apperrors "github.com/call-scanner/internal/errors"
	"github.com/call-scanner/internal/notify"
	"github.com/call-scanner/internal/registry"
	"github.com/call-scanner/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	mintSOL  = "So11111111111111111111111111111111111111112"
	mintUSDC = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

// fixedResolver returns the same token data for every address, or an error.
type fixedResolver struct {
	data *types.TokenData
	err  error
}

func (r *fixedResolver) Resolve(ctx context.Context, address string) (*types.TokenData, error) {
	if r.err != nil {
		return nil, r.err
	}
	clone := *r.data
	if r.data.MarketCap != nil {
		mc := *r.data.MarketCap
		clone.MarketCap = &mc
	}
	return &clone, nil
}

func resolvedToken(marketCap float64) *fixedResolver {
	return &fixedResolver{data: &types.TokenData{
		Name:      "Token",
		Symbol:    "TKN",
		LogoURI:   "https://example.com/logo.png",
		MarketCap: &marketCap,
	}}
}

type memStore struct {
	mu      sync.Mutex
	records map[string]*types.CallRecord
	saves   int
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*types.CallRecord)}
}

func (s *memStore) Save(ctx context.Context, records map[string]*types.CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
	s.saves++
	return nil
}

func (s *memStore) Load(ctx context.Context) (map[string]*types.CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records, nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type captureNotifier struct {
	mu         sync.Mutex
	callAlerts []notify.CallAlert
}

func (n *captureNotifier) NotifyNewCall(ctx context.Context, alert notify.CallAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.callAlerts = append(n.callAlerts, alert)
	return nil
}

func (n *captureNotifier) NotifyATH(ctx context.Context, alert notify.ATHAlert) error {
	return nil
}

func (n *captureNotifier) calls() []notify.CallAlert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.CallAlert(nil), n.callAlerts...)
}

func message(content string) types.Message {
	return types.Message{
		AuthorID:   "user-1",
		AuthorName: "alice",
		ChannelID:  "channel-1",
		Content:    content,
		Permalink:  "https://chat.example.com/channel-1/msg-1",
		Timestamp:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newTestHandler(reg *registry.Registry, resolver *fixedResolver, store *memStore, notifier *captureNotifier, cfg Config) *Handler {
	cfg.Registry = reg
	cfg.Resolver = resolver
	cfg.Store = store
	cfg.Notifier = notifier
	return NewHandler(&cfg)
}

func TestHandleMessage_TracksValidAddress(t *testing.T) {
	reg := registry.New()
	store := newMemStore()
	notifier := &captureNotifier{}
	h := newTestHandler(reg, resolvedToken(1000), store, notifier, Config{})

	h.HandleMessage(context.Background(), message("check out "+mintSOL+" looks good"))

	record, ok := reg.Get(mintSOL)
	require.True(t, ok)
	assert.Equal(t, "alice", record.Caller.Username)
	assert.Equal(t, "channel-1", record.OriginChannelID)
	require.NotNil(t, record.TokenSymbol)
	assert.Equal(t, "TKN", *record.TokenSymbol)
	require.NotNil(t, record.InitialMarketCap)
	assert.Equal(t, 1000.0, *record.InitialMarketCap)
	require.Len(t, record.Mentions, 1)
	assert.Equal(t, "https://chat.example.com/channel-1/msg-1", record.Mentions[0].MessageLink)
	assert.NotEmpty(t, record.Mentions[0].ID)

	assert.Equal(t, 1, store.saveCount())

	calls := notifier.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, mintSOL, calls[0].Record.Address)
	assert.Equal(t, 1, calls[0].TotalCallsByUser)
	assert.Equal(t, "1.00K", calls[0].FormattedMarketCap)
}

func TestHandleMessage_SkipsInvalidCandidates(t *testing.T) {
	reg := registry.New()
	h := newTestHandler(reg, resolvedToken(1000), newMemStore(), &captureNotifier{}, Config{})

	// Right shape for the pattern but not a decodable 32-byte key.
	h.HandleMessage(context.Background(), message("11111111111111111111111111111111111111111111 maybe?"))

	assert.Equal(t, 0, reg.Len())
}

func TestHandleMessage_NoCandidates(t *testing.T) {
	reg := registry.New()
	h := newTestHandler(reg, resolvedToken(1000), newMemStore(), &captureNotifier{}, Config{})

	h.HandleMessage(context.Background(), message("gm everyone, nothing to see here"))

	assert.Equal(t, 0, reg.Len())
}

func TestHandleMessage_MultipleAddressesInOneMessage(t *testing.T) {
	reg := registry.New()
	notifier := &captureNotifier{}
	h := newTestHandler(reg, resolvedToken(1000), newMemStore(), notifier, Config{})

	h.HandleMessage(context.Background(), message(mintSOL+" and "+mintUSDC))

	assert.Equal(t, 2, reg.Len())
	assert.Len(t, notifier.calls(), 2)
}

func TestHandleMessage_SecondMentionAppendsWithoutReEnrichment(t *testing.T) {
	reg := registry.New()
	store := newMemStore()
	notifier := &captureNotifier{}
	h := newTestHandler(reg, resolvedToken(1000), store, notifier, Config{})

	h.HandleMessage(context.Background(), message(mintSOL))

	second := message("late to " + mintSOL)
	second.AuthorID = "user-2"
	second.AuthorName = "bob"
	second.ChannelID = "channel-2"
	h.HandleMessage(context.Background(), second)

	record, ok := reg.Get(mintSOL)
	require.True(t, ok)
	assert.Equal(t, "alice", record.Caller.Username, "ownership must not change")
	require.Len(t, record.Mentions, 2)
	assert.Equal(t, "channel-2", record.Mentions[1].ChannelID)

	// Only the first mention produced an alert and a persist.
	assert.Len(t, notifier.calls(), 1)
	assert.Equal(t, 1, store.saveCount())
}

func TestHandleMessage_EvictsWhenResolutionFails(t *testing.T) {
	reg := registry.New()
	store := newMemStore()
	notifier := &captureNotifier{}
	failing := &fixedResolver{err: apperrors.NewPermanentResolutionError("metadata", mintSOL)}
	h := newTestHandler(reg, failing, store, notifier, Config{})

	h.HandleMessage(context.Background(), message(mintSOL))

	assert.Equal(t, 0, reg.Len())
	assert.Empty(t, notifier.calls())
	assert.Equal(t, 0, store.saveCount())
}

func TestHandleMessage_EvictsWhenMarketCapMissing(t *testing.T) {
	reg := registry.New()
	noCap := &fixedResolver{data: &types.TokenData{Name: "Token", Symbol: "TKN"}}
	h := newTestHandler(reg, noCap, newMemStore(), &captureNotifier{}, Config{})

	h.HandleMessage(context.Background(), message(mintSOL))

	assert.Equal(t, 0, reg.Len())
}

func TestHandleMessage_ExcludedAuthorIgnored(t *testing.T) {
	reg := registry.New()
	h := newTestHandler(reg, resolvedToken(1000), newMemStore(), &captureNotifier{}, Config{
		ExcludedAuthors: []string{"user-1"},
	})

	h.HandleMessage(context.Background(), message(mintSOL))

	assert.Equal(t, 0, reg.Len())
}

func TestHandleMessage_UnmonitoredChannelIgnored(t *testing.T) {
	reg := registry.New()
	h := newTestHandler(reg, resolvedToken(1000), newMemStore(), &captureNotifier{}, Config{
		MonitoredChannels: []string{"channel-9"},
	})

	h.HandleMessage(context.Background(), message(mintSOL))

	assert.Equal(t, 0, reg.Len())
}

func TestHandleMessage_MonitoredChannelAccepted(t *testing.T) {
	reg := registry.New()
	h := newTestHandler(reg, resolvedToken(1000), newMemStore(), &captureNotifier{}, Config{
		MonitoredChannels: []string{"channel-1"},
	})

	h.HandleMessage(context.Background(), message(mintSOL))

	assert.Equal(t, 1, reg.Len())
}
