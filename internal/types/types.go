// Package types defines the core data model shared across the call scanner.
package types

import "time"

// Caller identifies the user who owns a call.
type Caller struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Mention is one sighting of an address in a chat message. Every mention of a
// tracked address is appended to its record for reporting; mentions after the
// first never change ownership.
type Mention struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	ChannelID   string    `json:"channelId"`
	MessageLink string    `json:"messageLink,omitempty"`
	AuthorID    string    `json:"authorId,omitempty"`
}

// TokenData is the output of a market data resolution. MarketCap is nil when
// either price or supply could not be obtained - nil means "insufficient
// data", never zero.
type TokenData struct {
	Name      string   `json:"name"`
	Symbol    string   `json:"symbol"`
	LogoURI   string   `json:"logoUri,omitempty"`
	MarketCap *float64 `json:"marketCap,omitempty"`
}

// CallRecord tracks one token address from first mention onward. The address
// is the primary key: at most one record exists per address.
type CallRecord struct {
	Address         string    `json:"address"`
	Caller          Caller    `json:"caller"`
	FirstSeenAt     time.Time `json:"firstSeenAt"`
	OriginChannelID string    `json:"originChannelId"`
	Mentions        []Mention `json:"mentions"`

	// Resolved once at creation, nil until resolution succeeds.
	TokenName    *string `json:"tokenName,omitempty"`
	TokenSymbol  *string `json:"tokenSymbol,omitempty"`
	TokenLogoURI *string `json:"tokenLogoUri,omitempty"`

	// InitialMarketCap is set exactly once, by the first successful
	// resolution. AllTimeHigh never decreases once set. IsWin never reverts
	// to false. ROI is recomputed from the raw numeric values whenever
	// AllTimeHigh rises.
	InitialMarketCap *float64 `json:"initialMarketCap,omitempty"`
	AllTimeHigh      *float64 `json:"allTimeHigh,omitempty"`
	IsWin            bool     `json:"isWin"`
	ROI              *float64 `json:"roi,omitempty"`
}

// MarketCapUpdate describes the outcome of applying a freshly resolved market
// cap to a record.
type MarketCapUpdate struct {
	// Mutated is true when any field of the record changed.
	Mutated bool
	// NewHigh is true when AllTimeHigh was raised, which also sets IsWin
	// and recomputes ROI.
	NewHigh bool
}

// ApplyMarketCap applies one resolved market cap observation to the record:
// it initializes InitialMarketCap and AllTimeHigh on first observation, and
// raises AllTimeHigh when the observation exceeds both the current high and
// the initial cap. Callers must serialize invocations per record.
func (r *CallRecord) ApplyMarketCap(marketCap float64) MarketCapUpdate {
	var update MarketCapUpdate

	if r.InitialMarketCap == nil {
		initial := marketCap
		r.InitialMarketCap = &initial
		update.Mutated = true
	}

	if r.AllTimeHigh == nil {
		high := *r.InitialMarketCap
		r.AllTimeHigh = &high
		update.Mutated = true
	}

	if marketCap > *r.AllTimeHigh && marketCap > *r.InitialMarketCap {
		high := marketCap
		r.AllTimeHigh = &high
		r.IsWin = true
		roi := (*r.AllTimeHigh - *r.InitialMarketCap) / *r.InitialMarketCap * 100
		r.ROI = &roi
		update.Mutated = true
		update.NewHigh = true
	}

	return update
}

// SetTokenData stores the resolved token identity on the record and, when the
// resolution carried a market cap, applies it as the first observation.
func (r *CallRecord) SetTokenData(data TokenData) MarketCapUpdate {
	name, symbol, logo := data.Name, data.Symbol, data.LogoURI
	r.TokenName = &name
	r.TokenSymbol = &symbol
	if logo != "" {
		r.TokenLogoURI = &logo
	}

	if data.MarketCap != nil {
		update := r.ApplyMarketCap(*data.MarketCap)
		update.Mutated = true
		return update
	}

	return MarketCapUpdate{Mutated: true}
}

// Clone returns a deep copy of the record.
func (r *CallRecord) Clone() *CallRecord {
	clone := *r
	clone.Mentions = make([]Mention, len(r.Mentions))
	copy(clone.Mentions, r.Mentions)
	clone.TokenName = copyString(r.TokenName)
	clone.TokenSymbol = copyString(r.TokenSymbol)
	clone.TokenLogoURI = copyString(r.TokenLogoURI)
	clone.InitialMarketCap = copyFloat(r.InitialMarketCap)
	clone.AllTimeHigh = copyFloat(r.AllTimeHigh)
	clone.ROI = copyFloat(r.ROI)
	return &clone
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Message is an inbound chat message as delivered by the chat platform
// gateway. Delivery is at most once; nothing else is assumed about ordering.
type Message struct {
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	ChannelID  string    `json:"channelId"`
	Content    string    `json:"content"`
	Permalink  string    `json:"permalink,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
