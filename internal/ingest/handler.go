// Package ingest turns inbound chat messages into tracked calls: it extracts
// candidate addresses, validates them, registers ownership and runs the
// creation-time enrichment.
package ingest

import (
	"context"
	"regexp"

	"github.com/call-scanner/internal/engine"
	apperrors "github.com/call-scanner/internal/errors"
	"github.com/call-scanner/internal/logging"
	"github.com/call-scanner/internal/notify"
	"github.com/call-scanner/internal/registry"
	"github.com/call-scanner/internal/report"
	"github.com/call-scanner/internal/resolver"
	"github.com/call-scanner/internal/storage"
	"github.com/call-scanner/internal/types"
	"github.com/call-scanner/internal/validator"
	"github.com/google/uuid"
)

// addressPattern matches base58 mint address candidates in message content.
// Candidates still go through full validation before registration.
var addressPattern = regexp.MustCompile(`[1-9A-HJ-NP-Za-km-z]{32,44}`)

// Handler processes inbound messages from the chat gateway.
type Handler struct {
	registry *registry.Registry
	resolver engine.MarketResolver
	store    storage.SnapshotStore
	notifier notify.Notifier
	logger   *logging.Logger

	monitoredChannels map[string]struct{}
	excludedAuthors   map[string]struct{}
}

// Config holds configuration for a Handler.
type Config struct {
	Registry *registry.Registry
	Resolver engine.MarketResolver
	Store    storage.SnapshotStore
	Notifier notify.Notifier
	Logger   *logging.Logger

	// MonitoredChannels limits ingestion to the listed channels; empty means
	// every channel is monitored.
	MonitoredChannels []string
	// ExcludedAuthors drops messages from the listed author IDs (other bots).
	ExcludedAuthors []string
}

// NewHandler creates a Handler.
func NewHandler(cfg *Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &Handler{
		registry:          cfg.Registry,
		resolver:          cfg.Resolver,
		store:             cfg.Store,
		notifier:          cfg.Notifier,
		logger:            logger.WithField("component", "ingest"),
		monitoredChannels: toSet(cfg.MonitoredChannels),
		excludedAuthors:   toSet(cfg.ExcludedAuthors),
	}
}

// HandleMessage processes one inbound message. Invalid address candidates are
// silently skipped; mentions of already-tracked addresses are appended to the
// owning record without changing ownership.
func (h *Handler) HandleMessage(ctx context.Context, msg types.Message) {
	if _, excluded := h.excludedAuthors[msg.AuthorID]; excluded {
		return
	}
	if len(h.monitoredChannels) > 0 {
		if _, monitored := h.monitoredChannels[msg.ChannelID]; !monitored {
			return
		}
	}

	for _, candidate := range addressPattern.FindAllString(msg.Content, -1) {
		if !validator.IsValidAddress(candidate) {
			h.logger.WithField("candidate", candidate).Debug("Skipping invalid address candidate")
			continue
		}
		h.track(ctx, candidate, msg)
	}
}

func (h *Handler) track(ctx context.Context, address string, msg types.Message) {
	mention := types.Mention{
		ID:          uuid.NewString(),
		Timestamp:   msg.Timestamp,
		ChannelID:   msg.ChannelID,
		MessageLink: msg.Permalink,
		AuthorID:    msg.AuthorID,
	}
	caller := types.Caller{
		UserID:   msg.AuthorID,
		Username: msg.AuthorName,
	}

	record, err := h.registry.Register(address, caller, msg.ChannelID, mention)
	if err != nil {
		// Already tracked: the mention was recorded on the owning record,
		// ownership is unchanged, and enrichment is not re-triggered.
		h.logger.WithFields(map[string]interface{}{
			"address": address,
			"owner":   record.Caller.Username,
			"code":    apperrors.Code(err),
		}).Info("Address already tracked, mention appended")
		return
	}

	h.enrich(ctx, address)
}

// enrich runs the creation-time resolution. A record that cannot produce
// both a token identity and a market cap within the retry budget is evicted
// with no persisted trace; the address may be re-tracked later.
func (h *Handler) enrich(ctx context.Context, address string) {
	data, err := h.resolver.Resolve(ctx, address)
	if err != nil || data.Name == "" || data.Symbol == "" || data.MarketCap == nil {
		h.registry.Evict(address)
		h.logger.WithFields(map[string]interface{}{
			"address": address,
			"error":   errString(err),
		}).Info("Evicting address with incomplete token data")
		return
	}

	_, record, ok := h.registry.SetTokenData(address, *data)
	if !ok {
		return
	}

	h.persist(ctx)

	formatted, _ := resolver.FormatMarketCap(data.MarketCap)
	alert := notify.CallAlert{
		Record:             *record,
		TotalCallsByUser:   report.TotalCalls(h.registry, record.Caller.UserID),
		FormattedMarketCap: formatted,
	}
	if err := h.notifier.NotifyNewCall(ctx, alert); err != nil {
		h.logger.WithError(err).WithField("address", address).Warn("Failed to deliver call alert")
	}
}

func (h *Handler) persist(ctx context.Context) {
	if err := h.store.Save(ctx, h.registry.Snapshot()); err != nil {
		h.logger.WithError(err).Error("Failed to persist registry snapshot")
	}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		set[value] = struct{}{}
	}
	return set
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
