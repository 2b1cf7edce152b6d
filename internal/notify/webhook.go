package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/call-scanner/internal/logging"
	"github.com/call-scanner/internal/resolver"
	"github.com/call-scanner/internal/types"
)

const (
	colorNewCall = 0xFFD700
	colorATH     = 0xFF0000
)

// WebhookNotifier posts embed payloads to a chat webhook.
type WebhookNotifier struct {
	webhookURL  string
	botImageURL string
	httpClient  *http.Client
	logger      *logging.Logger
}

// NewWebhookNotifier creates a WebhookNotifier.
func NewWebhookNotifier(webhookURL, botImageURL string, logger *logging.Logger) *WebhookNotifier {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &WebhookNotifier{
		webhookURL:  webhookURL,
		botImageURL: botImageURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
	}
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type embedThumbnail struct {
	URL string `json:"url"`
}

type embed struct {
	Title     string          `json:"title"`
	Color     int             `json:"color"`
	Thumbnail *embedThumbnail `json:"thumbnail,omitempty"`
	Fields    []embedField    `json:"fields"`
	Timestamp string          `json:"timestamp"`
}

type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

// NotifyNewCall posts the new-call embed: caller, market cap, address, venue
// links and the per-channel mention rollup.
func (n *WebhookNotifier) NotifyNewCall(ctx context.Context, alert CallAlert) error {
	record := alert.Record
	symbol := stringOr(record.TokenSymbol, record.Address)

	marketCapValue := alert.FormattedMarketCap
	exchange := fmt.Sprintf("[Raydium](https://raydium.io/swap/?outputMint=%s&inputMint=sol)", record.Address)
	if marketCapValue == "" {
		marketCapValue = "NA"
		// Without a market cap the token is still on the bonding curve.
		exchange = fmt.Sprintf("[PumpFun](https://pump.fun/%s)", record.Address)
	}

	fields := []embedField{
		{
			Name:   "Caller Profile",
			Value:  fmt.Sprintf("%s (Total Calls: %d)", record.Caller.Username, alert.TotalCallsByUser),
			Inline: true,
		},
		{
			Name:   "Dex",
			Value:  fmt.Sprintf("[Dexscreener](https://dexscreener.com/search?q=%s)", record.Address),
			Inline: true,
		},
		{Name: "Token Address / CA", Value: fmt.Sprintf("`%s`", record.Address)},
		{Name: "MCAP", Value: marketCapValue, Inline: true},
		{Name: "EXCHANGE", Value: exchange, Inline: true},
	}
	fields = append(fields, channelRollup(record.Mentions)...)

	thumbnail := stringOr(record.TokenLogoURI, n.botImageURL)

	return n.post(ctx, embed{
		Title:     fmt.Sprintf("%s called %s at $%s", record.Caller.Username, symbol, marketCapValue),
		Color:     colorNewCall,
		Thumbnail: thumbnailFor(thumbnail),
		Fields:    fields,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// NotifyATH posts the all-time-high embed.
func (n *WebhookNotifier) NotifyATH(ctx context.Context, alert ATHAlert) error {
	record := alert.Record
	symbol := stringOr(record.TokenSymbol, record.Address)

	marketCap := alert.MarketCap
	formatted, _ := resolver.FormatMarketCap(&marketCap)
	calledAt, _ := resolver.FormatMarketCap(record.InitialMarketCap)
	high, _ := resolver.FormatMarketCap(record.AllTimeHigh)

	return n.post(ctx, embed{
		Title:     fmt.Sprintf("%s just reached a market cap of %s, new all-time high!", symbol, formatted),
		Color:     colorATH,
		Thumbnail: thumbnailFor(n.botImageURL),
		Fields: []embedField{
			{
				Name:   "Caller Profile",
				Value:  fmt.Sprintf("<@%s> (Total Calls: %d)", record.Caller.UserID, alert.TotalCallsByUser),
				Inline: true,
			},
			{Name: "Called at", Value: valueOr(calledAt), Inline: true},
			{Name: "ATH MCAP", Value: valueOr(high), Inline: true},
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (n *WebhookNotifier) post(ctx context.Context, e embed) error {
	payload, err := json.Marshal(webhookPayload{Embeds: []embed{e}})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// channelRollup groups mentions by channel the way the call embed lists them.
func channelRollup(mentions []types.Mention) []embedField {
	byChannel := make(map[string][]types.Mention)
	order := make([]string, 0)
	for _, mention := range mentions {
		if _, seen := byChannel[mention.ChannelID]; !seen {
			order = append(order, mention.ChannelID)
		}
		byChannel[mention.ChannelID] = append(byChannel[mention.ChannelID], mention)
	}

	fields := make([]embedField, 0, len(order))
	for _, channelID := range order {
		channelMentions := byChannel[channelID]
		lines := ""
		for _, mention := range channelMentions {
			if lines != "" {
				lines += "\n"
			}
			lines += fmt.Sprintf("[Message tracked at <t:%d:T>](%s)", mention.Timestamp.Unix(), mention.MessageLink)
		}
		fields = append(fields, embedField{
			Name:  fmt.Sprintf("%s called %d times", channelID, len(channelMentions)),
			Value: lines,
		})
	}

	return fields
}

func thumbnailFor(url string) *embedThumbnail {
	if url == "" {
		return nil
	}
	return &embedThumbnail{URL: url}
}

func stringOr(v *string, fallback string) string {
	if v != nil && *v != "" {
		return *v
	}
	return fallback
}

func valueOr(v string) string {
	if v == "" {
		return "NA"
	}
	return v
}
