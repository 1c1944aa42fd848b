package groupapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/ajoshi-dev/huddle/internal/chat"
	"github.com/ajoshi-dev/huddle/internal/metrics"
	"go.uber.org/zap"
)

// History fetches the persisted message snapshot for a group. It never
// fails: transport errors, non-2xx statuses, and malformed payloads all
// normalize to an empty slice so the session can still connect with an empty
// base. The slice seeds the message store and must be applied before the
// channel subscribes.
func (c *Client) History(ctx context.Context, group string) []chat.Event {
	u := c.baseURL + "/messages/" + url.PathEscape(group)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.logger.Warn("history fetch failed", zap.String("group", group), zap.Error(err))
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("history fetch rejected", zap.String("group", group), zap.Int("status", resp.StatusCode))
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Warn("history read failed", zap.String("group", group), zap.Error(err))
		return nil
	}

	events := normalizeHistory(body)
	metrics.HistoryEvents.Add(float64(len(events)))
	if events == nil {
		c.logger.Warn("history payload malformed, seeding empty", zap.String("group", group))
	}
	return events
}

// normalizeHistory turns whatever the transport handed back into a canonical
// event list. Some gateway deployments wrap the array in {"Content": "<json>"};
// anything else that is not an array yields nil.
func normalizeHistory(body []byte) []chat.Event {
	var events []chat.Event
	if err := json.Unmarshal(body, &events); err == nil {
		return dropInvalid(events)
	}

	var wrapped struct {
		Content string `json:"Content"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Content != "" {
		if err := json.Unmarshal([]byte(wrapped.Content), &events); err == nil {
			return dropInvalid(events)
		}
	}
	return nil
}

// dropInvalid filters entries whose type is outside the closed kind set.
func dropInvalid(events []chat.Event) []chat.Event {
	out := events[:0]
	for _, e := range events {
		if e.Kind.Valid() {
			out = append(out, e)
		}
	}
	return out
}
