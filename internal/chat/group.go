package chat

import "time"

// Group is the read model for one chat group, as returned by the group
// service. The engine never owns or mutates it; it is refreshed on demand.
type Group struct {
	GroupName string   `json:"groupName"`
	CreatedBy string   `json:"createdBy"`
	CreatedAt string   `json:"createdAt"`
	ExpiresAt string   `json:"expiresAt"`
	Members   []string `json:"members"`
}

// ExpiresInMinutes derives the authoritative minutes-remaining value from the
// group's expiry instant, floored at zero. An unparseable or missing expiry
// yields zero.
func (g Group) ExpiresInMinutes(now time.Time) float64 {
	if g.ExpiresAt == "" {
		return 0
	}
	exp, err := parseInstant(g.ExpiresAt)
	if err != nil {
		return 0
	}
	mins := exp.Sub(now).Minutes()
	if mins < 0 {
		return 0
	}
	return mins
}

// parseInstant accepts the timestamp shapes the group service emits: RFC 3339
// with or without a zone offset.
func parseInstant(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Parse(time.RFC3339, s)
}
