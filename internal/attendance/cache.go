package attendance

import (
	"context"
	"encoding/json"
)

const cacheKey = "attendanceStatus"

// KV is the per-browser storage the cache lives in.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Cache keeps the status derived on the last page load so that a check-in
// or check-out submitted from that page is validated without another
// request. Entries belong to one user and one date.
type Cache struct {
	kv     KV
	userID string
}

type cachedStatus struct {
	UserID string `json:"userId"`
	Date   string `json:"date"`
	Day    *Day   `json:"day,omitempty"`
	Phase  Phase  `json:"phase"`
}

func NewCache(kv KV, userID string) *Cache {
	return &Cache{kv: kv, userID: userID}
}

// Load returns the cached status for today. Entries for another user or
// another date are ignored.
func (c *Cache) Load(ctx context.Context, today string) (Status, bool) {
	raw, ok, err := c.kv.Get(ctx, cacheKey)
	if err != nil || !ok {
		return Status{}, false
	}
	var cs cachedStatus
	if err := json.Unmarshal([]byte(raw), &cs); err != nil {
		return Status{}, false
	}
	if cs.UserID != c.userID || cs.Date != normalizeDate(today) {
		return Status{}, false
	}
	return Status{Date: cs.Date, Day: cs.Day, Phase: cs.Phase}, true
}

func (c *Cache) Save(ctx context.Context, st Status) error {
	raw, err := json.Marshal(cachedStatus{UserID: c.userID, Date: st.Date, Day: st.Day, Phase: st.Phase})
	if err != nil {
		return err
	}
	return c.kv.Set(ctx, cacheKey, string(raw))
}

func (c *Cache) Clear(ctx context.Context) error {
	return c.kv.Delete(ctx, cacheKey)
}
