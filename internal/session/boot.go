package session

import (
	"strconv"
	"strings"
	"time"
)

// BootToken identifies one boot instance of the remote host. Raw is the
// trimmed output of the boot query; ObservedAt anchors uptime-shaped
// tokens to the clock that observed them.
type BootToken struct {
	Raw        string
	ObservedAt time.Time
}

func (t BootToken) IsZero() bool {
	return t.Raw == ""
}

// Equal reports whether two tokens identify the same boot instance.
// Identical raw values always match. Timestamp-shaped tokens (uptime -s)
// match when their instants are within tolerance; numeric tokens
// (seconds since boot) are anchored to their observation time first.
// Tokens that fit neither shape must match exactly.
func (t BootToken) Equal(o BootToken, tolerance time.Duration) bool {
	if t.IsZero() || o.IsZero() {
		return false
	}
	if t.Raw == o.Raw {
		return true
	}
	a, okA := t.bootInstant()
	b, okB := o.bootInstant()
	if !okA || !okB {
		return false
	}
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}

var bootStampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
}

func (t BootToken) bootInstant() (time.Time, bool) {
	raw := strings.TrimSpace(t.Raw)
	for _, layout := range bootStampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil && secs >= 0 {
		return t.ObservedAt.Add(-time.Duration(secs * float64(time.Second))), true
	}
	return time.Time{}, false
}
