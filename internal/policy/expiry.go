package policy

import (
	"net/http"
	"time"
)

// CapturedAt parses the capture-time header. ok is false when the header is
// absent or unparseable.
func (p Policy) CapturedAt(h http.Header) (time.Time, bool) {
	v := h.Get(p.CaptureHeader)
	if v == "" {
		return time.Time{}, false
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Expired reports whether an entry with headers h is older than the class
// max age at now. Classes without a max age never expire, and neither do
// entries with no capture header.
func (p Policy) Expired(class ResourceClass, h http.Header, now time.Time) bool {
	maxAge, ok := p.MaxAge[class]
	if !ok || maxAge <= 0 {
		return false
	}
	captured, ok := p.CapturedAt(h)
	if !ok {
		return false
	}
	return now.Sub(captured) > maxAge
}
