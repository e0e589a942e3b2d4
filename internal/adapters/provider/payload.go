package provider

import (
	"errors"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

var ErrMalformed = errors.New("provider: malformed payload")

// ParseBody checks the body is JSON before any path lookups.
func ParseBody(b []byte) (gjson.Result, error) {
	if len(b) == 0 || !gjson.ValidBytes(b) {
		return gjson.Result{}, ErrMalformed
	}
	return gjson.ParseBytes(b), nil
}

// FirstString returns the first non-empty string among paths.
func FirstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() {
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

// OptString is FirstString as a nil-able pointer.
func OptString(r gjson.Result, paths ...string) *string {
	if s := FirstString(r, paths...); s != "" {
		return &s
	}
	return nil
}

// RawNumber returns the raw JSON token of the first present path, so that
// numbers keep their original precision ("4.6") and enums stay as text.
func RawNumber(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		v := r.Get(p)
		switch v.Type {
		case gjson.Number:
			return v.Raw
		case gjson.String:
			if s := strings.TrimSpace(v.Str); s != "" {
				return s
			}
		}
	}
	return ""
}

// ParseTime accepts RFC3339 first, then the given layouts (all read as UTC).
func ParseTime(s string, layouts ...string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	for _, l := range layouts {
		if t, err := time.ParseInLocation(l, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// UnixTime reads a seconds-since-epoch number (int or float).
func UnixTime(v gjson.Result) (time.Time, bool) {
	if v.Type != gjson.Number {
		return time.Time{}, false
	}
	f := v.Float()
	if f <= 0 {
		return time.Time{}, false
	}
	sec := int64(f)
	return time.Unix(sec, int64((f-float64(sec))*1e9)).UTC(), true
}

func OptTime(t time.Time, ok bool) *time.Time {
	if !ok {
		return nil
	}
	return &t
}
