// Package ratelimit counts requests per identifier in fixed minute, hour and day buckets backed by Redis.
package ratelimit

import (
	"strconv"
	"time"
)

// Window is one of the three counting windows.
type Window string

const (
	Minute Window = "minute"
	Hour   Window = "hour"
	Day    Window = "day"
)

// Windows lists the windows from smallest to largest. Check reports the first breached window in this order.
var Windows = []Window{Minute, Hour, Day}

// KeyPrefix is the namespace of every counter key.
const KeyPrefix = "rate_limit:"

// Length returns the window duration.
func (w Window) Length() time.Duration {
	switch w {
	case Minute:
		return time.Minute
	case Hour:
		return time.Hour
	case Day:
		return 24 * time.Hour
	default:
		return 0
	}
}

func (w Window) seconds() int64 {
	return int64(w.Length() / time.Second)
}

// Bucket is the index of the bucket containing at (unix seconds floored by the window length).
func (w Window) Bucket(at time.Time) int64 {
	return at.Unix() / w.seconds()
}

// ResetIn is the number of whole seconds until the bucket containing at ends. Always at least 1.
func (w Window) ResetIn(at time.Time) int64 {
	s := w.seconds()
	rem := s - at.Unix()%s
	if rem < 1 {
		return 1
	}
	return rem
}

// Key builds the counter key rate_limit:{window}:{identifier}:{bucket}.
func (w Window) Key(identifier string, at time.Time) string {
	return KeyPrefix + string(w) + ":" + identifier + ":" + strconv.FormatInt(w.Bucket(at), 10)
}

// Limits holds the threshold for each window. A non-positive threshold disables that window.
type Limits struct {
	PerMinute int64 `yaml:"minute" json:"minute"`
	PerHour   int64 `yaml:"hour" json:"hour"`
	PerDay    int64 `yaml:"day" json:"day"`
}

// For returns the threshold for w.
func (l Limits) For(w Window) int64 {
	switch w {
	case Minute:
		return l.PerMinute
	case Hour:
		return l.PerHour
	case Day:
		return l.PerDay
	default:
		return 0
	}
}

// Counters is a snapshot of the current bucket counts for one identifier.
type Counters struct {
	Minute int64 `json:"minute"`
	Hour   int64 `json:"hour"`
	Day    int64 `json:"day"`
}

// For returns the count for w.
func (c Counters) For(w Window) int64 {
	switch w {
	case Minute:
		return c.Minute
	case Hour:
		return c.Hour
	case Day:
		return c.Day
	default:
		return 0
	}
}

func (c *Counters) set(w Window, v int64) {
	switch w {
	case Minute:
		c.Minute = v
	case Hour:
		c.Hour = v
	case Day:
		c.Day = v
	}
}

// Violation describes the first breached window.
type Violation struct {
	Window         Window `json:"window"`
	Limit          int64  `json:"limit"`
	Current        int64  `json:"current"`
	ResetInSeconds int64  `json:"resetInSeconds"`
}
