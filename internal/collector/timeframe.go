package collector

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe 回溯窗口
type Timeframe string

const (
	Timeframe24h Timeframe = "24h"
	Timeframe7d  Timeframe = "7d"
	Timeframe30d Timeframe = "30d"
)

// DefaultTimeframe 未指定时的窗口
const DefaultTimeframe = Timeframe7d

// ParseTimeframe 只接受 24h / 7d / 30d
func ParseTimeframe(s string) (Timeframe, error) {
	switch tf := Timeframe(strings.ToLower(strings.TrimSpace(s))); tf {
	case Timeframe24h, Timeframe7d, Timeframe30d:
		return tf, nil
	case "":
		return DefaultTimeframe, nil
	default:
		return "", fmt.Errorf("unsupported timeframe %q (want 24h, 7d or 30d)", s)
	}
}

// Duration 窗口长度
func (t Timeframe) Duration() time.Duration {
	switch t {
	case Timeframe24h:
		return 24 * time.Hour
	case Timeframe30d:
		return 30 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// Contains 发布时间未知时乐观保留
func (t Timeframe) Contains(published, now time.Time) bool {
	if published.IsZero() {
		return true
	}
	return !published.Before(now.Add(-t.Duration())) && !published.After(now.Add(ClockSkew))
}

func (t Timeframe) String() string {
	return string(t)
}
