package status

import (
	"fmt"
	"strings"
	"time"
)

type Preset struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Seconds     int    `json:"seconds"`
	Description string `json:"description"`
}

const (
	ThresholdTest    = 30
	ThresholdHalfDay = 43200
	ThresholdFullDay = 86400
)

var presets = []Preset{
	{Key: "test", Label: "30 seconds", Seconds: ThresholdTest, Description: "Short window for trying things out"},
	{Key: "half-day", Label: "12 hours", Seconds: ThresholdHalfDay, Description: "Check in twice a day"},
	{Key: "full-day", Label: "24 hours", Seconds: ThresholdFullDay, Description: "Check in once a day"},
}

func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// LookupPreset accepts the preset key, an underscore variant of it, or the
// label.
func LookupPreset(name string) (Preset, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "_", "-")
	for _, p := range presets {
		if p.Key == name || strings.ToLower(p.Label) == name {
			return p, true
		}
	}
	return Preset{}, false
}

// FormatThreshold renders a threshold the way settings screens show it:
// "30 seconds", "5 minutes", "12 hours", "1 day".
func FormatThreshold(seconds int) string {
	switch {
	case seconds < 60:
		return plural(seconds, "second")
	case seconds < 3600:
		return plural(seconds/60, "minute")
	case seconds < 86400:
		return plural(seconds/3600, "hour")
	default:
		return plural(seconds/86400, "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// FormatDuration renders a countdown as "1d 2h", "3h 4m", "5m 6s" or "7s".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60
	secs := total % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}
