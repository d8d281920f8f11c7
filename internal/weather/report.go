package weather

import (
	"math"
	"strconv"
	"strings"
)

var compassSectors = []string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// Compass converts a bearing in degrees to a 16-sector compass name.
// Non-numeric bearings pass through unchanged.
func Compass(bearing string) string {
	deg, err := strconv.ParseFloat(strings.TrimSpace(bearing), 64)
	if err != nil {
		return bearing
	}
	idx := int(math.Round(deg/22.5)) % 16
	if idx < 0 {
		idx += 16
	}

	return compassSectors[idx]
}

// FormatReport assembles the single-line report from the available
// readings. Fields keep a fixed order; absent readings are skipped. The
// wind field needs at least a speed. Returns "" when nothing is available.
func FormatReport(readings map[string]Reading) string {
	var fields []string
	add := func(s string) { fields = append(fields, s) }

	if r, ok := readings["temperature"]; ok {
		add(r.State + r.Unit)
	}
	if r, ok := readings["humidity"]; ok {
		add(r.State + r.Unit)
	}
	if speed, ok := readings["wind_speed"]; ok {
		var b strings.Builder
		if bearing, ok := readings["wind_bearing"]; ok {
			b.WriteString(Compass(bearing.State))
		}
		b.WriteString(speed.State)
		if gust, ok := readings["wind_gust"]; ok {
			b.WriteString("G")
			b.WriteString(gust.State)
		}
		b.WriteString(speed.Unit)
		add(b.String())
	}
	if r, ok := readings["pressure"]; ok {
		add(r.State + r.Unit)
	}
	if r, ok := readings["uv"]; ok {
		add("UV" + r.State)
	}
	if r, ok := readings["rain_rate"]; ok {
		add(r.State + r.Unit)
	}
	if r, ok := readings["rain_daily"]; ok {
		add(r.State + r.Unit)
	}
	if r, ok := readings["solar_radiation"]; ok {
		add(r.State + r.Unit)
	}
	if r, ok := readings["dew_point"]; ok {
		add("DP" + r.State + r.Unit)
	}

	if len(fields) == 0 {
		return ""
	}

	return "WX: " + strings.Join(fields, " ")
}
