package analytics

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/YannKr/medialink/internal/model"
)

const (
	recentLimit       = 10
	topLocationsLimit = 5
	dayLayout         = "2006-01-02"
)

type Report struct {
	Media     MediaSummary `json:"media"`
	Analytics Aggregate    `json:"analytics"`
}

type MediaSummary struct {
	ID    string          `json:"id"`
	Title string          `json:"title"`
	Type  model.MediaType `json:"type"`
}

type Aggregate struct {
	TotalViews    int             `json:"total_views"`
	UniqueViewers int             `json:"unique_viewers"`
	ViewsPerDay   map[string]int  `json:"views_per_day"`
	RecentViews   []RecentView    `json:"recent_views"`
	TopLocations  []LocationCount `json:"top_locations"`
	DailyStats    DailyStats      `json:"daily_stats"`
	TimePeriod    TimePeriod      `json:"time_period"`
}

type RecentView struct {
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	Timestamp time.Time `json:"timestamp"`
}

type LocationCount struct {
	Location string `json:"location"`
	Views    int    `json:"views"`
}

// DailyStats summarizes the per-day series over every calendar day in the
// window, days without views counting as zero.
type DailyStats struct {
	Mean      float64 `json:"mean"`
	StdDev    float64 `json:"std_dev"`
	PeakDay   string  `json:"peak_day,omitempty"`
	PeakViews int     `json:"peak_views"`
}

type TimePeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Days  int       `json:"days"`
}

// aggregate derives the report body from rows sorted ascending by timestamp.
// labels maps each viewer IP to its location label.
func aggregate(rows []model.ViewLogEntry, labels map[string]string, start, end time.Time, days int) Aggregate {
	agg := Aggregate{
		TotalViews:   len(rows),
		ViewsPerDay:  make(map[string]int),
		RecentViews:  []RecentView{},
		TopLocations: []LocationCount{},
		TimePeriod:   TimePeriod{Start: start, End: end, Days: days},
	}

	unique := make(map[string]struct{})
	for _, r := range rows {
		unique[r.ViewerIP] = struct{}{}
		agg.ViewsPerDay[r.Timestamp.UTC().Format(dayLayout)]++
	}
	agg.UniqueViewers = len(unique)

	tail := rows
	if len(tail) > recentLimit {
		tail = tail[len(tail)-recentLimit:]
	}
	for _, r := range tail {
		agg.RecentViews = append(agg.RecentViews, RecentView{IP: r.ViewerIP, UserAgent: r.UserAgent, Timestamp: r.Timestamp})
	}

	agg.TopLocations = topLocations(rows, labels)
	agg.DailyStats = dailyStats(agg.ViewsPerDay, start, end)
	return agg
}

func topLocations(rows []model.ViewLogEntry, labels map[string]string) []LocationCount {
	index := make(map[string]int)
	out := []LocationCount{}
	for _, r := range rows {
		label, ok := labels[r.ViewerIP]
		if !ok {
			label = "Unknown"
		}
		i, seen := index[label]
		if !seen {
			i = len(out)
			index[label] = i
			out = append(out, LocationCount{Location: label})
		}
		out[i].Views++
	}
	// Stable: equal counts keep first-encountered order.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Views > out[j].Views })
	if len(out) > topLocationsLimit {
		out = out[:topLocationsLimit]
	}
	return out
}

func dailyStats(perDay map[string]int, start, end time.Time) DailyStats {
	var days []string
	var series []float64
	first := truncateDay(start)
	last := truncateDay(end)
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		key := d.Format(dayLayout)
		days = append(days, key)
		series = append(series, float64(perDay[key]))
	}
	if len(series) == 0 {
		return DailyStats{}
	}

	ds := DailyStats{
		Mean:   round2(stat.Mean(series, nil)),
		StdDev: round2(stat.PopStdDev(series, nil)),
	}
	if peak := floats.MaxIdx(series); series[peak] > 0 {
		ds.PeakDay = days[peak]
		ds.PeakViews = int(series[peak])
	}
	return ds
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func round2(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Round(v*100) / 100
}
