package orders

import (
	"context"
	"time"
)

// Stats is the staff board header: how many orders came in today and how much
// of today's completed orders was billed.
type Stats struct {
	TodayCount int     `json:"todayCount"`
	TodaySales float64 `json:"todaySales"`
}

func (e *Engine) TodayStats(ctx context.Context) (Stats, error) {
	all, err := e.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(time.Now(), all), nil
}

func ComputeStats(now time.Time, all []Order) Stats {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var s Stats
	for _, o := range all {
		created, err := time.Parse(time.RFC3339, o.CreatedAt)
		if err != nil {
			continue
		}
		if created.Before(dayStart) {
			continue
		}
		s.TodayCount++
		if o.Status == StatusCompleted {
			s.TodaySales += o.TotalAmount
		}
	}
	return s
}
