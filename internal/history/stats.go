package history

import (
	"context"
	"time"

	"propscan-api/internal/model"
)

// Summarize computes statistics over records. SuccessRate is a percentage;
// both rates are zero for an empty slice.
func Summarize(records []model.ScanRecord) model.ScanStatistics {
	stats := model.ScanStatistics{
		Total:      len(records),
		ByPlatform: make(map[string]int),
	}

	var totalDuration int64
	for _, r := range records {
		if r.Success {
			stats.Successful++
		}
		totalDuration += r.Duration
		countType(&stats.ByType, r.Type)
		stats.ByPlatform[r.DeviceInfo.Platform]++
	}

	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total) * 100
		stats.AverageDuration = float64(totalDuration) / float64(stats.Total)
	}
	return stats
}

// Trends groups the log into trailing hour, day and week windows relative to now.
func (s *Store) Trends(ctx context.Context, now time.Time) model.ScanTrends {
	records := s.Records(ctx)
	return model.ScanTrends{
		Hourly: windowMetrics(records, now, time.Hour),
		Daily:  windowMetrics(records, now, 24*time.Hour),
		Weekly: windowMetrics(records, now, 7*24*time.Hour),
	}
}

func windowMetrics(records []model.ScanRecord, now time.Time, window time.Duration) *model.WindowMetrics {
	cutoff := now.Add(-window).UnixMilli()

	var m model.WindowMetrics
	var successes, totalDuration int64
	for _, r := range records {
		if r.Timestamp <= cutoff {
			continue
		}
		m.TotalScans++
		if r.Success {
			successes++
		}
		totalDuration += r.Duration
		countType(&m.TypeDistribution, r.Type)
	}

	if m.TotalScans == 0 {
		return nil
	}

	total := float64(m.TotalScans)
	m.SuccessRate = float64(successes) / total * 100
	m.ErrorRate = float64(int64(m.TotalScans)-successes) / total * 100
	m.AverageDuration = float64(totalDuration) / total
	return &m
}

func countType(c *model.TypeCounts, t model.ScanType) {
	switch t {
	case model.ScanTypeNFC:
		c.NFC++
	case model.ScanTypeQR:
		c.QR++
	}
}
