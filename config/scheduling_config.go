package config

import (
	"time"
)

// SchedulingConfig holds the smart-timing heuristics. The weights and
// constants here are product decisions, kept as configuration rather than
// hardcoded in the engine.
type SchedulingConfig struct {
	// Jitter applied to every candidate time to avoid predictable delivery
	// patterns.
	JitterWindow time.Duration

	// Fallback when the optimal-time lookup fails.
	FallbackDelay time.Duration

	// Hour a notification moves to when the daily cap is hit.
	OverflowHour int

	// Fixed reschedule deltas per reason.
	RescheduleUserBusy  time.Duration
	RescheduleFrequency time.Duration
	RescheduleOther     time.Duration

	// Rolling window feeding the optimal-time cache.
	EngagementWindowDays int
}

// ReportConfig holds the weekly-report batch tuning and aggregate constants.
type ReportConfig struct {
	ChunkSize  int
	ChunkPause time.Duration

	// Eligibility
	ActiveWithinDays int

	// Priority score weights
	TierWeightAdmin    int
	TierWeightPremium  int
	TierWeightPlus     int
	ActivityWeightDay  int // active within 1 day
	ActivityWeightWeek int // active within 7 days

	// Aggregate constants
	PointsPerStudyHour  float64
	FocusSessionMinutes int
	RetryFailedWithin   time.Duration

	// When the weekly run fires.
	RunWeekday time.Weekday
	RunHour    int
}

// HistoryConfig holds the ledger cache and retention settings.
type HistoryConfig struct {
	CacheTTL      time.Duration
	RetentionDays int
}

func DefaultSchedulingConfig() SchedulingConfig {
	return SchedulingConfig{
		JitterWindow:         15 * time.Minute,
		FallbackDelay:        1 * time.Hour,
		OverflowHour:         9,
		RescheduleUserBusy:   30 * time.Minute,
		RescheduleFrequency:  60 * time.Minute,
		RescheduleOther:      15 * time.Minute,
		EngagementWindowDays: 30,
	}
}

func DefaultReportConfig() ReportConfig {
	return ReportConfig{
		ChunkSize:           50,
		ChunkPause:          1 * time.Second,
		ActiveWithinDays:    7,
		TierWeightAdmin:     100,
		TierWeightPremium:   50,
		TierWeightPlus:      20,
		ActivityWeightDay:   30,
		ActivityWeightWeek:  10,
		PointsPerStudyHour:  10,
		FocusSessionMinutes: 30,
		RetryFailedWithin:   3 * time.Hour,
		RunWeekday:          time.Monday,
		RunHour:             6,
	}
}

func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		CacheTTL:      5 * time.Minute,
		RetentionDays: 20,
	}
}
