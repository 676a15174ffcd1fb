package model

import "time"

// Candidate is what a single discovery tier returns for an intent.
type Candidate struct {
	Selector string
	Score    float64
	Strategy string
	Stable   bool
	Meta     map[string]string
}

// CacheEntry is the value half of a Selector Cache record.
// Invariant: only entries with Stable = true are ever written to the cache.
type CacheEntry struct {
	Selector       string
	Strategy       string
	Confidence     float64
	Stable         bool
	DOMFingerprint string
	DOMSkeleton    string
	FailStreak     int
	HitCount       int
	CreatedAt      time.Time
	LastSeenAt     time.Time
}

// CacheKey identifies a cache row.
type CacheKey struct {
	SessionScope string
	URLPattern   string
	ElementName  string
	ActionClass  string
}

// HealRecord is a single heal-attempt outcome.
type HealRecord struct {
	URLPattern string
	Element    string
	Strategy   string
	Outcome    string // "success" | "fail"
	LatencyMs  int64
	HealRound  int
	CreatedAt  time.Time
}

// RunRecord is the persisted summary of a completed (or aborted) run.
type RunRecord struct {
	ReqID         string
	URL           string
	Verdict       Verdict
	StepsTotal    int
	StepsExecuted int
	HealRounds    int
	StartedAt     time.Time
	EndedAt       time.Time
	RCAClass      RCAClass
	RCADetail     string
	Steps         []StepRecord
	HealEvents    []HealEvent
	Artifacts     []string
}
