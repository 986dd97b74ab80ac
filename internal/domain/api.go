package domain

import "time"

type ErrorResponse struct {
	Error             string `json:"error"`
	RetryAfterSeconds *int   `json:"retryAfterSeconds,omitempty"`
}

type HealthResponse struct {
	Status                    string     `json:"status"`
	CacheFresh                bool       `json:"cacheFresh"`
	RateLimitSecondsRemaining int        `json:"rateLimitSecondsRemaining"`
	Source                    string     `json:"source"`
	Mirror                    string     `json:"mirror"`
	MirrorReachable           *bool      `json:"mirrorReachable,omitempty"`
	Records                   int        `json:"records"`
	LastRefreshedAt           *time.Time `json:"lastRefreshedAt,omitempty"`
	Timestamp                 time.Time  `json:"timestamp"`
}
