package model

import "time"

// DayCount is the number of alerts raised on one UTC day (YYYY-MM-DD).
type DayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// AlertSummary aggregates alerts raised since a point in time.
type AlertSummary struct {
	Since   time.Time          `json:"since"`
	Total   int                `json:"total"`
	ByState map[AlertState]int `json:"by_state"`
	ByKind  map[AlertKind]int  `json:"by_kind"`
	PerDay  []DayCount         `json:"per_day"`
}

// Backlog is the number of alerts still waiting for a final decision.
func (s AlertSummary) Backlog() int {
	return s.ByState[AlertPending] + s.ByState[AlertInProgress]
}

// LineConformity counts records on a line and how many raised no alert.
type LineConformity struct {
	LineID     int64   `json:"line_id"`
	LineName   string  `json:"line_name"`
	Records    int     `json:"records"`
	Conforming int     `json:"conforming"`
	Rate       float64 `json:"rate"`
}

// ComputeRate sets Rate as a percentage. A line without records has rate 0.
func (c *LineConformity) ComputeRate() {
	if c.Records == 0 {
		c.Rate = 0
		return
	}
	c.Rate = float64(c.Conforming) / float64(c.Records) * 100
}
