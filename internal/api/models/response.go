package models

import (
	"encoding/json"
	"math"
	"time"

	"fbmc-quality/internal/model"
)

// Ratio is a dimensionless ratio that may be +Inf when its denominator was
// zero. Non-finite values encode as JSON null.
type Ratio float64

func (r Ratio) MarshalJSON() ([]byte, error) {
	f := float64(r)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

// Finite reports whether the ratio is a real number.
func (r Ratio) Finite() bool {
	f := float64(r)
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

// TimeWindow represents a time range
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Hours int       `json:"hours"`
}

// SeriesResponse represents the response from GET /api/v1/series
type SeriesResponse struct {
	Window       TimeWindow         `json:"window"`
	CacheStatus  string             `json:"cache_status"`
	CachedHours  int                `json:"cached_hours"`
	FetchedHours int                `json:"fetched_hours"`
	EmptyHours   int                `json:"empty_hours"`
	FailedHours  []time.Time        `json:"failed_hours,omitempty"`
	Persisted    int                `json:"persisted"`
	Count        int                `json:"count"`
	Cnecs        int                `json:"cnecs"`
	Records      []model.CnecRecord `json:"records,omitempty"`
}

// VulnerabilityRow is one hour of a CNEC's vulnerability.
type VulnerabilityRow struct {
	Time                   time.Time `json:"time"`
	ObservedFlow           float64   `json:"observed_flow"`
	LinearisedFlow         float64   `json:"linearised_flow"`
	LinearisationError     float64   `json:"linearisation_error"`
	VulnerabilityScore     Ratio     `json:"vulnerability_score"`
	BasecaseRelativeMargin Ratio     `json:"basecase_relative_margin"`
	// Degenerate is set when either ratio had a zero denominator.
	Degenerate bool `json:"degenerate,omitempty"`
}

// VulnerabilityResponse represents the response from GET /api/v1/vulnerability
type VulnerabilityResponse struct {
	CnecID   string             `json:"cnec_id"`
	CnecName string             `json:"cnec_name"`
	FromZone string             `json:"from_zone"`
	ToZone   string             `json:"to_zone"`
	Window   TimeWindow         `json:"window"`
	Summary  Ranking            `json:"summary"`
	Results  []VulnerabilityRow `json:"results"`
}

// RankResponse represents the response from GET /api/v1/rank
type RankResponse struct {
	Window   TimeWindow `json:"window"`
	Total    int        `json:"total"`
	Rankings []Ranking  `json:"rankings"`
}

// Ranking represents one ranked CNEC
type Ranking struct {
	Rank              int       `json:"rank,omitempty"`
	CnecID            string    `json:"cnec_id"`
	CnecName          string    `json:"cnec_name"`
	Start             time.Time `json:"start"`
	End               time.Time `json:"end"`
	Hours             int       `json:"hours"`
	MeanVulnerability Ratio     `json:"mean_vulnerability"`
	MaxVulnerability  Ratio     `json:"max_vulnerability"`
	MeanMargin        Ratio     `json:"mean_margin"`
	MeanAbsError      float64   `json:"mean_abs_error"`
	RMSError          float64   `json:"rms_error"`
	DegenerateHours   int       `json:"degenerate_hours"`
}

// ZoneInfo represents one bidding zone
type ZoneInfo struct {
	Code       string   `json:"code"`
	EIC        string   `json:"eic,omitempty"`
	Neighbours []string `json:"neighbours,omitempty"`
	Physical   bool     `json:"physical"`
}

// ZonesResponse represents the response from GET /api/v1/zones
type ZonesResponse struct {
	Region string     `json:"region"`
	Zones  []ZoneInfo `json:"zones"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
