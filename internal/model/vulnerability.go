package model

import "time"

// VulnerabilityResult describes how exposed a CNEC was to linearisation error in
// one hour.
//
// Both ratios are dimensionless and non-negative. A value of +Inf means the
// denominator margin was zero (observed flow at the limit, or a zero basecase
// margin) and the ratio is undefined.
type VulnerabilityResult struct {
	CnecID string    `json:"cnec_id"`
	Time   time.Time `json:"time"`

	ObservedFlow       float64 `json:"observed_flow"`
	LinearisedFlow     float64 `json:"linearised_flow"`
	LinearisationError float64 `json:"linearisation_error"`

	VulnerabilityScore     float64 `json:"vulnerability_score"`
	BasecaseRelativeMargin float64 `json:"basecase_relative_margin"`
}
