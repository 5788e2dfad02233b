package models

// RangeQuery is the hour range shared by every data endpoint. Both ends accept
// YYYY-MM-DD or RFC3339; the range is [from, to) in UTC hours.
type RangeQuery struct {
	From string `form:"from" binding:"required"`
	To   string `form:"to" binding:"required"`
	// AllowPartial returns whatever hours succeeded instead of failing when
	// some hours could not be fetched.
	AllowPartial bool `form:"allow_partial"`
}

// SeriesRequest represents GET /api/v1/series
type SeriesRequest struct {
	RangeQuery
	Cnec           string `form:"cnec"` // optional name or id filter
	IncludeRecords *bool  `form:"include_records"`
}

// VulnerabilityRequest represents GET /api/v1/vulnerability
type VulnerabilityRequest struct {
	RangeQuery
	Cnec string `form:"cnec" binding:"required"` // name or id
}

// RankRequest represents GET /api/v1/rank
type RankRequest struct {
	RangeQuery
	Limit int `form:"limit" binding:"omitempty,gte=0"` // default: 20, 0 = default
}
