package model

import "time"

// ConstraintResponse matches the JSON shape returned by the JAO publication tool
// for one hour.
//
// Example:
//
//	{
//	  "data": [ { "id": 1, "cnecName": "...", "ptdf_NO1": 0.12, ... } ],
//	  "totalRowsWithFilter": 1
//	}
//
// Rows are kept as generic maps because the set of ptdf_<ZONE> columns depends on
// the grid topology that was in force for the hour.
type ConstraintResponse struct {
	Data      []map[string]any `json:"data"`
	TotalRows int              `json:"totalRowsWithFilter"`
}

// RowKey identifies one CNEC in one hour. It is the unit of uniqueness and of
// idempotent insertion into the cache.
type RowKey struct {
	CnecID string
	Time   time.Time
}

// CnecRecord is one critical network element with contingency, for one hour.
type CnecRecord struct {
	CnecID string    `json:"cnec_id" validate:"required,uuid"`
	Time   time.Time `json:"time" validate:"required"`

	RawID int64  `json:"id"`
	Tso   string `json:"tso"`

	CnecName  string `json:"cnecName" validate:"required"`
	CnecType  string `json:"cnecType"`
	CneName   string `json:"cneName"`
	CneType   string `json:"cneType"`
	CneStatus string `json:"cneStatus"`
	CneEic    string `json:"cneEic"`
	Direction string `json:"direction"`

	HubFrom        string `json:"hubFrom"`
	HubTo          string `json:"hubTo"`
	SubstationFrom string `json:"substationFrom"`
	SubstationTo   string `json:"substationTo"`
	ElementType    string `json:"elementType"`
	FmaxType       string `json:"fmaxType"`

	ContTso            string `json:"contTso"`
	ContName           string `json:"contName"`
	ContStatus         string `json:"contStatus"`
	ContSubstationFrom string `json:"contSubstationFrom"`
	ContSubstationTo   string `json:"contSubstationTo"`
	ImaxMethod         string `json:"imaxMethod"`
	// Contingencies is the upstream contingency list, kept as raw JSON text.
	Contingencies string `json:"contingencies"`

	Presolved   bool `json:"presolved"`
	Significant bool `json:"significant"`

	// Margins and limits, in MW unless noted.
	RAM     float64 `json:"ram"`
	MinFlow float64 `json:"minFlow"`
	MaxFlow float64 `json:"maxFlow"`
	U       float64 `json:"u"`    // kV
	Imax    float64 `json:"imax"` // A
	Fmax    float64 `json:"fmax"`
	Frm     float64 `json:"frm"`
	Fnrao   float64 `json:"fnrao"`
	Fref    float64 `json:"fref"`
	Fall    float64 `json:"fall"`
	Amr     float64 `json:"amr"`
	Aac     float64 `json:"aac"`
	Iva     float64 `json:"iva"`

	FrefInit  *float64 `json:"frefInit,omitempty"`
	Fcore     *float64 `json:"fcore,omitempty"`
	Fuaf      *float64 `json:"fuaf,omitempty"`
	LtaMargin *float64 `json:"ltaMargin,omitempty"`
	Cva       *float64 `json:"cva,omitempty"`
	FtotalLtn *float64 `json:"ftotalLtn,omitempty"`
	Fltn      *float64 `json:"fltn,omitempty"`

	// Ptdfs holds zone-slack PTDFs keyed by zone code. A zone missing from the
	// map had a null coefficient upstream.
	Ptdfs map[string]float64 `json:"ptdfs"`
}

func (r CnecRecord) Key() RowKey {
	return RowKey{CnecID: r.CnecID, Time: r.Time}
}

// Ptdf returns the coefficient for zone and whether it was present.
func (r CnecRecord) Ptdf(zone string) (float64, bool) {
	v, ok := r.Ptdfs[zone]
	return v, ok
}

// Less orders records by hour, then by CNEC id.
func Less(a, b CnecRecord) bool {
	if !a.Time.Equal(b.Time) {
		return a.Time.Before(b.Time)
	}
	return a.CnecID < b.CnecID
}
