package model

import (
	"sort"
	"time"
)

// FlowPoint is one hourly value of a directional cross-border flow, MW.
type FlowPoint struct {
	Time time.Time `json:"time"`
	Flow float64   `json:"flow"`
}

// FlowValue is a flow attributed to a CNEC in one hour. It is used for observed
// flows, linearised flows and linearisation errors alike.
type FlowValue struct {
	CnecID string    `json:"cnec_id"`
	Time   time.Time `json:"time"`
	Flow   float64   `json:"flow"`
}

func (f FlowValue) Key() RowKey {
	return RowKey{CnecID: f.CnecID, Time: f.Time}
}

// NetPosition is the per-zone net position for one hour, MW. Zones without a
// value are absent from the map.
type NetPosition struct {
	Time  time.Time          `json:"time"`
	Zones map[string]float64 `json:"zones"`
}

// NetPositions indexes net positions by hour. Keys are UTC hour instants.
type NetPositions map[time.Time]NetPosition

// Hours returns the indexed hours in ascending order.
func (n NetPositions) Hours() []time.Time {
	out := make([]time.Time, 0, len(n))
	for t := range n {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// SortFlowValues orders values by hour, then CNEC id.
func SortFlowValues(v []FlowValue) {
	sort.Slice(v, func(i, j int) bool {
		if !v[i].Time.Equal(v[j].Time) {
			return v[i].Time.Before(v[j].Time)
		}
		return v[i].CnecID < v[j].CnecID
	})
}
