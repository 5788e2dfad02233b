package acquire

import (
	"sort"

	"fbmc-quality/internal/model"
)

// Merge combines cached and freshly fetched records into one series ordered by
// hour then CNEC id, unique on (CNEC id, hour). When both inputs carry the same
// key the cached record wins, and within one input the earlier record wins.
func Merge(cached, fresh []model.CnecRecord) []model.CnecRecord {
	all := make([]model.CnecRecord, 0, len(cached)+len(fresh))
	all = append(all, cached...)
	all = append(all, fresh...)
	sort.SliceStable(all, func(i, j int) bool { return model.Less(all[i], all[j]) })

	out := all[:0]
	for i, r := range all {
		if i > 0 && r.CnecID == all[i-1].CnecID && r.Time.Equal(all[i-1].Time) {
			continue
		}
		out = append(out, r)
	}
	return out
}
