package data

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"fbmc-quality/internal/model"
	"fbmc-quality/internal/timeseries"

	"github.com/rs/zerolog/log"
)

// DefaultENTSOEBaseURL is the transparency platform REST endpoint.
const DefaultENTSOEBaseURL = "https://web-api.tp.entsoe.eu"

const (
	entsoePeriodLayout = "200601021504"
	entsoeTimeLayout   = "2006-01-02T15:04Z"
	// the platform refuses requests spanning more than a year
	entsoeMaxSpan = 365 * 24 * time.Hour
)

// ENTSOEClient reads observed physical cross-border flows (document type A11)
// from the ENTSO-E transparency platform.
type ENTSOEClient struct {
	BaseURL string
	APIKey  string
	up      *upstream
}

// NewENTSOEClient creates a client. An empty apiKey falls back to the
// ENTSOE_API_KEY environment variable.
func NewENTSOEClient(baseURL, apiKey string, opts ClientOptions) *ENTSOEClient {
	if baseURL == "" {
		baseURL = DefaultENTSOEBaseURL
	}
	if apiKey == "" {
		apiKey = os.Getenv("ENTSOE_API_KEY")
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 6
		opts.Burst = 6
	}
	return &ENTSOEClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		up:      newUpstream("entsoe", opts),
	}
}

type publicationDocument struct {
	XMLName    xml.Name           `xml:"Publication_MarketDocument"`
	TimeSeries []entsoeTimeSeries `xml:"TimeSeries"`
}

type entsoeTimeSeries struct {
	InDomain  string         `xml:"in_Domain.mRID"`
	OutDomain string         `xml:"out_Domain.mRID"`
	CurveType string         `xml:"curveType"`
	Periods   []entsoePeriod `xml:"Period"`
}

type entsoePeriod struct {
	Start      string        `xml:"timeInterval>start"`
	End        string        `xml:"timeInterval>end"`
	Resolution string        `xml:"resolution"`
	Points     []entsoePoint `xml:"Point"`
}

type entsoePoint struct {
	Position int     `xml:"position"`
	Quantity float64 `xml:"quantity"`
}

type acknowledgementDocument struct {
	XMLName xml.Name `xml:"Acknowledgement_MarketDocument"`
	Reasons []struct {
		Code string `xml:"code"`
		Text string `xml:"text"`
	} `xml:"Reason"`
}

// FetchPhysicalFlow returns hourly physical flows from outEIC into inEIC over r.
// Sub-hourly resolutions are averaged to the hour. An answer of "no matching
// data" yields an empty series.
func (c *ENTSOEClient) FetchPhysicalFlow(ctx context.Context, outEIC, inEIC string, r timeseries.TimeRange) ([]model.FlowPoint, error) {
	if c.APIKey == "" {
		return nil, &APIError{Source: "entsoe", Code: "MISSING_API_KEY", Message: "ENTSO-E security token is required"}
	}

	var out []model.FlowPoint
	for start := r.From; start.Before(r.To); start = start.Add(entsoeMaxSpan) {
		end := start.Add(entsoeMaxSpan)
		if end.After(r.To) {
			end = r.To
		}
		chunk, err := c.fetchChunk(ctx, outEIC, inEIC, timeseries.TimeRange{From: start, To: end})
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

func (c *ENTSOEClient) fetchChunk(ctx context.Context, outEIC, inEIC string, r timeseries.TimeRange) ([]model.FlowPoint, error) {
	u, err := url.Parse(c.BaseURL + "/api")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	q := url.Values{}
	q.Set("documentType", "A11")
	q.Set("in_Domain", inEIC)
	q.Set("out_Domain", outEIC)
	q.Set("periodStart", r.From.UTC().Format(entsoePeriodLayout))
	q.Set("periodEnd", r.To.UTC().Format(entsoePeriodLayout))
	q.Set("securityToken", c.APIKey)
	u.RawQuery = q.Encode()

	log.Debug().Str("out", outEIC).Str("in", inEIC).Stringer("range", r).Msg("entsoe request")
	resp, err := c.up.get(ctx, u.String(), "application/xml")
	if err != nil {
		return nil, err
	}

	// The platform answers "no data" with an acknowledgement document, on 200 or 400.
	if bytes.Contains(resp.Body, []byte("Acknowledgement_MarketDocument")) {
		reason := ackReason(resp.Body)
		if strings.Contains(strings.ToLower(reason), "no matching data") {
			log.Info().Str("out", outEIC).Str("in", inEIC).Stringer("range", r).Msg("entsoe has no data")
			return nil, nil
		}
		return nil, &APIError{Source: "entsoe", StatusCode: resp.StatusCode, Code: "ACKNOWLEDGEMENT", Message: reason}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("entsoe", resp)
	}

	points, err := ParsePhysicalFlows(resp.Body)
	if err != nil {
		return nil, err
	}
	filtered := points[:0]
	for _, p := range points {
		if r.Contains(p.Time) {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

// NetFlowSeries is the net flow across one border. Points covers the union of
// hours either direction reported; Complete lists the hours both did.
type NetFlowSeries struct {
	Points   []model.FlowPoint
	Complete []time.Time
}

// CompletePoints returns the points whose hour both directions reported.
func (s NetFlowSeries) CompletePoints() []model.FlowPoint {
	both := timeseries.HourSet(s.Complete)
	out := make([]model.FlowPoint, 0, len(s.Complete))
	for _, p := range s.Points {
		if _, ok := both[p.Time]; ok {
			out = append(out, p)
		}
	}
	return out
}

// FetchNetFlow returns flow(from→to) − flow(to→from) per hour. A direction
// missing for an hour counts as zero.
func (c *ENTSOEClient) FetchNetFlow(ctx context.Context, from, to Zone, r timeseries.TimeRange) (NetFlowSeries, error) {
	if from.EIC == "" || to.EIC == "" {
		return NetFlowSeries{}, fmt.Errorf("zones %s and %s must both have an EIC", from.Code, to.Code)
	}
	forward, err := c.FetchPhysicalFlow(ctx, from.EIC, to.EIC, r)
	if err != nil {
		return NetFlowSeries{}, fmt.Errorf("flow %s->%s: %w", from.Code, to.Code, err)
	}
	backward, err := c.FetchPhysicalFlow(ctx, to.EIC, from.EIC, r)
	if err != nil {
		return NetFlowSeries{}, fmt.Errorf("flow %s->%s: %w", to.Code, from.Code, err)
	}
	return NetFlow(forward, backward), nil
}

// NetFlow subtracts backward from forward hour by hour over the union of hours.
func NetFlow(forward, backward []model.FlowPoint) NetFlowSeries {
	net := make(map[time.Time]float64, len(forward))
	seen := make(map[time.Time]int, len(forward))
	for _, p := range forward {
		net[p.Time] += p.Flow
		seen[p.Time] |= 1
	}
	for _, p := range backward {
		net[p.Time] -= p.Flow
		seen[p.Time] |= 2
	}
	var out NetFlowSeries
	out.Points = make([]model.FlowPoint, 0, len(net))
	for t, v := range net {
		out.Points = append(out.Points, model.FlowPoint{Time: t, Flow: v})
		if seen[t] == 3 {
			out.Complete = append(out.Complete, t)
		}
	}
	sort.Slice(out.Points, func(i, j int) bool { return out.Points[i].Time.Before(out.Points[j].Time) })
	sort.Slice(out.Complete, func(i, j int) bool { return out.Complete[i].Before(out.Complete[j]) })
	return out
}

// ParsePhysicalFlows decodes an A11 publication document into hourly points.
//
// Positions are 1-based. Positions omitted by the platform (curve type A03)
// repeat the previous value. Values inside one hour are averaged.
func ParsePhysicalFlows(body []byte) ([]model.FlowPoint, error) {
	var doc publicationDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode publication document: %w", err)
	}

	sums := map[time.Time]float64{}
	counts := map[time.Time]int{}
	for _, ts := range doc.TimeSeries {
		for _, p := range ts.Periods {
			start, err := time.Parse(entsoeTimeLayout, p.Start)
			if err != nil {
				return nil, fmt.Errorf("period start %q: %w", p.Start, err)
			}
			end, err := time.Parse(entsoeTimeLayout, p.End)
			if err != nil {
				return nil, fmt.Errorf("period end %q: %w", p.End, err)
			}
			res, err := ParseResolution(p.Resolution)
			if err != nil {
				return nil, err
			}

			slots := int(end.Sub(start) / res)
			values := expandPoints(p.Points, slots)
			for i, v := range values {
				if v == nil {
					continue
				}
				hour := timeseries.FloorHour(start.Add(time.Duration(i) * res))
				sums[hour] += *v
				counts[hour]++
			}
		}
	}

	out := make([]model.FlowPoint, 0, len(sums))
	for t, s := range sums {
		out = append(out, model.FlowPoint{Time: t, Flow: s / float64(counts[t])})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

// expandPoints lays points onto slots, forward-filling gaps. Slots before the
// first point stay nil.
func expandPoints(points []entsoePoint, slots int) []*float64 {
	if slots <= 0 {
		return nil
	}
	sorted := append([]entsoePoint(nil), points...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })

	out := make([]*float64, slots)
	var last *float64
	next := 0
	for i := 0; i < slots; i++ {
		for next < len(sorted) && sorted[next].Position-1 <= i {
			if sorted[next].Position-1 == i {
				v := sorted[next].Quantity
				last = &v
			}
			next++
		}
		out[i] = last
	}
	return out
}

// ParseResolution understands the ISO-8601 durations the platform uses
// (PT15M, PT30M, PT60M, PT1H, P1D).
func ParseResolution(s string) (time.Duration, error) {
	switch {
	case strings.HasPrefix(s, "PT") && strings.HasSuffix(s, "M"):
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(s, "PT"), "M"))
		if err == nil && n > 0 {
			return time.Duration(n) * time.Minute, nil
		}
	case strings.HasPrefix(s, "PT") && strings.HasSuffix(s, "H"):
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(s, "PT"), "H"))
		if err == nil && n > 0 {
			return time.Duration(n) * time.Hour, nil
		}
	case s == "P1D":
		return 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("unsupported resolution %q", s)
}

func ackReason(body []byte) string {
	var ack acknowledgementDocument
	if err := xml.Unmarshal(body, &ack); err != nil || len(ack.Reasons) == 0 {
		return "acknowledgement without reason"
	}
	texts := make([]string, 0, len(ack.Reasons))
	for _, r := range ack.Reasons {
		texts = append(texts, r.Text)
	}
	return strings.Join(texts, "; ")
}
