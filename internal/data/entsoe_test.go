package data

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fbmc-quality/internal/model"
	"fbmc-quality/internal/timeseries"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const a11QuarterHourly = `<?xml version="1.0" encoding="UTF-8"?>
<Publication_MarketDocument xmlns="urn:iec62325.351:tc57wg16:451-3:publicationdocument:7:0">
  <mRID>abc</mRID>
  <TimeSeries>
    <mRID>1</mRID>
    <in_Domain.mRID codingScheme="A01">10Y1001A1001A46L</in_Domain.mRID>
    <out_Domain.mRID codingScheme="A01">10YNO-1--------2</out_Domain.mRID>
    <curveType>A03</curveType>
    <Period>
      <timeInterval>
        <start>2023-03-01T10:00Z</start>
        <end>2023-03-01T12:00Z</end>
      </timeInterval>
      <resolution>PT15M</resolution>
      <Point><position>1</position><quantity>100</quantity></Point>
      <Point><position>2</position><quantity>200</quantity></Point>
      <Point><position>3</position><quantity>300</quantity></Point>
      <Point><position>4</position><quantity>400</quantity></Point>
      <Point><position>5</position><quantity>40</quantity></Point>
      <Point><position>7</position><quantity>80</quantity></Point>
    </Period>
  </TimeSeries>
</Publication_MarketDocument>`

const ackNoData = `<?xml version="1.0" encoding="UTF-8"?>
<Acknowledgement_MarketDocument xmlns="urn:iec62325.351:tc57wg16:451-1:acknowledgementdocument:7:0">
  <Reason>
    <code>999</code>
    <text>No matching data found for Data item Physical Flows [12.1.G]</text>
  </Reason>
</Acknowledgement_MarketDocument>`

func TestParsePhysicalFlowsAveragesAndForwardFills(t *testing.T) {
	points, err := ParsePhysicalFlows([]byte(a11QuarterHourly))
	require.NoError(t, err)

	h10 := time.Date(2023, 3, 1, 10, 0, 0, 0, time.UTC)
	require.Len(t, points, 2)
	assert.Equal(t, model.FlowPoint{Time: h10, Flow: 250}, points[0])
	// 11:00 slots: 40, 40 (filled), 80, 80 (filled)
	assert.Equal(t, model.FlowPoint{Time: h10.Add(time.Hour), Flow: 60}, points[1])
}

func TestParseResolution(t *testing.T) {
	for in, want := range map[string]time.Duration{
		"PT15M": 15 * time.Minute,
		"PT30M": 30 * time.Minute,
		"PT60M": time.Hour,
		"PT1H":  time.Hour,
		"P1D":   24 * time.Hour,
	} {
		got, err := ParseResolution(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseResolution("P1Y")
	assert.Error(t, err)
}

func TestENTSOEFetchPhysicalFlow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/api", r.URL.Path)
		assert.Equal(t, "A11", q.Get("documentType"))
		assert.Equal(t, "10YNO-1--------2", q.Get("out_Domain"))
		assert.Equal(t, "10Y1001A1001A46L", q.Get("in_Domain"))
		assert.Equal(t, "202303011000", q.Get("periodStart"))
		assert.Equal(t, "202303011100", q.Get("periodEnd"))
		assert.Equal(t, "token", q.Get("securityToken"))
		_, _ = w.Write([]byte(a11QuarterHourly))
	}))
	defer srv.Close()

	c := NewENTSOEClient(srv.URL, "token", ClientOptions{})
	r, err := timeseries.NewRange(time.Date(2023, 3, 1, 10, 0, 0, 0, time.UTC), time.Date(2023, 3, 1, 11, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	points, err := c.FetchPhysicalFlow(context.Background(), "10YNO-1--------2", "10Y1001A1001A46L", r)
	require.NoError(t, err)
	// the document covers two hours; only the requested one is returned
	require.Len(t, points, 1)
	assert.Equal(t, 250.0, points[0].Flow)
}

func TestENTSOENoMatchingDataIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(ackNoData))
	}))
	defer srv.Close()

	c := NewENTSOEClient(srv.URL, "token", ClientOptions{})
	r, _ := timeseries.NewRange(time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2023, 3, 2, 0, 0, 0, 0, time.UTC))
	points, err := c.FetchPhysicalFlow(context.Background(), "A", "B", r)
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestENTSOERequiresToken(t *testing.T) {
	t.Setenv("ENTSOE_API_KEY", "")
	c := NewENTSOEClient("http://127.0.0.1:1", "", ClientOptions{})
	r, _ := timeseries.NewRange(time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2023, 3, 2, 0, 0, 0, 0, time.UTC))

	_, err := c.FetchPhysicalFlow(context.Background(), "A", "B", r)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "MISSING_API_KEY", apiErr.Code)
}

func TestENTSOEFetchNetFlow(t *testing.T) {
	h := time.Date(2023, 3, 1, 10, 0, 0, 0, time.UTC)
	doc := func(v string) string {
		return `<Publication_MarketDocument><TimeSeries><Period>
<timeInterval><start>2023-03-01T10:00Z</start><end>2023-03-01T11:00Z</end></timeInterval>
<resolution>PT60M</resolution><Point><position>1</position><quantity>` + v + `</quantity></Point>
</Period></TimeSeries></Publication_MarketDocument>`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("out_Domain") == "EIC-A" {
			_, _ = w.Write([]byte(doc("500")))
			return
		}
		_, _ = w.Write([]byte(doc("120")))
	}))
	defer srv.Close()

	c := NewENTSOEClient(srv.URL, "token", ClientOptions{})
	r, _ := timeseries.NewRange(h, h.Add(time.Hour))
	net, err := c.FetchNetFlow(context.Background(), Zone{Code: "A", EIC: "EIC-A"}, Zone{Code: "B", EIC: "EIC-B"}, r)
	require.NoError(t, err)
	assert.Equal(t, []model.FlowPoint{{Time: h, Flow: 380}}, net.Points)
	assert.Equal(t, []time.Time{h}, net.Complete)

	_, err = c.FetchNetFlow(context.Background(), Zone{Code: "A"}, Zone{Code: "B", EIC: "EIC-B"}, r)
	assert.Error(t, err)
}

func TestNetFlowUnionOfHours(t *testing.T) {
	h := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	got := NetFlow(
		[]model.FlowPoint{{Time: h, Flow: 10}, {Time: h.Add(time.Hour), Flow: 5}},
		[]model.FlowPoint{{Time: h, Flow: 4}, {Time: h.Add(2 * time.Hour), Flow: 3}},
	)
	assert.Equal(t, []model.FlowPoint{
		{Time: h, Flow: 6},
		{Time: h.Add(time.Hour), Flow: 5},
		{Time: h.Add(2 * time.Hour), Flow: -3},
	}, got.Points)
	assert.Equal(t, []time.Time{h}, got.Complete, "only hour 0 has both directions")
	assert.Equal(t, []model.FlowPoint{{Time: h, Flow: 6}}, got.CompletePoints())
}
