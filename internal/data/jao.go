package data

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fbmc-quality/internal/model"

	"github.com/rs/zerolog/log"
)

// DefaultJAOBaseURL is the public Nordic publication tool.
const DefaultJAOBaseURL = "https://test-publicationtool.jao.eu"

const jaoPath = "/nordic/api/nordic/finalComputation/index"

// JAOClient fetches the final flow-based computation (CNEC constraints and
// PTDFs) for single hours from the JAO publication tool.
type JAOClient struct {
	BaseURL string
	up      *upstream
}

// NewJAOClient creates a client. An empty baseURL selects DefaultJAOBaseURL.
func NewJAOClient(baseURL string, opts ClientOptions) *JAOClient {
	if baseURL == "" {
		baseURL = DefaultJAOBaseURL
	}
	return &JAOClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		up:      newUpstream("jao", opts),
	}
}

// HourURL builds the request URL for one hour.
func (c *JAOClient) HourURL(hour time.Time) (string, error) {
	u, err := url.Parse(c.BaseURL + jaoPath)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	q := url.Values{}
	q.Set("date", hour.UTC().Truncate(time.Hour).Format("2006-01-02T15:04:05.000Z"))
	q.Set("search", "")
	q.Set("skip", "0")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// FetchHour returns the raw constraint rows published for hour. An hour with no
// publication yields an empty slice and no error.
func (c *JAOClient) FetchHour(ctx context.Context, hour time.Time) ([]RawRow, error) {
	hour = hour.UTC().Truncate(time.Hour)
	u, err := c.HourURL(hour)
	if err != nil {
		return nil, err
	}

	log.Debug().Time("hour", hour).Str("url", u).Msg("jao request")
	resp, err := c.up.get(ctx, u, "application/json")
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent, http.StatusNotFound:
		log.Info().Time("hour", hour).Int("status", resp.StatusCode).Msg("jao has no data for hour")
		return nil, nil
	default:
		apiErr := statusError("jao", resp)
		log.Warn().Time("hour", hour).Int("status", resp.StatusCode).Str("code", apiErr.Code).Msg("jao request rejected")
		return nil, apiErr
	}

	rows, err := DecodeConstraints(resp.Body)
	if err != nil {
		log.Error().Err(err).Time("hour", hour).Msg("jao decode failed")
		return nil, err
	}
	log.Debug().Time("hour", hour).Int("rows", len(rows)).Msg("jao response")
	return rows, nil
}

// DecodeConstraints parses one hour's constraint payload. Numbers are kept as
// json.Number so large upstream ids survive.
func DecodeConstraints(body []byte) ([]RawRow, error) {
	var payload model.ConstraintResponse
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode constraint payload: %w", err)
	}
	return payload.Data, nil
}
