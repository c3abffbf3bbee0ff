package gee

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gee2dhis2/internal/geometry"
	"gee2dhis2/internal/period"

	"github.com/go-resty/resty/v2"
)

// GetDataRequest describes one geospatial time-series query: every band of
// one image collection, sampled at one geometry over one date interval
type GetDataRequest struct {
	ID       string            // image collection id
	Bands    []string          // bands to sample, order defines the expected response header
	Geometry geometry.Geometry // point or multi-polygon
	Interval period.Interval   // resolved dates, end inclusive
	Scale    float64           // sampling scale in meters, 0 = dataset default
}

// Observation is one sampled band value for one day
type Observation struct {
	Band     string
	Value    float64
	PeriodID string // image id, normally the YYYYMMDD day stamp
	Date     time.Time
}

// Client queries Google Earth Engine region samples over its REST API
type Client struct {
	baseURL string
	project string
	http    *resty.Client
}

// NewClient creates an Earth Engine client. The token is a service-account
// OAuth token obtained out of band.
func NewClient(baseURL, project, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		project: project,
		http: resty.New().
			SetAuthToken(token).
			SetTimeout(120 * time.Second).
			SetRetryCount(3).
			SetRetryWaitTime(500 * time.Millisecond).
			SetRetryMaxWaitTime(2 * time.Second).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				return r.StatusCode() == 429 || (r.StatusCode() >= 500 && r.StatusCode() <= 504)
			}),
	}
}

// SetTimeout customizes the per-request timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.http.SetTimeout(timeout)
}

type getRegionRequest struct {
	DatasetID string            `json:"datasetId"`
	Bands     []string          `json:"bands"`
	Geometry  geometry.Geometry `json:"geometry"`
	StartDate string            `json:"startDate"`
	EndDate   string            `json:"endDate"` // not included by the service
	Scale     float64           `json:"scale,omitempty"`
}

// GetDataValueSet samples every requested band at the request geometry for
// each day of the interval and returns the flat observation list. The
// response is a table whose header row must be
// [id, longitude, latitude, time, ...bands]; any other shape is an error.
func (c *Client) GetDataValueSet(ctx context.Context, req GetDataRequest) ([]Observation, error) {
	body := getRegionRequest{
		DatasetID: req.ID,
		Bands:     req.Bands,
		Geometry:  req.Geometry,
		StartDate: req.Interval.Start.Format("2006-01-02"),
		// the service excludes the end date, the resolved interval includes it
		EndDate: req.Interval.End.AddDate(0, 0, 1).Format("2006-01-02"),
		Scale:   req.Scale,
	}

	endpoint := fmt.Sprintf("%s/v1/projects/%s/imageCollection:getRegion", c.baseURL, c.project)
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(endpoint)
	if err != nil {
		return nil, fmt.Errorf("earth engine query failed: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("earth engine returned %d: %s", resp.StatusCode(), resp.String())
	}

	var table [][]interface{}
	if err := json.Unmarshal(resp.Body(), &table); err != nil {
		return nil, fmt.Errorf("failed to parse earth engine response: %w", err)
	}

	return parseRegionTable(table, req.Bands)
}

// parseRegionTable validates the header row and flattens the data rows
// into per-band observations. Null band values (no reading for that day)
// are skipped.
func parseRegionTable(table [][]interface{}, bands []string) ([]Observation, error) {
	if len(table) == 0 {
		return nil, fmt.Errorf("empty earth engine response")
	}

	expected := append([]string{"id", "longitude", "latitude", "time"}, bands...)
	header := table[0]
	if len(header) != len(expected) {
		return nil, fmt.Errorf("unexpected response header: got %d columns, want %d", len(header), len(expected))
	}
	for i, want := range expected {
		got, ok := header[i].(string)
		if !ok || got != want {
			return nil, fmt.Errorf("unexpected response header: column %d is %v, want %q", i, header[i], want)
		}
	}

	observations := make([]Observation, 0, (len(table)-1)*len(bands))
	for _, row := range table[1:] {
		if len(row) != len(expected) {
			return nil, fmt.Errorf("malformed response row: %d columns, want %d", len(row), len(expected))
		}

		periodID, _ := row[0].(string)
		millis, ok := row[3].(float64)
		if !ok {
			return nil, fmt.Errorf("malformed response row: non-numeric time %v", row[3])
		}
		date := time.UnixMilli(int64(millis)).UTC()

		for i, band := range bands {
			raw := row[4+i]
			if raw == nil {
				continue
			}
			value, ok := raw.(float64)
			if !ok {
				return nil, fmt.Errorf("malformed response row: non-numeric value %v for band %s", raw, band)
			}
			observations = append(observations, Observation{
				Band:     band,
				Value:    value,
				PeriodID: periodID,
				Date:     date,
			})
		}
	}

	return observations, nil
}
