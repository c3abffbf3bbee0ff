package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gee2dhis2/internal/models"

	"github.com/go-resty/resty/v2"
)

// Client represents a DHIS2 API client
type Client struct {
	baseURL  string
	username string
	password string
	http     *resty.Client
}

// ImportCount tracks imported/updated/ignored/deleted counts returned by
// the data value set endpoint
type ImportCount struct {
	Imported int `json:"imported"`
	Updated  int `json:"updated"`
	Ignored  int `json:"ignored"`
	Deleted  int `json:"deleted"`
}

// NewClient creates a new DHIS2 API client
func NewClient(baseURL, username, password string) *Client {
	client := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
	}

	// Configure resty client
	client.http = resty.New().
		SetBasicAuth(username, password).
		SetTimeout(600 * time.Second). // slow DHIS2 servers need generous import timeouts
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// Retry on 429 (Too Many Requests) and 5xx server errors
			return r.StatusCode() == 429 || (r.StatusCode() >= 500 && r.StatusCode() <= 504)
		})

	return client
}

// Get performs a GET request to the DHIS2 API
func (c *Client) Get(ctx context.Context, endpoint string, params map[string]string) (*resty.Response, error) {
	req := c.http.R().SetContext(ctx)
	if params != nil {
		req.SetQueryParams(params)
	}
	return req.Get(c.buildURL(endpoint))
}

// Post performs a POST request to the DHIS2 API
func (c *Client) Post(ctx context.Context, endpoint string, payload interface{}) (*resty.Response, error) {
	return c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(c.buildURL(endpoint))
}

// GetOrganisationUnits fetches the given org units in one batch request,
// including the feature type and raw coordinates used for geometry mapping
func (c *Client) GetOrganisationUnits(ctx context.Context, ids []string) ([]models.OrgUnit, error) {
	if len(ids) == 0 {
		return []models.OrgUnit{}, nil
	}

	params := map[string]string{
		"fields": "id,name,displayName,path,featureType,coordinates",
		"filter": fmt.Sprintf("id:in:[%s]", strings.Join(ids, ",")),
		"paging": "false",
	}

	resp, err := c.Get(ctx, "api/organisationUnits.json", params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch org units: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("org unit request failed: %s", resp.Status())
	}

	var result struct {
		OrganisationUnits []models.OrgUnit `json:"organisationUnits"`
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("failed to parse org unit response: %w", err)
	}

	return result.OrganisationUnits, nil
}

// PostDataValueSet submits a data value set and returns the server's
// import counts. Handles both the flat and the wrapped response shapes
// DHIS2 versions return.
func (c *Client) PostDataValueSet(ctx context.Context, payload interface{}) (*ImportCount, error) {
	resp, err := c.Post(ctx, "api/dataValueSets", payload)
	if err != nil {
		return nil, fmt.Errorf("failed to post data values: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("import failed with status %d: %s", resp.StatusCode(), resp.String())
	}

	var result struct {
		ImportCount *ImportCount `json:"importCount"`
		Response    *struct {
			ImportCount *ImportCount `json:"importCount"`
		} `json:"response"`
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("failed to parse import response: %w", err)
	}

	if result.ImportCount != nil {
		return result.ImportCount, nil
	}
	if result.Response != nil && result.Response.ImportCount != nil {
		return result.Response.ImportCount, nil
	}
	return nil, fmt.Errorf("import response carried no import counts: %s", resp.String())
}

// Ping verifies the connection by fetching the current user
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.Get(ctx, "api/me.json", map[string]string{"fields": "id,userCredentials[username]"})
	if err != nil {
		return fmt.Errorf("failed to reach DHIS2: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("DHIS2 returned %s", resp.Status())
	}
	return nil
}

// buildURL constructs the full URL for an endpoint
func (c *Client) buildURL(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "/")
	return fmt.Sprintf("%s/%s", c.baseURL, endpoint)
}

// SetTimeout allows customizing the timeout for specific operations
func (c *Client) SetTimeout(timeout time.Duration) {
	c.http.SetTimeout(timeout)
}
