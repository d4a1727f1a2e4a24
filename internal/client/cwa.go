package client

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/huanchen1107/TawinCWA/internal/models"
)

// DefaultCWABaseURL is the CWA open-data file API root.
const DefaultCWABaseURL = "https://opendata.cwa.gov.tw/fileapi/v1/opendataapi"

// CWAClient fetches datasets from the Taiwan Central Weather Administration
// open-data API. Datasets are endpoint ids like "F-C0032-001" (forecast),
// "O-A0001-001" (observation) or "E-A0015-001" (earthquake).
type CWAClient struct {
	httpSource
	apiKey string
}

func NewCWAClient(apiKey, baseURL string, timeout time.Duration) (*CWAClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: CWA API key is required", ErrAuth)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: CWA API key appears invalid (too short)", ErrAuth)
	}
	if baseURL == "" {
		baseURL = DefaultCWABaseURL
	}
	return &CWAClient{
		httpSource: newHTTPSource(baseURL, timeout),
		apiKey:     apiKey,
	}, nil
}

func (c *CWAClient) Fetch(ctx context.Context, req FetchRequest) ([]byte, error) {
	if req.Dataset == "" {
		return nil, fmt.Errorf("%w: dataset id is required", ErrSchema)
	}
	u, err := c.buildURL(req.Dataset, req.Params)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, models.ProviderCWA, u)
}

func (c *CWAClient) buildURL(dataset string, params map[string]string) (string, error) {
	base, err := url.Parse(c.baseURL + "/" + dataset)
	if err != nil {
		return "", fmt.Errorf("invalid CWA URL: %w", err)
	}
	// The file API requires the key plus download hints on every request.
	fixed := url.Values{}
	fixed.Set("Authorization", c.apiKey)
	fixed.Set("downloadType", "WEB")
	fixed.Set("format", "JSON")
	base.RawQuery = encodeParams(params, fixed)
	return base.String(), nil
}

// Ping fetches the general forecast endpoint to verify reachability and that
// the configured key is accepted.
func (c *CWAClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := c.Fetch(ctx, FetchRequest{Provider: models.ProviderCWA, Dataset: "F-C0032-001"})
	return err
}
