package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/huanchen1107/TawinCWA/internal/models"
)

// DefaultCensusBaseURL is the Census Bureau data API root.
const DefaultCensusBaseURL = "https://api.census.gov/data"

// CensusClient fetches from the U.S. Census Bureau API. Datasets are paths
// like "2020/dec/pl"; params carry the "get"/"for" selections. The API key is
// optional (small request volumes work without one) and attached when set.
type CensusClient struct {
	httpSource
	apiKey string
}

func NewCensusClient(apiKey, baseURL string, timeout time.Duration) *CensusClient {
	if baseURL == "" {
		baseURL = DefaultCensusBaseURL
	}
	return &CensusClient{
		httpSource: newHTTPSource(baseURL, timeout),
		apiKey:     apiKey,
	}
}

func (c *CensusClient) Fetch(ctx context.Context, req FetchRequest) ([]byte, error) {
	if req.Dataset == "" {
		return nil, fmt.Errorf("%w: census dataset path is required", ErrSchema)
	}
	base, err := url.Parse(c.baseURL + "/" + strings.Trim(req.Dataset, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid census URL: %w", err)
	}
	var fixed url.Values
	if c.apiKey != "" {
		fixed = url.Values{}
		fixed.Set("key", c.apiKey)
	}
	base.RawQuery = encodeParams(req.Params, fixed)
	return c.do(ctx, models.ProviderCensus, base.String())
}

// Ping fetches the dataset discovery document at the API root.
func (c *CensusClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := c.do(ctx, models.ProviderCensus, c.baseURL+".json")
	return err
}
