package client

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/huanchen1107/TawinCWA/internal/models"
)

// DefaultDataGovBaseURL is the data.gov CKAN v3 API root.
const DefaultDataGovBaseURL = "https://catalog.data.gov/api/3"

// DataGovClient fetches from the data.gov CKAN API. Datasets are CKAN action
// names ("package_search", "package_show", "datastore_search"); query
// parameters map directly onto CKAN action parameters.
type DataGovClient struct {
	httpSource
}

func NewDataGovClient(baseURL string, timeout time.Duration) *DataGovClient {
	if baseURL == "" {
		baseURL = DefaultDataGovBaseURL
	}
	return &DataGovClient{httpSource: newHTTPSource(baseURL, timeout)}
}

func (c *DataGovClient) Fetch(ctx context.Context, req FetchRequest) ([]byte, error) {
	if req.Dataset == "" {
		return nil, fmt.Errorf("%w: CKAN action is required", ErrSchema)
	}
	base, err := url.Parse(c.baseURL + "/action/" + req.Dataset)
	if err != nil {
		return nil, fmt.Errorf("invalid data.gov URL: %w", err)
	}
	base.RawQuery = encodeParams(req.Params, nil)
	return c.do(ctx, models.ProviderDataGov, base.String())
}

// Ping hits the CKAN status action, which needs no parameters.
func (c *DataGovClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := c.Fetch(ctx, FetchRequest{Provider: models.ProviderDataGov, Dataset: "status_show"})
	return err
}
