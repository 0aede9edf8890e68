// Package rutilus is a minimal client for the Fishbrain "rutilus" GraphQL
// API, scoped to the map bounding-box catch query used by the collection
// pipeline.
package rutilus

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/fishdata/catchgrid/internal/resilience"
)

const (
	defaultBaseURL = "https://rutilus.fishbrain.com/graphql"

	// DefaultPageSize is the largest page the API accepts.
	DefaultPageSize = 50
)

// Client performs catch queries against the rutilus API.
type Client interface {
	// MapCatches returns one page of catches inside a WGS84 bounding box.
	MapCatches(ctx context.Context, req MapCatchesRequest) (*CatchPage, error)
}

// BoundingBox is a WGS84 bounding box in decimal degrees.
type BoundingBox struct {
	MinLng float64 `json:"min_lng"`
	MinLat float64 `json:"min_lat"`
	MaxLng float64 `json:"max_lng"`
	MaxLat float64 `json:"max_lat"`
}

// MapCatchesRequest describes one page request.
type MapCatchesRequest struct {
	BBox  BoundingBox
	First int    // page size; 0 means DefaultPageSize
	After string // pagination cursor from the previous page, empty for the first
}

// PageInfo carries the API's cursor pagination state.
type PageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

// CatchEdge wraps one raw catch record. The node is kept as raw JSON so the
// normalizer can tolerate additive schema changes and the raw payload can be
// written out for auditing.
type CatchEdge struct {
	Node json.RawMessage `json:"node"`
}

// CatchPage is one page of catches for a bounding box.
type CatchPage struct {
	TotalCount int         `json:"totalCount"`
	PageInfo   PageInfo    `json:"pageInfo"`
	Edges      []CatchEdge `json:"edges"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API endpoint.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a rutilus API client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type boundingBoxInput struct {
	SouthWest latLng `json:"southWest"`
	NorthEast latLng `json:"northEast"`
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type mapCatchesResponse struct {
	Data struct {
		MapArea struct {
			Catches CatchPage `json:"catches"`
		} `json:"mapArea"`
	} `json:"data"`
	Errors []graphqlError `json:"errors"`
}

func (c *httpClient) MapCatches(ctx context.Context, req MapCatchesRequest) (*CatchPage, error) {
	first := req.First
	if first <= 0 || first > DefaultPageSize {
		first = DefaultPageSize
	}

	variables := map[string]any{
		"boundingBox": boundingBoxInput{
			SouthWest: latLng{Latitude: req.BBox.MinLat, Longitude: req.BBox.MinLng},
			NorthEast: latLng{Latitude: req.BBox.MaxLat, Longitude: req.BBox.MaxLng},
		},
		"first": first,
	}
	if req.After != "" {
		variables["after"] = req.After
	}

	body, err := json.Marshal(graphqlRequest{Query: mapCatchesQuery, Variables: variables})
	if err != nil {
		return nil, eris.Wrap(err, "rutilus: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "rutilus: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "rutilus: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "rutilus: read response")
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("rutilus: unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	var result mapCatchesResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "rutilus: unmarshal response")
	}
	if len(result.Errors) > 0 {
		return nil, eris.Errorf("rutilus: graphql error: %s", result.Errors[0].Message)
	}

	page := result.Data.MapArea.Catches
	return &page, nil
}
