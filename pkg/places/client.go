package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/paulmach/orb"

	"geoquiz/pkg/cache"
	"geoquiz/pkg/model"
	"geoquiz/pkg/request"
	"geoquiz/pkg/search"
)

const defaultBaseURL = "https://maps.googleapis.com"

// ErrNoResult indicates the geocoder knows no location for a place id.
var ErrNoResult = errors.New("places: no result")

// Client talks to the Places Autocomplete and Geocoding web services.
type Client struct {
	request  *request.Client
	BaseURL  string
	Key      string
	Language string
	Logger   *slog.Logger
}

// NewClient creates a new Places client authenticated with key.
func NewClient(r *request.Client, key string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		request: r,
		BaseURL: defaultBaseURL,
		Key:     key,
		Logger:  logger,
	}
}

type autocompleteResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Predictions  []struct {
		Description          string `json:"description"`
		PlaceID              string `json:"place_id"`
		StructuredFormatting struct {
			MainText string `json:"main_text"`
		} `json:"structured_formatting"`
	} `json:"predictions"`
}

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Autocomplete implements search.PlacesProvider.
func (c *Client) Autocomplete(ctx context.Context, q search.PlaceQuery) ([]search.Prediction, error) {
	params := url.Values{}
	params.Set("input", q.Term)
	if q.Bounds != nil {
		if r, ok := rectangle(*q.Bounds); ok {
			params.Set("locationrestriction", r)
		}
	}
	if c.Language != "" {
		params.Set("language", c.Language)
	}

	u, err := c.endpoint("/maps/api/place/autocomplete/json", params)
	if err != nil {
		return nil, err
	}
	body, err := c.request.Get(ctx, u, cache.Key("places", "autocomplete", params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", search.ErrProviderUnavailable, err)
	}

	var resp autocompleteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode json: %w", search.ErrProviderMalformedResponse, err)
	}
	if err := checkStatus(resp.Status, resp.ErrorMessage); err != nil {
		return nil, err
	}
	if len(resp.Predictions) == 0 {
		c.request.ReportEmpty(u)
	}

	out := make([]search.Prediction, 0, len(resp.Predictions))
	for _, p := range resp.Predictions {
		if p.PlaceID == "" {
			continue
		}
		out = append(out, search.Prediction{
			PlaceID:     p.PlaceID,
			Description: p.Description,
			MainText:    p.StructuredFormatting.MainText,
		})
	}
	return out, nil
}

// Geocode implements search.PlacesProvider.
func (c *Client) Geocode(ctx context.Context, placeID string) (orb.Point, error) {
	params := url.Values{}
	params.Set("place_id", placeID)

	u, err := c.endpoint("/maps/api/geocode/json", params)
	if err != nil {
		return orb.Point{}, err
	}
	body, err := c.request.Get(ctx, u, cache.Key("places", "geocode", placeID))
	if err != nil {
		return orb.Point{}, fmt.Errorf("%w: %w", search.ErrProviderUnavailable, err)
	}

	var resp geocodeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return orb.Point{}, fmt.Errorf("%w: failed to decode json: %w", search.ErrProviderMalformedResponse, err)
	}
	if err := checkStatus(resp.Status, resp.ErrorMessage); err != nil {
		return orb.Point{}, err
	}
	if len(resp.Results) == 0 {
		return orb.Point{}, fmt.Errorf("%w: %s", ErrNoResult, placeID)
	}

	loc := resp.Results[0].Geometry.Location
	return orb.Point{loc.Lng, loc.Lat}, nil
}

func (c *Client) endpoint(path string, params url.Values) (string, error) {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return "", fmt.Errorf("invalid places endpoint: %w", err)
	}
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("key", c.Key)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// checkStatus maps the service's status field to an error.
func checkStatus(status, msg string) error {
	switch status {
	case "OK", "ZERO_RESULTS":
		return nil
	case "":
		return fmt.Errorf("%w: missing status", search.ErrProviderMalformedResponse)
	}
	if msg != "" {
		return fmt.Errorf("%w: %s: %s", search.ErrProviderUnavailable, status, msg)
	}
	return fmt.Errorf("%w: %s", search.ErrProviderUnavailable, status)
}

// rectangle formats b as "rectangle:south,west|north,east". A box that wraps
// the antimeridian cannot be expressed and yields ok false.
func rectangle(b model.Bounds) (string, bool) {
	if b.Wraps() {
		return "", false
	}
	f := func(x float64) string { return strconv.FormatFloat(x, 'f', -1, 64) }
	return "rectangle:" + f(b.South) + "," + f(b.West) + "|" + f(b.North) + "," + f(b.East), true
}
