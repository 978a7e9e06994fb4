package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"

	"geoquiz/pkg/cache"
	"geoquiz/pkg/model"
	"geoquiz/pkg/request"
	"geoquiz/pkg/search"
)

const defaultEndpoint = "https://nominatim.openstreetmap.org/search"

// Client queries a Nominatim server for named areas and their outlines.
type Client struct {
	request  *request.Client
	Endpoint string
	Limit    int
	Language string
	Email    string
	Logger   *slog.Logger
}

// NewClient creates a new Nominatim client.
func NewClient(r *request.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		request:  r,
		Endpoint: defaultEndpoint,
		Limit:    10,
		Logger:   logger,
	}
}

// place is one jsonv2 search result.
type place struct {
	PlaceID     json.Number     `json:"place_id"`
	Name        string          `json:"name"`
	DisplayName string          `json:"display_name"`
	Category    string          `json:"category"`
	Type        string          `json:"type"`
	BoundingBox []string        `json:"boundingbox"`
	GeoJSON     json.RawMessage `json:"geojson"`
}

// SearchAreas implements search.AreaProvider.
func (c *Client) SearchAreas(ctx context.Context, q search.AreaQuery) ([]search.AreaResult, error) {
	u, err := c.buildURL(q)
	if err != nil {
		return nil, err
	}

	body, err := c.request.Get(ctx, u, cache.Key("nominatim", u))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", search.ErrProviderUnavailable, err)
	}

	var places []place
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, fmt.Errorf("%w: failed to decode json: %w", search.ErrProviderMalformedResponse, err)
	}
	if len(places) == 0 {
		c.request.ReportEmpty(u)
	}

	results := make([]search.AreaResult, 0, len(places))
	for i := range places {
		r, ok := c.convert(&places[i])
		if ok {
			results = append(results, r)
		}
	}
	return results, nil
}

func (c *Client) buildURL(q search.AreaQuery) (string, error) {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid nominatim endpoint: %w", err)
	}

	v := u.Query()
	v.Set("q", q.Term)
	v.Set("format", "jsonv2")
	v.Set("polygon_geojson", "1")
	if c.Limit > 0 {
		v.Set("limit", strconv.Itoa(c.Limit))
	}
	if c.Language != "" {
		v.Set("accept-language", c.Language)
	}
	if c.Email != "" {
		v.Set("email", c.Email)
	}
	if q.Bounds != nil {
		if vb, ok := viewbox(*q.Bounds); ok {
			v.Set("viewbox", vb)
			if q.Bounded {
				v.Set("bounded", "1")
			}
		} else {
			c.Logger.Debug("Nominatim: viewbox wraps the antimeridian, searching unbounded")
		}
	}
	u.RawQuery = v.Encode()
	return u.String(), nil
}

// viewbox formats b as "west,north,east,south". Nominatim cannot express a
// box that wraps the antimeridian, so ok is false for those.
func viewbox(b model.Bounds) (string, bool) {
	if b.Wraps() {
		return "", false
	}
	f := func(x float64) string { return strconv.FormatFloat(x, 'f', -1, 64) }
	return strings.Join([]string{f(b.West), f(b.North), f(b.East), f(b.South)}, ","), true
}

func (c *Client) convert(p *place) (search.AreaResult, bool) {
	r := search.AreaResult{
		PlaceID:     p.PlaceID.String(),
		ShortName:   p.Name,
		DisplayName: p.DisplayName,
	}
	if r.ShortName == "" {
		name, _, _ := strings.Cut(p.DisplayName, ",")
		r.ShortName = strings.TrimSpace(name)
	}

	if len(p.GeoJSON) > 0 {
		g, err := geojson.UnmarshalGeometry(p.GeoJSON)
		if err != nil {
			c.Logger.Debug("Nominatim: dropping result with bad geometry", "place_id", r.PlaceID, "error", err)
			return r, false
		}
		r.Geometry = g.Geometry()
	}

	if bbox, ok := parseBBox(p.BoundingBox); ok {
		r.BBox = bbox
	}
	return r, true
}

// parseBBox reads Nominatim's ["south","north","west","east"] string array.
func parseBBox(raw []string) ([4]float64, bool) {
	var bbox [4]float64
	if len(raw) != 4 {
		return bbox, false
	}
	for i, s := range raw {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return [4]float64{}, false
		}
		bbox[i] = f
	}
	return bbox, true
}
