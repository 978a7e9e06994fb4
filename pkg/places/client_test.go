package places

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoquiz/pkg/model"
	"geoquiz/pkg/request"
	"geoquiz/pkg/search"
)

const autocompleteOK = `{
  "status": "OK",
  "predictions": [
    {"description": "Eiffel Tower, Avenue Anatole France, Paris, France", "place_id": "ChIJLU7jZClu5kcR4PcOOO6p3I0",
     "structured_formatting": {"main_text": "Eiffel Tower"}},
    {"description": "Eiffel Tower Restaurant, Las Vegas", "place_id": "ChIJ123"},
    {"description": "no id"}
  ]
}`

const geocodeOK = `{
  "status": "OK",
  "results": [{"geometry": {"location": {"lat": 48.8583701, "lng": 2.2944813}}}]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	svr := httptest.NewServer(handler)
	t.Cleanup(svr.Close)

	c := NewClient(request.New(nil, nil), "test-key", nil)
	c.BaseURL = svr.URL
	return c
}

func TestAutocomplete(t *testing.T) {
	queries := make(chan *url.URL, 1)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL
		_, _ = w.Write([]byte(autocompleteOK))
	})

	b := model.Bounds{West: -5, South: 41, East: 10, North: 51}
	preds, err := c.Autocomplete(context.Background(), search.PlaceQuery{Term: "eiffel", Bounds: &b})
	require.NoError(t, err)
	require.Len(t, preds, 2)

	u := <-queries
	assert.Equal(t, "/maps/api/place/autocomplete/json", u.Path)
	assert.Equal(t, "eiffel", u.Query().Get("input"))
	assert.Equal(t, "test-key", u.Query().Get("key"))
	assert.Equal(t, "rectangle:41,-5|51,10", u.Query().Get("locationrestriction"))

	assert.Equal(t, "Eiffel Tower", preds[0].MainText)
	assert.Equal(t, "ChIJ123", preds[1].PlaceID)
	assert.Empty(t, preds[1].MainText)
}

func TestAutocomplete_Status(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
		wantLen int
	}{
		{"zero results", `{"status":"ZERO_RESULTS","predictions":[]}`, nil, 0},
		{"denied", `{"status":"REQUEST_DENIED","error_message":"bad key"}`, search.ErrProviderUnavailable, 0},
		{"no status", `{"predictions":[]}`, search.ErrProviderMalformedResponse, 0},
		{"not json", `<html>`, search.ErrProviderMalformedResponse, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})
			preds, err := c.Autocomplete(context.Background(), search.PlaceQuery{Term: tt.name})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, preds, tt.wantLen)
		})
	}
}

func TestGeocode(t *testing.T) {
	queries := make(chan *url.URL, 1)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL
		_, _ = w.Write([]byte(geocodeOK))
	})

	pt, err := c.Geocode(context.Background(), "ChIJLU7jZClu5kcR4PcOOO6p3I0")
	require.NoError(t, err)
	assert.Equal(t, orb.Point{2.2944813, 48.8583701}, pt)

	u := <-queries
	assert.Equal(t, "/maps/api/geocode/json", u.Path)
	assert.Equal(t, "ChIJLU7jZClu5kcR4PcOOO6p3I0", u.Query().Get("place_id"))
}

func TestGeocode_NoResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ZERO_RESULTS","results":[]}`))
	})
	_, err := c.Geocode(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestRectangle(t *testing.T) {
	_, ok := rectangle(model.Bounds{West: 170, East: -170})
	assert.False(t, ok)
}
