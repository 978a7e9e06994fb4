package shapefile

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoquiz/pkg/model"
	"geoquiz/pkg/search"
)

// cw returns a clockwise ring around the box.
func cw(minX, minY, maxX, maxY float64) []shp.Point {
	return []shp.Point{{X: minX, Y: minY}, {X: minX, Y: maxY}, {X: maxX, Y: maxY}, {X: maxX, Y: minY}, {X: minX, Y: minY}}
}

// ccw returns a counter-clockwise ring around the box.
func ccw(minX, minY, maxX, maxY float64) []shp.Point {
	return []shp.Point{{X: minX, Y: minY}, {X: maxX, Y: minY}, {X: maxX, Y: maxY}, {X: minX, Y: maxY}, {X: minX, Y: minY}}
}

func writeTestShapefile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "areas.shp")

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("NAME", 32),
		shp.StringField("FORMAL", 64),
	}))

	rows := []struct {
		name, formal string
		parts        [][]shp.Point
	}{
		{"France", "French Republic", [][]shp.Point{cw(-5, 41, 9, 51)}},
		{"Franconia", "", [][]shp.Point{cw(10, 49, 12, 50)}},
		{"Fiji", "Republic of Fiji", [][]shp.Point{cw(177, -19, 179.9, -16), cw(-180, -17, -178, -15)}},
		{"Holey", "", [][]shp.Point{cw(0, 0, 10, 10), ccw(2, 2, 4, 4)}},
		{"", "", [][]shp.Point{cw(0, 0, 1, 1)}},
	}
	for i, r := range rows {
		poly := shp.Polygon(*shp.NewPolyLine(r.parts))
		w.Write(&poly)
		require.NoError(t, w.WriteAttribute(i, 0, r.name))
		require.NoError(t, w.WriteAttribute(i, 1, r.formal))
	}
	w.Close()
	return path
}

func TestOpen(t *testing.T) {
	p, err := Open(writeTestShapefile(t), Options{NameField: "name", LongNameField: "FORMAL"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, p.Len(), "unnamed shapes are skipped")

	_, err = Open(writeTestShapefile(t), Options{NameField: "MISSING"}, nil)
	assert.Error(t, err)
}

func TestSearchAreas(t *testing.T) {
	p, err := Open(writeTestShapefile(t), Options{LongNameField: "FORMAL"}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	results, err := p.SearchAreas(ctx, search.AreaQuery{Term: "Fran"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "France", results[0].ShortName)
	assert.Equal(t, "French Republic", results[0].DisplayName)
	assert.Equal(t, [4]float64{41, 51, -5, 9}, results[0].BBox)
	assert.Equal(t, "Franconia", results[1].ShortName)
	assert.Equal(t, "Franconia", results[1].DisplayName, "long name falls back to the name")

	results, err = p.SearchAreas(ctx, search.AreaQuery{Term: "franconia"})
	require.NoError(t, err)
	require.Len(t, results, 1)

	results, err = p.SearchAreas(ctx, search.AreaQuery{Term: "ole"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	poly, ok := results[0].Geometry.(orb.Polygon)
	require.True(t, ok)
	assert.Len(t, poly, 2, "counter-clockwise part becomes a hole")
}

func TestSearchAreas_Bounded(t *testing.T) {
	p, err := Open(writeTestShapefile(t), Options{}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	b := model.Bounds{West: -6, South: 40, East: 8, North: 52}
	results, err := p.SearchAreas(ctx, search.AreaQuery{Term: "fran", Bounds: &b, Bounded: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "France", results[0].ShortName)

	// Without Bounded the box is only a hint.
	results, err = p.SearchAreas(ctx, search.AreaQuery{Term: "fran", Bounds: &b})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	pacific := model.Bounds{West: 170, South: -25, East: -170, North: -10}
	results, err = p.SearchAreas(ctx, search.AreaQuery{Term: "fiji", Bounds: &pacific, Bounded: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	_, ok := results[0].Geometry.(orb.MultiPolygon)
	assert.True(t, ok)
}

func TestSearchAreas_Limit(t *testing.T) {
	p, err := Open(writeTestShapefile(t), Options{Limit: 1}, nil)
	require.NoError(t, err)

	results, err := p.SearchAreas(context.Background(), search.AreaQuery{Term: "f"})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearchAreas_Canceled(t *testing.T) {
	p, err := Open(writeTestShapefile(t), Options{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.SearchAreas(ctx, search.AreaQuery{Term: "f"})
	assert.ErrorIs(t, err, context.Canceled)
}
