// Package shapefile serves area searches from a local polygon shapefile, for
// offline use or when the online provider is not wanted.
package shapefile

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/dhconnelly/rtreego"
	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"

	"geoquiz/pkg/model"
	"geoquiz/pkg/search"
)

// minExtent pads degenerate boxes; the R-tree rejects zero-length sides.
const minExtent = 1e-9

type feature struct {
	id       string
	name     string
	longName string
	geom     orb.Geometry
	bound    orb.Bound
}

func (f *feature) Bounds() rtreego.Rect {
	return rect(f.bound.Min, f.bound.Max)
}

func rect(lo, hi orb.Point) rtreego.Rect {
	w := math.Max(hi[0]-lo[0], minExtent)
	h := math.Max(hi[1]-lo[1], minExtent)
	r, _ := rtreego.NewRect(rtreego.Point{lo[0], lo[1]}, []float64{w, h})
	return r
}

// Options selects the attribute columns of the shapefile.
type Options struct {
	NameField     string
	LongNameField string
	Limit         int
}

// Provider implements search.AreaProvider over an in-memory copy of a shapefile.
type Provider struct {
	features []*feature
	tree     *rtreego.Rtree
	limit    int
}

// Open loads every polygon of the shapefile at path.
func Open(path string, opts Options, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.NameField == "" {
		opts.NameField = "NAME"
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	reader, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open shapefile: %w", err)
	}
	defer reader.Close()

	nameIdx, longIdx := -1, -1
	for i, f := range reader.Fields() {
		switch {
		case strings.EqualFold(f.String(), opts.NameField):
			nameIdx = i
		case opts.LongNameField != "" && strings.EqualFold(f.String(), opts.LongNameField):
			longIdx = i
		}
	}
	if nameIdx < 0 {
		return nil, fmt.Errorf("shapefile %s has no field %q", path, opts.NameField)
	}

	p := &Provider{tree: rtreego.NewTree(2, 25, 50), limit: opts.Limit}
	skipped := 0
	for reader.Next() {
		n, s := reader.Shape()
		poly, ok := s.(*shp.Polygon)
		if !ok {
			skipped++
			continue
		}
		geom := convertPolygon(poly)
		if geom == nil {
			skipped++
			continue
		}

		f := &feature{
			id:    strconv.Itoa(n),
			name:  attribute(reader, n, nameIdx),
			geom:  geom,
			bound: geom.Bound(),
		}
		f.longName = f.name
		if longIdx >= 0 {
			if ln := attribute(reader, n, longIdx); ln != "" {
				f.longName = ln
			}
		}
		if f.name == "" {
			skipped++
			continue
		}
		p.features = append(p.features, f)
		p.tree.Insert(f)
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shapes: %w", err)
	}

	logger.Info("Shapefile loaded", "path", path, "areas", len(p.features), "skipped", skipped)
	return p, nil
}

func attribute(r *shp.Reader, row, field int) string {
	return strings.Trim(r.ReadAttribute(row, field), " \x00")
}

// Len returns the number of indexed areas.
func (p *Provider) Len() int {
	return len(p.features)
}

// SearchAreas implements search.AreaProvider. Names match case-insensitively;
// exact matches rank before prefix matches, which rank before substring matches.
func (p *Provider) SearchAreas(ctx context.Context, q search.AreaQuery) ([]search.AreaResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	candidates := p.features
	if q.Bounds != nil && q.Bounded {
		candidates = p.intersecting(*q.Bounds)
	}

	term := strings.ToLower(strings.TrimSpace(q.Term))
	type match struct {
		f    *feature
		rank int
	}
	var matches []match
	for _, f := range candidates {
		name := strings.ToLower(f.name)
		switch {
		case name == term:
			matches = append(matches, match{f, 0})
		case strings.HasPrefix(name, term):
			matches = append(matches, match{f, 1})
		case strings.Contains(name, term):
			matches = append(matches, match{f, 2})
		}
	}
	slices.SortFunc(matches, func(a, b match) int {
		return cmp.Or(cmp.Compare(a.rank, b.rank), cmp.Compare(a.f.name, b.f.name), cmp.Compare(a.f.id, b.f.id))
	})

	results := make([]search.AreaResult, 0, min(len(matches), p.limit))
	for _, m := range matches {
		if len(results) == p.limit {
			break
		}
		b := m.f.bound
		results = append(results, search.AreaResult{
			PlaceID:     m.f.id,
			ShortName:   m.f.name,
			DisplayName: m.f.longName,
			Geometry:    m.f.geom,
			BBox:        [4]float64{b.Min[1], b.Max[1], b.Min[0], b.Max[0]},
		})
	}
	return results, nil
}

// intersecting returns the features whose bounding boxes overlap b. A box that
// wraps the antimeridian is searched as its two halves.
func (p *Provider) intersecting(b model.Bounds) []*feature {
	boxes := []orb.Bound{{Min: orb.Point{b.West, b.South}, Max: orb.Point{b.East, b.North}}}
	if b.Wraps() {
		boxes = []orb.Bound{
			{Min: orb.Point{b.West, b.South}, Max: orb.Point{180, b.North}},
			{Min: orb.Point{-180, b.South}, Max: orb.Point{b.East, b.North}},
		}
	}

	seen := make(map[*feature]bool)
	var out []*feature
	for _, box := range boxes {
		for _, s := range p.tree.SearchIntersect(rect(box.Min, box.Max)) {
			f := s.(*feature)
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}

// convertPolygon groups shapefile parts into polygons. Clockwise rings are
// exteriors; counter-clockwise rings are holes of the preceding exterior.
func convertPolygon(s *shp.Polygon) orb.Geometry {
	var mp orb.MultiPolygon
	for i := 0; i < int(s.NumParts); i++ {
		start := s.Parts[i]
		end := s.NumPoints
		if i < int(s.NumParts)-1 {
			end = s.Parts[i+1]
		}

		ring := make(orb.Ring, 0, end-start)
		for j := start; j < end; j++ {
			ring = append(ring, orb.Point{s.Points[j].X, s.Points[j].Y})
		}
		if len(ring) < 4 {
			continue
		}

		if ring.Orientation() == orb.CCW && len(mp) > 0 {
			last := len(mp) - 1
			mp[last] = append(mp[last], ring)
			continue
		}
		mp = append(mp, orb.Polygon{ring})
	}

	switch len(mp) {
	case 0:
		return nil
	case 1:
		return mp[0]
	}
	return mp
}
