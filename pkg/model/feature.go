package model

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Kind discriminates the Feature variants.
type Kind string

const (
	KindRoot  Kind = "root"
	KindArea  Kind = "area"
	KindPoint Kind = "point"
)

// Feature is a node of the quiz hierarchy. The set of implementations is closed:
// Root, Area and Point. Consumers switch over all three.
type Feature interface {
	FeatureID() string
	Kind() Kind
	isFeature()
}

// Root is the single top-level node of a quiz. It is never renamed or deleted.
type Root struct {
	ID       string   `json:"id"`
	ChildIDs []string `json:"child_ids"`
}

// Area is a polygonal region. Geometry is an orb.Polygon or orb.MultiPolygon
// in lon/lat order.
type Area struct {
	ID              string
	ParentID        string
	ChildIDs        []string
	ShortName       string
	LongName        string
	UserDefinedName *string
	Geometry        orb.Geometry
	SearchBounds    Bounds
	DisplayBounds   Bounds
}

// Point is a landmark. Points never have children.
type Point struct {
	ID              string
	ParentID        string
	ShortName       string
	LongName        string
	UserDefinedName *string
	Coord           orb.Point
	DisplayBounds   Bounds
}

func (r Root) FeatureID() string  { return r.ID }
func (a Area) FeatureID() string  { return a.ID }
func (p Point) FeatureID() string { return p.ID }

func (Root) Kind() Kind  { return KindRoot }
func (Area) Kind() Kind  { return KindArea }
func (Point) Kind() Kind { return KindPoint }

func (Root) isFeature()  {}
func (Area) isFeature()  {}
func (Point) isFeature() {}

// ParentID returns the parent of a non-root feature. Root has none.
func ParentID(f Feature) (string, bool) {
	switch v := f.(type) {
	case Root:
		return "", false
	case Area:
		return v.ParentID, true
	case Point:
		return v.ParentID, true
	}
	return "", false
}

// ChildIDs returns the ordered children of a Root or Area. Points have none.
func ChildIDs(f Feature) []string {
	switch v := f.(type) {
	case Root:
		return v.ChildIDs
	case Area:
		return v.ChildIDs
	case Point:
		return nil
	}
	return nil
}

// CanHaveChildren reports whether f may be a parent.
func CanHaveChildren(f Feature) bool {
	switch f.(type) {
	case Root, Area:
		return true
	}
	return false
}

// DisplayName is the user override if set and non-empty, otherwise the
// provider short name.
func DisplayName(f Feature) string {
	switch v := f.(type) {
	case Root:
		return ""
	case Area:
		return pick(v.UserDefinedName, v.ShortName)
	case Point:
		return pick(v.UserDefinedName, v.ShortName)
	}
	return ""
}

func pick(override *string, fallback string) string {
	if override != nil && *override != "" {
		return *override
	}
	return fallback
}

// featureJSON is the wire envelope shared by all variants.
type featureJSON struct {
	Type            Kind              `json:"type"`
	ID              string            `json:"id"`
	ParentID        string            `json:"parent_id,omitempty"`
	ChildIDs        []string          `json:"child_ids,omitempty"`
	ShortName       string            `json:"short_name,omitempty"`
	LongName        string            `json:"long_name,omitempty"`
	UserDefinedName *string           `json:"user_defined_name,omitempty"`
	DisplayName     string            `json:"display_name,omitempty"`
	Geometry        *geojson.Geometry `json:"geometry,omitempty"`
	SearchBounds    *Bounds           `json:"search_bounds,omitempty"`
	DisplayBounds   *Bounds           `json:"display_bounds,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r Root) MarshalJSON() ([]byte, error) {
	children := r.ChildIDs
	if children == nil {
		children = []string{}
	}
	return json.Marshal(featureJSON{Type: KindRoot, ID: r.ID, ChildIDs: children})
}

// MarshalJSON implements json.Marshaler.
func (a Area) MarshalJSON() ([]byte, error) {
	sb, db := a.SearchBounds, a.DisplayBounds
	return json.Marshal(featureJSON{
		Type:            KindArea,
		ID:              a.ID,
		ParentID:        a.ParentID,
		ChildIDs:        a.ChildIDs,
		ShortName:       a.ShortName,
		LongName:        a.LongName,
		UserDefinedName: a.UserDefinedName,
		DisplayName:     DisplayName(a),
		Geometry:        geojson.NewGeometry(a.Geometry),
		SearchBounds:    &sb,
		DisplayBounds:   &db,
	})
}

// MarshalJSON implements json.Marshaler.
func (p Point) MarshalJSON() ([]byte, error) {
	db := p.DisplayBounds
	return json.Marshal(featureJSON{
		Type:            KindPoint,
		ID:              p.ID,
		ParentID:        p.ParentID,
		ShortName:       p.ShortName,
		LongName:        p.LongName,
		UserDefinedName: p.UserDefinedName,
		DisplayName:     DisplayName(p),
		Geometry:        geojson.NewGeometry(p.Coord),
		DisplayBounds:   &db,
	})
}

// UnmarshalFeature decodes any variant from its JSON envelope.
func UnmarshalFeature(data []byte) (Feature, error) {
	var fj featureJSON
	if err := json.Unmarshal(data, &fj); err != nil {
		return nil, err
	}

	switch fj.Type {
	case KindRoot:
		return Root{ID: fj.ID, ChildIDs: nonNil(fj.ChildIDs)}, nil
	case KindArea:
		if fj.Geometry == nil {
			return nil, fmt.Errorf("area %s: missing geometry", fj.ID)
		}
		geom := fj.Geometry.Geometry()
		switch geom.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			return nil, fmt.Errorf("area %s: unsupported geometry %s", fj.ID, geom.GeoJSONType())
		}
		a := Area{
			ID:              fj.ID,
			ParentID:        fj.ParentID,
			ChildIDs:        nonNil(fj.ChildIDs),
			ShortName:       fj.ShortName,
			LongName:        fj.LongName,
			UserDefinedName: fj.UserDefinedName,
			Geometry:        geom,
		}
		if fj.SearchBounds != nil {
			a.SearchBounds = *fj.SearchBounds
		}
		if fj.DisplayBounds != nil {
			a.DisplayBounds = *fj.DisplayBounds
		}
		// Envelopes posted by hand often omit the boxes; fall back to the outline.
		if a.SearchBounds.IsZero() {
			a.SearchBounds = BoundsFromOrb(geom.Bound())
		}
		if a.DisplayBounds.IsZero() {
			a.DisplayBounds = a.SearchBounds
		}
		return a, nil
	case KindPoint:
		if fj.Geometry == nil {
			return nil, fmt.Errorf("point %s: missing geometry", fj.ID)
		}
		pt, ok := fj.Geometry.Geometry().(orb.Point)
		if !ok {
			return nil, fmt.Errorf("point %s: geometry is not a point", fj.ID)
		}
		p := Point{
			ID:              fj.ID,
			ParentID:        fj.ParentID,
			ShortName:       fj.ShortName,
			LongName:        fj.LongName,
			UserDefinedName: fj.UserDefinedName,
			Coord:           pt,
		}
		if fj.DisplayBounds != nil {
			p.DisplayBounds = *fj.DisplayBounds
		}
		return p, nil
	}
	return nil, fmt.Errorf("unknown feature type %q", fj.Type)
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
