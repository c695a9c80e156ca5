package boundary

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/civic-choropleth/internal/region"
)

var (
	ErrUnsupportedDocument = errors.New("unsupported boundary document")
	ErrObjectNotFound      = errors.New("topology object not found")
)

type Level int

const (
	LevelState Level = iota
	LevelCounty
)

func (l Level) String() string {
	if l == LevelCounty {
		return "county"
	}
	return "state"
}

// Feature is one region shape. Treat it as read-only once decoded.
type Feature struct {
	Code     region.Code `json:"code"`
	Name     string      `json:"name,omitempty"`
	Geometry Geometry    `json:"geometry"`
}

// Layer is one decoded document: its features and, for topologies, its shared-edge mesh.
type Layer struct {
	Level    Level
	Features []Feature
	Mesh     []Line
}

// DecodeLayer converts a TopoJSON Topology or a GeoJSON FeatureCollection into a Layer.
// object selects the topology object; it is ignored for GeoJSON. Features whose id
// cannot be padded to the level's width, or that carry no geometry, are dropped.
func DecodeLayer(doc []byte, object string, level Level) (*Layer, error) {
	doc = bytes.TrimSpace(doc)
	if len(doc) == 0 {
		return &Layer{Level: level}, nil
	}

	var hdr struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(doc, &hdr); err != nil {
		return nil, fmt.Errorf("parse %s boundary document: %w", level, err)
	}

	switch strings.ToLower(hdr.Type) {
	case "topology":
		return decodeTopology(doc, object, level)
	case "featurecollection":
		return decodeFeatureCollection(doc, level)
	default:
		return nil, fmt.Errorf("%w: type %q", ErrUnsupportedDocument, hdr.Type)
	}
}

// normalizes a raw feature id into a code at the requested level
func featureCode(id any, props map[string]any, level Level) (region.Code, bool) {
	candidates := []any{id}
	for _, k := range []string{"GEOID", "geoid", "fips", "FIPS", "STATEFP"} {
		if v, ok := props[k]; ok {
			candidates = append(candidates, v)
		}
	}
	for _, c := range candidates {
		if c == nil {
			continue
		}
		var (
			code region.Code
			ok   bool
		)
		if level == LevelCounty {
			code, ok = region.NormalizeCounty(c)
		} else {
			code, ok = region.NormalizeState(c)
		}
		if ok {
			return code, true
		}
	}
	return "", false
}

func featureName(props map[string]any) string {
	for _, k := range []string{"name", "NAME", "Name"} {
		if s, ok := props[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func sortFeatures(fs []Feature) {
	sort.SliceStable(fs, func(i, j int) bool { return fs[i].Code < fs[j].Code })
}

// --- GeoJSON ---

func decodeFeatureCollection(doc []byte, level Level) (*Layer, error) {
	fc, err := geojson.UnmarshalFeatureCollection(doc)
	if err != nil {
		return nil, fmt.Errorf("parse %s feature collection: %w", level, err)
	}

	out := &Layer{Level: level, Features: make([]Feature, 0, len(fc.Features))}
	for i, f := range fc.Features {
		code, ok := featureCode(f.ID, f.Properties, level)
		if !ok {
			continue
		}
		geom, err := areal(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("%s feature %d (%s): %w", level, i, code, err)
		}
		if geom.IsEmpty() {
			continue
		}
		out.Features = append(out.Features, Feature{
			Code:     code,
			Name:     featureName(f.Properties),
			Geometry: geom,
		})
	}
	sortFeatures(out.Features)
	return out, nil
}

// areal accepts Polygon and MultiPolygon geometries; a null geometry is empty.
func areal(g orb.Geometry) (Geometry, error) {
	switch v := g.(type) {
	case nil:
		return nil, nil
	case orb.Polygon:
		return Geometry{v}, nil
	case orb.MultiPolygon:
		return Geometry(v), nil
	default:
		return nil, fmt.Errorf("unsupported geometry type %q (want Polygon or MultiPolygon)", v.GeoJSONType())
	}
}
