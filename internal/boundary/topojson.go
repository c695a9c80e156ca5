package boundary

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

type topology struct {
	Transform *struct {
		Scale     [2]float64 `json:"scale"`
		Translate [2]float64 `json:"translate"`
	} `json:"transform"`
	Objects map[string]json.RawMessage `json:"objects"`
	Arcs    [][][]float64              `json:"arcs"`
}

type topoGeometry struct {
	Type       string          `json:"type"`
	ID         any             `json:"id"`
	Properties map[string]any  `json:"properties"`
	Arcs       json.RawMessage `json:"arcs"`
	Geometries []topoGeometry  `json:"geometries"`
}

func decodeTopology(doc []byte, object string, level Level) (*Layer, error) {
	var topo topology
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	if err := dec.Decode(&topo); err != nil {
		return nil, fmt.Errorf("parse %s topology: %w", level, err)
	}

	raw, err := pickObject(topo.Objects, object)
	if err != nil {
		return nil, fmt.Errorf("%s topology: %w", level, err)
	}
	var root topoGeometry
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("parse %s topology object: %w", level, err)
	}

	arcs := decodeArcs(topo)
	geoms := flatten(root)

	out := &Layer{Level: level, Features: make([]Feature, 0, len(geoms))}
	// geometry index -> arcs it references, for the mesh
	arcOwners := make(map[int]map[int]struct{})

	for gi, g := range geoms {
		polys, err := arcIndexes(g)
		if err != nil {
			return nil, fmt.Errorf("%s geometry %d: %w", level, gi, err)
		}
		if len(polys) == 0 {
			continue
		}
		for _, poly := range polys {
			for _, ring := range poly {
				for _, a := range ring {
					idx := absArc(a)
					owners := arcOwners[idx]
					if owners == nil {
						owners = map[int]struct{}{}
						arcOwners[idx] = owners
					}
					owners[gi] = struct{}{}
				}
			}
		}

		code, ok := featureCode(g.ID, g.Properties, level)
		if !ok {
			continue
		}
		geom, err := stitch(polys, arcs)
		if err != nil {
			return nil, fmt.Errorf("%s geometry %d (%s): %w", level, gi, code, err)
		}
		if geom.IsEmpty() {
			continue
		}
		out.Features = append(out.Features, Feature{
			Code:     code,
			Name:     featureName(g.Properties),
			Geometry: geom,
		})
	}
	sortFeatures(out.Features)
	out.Mesh = interiorMesh(arcOwners, arcs)
	return out, nil
}

func pickObject(objects map[string]json.RawMessage, name string) (json.RawMessage, error) {
	if raw, ok := objects[name]; ok {
		return raw, nil
	}
	if len(objects) == 1 {
		for _, raw := range objects {
			return raw, nil
		}
	}
	names := make([]string, 0, len(objects))
	for k := range objects {
		names = append(names, k)
	}
	sort.Strings(names)
	return nil, fmt.Errorf("%w: %q (have %v)", ErrObjectNotFound, name, names)
}

// decodeArcs applies the quantization transform and delta decoding when present.
func decodeArcs(topo topology) []Line {
	out := make([]Line, len(topo.Arcs))
	for i, arc := range topo.Arcs {
		line := make(Line, 0, len(arc))
		var x, y float64
		for _, pos := range arc {
			if len(pos) < 2 {
				continue
			}
			if topo.Transform == nil {
				line = append(line, Point{pos[0], pos[1]})
				continue
			}
			x += pos[0]
			y += pos[1]
			line = append(line, Point{
				x*topo.Transform.Scale[0] + topo.Transform.Translate[0],
				y*topo.Transform.Scale[1] + topo.Transform.Translate[1],
			})
		}
		out[i] = line
	}
	return out
}

func flatten(g topoGeometry) []topoGeometry {
	if g.Type != "GeometryCollection" {
		return []topoGeometry{g}
	}
	var out []topoGeometry
	for _, child := range g.Geometries {
		out = append(out, flatten(child)...)
	}
	return out
}

// arcIndexes returns [polygon][ring][arc] for Polygon and MultiPolygon geometries.
// Null and non-areal geometries yield nothing.
func arcIndexes(g topoGeometry) ([][][]int, error) {
	switch g.Type {
	case "Polygon":
		var rings [][]int
		if err := json.Unmarshal(g.Arcs, &rings); err != nil {
			return nil, fmt.Errorf("parse polygon arcs: %w", err)
		}
		return [][][]int{rings}, nil
	case "MultiPolygon":
		var polys [][][]int
		if err := json.Unmarshal(g.Arcs, &polys); err != nil {
			return nil, fmt.Errorf("parse multipolygon arcs: %w", err)
		}
		return polys, nil
	default:
		return nil, nil
	}
}

// absArc maps a possibly reversed arc reference (~i) to its arc index.
func absArc(a int) int {
	if a < 0 {
		return ^a
	}
	return a
}

func stitch(polys [][][]int, arcs []Line) (Geometry, error) {
	out := make(Geometry, 0, len(polys))
	for _, poly := range polys {
		p := make(Polygon, 0, len(poly))
		for _, ring := range poly {
			r, err := stitchRing(ring, arcs)
			if err != nil {
				return nil, err
			}
			p = append(p, r)
		}
		out = append(out, p)
	}
	return out, nil
}

func stitchRing(refs []int, arcs []Line) (Ring, error) {
	var ring Ring
	for _, a := range refs {
		idx := absArc(a)
		if idx >= len(arcs) {
			return nil, fmt.Errorf("arc %d out of range (%d arcs)", idx, len(arcs))
		}
		pts := arcs[idx]
		if a < 0 {
			pts = pts.Clone()
			pts.Reverse()
		}
		// consecutive arcs share their joining point
		if len(ring) > 0 && len(pts) > 0 {
			pts = pts[1:]
		}
		ring = append(ring, pts...)
	}
	return ring, nil
}

// interiorMesh keeps arcs shared by two or more distinct geometries.
func interiorMesh(owners map[int]map[int]struct{}, arcs []Line) []Line {
	idx := make([]int, 0, len(owners))
	for a, set := range owners {
		if len(set) >= 2 && a < len(arcs) {
			idx = append(idx, a)
		}
	}
	sort.Ints(idx)
	out := make([]Line, 0, len(idx))
	for _, a := range idx {
		out = append(out, arcs[a])
	}
	return out
}
