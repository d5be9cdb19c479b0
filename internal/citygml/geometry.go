package citygml

import (
	"strconv"
	"strings"

	"github.com/mohammed-shakir/citygml-footprints/internal/crs"
)

const defaultSRSDimension = 3

var (
	solidTags = []string{"lod1Solid", "lod2Solid", "lod3Solid", "lod4Solid"}
	shellTags = []string{"Shell", "CompositeSurface"}
	multiTags = []string{"lod0FootPrint", "lod1MultiSurface", "lod2MultiSurface"}
	// nested parts are collected separately and never searched into
	partStop = []string{"consistsOfBuildingPart", "BuildingPart"}
)

// geometryExtractor turns a building's surfaces into footprint rings in the
// target reference system.
type geometryExtractor struct {
	proj     *crs.Reprojector
	from, to string
	dim      int
}

// extract returns the rings of el followed by those of its nested parts.
// Each part contributes its own rings; nothing is merged.
func (g *geometryExtractor) extract(el *Node) []Ring {
	rings := g.own(el)
	for _, cp := range el.Children("consistsOfBuildingPart") {
		for _, part := range cp.Children("BuildingPart") {
			rings = append(rings, g.extract(part)...)
		}
	}
	return rings
}

// own applies the precedence ground surfaces, then solid shell, then
// multi-surface, stopping at the first source yielding a ring.
func (g *geometryExtractor) own(el *Node) []Ring {
	if rings := g.groundSurfaces(el); len(rings) > 0 {
		return rings
	}
	if rings := g.solid(el); len(rings) > 0 {
		return rings
	}
	return g.multiSurface(el)
}

func (g *geometryExtractor) groundSurfaces(el *Node) []Ring {
	var rings []Ring
	for _, gs := range el.Find("GroundSurface", partStop...) {
		rings = append(rings, g.polygons(gs)...)
	}
	return rings
}

func (g *geometryExtractor) solid(el *Node) []Ring {
	var rings []Ring
	for _, tag := range solidTags {
		for _, lod := range el.Children(tag) {
			for _, solid := range lod.Children("Solid") {
				for _, ext := range solid.Children("exterior") {
					for _, shellTag := range shellTags {
						for _, shell := range ext.Children(shellTag) {
							for _, sm := range shell.Children("surfaceMember") {
								rings = append(rings, g.polygons(sm)...)
							}
						}
					}
				}
			}
		}
	}
	return rings
}

func (g *geometryExtractor) multiSurface(el *Node) []Ring {
	var rings []Ring
	for _, tag := range multiTags {
		for _, lod := range el.Children(tag) {
			for _, ms := range lod.Children("MultiSurface") {
				for _, sm := range ms.Children("surfaceMember") {
					rings = append(rings, g.polygons(sm)...)
				}
			}
		}
	}
	return rings
}

// polygons reads the exterior ring of every Polygon below n. Interior rings
// (courtyards) are not part of a footprint outline and are ignored.
func (g *geometryExtractor) polygons(n *Node) []Ring {
	var rings []Ring
	for _, poly := range n.Find("Polygon", partStop...) {
		for _, boundary := range []string{"exterior", "outerBoundaryIs"} {
			for _, ext := range poly.Children(boundary) {
				for _, lr := range ext.Children("LinearRing") {
					if r := g.ring(lr); r != nil {
						rings = append(rings, r)
					}
				}
			}
		}
	}
	return rings
}

// ring reads, reprojects and closes one LinearRing. It returns nil for rings
// without coordinates and for rings with fewer than three distinct vertices.
func (g *geometryExtractor) ring(lr *Node) Ring {
	raw := g.coordinates(lr)
	if len(raw) == 0 {
		return nil
	}
	r := make(Ring, 0, len(raw)+1)
	for _, c := range raw {
		r = append(r, Vertex(g.proj.Reproject(c, g.from, g.to)))
	}
	if r[0] != r[len(r)-1] {
		r = append(r, r[0])
	}
	if distinct(r) < 3 {
		return nil
	}
	return r
}

// coordinates supports posList, a sequence of pos, and GML 2 coordinates.
func (g *geometryExtractor) coordinates(lr *Node) [][]float64 {
	if pl := lr.Child("posList"); pl != nil {
		vals, ok := parseCoords(pl.Text)
		if !ok {
			return nil
		}
		return group(vals, dimension(pl, lr, g.dim))
	}
	if ps := lr.Children("pos"); len(ps) > 0 {
		out := make([][]float64, 0, len(ps))
		for _, p := range ps {
			vals, ok := parseCoords(p.Text)
			if !ok || len(vals) < 2 {
				return nil
			}
			out = append(out, vals)
		}
		return out
	}
	if cs := lr.Child("coordinates"); cs != nil {
		return legacyCoordinates(cs)
	}
	return nil
}

// dimension reads srsDimension from the posList, then its ring, else fallback.
func dimension(pl, lr *Node, fallback int) int {
	for _, n := range []*Node{pl, lr} {
		if d, err := strconv.Atoi(strings.TrimSpace(n.Attr("srsDimension"))); err == nil && d >= 2 {
			return d
		}
	}
	if fallback >= 2 {
		return fallback
	}
	return defaultSRSDimension
}

// group slices a flat list into tuples of dim values; a trailing partial
// tuple is dropped.
func group(vals []float64, dim int) [][]float64 {
	out := make([][]float64, 0, len(vals)/dim)
	for i := 0; i+dim <= len(vals); i += dim {
		out = append(out, vals[i:i+dim])
	}
	return out
}

func legacyCoordinates(n *Node) [][]float64 {
	cs, ts := n.Attr("cs"), n.Attr("ts")
	if cs == "" {
		cs = ","
	}
	var tuples []string
	if strings.TrimSpace(ts) == "" {
		tuples = strings.Fields(n.Text)
	} else {
		tuples = strings.Split(n.Text, ts)
	}
	out := make([][]float64, 0, len(tuples))
	for _, tup := range tuples {
		tup = strings.TrimSpace(tup)
		if tup == "" {
			continue
		}
		vals, ok := parseCoords(strings.ReplaceAll(tup, cs, " "))
		if !ok || len(vals) < 2 {
			return nil
		}
		out = append(out, vals)
	}
	return out
}

func distinct(r Ring) int {
	seen := make(map[Vertex]struct{}, len(r))
	for _, v := range r {
		seen[v] = struct{}{}
	}
	return len(seen)
}
