package citygml

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/citygml-footprints/internal/core/observability"
	"github.com/mohammed-shakir/citygml-footprints/internal/crs"
	"github.com/mohammed-shakir/citygml-footprints/internal/mapping"
)

var memberTags = []string{"cityObjectMember", "featureMember", "member", "featureMembers"}

// Parser turns CityGML documents into ProcessingResults. It holds no
// per-document state and is safe for concurrent use.
type Parser struct {
	table *mapping.Table
	proj  *crs.Reprojector
	log   *slog.Logger
}

func NewParser(table *mapping.Table, proj *crs.Reprojector, log *slog.Logger) *Parser {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if proj == nil {
		proj = crs.NewReprojector(nil, log)
	}
	return &Parser{table: table, proj: proj, log: log}
}

func (p *Parser) Table() *mapping.Table { return p.table }

// Parse extracts every building of one document. Only unreadable XML, a
// missing container or a cancelled context fail the document; a malformed
// building is logged, counted in Skipped and left out.
func (p *Parser) Parse(ctx context.Context, data []byte) ProcessingResult {
	start := time.Now()
	res := p.parse(ctx, data)
	observability.ObserveDocument(res.Success, time.Since(start).Seconds())
	if res.Success {
		observability.AddBuildings(len(res.Buildings), res.Skipped)
		p.log.InfoContext(ctx, "document processed",
			"buildings", len(res.Buildings),
			"skipped", res.Skipped,
			"srs", res.SourceReferenceSystem,
			"duration", time.Since(start))
	} else {
		p.log.WarnContext(ctx, "document rejected", "err", res.Error)
	}
	return res
}

func (p *Parser) parse(ctx context.Context, data []byte) ProcessingResult {
	root, err := ParseTree(data)
	if err != nil {
		return Failure(err)
	}
	container := findContainer(root)
	if container == nil {
		return Failure(fmt.Errorf("%w (root element %q)", ErrNoContainer, root.Name))
	}

	srs, dim := p.referenceSystem(container, root)
	asm := &assembler{
		geom: &geometryExtractor{
			proj: p.proj,
			from: srs,
			to:   p.table.Defaults.TargetSRS,
			dim:  dim,
		},
		attrs: &attributeExtractor{table: p.table},
		table: p.table,
		log:   p.log,
	}

	res := ProcessingResult{
		Success:               true,
		Buildings:             []BuildingRecord{},
		SourceReferenceSystem: crs.Canonical(srs),
	}
	bounds := NewBounds()
	seen := make(map[string]struct{})

	for _, el := range buildings(container) {
		if err := ctx.Err(); err != nil {
			return Failure(fmt.Errorf("processing cancelled: %w", err))
		}
		rec, ok := p.safeAssemble(ctx, asm, el)
		if !ok {
			res.Skipped++
			continue
		}
		if _, dup := seen[rec.ID]; dup {
			p.log.WarnContext(ctx, "duplicate building id skipped", "building_id", rec.ID)
			res.Skipped++
			continue
		}
		seen[rec.ID] = struct{}{}
		if rec.Bounds != nil {
			bounds.Merge(*rec.Bounds)
		}
		res.Buildings = append(res.Buildings, rec)
	}

	if bounds.IsSet() {
		res.Bounds = &bounds
	}
	return res
}

// safeAssemble isolates one building: a panic while walking its tree is
// logged and turns into a skip.
func (p *Parser) safeAssemble(ctx context.Context, asm *assembler, el *Node) (rec BuildingRecord, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.log.ErrorContext(ctx, "building extraction panicked, skipped",
				"building_id", el.Attr("id"), "panic", fmt.Sprint(r))
			rec, ok = BuildingRecord{}, false
		}
	}()
	return asm.assemble(ctx, el)
}

// referenceSystem picks the container envelope's srsName, then the root's,
// then the configured default. srsDimension follows the same envelope.
func (p *Parser) referenceSystem(container, root *Node) (string, int) {
	dim := defaultSRSDimension
	if env := envelopeOf(container); env != nil {
		dim = env.dim
		if env.srsName != "" {
			return env.srsName, dim
		}
	}
	if s := root.Attr("srsName"); s != "" {
		return s, dim
	}
	if s := container.Attr("srsName"); s != "" {
		return s, dim
	}
	return p.table.Defaults.SourceSRS, dim
}

// findContainer returns the root CityModel, else a WFS FeatureCollection
// whose members wrap buildings, else the first CityModel found breadth
// first. A FeatureCollection of other features is not CityGML.
func findContainer(root *Node) *Node {
	switch root.Name {
	case "CityModel":
		return root
	case "FeatureCollection":
		if len(buildings(root)) > 0 {
			return root
		}
	}
	queue := []*Node{root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, c := range n.Elements() {
			if c.Name == "CityModel" {
				return c
			}
			queue = append(queue, c)
		}
	}
	return nil
}

// buildings lists the Building elements wrapped by the container's members,
// in document order. Other city objects are ignored.
func buildings(container *Node) []*Node {
	var out []*Node
	for _, m := range container.Elements() {
		if !contains(memberTags, m.Name) {
			continue
		}
		out = append(out, m.Children("Building")...)
	}
	return out
}
