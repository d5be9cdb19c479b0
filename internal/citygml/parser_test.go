package citygml

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/mohammed-shakir/citygml-footprints/internal/crs"
	"github.com/mohammed-shakir/citygml-footprints/internal/mapping"
)

const namespaces = `xmlns:core="http://www.opengis.net/citygml/2.0" ` +
	`xmlns:bldg="http://www.opengis.net/citygml/building/2.0" ` +
	`xmlns:gen="http://www.opengis.net/citygml/generics/2.0" ` +
	`xmlns:gml="http://www.opengis.net/gml"`

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	tbl, err := mapping.Default()
	if err != nil {
		t.Fatalf("mapping: %v", err)
	}
	return NewParser(tbl, crs.NewReprojector(nil, nil), nil)
}

func cityModel(srs string, members ...string) string {
	var b strings.Builder
	b.WriteString(`<core:CityModel ` + namespaces + `>`)
	if srs != "" {
		b.WriteString(`<gml:boundedBy><gml:Envelope srsName="` + srs + `" srsDimension="3">` +
			`<gml:lowerCorner>0 0 0</gml:lowerCorner><gml:upperCorner>1 1 1</gml:upperCorner>` +
			`</gml:Envelope></gml:boundedBy>`)
	}
	for _, m := range members {
		b.WriteString(m)
	}
	b.WriteString(`</core:CityModel>`)
	return b.String()
}

func building(id, body string) string {
	return `<core:cityObjectMember><bldg:Building gml:id="` + id + `">` + body +
		`</bldg:Building></core:cityObjectMember>`
}

func polygon(posList string) string {
	return `<gml:Polygon><gml:exterior><gml:LinearRing><gml:posList>` + posList +
		`</gml:posList></gml:LinearRing></gml:exterior></gml:Polygon>`
}

func groundSurface(posList string) string {
	return `<bldg:boundedBy><bldg:GroundSurface><bldg:lod2MultiSurface><gml:MultiSurface>` +
		`<gml:surfaceMember>` + polygon(posList) + `</gml:surfaceMember>` +
		`</gml:MultiSurface></bldg:lod2MultiSurface></bldg:GroundSurface></bldg:boundedBy>`
}

func lod2Solid(posLists ...string) string {
	var b strings.Builder
	b.WriteString(`<bldg:lod2Solid><gml:Solid><gml:exterior><gml:CompositeSurface>`)
	for _, pl := range posLists {
		b.WriteString(`<gml:surfaceMember>` + polygon(pl) + `</gml:surfaceMember>`)
	}
	b.WriteString(`</gml:CompositeSurface></gml:exterior></gml:Solid></bldg:lod2Solid>`)
	return b.String()
}

// closed 5-point square in GK East around central Vienna
const square = "1000 340000 171 1020 340000 171 1020 340015 171 1000 340015 171 1000 340000 171"

func parse(t *testing.T, p *Parser, doc string) ProcessingResult {
	t.Helper()
	return p.Parse(context.Background(), []byte(doc))
}

func assertClosed(t *testing.T, res ProcessingResult) {
	t.Helper()
	for _, b := range res.Buildings {
		for i, r := range b.Geometry {
			if len(r) < 4 || r[0] != r[len(r)-1] {
				t.Fatalf("building %s ring %d not closed: %v", b.ID, i, r)
			}
		}
	}
}

func TestParse_MinimalBuilding(t *testing.T) {
	p := newTestParser(t)
	doc := cityModel(crs.MGIGKEast, building("B1",
		`<bldg:measuredHeight>12.5</bldg:measuredHeight>`+
			`<bldg:storeysAboveGround>4</bldg:storeysAboveGround>`+
			groundSurface(square)))

	res := parse(t, p, doc)
	if !res.Success || len(res.Buildings) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	b := res.Buildings[0]
	if b.ID != "B1" || b.Attributes.Height != 12.5 || b.Attributes.Floors != 4 {
		t.Fatalf("attributes: %+v", b)
	}
	if len(b.Geometry) != 1 || len(b.Geometry[0]) != 5 {
		t.Fatalf("geometry: %v", b.Geometry)
	}
	assertClosed(t, res)
	v := b.Geometry[0][0]
	if v[0] < 16.3 || v[0] > 16.4 || v[1] < 48.0 || v[1] > 48.4 || v[2] != 171 {
		t.Fatalf("vertex not reprojected to WGS84: %v", v)
	}
	if res.Bounds == nil || !res.Bounds.IsSet() {
		t.Fatal("bounds not reported")
	}
	for _, v := range b.Geometry[0] {
		if v[0] < res.Bounds.West || v[0] > res.Bounds.East || v[1] < res.Bounds.South || v[1] > res.Bounds.North {
			t.Fatalf("vertex %v outside bounds %+v", v, *res.Bounds)
		}
	}
	if res.SourceReferenceSystem != crs.MGIGKEast {
		t.Fatalf("srs=%q", res.SourceReferenceSystem)
	}
}

func TestParse_MalformedCountsFallBack(t *testing.T) {
	p := newTestParser(t)
	doc := cityModel(crs.MGIGKEast, building("B1",
		`<bldg:storeysAboveGround>0.4</bldg:storeysAboveGround>`+
			`<bldg:yearOfConstruction>1e20</bldg:yearOfConstruction>`+
			groundSurface(square)))

	res := parse(t, p, doc)
	if !res.Success || len(res.Buildings) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	b := res.Buildings[0]
	if b.Attributes.Floors < 1 {
		t.Fatalf("floors=%d must be positive", b.Attributes.Floors)
	}
	if b.Attributes.YearBuilt < 1 || b.Attributes.YearBuilt > 9999 {
		t.Fatalf("yearBuilt=%d out of range", b.Attributes.YearBuilt)
	}
	for _, f := range []string{attrFloors, attrYearBuilt} {
		if !slices.Contains(b.Defaulted, f) {
			t.Fatalf("%s not marked defaulted: %v", f, b.Defaulted)
		}
	}
}

func TestParse_EnvelopeHeight(t *testing.T) {
	p := newTestParser(t)
	doc := cityModel(crs.MGIGKEast, building("B1",
		`<gml:boundedBy><gml:Envelope><gml:lowerCorner>1000 340000 0</gml:lowerCorner>`+
			`<gml:upperCorner>1020 340015 9.2</gml:upperCorner></gml:Envelope></gml:boundedBy>`+
			groundSurface(square)))

	res := parse(t, p, doc)
	if len(res.Buildings) != 1 {
		t.Fatalf("buildings=%d", len(res.Buildings))
	}
	a := res.Buildings[0].Attributes
	if a.Height != 9.2 || a.Floors != 4 {
		t.Fatalf("height=%v floors=%d want 9.2/4", a.Height, a.Floors)
	}
	if a.GroundLevel != 0 {
		t.Fatalf("groundLevel=%v want envelope lower z 0", a.GroundLevel)
	}
	got := res.Buildings[0].Defaulted
	want := []string{attrFloors, attrYearBuilt, attrBuildingType}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("defaulted=%v want %v", got, want)
	}
}

func TestParse_GracefulDegradation(t *testing.T) {
	p := newTestParser(t)
	doc := cityModel(crs.MGIGKEast,
		building("GOOD", groundSurface(square)),
		building("BARE", `<bldg:measuredHeight>7</bldg:measuredHeight>`))

	res := parse(t, p, doc)
	if !res.Success || len(res.Buildings) != 1 || res.Buildings[0].ID != "GOOD" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Skipped != 1 {
		t.Fatalf("skipped=%d want 1", res.Skipped)
	}
}

func TestParse_UnrecognizedGeometryOnly(t *testing.T) {
	p := newTestParser(t)
	doc := cityModel(crs.MGIGKEast, building("X",
		`<bldg:lod3MultiCurve><gml:MultiCurve/></bldg:lod3MultiCurve>`))

	res := parse(t, p, doc)
	if !res.Success || len(res.Buildings) != 0 || res.Skipped != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Bounds != nil {
		t.Fatalf("bounds must stay unset, got %+v", *res.Bounds)
	}
	out, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), `"buildings":[]`) {
		t.Fatalf("empty list should serialize as []: %s", out)
	}
}

func TestParse_DocumentFailures(t *testing.T) {
	p := newTestParser(t)
	cases := map[string]string{
		"no container": `<root><child>text</child></root>`,
		"feature collection without buildings": `<wfs:FeatureCollection xmlns:wfs="http://www.opengis.net/wfs/2.0" ` + namespaces + `>` +
			`<wfs:member><app:Road xmlns:app="urn:app" gml:id="R1"><app:name>Ring</app:name></app:Road></wfs:member>` +
			`</wfs:FeatureCollection>`,
		"empty feature collection": `<wfs:FeatureCollection xmlns:wfs="http://www.opengis.net/wfs/2.0"/>`,
		"not xml":                  `this is not xml`,
		"truncated":                `<core:CityModel ` + namespaces + `><core:cityObjectMember>`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			res := parse(t, p, doc)
			if res.Success || res.Error == "" || len(res.Buildings) != 0 {
				t.Fatalf("want failure with message, got %+v", res)
			}
		})
	}
	res := parse(t, p, `<root/>`)
	if !strings.Contains(res.Error, ErrNoContainer.Error()) {
		t.Fatalf("error=%q", res.Error)
	}
}

func TestParse_OpenRingAutoClosure(t *testing.T) {
	p := newTestParser(t)
	open := "1000 340000 171 1020 340000 171 1020 340015 171 1000 340015 171"
	res := parse(t, p, cityModel(crs.MGIGKEast, building("B", groundSurface(open))))

	if len(res.Buildings) != 1 {
		t.Fatalf("buildings=%d", len(res.Buildings))
	}
	r := res.Buildings[0].Geometry[0]
	if len(r) != 5 {
		t.Fatalf("ring len=%d want original 4 + 1", len(r))
	}
	if r[0] != r[4] {
		t.Fatalf("appended vertex %v != first %v", r[4], r[0])
	}
}

func TestParse_DegenerateRingDiscarded(t *testing.T) {
	p := newTestParser(t)
	line := "1000 340000 171 1020 340000 171 1000 340000 171"
	res := parse(t, p, cityModel(crs.MGIGKEast,
		building("LINE", groundSurface(line)),
		building("EMPTY", groundSurface(""))))
	if len(res.Buildings) != 0 || res.Skipped != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestParse_GroundSurfacePrecedence(t *testing.T) {
	p := newTestParser(t)
	wall := "1000 340000 171 1020 340000 171 1020 340000 190 1000 340000 190 1000 340000 171"
	doc := cityModel(crs.MGIGKEast, building("B",
		lod2Solid(square, wall)+groundSurface(square)))

	res := parse(t, p, doc)
	if got := len(res.Buildings[0].Geometry); got != 1 {
		t.Fatalf("rings=%d want only the ground surface", got)
	}
}

func TestParse_SolidAndMultiSurfaceFallback(t *testing.T) {
	p := newTestParser(t)
	roof := "1000 340000 190 1020 340000 190 1020 340015 190 1000 340015 190 1000 340000 190"
	multi := `<bldg:lod1MultiSurface><gml:MultiSurface><gml:surfaceMember>` + polygon(square) +
		`</gml:surfaceMember></gml:MultiSurface></bldg:lod1MultiSurface>`

	res := parse(t, p, cityModel(crs.MGIGKEast,
		building("SOLID", lod2Solid(square, roof)),
		building("MULTI", multi)))

	if len(res.Buildings) != 2 {
		t.Fatalf("buildings=%d", len(res.Buildings))
	}
	if got := len(res.Buildings[0].Geometry); got != 2 {
		t.Fatalf("solid rings=%d want one per surface member", got)
	}
	if got := len(res.Buildings[1].Geometry); got != 1 {
		t.Fatalf("multisurface rings=%d", got)
	}
	assertClosed(t, res)
}

func TestParse_BuildingPartsAreSiblingRings(t *testing.T) {
	p := newTestParser(t)
	part := func(id string) string {
		return `<bldg:consistsOfBuildingPart><bldg:BuildingPart gml:id="` + id + `">` +
			groundSurface(square) + `</bldg:BuildingPart></bldg:consistsOfBuildingPart>`
	}
	res := parse(t, p, cityModel(crs.MGIGKEast,
		building("B", groundSurface(square)+part("P1")+part("P2")),
		building("PARTS_ONLY", part("P3"))))

	if len(res.Buildings) != 2 {
		t.Fatalf("buildings=%d", len(res.Buildings))
	}
	if got := len(res.Buildings[0].Geometry); got != 3 {
		t.Fatalf("rings=%d want own ring + one per part", got)
	}
	if got := len(res.Buildings[1].Geometry); got != 1 {
		t.Fatalf("parts-only rings=%d want 1", got)
	}
}

func TestParse_CoordinateEncodings(t *testing.T) {
	p := newTestParser(t)
	ring := func(inner string) string {
		return `<bldg:lod0FootPrint><gml:MultiSurface><gml:surfaceMember><gml:Polygon><gml:exterior><gml:LinearRing>` +
			inner + `</gml:LinearRing></gml:exterior></gml:Polygon></gml:surfaceMember></gml:MultiSurface></bldg:lod0FootPrint>`
	}
	doc := cityModel("EPSG:4326",
		building("POS", ring(`<gml:pos>16.1 48.1 5</gml:pos><gml:pos>16.2 48.1 5</gml:pos><gml:pos>16.2 48.2 5</gml:pos>`)),
		building("DIM2", ring(`<gml:posList srsDimension="2">16.1 48.1 16.2 48.1 16.2 48.2 16.1 48.1</gml:posList>`)),
		building("GML2", ring(`<gml:coordinates>16.1,48.1,5 16.2,48.1,5 16.2,48.2,5 16.1,48.1,5</gml:coordinates>`)),
		building("BADTOKEN", ring(`<gml:posList>16.1 48.1 0 abc 48.1 0 16.2 48.2 0</gml:posList>`)),
	)
	res := parse(t, p, doc)
	if len(res.Buildings) != 3 || res.Skipped != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	want := Vertex{16.1, 48.1, 5}
	for _, b := range res.Buildings {
		r := b.Geometry[0]
		if len(r) != 4 {
			t.Fatalf("%s: ring len=%d", b.ID, len(r))
		}
		w := want
		if b.ID == "DIM2" {
			w[2] = 0
		}
		if r[0] != w {
			t.Fatalf("%s: first vertex %v want %v", b.ID, r[0], w)
		}
	}
	if b := res.Bounds; b == nil || b.West != 16.1 || b.East != 16.2 || b.South != 48.1 || b.North != 48.2 {
		t.Fatalf("bounds=%+v", res.Bounds)
	}
}

func TestParse_NamespaceInsensitive(t *testing.T) {
	p := newTestParser(t)
	prefixed := cityModel(crs.MGIGKEast, building("B1",
		`<bldg:measuredHeight>12.5</bldg:measuredHeight>`+groundSurface(square)))

	// same document with default namespaces instead of prefixes
	bare := strings.NewReplacer("core:", "", "bldg:", "", "gml:", "", "gen:", "").Replace(prefixed)
	bare = strings.Replace(bare, "<CityModel ", `<CityModel xmlns="http://www.opengis.net/citygml/2.0" `, 1)
	bare = strings.ReplaceAll(bare, `xmlns:`, `xmlns:x`)

	a, b := parse(t, p, prefixed), parse(t, p, bare)
	if !a.Success || !b.Success {
		t.Fatalf("parse failed: %+v / %+v", a, b)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("prefix changed the result:\n%+v\n%+v", a, b)
	}
}

func loadFixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/vienna_lod2.gml")
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestParse_Fixture(t *testing.T) {
	p := newTestParser(t)
	res := p.Parse(context.Background(), loadFixture(t))

	if !res.Success || len(res.Buildings) != 2 || res.Skipped != 1 {
		t.Fatalf("unexpected result: success=%v buildings=%d skipped=%d err=%q",
			res.Success, len(res.Buildings), res.Skipped, res.Error)
	}
	assertClosed(t, res)

	b1 := res.Buildings[0]
	want1 := Attributes{
		Height: 12.5, Floors: 4, YearBuilt: 1958, BuildingType: "MULTI_RES",
		GroundLevel: 171.2, RoofType: "GABLE", Standard: "MULTI_RES_III",
	}
	if b1.Attributes != want1 {
		t.Fatalf("BLDG_0001 attributes=%+v want %+v", b1.Attributes, want1)
	}
	if len(b1.Defaulted) != 0 {
		t.Fatalf("BLDG_0001 defaulted=%v", b1.Defaulted)
	}
	if len(b1.Geometry) != 1 {
		t.Fatalf("BLDG_0001 rings=%d (roof surfaces must not count)", len(b1.Geometry))
	}

	b2 := res.Buildings[1]
	if len(b2.Geometry) != 2 {
		t.Fatalf("BLDG_0002 rings=%d want one per part", len(b2.Geometry))
	}
	if math.Abs(b2.Attributes.Height-9.2) > 1e-9 || b2.Attributes.Floors != 4 {
		t.Fatalf("BLDG_0002 height=%v floors=%d", b2.Attributes.Height, b2.Attributes.Floors)
	}
	if b2.Attributes.BuildingType != "OFFICE" || b2.Attributes.GroundLevel != 170 {
		t.Fatalf("BLDG_0002 attributes=%+v", b2.Attributes)
	}
	if !res.Bounds.Contains(*b1.Bounds) || !res.Bounds.Contains(*b2.Bounds) {
		t.Fatal("document bounds must cover each building")
	}
}

func TestParse_Idempotent(t *testing.T) {
	p := newTestParser(t)
	data := loadFixture(t)
	a := p.Parse(context.Background(), data)
	b := p.Parse(context.Background(), data)

	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if string(ja) != string(jb) {
		t.Fatalf("results differ:\n%s\n%s", ja, jb)
	}
}

func TestParse_BoundsMonotonic(t *testing.T) {
	p := newTestParser(t)
	shifted := func(dx, dy float64) string {
		x, y := 1000+dx, 340000+dy
		return strings.Join([]string{
			ftoa(x), ftoa(y), "0", ftoa(x + 10), ftoa(y), "0",
			ftoa(x + 10), ftoa(y + 10), "0", ftoa(x), ftoa(y + 10), "0",
		}, " ")
	}
	members := []string{
		building("A", groundSurface(shifted(0, 0))),
		building("B", groundSurface(shifted(500, -300))),
		building("C", groundSurface(shifted(-800, 900))),
		building("D", groundSurface(shifted(100, 100))),
	}
	var prev *Bounds
	for n := 1; n <= len(members); n++ {
		res := parse(t, p, cityModel(crs.MGIGKEast, members[:n]...))
		if res.Bounds == nil {
			t.Fatalf("n=%d: bounds unset", n)
		}
		if prev != nil && !res.Bounds.Contains(*prev) {
			t.Fatalf("n=%d: bounds %+v shrank from %+v", n, *res.Bounds, *prev)
		}
		prev = res.Bounds
	}
}

func ftoa(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}

func TestParse_HeightAlwaysPositive(t *testing.T) {
	p := newTestParser(t)
	cases := []string{
		`<bldg:measuredHeight>NaN</bldg:measuredHeight>`,
		`<bldg:measuredHeight>-4</bldg:measuredHeight>`,
		`<bldg:measuredHeight>tall</bldg:measuredHeight>`,
		`<bldg:measuredHeight>Inf</bldg:measuredHeight>`,
		``,
	}
	for _, body := range cases {
		res := parse(t, p, cityModel(crs.MGIGKEast, building("B", body+groundSurface(square))))
		h := res.Buildings[0].Attributes.Height
		if math.IsNaN(h) || h <= 0 || h != p.Table().Defaults.Height {
			t.Fatalf("body %q: height=%v", body, h)
		}
		if res.Buildings[0].Attributes.Floors < 1 {
			t.Fatalf("floors < 1")
		}
	}
}

func TestParse_DuplicateIDsKeepFirst(t *testing.T) {
	p := newTestParser(t)
	res := parse(t, p, cityModel(crs.MGIGKEast,
		building("DUP", `<bldg:measuredHeight>5</bldg:measuredHeight>`+groundSurface(square)),
		building("DUP", `<bldg:measuredHeight>50</bldg:measuredHeight>`+groundSurface(square)),
		`<core:cityObjectMember><bldg:Building>`+groundSurface(square)+`</bldg:Building></core:cityObjectMember>`))

	if len(res.Buildings) != 1 || res.Buildings[0].Attributes.Height != 5 || res.Skipped != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestParse_ReferenceSystemResolution(t *testing.T) {
	p := newTestParser(t)
	body := building("B", groundSurface("16.1 48.1 0 16.2 48.1 0 16.2 48.2 0"))

	res := parse(t, p, `<core:CityModel `+namespaces+`>`+body+`</core:CityModel>`)
	if res.SourceReferenceSystem != crs.WGS84Geographic {
		t.Fatalf("default srs=%q", res.SourceReferenceSystem)
	}
	if v := res.Buildings[0].Geometry[0][0]; v != (Vertex{16.1, 48.1, 0}) {
		t.Fatalf("identity transform changed vertex: %v", v)
	}

	res = parse(t, p, `<core:CityModel srsName="urn:ogc:def:crs:EPSG::31256" `+namespaces+`>`+
		building("B", groundSurface(square))+`</core:CityModel>`)
	if res.SourceReferenceSystem != crs.MGIGKEast {
		t.Fatalf("root srs=%q", res.SourceReferenceSystem)
	}
}

func TestParse_ReprojectionFailureKeepsSourceVertices(t *testing.T) {
	p := newTestParser(t)
	res := parse(t, p, cityModel("EPSG:99999", building("B", groundSurface(square))))

	if !res.Success || len(res.Buildings) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if v := res.Buildings[0].Geometry[0][0]; v != (Vertex{1000, 340000, 171}) {
		t.Fatalf("vertex should keep source coordinates, got %v", v)
	}
	// projected meters are not geographic, so nothing narrows
	if res.Bounds != nil {
		t.Fatalf("bounds=%+v want unset", *res.Bounds)
	}
}

func TestParse_FeatureCollectionContainer(t *testing.T) {
	p := newTestParser(t)
	doc := `<wfs:FeatureCollection xmlns:wfs="http://www.opengis.net/wfs/2.0" ` + namespaces + `>` +
		`<wfs:member><bldg:Building gml:id="W1">` + groundSurface(square) + `</bldg:Building></wfs:member>` +
		`</wfs:FeatureCollection>`
	res := parse(t, p, doc)
	if !res.Success || len(res.Buildings) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	// without an envelope the configured default applies
	if res.SourceReferenceSystem != crs.WGS84Geographic {
		t.Fatalf("srs=%q", res.SourceReferenceSystem)
	}

	nested := `<wfs:FeatureCollection xmlns:wfs="http://www.opengis.net/wfs/2.0" ` + namespaces + `>` +
		`<wfs:member><core:CityModel><core:cityObjectMember><bldg:Building gml:id="W2">` + groundSurface(square) +
		`</bldg:Building></core:cityObjectMember></core:CityModel></wfs:member></wfs:FeatureCollection>`
	res = parse(t, p, nested)
	if !res.Success || len(res.Buildings) != 1 || res.Buildings[0].ID != "W2" {
		t.Fatalf("nested CityModel: %+v", res)
	}
}

func TestParse_CancelledContext(t *testing.T) {
	p := newTestParser(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := p.Parse(ctx, []byte(cityModel(crs.MGIGKEast, building("B", groundSurface(square)))))
	if res.Success || !strings.Contains(res.Error, "cancel") {
		t.Fatalf("want cancellation failure, got %+v", res)
	}
}
