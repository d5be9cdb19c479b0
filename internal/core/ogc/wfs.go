// Package ogc builds WFS requests for fetching CityGML buildings.
package ogc

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/citygml-footprints/internal/core/model"
)

const (
	DefaultVersion = "2.0.0"
	// CityGML 2.0 output as advertised by deegree and GeoServer app-schema
	DefaultOutputFormat = "application/gml+xml; version=3.1"
)

// OWSEndpoint accepts a server base or a full ows/wfs URL.
func OWSEndpoint(base string) string {
	b := strings.TrimRight(strings.TrimSpace(base), "/")
	lower := strings.ToLower(b)
	if strings.HasSuffix(lower, "/ows") || strings.HasSuffix(lower, "/wfs") || strings.Contains(b, "?") {
		return b
	}
	return b + "/ows"
}

func BuildGetFeatureParams(q model.FeatureQuery) url.Values {
	version := strings.TrimSpace(q.Version)
	if version == "" {
		version = DefaultVersion
	}
	v2 := strings.HasPrefix(version, "2.")

	params := url.Values{}
	params.Set("service", "WFS")
	params.Set("version", version)
	params.Set("request", "GetFeature")
	if v2 {
		params.Set("typeNames", q.TypeName)
	} else {
		params.Set("typeName", q.TypeName)
	}
	if q.Count > 0 {
		if v2 {
			params.Set("count", strconv.Itoa(q.Count))
		} else {
			params.Set("maxFeatures", strconv.Itoa(q.Count))
		}
	}
	if q.SRSName != "" {
		params.Set("srsName", q.SRSName)
	}
	// cql_filter and bbox are mutually exclusive on GeoServer
	if q.Filter != "" {
		params.Set("cql_filter", q.Filter)
	} else if q.BBox != nil {
		params.Set("bbox", q.BBox.String())
	}
	of := strings.TrimSpace(q.OutputFormat)
	if of == "" {
		of = DefaultOutputFormat
	}
	params.Set("outputFormat", of)
	return params
}
