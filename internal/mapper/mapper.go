// Package mapper places building footprints on the H3 grid.
package mapper

import "github.com/mohammed-shakir/citygml-footprints/internal/citygml"

type Interface interface {
	CellForFootprint(rings []citygml.Ring, res int) (string, error)
	ToParent(cell string, parentRes int) (string, error)
}
