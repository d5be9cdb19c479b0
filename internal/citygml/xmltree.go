package citygml

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// Node is a namespace-agnostic view of one XML element. Children are kept
// both in document order and grouped by local name, so a lookup always
// yields a sequence whether the source held one occurrence or many.
type Node struct {
	Name   string // local name, prefix stripped
	Prefix string
	Text   string

	attrs  map[string]string
	order  []*Node
	byName map[string][]*Node
}

// ParseTree reads an XML document into a Node tree rooted at the document element.
func ParseTree(data []byte) (*Node, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("parse xml: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("parse xml: document has no root element")
	}
	return fromElement(root), nil
}

func fromElement(el *etree.Element) *Node {
	n := &Node{
		Name:   el.Tag,
		Prefix: el.Space,
		attrs:  make(map[string]string, len(el.Attr)),
	}
	for _, a := range el.Attr {
		if a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns") {
			continue
		}
		// unprefixed spelling wins when both are present
		if _, seen := n.attrs[a.Key]; seen && a.Space != "" {
			continue
		}
		n.attrs[a.Key] = a.Value
	}

	kids := el.ChildElements()
	if len(kids) == 0 {
		n.Text = strings.TrimSpace(el.Text())
		return n
	}
	n.byName = make(map[string][]*Node, len(kids))
	for _, c := range kids {
		cn := fromElement(c)
		n.order = append(n.order, cn)
		n.byName[cn.Name] = append(n.byName[cn.Name], cn)
	}
	return n
}

// Attr returns the attribute with the given local name ("id" matches gml:id).
func (n *Node) Attr(name string) string {
	if n == nil {
		return ""
	}
	return n.attrs[name]
}

// Children returns the direct children with the given local name.
func (n *Node) Children(name string) []*Node {
	if n == nil {
		return nil
	}
	return n.byName[name]
}

// Child returns the first direct child with the given local name, or nil.
func (n *Node) Child(name string) *Node {
	if c := n.Children(name); len(c) > 0 {
		return c[0]
	}
	return nil
}

// Path follows a chain of local names through first matches.
func (n *Node) Path(names ...string) *Node {
	cur := n
	for _, name := range names {
		cur = cur.Child(name)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Elements returns all direct children in document order.
func (n *Node) Elements() []*Node {
	if n == nil {
		return nil
	}
	return n.order
}

// Find collects descendants named name, depth first. The search neither
// descends into a match nor into any element named in stop.
func (n *Node) Find(name string, stop ...string) []*Node {
	var out []*Node
	var walk func(*Node)
	walk = func(cur *Node) {
		for _, c := range cur.order {
			if c.Name == name {
				out = append(out, c)
				continue
			}
			if contains(stop, c.Name) {
				continue
			}
			walk(c)
		}
	}
	if n != nil {
		walk(n)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
