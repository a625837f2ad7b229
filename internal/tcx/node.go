// Package tcx holds a mutable, order-preserving XML tree for TCX course files
// along with the loader and serializer that move it to and from disk.
package tcx

import (
	"encoding/xml"
	"errors"
	"strings"
)

// NodeType identifies what a Node holds.
type NodeType int

const (
	DocumentNode NodeType = iota
	ElementNode
	TextNode
	CommentNode
	ProcInstNode
	DirectiveNode
)

// ErrNotChild is returned when a reference node is not a direct child of the receiver.
var ErrNotChild = errors.New("reference node is not a child of this node")

// Node is a single entry in the document tree.
//
// Name.Space holds the raw namespace prefix as written in the source, not a
// resolved namespace URL. For ProcInstNode, Name.Local is the target and Data
// the instruction body.
type Node struct {
	Type     NodeType
	Name     xml.Name
	Attr     []xml.Attr
	Data     string
	Parent   *Node
	Children []*Node
}

// Document is a parsed file. Root is a DocumentNode whose children are the
// top-level prolog nodes and the root element.
type Document struct {
	Root *Node
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{Root: &Node{Type: DocumentNode}}
}

// NewElement creates a detached element node.
func NewElement(name xml.Name) *Node {
	return &Node{Type: ElementNode, Name: name}
}

// NewTextElement creates a detached element holding a single text child.
func NewTextElement(name xml.Name, text string) *Node {
	el := NewElement(name)
	el.AppendChild(&Node{Type: TextNode, Data: text})
	return el
}

// AppendChild adds c as the last child of n.
func (n *Node) AppendChild(c *Node) {
	c.Parent = n
	n.Children = append(n.Children, c)
}

// InsertBefore places c immediately before ref among n's children.
func (n *Node) InsertBefore(c, ref *Node) error {
	for i, child := range n.Children {
		if child != ref {
			continue
		}
		c.Parent = n
		n.Children = append(n.Children, nil)
		copy(n.Children[i+1:], n.Children[i:])
		n.Children[i] = c
		return nil
	}
	return ErrNotChild
}

// Child returns the first direct child element with the given local name.
func (n *Node) Child(local string) *Node {
	for _, c := range n.Children {
		if c.Type == ElementNode && c.Name.Local == local {
			return c
		}
	}
	return nil
}

// ChildPath follows a chain of direct child elements, returning nil as soon
// as one is missing.
func (n *Node) ChildPath(locals ...string) *Node {
	cur := n
	for _, local := range locals {
		if cur = cur.Child(local); cur == nil {
			return nil
		}
	}
	return cur
}

// Text concatenates the direct text children of n.
func (n *Node) Text() string {
	var b strings.Builder
	for _, c := range n.Children {
		if c.Type == TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

// Find returns every descendant element with the given local name in
// document order. n itself is not included.
func (n *Node) Find(local string) []*Node {
	var found []*Node
	var walk func(*Node)
	walk = func(cur *Node) {
		for _, c := range cur.Children {
			if c.Type != ElementNode {
				continue
			}
			if c.Name.Local == local {
				found = append(found, c)
			}
			walk(c)
		}
	}
	walk(n)
	return found
}

// RootElement returns the document's top-level element, or nil.
func (d *Document) RootElement() *Node {
	for _, c := range d.Root.Children {
		if c.Type == ElementNode {
			return c
		}
	}
	return nil
}

// Course returns the first Course element in document order, or nil.
func (d *Document) Course() *Node {
	courses := d.Root.Find("Course")
	if len(courses) == 0 {
		return nil
	}
	return courses[0]
}
