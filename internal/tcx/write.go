package tcx

import (
	"bufio"
	"encoding/xml"
	"io"
	"regexp"
	"strings"
)

// WriteOptions controls serialization.
type WriteOptions struct {
	// Indent re-indents the whole tree with the given unit when non-empty,
	// discarding whitespace-only text between markup. Text that is the only
	// content of an element is kept. When empty every node is written
	// verbatim.
	Indent string
}

var (
	textEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\r", "&#xD;",
	)
	attrEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"\t", "&#x9;",
		"\n", "&#xA;",
		"\r", "&#xD;",
	)

	// Output is always UTF-8 whatever the source declared.
	declEncoding = regexp.MustCompile(`encoding\s*=\s*("[^"]*"|'[^']*')`)
)

// Write serializes doc to w.
func Write(w io.Writer, doc *Document, opts WriteOptions) error {
	bw := bufio.NewWriter(w)
	s := &serializer{w: bw, indent: opts.Indent}

	first := true
	for _, c := range doc.Root.Children {
		if s.skip(c, true) {
			continue
		}
		if s.indent != "" && !first {
			s.w.WriteByte('\n')
		}
		s.node(c, 0)
		first = false
	}
	if s.indent != "" {
		s.w.WriteByte('\n')
	}

	return bw.Flush()
}

type serializer struct {
	w      *bufio.Writer
	indent string
}

// skip reports whether n is layout whitespace that re-indentation replaces.
// Whitespace is only layout when it sits among markup siblings.
func (s *serializer) skip(n *Node, amongMarkup bool) bool {
	return s.indent != "" && amongMarkup && n.Type == TextNode && strings.TrimSpace(n.Data) == ""
}

func textOnly(nodes []*Node) bool {
	for _, n := range nodes {
		if n.Type != TextNode {
			return false
		}
	}
	return true
}

func (s *serializer) node(n *Node, depth int) {
	switch n.Type {
	case ElementNode:
		s.element(n, depth)
	case TextNode:
		textEscaper.WriteString(s.w, n.Data)
	case CommentNode:
		s.w.WriteString("<!--")
		s.w.WriteString(n.Data)
		s.w.WriteString("-->")
	case ProcInstNode:
		inst := n.Data
		if n.Name.Local == "xml" {
			inst = declEncoding.ReplaceAllString(inst, `encoding="UTF-8"`)
		}
		s.w.WriteString("<?")
		s.w.WriteString(n.Name.Local)
		if inst != "" {
			s.w.WriteByte(' ')
			s.w.WriteString(inst)
		}
		s.w.WriteString("?>")
	case DirectiveNode:
		s.w.WriteString("<!")
		s.w.WriteString(n.Data)
		s.w.WriteByte('>')
	}
}

func (s *serializer) element(n *Node, depth int) {
	name := qualifiedName(n.Name)

	s.w.WriteByte('<')
	s.w.WriteString(name)
	for _, a := range n.Attr {
		s.attr(a)
	}

	amongMarkup := !textOnly(n.Children)
	children := make([]*Node, 0, len(n.Children))
	inline := true
	for _, c := range n.Children {
		if s.skip(c, amongMarkup) {
			continue
		}
		if c.Type != TextNode {
			inline = false
		}
		children = append(children, c)
	}

	if len(children) == 0 {
		s.w.WriteString("/>")
		return
	}
	s.w.WriteByte('>')

	if s.indent == "" || inline {
		for _, c := range children {
			s.node(c, depth+1)
		}
	} else {
		for _, c := range children {
			s.newline(depth + 1)
			s.node(c, depth+1)
		}
		s.newline(depth)
	}

	s.w.WriteString("</")
	s.w.WriteString(name)
	s.w.WriteByte('>')
}

func (s *serializer) attr(a xml.Attr) {
	s.w.WriteByte(' ')
	s.w.WriteString(qualifiedName(a.Name))
	s.w.WriteString(`="`)
	attrEscaper.WriteString(s.w, a.Value)
	s.w.WriteByte('"')
}

func (s *serializer) newline(depth int) {
	s.w.WriteByte('\n')
	for i := 0; i < depth; i++ {
		s.w.WriteString(s.indent)
	}
}
