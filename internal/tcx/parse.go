package tcx

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

var (
	// ErrMismatchedTag is returned when an end tag does not close the open element.
	ErrMismatchedTag = errors.New("mismatched end tag")
	// ErrUnclosedElement is returned when the input ends inside an element.
	ErrUnclosedElement = errors.New("unclosed element at end of input")
	// ErrNoRootElement is returned for input without any element.
	ErrNoRootElement = errors.New("document has no root element")
)

const byteOrderMark = "\ufeff"

// Parse reads an XML document into a tree. Whitespace, comments and
// namespace prefixes are kept as they appear so the tree can be written back
// without reshuffling anything it did not touch.
func Parse(r io.Reader) (*Document, error) {
	doc := NewDocument()
	cur := doc.Root

	d := xml.NewDecoder(r)
	d.CharsetReader = charset.NewReaderLabel

	for {
		tok, err := d.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error decoding token: %w", err)
		}

		switch ty := tok.(type) {
		case xml.StartElement:
			el := NewElement(ty.Name)
			if len(ty.Attr) > 0 {
				el.Attr = make([]xml.Attr, len(ty.Attr))
				copy(el.Attr, ty.Attr)
			}
			cur.AppendChild(el)
			cur = el
		case xml.EndElement:
			if cur.Type != ElementNode || cur.Name != ty.Name {
				return nil, fmt.Errorf("%w: </%s> at offset %d", ErrMismatchedTag, qualifiedName(ty.Name), d.InputOffset())
			}
			cur = cur.Parent
		case xml.CharData:
			text := string(ty)
			if cur == doc.Root && len(cur.Children) == 0 {
				// A byte order mark is encoding metadata, not content.
				if text = strings.TrimPrefix(text, byteOrderMark); text == "" {
					continue
				}
			}
			cur.AppendChild(&Node{Type: TextNode, Data: text})
		case xml.Comment:
			cur.AppendChild(&Node{Type: CommentNode, Data: string(ty)})
		case xml.ProcInst:
			cur.AppendChild(&Node{Type: ProcInstNode, Name: xml.Name{Local: ty.Target}, Data: string(ty.Inst)})
		case xml.Directive:
			cur.AppendChild(&Node{Type: DirectiveNode, Data: string(ty)})
		}
	}

	if cur != doc.Root {
		return nil, fmt.Errorf("%w: <%s>", ErrUnclosedElement, qualifiedName(cur.Name))
	}
	if doc.RootElement() == nil {
		return nil, ErrNoRootElement
	}

	return doc, nil
}

func qualifiedName(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	return name.Space + ":" + name.Local
}
