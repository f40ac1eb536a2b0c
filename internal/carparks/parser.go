package carparks

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// RawRecord holds the string fields of one upstream record keyed by feed name.
type RawRecord map[string]string

// recordTag is the element name of a single car park inside either container.
const recordTag = "Car_park_info"

// containerKind identifies which known root element wraps the records.
type containerKind int

const (
	containerUnknown containerKind = iota
	containerCarPark
	containerCarParks // legacy feeds
)

func (k containerKind) String() string {
	switch k {
	case containerCarPark:
		return "CarPark"
	case containerCarParks:
		return "CarParks"
	default:
		return "unknown"
	}
}

var knownContainers = map[string]containerKind{
	"CarPark":  containerCarPark,
	"CarParks": containerCarParks,
}

// element is a minimal DOM node; only what the feed layout needs.
type element struct {
	name     string
	attrs    []xml.Attr
	text     strings.Builder
	children []*element
}

// recordSet is either one bare record or a list of them.
type recordSet struct {
	single *element
	list   []*element
}

func newRecordSet(elems []*element) recordSet {
	if len(elems) == 1 {
		return recordSet{single: elems[0]}
	}
	return recordSet{list: elems}
}

// normalize returns the records as an ordered slice regardless of variant.
func (rs recordSet) normalize() []*element {
	if rs.single != nil {
		return []*element{rs.single}
	}
	return rs.list
}

// feedLayout is the recognised shape of one feed document.
type feedLayout struct {
	container containerKind
	records   recordSet
}

// ParseFeed decodes an upstream XML document into raw records in document
// order. Records may carry their fields as attributes, as leaf child
// elements, or as a mix of both.
func ParseFeed(data []byte) ([]RawRecord, error) {
	root, err := decodeDocument(data)
	if err != nil {
		return nil, &ParseError{Kind: ParseMalformed, Err: err}
	}

	layout, err := classify(root)
	if err != nil {
		return nil, &ParseError{Kind: ParseUnknownSchema, Err: err}
	}

	elems := layout.records.normalize()
	out := make([]RawRecord, 0, len(elems))
	for _, el := range elems {
		out = append(out, el.fields())
	}
	return out, nil
}

func decodeDocument(data []byte) (*element, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel

	var (
		root  *element
		stack []*element
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &element{name: t.Name.Local, attrs: t.Attr}
			if len(stack) == 0 {
				if root != nil {
					return nil, errors.New("document has more than one root element")
				}
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, el)
			}
			stack = append(stack, el)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			} else if strings.Trim(string(t), " \t\r\n\ufeff") != "" {
				return nil, errors.New("text outside the root element")
			}
		}
	}

	if root == nil {
		return nil, errors.New("document has no root element")
	}
	return root, nil
}

func classify(root *element) (feedLayout, error) {
	kind, ok := knownContainers[root.name]
	if !ok {
		return feedLayout{}, fmt.Errorf("root element <%s> is not a known container", root.name)
	}

	var elems []*element
	for _, c := range root.children {
		if c.name == recordTag {
			elems = append(elems, c)
		}
	}
	if len(elems) == 0 {
		return feedLayout{}, fmt.Errorf("<%s> holds no <%s> records", kind, recordTag)
	}

	return feedLayout{container: kind, records: newRecordSet(elems)}, nil
}

// fields flattens an element into a RawRecord. Attributes take precedence
// over child elements of the same name; nested children are ignored.
func (e *element) fields() RawRecord {
	rec := make(RawRecord, len(e.attrs)+len(e.children))
	for _, c := range e.children {
		if len(c.children) > 0 {
			continue
		}
		if _, seen := rec[c.name]; seen {
			continue
		}
		rec[c.name] = strings.TrimSpace(c.text.String())
	}
	for _, a := range e.attrs {
		rec[a.Name.Local] = strings.TrimSpace(a.Value)
	}
	return rec
}
