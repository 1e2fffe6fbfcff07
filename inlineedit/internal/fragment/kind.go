package fragment

import (
	"fmt"

	"golang.org/x/net/html/atom"
)

// Kind is the structural type of a fragment, fixed at discovery time from
// the element that contains it.
type Kind int

const (
	Paragraph Kind = iota + 1
	ListItem
	Reply
	TableCaption
	TableHeader
	TableCell
)

var kindNames = map[Kind]string{
	Paragraph:    "paragraph",
	ListItem:     "list-item",
	Reply:        "reply",
	TableCaption: "table-caption",
	TableHeader:  "table-header",
	TableCell:    "table-cell",
}

var kindTags = map[atom.Atom]Kind{
	atom.P:       Paragraph,
	atom.Li:      ListItem,
	atom.Dd:      Reply,
	atom.Caption: TableCaption,
	atom.Th:      TableHeader,
	atom.Td:      TableCell,
}

// DefaultSelectors are the element names scanned for fragments.
var DefaultSelectors = []string{"p", "li", "dd", "caption", "th", "td"}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("fragment: invalid kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	for kind, name := range kindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("fragment: unknown kind %q", b)
}

// KindForTag maps an element name to its Kind.
func KindForTag(tag string) (Kind, bool) {
	k, ok := kindTags[atom.Lookup([]byte(tag))]
	return k, ok
}

// KindsForSelectors converts selector element names into kinds, rejecting
// anything that is not one of the editable element types.
func KindsForSelectors(selectors []string) ([]Kind, error) {
	kinds := make([]Kind, 0, len(selectors))
	for _, s := range selectors {
		k, ok := KindForTag(s)
		if !ok {
			return nil, fmt.Errorf("fragment: unsupported selector %q", s)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}
