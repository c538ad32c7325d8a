// Package xmlrec parses XML uploads into raw records.
//
// The assumed shape, matching the original tool: the document root's
// immediate children are records, and each record's immediate children are
// fields (field name = child tag, field value = the child's character data).
//
// Known limitation: deeper nesting is not recursively flattened. A field
// element that itself contains markup contributes only the character data
// directly inside it; nested elements are dropped.
package xmlrec

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"lognorm/internal/record"
)

type node struct {
	XMLName  xml.Name
	Children []node `xml:",any"`
	Text     string `xml:",chardata"`
}

// Parse reads all of r and returns one record per child of the root element.
func Parse(ctx context.Context, r io.Reader) ([]record.Raw, error) {
	var root node
	if err := xml.NewDecoder(r).Decode(&root); err != nil {
		return nil, fmt.Errorf("parse xml: %w", err)
	}

	out := make([]record.Raw, 0, len(root.Children))
	for _, elem := range root.Children {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec := make(record.Raw, len(elem.Children))
		for _, field := range elem.Children {
			rec[field.XMLName.Local] = strings.TrimSpace(field.Text)
		}
		out = append(out, rec)
	}
	return out, nil
}
