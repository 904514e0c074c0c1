// Package listview is the list query engine: it turns a record type's column
// metadata and the paging, sorting and selection state of one list view into
// remote queries, and remote results into rows.
package listview

import (
	"fmt"
	"net/url"

	"github.com/matthewbaird/erpconsole/internal/backend"
	"github.com/matthewbaird/erpconsole/internal/doctype"
)

// Row is one record summary keyed by field name.
type Row map[string]any

// BuildFields returns the qualified field identifiers of every column, in
// column order.
func BuildFields(d *doctype.Descriptor) []string {
	fields := make([]string, 0, len(d.List.Columns))
	for _, c := range d.List.Columns {
		fields = append(fields, QualifiedField(d.Name, c.FieldName))
	}
	return fields
}

// QualifiedField formats `tab<Doctype>`.`<field>`.
func QualifiedField(doctypeName, field string) string {
	return fmt.Sprintf("`tab%s`.`%s`", doctypeName, field)
}

// Rows transposes a columnar result into rows. Values beyond the keys are
// dropped; missing values are nil.
func Rows(res backend.ListResult) []Row {
	rows := make([]Row, 0, len(res.Values))
	for _, vals := range res.Values {
		r := make(Row, len(res.Keys))
		for i, k := range res.Keys {
			if i < len(vals) {
				r[k] = vals[i]
			} else {
				r[k] = nil
			}
		}
		rows = append(rows, r)
	}
	return rows
}

// ResolveLink substitutes the `:field` placeholder of template with the
// path-escaped row value. Placeholders without a matching row key stay
// verbatim.
func ResolveLink(template string, row Row) string {
	if template == "" {
		return ""
	}
	return doctype.PlaceholderPattern().ReplaceAllStringFunc(template, func(m string) string {
		v, ok := row[m[1:]]
		if !ok {
			return m
		}
		return url.PathEscape(doctype.FormatValue(v))
	})
}

// Cell is the render model of one list cell.
type Cell struct {
	Text string `json:"text"`
	// BadgeKey and BadgeStyle are set for badge cells whose value is mapped.
	BadgeKey   string `json:"badge_key,omitempty"`
	BadgeStyle string `json:"badge_style,omitempty"`
	Href       string `json:"href,omitempty"`
}

// RenderCell applies the column's cell strategy and link template to row.
func RenderCell(col doctype.Column, row Row) Cell {
	raw := row[col.FieldName]
	c := Cell{Text: doctype.FormatValue(raw)}
	if col.Cell.Kind == doctype.CellBadge {
		if b, ok := col.Cell.Badges[c.Text]; ok {
			c.BadgeKey = b.LabelKey
			c.BadgeStyle = b.Style
		}
	}
	c.Href = ResolveLink(col.LinkTemplate, row)
	return c
}
