package doctree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is the discriminant of a Block.
type Kind string

const (
	KindWidget     Kind = "widget"
	KindList       Kind = "list"
	KindTable      Kind = "table"
	KindHeading    Kind = "heading"
	KindParagraph  Kind = "paragraph"
	KindMarkdown   Kind = "markdown"
	KindCallout    Kind = "callout"
	KindBlockquote Kind = "blockquote"
	KindCode       Kind = "code"
	KindHR         Kind = "hr"
	KindMath       Kind = "math"
	KindUnknown    Kind = "unknown"
)

// ChartWidgetPrefix marks widget types rendered by Chart.js.
const ChartWidgetPrefix = "chart.js"

// Document is the root of a composed report.
type Document struct {
	Version     string
	ReportID    string
	Title       string
	Metadata    map[string]any
	GeneratedAt string
	TOC         []TOCEntry
	Chapters    []*Chapter
	Fields      map[string]any // Composer-defined keys not modelled above.
}

// TOCEntry is one line of the table of contents.
type TOCEntry struct {
	ChapterID string `json:"chapterId"`
	Title     string `json:"title"`
	Anchor    string `json:"anchor"`
}

// Chapter is one stitched fragment.
type Chapter struct {
	ChapterID string
	Title     string
	Anchor    string
	Order     *int
	Blocks    []*Block
	Fields    map[string]any
}

// Block is a node of a chapter's content. The Type field selects which of
// Items and Rows are meaningful; Blocks is generic nesting valid for any type.
type Block struct {
	Type       string
	WidgetType string
	Blocks     []*Block
	Items      []ListItem // list only
	Rows       []*Row     // table only
	Fields     map[string]any

	raw json.RawMessage // set when the source entry was not an object
}

// ListItem is an entry of a list block: either a block sequence or an opaque value.
type ListItem struct {
	Blocks []*Block
	raw    json.RawMessage
}

// Row is a table row.
type Row struct {
	Cells  []*Cell
	Fields map[string]any
	raw    json.RawMessage
}

// Cell is a table cell.
type Cell struct {
	Blocks []*Block
	Fields map[string]any
	raw    json.RawMessage
}

// RawBlock wraps a JSON value that is not a block record.
func RawBlock(raw json.RawMessage) *Block {
	return &Block{raw: raw}
}

// RawItem wraps a list item that is not a block sequence.
func RawItem(raw json.RawMessage) ListItem {
	return ListItem{raw: raw}
}

// RawRow wraps a table row that is not a record.
func RawRow(raw json.RawMessage) *Row {
	return &Row{raw: raw}
}

// RawCell wraps a table cell that is not a record.
func RawCell(raw json.RawMessage) *Cell {
	return &Cell{raw: raw}
}

// Kind maps the type discriminant to a known Kind.
func (b *Block) Kind() Kind {
	switch k := Kind(b.Type); k {
	case KindWidget, KindList, KindTable, KindHeading, KindParagraph, KindMarkdown,
		KindCallout, KindBlockquote, KindCode, KindHR, KindMath:
		return k
	}
	return KindUnknown
}

// Malformed reports whether the block was decoded from a non-object value.
func (b *Block) Malformed() bool { return b.raw != nil }

// Raw returns the original JSON of a malformed block.
func (b *Block) Raw() json.RawMessage { return b.raw }

// Field returns an extra field.
func (b *Block) Field(key string) (any, bool) {
	v, ok := b.Fields[key]
	return v, ok
}

// String returns an extra field as a string, or "" when absent or not a string.
func (b *Block) String(key string) string {
	s, _ := b.Fields[key].(string)
	return s
}

// SetField stores an extra field.
func (b *Block) SetField(key string, v any) {
	if b.Fields == nil {
		b.Fields = make(map[string]any)
	}
	b.Fields[key] = v
}

// Sequence returns the item's blocks; ok is false for opaque items.
func (it ListItem) Sequence() (blocks []*Block, ok bool) {
	return it.Blocks, it.raw == nil
}

// Raw returns the original JSON of an opaque item.
func (it ListItem) Raw() json.RawMessage { return it.raw }

// Malformed reports whether the row was decoded from a non-object value.
func (r *Row) Malformed() bool { return r.raw != nil }

// Malformed reports whether the cell was decoded from a non-object value.
func (c *Cell) Malformed() bool { return c.raw != nil }

// String returns an extra cell field as a string.
func (c *Cell) String(key string) string {
	s, _ := c.Fields[key].(string)
	return s
}

// Decode parses a document from JSON.
func Decode(data []byte) (*Document, error) {
	doc := &Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (d *Document) UnmarshalJSON(data []byte) error {
	m, ok := splitObject(data)
	if !ok {
		return fmt.Errorf("document: expected object, got %s", describe(data))
	}
	d.Version, _ = takeString(m, "version")
	d.ReportID, _ = takeString(m, "reportId")
	d.Title, _ = takeString(m, "title")
	d.GeneratedAt, _ = takeString(m, "generatedAt")
	if raw, ok := m["metadata"]; ok && isKind(raw, '{') {
		var meta map[string]any
		if err := decodeNumbers(raw, &meta); err != nil {
			return fmt.Errorf("document metadata: %w", err)
		}
		d.Metadata = meta
		delete(m, "metadata")
	}
	if raw, ok := m["toc"]; ok && isKind(raw, '[') {
		var toc []TOCEntry
		if err := json.Unmarshal(raw, &toc); err == nil {
			d.TOC = toc
			delete(m, "toc")
		}
	}
	if raw, ok := m["chapters"]; ok && isKind(raw, '[') {
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return err
		}
		d.Chapters = make([]*Chapter, 0, len(elems))
		for _, e := range elems {
			if !isKind(e, '{') {
				continue
			}
			ch := &Chapter{}
			if err := ch.UnmarshalJSON(e); err != nil {
				return err
			}
			d.Chapters = append(d.Chapters, ch)
		}
		delete(m, "chapters")
	}
	fields, err := restFields(m)
	if err != nil {
		return err
	}
	d.Fields = fields
	return nil
}

func (d *Document) MarshalJSON() ([]byte, error) {
	out := copyFields(d.Fields)
	putString(out, "version", d.Version)
	putString(out, "reportId", d.ReportID)
	putString(out, "title", d.Title)
	putString(out, "generatedAt", d.GeneratedAt)
	meta := d.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	out["metadata"] = meta
	if d.TOC != nil {
		out["toc"] = d.TOC
	}
	chapters := d.Chapters
	if chapters == nil {
		chapters = []*Chapter{}
	}
	out["chapters"] = chapters
	return encode(out)
}

func (c *Chapter) UnmarshalJSON(data []byte) error {
	m, ok := splitObject(data)
	if !ok {
		return fmt.Errorf("chapter: expected object, got %s", describe(data))
	}
	c.ChapterID, _ = takeString(m, "chapterId")
	c.Title, _ = takeString(m, "title")
	c.Anchor, _ = takeString(m, "anchor")
	if raw, ok := m["order"]; ok {
		var f float64
		if err := json.Unmarshal(raw, &f); err == nil && f == float64(int(f)) {
			n := int(f)
			c.Order = &n
			delete(m, "order")
		}
	}
	blocks, err := takeBlocks(m, "blocks")
	if err != nil {
		return err
	}
	c.Blocks = blocks
	fields, err := restFields(m)
	if err != nil {
		return err
	}
	c.Fields = fields
	return nil
}

func (c *Chapter) MarshalJSON() ([]byte, error) {
	out := copyFields(c.Fields)
	putString(out, "chapterId", c.ChapterID)
	putString(out, "title", c.Title)
	putString(out, "anchor", c.Anchor)
	if c.Order != nil {
		out["order"] = *c.Order
	}
	blocks := c.Blocks
	if blocks == nil {
		if _, kept := out["blocks"]; !kept {
			out["blocks"] = []*Block{}
		}
	} else {
		out["blocks"] = blocks
	}
	return encode(out)
}

func (b *Block) UnmarshalJSON(data []byte) error {
	m, ok := splitObject(data)
	if !ok {
		b.raw = append(json.RawMessage(nil), bytes.TrimSpace(data)...)
		return nil
	}
	b.Type, _ = takeString(m, "type")
	b.WidgetType, _ = takeString(m, "widgetType")
	blocks, err := takeBlocks(m, "blocks")
	if err != nil {
		return err
	}
	b.Blocks = blocks

	switch b.Kind() {
	case KindList:
		if raw, ok := m["items"]; ok && isKind(raw, '[') {
			items, err := decodeItems(raw)
			if err != nil {
				return err
			}
			b.Items = items
			delete(m, "items")
		}
	case KindTable:
		if raw, ok := m["rows"]; ok && isKind(raw, '[') {
			rows, err := decodeRows(raw)
			if err != nil {
				return err
			}
			b.Rows = rows
			delete(m, "rows")
		}
	}

	fields, err := restFields(m)
	if err != nil {
		return err
	}
	b.Fields = fields
	return nil
}

func (b *Block) MarshalJSON() ([]byte, error) {
	if b.raw != nil {
		return b.raw, nil
	}
	out := copyFields(b.Fields)
	putString(out, "type", b.Type)
	putString(out, "widgetType", b.WidgetType)
	if b.Blocks != nil {
		out["blocks"] = b.Blocks
	}
	if b.Items != nil {
		out["items"] = b.Items
	}
	if b.Rows != nil {
		out["rows"] = b.Rows
	}
	return encode(out)
}

func (it ListItem) MarshalJSON() ([]byte, error) {
	if it.raw != nil {
		return it.raw, nil
	}
	if it.Blocks == nil {
		return []byte("[]"), nil
	}
	return encode(it.Blocks)
}

func (r *Row) UnmarshalJSON(data []byte) error {
	m, ok := splitObject(data)
	if !ok {
		r.raw = append(json.RawMessage(nil), bytes.TrimSpace(data)...)
		return nil
	}
	if raw, ok := m["cells"]; ok && isKind(raw, '[') {
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return err
		}
		r.Cells = make([]*Cell, 0, len(elems))
		for _, e := range elems {
			c := &Cell{}
			if err := c.UnmarshalJSON(e); err != nil {
				return err
			}
			r.Cells = append(r.Cells, c)
		}
		delete(m, "cells")
	}
	fields, err := restFields(m)
	if err != nil {
		return err
	}
	r.Fields = fields
	return nil
}

func (r *Row) MarshalJSON() ([]byte, error) {
	if r.raw != nil {
		return r.raw, nil
	}
	out := copyFields(r.Fields)
	if r.Cells != nil {
		out["cells"] = r.Cells
	}
	return encode(out)
}

func (c *Cell) UnmarshalJSON(data []byte) error {
	m, ok := splitObject(data)
	if !ok {
		c.raw = append(json.RawMessage(nil), bytes.TrimSpace(data)...)
		return nil
	}
	blocks, err := takeBlocks(m, "blocks")
	if err != nil {
		return err
	}
	c.Blocks = blocks
	fields, err := restFields(m)
	if err != nil {
		return err
	}
	c.Fields = fields
	return nil
}

func (c *Cell) MarshalJSON() ([]byte, error) {
	if c.raw != nil {
		return c.raw, nil
	}
	out := copyFields(c.Fields)
	if c.Blocks != nil {
		out["blocks"] = c.Blocks
	}
	return encode(out)
}

func decodeBlocks(raw json.RawMessage) ([]*Block, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, err
	}
	blocks := make([]*Block, 0, len(elems))
	for _, e := range elems {
		b := &Block{}
		if err := b.UnmarshalJSON(e); err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

func decodeItems(raw json.RawMessage) ([]ListItem, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, err
	}
	items := make([]ListItem, 0, len(elems))
	for _, e := range elems {
		if !isKind(e, '[') {
			items = append(items, RawItem(append(json.RawMessage(nil), bytes.TrimSpace(e)...)))
			continue
		}
		blocks, err := decodeBlocks(e)
		if err != nil {
			return nil, err
		}
		items = append(items, ListItem{Blocks: blocks})
	}
	return items, nil
}

func decodeRows(raw json.RawMessage) ([]*Row, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, err
	}
	rows := make([]*Row, 0, len(elems))
	for _, e := range elems {
		r := &Row{}
		if err := r.UnmarshalJSON(e); err != nil {
			return nil, err
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// splitObject returns the members of a JSON object, or ok=false for any other value.
func splitObject(data []byte) (map[string]json.RawMessage, bool) {
	if !isKind(data, '{') {
		return nil, false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false
	}
	return m, true
}

// takeString removes and returns key when it holds a JSON string.
// Values of any other type are left in place.
func takeString(m map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := m[key]
	if !ok || !isKind(raw, '"') {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	// An empty value stays with the rest fields so the key survives encoding.
	if s != "" {
		delete(m, key)
	}
	return s, true
}

// takeBlocks removes and decodes key when it holds a JSON array.
func takeBlocks(m map[string]json.RawMessage, key string) ([]*Block, error) {
	raw, ok := m[key]
	if !ok || !isKind(raw, '[') {
		return nil, nil
	}
	blocks, err := decodeBlocks(raw)
	if err != nil {
		return nil, err
	}
	delete(m, key)
	return blocks, nil
}

func restFields(m map[string]json.RawMessage) (map[string]any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	fields := make(map[string]any, len(m))
	for k, raw := range m {
		var v any
		if err := decodeNumbers(raw, &v); err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		fields[k] = v
	}
	return fields, nil
}

// decodeNumbers keeps numbers as json.Number so re-encoding is exact.
func decodeNumbers(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+6)
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func putString(m map[string]any, key, v string) {
	if v != "" {
		m[key] = v
	}
}

func isKind(data []byte, first byte) bool {
	data = bytes.TrimSpace(data)
	return len(data) > 0 && data[0] == first
}

func describe(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > 20 {
		s = s[:20] + "..."
	}
	return s
}

// encode marshals without HTML escaping so text survives a round trip verbatim.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
