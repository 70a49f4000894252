package output

import (
	"fmt"
	"io"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
)

// Column is one table column: the json field name and an optional header.
type Column struct {
	Field string
	Label string
}

// Cols builds columns whose headers are the upper-cased field names.
func Cols(fields ...string) []Column {
	cols := make([]Column, len(fields))
	for i, f := range fields {
		cols[i] = Column{Field: f}
	}
	return cols
}

// TableFormatter renders a struct or a slice of structs. With no columns every
// exported scalar field is shown.
type TableFormatter struct {
	Columns []Column
	// now is stubbed in tests.
	now func() time.Time
}

func (f *TableFormatter) Write(w io.Writer, data any) error {
	val := reflect.ValueOf(data)
	for val.Kind() == reflect.Ptr && !val.IsNil() {
		val = val.Elem()
	}
	if val.Kind() != reflect.Slice {
		val = reflect.ValueOf([]any{data})
	}
	if val.Len() == 0 {
		fmt.Fprintln(w, "No items found")
		return nil
	}

	columns := f.Columns
	if len(columns) == 0 {
		columns = defaultColumns(val.Index(0))
	}
	headers := make([]string, len(columns))
	for i, c := range columns {
		headers[i] = c.Label
		if headers[i] == "" {
			headers[i] = strings.ToUpper(strings.ReplaceAll(c.Field, "_", " "))
		}
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)

	for i := 0; i < val.Len(); i++ {
		item := val.Index(i)
		row := make([]string, len(columns))
		for j, c := range columns {
			row[j] = f.format(fieldByJSONName(item, c.Field))
		}
		table.Append(row)
	}
	table.Render()
	return nil
}

func (f *TableFormatter) format(v reflect.Value) string {
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return ""
	}
	if t, ok := v.Interface().(time.Time); ok {
		return f.formatTime(t)
	}
	if v.Kind() == reflect.Map {
		keys := v.MapKeys()
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%v", k.Interface()))
		}
		slices.Sort(parts)
		return strings.Join(parts, ",")
	}
	return fmt.Sprintf("%v", v.Interface())
}

// formatTime shows recent times relative to now and older ones as dates.
func (f *TableFormatter) formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	now := time.Now
	if f.now != nil {
		now = f.now
	}
	d := now().Sub(t)
	switch {
	case d < 0 || d >= 24*time.Hour:
		return t.Local().Format("2006-01-02 15:04")
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
}

func defaultColumns(v reflect.Value) []Column {
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return []Column{{Field: "", Label: "VALUE"}}
	}
	t := v.Type()
	var cols []Column
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() || field.Anonymous {
			continue
		}
		name := jsonName(field)
		if name == "" || name == "-" {
			continue
		}
		switch field.Type.Kind() {
		case reflect.Slice, reflect.Map, reflect.Struct:
			if field.Type != reflect.TypeOf(time.Time{}) {
				continue
			}
		}
		cols = append(cols, Column{Field: name})
	}
	return cols
}

// fieldByJSONName resolves a json field name on v. An empty name returns v.
func fieldByJSONName(v reflect.Value, name string) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	if name == "" || !v.IsValid() {
		return v
	}
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			if jsonName(t.Field(i)) == name {
				return v.Field(i)
			}
		}
	case reflect.Map:
		return v.MapIndex(reflect.ValueOf(name))
	}
	return reflect.Value{}
}

func jsonName(field reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" {
		return ""
	}
	return strings.Split(tag, ",")[0]
}
