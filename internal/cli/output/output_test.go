package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	Name      string            `json:"name"`
	Size      int64             `json:"size"`
	Files     map[string]string `json:"output_files,omitempty"`
	Tags      []string          `json:"tags"`
	CreatedAt time.Time         `json:"created_at"`
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatTable, "TABLE": FormatTable, "json": FormatJSON, "yml": FormatYAML} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestTableSelectedColumns(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	f := &TableFormatter{Columns: []Column{{Field: "name"}, {Field: "size"}, {Field: "created_at", Label: "AGE"}}, now: func() time.Time { return now }}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf, []row{
		{Name: "mesh.msh", Size: 42, CreatedAt: now.Add(-90 * time.Second)},
		{Name: "mesh.geo", Size: 7, CreatedAt: now.Add(-3 * time.Hour)},
	}))
	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "AGE")
	assert.Contains(t, out, "mesh.msh")
	assert.Contains(t, out, "1m ago")
	assert.Contains(t, out, "3h ago")
}

func TestTableDefaultColumnsSkipCollections(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(FormatTable).Write(&buf, &row{Name: "x", Size: 1}))
	header := strings.SplitN(buf.String(), "\n", 2)[0]
	assert.Contains(t, header, "NAME")
	assert.Contains(t, header, "CREATED AT")
	assert.NotContains(t, header, "TAGS")
	assert.NotContains(t, header, "OUTPUT FILES")
}

func TestTableMapColumnListsKeys(t *testing.T) {
	var buf bytes.Buffer
	f := New(FormatTable, Cols("output_files")...)
	require.NoError(t, f.Write(&buf, row{Files: map[string]string{"script": "a.geo", "native_mesh": "a.msh"}}))
	assert.Contains(t, buf.String(), "native_mesh,script")
}

func TestEmptySlice(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(FormatTable).Write(&buf, []row{}))
	assert.Equal(t, "No items found\n", buf.String())
}

func TestYAMLUsesJSONNames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(FormatYAML).Write(&buf, row{Name: "a", Size: 2}))
	assert.Contains(t, buf.String(), "name: a")
	assert.Contains(t, buf.String(), "size: 2")
	assert.NotContains(t, buf.String(), "Name:")
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(FormatJSON).Write(&buf, map[string]int{"deleted": 2}))
	assert.Equal(t, "{\n  \"deleted\": 2\n}\n", buf.String())
}
