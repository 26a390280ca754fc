package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{input: "", want: FormatTable},
		{input: "table", want: FormatTable},
		{input: "JSON", want: FormatJSON},
		{input: " yaml ", want: FormatYAML},
		{input: "yml", want: FormatYAML},
		{input: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type stats struct {
	Entries int `json:"entries" yaml:"entries"`
}

func (s stats) Headers() []string { return []string{"Entries"} }
func (s stats) Rows() [][]string  { return [][]string{{"7"}} }

func TestPrinterPrint(t *testing.T) {
	render := func(f Format, data any) string {
		var buf bytes.Buffer
		require.NoError(t, NewPrinter(&buf, f, false).Print(data))
		return buf.String()
	}

	assert.Contains(t, render(FormatTable, stats{Entries: 7}), "ENTRIES")
	assert.Equal(t, "{\n  \"entries\": 7\n}\n", render(FormatJSON, stats{Entries: 7}))
	assert.Equal(t, "entries: 7\n", render(FormatYAML, stats{Entries: 7}))

	// Non-table data falls back to JSON.
	assert.Equal(t, "{\n  \"a\": 1\n}\n", render(FormatTable, map[string]int{"a": 1}))

	err := NewPrinter(&bytes.Buffer{}, Format("bogus"), false).Print(1)
	assert.Error(t, err)
}

func TestPrinterStatus(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, FormatTable, false).Success("done")
	assert.Equal(t, "done\n", buf.String())

	buf.Reset()
	NewPrinter(&buf, FormatTable, true).Warning("careful")
	assert.Equal(t, "\033[33mcareful\033[0m\n", buf.String())
}
