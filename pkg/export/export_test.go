package export

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset(rows int) Dataset {
	data := Dataset{
		Title:   "Download report",
		Headers: []string{"date", "downloads"},
	}
	for i := 0; i < rows; i++ {
		data.Rows = append(data.Rows, map[string]string{
			"date":      fmt.Sprintf("2024-03-%02d", i%28+1),
			"downloads": fmt.Sprint(i),
		})
	}
	return data
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(Dataset{
		Headers: []string{"date", "downloads"},
		Rows: []map[string]string{
			{"date": "2024-03-01", "downloads": "4"},
			{"date": "2024-03-02"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "date,downloads\n2024-03-01,4\n2024-03-02,\n", string(out))
}

func TestPDFExporterRendersMultiplePages(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset(120))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderersRequireHeaders(t *testing.T) {
	for _, format := range []Format{FormatCSV, FormatPDF} {
		r, err := NewRenderer(format)
		require.NoError(t, err)
		_, err = r.Render(Dataset{})
		assert.Error(t, err, string(format))
	}

	_, err := NewRenderer("xlsx")
	assert.Error(t, err)
}
