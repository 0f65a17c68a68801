package warehouse

import (
	"testing"
	"time"

	"github.com/moolen/insight/internal/capability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSONRows(t *testing.T) {
	rows, err := decodeJSONRows([]string{
		`{"campaign_id": 3, "roas": "2.75", "active": "t"}`,
		`{"campaign_id": 4, "roas": 1.5, "active": false, "note": null}`,
	})
	require.NoError(t, err)

	require.Equal(t, 2, rows.Len())
	assert.Equal(t, []string{"active", "campaign_id", "note", "roas"}, rows.Columns)
	assert.Equal(t, 2.75, rows.Float(0, "roas"))
	assert.Equal(t, int64(4), rows.Int(1, "campaign_id"))
	assert.True(t, rows.Bool(0, "active"))
	assert.False(t, rows.Bool(1, "active"))
	assert.Equal(t, "", rows.String(1, "note"))
	assert.Equal(t, "3", rows.String(0, "campaign_id"))
}

func TestDecodeJSONRowsEmptyForms(t *testing.T) {
	for _, texts := range [][]string{nil, {""}, {"null"}, {"[]"}, {"  \n"}} {
		rows, err := decodeJSONRows(texts)
		require.NoError(t, err)
		assert.Zero(t, rows.Len())
	}
}

func TestDecodeJSONRowsMalformed(t *testing.T) {
	_, err := decodeJSONRows([]string{`[{"a": 1},`})
	assert.ErrorIs(t, err, capability.ErrBackendMalformed)

	_, err = decodeJSONRows([]string{"ERROR: relation does not exist"})
	assert.ErrorIs(t, err, capability.ErrBackendMalformed)
}

func TestRowsAccessorsTolerateTypes(t *testing.T) {
	rows := &Rows{Records: []map[string]interface{}{{
		"day":    time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		"clicks": int64(42),
		"spend":  "not a number",
	}}}
	assert.Equal(t, "2026-10-01", rows.String(0, "day"))
	assert.Equal(t, 42.0, rows.Float(0, "clicks"))
	assert.Equal(t, 0.0, rows.Float(0, "spend"))
	assert.Equal(t, 0.0, rows.Float(0, "missing"))

	var nilRows *Rows
	assert.Zero(t, nilRows.Len())
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "'gen_z'", Quote("gen_z"))
	assert.Equal(t, "'O''Reilly'", Quote("O'Reilly"))
}
