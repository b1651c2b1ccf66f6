package display

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lesovsky/pgview/internal/sample"
)

func TestJSONDisplayerRender(t *testing.T) {
	d := &JSONDisplayer{}
	panels := []Panel{{
		Ident: "memory",
		Rows: []sample.Row{{
			"MemUsed": sample.NewNumber(1024),
			"absent":  sample.NewAbsent(),
		}},
	}}

	out, err := d.Render(panels)
	assert.NoError(t, err)

	var decoded []map[string]interface{}
	assert.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Len(t, decoded, 1)
	assert.Equal(t, "memory", decoded[0]["ident"])

	rows := decoded[0]["rows"].([]interface{})
	assert.Len(t, rows, 1)
	row := rows[0].(map[string]interface{})
	assert.Equal(t, 1024.0, row["MemUsed"])
	assert.Nil(t, row["absent"])
}
