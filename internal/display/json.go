package display

import (
	"encoding/json"

	"github.com/lesovsky/pgview/internal/sample"
)

// JSONDisplayer renders each tick as a JSON array of panel objects,
// matching the reference tool's JsonDisplayer, which exists for feeding
// this program's output into another tool rather than for a human to read
// directly.
type JSONDisplayer struct{}

type jsonPanel struct {
	Ident string          `json:"ident"`
	Rows  []map[string]interface{} `json:"rows"`
}

func (d *JSONDisplayer) Render(panels []Panel) (string, error) {
	out := make([]jsonPanel, 0, len(panels))
	for _, p := range panels {
		rows := make([]map[string]interface{}, 0, len(p.Rows))
		for _, row := range p.Rows {
			rows = append(rows, rowToMap(row))
		}
		out = append(out, jsonPanel{Ident: p.Ident, Rows: rows})
	}

	buf, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func rowToMap(row sample.Row) map[string]interface{} {
	m := make(map[string]interface{}, len(row))
	for k, v := range row {
		if v.IsAbsent() {
			m[k] = nil
			continue
		}
		switch v.Kind {
		case sample.Number:
			m[k] = v.Num
		case sample.Bool:
			m[k] = v.Flag
		default:
			m[k] = v.Str
		}
	}
	return m
}
