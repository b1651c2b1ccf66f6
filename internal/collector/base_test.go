package collector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lesovsky/pgview/internal/sample"
)

func keyByName(r sample.Row) string {
	return r["name"].String()
}

func TestBaseCollectorDiffRate(t *testing.T) {
	b := NewBaseCollector("test", 1, true,
		[]DiffColumn{{Name: "reads", Diff: true}, {Name: "name", Diff: false}},
		nil,
	)

	now := time.Now()
	b.setCurrent([]sample.Row{{"name": sample.NewText("a"), "reads": sample.NewNumber(100)}}, now)
	b.Diff(keyByName)
	firstRate, ok := b.rowsDiff[0]["reads"].Float64()
	assert.True(t, ok, "no previous sample yet: expect a zero rate, not absent")
	assert.Equal(t, 0.0, firstRate)

	b.setCurrent([]sample.Row{{"name": sample.NewText("a"), "reads": sample.NewNumber(150)}}, now.Add(5*time.Second))
	b.Diff(keyByName)

	rate, ok := b.rowsDiff[0]["reads"].Float64()
	assert.True(t, ok)
	assert.InDelta(t, 10.0, rate, 0.0001) // (150-100)/5s
}

func TestBaseCollectorDiffCounterReset(t *testing.T) {
	b := NewBaseCollector("test", 1, true,
		[]DiffColumn{{Name: "reads", Diff: true}},
		nil,
	)

	now := time.Now()
	b.setCurrent([]sample.Row{{"name": sample.NewText("a"), "reads": sample.NewNumber(500)}}, now)
	b.Diff(keyByName)

	// Counter went backwards (process restarted): rate must clamp to 0, not
	// go negative.
	b.setCurrent([]sample.Row{{"name": sample.NewText("a"), "reads": sample.NewNumber(10)}}, now.Add(1*time.Second))
	b.Diff(keyByName)

	rate, ok := b.rowsDiff[0]["reads"].Float64()
	assert.True(t, ok)
	assert.Equal(t, 0.0, rate)
}

func TestBaseCollectorDiffPassesThroughNonDiffColumns(t *testing.T) {
	b := NewBaseCollector("test", 1, true,
		[]DiffColumn{{Name: "name", Diff: false}},
		nil,
	)
	now := time.Now()
	b.setCurrent([]sample.Row{{"name": sample.NewText("a"), "pid": sample.NewNumber(5)}}, now)
	b.Diff(keyByName)

	assert.Equal(t, "a", b.rowsDiff[0]["name"].String())
	pid, ok := b.rowsDiff[0]["pid"].Float64()
	assert.True(t, ok)
	assert.Equal(t, 5.0, pid)
}
