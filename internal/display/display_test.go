package display

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lesovsky/pgview/internal/collector"
	"github.com/lesovsky/pgview/internal/sample"
)

// TestCookAbsentIsEmpty checks Absent values cook to the empty string,
// matching spec.md §4.8's "None -> empty" rule.
func TestCookAbsentIsEmpty(t *testing.T) {
	col := collector.OutputColumn{Name: "x", MaxWidth: 10}
	assert.Equal(t, "", cook(col, sample.NewAbsent()))
}

// TestCookTruncatesMiddle checks that an overlong value keeps its head and
// tail rather than just its head, per spec.md §4.8's cooking rule.
func TestCookTruncatesMiddle(t *testing.T) {
	col := collector.OutputColumn{Name: "query", MaxWidth: 10}
	got := cook(col, sample.NewText(strings.Repeat("a", 20)+strings.Repeat("b", 20)))
	assert.Equal(t, "aaaa..bbbb", got)
	assert.Len(t, got, 10)
}

func TestTruncateMiddleShortStringUntouched(t *testing.T) {
	assert.Equal(t, "short", truncateMiddle("short", 20))
}

func TestTruncateMiddleExactFit(t *testing.T) {
	s := strings.Repeat("x", 10)
	assert.Equal(t, s, truncateMiddle(s, 10))
}
