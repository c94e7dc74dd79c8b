package ranklist_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hpoforge/hpo/pkg/ranklist"
)

func TestRankListKeepsBestNMaximize(t *testing.T) {
	rl := ranklist.New(3, func(x int) float64 { return float64(x) }, true)
	for _, v := range []int{1, 5, 3, 9, 2, 8} {
		rl.Append(v)
	}
	assert.Equal(t, []int{9, 8, 5}, rl.Items())
}

func TestRankListKeepsBestNMinimize(t *testing.T) {
	rl := ranklist.New(2, func(x int) float64 { return float64(x) }, false)
	for _, v := range []int{5, 1, 3} {
		rl.Append(v)
	}
	assert.Equal(t, []int{1, 3}, rl.Items())
}

func TestRankListInsertionStableOnTies(t *testing.T) {
	type item struct {
		name  string
		score float64
	}
	rl := ranklist.New(2, func(i item) float64 { return i.score }, true)
	rl.Append(item{"first", 5})
	rl.Append(item{"second", 5})
	rl.Append(item{"third", 5})

	items := rl.Items()
	assert.Equal(t, "first", items[0].name)
	assert.Equal(t, "second", items[1].name)
}

func TestRankListString(t *testing.T) {
	rl := ranklist.New(2, func(x int) float64 { return float64(x) }, true,
		ranklist.Column[int]{Name: "value", Value: func(x int) string { return fmt.Sprintf("%d", x) }},
	)
	rl.Append(1)
	rl.Append(2)
	out := rl.String()
	assert.Contains(t, out, "value")
	assert.Contains(t, out, "2")
}
