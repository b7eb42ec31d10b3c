package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoOrderedIndex(t *testing.T) {
	products := []string{"a", "b", "c", "d"}
	pairs := []ProductOrderPair{
		{ProductID: "a", OrderID: "o1"},
		{ProductID: "b", OrderID: "o1"},
		{ProductID: "c", OrderID: "o1"},
		{ProductID: "a", OrderID: "o2"},
		{ProductID: "b", OrderID: "o2"},
	}

	idx := CoOrderedIndex(products, pairs)

	assert.ElementsMatch(t, []string{"b", "c", "b"}, idx["a"])
	assert.ElementsMatch(t, []string{"a", "c", "a"}, idx["b"])
	assert.ElementsMatch(t, []string{"a", "b"}, idx["c"])
	assert.Empty(t, idx["d"], "product never co-ordered still gets an entry")
}

func TestRankCoOccurring(t *testing.T) {
	ranked := RankCoOccurring([]string{"x", "y", "x", "z", "x", "y"}, 2)
	assert.Equal(t, []string{"x", "y"}, ranked)
}

func TestRankCoOccurringTieBreaksByIDDesc(t *testing.T) {
	ranked := RankCoOccurring([]string{"a", "b"}, 10)
	assert.Equal(t, []string{"b", "a"}, ranked)
}

func TestRankCoOccurringEmpty(t *testing.T) {
	assert.Empty(t, RankCoOccurring(nil, 5))
}
