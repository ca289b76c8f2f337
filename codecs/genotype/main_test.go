package genotype

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModalGenotypeIsDefault(t *testing.T) {
	codec := NewCodec("")
	samples := []string{"s1", "s2", "s3"}
	block := codec.Encode(samples, map[string]string{"s1": "0/1", "s2": "0/0", "s3": "0/0"})

	assert.Equal(t, "0/0", block.Default)
	assert.Equal(t, map[string][]int{"0/1": {0}}, block.Exceptions)
}

func TestTiesResolvedByFirstSeen(t *testing.T) {
	codec := NewCodec("")
	block := codec.EncodeIndexed([]string{"1/1", "0/1", "0/1", "1/1"})
	assert.Equal(t, "1/1", block.Default)
	assert.Equal(t, []int{1, 2}, block.Exceptions["0/1"])
}

func TestFixedDefault(t *testing.T) {
	codec := NewCodec("?/?")
	block := codec.EncodeIndexed([]string{"0/0", "0/0", "0/1"})
	assert.Equal(t, "?/?", block.Default)
	assert.Equal(t, []int{0, 1}, block.Exceptions["0/0"])
	assert.Equal(t, []int{2}, block.Exceptions["0/1"])
	assert.Equal(t, []string{"0/0", "0/0", "0/1"}, codec.DecodeIndexed(3, block))
}

func TestMissingAllelesUseSentinel(t *testing.T) {
	codec := NewCodec("")
	block := codec.EncodeIndexed([]string{"0/0", "0/0", "./.", ".|1", "."})
	for key := range block.Exceptions {
		assert.NotContains(t, key, ".")
	}
	assert.Equal(t, []string{"0/0", "0/0", "./.", ".|1", "."}, codec.DecodeIndexed(5, block))
}

func TestMalformedGenotypesPassThrough(t *testing.T) {
	for _, gt := range []string{"", "abc", "0/1|2", "-1/0", "!x", "00/1", "0//1", "+1/0", "a.b"} {
		key := EncodeGenotype(gt)
		assert.Equal(t, gt, DecodeGenotype(key), "genotype %q", gt)
	}
}

func TestRoundTripIndependentOfOrder(t *testing.T) {
	pool := []string{"0/0", "0/1", "1/1", "./.", "0|1", "1|0", "1/2", ".", "0", "?/?", "weird"}
	r := rand.New(rand.NewSource(7))
	codec := NewCodec("")
	for i := 0; i < 300; i++ {
		n := 1 + r.Intn(40)
		gts := map[string]string{}
		for j := 0; j < n; j++ {
			gts[fmt.Sprintf("sample_%d", j)] = pool[r.Intn(len(pool))]
		}
		block := codec.Encode(nil, gts)
		samples := make([]string, 0, len(gts))
		for s := range gts {
			samples = append(samples, s)
		}
		// any permutation of the samples decodes the same map when used on both sides
		r.Shuffle(len(samples), func(a, b int) { samples[a], samples[b] = samples[b], samples[a] })
		assert.Equal(t, gts, codec.Decode(samples, codec.Encode(samples, gts)))
		assert.Equal(t, gts, codec.Decode(sortedKeys(gts), block))
	}
}

func TestRemap(t *testing.T) {
	assert.Equal(t, "0/3", Remap("0/1", map[int]int{1: 3}))
	assert.Equal(t, "2|0", Remap("1|0", map[int]int{1: 2}))
	assert.Equal(t, "0/.", Remap("0/2", map[int]int{1: 1}))
	assert.Equal(t, "./.", Remap("./.", map[int]int{1: 2}))
	assert.Equal(t, "weird", Remap("weird", map[int]int{1: 2}))
}

func TestSampleIdBlocks(t *testing.T) {
	codec := NewCodec("")
	block := codec.EncodeIds(map[int]string{10: "0/0", 4: "0/1", 7: "0/0"})
	assert.Equal(t, "0/0", block.Default)
	assert.Equal(t, []int{4}, block.Exceptions["0/1"])

	// ids outside of the scope are ignored
	gts := codec.DecodeIds([]int{7, 10}, block)
	assert.Equal(t, map[int]string{7: "0/0", 10: "0/0"}, gts)
	assert.Equal(t, map[int]string{4: "0/1", 7: "0/0", 10: "0/0"}, codec.DecodeIds([]int{4, 7, 10}, block))
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
