package sharding

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/signal18/fabricd/internal/ferrors"
)

// TestRangeLookup_S2 is the spec's S2 scenario: shards at (g2,1), (g3,101),
// (g4,1001), (g5,10001).
func TestRangeLookup_S2(t *testing.T) {
	ranges := []Range{
		{LowerBound: "1", ShardID: 2},
		{LowerBound: "101", ShardID: 3},
		{LowerBound: "1001", ShardID: 4},
		{LowerBound: "10001", ShardID: 5},
	}

	shard, err := RangeLookup(TypeRangeInteger, ranges, "3")
	require.NoError(t, err)
	require.Equal(t, int64(2), shard)

	shard, err = RangeLookup(TypeRangeInteger, ranges, "301")
	require.NoError(t, err)
	require.Equal(t, int64(3), shard)

	shard, err = RangeLookup(TypeRangeInteger, ranges, "12000")
	require.NoError(t, err)
	require.Equal(t, int64(5), shard)
}

func TestRangeLookup_KeyBelowEveryBoundIsAnError(t *testing.T) {
	ranges := []Range{{LowerBound: "100", ShardID: 1}}
	_, err := RangeLookup(TypeRangeInteger, ranges, "50")
	require.Error(t, err)
	code, ok := ferrors.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, ferrors.CodeSharding, code)
}

func TestRangeLookup_StringOrdering(t *testing.T) {
	ranges := []Range{
		{LowerBound: "a", ShardID: 1},
		{LowerBound: "m", ShardID: 2},
	}
	shard, err := RangeLookup(TypeRangeString, ranges, "z")
	require.NoError(t, err)
	require.Equal(t, int64(2), shard)
}

// TestHashLookup_S3 is the spec's S3 scenario at the resolver level: five
// buckets placed by NextHashBound, and keys 1..199 reach every one of them.
// Disabled shards are rejected by Coordinator.Lookup, not exercised here.
func TestHashLookup_S3(t *testing.T) {
	buckets := []HashBucket{
		{LowerBound: NextHashBound(0), ShardID: 1},
		{LowerBound: NextHashBound(1), ShardID: 2},
		{LowerBound: NextHashBound(2), ShardID: 3},
		{LowerBound: NextHashBound(3), ShardID: 4},
		{LowerBound: NextHashBound(4), ShardID: 5},
	}

	hit := make(map[int64]bool)
	for i := 1; i <= 199; i++ {
		shard, err := HashLookup(buckets, string(rune('a'+i%26))+string(rune(i)))
		require.NoError(t, err)
		hit[shard] = true
	}
	require.Len(t, hit, len(buckets), "every bucket must be hit at least once")
}

func TestHashLookup_EmptyMappingIsAnError(t *testing.T) {
	_, err := HashLookup(nil, "anything")
	require.Error(t, err)
}

func TestNextHashBound_StartsAtZeroAndIncreases(t *testing.T) {
	b0 := NextHashBound(0)
	b1 := NextHashBound(1)
	b2 := NextHashBound(2)
	require.Equal(t, "00000000000000000000000000000000", b0)
	require.True(t, b0 < b1)
	require.True(t, b1 < b2)
	require.Len(t, b1, 32)
}

func TestHashKey_Deterministic(t *testing.T) {
	require.Equal(t, HashKey("hello"), HashKey("hello"))
	require.NotEqual(t, HashKey("hello"), HashKey("world"))
	require.Len(t, HashKey("hello"), 32)
}
