package sharding

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBoundsFromRanges_TopmostHasNoUpper(t *testing.T) {
	ranges := []Range{
		{LowerBound: "1001", ShardID: 4},
		{LowerBound: "1", ShardID: 2},
		{LowerBound: "101", ShardID: 3},
	}
	bounds := boundsFromRanges(TypeRangeInteger, ranges)

	require.Equal(t, shardBound{lower: "1", upper: "101"}, bounds[2])
	require.Equal(t, shardBound{lower: "101", upper: "1001"}, bounds[3])
	require.Equal(t, shardBound{lower: "1001", upper: ""}, bounds[4])
}

func TestBoundsFromHashBuckets_RingOrder(t *testing.T) {
	buckets := []HashBucket{
		{LowerBound: "c0", ShardID: 3},
		{LowerBound: "00", ShardID: 1},
		{LowerBound: "80", ShardID: 2},
	}
	bounds := boundsFromHashBuckets(buckets)

	require.Equal(t, shardBound{lower: "00", upper: "80"}, bounds[1])
	require.Equal(t, shardBound{lower: "80", upper: "c0"}, bounds[2])
	require.Equal(t, shardBound{lower: "c0", upper: ""}, bounds[3])
}
