package sharding

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strconv"

	"github.com/signal18/fabricd/internal/ferrors"
)

// compareBounds orders two lower-bound strings according to t's comparator:
// integer for RANGE/RANGE_INTEGER, lexicographic (utf8 collation stand-in)
// for RANGE_STRING, and RFC3339 string order for RANGE_DATETIME (which sorts
// correctly as plain strings because the format is fixed-width and
// left-padded).
func compareBounds(t MappingType, a, b string) int {
	if t == TypeRangeInteger || t == TypeRange {
		ai, aerr := strconv.ParseInt(a, 10, 64)
		bi, berr := strconv.ParseInt(b, 10, 64)
		if aerr == nil && berr == nil {
			switch {
			case ai < bi:
				return -1
			case ai > bi:
				return 1
			default:
				return 0
			}
		}
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// RangeLookup returns the shard id whose lower bound is the greatest one
// <= key, i.e. the RANGE-family "greatest lower bound" rule (§3, §4.10,
// invariant 6). ranges need not be pre-sorted. Returns ferrors.Sharding if
// key falls below every range's lower bound.
func RangeLookup(t MappingType, ranges []Range, key string) (int64, error) {
	if len(ranges) == 0 {
		return 0, ferrors.Sharding("no ranges defined for mapping")
	}
	sorted := append([]Range(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool {
		return compareBounds(t, sorted[i].LowerBound, sorted[j].LowerBound) < 0
	})

	best := -1
	for i, r := range sorted {
		if compareBounds(t, r.LowerBound, key) <= 0 {
			best = i
		} else {
			break
		}
	}
	if best == -1 {
		return 0, ferrors.Sharding("key precedes every configured range")
	}
	return sorted[best].ShardID, nil
}

// HashKey MD5-hashes key into the same hex representation used for bucket
// lower bounds.
func HashKey(key string) string {
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

// HashLookup selects a bucket by the same "greatest lower bound" rule as
// RangeLookup, wrapping around the ring when the hashed key precedes every
// bucket's lower bound (invariant 7: lookup always resolves for a
// non-empty mapping).
func HashLookup(buckets []HashBucket, key string) (int64, error) {
	if len(buckets) == 0 {
		return 0, ferrors.Sharding("no hash buckets defined for mapping")
	}
	sorted := append([]HashBucket(nil), buckets...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LowerBound < sorted[j].LowerBound })

	hashed := HashKey(key)
	best := sorted[len(sorted)-1] // wrap: key precedes every bound, ring's last bucket owns it
	for _, b := range sorted {
		if b.LowerBound <= hashed {
			best = b
		} else {
			break
		}
	}
	return best.ShardID, nil
}

// NextHashBound places a new bucket on the MD5 ring relative to the
// existing bucket count: the ring [0, 2^128) is divided into count+1 equal
// arcs and the new bucket starts at the arc at index count, i.e. at
// count/(count+1) of the ring. Existing buckets are not moved, so from the
// third bucket on the arcs are unequal (bounds 0, 1/2, 2/3, 3/4, ...).
func NextHashBound(existingCount int) string {
	if existingCount <= 0 {
		return "00000000000000000000000000000000"
	}
	// 2^128 / (existingCount+1) * existingCount, computed digit-wise on the
	// 32-hex-digit ring since it exceeds uint64 range.
	return ringFraction(existingCount, existingCount+1)
}

// ringFraction computes floor(2^128 * num / den) as a 32-hex-digit string
// by long division, one byte at a time, avoiding a big.Int import for a
// single small computation.
func ringFraction(num, den int) string {
	const bytesLen = 128 / 8
	rem := num
	digits := make([]byte, bytesLen)
	for i := 0; i < bytesLen; i++ {
		rem *= 256
		digits[i] = byte(rem / den)
		rem = rem % den
	}
	return hex.EncodeToString(digits)
}
