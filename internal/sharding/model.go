// Package sharding implements the shard mapping model and the procedures
// that define, populate, split, move, and prune shards (§4.10).
package sharding

// MappingType is the partitioning scheme a ShardMapping uses.
type MappingType string

const (
	TypeRange         MappingType = "RANGE"
	TypeRangeInteger  MappingType = "RANGE_INTEGER"
	TypeRangeString   MappingType = "RANGE_STRING"
	TypeRangeDatetime MappingType = "RANGE_DATETIME"
	TypeHash          MappingType = "HASH"
)

// IsRangeFamily reports whether t is one of the RANGE_* variants, which
// compare lower bounds with the type-specific comparator rather than MD5.
func (t MappingType) IsRangeFamily() bool {
	switch t {
	case TypeRange, TypeRangeInteger, TypeRangeString, TypeRangeDatetime:
		return true
	}
	return false
}

// ShardState is a shard's membership in lookup.
type ShardState string

const (
	ShardEnabled  ShardState = "ENABLED"
	ShardDisabled ShardState = "DISABLED"
)

// Hint selects which half of a sharded operation lookup resolves: the shard
// owning a specific key, or the mapping's global group.
type Hint string

const (
	HintLocal  Hint = "LOCAL"
	HintGlobal Hint = "GLOBAL"
)

// Mapping is a (id, type, global_group_id) triple: a plan for partitioning
// one or more tables by a column.
type Mapping struct {
	ID            int64
	Type          MappingType
	GlobalGroupID string
}

// Table associates a qualified table name with a Mapping and the column it
// is sharded on. IsAnchor marks the one table per mapping used for
// cross-table referential integrity during splits.
type Table struct {
	MappingID     int64
	QualifiedName string
	Column        string
	IsAnchor      bool
}

// Shard is a horizontal partition of data, owned by exactly one Group.
type Shard struct {
	ID        int64
	MappingID int64
	GroupID   string
	State     ShardState
}

// Range is a RANGE-family lower bound: the shard covering key k is the one
// with the greatest LowerBound <= k within its mapping.
type Range struct {
	MappingID  int64
	LowerBound string
	ShardID    int64
}

// HashBucket is a HASH mapping's ring position: LowerBound is an
// MD5-derived hex value, and lookup wraps around the ring.
type HashBucket struct {
	MappingID  int64
	LowerBound string
	ShardID    int64
}

// Candidate is one server lookup proposes for routing a sharded query.
type Candidate struct {
	ServerUUID string
	Status     string
	Warning    string
}
