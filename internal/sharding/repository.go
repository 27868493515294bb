package sharding

import (
	"context"
	"database/sql"

	"github.com/signal18/fabricd/internal/ferrors"
)

// Repository is the typed accessor for the sharding tables, sharing the
// state store's connection with internal/fabric.Repository rather than
// opening one of its own.
type Repository struct {
	db *sql.DB
}

// NewRepository builds a Repository over db, the state store's shared handle.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// DefineMapping allocates the next mapping id and inserts the row.
func (r *Repository) DefineMapping(ctx context.Context, t MappingType, globalGroupID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO shard_maps_defn (type_name, global_group) VALUES (?, ?)`, t, globalGroupID)
	if err != nil {
		return 0, ferrors.Persistence("failed to define shard mapping", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, ferrors.Persistence("failed to read new mapping id", err)
	}
	return id, nil
}

// GetMapping fetches a mapping by id.
func (r *Repository) GetMapping(ctx context.Context, id int64) (Mapping, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT mapping_id, type_name, global_group FROM shard_maps_defn WHERE mapping_id = ?`, id)
	var m Mapping
	if err := row.Scan(&m.ID, &m.Type, &m.GlobalGroupID); err != nil {
		if err == sql.ErrNoRows {
			return Mapping{}, ferrors.Sharding("shard mapping not found")
		}
		return Mapping{}, ferrors.Persistence("failed to fetch shard mapping", err)
	}
	return m, nil
}

// AddTable associates qualifiedName/column with mappingID. isAnchor marks
// the single table per mapping used for referential integrity during
// splits; the caller is responsible for ensuring at most one anchor exists.
func (r *Repository) AddTable(ctx context.Context, t Table) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO shard_tables (mapping_id, table_name, column_name, is_anchor)
		VALUES (?, ?, ?, ?)`, t.MappingID, t.QualifiedName, t.Column, t.IsAnchor)
	if err != nil {
		return ferrors.Persistence("failed to add shard table", err)
	}
	return nil
}

// TableByName fetches a shard table mapping by its qualified name.
func (r *Repository) TableByName(ctx context.Context, qualifiedName string) (Table, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT mapping_id, table_name, column_name, is_anchor
		FROM shard_tables WHERE table_name = ?`, qualifiedName)
	var t Table
	if err := row.Scan(&t.MappingID, &t.QualifiedName, &t.Column, &t.IsAnchor); err != nil {
		if err == sql.ErrNoRows {
			return Table{}, ferrors.Sharding("table is not sharded: " + qualifiedName)
		}
		return Table{}, ferrors.Persistence("failed to fetch shard table", err)
	}
	return t, nil
}

// TablesForMapping lists every table sharded under mappingID.
func (r *Repository) TablesForMapping(ctx context.Context, mappingID int64) ([]Table, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT mapping_id, table_name, column_name, is_anchor
		FROM shard_tables WHERE mapping_id = ?`, mappingID)
	if err != nil {
		return nil, ferrors.Persistence("failed to list shard tables", err)
	}
	defer rows.Close()
	var out []Table
	for rows.Next() {
		var t Table
		if err := rows.Scan(&t.MappingID, &t.QualifiedName, &t.Column, &t.IsAnchor); err != nil {
			return nil, ferrors.Persistence("failed to scan shard table row", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// AddShard inserts a new shard row under mappingID, bound to groupID, in
// the given state.
func (r *Repository) AddShard(ctx context.Context, mappingID int64, groupID string, state ShardState) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO shards (mapping_id, group_id, state) VALUES (?, ?, ?)`, mappingID, groupID, state)
	if err != nil {
		return 0, ferrors.Persistence("failed to add shard", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, ferrors.Persistence("failed to read new shard id", err)
	}
	return id, nil
}

// GetShard fetches a shard by id.
func (r *Repository) GetShard(ctx context.Context, id int64) (Shard, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT shard_id, mapping_id, group_id, state FROM shards WHERE shard_id = ?`, id)
	var s Shard
	if err := row.Scan(&s.ID, &s.MappingID, &s.GroupID, &s.State); err != nil {
		if err == sql.ErrNoRows {
			return Shard{}, ferrors.Sharding("shard not found")
		}
		return Shard{}, ferrors.Persistence("failed to fetch shard", err)
	}
	return s, nil
}

// SetShardState toggles a shard between ENABLED and DISABLED.
func (r *Repository) SetShardState(ctx context.Context, shardID int64, state ShardState) error {
	_, err := r.db.ExecContext(ctx, `UPDATE shards SET state = ? WHERE shard_id = ?`, state, shardID)
	if err != nil {
		return ferrors.Persistence("failed to set shard state", err)
	}
	return nil
}

// SetShardGroup rebinds a shard to a different group (move's only state change).
func (r *Repository) SetShardGroup(ctx context.Context, shardID int64, groupID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE shards SET group_id = ? WHERE shard_id = ?`, groupID, shardID)
	if err != nil {
		return ferrors.Persistence("failed to move shard", err)
	}
	return nil
}

// AddRange inserts a RANGE-family lower-bound entry for a shard. shard_ranges
// carries no mapping_id of its own (one row per shard, keyed by shard_id);
// the mapping is always reachable by joining through shards.mapping_id.
func (r *Repository) AddRange(ctx context.Context, rg Range) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO shard_ranges (shard_id, lower_bound) VALUES (?, ?)`, rg.ShardID, rg.LowerBound)
	if err != nil {
		return ferrors.Persistence("failed to add shard range", err)
	}
	return nil
}

// RangesForMapping lists every range entry for mappingID, unsorted.
func (r *Repository) RangesForMapping(ctx context.Context, mappingID int64) ([]Range, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT sr.shard_id, sr.lower_bound FROM shard_ranges sr
		JOIN shards s ON s.shard_id = sr.shard_id WHERE s.mapping_id = ?`, mappingID)
	if err != nil {
		return nil, ferrors.Persistence("failed to list shard ranges", err)
	}
	defer rows.Close()
	var out []Range
	for rows.Next() {
		rg := Range{MappingID: mappingID}
		if err := rows.Scan(&rg.ShardID, &rg.LowerBound); err != nil {
			return nil, ferrors.Persistence("failed to scan shard range row", err)
		}
		out = append(out, rg)
	}
	return out, rows.Err()
}

// UpdateRangeBound rewrites an existing shard's lower bound.
func (r *Repository) UpdateRangeBound(ctx context.Context, shardID int64, newLowerBound string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE shard_ranges SET lower_bound = ? WHERE shard_id = ?`,
		newLowerBound, shardID)
	if err != nil {
		return ferrors.Persistence("failed to update shard range bound", err)
	}
	return nil
}

// AddHashBucket inserts a HASH mapping's ring position for a shard.
func (r *Repository) AddHashBucket(ctx context.Context, b HashBucket) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO shard_hashes (shard_id, md5_low) VALUES (?, ?)`, b.ShardID, b.LowerBound)
	if err != nil {
		return ferrors.Persistence("failed to add hash bucket", err)
	}
	return nil
}

// HashBucketsForMapping lists every bucket for mappingID, unsorted.
func (r *Repository) HashBucketsForMapping(ctx context.Context, mappingID int64) ([]HashBucket, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT sh.shard_id, sh.md5_low FROM shard_hashes sh
		JOIN shards s ON s.shard_id = sh.shard_id WHERE s.mapping_id = ?`, mappingID)
	if err != nil {
		return nil, ferrors.Persistence("failed to list hash buckets", err)
	}
	defer rows.Close()
	var out []HashBucket
	for rows.Next() {
		b := HashBucket{MappingID: mappingID}
		if err := rows.Scan(&b.ShardID, &b.LowerBound); err != nil {
			return nil, ferrors.Persistence("failed to scan hash bucket row", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
