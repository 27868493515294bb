package fabric

import (
	"context"
	"database/sql"
	"time"

	"github.com/signal18/fabricd/internal/ferrors"
)

// Repository is the typed accessor for fabric's structural state: servers,
// groups, providers, and machines. It shares the state store's connection
// pool with internal/persister and internal/checkpoint rather than opening
// one of its own.
type Repository struct {
	db *sql.DB
}

// NewRepository builds a Repository over db, the state store's shared handle.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// AddServer inserts a new server row. Callers must have already validated
// privileges (CheckPrivileges) and discovered the server's MySQL uuid.
func (r *Repository) AddServer(ctx context.Context, s Server) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO servers (server_uuid, group_id, address, mode, status, weight, update_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.UUID, s.GroupID, s.Address, s.Mode, s.Status, s.Weight, time.Now().UTC())
	if err != nil {
		return ferrors.Persistence("failed to add server", err)
	}
	return nil
}

// RemoveServer deletes a server row. Callers must have already confirmed
// the server isn't the group's current primary (§4.9).
func (r *Repository) RemoveServer(ctx context.Context, uuid string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM servers WHERE server_uuid = ?`, uuid)
	if err != nil {
		return ferrors.Persistence("failed to remove server", err)
	}
	return nil
}

// GetServer fetches a single server by uuid.
func (r *Repository) GetServer(ctx context.Context, uuid string) (Server, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT server_uuid, group_id, address, mode, status, weight, update_time
		FROM servers WHERE server_uuid = ?`, uuid)
	var s Server
	if err := row.Scan(&s.UUID, &s.GroupID, &s.Address, &s.Mode, &s.Status, &s.Weight, &s.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Server{}, ferrors.Server("server not found: " + uuid)
		}
		return Server{}, ferrors.Persistence("failed to fetch server", err)
	}
	return s, nil
}

// AddressOf resolves serverUUID to its current dial address, implementing
// internal/mysqlconn.Directory.
func (r *Repository) AddressOf(ctx context.Context, serverUUID string) (string, error) {
	s, err := r.GetServer(ctx, serverUUID)
	if err != nil {
		return "", err
	}
	return s.Address, nil
}

// ServersInGroup returns every server belonging to groupID.
func (r *Repository) ServersInGroup(ctx context.Context, groupID string) ([]Server, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT server_uuid, group_id, address, mode, status, weight, update_time
		FROM servers WHERE group_id = ?`, groupID)
	if err != nil {
		return nil, ferrors.Persistence("failed to list servers", err)
	}
	defer rows.Close()

	var out []Server
	for rows.Next() {
		var s Server
		if err := rows.Scan(&s.UUID, &s.GroupID, &s.Address, &s.Mode, &s.Status, &s.Weight, &s.UpdatedAt); err != nil {
			return nil, ferrors.Persistence("failed to scan server row", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ContainsServer is the persisted form of the §4.7 membership query.
func (r *Repository) ContainsServer(ctx context.Context, groupID, uuid string) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM servers WHERE group_id = ? AND server_uuid = ? LIMIT 1`, groupID, uuid).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, ferrors.Persistence("failed to check group membership", err)
	}
	return true, nil
}

// UpdateServerStatus transitions a server's role (e.g. SECONDARY -> PRIMARY).
func (r *Repository) UpdateServerStatus(ctx context.Context, uuid string, status Status) error {
	_, err := r.db.ExecContext(ctx, `UPDATE servers SET status = ?, update_time = ? WHERE server_uuid = ?`,
		status, time.Now().UTC(), uuid)
	if err != nil {
		return ferrors.Persistence("failed to update server status", err)
	}
	return nil
}

// UpdateServerMode flips a server between READ_ONLY and READ_WRITE.
func (r *Repository) UpdateServerMode(ctx context.Context, uuid string, mode Mode) error {
	_, err := r.db.ExecContext(ctx, `UPDATE servers SET mode = ?, update_time = ? WHERE server_uuid = ?`,
		mode, time.Now().UTC(), uuid)
	if err != nil {
		return ferrors.Persistence("failed to update server mode", err)
	}
	return nil
}

// CreateGroup inserts a new, initially INACTIVE (or caller-specified) group.
func (r *Repository) CreateGroup(ctx context.Context, g Group) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO groups (group_id, description, master_uuid, status, master_fail_time)
		VALUES (?, ?, NULLIF(?, ''), ?, ?)`,
		g.ID, g.Description, g.MasterUUID, g.Status, g.MasterFailTime)
	if err != nil {
		return ferrors.Persistence("failed to create group", err)
	}
	return nil
}

// GetGroup fetches a single group by id.
func (r *Repository) GetGroup(ctx context.Context, id string) (Group, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT group_id, description, COALESCE(master_uuid, ''), status, master_fail_time
		FROM groups WHERE group_id = ?`, id)
	var g Group
	if err := row.Scan(&g.ID, &g.Description, &g.MasterUUID, &g.Status, &g.MasterFailTime); err != nil {
		if err == sql.ErrNoRows {
			return Group{}, ferrors.Group("group not found: " + id)
		}
		return Group{}, ferrors.Persistence("failed to fetch group", err)
	}
	return g, nil
}

// ListGroups returns every known group.
func (r *Repository) ListGroups(ctx context.Context) ([]Group, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT group_id, description, COALESCE(master_uuid, ''), status, master_fail_time FROM groups`)
	if err != nil {
		return nil, ferrors.Persistence("failed to list groups", err)
	}
	defer rows.Close()

	var out []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Description, &g.MasterUUID, &g.Status, &g.MasterFailTime); err != nil {
			return nil, ferrors.Persistence("failed to scan group row", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// SetGroupMaster records groupID's current primary, or clears it when
// masterUUID is empty (the state Demote leaves a group in).
func (r *Repository) SetGroupMaster(ctx context.Context, groupID, masterUUID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE groups SET master_uuid = NULLIF(?, '') WHERE group_id = ?`,
		masterUUID, groupID)
	if err != nil {
		return ferrors.Persistence("failed to set group master", err)
	}
	return nil
}

// SetGroupStatus transitions a group's lifecycle state.
func (r *Repository) SetGroupStatus(ctx context.Context, groupID string, status GroupStatus) error {
	_, err := r.db.ExecContext(ctx, `UPDATE groups SET status = ? WHERE group_id = ?`, status, groupID)
	if err != nil {
		return ferrors.Persistence("failed to set group status", err)
	}
	return nil
}

// MarkMasterFailTime stamps the moment a group's primary was observed
// faulty, for operator-facing diagnostics; pass nil to clear it.
func (r *Repository) MarkMasterFailTime(ctx context.Context, groupID string, at *time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE groups SET master_fail_time = ? WHERE group_id = ?`, at, groupID)
	if err != nil {
		return ferrors.Persistence("failed to stamp master fail time", err)
	}
	return nil
}

// AddProvider registers a cloud/VM provider's metadata.
func (r *Repository) AddProvider(ctx context.Context, p Provider) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO providers (provider_id, kind, config) VALUES (?, ?, ?)`, p.ID, p.Kind, p.Config)
	if err != nil {
		return ferrors.Persistence("failed to add provider", err)
	}
	return nil
}

// AddMachine records a provisioned VM, optionally already bound to a server.
func (r *Repository) AddMachine(ctx context.Context, m Machine) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO machines (machine_id, provider_id, server_uuid) VALUES (?, ?, NULLIF(?, ''))`,
		m.ID, m.ProviderID, m.ServerUUID)
	if err != nil {
		return ferrors.Persistence("failed to add machine", err)
	}
	return nil
}

// MachineForServer returns the machine backing serverUUID, if any.
func (r *Repository) MachineForServer(ctx context.Context, serverUUID string) (Machine, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT machine_id, provider_id, COALESCE(server_uuid, '') FROM machines WHERE server_uuid = ?`, serverUUID)
	var m Machine
	if err := row.Scan(&m.ID, &m.ProviderID, &m.ServerUUID); err != nil {
		if err == sql.ErrNoRows {
			return Machine{}, ferrors.Server("no machine recorded for server: " + serverUUID)
		}
		return Machine{}, ferrors.Persistence("failed to fetch machine", err)
	}
	return m, nil
}
