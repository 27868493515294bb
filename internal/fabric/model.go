// Package fabric holds the farm's structural state: servers, the
// replication groups they belong to, and the cloud provisioning metadata
// (providers, machines) an operator may attach to a server. It is a plain
// data layer — HA and sharding procedures read and mutate it through
// Repository, but the invariants they must uphold (exactly one PRIMARY,
// valid mode/status combinations) live here so every caller checks them
// the same way.
package fabric

import "time"

// Mode is a server's read/write posture.
type Mode string

const (
	ModeReadWrite Mode = "READ_WRITE"
	ModeReadOnly  Mode = "READ_ONLY"
)

// Status is a server's role within its group.
type Status string

const (
	StatusPrimary     Status = "PRIMARY"
	StatusSecondary   Status = "SECONDARY"
	StatusSpare       Status = "SPARE"
	StatusFaulty      Status = "FAULTY"
	StatusConfiguring Status = "CONFIGURING"
)

// GroupStatus is a replication group's overall lifecycle state.
type GroupStatus string

const (
	GroupActive      GroupStatus = "ACTIVE"
	GroupInactive    GroupStatus = "INACTIVE"
	GroupConfiguring GroupStatus = "CONFIGURING"
)

// RequiredPrivileges are the global privileges a server's configured user
// must hold before it can be added to a group (§4.7).
var RequiredPrivileges = []string{
	"REPLICATION SLAVE",
	"REPLICATION CLIENT",
	"SUPER",
	"SHOW DATABASES",
	"RELOAD",
}

// Server is one managed MySQL instance. UUID is the server_uuid MySQL
// itself reports — discovering it is a prerequisite to adding the server.
type Server struct {
	UUID      string
	GroupID   string
	Address   string
	Mode      Mode
	Status    Status
	Weight    float64
	UpdatedAt time.Time
}

// Group is a replication group: at most one member may hold PRIMARY.
type Group struct {
	ID             string
	Description    string
	MasterUUID     string
	Status         GroupStatus
	MasterFailTime *time.Time
}

// Provider is a cloud/VM provider an operator has registered, so Machine
// rows can be attributed to one without fabricd knowing how to provision it.
type Provider struct {
	ID     string
	Kind   string
	Config string
}

// Machine is a provisioned VM backing a Server, if the server was created
// through a registered Provider rather than added by address alone.
type Machine struct {
	ID         string
	ProviderID string
	ServerUUID string
}
