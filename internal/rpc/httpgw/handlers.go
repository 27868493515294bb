package httpgw

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/signal18/fabricd/internal/rpc"
	"github.com/signal18/fabricd/internal/sharding"
)

// Handlers is a thin HTTP transport over rpc.Service: it parses a request
// into the command's arguments, calls the Service, and writes back the
// resulting Envelope. No business logic lives here.
type Handlers struct {
	svc *rpc.Service
	log zerolog.Logger
}

// NewHandlers builds a Handlers bound to svc.
func NewHandlers(svc *rpc.Service, log zerolog.Logger) *Handlers {
	return &Handlers{svc: svc, log: log}
}

func wantsWait(r *http.Request) bool {
	return r.URL.Query().Get("wait") == "true"
}

func (h *Handlers) respond(w http.ResponseWriter, env rpc.Envelope) {
	writeEnvelope(w, h.log, env)
}

// Promote handles POST /api/groups/{groupID}/promote
func (h *Handlers) Promote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Candidate  string `json:"candidate"`
		UpdateOnly bool   `json:"update_only"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}
	groupID := mux.Vars(r)["groupID"]
	h.respond(w, h.svc.Promote(r.Context(), groupID, body.Candidate, body.UpdateOnly, wantsWait(r)))
}

// Demote handles POST /api/groups/{groupID}/demote
func (h *Handlers) Demote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UpdateOnly bool `json:"update_only"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}
	groupID := mux.Vars(r)["groupID"]
	h.respond(w, h.svc.Demote(r.Context(), groupID, body.UpdateOnly, wantsWait(r)))
}

// AddServer handles POST /api/groups/{groupID}/servers
func (h *Handlers) AddServer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	groupID := mux.Vars(r)["groupID"]
	h.respond(w, h.svc.AddServer(r.Context(), groupID, body.Address, wantsWait(r)))
}

// RemoveServer handles DELETE /api/servers/{serverUUID}
func (h *Handlers) RemoveServer(w http.ResponseWriter, r *http.Request) {
	serverUUID := mux.Vars(r)["serverUUID"]
	h.respond(w, h.svc.RemoveServer(r.Context(), serverUUID, wantsWait(r)))
}

// ListServers handles GET /api/groups/{groupID}/servers
func (h *Handlers) ListServers(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupID"]
	h.respond(w, h.svc.LookupServers(r.Context(), groupID))
}

// GetGroup handles GET /api/groups/{groupID}
func (h *Handlers) GetGroup(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupID"]
	h.respond(w, h.svc.LookupGroup(r.Context(), groupID))
}

// ListDatadirs handles GET /api/groups/{groupID}/datadirs
func (h *Handlers) ListDatadirs(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupID"]
	h.respond(w, h.svc.ListDatadirs(r.Context(), groupID))
}

// ReportError handles POST /api/threats/report_error
func (h *Handlers) ReportError(w http.ResponseWriter, r *http.Request) {
	var body struct {
		GroupID    string `json:"group_id"`
		ServerUUID string `json:"server_uuid"`
		Reporter   string `json:"reporter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	h.respond(w, h.svc.ReportError(r.Context(), body.GroupID, body.ServerUUID, body.Reporter))
}

// ReportFailure handles POST /api/threats/report_failure
func (h *Handlers) ReportFailure(w http.ResponseWriter, r *http.Request) {
	var body struct {
		GroupID    string `json:"group_id"`
		ServerUUID string `json:"server_uuid"`
		Reporter   string `json:"reporter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	h.respond(w, h.svc.ReportFailure(r.Context(), body.GroupID, body.ServerUUID, body.Reporter))
}

// DefineMapping handles POST /api/sharding/mappings
func (h *Handlers) DefineMapping(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type          sharding.MappingType `json:"type"`
		GlobalGroupID string               `json:"global_group_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	h.respond(w, h.svc.DefineMapping(r.Context(), body.Type, body.GlobalGroupID, wantsWait(r)))
}

// AddTable handles POST /api/sharding/mappings/{mappingID}/tables
func (h *Handlers) AddTable(w http.ResponseWriter, r *http.Request) {
	mappingID, err := strconv.ParseInt(mux.Vars(r)["mappingID"], 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid mappingID")
		return
	}
	var body struct {
		QualifiedName string `json:"qualified_name"`
		Column        string `json:"column"`
		IsAnchor      bool   `json:"is_anchor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	req := sharding.AddTableRequest{
		MappingID: mappingID, QualifiedName: body.QualifiedName, Column: body.Column, IsAnchor: body.IsAnchor,
	}
	h.respond(w, h.svc.AddTable(r.Context(), req, wantsWait(r)))
}

// AddShard handles POST /api/sharding/mappings/{mappingID}/shards
func (h *Handlers) AddShard(w http.ResponseWriter, r *http.Request) {
	mappingID, err := strconv.ParseInt(mux.Vars(r)["mappingID"], 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid mappingID")
		return
	}
	var body struct {
		GroupID string              `json:"group_id"`
		Bound   string              `json:"bound"`
		State   sharding.ShardState `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	req := sharding.AddShardRequest{MappingID: mappingID, GroupID: body.GroupID, Bound: body.Bound, State: body.State}
	h.respond(w, h.svc.AddShard(r.Context(), req, wantsWait(r)))
}

// PruneShard handles POST /api/sharding/tables/prune
func (h *Handlers) PruneShard(w http.ResponseWriter, r *http.Request) {
	var body struct {
		QualifiedName string `json:"qualified_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	h.respond(w, h.svc.PruneShard(r.Context(), body.QualifiedName, wantsWait(r)))
}

// EnableShard handles POST /api/sharding/shards/{shardID}/enable
func (h *Handlers) EnableShard(w http.ResponseWriter, r *http.Request) {
	shardID, err := strconv.ParseInt(mux.Vars(r)["shardID"], 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid shardID")
		return
	}
	h.respond(w, h.svc.EnableShard(r.Context(), shardID, wantsWait(r)))
}

// DisableShard handles POST /api/sharding/shards/{shardID}/disable
func (h *Handlers) DisableShard(w http.ResponseWriter, r *http.Request) {
	shardID, err := strconv.ParseInt(mux.Vars(r)["shardID"], 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid shardID")
		return
	}
	h.respond(w, h.svc.DisableShard(r.Context(), shardID, wantsWait(r)))
}

// SplitShard handles POST /api/sharding/shards/{shardID}/split
func (h *Handlers) SplitShard(w http.ResponseWriter, r *http.Request) {
	shardID, err := strconv.ParseInt(mux.Vars(r)["shardID"], 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid shardID")
		return
	}
	var body struct {
		MappingID   int64  `json:"mapping_id"`
		DestGroupID string `json:"dest_group_id"`
		SplitPoint  string `json:"split_point"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	req := sharding.SplitShardRequest{
		MappingID: body.MappingID, ShardID: shardID, DestGroupID: body.DestGroupID, SplitPoint: body.SplitPoint,
	}
	h.respond(w, h.svc.SplitShard(r.Context(), req, wantsWait(r)))
}

// MoveShard handles POST /api/sharding/shards/{shardID}/move
func (h *Handlers) MoveShard(w http.ResponseWriter, r *http.Request) {
	shardID, err := strconv.ParseInt(mux.Vars(r)["shardID"], 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid shardID")
		return
	}
	var body struct {
		DestGroupID string `json:"dest_group_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	req := sharding.MoveShardRequest{ShardID: shardID, DestGroupID: body.DestGroupID}
	h.respond(w, h.svc.MoveShard(r.Context(), req, wantsWait(r)))
}

// Lookup handles GET /api/sharding/lookup?table=...&key=...&hint=local|global
func (h *Handlers) Lookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	table, key := q.Get("table"), q.Get("key")
	if table == "" || key == "" {
		writeBadRequest(w, "table and key query params are required")
		return
	}
	hint := sharding.HintLocal
	if q.Get("hint") == string(sharding.HintGlobal) {
		hint = sharding.HintGlobal
	}
	h.respond(w, h.svc.Lookup(r.Context(), table, key, hint))
}

// GetProcedure handles GET /api/procedures/{procedureUUID}
func (h *Handlers) GetProcedure(w http.ResponseWriter, r *http.Request) {
	procedureUUID := mux.Vars(r)["procedureUUID"]
	h.respond(w, h.svc.GetProcedure(r.Context(), procedureUUID))
}
