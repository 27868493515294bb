// Package httpgw is the HTTP+JSON boundary layer implementing spec.md §6's
// call/response contract in place of the out-of-scope XML-RPC and
// MySQL-wire-protocol servers (only their call/response contract matters,
// per spec.md §1). Routes map one-to-one to rpc.Service commands; all
// response shaping happens in rpc, not here.
package httpgw

import (
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/signal18/fabricd/internal/rpc"
)

// NewRouter builds the gateway's mux.Router, wired to svc.
func NewRouter(svc *rpc.Service, log zerolog.Logger) *mux.Router {
	h := NewHandlers(svc, log)
	r := mux.NewRouter()

	r.HandleFunc("/api/groups/{groupID}", h.GetGroup).Methods("GET")
	r.HandleFunc("/api/groups/{groupID}/servers", h.ListServers).Methods("GET")
	r.HandleFunc("/api/groups/{groupID}/servers", h.AddServer).Methods("POST")
	r.HandleFunc("/api/groups/{groupID}/promote", h.Promote).Methods("POST")
	r.HandleFunc("/api/groups/{groupID}/demote", h.Demote).Methods("POST")
	r.HandleFunc("/api/groups/{groupID}/datadirs", h.ListDatadirs).Methods("GET")
	r.HandleFunc("/api/servers/{serverUUID}", h.RemoveServer).Methods("DELETE")

	r.HandleFunc("/api/sharding/mappings", h.DefineMapping).Methods("POST")
	r.HandleFunc("/api/sharding/mappings/{mappingID}/tables", h.AddTable).Methods("POST")
	r.HandleFunc("/api/sharding/mappings/{mappingID}/shards", h.AddShard).Methods("POST")
	r.HandleFunc("/api/sharding/tables/prune", h.PruneShard).Methods("POST")
	r.HandleFunc("/api/sharding/shards/{shardID}/enable", h.EnableShard).Methods("POST")
	r.HandleFunc("/api/sharding/shards/{shardID}/disable", h.DisableShard).Methods("POST")
	r.HandleFunc("/api/sharding/shards/{shardID}/split", h.SplitShard).Methods("POST")
	r.HandleFunc("/api/sharding/shards/{shardID}/move", h.MoveShard).Methods("POST")
	r.HandleFunc("/api/sharding/lookup", h.Lookup).Methods("GET")

	r.HandleFunc("/api/threats/report_error", h.ReportError).Methods("POST")
	r.HandleFunc("/api/threats/report_failure", h.ReportFailure).Methods("POST")

	r.HandleFunc("/api/procedures/{procedureUUID}", h.GetProcedure).Methods("GET")

	return r
}
