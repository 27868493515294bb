package httpgw

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/signal18/fabricd/internal/rpc"
)

// writeEnvelope renders env as the HTTP response. The wire contract (§6)
// has no notion of HTTP status codes — every command answers 200 with an
// envelope whose Error field carries the failure, the same way the XML-RPC
// and MySQL-wire surfaces this gateway stands in for always return 200 at
// their own transport layer and surface failure in the payload.
func writeEnvelope(w http.ResponseWriter, log zerolog.Logger, env rpc.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		log.Error().Err(err).Msg("httpgw: failed to encode response envelope")
	}
}

// writeBadRequest answers a request the gateway itself rejected before it
// ever reached the Service (malformed JSON, missing path/query params) —
// these never reached a command, so they get a real 400 rather than an
// Envelope with an Error field.
func writeBadRequest(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
