// Package rpc implements the command-dispatch boundary layer: it maps a
// parsed client request to a synchronous state-store read or an
// asynchronous procedure trigger, and shapes every response into the wire
// contract spec.md §6 describes for the (now out-of-scope) XML-RPC and
// MySQL-RPC servers: a header of (fabric_uuid, ttl, error?) followed by
// zero or more result sets, a procedure-style command's first result set
// being (procedure_uuid, complete, success, return_value, activities).
package rpc

import "github.com/signal18/fabricd/internal/executor"

// ErrorInfo is the envelope's optional error field: a stable code plus a
// human diagnosis, matching internal/ferrors.Error's Code/Msg split.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope is the header every command response carries, plus its result
// sets. ResultSets is omitted for commands with none (e.g. a bare ack).
type Envelope struct {
	FabricUUID string     `json:"fabric_uuid"`
	TTL        int        `json:"ttl"`
	Error      *ErrorInfo `json:"error,omitempty"`
	ResultSets []any      `json:"result_sets,omitempty"`
}

// Activity is one line of a procedure's status trail.
type Activity struct {
	JobUUID   string `json:"job_uuid"`
	Action    string `json:"action"`
	Result    string `json:"result"`
	Diagnosis string `json:"diagnosis,omitempty"`
}

// ProcedureResult is a procedure-style command's first result set.
type ProcedureResult struct {
	ProcedureUUID string     `json:"procedure_uuid"`
	Complete      bool       `json:"complete"`
	Success       bool       `json:"success"`
	ReturnValue   any        `json:"return_value"`
	Activities    []Activity `json:"activities"`
}

func procedureResult(view executor.ProcedureView) ProcedureResult {
	pr := ProcedureResult{
		ProcedureUUID: view.UUID,
		Complete:      view.Complete,
		Success:       view.Success,
		ReturnValue:   view.ReturnValue,
	}
	for _, a := range view.Activities {
		pr.Activities = append(pr.Activities, Activity{
			JobUUID:   a.JobUUID,
			Action:    a.Action,
			Result:    string(a.Result),
			Diagnosis: a.Diagnosis,
		})
	}
	return pr
}
