// Package treeapi defines the TreeService RPC surface shared by the tree server
// and its clients. Messages are plain structs carried by a JSON codec, since tree
// values are arbitrary JSON and have no fixed schema.
package treeapi

import (
	"encoding/json"
)

const (
	// TreeServiceName is the fully-qualified name of the TreeService service.
	TreeServiceName = "tripsync.v1.TreeService"
)

// Procedure paths of the TreeService RPCs.
const (
	TreeServiceGetProcedure       = "/tripsync.v1.TreeService/Get"
	TreeServiceWriteProcedure     = "/tripsync.v1.TreeService/Write"
	TreeServiceAppendProcedure    = "/tripsync.v1.TreeService/Append"
	TreeServiceDeleteProcedure    = "/tripsync.v1.TreeService/Delete"
	TreeServiceSubscribeProcedure = "/tripsync.v1.TreeService/Subscribe"
)

// ParticipantHeader carries the caller's participant ID for log attribution.
const ParticipantHeader = "X-Participant-Id"

type GetRequest struct {
	Path string `json:"path"`
}

type GetResponse struct {
	// Value is absent when the node does not exist.
	Value json.RawMessage `json:"value,omitempty"`
}

type WriteRequest struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value,omitempty"`
}

type WriteResponse struct{}

type AppendRequest struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value,omitempty"`
}

type AppendResponse struct {
	Key string `json:"key"`
}

type DeleteRequest struct {
	Path string `json:"path"`
}

type DeleteResponse struct{}

type SubscribeRequest struct {
	Path string `json:"path"`
}

// Snapshot is one message of the Subscribe stream.
type Snapshot struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value,omitempty"`
}
