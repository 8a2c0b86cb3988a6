// Package rpc is the client side of a small JSON-over-TCP request/response
// protocol used to reach the model-serving sidecars. Each frame is one JSON
// document; a connection carries one outstanding request at a time.
//
//	c := rpc.NewClient("localhost:50061", 5*time.Second)
//	var resp EmbedResponse
//	err := c.Call(ctx, "Inference.Embed", &EmbedRequest{...}, &resp)
//
// Package rpctest serves the same protocol for tests.
package rpc

import "encoding/json"

// Request is the wire format for an RPC request.
type Request struct {
	Method string          `json:"method"`
	ID     string          `json:"id"`
	Params json.RawMessage `json:"params"`
}

// Response is the wire format for an RPC response. A non-empty Error is
// surfaced to the caller as a *RemoteError.
type Response struct {
	ID    string          `json:"id"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}
