// Package client contains the reporter's view of the backend.
//
// # Overview
//
// The package provides:
//  1. The Client capability interface: Ping, ReportIncident, the two
//     notification listings, mark-read calls and presigned attachment
//     uploads.
//  2. GRPCClient, the production adapter. It speaks the rpc service over
//     gRPC and maps status codes to the sentinel errors of package common.
//  3. MemoryClient, an in-memory backend used by tests and the devserver.
//  4. InitDatabase, which opens the local SQLite store, applies migrations
//     and builds the repositories.
//
// # Error Handling
//
// Remote failures are classified with errors.Is against
// common.ErrTransientNetwork, common.ErrPermanentRejection and
// common.ErrUnauthorized.
package client
