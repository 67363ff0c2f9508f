/*
Package ports defines the driven ports (interfaces) of the gocare orchestrator.

These interfaces decouple the state machine from external implementations, allowing
the same orchestrator to run against an in-memory directory, a SQL database or a remote
MCP user-record service, and to publish replies over any transport.

# Key Interfaces

  - IdentityStore: verifies an identifier/credential pair (success, pending or failure).
  - DataStore: read-only account data scoped to a verified user id.
  - AuditSink: append-only audit log.
  - IntentDetector and Responder: the opaque language layer.
  - ReplySink: the transport's outbound channel.
  - SnapshotStore: optional inspection snapshots of live sessions.
  - DistributedLocker: serialises turns of one session across replicas.
*/
package ports
