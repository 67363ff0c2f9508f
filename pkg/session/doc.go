/*
Package session holds the per-connection ConversationSession and the registry of
live sessions.

A Conversation owns one orchestrator and processes its turns strictly one at a
time on a single worker goroutine. The Manager creates conversations, serialises
turns per session across replicas through an optional distributed lock, and keeps
inspection snapshots that are deleted when the session is torn down.
*/
package session
