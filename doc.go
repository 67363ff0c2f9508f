/*
Package gocare orchestrates authenticated voice support calls.

A call moves through five roles: greeting, authenticating, main, helpline and
locked. Each role is a handler that reads one utterance (or an explicit action)
and proposes a transition; the engine checks it against a fixed transition
table and commits it atomically. A security filter refuses requests for
credentials before any role sees them.

# Concept

The engine owns the state machine. Your application ("Host") owns speech I/O
and the user-record service, reached through the ports.IdentityStore and
ports.DataStore interfaces. Adapters exist for memory, SQL and MCP directories,
and for memory, Redis and SQL session snapshots.

# Usage

	line := gocare.New(nil) // demo directory

	conv, greet, err := line.Open(ctx, "", domain.Handshake{})
	if err != nil {
		log.Fatal(err)
	}
	defer line.Manager().Close(ctx, conv.ID())

	speak(greet.Replies)
	for text := range utterances {
		res, err := conv.HandleUtterance(ctx, text)
		if err != nil {
			log.Fatal(err)
		}
		speak(res.Replies)
	}
*/
package gocare
