/*
Package domain contains the core domain model of the gocare session orchestrator.

It defines the roles a conversation moves through, the per-session context the
orchestrator owns, the transitions role handlers return, and the error taxonomy used
across the module. The package is kept pure: no I/O, no persistence, no transport.

# Key Entities

  - Role: one of Greeting, Authenticating, Main, Helpline or Locked.
  - SessionContext: the mutable identity/attempt state of one conversation.
  - Transition: a handler's request to change role and patch the context.
  - Intent: the action (and arguments) detected for one utterance.
  - Policy: product-level switches the orchestrator honours (escalation, lockout wording).
*/
package domain
