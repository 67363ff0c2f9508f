/*
Package observability turns orchestrator lifecycle hooks into Prometheus metrics
and structured log lines.

Both return a domain.LifecycleHooks value; combine them with domain.MergeHooks and
pass the result to the engine with WithLifecycleHooks.
*/
package observability
