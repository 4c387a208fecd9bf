// Package health provides liveness and readiness probes and their HTTP handlers.
//
// Probes compose with [All] and [Any]. [ShutdownGate] fails readiness as soon
// as shutdown starts so load balancers drain the instance before listeners close.
package health
