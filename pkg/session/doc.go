/*
Package session implements the continuation engine of bandsaw.

A Session wraps the execution of a task in a chain of advices. The chain
position is tracked by a Moderator whose counters are the complete resumable
state of the session: an advice can Save the session, move the snapshot to
another goroutine, process or host, Restore it there and Proceed. The
continuing side walks the rest of the chain and hands the snapshot back.

# Lifecycle

	cfg := session.NewConfiguration("app", session.WithAdviceChain("default", advice))
	_ = session.Register(cfg)
	s, _ := session.New(domain.NewTask("add", nil), domain.NewExecution(1, 2), cfg)
	value, err := s.Initiate(ctx)

Configurations are registered by name because snapshots only carry the name
of their configuration and advice chain.
*/
package session
