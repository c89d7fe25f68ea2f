/*
Package domain contains the data that flows through a bandsaw session.

It defines the Task being executed, the Execution (one invocation with its
arguments), the Result of a task, the write-once Context that advices share,
and the typed errors used by the engine. The package does no I/O.
*/
package domain
