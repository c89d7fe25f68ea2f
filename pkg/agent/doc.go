/*
Package agent implements the HTTP side of the remote transport.

An agent serves a root directory. Bundles and snapshots are uploaded into it,
bundles are executed with the root as working directory, and results are
downloaded again:

	PUT  /files/{path}   upload, X-File-Mode carries the octal permissions
	GET  /files/{path}   download
	POST /exec           {"executable": ..., "args": [...]} -> {"exit_code": ...}
	GET  /healthz
	GET  /metrics        Prometheus

Paths are resolved inside the root; anything pointing outside is rejected.
The remote.HTTPBackend is the matching client.
*/
package agent
