// Copyright (c) Gemigate Authors.
// Licensed under the MIT License.

/*
Package main is the gemigate process entry point.

It loads configuration, builds a logger, and assembles the gateway's
collaborators (key pool, rate limiters, upstream client, retry policy,
metrics, tracing, and logging sink) through the gateway package. Route
declaration and request parsing are deliberately not this package's job —
gemigate is a library-shaped core a host HTTP server wires in, not a
standalone web framework.

Subcommands: version (print build metadata), migrate (apply the gormsink
reference sink's SQLite schema), assemble (build every collaborator
against the loaded config and report success, without binding a
listener — this package declares no HTTP routes).
*/
package main
