// Package harness executes YAML-described multi-machine sync scenarios
// against a real store and real client/server sessions wired over in-memory
// pipes.
//
// A scenario declares a set of machines with initial history files, an
// optional pre-seeded store, an ordered list of sync sessions, and
// assertions over the final store contents and history files. The harness
// runs the exact production code path — client orchestrator, wire protocol,
// server orchestrator, SQLite store — with only the ssh transport replaced
// by a pipe.
//
// Golden snapshots freeze the full end state (store dump plus every
// machine's final file) so convergence regressions show up as a diff.
package harness
