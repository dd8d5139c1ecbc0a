// Package harness runs conformance scenarios against the dispatcher.
//
// A scenario seeds a fresh in-memory target store, applies a task batch
// through engine.Dispatcher with recording connectors, and evaluates
// assertions on the outcome. The final state can also be compared with a
// golden digest.
//
// # Scenario Format
//
//	name: document_lifecycle
//	description: "What this scenario validates"
//	run_id: run-1
//	workers: 1
//	config: |
//	  connector: search: {}
//	  subscription: [{connector: "search", kind: "document", process: "Sync"}]
//	seed:
//	  sites: [main]
//	fail:
//	  - {connector: search, seq: 3}
//	tasks:
//	  - seq: 1
//	    type: CreateDocument
//	    site: main
//	    payload:
//	      CMS_Document:
//	        - {NodeGUID: ..., DocumentGUID: ..., NodeAliasPath: /News, DocumentCulture: en-US}
//	assertions:
//	  - {type: task_status, seq: 1, status: applied}
//	  - {type: delivery_order, connector: search, seqs: [1]}
//	  - {type: queue_count, connector: audit, count: 0}
//	  - type: final_state
//	    table: documents
//	    where: {culture: en-US}
//	    expect: {name: News}
//
// Tasks use the batch file format of ir.BatchTask. Every configured
// connector is backed by an engine.RecordingConnector; fail rules make a
// connector reject the delivery of one task.
//
// # Determinism
//
// Scenarios run with a fixed run ID, an in-memory SQLite store and seeded
// site GUIDs from testutil.GUID, so the digest is identical across runs.
package harness
