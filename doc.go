// Package paramsync synchronizes named, typed, bounded application
// parameters with an external control surface and a persisted settings
// file.
//
// # Architecture
//
// A host application declares parameter structs and binds their fields to
// control identifiers through the param package. The registry package holds
// one reconciliation record per registered type and drives the sync cycle:
//
//	control events -> valuestore.Store -> param.Apply -> persist on change
//
// Incoming events carry a (control id, normalized value) pair, where the
// normalized value is the raw position of a continuous control in [0, 1].
// The mapping package declares how each control scales into a field's value
// domain; the persist package stores one flat document per registered type
// inside a shared settings file, on the filesystem or in a NATS key-value
// bucket.
//
// # Packages
//
//   - mapping: control-to-field mapping declarations and scaling math
//   - valuestore: latest-value-per-control store with a buffered ingest path
//   - param: parameter capability interface, field binder, sync engine
//   - persist: document model and file/KV backed stores
//   - registry: reconciliation controller (seed, apply, save-on-change)
//   - input/udp, input/websocket: control event sources
//   - errors: classified error handling shared by all packages
//   - metric: prometheus registry and metrics HTTP server
//
// The cmd/paramsync program shows a complete host wiring.
package paramsync
