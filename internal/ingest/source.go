// Package ingest implements the Ingest Multiplexer of spec §4.0/§6: five
// interchangeable event-source transports (mock, socket, websocket, http,
// and the supplemental redis mode) behind one Source interface, grounded
// on original_source/src/ingest/*.py.
package ingest

import "context"

// Source is one event-source transport. Connect is called once before the
// first Read; Read is called repeatedly and may block until an event is
// available or ctx is canceled; Close releases any held resources.
type Source interface {
	Connect(ctx context.Context) error
	Read(ctx context.Context) ([]byte, error)
	Close(ctx context.Context) error
}
