// Package channels implements the domain adapters on top of the connection
// layer: topology, metrics, and alerts. Each adapter owns exactly one Conn
// bound to its endpoint path, folds inbound envelopes into small derived
// maps keyed by entity id (last write wins, entries are never deleted), and
// exposes narrow action methods that build outbound frames. Envelopes with
// discriminators an adapter does not recognize are ignored, not errors, so
// server-side additions do not break existing dashboards.
package channels
