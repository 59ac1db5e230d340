// Package envelope defines the wire unit exchanged with the realtime backend.
//
// Every frame is a UTF-8 text payload carrying a JSON object with a required
// "type" discriminator. Inbound frames that are not valid JSON are retained
// as raw text rather than dropped, so diagnostics views can still display
// them. Outbound frames are built by the New* constructors and carry a
// request id for server-side correlation.
package envelope
