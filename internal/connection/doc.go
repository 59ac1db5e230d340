// Package connection implements the resilient socket client behind the
// live dashboard channels.
//
// A Conn owns exactly one websocket and its lifecycle state machine:
//
//	disconnected --Connect()--> connecting
//	connecting --dial ok--> connected
//	connecting --timeout / dial error--> error
//	connected --clean close (1000)--> disconnected
//	connected --unclean close / read error--> error
//	error --reconnect timer--> connecting   [autoReconnect && attempts remain]
//	any --Disconnect()--> disconnected      [auto-reconnect disabled]
//
// Reconnection uses capped exponential backoff driven by a ReconnectPolicy
// value object. Inbound frames are parsed into envelopes, counted, kept in a
// bounded history ring, and fanned out over the message bus; consumers never
// touch the socket handle.
package connection
