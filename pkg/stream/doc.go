// Package stream provides the resilient telemetry connections between
// a surface context and the audio engine.
//
// A Conn wraps one duplex channel to one logical endpoint and owns its
// connection state machine:
//
//	disconnected -> connecting -> connected -> disconnected -> ...
//	                    \-> error (connect attempt failed)
//
// Every involuntary exit from connected or connecting schedules a
// reconnect after a fixed delay; the loop stops only when the owner
// tears the connection down. A closing guard is set before the channel
// is closed intentionally and checked by every event path, so events
// racing the teardown are ignored and the reconnect loop cannot
// outlive its owner.
//
// Frames are newline-delimited JSON. A frame that fails to parse is
// logged and dropped; it never kills the connection. Send while not
// connected is silently dropped - there is no outbound queue.
//
// The Manager multiplexes connections: any number of independent
// subscribers to the same endpoint share exactly one underlying Conn.
// Disconnecting an endpoint affects all of its subscribers; merely
// unsubscribing a listener never closes the shared connection.
package stream
