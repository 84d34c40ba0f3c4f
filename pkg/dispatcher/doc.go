/*
Package dispatcher multiplexes arbitrarily many logical channels over one or
more framed byte streams to a single remote peer (§4.5). A Dispatcher may
have several concrete streams bound at once (e.g. QUIC and TCP to the same
peer); sends pick the first live sink, failed sinks are dropped, and the
dispatcher keeps working as long as one remains.

Every frame carries (channel, seq_num, content); a single receive loop per
bound stream fans incoming frames into per-channel queues that consumers
drain through a ContentStream, waking on a shared change-notifier so a
message arriving for channel A does not starve a consumer awaiting channel
B.
*/
package dispatcher
