/*
Package transport turns a config.Endpoint into concrete byte streams that
pkg/dispatcher can bind: plain TCP, or QUIC for the unreliable-but-ordered,
multiplexing-at-the-wire-level transport the discovery and NAT-traversal
layers prefer. Both protocols are presented through the same Listener/Dial
surface so the rest of the core never branches on which one a peer was
reached over.
*/
package transport
