/*
Package events is the replication core's observability bus: a small
non-blocking pub/sub broker that the protocol and repository layers publish
to, and that an embedder subscribes to for protocol_version_mismatch,
peer_set_change, and repository_changed(block_received) notifications. It
carries no control-flow meaning of its own — a missed or dropped event never
leaves any other package in an inconsistent state.
*/
package events
