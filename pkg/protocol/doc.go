/*
Package protocol implements the replication protocol (§4.6): a per-
connection handshake that exchanges and authenticates runtime identities,
and a symmetric Client/Server pair run per registered repository over a
pkg/dispatcher channel, gossiping signed branch roots and pulling missing
blocks through a pkg/missingparts tracker.

Nothing here touches a transport directly; a Client or Server is handed a
dispatcher.ContentStream to read and write Request/Response messages on, so
the same protocol logic runs unmodified whether the underlying connection is
QUIC or TCP.
*/
package protocol
