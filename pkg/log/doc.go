/*
Package log wraps zerolog with the replication core's logging conventions:
a global Logger initialized once via Init, and per-concern child loggers
(WithComponent, WithRepositoryID, WithPeerID) that attach the fields worth
filtering or grepping on without threading them through every call site.
*/
package log
