/*
Package localstate persists the handful of facts the replication core needs
across restarts that are not scoped to any one repository: the device's own
random identifier, the list of repositories it has registered (where their
databases live and the sharetoken-encoded secrets needed to reopen them),
and the set of addresses recorded as our own runtime id. This package only
stores and answers lookups on that set; pkg/protocol's Connector neither
records self-connections into it nor consults it before dialing.

It is backed by a single BoltDB (go.etcd.io/bbolt) file, one bucket per
concern, matching the teacher's bucket-per-entity, JSON-per-value storage
pattern rather than giving each concern its own schema.
*/
package localstate
