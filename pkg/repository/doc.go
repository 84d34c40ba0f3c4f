/*
Package repository implements the blob/directory/file layer that sits on
top of pkg/index and pkg/blockstore: the part of the replication
core that a caller actually opens files and directories through.

A Branch is one writer's view of the Merkle index: it resolves locators to
block ids by walking the bucket path down from that writer's current root,
and commits batches of locator changes back up into a brand new root.

A Blob is a byte sequence addressed by a head locator, split across fixed-
size blocks the way §4.1/§4.3 describe. Each OpenBlob or CreateBlob call
builds its own blobCore (length, dirty bitmap, cached block plaintext);
two handles opened separately on the same blob do not share one, so an
unflushed write through one handle is not visible through the other.

A Directory is a Blob whose decrypted content deserializes to the
name -> writer -> entry map described in §4.3, with insertion, removal and
rename semantics on top. A File is a Blob plus a Parent reference (the
directory and entry name that reference it) so that a mutation can walk up
the ancestor chain and bump every directory's version vector on flush.
*/
package repository
