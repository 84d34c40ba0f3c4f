/*
Package blockstore implements the content-addressed block store: put, get,
exists and remove over encrypted blocks, keyed by BlockId.

Modeled after the put/get/has pattern common to content-addressed stores
(other_examples' blockstore-over-a-KV-store implementations), adapted here
onto pkg/store's SQLite connection rather than a raw key-value bucket,
since block rows live alongside the index's root/inner/leaf node rows in
one repository database.

This package never decrypts: it stores and returns ciphertext and an
authentication tag, exactly as pkg/crypto.SealBlock produced them. Only
pkg/repository, which holds the key, calls pkg/crypto.OpenBlockWithNonce on
what this package returns.
*/
package blockstore
