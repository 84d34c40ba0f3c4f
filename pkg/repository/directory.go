package repository

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/go-msgpack/v2/codec"

	"github.com/J-Pabon/ouisync/pkg/crypto"
	"github.com/J-Pabon/ouisync/pkg/errs"
)

var msgpackHandle codec.MsgpackHandle

// RootBlobID is the conventional blob id every branch's root directory is
// stored under. Unlike every other blob, the root has no parent entry
// pointing to it, so its address cannot be a randomly generated id handed
// out by a CreateBlob call the way every other blob's is; it must be a
// value both sides of a branch agree on in advance.
var RootBlobID = crypto.Hash{}

// EntryType distinguishes what kind of content a directory entry's blob id
// addresses.
type EntryType int

const (
	EntryFile EntryType = iota
	EntryDirectory
	EntryTombstone
)

// Entry is one (writer, version vector)-tagged version of a directory slot.
// Multiple writers may have concurrent entries under the same name; see
// Directory.Insert.
type Entry struct {
	Type          EntryType
	BlobID        crypto.Hash
	VersionVector crypto.VersionVector
}

// wireEntry is Entry's on-disk shape: flat, fixed-size fields so msgpack
// encodes it compactly and deterministically.
type wireEntry struct {
	Name          string
	Writer        []byte
	Type          int
	BlobID        []byte
	VersionVector []byte
}

// Directory is a Blob whose content deserializes to a name -> writer ->
// Entry map, with insertion, removal and rename semantics layered on top.
//
// Unlike the original implementation's reference-counted arena of open
// directories (needed there to avoid ownership cycles without a garbage
// collector), Directory simply holds a direct pointer to its parent: Go's
// garbage collector reclaims cycles on its own, so there is nothing to
// work around here.
type Directory struct {
	blob   *Blob
	branch *Branch

	parent            *Directory
	parentEntryName   string
	parentEntryWriter crypto.WriterID

	entries map[string]map[crypto.WriterID]Entry
	dirty   bool
}

// OpenRoot opens branch's root directory, creating it empty if it does not
// exist yet.
func OpenRoot(ctx context.Context, branch *Branch) (*Directory, error) {
	blob, err := OpenBlob(ctx, branch, RootBlobID)
	if err != nil {
		if errorIsNotFound(err) {
			return CreateRoot(branch)
		}
		return nil, err
	}
	return decodeDirectory(ctx, branch, blob, nil, "", crypto.WriterID{})
}

// CreateRoot creates an empty root directory for branch, without persisting
// it; call Flush to make it visible.
func CreateRoot(branch *Branch) (*Directory, error) {
	blob, err := CreateBlob(branch)
	if err != nil {
		return nil, err
	}
	blob.core.blobID = RootBlobID
	blob.core.key = crypto.DeriveBlockKey(branch.readKey, RootBlobID)
	return &Directory{
		blob:    blob,
		branch:  branch,
		entries: make(map[string]map[crypto.WriterID]Entry),
		dirty:   true,
	}, nil
}

// OpenSubdirectory opens the subdirectory stored at entry.BlobID of d,
// reached through name/writer.
func OpenSubdirectory(ctx context.Context, d *Directory, name string, writer crypto.WriterID) (*Directory, error) {
	entry, ok := d.Entry(name, writer)
	if !ok {
		return nil, fmt.Errorf("repository: open subdirectory %q: %w", name, errs.NotFound)
	}
	if entry.Type != EntryDirectory {
		return nil, fmt.Errorf("repository: open subdirectory %q: %w", name, errs.EntryNotDirectory)
	}
	blob, err := OpenBlob(ctx, d.branch, entry.BlobID)
	if err != nil {
		return nil, err
	}
	return decodeDirectory(ctx, d.branch, blob, d, name, writer)
}

// CreateSubdirectory creates a new, empty subdirectory blob; the caller
// must still Insert it into d under the name it will be known by.
func CreateSubdirectory(d *Directory, name string, writer crypto.WriterID) (*Directory, error) {
	blob, err := CreateBlob(d.branch)
	if err != nil {
		return nil, err
	}
	return &Directory{
		blob:              blob,
		branch:            d.branch,
		parent:            d,
		parentEntryName:   name,
		parentEntryWriter: writer,
		entries:           make(map[string]map[crypto.WriterID]Entry),
		dirty:             true,
	}, nil
}

func decodeDirectory(ctx context.Context, branch *Branch, blob *Blob, parent *Directory, name string, writer crypto.WriterID) (*Directory, error) {
	d := &Directory{
		blob:              blob,
		branch:            branch,
		parent:            parent,
		parentEntryName:   name,
		parentEntryWriter: writer,
		entries:           make(map[string]map[crypto.WriterID]Entry),
	}
	if blob.Len() == 0 {
		return d, nil
	}

	content := make([]byte, blob.Len())
	if _, err := blob.Read(ctx, content); err != nil {
		return nil, fmt.Errorf("repository: decode directory: %w", err)
	}

	var wire []wireEntry
	dec := codec.NewDecoder(bytes.NewReader(content), &msgpackHandle)
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("repository: decode directory: %w", errs.Malformed)
	}

	for _, we := range wire {
		var writer crypto.WriterID
		copy(writer[:], we.Writer)
		var blobID crypto.Hash
		copy(blobID[:], we.BlobID)
		vv, err := crypto.DecodeVersionVector(we.VersionVector)
		if err != nil {
			return nil, fmt.Errorf("repository: decode directory entry %q: %w", we.Name, err)
		}
		if d.entries[we.Name] == nil {
			d.entries[we.Name] = make(map[crypto.WriterID]Entry)
		}
		d.entries[we.Name][writer] = Entry{Type: EntryType(we.Type), BlobID: blobID, VersionVector: vv}
	}
	return d, nil
}

// Entry returns the entry for name under writer, ignoring tombstones.
func (d *Directory) Entry(name string, writer crypto.WriterID) (Entry, bool) {
	versions, ok := d.entries[name]
	if !ok {
		return Entry{}, false
	}
	e, ok := versions[writer]
	if !ok || e.Type == EntryTombstone {
		return Entry{}, false
	}
	return e, true
}

// Versions returns every (writer, entry) pair stored under name, including
// tombstones and concurrent versions from different writers.
func (d *Directory) Versions(name string) map[crypto.WriterID]Entry {
	out := make(map[crypto.WriterID]Entry, len(d.entries[name]))
	for w, e := range d.entries[name] {
		out[w] = e
	}
	return out
}

// Names returns every non-empty entry name in the directory, sorted.
func (d *Directory) Names() []string {
	names := make([]string, 0, len(d.entries))
	for name := range d.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Insert adds or replaces the entry for (name, writer). The new entry must
// strictly dominate whatever was stored for this writer under this name, or
// the insertion fails with errs.EntryExists. Entries under other writers
// whose version vector is strictly dominated by vv are dropped (their
// blobs become garbage); entries that are concurrent with vv (neither
// dominates the other) are preserved.
func (d *Directory) Insert(name string, writer crypto.WriterID, entryType EntryType, blobID crypto.Hash, vv crypto.VersionVector) error {
	versions := d.entries[name]
	if versions == nil {
		versions = make(map[crypto.WriterID]Entry)
		d.entries[name] = versions
	}

	if existing, ok := versions[writer]; ok {
		if existing.VersionVector.Compare(vv) != crypto.Less {
			return fmt.Errorf("repository: insert %q: %w", name, errs.EntryExists)
		}
	}

	for w, e := range versions {
		if w == writer {
			continue
		}
		if e.VersionVector.Compare(vv) == crypto.Less {
			delete(versions, w)
		}
	}

	versions[writer] = Entry{Type: entryType, BlobID: blobID, VersionVector: vv}
	d.dirty = true
	return nil
}

// Remove tombstones the entry for (name, writer); see Insert for the
// domination rule the removal's own version vector must satisfy.
func (d *Directory) Remove(name string, writer crypto.WriterID, vv crypto.VersionVector) error {
	return d.Insert(name, writer, EntryTombstone, crypto.Hash{}, vv)
}

// Rename moves the entry for (oldName, writer) to newName, as a tombstone
// insertion at oldName and a fresh insertion at newName under the same
// version vector, so both halves of the rename are one causal event.
func (d *Directory) Rename(oldName, newName string, writer crypto.WriterID, vv crypto.VersionVector) error {
	entry, ok := d.Entry(oldName, writer)
	if !ok {
		return fmt.Errorf("repository: rename %q: %w", oldName, errs.NotFound)
	}
	if err := d.Insert(newName, writer, entry.Type, entry.BlobID, vv); err != nil {
		return err
	}
	return d.Remove(oldName, writer, vv)
}

// Flush serializes the directory's entries and flushes the underlying
// blob, then, unless this is the root, inserts the new blob id into the
// parent directory and recursively flushes it too, propagating the commit
// up to the root in one bottom-up chain.
func (d *Directory) Flush(ctx context.Context, vv crypto.VersionVector) error {
	if !d.dirty {
		return nil
	}

	wire := make([]wireEntry, 0)
	for name, versions := range d.entries {
		for w, e := range versions {
			writerCopy := w
			wire = append(wire, wireEntry{
				Name:          name,
				Writer:        writerCopy[:],
				Type:          int(e.Type),
				BlobID:        e.BlobID[:],
				VersionVector: e.VersionVector.Encode(),
			})
		}
	}
	sort.Slice(wire, func(i, j int) bool {
		if wire[i].Name != wire[j].Name {
			return wire[i].Name < wire[j].Name
		}
		return string(wire[i].Writer) < string(wire[j].Writer)
	})

	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, &msgpackHandle)
	if err := enc.Encode(wire); err != nil {
		return fmt.Errorf("repository: flush directory: %w", err)
	}

	d.blob.Truncate(0)
	if _, err := d.blob.Seek(0, 0); err != nil {
		return fmt.Errorf("repository: flush directory: %w", err)
	}
	if _, err := d.blob.Write(ctx, buf.Bytes()); err != nil {
		return fmt.Errorf("repository: flush directory: %w", err)
	}
	if err := d.blob.Flush(ctx); err != nil {
		return fmt.Errorf("repository: flush directory: %w", err)
	}
	d.dirty = false

	if d.parent == nil {
		return nil
	}

	if err := d.parent.Insert(d.parentEntryName, d.parentEntryWriter, EntryDirectory, d.blob.ID(), vv); err != nil {
		if !errorIsEntryExists(err) {
			return err
		}
	}
	return d.parent.Flush(ctx, vv)
}

func errorIsNotFound(err error) bool  { return errorIs(err, errs.NotFound) }
func errorIsEntryExists(err error) bool { return errorIs(err, errs.EntryExists) }
