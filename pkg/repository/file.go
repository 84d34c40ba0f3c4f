package repository

import (
	"context"
	"fmt"

	"github.com/J-Pabon/ouisync/pkg/crypto"
	"github.com/J-Pabon/ouisync/pkg/errs"
)

// File is a Blob plus the parent-context (the directory and entry name
// that reference it) needed to propagate a mutation's version vector bump
// up the ancestor chain on Flush.
type File struct {
	blob   *Blob
	dir    *Directory
	name   string
	writer crypto.WriterID
}

// OpenFile opens the file stored under name/writer in dir.
func OpenFile(ctx context.Context, dir *Directory, name string, writer crypto.WriterID) (*File, error) {
	entry, ok := dir.Entry(name, writer)
	if !ok {
		return nil, fmt.Errorf("repository: open file %q: %w", name, errs.NotFound)
	}
	if entry.Type != EntryFile {
		return nil, fmt.Errorf("repository: open file %q: %w", name, errs.EntryIsDirectory)
	}
	blob, err := OpenBlob(ctx, dir.branch, entry.BlobID)
	if err != nil {
		return nil, err
	}
	return &File{blob: blob, dir: dir, name: name, writer: writer}, nil
}

// CreateFile creates a new, empty file blob; it becomes visible once
// Flush inserts it into dir.
func CreateFile(dir *Directory, name string, writer crypto.WriterID) (*File, error) {
	blob, err := CreateBlob(dir.branch)
	if err != nil {
		return nil, err
	}
	return &File{blob: blob, dir: dir, name: name, writer: writer}, nil
}

func (f *File) Read(ctx context.Context, buf []byte) (int, error)  { return f.blob.Read(ctx, buf) }
func (f *File) Write(ctx context.Context, buf []byte) (int, error) { return f.blob.Write(ctx, buf) }
func (f *File) Seek(offset int64, whence int) (int64, error)       { return f.blob.Seek(offset, whence) }
func (f *File) Truncate(length uint64)                             { f.blob.Truncate(length) }
func (f *File) Len() uint64                                        { return f.blob.Len() }

// Flush writes the file's dirty blocks, then walks up the ancestor chain
// bumping every touched directory's entry for this writer to vv and
// committing each one, ending at the root, all as part of the same logical
// operation (§4.3: "bumps the version vector of the local writer in the
// parent chain up to the root, and commits").
func (f *File) Flush(ctx context.Context, vv crypto.VersionVector) error {
	if err := f.blob.Flush(ctx); err != nil {
		return fmt.Errorf("repository: flush file %q: %w", f.name, err)
	}

	if err := f.dir.Insert(f.name, f.writer, EntryFile, f.blob.ID(), vv); err != nil {
		if !errorIsEntryExists(err) {
			return fmt.Errorf("repository: flush file %q: %w", f.name, err)
		}
	}
	if err := f.dir.Flush(ctx, vv); err != nil {
		return fmt.Errorf("repository: flush file %q: %w", f.name, err)
	}
	return nil
}

// Fork copies this file's blob into the local writer's branch (reusing
// already-present blocks) and inserts it into targetDir, so that a
// subsequent mutation affects only the local branch.
func (f *File) Fork(ctx context.Context, target *Branch, targetDir *Directory, vv crypto.VersionVector) (*File, error) {
	forkedBlob, err := f.blob.Fork(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("repository: fork file %q: %w", f.name, err)
	}

	forked := &File{blob: forkedBlob, dir: targetDir, name: f.name, writer: target.writer}
	if err := targetDir.Insert(f.name, target.writer, EntryFile, forkedBlob.ID(), vv); err != nil {
		if !errorIsEntryExists(err) {
			return nil, fmt.Errorf("repository: fork file %q: %w", f.name, err)
		}
	}
	return forked, nil
}

// Close releases the file's reference on its underlying blob core.
func (f *File) Close() { f.blob.Close() }
