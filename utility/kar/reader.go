// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar

import (
	"bytes"
	"io"
	"sort"

	"github.com/pierrec/lz4"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
)

// Open opens the kar archived from r. It will also check
// if the file is actually a kar archive, will return an error
// when file incorrect.
func Open(r io.ReaderAt) (*Archive, error) {
	magic := make([]byte, MagicLength)
	if num, err := r.ReadAt(magic, 0); err != nil && err != io.EOF {
		return nil, err
	} else if num < MagicLength || string(magic) != Magic {
		return nil, ErrFileFormat
	}

	headerSizeBytes := make([]byte, HeaderSizeNumberLength)
	if num, err := r.ReadAt(headerSizeBytes, MagicLength); err != nil && err != io.EOF {
		return nil, err
	} else if num < HeaderSizeNumberLength {
		return nil, ErrFileFormat
	}

	size, sized := sizeOf(r)
	headerSize, err := binaryToint64(headerSizeBytes)
	if err != nil || headerSize <= 0 {
		return nil, ErrFileFormat
	}
	if sized && headerSize > size-MagicLength-HeaderSizeNumberLength {
		return nil, errors.Wrapf(ErrFileFormat, "header of %d bytes past the end of file", headerSize)
	}

	// the header is read in growing chunks, its size is not trusted
	// when the length of r is unknown
	var headerBuf bytes.Buffer
	if num, err := headerBuf.ReadFrom(io.NewSectionReader(r, MagicLength+HeaderSizeNumberLength, headerSize)); err != nil {
		return nil, err
	} else if num < headerSize {
		return nil, ErrFileFormat
	}
	headerBytes := headerBuf.Bytes()

	var header Header
	if err := gobDecode(&header, headerBytes); err != nil {
		return nil, errors.Wrap(ErrFileFormat, err.Error())
	}

	ar := &Archive{
		reader:     r,
		header:     header,
		dataOffset: MagicLength + HeaderSizeNumberLength + headerSize,
		entries:    make(map[string]IndexEntry, len(header.Index)),
	}
	for _, e := range header.Index {
		if e.Offset < 0 || e.Size < 0 || e.CompressedSize < 0 {
			return nil, errors.Wrapf(ErrFileFormat, "negative bounds for %s", e.Name)
		}
		if sized && (e.Offset > size-ar.dataOffset || e.CompressedSize > size-ar.dataOffset-e.Offset) {
			return nil, errors.Wrapf(ErrFileFormat, "%s lies past the end of file", e.Name)
		}
		ar.entries[e.Name] = e
	}
	return ar, nil
}

// sizeOf returns the length of r when r can tell it.
func sizeOf(r io.ReaderAt) (int64, bool) {
	switch s := r.(type) {
	case interface{ Size() int64 }:
		return s.Size(), true
	case interface{ Len() int }:
		return int64(s.Len()), true
	}
	return 0, false
}

// OpenFile memory maps the file at path and opens it as an archive.
// The archive must be closed to unmap the file.
func OpenFile(path string) (*Archive, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "kar")
	}
	ar, err := Open(m)
	if err != nil {
		m.Close()
		return nil, errors.Wrapf(err, "kar: %s", path)
	}
	ar.closer = m
	return ar, nil
}

// Archive provides concurrent io for a kar file, and can provide
// an io.Reader for each file separately to perform actions on.
type Archive struct {
	reader     io.ReaderAt
	closer     io.Closer
	header     Header
	dataOffset int64
	entries    map[string]IndexEntry
}

// Header returns the archive header
func (a *Archive) Header() Header {
	return a.header
}

// Names returns the names of all files in the archive, sorted
func (a *Archive) Names() []string {
	names := make([]string, 0, len(a.entries))
	for name := range a.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open returns a Reader for a file in the Archive
func (a *Archive) Open(name string) (*Reader, error) {
	e, ok := a.entries[name]
	if !ok {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	section := io.NewSectionReader(a.reader, a.dataOffset+e.Offset, e.CompressedSize)
	return &Reader{
		entry:  e,
		reader: lz4.NewReader(section),
	}, nil
}

// ReadAll returns the entire contents of a file with a given name
func (a *Archive) ReadAll(name string) ([]byte, error) {
	r, err := a.Open(name)
	if err != nil {
		return nil, err
	}
	hint := r.entry.Size
	if hint > maxPreallocation {
		hint = maxPreallocation
	}
	data := bytes.NewBuffer(make([]byte, 0, hint))
	num, err := data.ReadFrom(io.LimitReader(r, r.entry.Size))
	if err != nil {
		return nil, errors.Wrapf(err, "kar: read %s", name)
	}
	if num != r.entry.Size {
		return nil, errors.Wrapf(ErrFileFormat, "%s holds %d bytes, index says %d", name, num, r.entry.Size)
	}
	return data.Bytes(), nil
}

// sizes in the index are not trusted past this much up front
const maxPreallocation = 1 << 24

// Find returns the contents of the named file, same as ReadAll.
func (a *Archive) Find(name string) ([]byte, error) {
	return a.ReadAll(name)
}

// Close releases the memory map, if the archive was opened with OpenFile.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return err
}

// Reader is a reader for a single file in an Archive.
// Abstracts away the location that needs to be known.
type Reader struct {
	entry  IndexEntry
	reader io.Reader
}

// Size returns the uncompressed size of the file
func (r *Reader) Size() int64 {
	return r.entry.Size
}

// Read reads already decompressed data
func (r *Reader) Read(p []byte) (n int, err error) {
	return r.reader.Read(p)
}
