// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar_test

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/devblok/cubes/utility/kar"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testString1 = "idunvovkjnreovmegihjbrqlkmfrjnb"
	testString2 = "idunvovkjnreovmsdvwrvnervnreegihjbrqlkmfrjnb"
)

func buildArchive(t *testing.T) []byte {
	builder, err := kar.NewBuilder(kar.Header{
		Author:      "devblok",
		DateCreated: time.Now().Unix(),
		Version:     1,
	})
	require.NoError(t, err)
	defer builder.Close()

	require.NoError(t, builder.Add("test", strings.NewReader(testString1)))
	require.NoError(t, builder.Add("test2", strings.NewReader(testString2)))
	require.NoError(t, builder.Add("empty", strings.NewReader("")))
	require.NoError(t, builder.Add("big", strings.NewReader(strings.Repeat(testString2, 4096))))

	var buf bytes.Buffer
	_, err = builder.WriteTo(&buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func TestCreateAndRead(t *testing.T) {
	ar, err := kar.Open(bytes.NewReader(buildArchive(t)))
	require.NoError(t, err)

	f, err := ar.Open("test")
	require.NoError(t, err)
	assert.Equal(t, int64(len(testString1)), f.Size())

	result, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, testString1, string(result))
}

func TestCreateAndReadAll(t *testing.T) {
	ar, err := kar.Open(bytes.NewReader(buildArchive(t)))
	require.NoError(t, err)

	assert.Equal(t, "devblok", ar.Header().Author)
	assert.Equal(t, []string{"big", "empty", "test", "test2"}, ar.Names())

	for name, want := range map[string]string{
		"test":  testString1,
		"test2": testString2,
		"empty": "",
		"big":   strings.Repeat(testString2, 4096),
	} {
		got, err := ar.ReadAll(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, string(got), name)
	}
}

func TestMissingFile(t *testing.T) {
	ar, err := kar.Open(bytes.NewReader(buildArchive(t)))
	require.NoError(t, err)

	_, err = ar.Find("nope")
	assert.Equal(t, kar.ErrNotFound, errors.Cause(err))
}

func TestOpenRejectsGarbage(t *testing.T) {
	_, err := kar.Open(strings.NewReader("PK\x03\x04 definitely a zip"))
	assert.Equal(t, kar.ErrFileFormat, errors.Cause(err))

	_, err = kar.Open(strings.NewReader("KA"))
	assert.Equal(t, kar.ErrFileFormat, errors.Cause(err))

	data := buildArchive(t)
	_, err = kar.Open(bytes.NewReader(data[:40]))
	assert.Equal(t, kar.ErrFileFormat, errors.Cause(err))
}

// withHeader rewrites the header of a built archive, keeping its data.
func withHeader(t *testing.T, data []byte, edit func(*kar.Header)) []byte {
	ar, err := kar.Open(bytes.NewReader(data))
	require.NoError(t, err)
	header := ar.Header()
	oldSize := int64(binary.LittleEndian.Uint64(data[kar.MagicLength:]))
	payload := data[kar.MagicLength+kar.HeaderSizeNumberLength+oldSize:]

	edit(&header)
	var encoded bytes.Buffer
	require.NoError(t, gob.NewEncoder(&encoded).Encode(header))

	out := []byte(kar.Magic)
	size := make([]byte, kar.HeaderSizeNumberLength)
	binary.LittleEndian.PutUint64(size, uint64(encoded.Len()))
	out = append(out, size...)
	out = append(out, encoded.Bytes()...)
	return append(out, payload...)
}

func withHeaderSize(size int64) []byte {
	out := []byte(kar.Magic)
	bts := make([]byte, kar.HeaderSizeNumberLength)
	binary.LittleEndian.PutUint64(bts, uint64(size))
	return append(out, bts...)
}

// onlyReaderAt hides the length of the underlying reader.
type onlyReaderAt struct {
	r io.ReaderAt
}

func (o onlyReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return o.r.ReadAt(p, off)
}

func TestOpenRejectsHeaderSize(t *testing.T) {
	for _, size := range []int64{1 << 62, -1, 1 << 40} {
		data := withHeaderSize(size)

		_, err := kar.Open(bytes.NewReader(data))
		assert.Equal(t, kar.ErrFileFormat, errors.Cause(err), "size %d", size)

		_, err = kar.Open(onlyReaderAt{bytes.NewReader(data)})
		assert.Equal(t, kar.ErrFileFormat, errors.Cause(err), "size %d of unknown length", size)
	}
}

func TestOpenRejectsIndexBounds(t *testing.T) {
	data := buildArchive(t)

	for name, edit := range map[string]func(*kar.IndexEntry){
		"negative size":       func(e *kar.IndexEntry) { e.Size = -1 },
		"negative offset":     func(e *kar.IndexEntry) { e.Offset = -8 },
		"negative compressed": func(e *kar.IndexEntry) { e.CompressedSize = -8 },
		"offset past end":     func(e *kar.IndexEntry) { e.Offset = 1 << 50 },
		"compressed past end": func(e *kar.IndexEntry) { e.CompressedSize = 1 << 50 },
	} {
		corrupt := withHeader(t, data, func(h *kar.Header) { edit(&h.Index[0]) })
		_, err := kar.Open(bytes.NewReader(corrupt))
		assert.Equal(t, kar.ErrFileFormat, errors.Cause(err), name)
	}
}

func TestReadAllRejectsWrongSize(t *testing.T) {
	corrupt := withHeader(t, buildArchive(t), func(h *kar.Header) {
		for i := range h.Index {
			if h.Index[i].Name == "test" {
				h.Index[i].Size = 1 << 40
			}
		}
	})
	ar, err := kar.Open(bytes.NewReader(corrupt))
	require.NoError(t, err)

	_, err = ar.ReadAll("test")
	assert.Equal(t, kar.ErrFileFormat, errors.Cause(err))

	got, err := ar.ReadAll("test2")
	require.NoError(t, err)
	assert.Equal(t, testString2, string(got))
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opentest.kar")
	require.NoError(t, os.WriteFile(path, buildArchive(t), 0644))

	ar, err := kar.OpenFile(path)
	require.NoError(t, err)
	defer ar.Close()

	got, err := ar.Find("test2")
	require.NoError(t, err)
	assert.Equal(t, testString2, string(got))
}

func BenchmarkReadAll(b *testing.B) {
	builder, err := kar.NewBuilder(kar.Header{Version: 1})
	if err != nil {
		b.Fatal(err)
	}
	defer builder.Close()
	if err := builder.Add("big", strings.NewReader(strings.Repeat(testString2, 4096))); err != nil {
		b.Fatal(err)
	}
	var buf bytes.Buffer
	if _, err := builder.WriteTo(&buf); err != nil {
		b.Fatal(err)
	}
	ar, err := kar.Open(bytes.NewReader(buf.Bytes()))
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ar.ReadAll("big"); err != nil {
			b.Fatal(err)
		}
	}
}
