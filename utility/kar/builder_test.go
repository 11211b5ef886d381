// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndWrite(t *testing.T) {
	builder, err := NewBuilder(Header{
		Author:      "devblok",
		DateCreated: time.Now().Unix(),
		Version:     1,
	})
	require.NoError(t, err)
	defer builder.Close()

	require.NoError(t, builder.Add("test", strings.NewReader("idunvovkjnreovmegihjbrqlkmfrjnb")))
	require.NoError(t, builder.Add("test2", strings.NewReader("idunvovkjnreovmsdvwrvnervnreegihjbrqlkmfrjnb")))
	assert.Len(t, builder.files, 2)

	var buf bytes.Buffer
	num, err := builder.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), num)
	assert.Equal(t, Magic, buf.String()[:MagicLength])
}

func TestAddTwiceFails(t *testing.T) {
	builder, err := NewBuilder(Header{})
	require.NoError(t, err)
	defer builder.Close()

	require.NoError(t, builder.Add("a", strings.NewReader("a")))
	assert.Error(t, builder.Add("a", strings.NewReader("b")))
	assert.Equal(t, 1, builder.Len())
}

func TestAddConcurrently(t *testing.T) {
	builder, err := NewBuilder(Header{})
	require.NoError(t, err)
	defer builder.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, builder.Add(fmt.Sprintf("file%d", i), strings.NewReader(strings.Repeat("x", i*100))))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 16, builder.Len())
}

func TestHeaderSizeRoundTrip(t *testing.T) {
	bts := int64ToBinary(123456)
	require.Len(t, bts, HeaderSizeNumberLength)
	n, err := binaryToint64(bts)
	require.NoError(t, err)
	assert.Equal(t, int64(123456), n)

	_, err = binaryToint64([]byte{1})
	assert.Equal(t, ErrFileFormat, err)
}
