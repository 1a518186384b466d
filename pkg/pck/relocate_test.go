package pck

import (
	"bytes"
	"crypto/md5"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goopsie/pckFileTools/pkg/pck/pcktest"
)

func openSample(t *testing.T, files ...pcktest.File) (*pcktest.Buffer, Index) {
	t.Helper()
	buf := pcktest.NewBuffer(pcktest.Build(files...))
	_, idx, err := ReadIndex(buf)
	require.NoError(t, err)
	return buf, idx
}

func readEntry(t *testing.T, buf *pcktest.Buffer, idx Index, path string) (*Entry, []byte) {
	t.Helper()
	e, err := ReadEntryAt(buf, idx[path])
	require.NoError(t, err)
	content, err := ReadContent(buf, e)
	require.NoError(t, err)
	return e, content
}

func TestRelocate(t *testing.T) {
	t.Run("Example", func(t *testing.T) {
		buf, idx := openSample(t,
			pcktest.File{Path: "res://a.txt", Content: []byte("hello")},
			pcktest.File{Path: "res://b.txt", Content: []byte("world")},
		)
		before := append([]byte(nil), buf.Bytes()...)
		bEntry, _ := readEntry(t, buf, idx, "res://b.txt")
		bRecord, _ := bEntry.MarshalBinary()

		require.NoError(t, Relocate(buf, idx, "res://a.txt", []byte("HI")))

		after := buf.Bytes()
		assert.Len(t, after, len(before)+2)

		a, content := readEntry(t, buf, idx, "res://a.txt")
		assert.Equal(t, uint64(len(before)), a.Offset)
		assert.Equal(t, uint64(2), a.Size)
		assert.Equal(t, md5.Sum([]byte("HI")), a.MD5)
		assert.Equal(t, "HI", string(content))

		bOff := idx["res://b.txt"]
		assert.Equal(t, bRecord, after[bOff:bOff+int64(len(bRecord))])
		assert.Equal(t, "world", string(after[bEntry.Offset:bEntry.Offset+bEntry.Size]))
	})

	t.Run("RoundTripAfterReindex", func(t *testing.T) {
		buf, idx := openSample(t, sampleFiles()...)
		content := bytes.Repeat([]byte("replacement "), 1000)

		require.NoError(t, Relocate(buf, idx, "res://scenes/main.tscn", content))

		tbl, err := ReadTable(buf)
		require.NoError(t, err)
		assert.Equal(t, idx, tbl.Index())
		assert.Equal(t, []string{"res://a.txt", "res://b.txt", "res://scenes/main.tscn"}, tbl.Paths)

		e, ok := tbl.Lookup("res://scenes/main.tscn")
		require.True(t, ok)
		got, err := ReadContent(buf, e)
		require.NoError(t, err)
		assert.Equal(t, content, got)
		assert.Equal(t, Checksum(content), e.MD5)
		assert.Len(t, e.RawPath, len("res://scenes/main.tscn")+2, "padding must be preserved")
	})

	t.Run("OtherEntriesUntouched", func(t *testing.T) {
		buf, idx := openSample(t, sampleFiles()...)
		before := append([]byte(nil), buf.Bytes()...)
		tblBefore, err := ReadTable(bytes.NewReader(before))
		require.NoError(t, err)

		require.NoError(t, Relocate(buf, idx, "res://b.txt", []byte("changed")))

		after := buf.Bytes()
		for i, p := range tblBefore.Paths {
			if p == "res://b.txt" {
				continue
			}
			e := tblBefore.Entries[i]
			start, end := tblBefore.Offsets[i], tblBefore.Offsets[i]+int64(e.Len())
			assert.Equal(t, before[start:end], after[start:end], "entry %s", p)
			assert.Equal(t, before[e.Offset:e.Offset+e.Size], after[e.Offset:e.Offset+e.Size], "content %s", p)
		}
		// The old content of the relocated entry stays in place, unreferenced.
		old := tblBefore.Entries[1]
		assert.Equal(t, "world", string(after[old.Offset:old.Offset+old.Size]))
	})

	t.Run("TwiceInSession", func(t *testing.T) {
		buf, idx := openSample(t, sampleFiles()...)
		origLen := len(buf.Bytes())

		require.NoError(t, Relocate(buf, idx, "res://a.txt", []byte("first")))
		require.NoError(t, Relocate(buf, idx, "res://a.txt", []byte("second!")))

		e, content := readEntry(t, buf, idx, "res://a.txt")
		assert.Equal(t, "second!", string(content))
		assert.Equal(t, uint64(origLen+len("first")), e.Offset)

		data := buf.Bytes()
		assert.Equal(t, "first", string(data[origLen:origLen+len("first")]))

		tbl, err := ReadTable(buf)
		require.NoError(t, err)
		for _, other := range tbl.Entries {
			assert.NotEqual(t, uint64(origLen), other.Offset, "first content must be unreferenced")
		}
	})

	t.Run("EmptyContent", func(t *testing.T) {
		buf, idx := openSample(t, sampleFiles()...)
		origLen := len(buf.Bytes())

		require.NoError(t, Relocate(buf, idx, "res://a.txt", nil))

		e, content := readEntry(t, buf, idx, "res://a.txt")
		assert.Empty(t, content)
		assert.Equal(t, uint64(origLen), e.Offset)
		assert.Equal(t, md5.Sum(nil), e.MD5)
		assert.Len(t, buf.Bytes(), origLen)
	})

	t.Run("Flushes", func(t *testing.T) {
		buf, idx := openSample(t, sampleFiles()...)
		require.NoError(t, Relocate(buf, idx, "res://a.txt", []byte("x")))
		assert.Equal(t, 2, buf.Syncs)
	})
}

func TestRelocateNotFound(t *testing.T) {
	buf, idx := openSample(t, sampleFiles()...)
	before := append([]byte(nil), buf.Bytes()...)

	err := Relocate(buf, idx, "res://missing.txt", []byte("data"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "res://missing.txt", nf.Path)
	assert.Equal(t, before, buf.Bytes())

	// The index is still usable for other paths.
	require.NoError(t, Relocate(buf, idx, "res://a.txt", []byte("ok")))
}

func TestRelocateWriteFailures(t *testing.T) {
	t.Run("AppendFails", func(t *testing.T) {
		data := pcktest.Build(sampleFiles()...)
		fb := &pcktest.FailingBuffer{Buffer: pcktest.NewBuffer(data), WriteBudget: 0}
		_, idx, err := ReadIndex(fb)
		require.NoError(t, err)

		err = Relocate(fb, idx, "res://a.txt", []byte("new"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrIO)
		assert.ErrorIs(t, err, pcktest.ErrInjected)
		assert.Equal(t, data, fb.Bytes())
	})

	t.Run("OverwriteFails", func(t *testing.T) {
		data := pcktest.Build(sampleFiles()...)
		fb := &pcktest.FailingBuffer{Buffer: pcktest.NewBuffer(data), WriteBudget: 1}
		_, idx, err := ReadIndex(fb)
		require.NoError(t, err)

		err = Relocate(fb, idx, "res://a.txt", []byte("new"))
		require.Error(t, err)

		var ioErr *IOError
		require.ErrorAs(t, err, &ioErr)
		assert.Equal(t, "flush entry", ioErr.Op)

		// Table untouched, new bytes orphaned at the end.
		after := fb.Bytes()
		assert.Equal(t, data, after[:len(data)])
		assert.Equal(t, "new", string(after[len(data):]))

		e, content := readEntry(t, fb.Buffer, idx, "res://a.txt")
		assert.Equal(t, "hello", string(content))
		assert.Equal(t, md5.Sum([]byte("hello")), e.MD5)
	})
}

func TestRelocateShortReread(t *testing.T) {
	data := pcktest.Build(sampleFiles()...)
	buf := pcktest.NewBuffer(data)

	// The entry offset points at the appended bytes, which are too short to
	// hold a record.
	idx := Index{"res://a.txt": int64(len(data))}
	err := Relocate(buf, idx, "res://a.txt", []byte("abc"))
	require.Error(t, err)

	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "re-read entry", ioErr.Op)
	assert.ErrorIs(t, err, ErrIO)
	assert.Equal(t, data, buf.Bytes()[:len(data)])
}
