package archive_extractor

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type readEntry struct {
	Name string
	Type EntryType
	Mode os.FileMode
	Body string
	Link string
}

func readAllEntries(t *testing.T, er EntryReader) []readEntry {
	t.Helper()
	var out []readEntry
	for {
		hdr, err := er.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		body, err := io.ReadAll(hdr.ArchiveReader)
		require.NoError(t, err)
		hdr.Release()
		out = append(out, readEntry{Name: hdr.Name, Type: hdr.Type, Mode: hdr.Mode, Body: string(body), Link: hdr.LinkName})
	}
}

func TestTarEntryReader(t *testing.T) {
	entries := append(scenarioEntries(), testEntry{Name: "dir/link", Link: "x.txt"})
	got := readAllEntries(t, NewEntryReader(ContainerTar, bytes.NewReader(tarBytes(t, entries))))

	require.Len(t, got, 4)
	assert.Equal(t, readEntry{Name: "dir/", Type: EntryDirectory, Mode: 0o755}, got[0])
	assert.Equal(t, readEntry{Name: "dir/x.txt", Type: EntryFile, Mode: 0o644, Body: "hello x\n"}, got[1])
	assert.Equal(t, EntryFile, got[2].Type)
	assert.Equal(t, os.FileMode(0o755), got[2].Mode)
	assert.Equal(t, EntrySymlink, got[3].Type)
	assert.Equal(t, "x.txt", got[3].Link)
}

func TestArEntryReader(t *testing.T) {
	data := arBytes(t, []testEntry{
		fileEntry("/", "symbols!", 0o644),
		fileEntry("control.tar/", "ctrl", 0o600),
		fileEntry("odd", "abc", 0o644),
	})
	got := readAllEntries(t, NewEntryReader(ContainerAr, bytes.NewReader(data)))

	require.Len(t, got, 3)
	assert.Equal(t, EntryOther, got[0].Type)
	assert.Equal(t, readEntry{Name: "control.tar", Type: EntryFile, Mode: 0o600, Body: "ctrl"}, got[1])
	assert.Equal(t, readEntry{Name: "odd", Type: EntryFile, Mode: 0o644, Body: "abc"}, got[2])
}

func TestCpioEntryReader(t *testing.T) {
	data := cpioBytes(t, []testEntry{dirEntryOf("dir"), fileEntry("dir/x.txt", "hello x\n", 0o640)})
	got := readAllEntries(t, NewEntryReader(ContainerCpio, bytes.NewReader(data)))

	require.Len(t, got, 2)
	assert.Equal(t, readEntry{Name: "dir", Type: EntryDirectory, Mode: 0o755}, got[0])
	assert.Equal(t, readEntry{Name: "dir/x.txt", Type: EntryFile, Mode: 0o640, Body: "hello x\n"}, got[1])
}

func TestArchiveHeaderRelease(t *testing.T) {
	hdr := NewArchiveHeader(bytes.NewReader([]byte("content")), "f", EntryFile, os.ModeSetuid|0o751, testModTime, 7)
	assert.Equal(t, os.ModeSetuid|0o751, hdr.Mode)
	assert.False(t, hdr.IsFolder())

	select {
	case <-hdr.Released():
		t.Fatal("released before drain")
	default:
	}
	require.NoError(t, hdr.Drain())
	hdr.Release()
	<-hdr.Released()
	assert.Equal(t, "file", EntryFile.String())
	assert.Equal(t, "hardlink", EntryHardlink.String())

	typed := NewArchiveHeader(nil, "d", EntryDirectory, os.ModeDir|os.ModeSticky|0o777, testModTime, 0)
	assert.Equal(t, os.ModeSticky|0o777, typed.Mode)
}

func TestTarEntryReaderHardlink(t *testing.T) {
	entries := append(scenarioEntries(), testEntry{Name: "dir/hard", Hardlink: "dir/x.txt"})
	got := readAllEntries(t, NewEntryReader(ContainerTar, bytes.NewReader(tarBytes(t, entries))))

	require.Len(t, got, 4)
	assert.Equal(t, EntryHardlink, got[3].Type)
	assert.Equal(t, "dir/x.txt", got[3].Link)
}

func TestUnixMode(t *testing.T) {
	tests := []struct {
		raw  uint32
		want os.FileMode
	}{
		{0o644, 0o644},
		{0o100755, 0o755},
		{0o4755, os.ModeSetuid | 0o755},
		{0o2750, os.ModeSetgid | 0o750},
		{0o41777, os.ModeSticky | 0o777},
		{0o7000, os.ModeSetuid | os.ModeSetgid | os.ModeSticky},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, unixMode(tc.raw), "%o", tc.raw)
	}
}

func TestCpioEntryReaderSpecialBits(t *testing.T) {
	data := cpioBytes(t, []testEntry{fileEntry("usr/bin/su", "x", 0o4755)})
	got := readAllEntries(t, NewEntryReader(ContainerCpio, bytes.NewReader(data)))

	require.Len(t, got, 1)
	assert.Equal(t, os.ModeSetuid|0o755, got[0].Mode)
}
