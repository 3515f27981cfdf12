package archiver_errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewKeepsInnermostKind(t *testing.T) {
	inner := New(KindDecode, "", errors.New("bad header"))
	outer := New(KindParse, "a.tar", fmt.Errorf("reading: %w", inner))
	assert.True(t, IsDecodeError(outer))
	assert.False(t, IsParseError(outer))
}

func TestNewNil(t *testing.T) {
	assert.NoError(t, New(KindWrite, "x", nil))
}

func TestKinds(t *testing.T) {
	base := errors.New("boom")
	assert.True(t, IsSourceOpenError(New(KindSourceOpen, "a", base)))
	assert.True(t, IsWriteError(New(KindWrite, "a", ErrPathTraversal)))
	assert.True(t, IsExternalToolError(New(KindExternalTool, "", ErrToolNotFound)))
	assert.True(t, IsLimitError(New(KindLimit, "", base)))
	assert.Equal(t, KindUnknown, KindOf(base))
	assert.True(t, errors.Is(New(KindWrite, "a", ErrPathTraversal), ErrPathTraversal))
}

func TestError(t *testing.T) {
	err := New(KindWrite, "dir/x.txt", errors.New("disk full"))
	assert.Equal(t, "Failed to extract file:dir/x.txt write error: disk full", err.Error())
	err = New(KindDecode, "", errors.New("bad"))
	assert.Equal(t, "Failed to extract, decode error: bad", err.Error())
	assert.Equal(t, "kind(42)", Kind(42).String())
}
