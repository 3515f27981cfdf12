package archiver_errors

import (
	"errors"
	"fmt"
)

// Kind tells a caller which side of an extraction failed.
type Kind int

const (
	KindUnknown Kind = iota
	// KindSourceOpen: the archive could not be opened or read.
	KindSourceOpen
	// KindDecode: the compressed data is corrupt or of the wrong codec.
	KindDecode
	// KindParse: the archive structure is malformed.
	KindParse
	// KindWrite: the destination could not be written, including rejected paths.
	KindWrite
	// KindExternalTool: an external extractor is missing or exited non-zero.
	KindExternalTool
	// KindLimit: a configured entry count or compression ratio limit was hit.
	KindLimit
)

var kindNames = [...]string{
	KindUnknown:      "unknown",
	KindSourceOpen:   "source open",
	KindDecode:       "decode",
	KindParse:        "parse",
	KindWrite:        "write",
	KindExternalTool: "external tool",
	KindLimit:        "limit",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

var (
	ErrPathTraversal = errors.New("path escapes destination directory")
	ErrToolNotFound  = errors.New("external extractor not found")
)

type ExtractError struct {
	Kind Kind
	Path string
	Err  error
}

// New classifies err. An error that already carries a kind is returned as is so
// the innermost classification wins.
func New(kind Kind, path string, err error) error {
	if err == nil {
		return nil
	}
	var ee *ExtractError
	if errors.As(err, &ee) {
		return err
	}
	return &ExtractError{Kind: kind, Path: path, Err: err}
}

func (ee *ExtractError) Error() string {
	if ee.Path == "" {
		return fmt.Sprintf("Failed to extract, %s error: %s", ee.Kind, ee.Err.Error())
	}
	return fmt.Sprintf("Failed to extract file:%s %s error: %s", ee.Path, ee.Kind, ee.Err.Error())
}

func (ee *ExtractError) Unwrap() error {
	return ee.Err
}

// KindOf returns the kind of the outermost ExtractError in err's chain.
func KindOf(err error) Kind {
	var ee *ExtractError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return KindUnknown
}

func IsSourceOpenError(err error) bool {
	return KindOf(err) == KindSourceOpen
}

func IsDecodeError(err error) bool {
	return KindOf(err) == KindDecode
}

func IsParseError(err error) bool {
	return KindOf(err) == KindParse
}

func IsWriteError(err error) bool {
	return KindOf(err) == KindWrite
}

func IsExternalToolError(err error) bool {
	return KindOf(err) == KindExternalTool
}

func IsLimitError(err error) bool {
	return KindOf(err) == KindLimit
}
