package container

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Kind identifies which extraction pipeline applies to a container.
type Kind int

const (
	KindUnknown Kind = iota
	// KindPST is the hierarchical PST/OST folder tree.
	KindPST
	// KindMbox is the line-delimited concatenated message format.
	KindMbox
	// KindOLM is the zipped Outlook for Mac archive.
	KindOLM
)

func (k Kind) String() string {
	switch k {
	case KindPST:
		return "pst"
	case KindMbox:
		return "mbox"
	case KindOLM:
		return "olm"
	default:
		return "unknown"
	}
}

// LargeFileThreshold is the size at which content sniffing is skipped and
// the in-process PST parser is no longer preferred.
const LargeFileThreshold int64 = 2 << 30

const (
	sniffLen = 8
	pstMagic = "2142444e" // "!BDN"
	mboxFrom = "From "
)

var (
	ErrNotFound    = errors.New("container not found")
	ErrUnsupported = errors.New("unsupported container")
)

var extensions = map[string]Kind{
	".pst":  KindPST,
	".ost":  KindPST,
	".mbox": KindMbox,
	".mbx":  KindMbox,
	".mbs":  KindMbox,
	".olm":  KindOLM,
}

// Ref is a classified container. It is never modified after Detect.
type Ref struct {
	Path string
	Kind Kind
	Size int64
}

// Name returns the base name of the container without its extension.
func (r Ref) Name() string {
	base := filepath.Base(r.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// openHead is swapped in tests to observe content reads.
var openHead = func(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// KindForExtension reports the kind mapped to the extension of path.
func KindForExtension(path string) (Kind, bool) {
	kind, ok := extensions[strings.ToLower(filepath.Ext(path))]
	return kind, ok
}

// Detect classifies the container at path. A known extension wins without
// reading the file; otherwise the first bytes are inspected for files below
// LargeFileThreshold.
func Detect(path string) (Ref, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Ref{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Ref{}, fmt.Errorf("stat container: %w", err)
	}
	if info.IsDir() {
		return Ref{}, fmt.Errorf("%w: %s is a directory", ErrUnsupported, path)
	}

	ref := Ref{Path: path, Size: info.Size()}
	if kind, ok := KindForExtension(path); ok {
		ref.Kind = kind
		return ref, nil
	}

	ext := filepath.Ext(path)
	if ext == "" {
		ext = "(none)"
	}
	if ref.Size >= LargeFileThreshold {
		return Ref{}, fmt.Errorf("%w: extension %s", ErrUnsupported, ext)
	}

	kind, err := sniff(path)
	if err != nil {
		return Ref{}, err
	}
	if kind == KindUnknown {
		return Ref{}, fmt.Errorf("%w: extension %s", ErrUnsupported, ext)
	}
	ref.Kind = kind
	return ref, nil
}

func sniff(path string) (Kind, error) {
	f, err := openHead(path)
	if err != nil {
		return KindUnknown, fmt.Errorf("open container: %w", err)
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return KindUnknown, fmt.Errorf("read container header: %w", err)
	}
	head = head[:n]

	if len(head) >= 4 && hex.EncodeToString(head[:4]) == pstMagic {
		return KindPST, nil
	}
	if strings.HasPrefix(string(head), mboxFrom) {
		return KindMbox, nil
	}
	return KindUnknown, nil
}
