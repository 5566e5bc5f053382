package loopback

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/tomyedwab/fbdriver/internal/paramblock"
	"github.com/tomyedwab/fbdriver/native"
)

// blob is an open blob handle. Written content is buffered and becomes
// visible under id when the handle is closed.
type blob struct {
	attachment *attachment
	id         native.BlobID
	writable   bool

	mu     sync.Mutex
	data   []byte
	pos    int
	closed bool
}

func (b *blob) check() error {
	if b.closed {
		return native.Errorf(native.CodeBadSegstrHandle, "invalid BLOB handle")
	}
	return b.attachment.check()
}

func (b *blob) GetSegment(ctx context.Context, buf []byte) (int, native.Result, error) {
	if err := b.attachment.provider.inject(OpGetSegment); err != nil {
		return 0, native.ResultError, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(); err != nil {
		return 0, native.ResultError, err
	}
	if b.writable {
		return 0, native.ResultError, native.Errorf(native.CodeSegstrNoRead, "attempted read of a new, open BLOB")
	}

	if b.pos >= len(b.data) {
		return 0, native.ResultNoData, nil
	}
	n := copy(buf, b.data[b.pos:])
	b.pos += n
	if b.pos < len(b.data) && n == len(buf) {
		return n, native.ResultSegment, nil
	}
	return n, native.ResultOK, nil
}

func (b *blob) PutSegment(ctx context.Context, data []byte) error {
	if err := b.attachment.provider.inject(OpPutSegment); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(); err != nil {
		return err
	}
	if !b.writable {
		return native.Errorf(native.CodeSegstrNoWrite, "attempted write to read-only BLOB")
	}
	if len(data) > native.MaxSegmentSize {
		return native.Errorf(native.CodeSegstrNoWrite, "segment of %d bytes exceeds %d", len(data), native.MaxSegmentSize)
	}
	b.data = append(b.data, data...)
	return nil
}

// Info answers InfoBlobTotalLength; other items are reported as truncated.
func (b *blob) Info(ctx context.Context, items []byte) ([]byte, error) {
	if err := b.attachment.provider.inject(OpBlobInfo); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(); err != nil {
		return nil, err
	}

	var out []byte
	for _, item := range items {
		switch item {
		case paramblock.InfoEnd:
		case paramblock.InfoBlobTotalLength:
			out = append(out, item, 4, 0)
			out = binary.LittleEndian.AppendUint32(out, uint32(len(b.data)))
		default:
			out = append(out, paramblock.InfoTruncated)
			return out, nil
		}
	}
	return append(out, paramblock.InfoEnd), nil
}

func (b *blob) Close(ctx context.Context) error {
	if err := b.attachment.provider.inject(OpCloseBlob); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(); err != nil {
		return err
	}
	b.closed = true
	if b.writable {
		b.attachment.mu.Lock()
		b.attachment.blobs[b.id] = b.data
		b.attachment.mu.Unlock()
	}
	return nil
}

func (b *blob) Cancel(ctx context.Context) error {
	if err := b.attachment.provider.inject(OpCancelBlob); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(); err != nil {
		return err
	}
	b.closed = true
	b.data = nil
	return nil
}
