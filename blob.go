package fbdriver

import (
	"context"
	"encoding/binary"
	"io"
	"sync"

	"github.com/tomyedwab/fbdriver/internal/paramblock"
	"github.com/tomyedwab/fbdriver/native"
)

// Blob is the identity of a blob stored in the database. It is a plain
// value bound to the attachment it was read from or created on.
type Blob struct {
	attachment *Attachment
	id         native.BlobID
}

// ID returns the 8-byte blob identity.
func (b *Blob) ID() native.BlobID {
	return b.id
}

// Attachment returns the attachment the blob belongs to.
func (b *Blob) Attachment() *Attachment {
	return b.attachment
}

func (b *Blob) Any() any { return b }
func (*Blob) isValue()   {}

// BlobStream is an open blob. Streams created with CreateBlob are write-only,
// streams opened with OpenBlob are read-only.
type BlobStream struct {
	blob       *Blob
	attachment *Attachment
	handle     native.Blob
	writable   bool

	mu    sync.Mutex
	state resourceState
}

func (s *BlobStream) Any() any { return s }
func (*BlobStream) isValue()   {}

// Blob returns the identity of the stream's blob.
func (s *BlobStream) Blob() *Blob {
	return s.blob
}

func (s *BlobStream) check() error {
	if err := s.attachment.check(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateOpen {
		return errDisposed("blob stream")
	}
	return nil
}

// Length returns the total length of the blob in bytes.
func (s *BlobStream) Length(ctx context.Context) (int64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	info, err := s.handle.Info(ctx, []byte{paramblock.InfoBlobTotalLength})
	if err != nil {
		return 0, errNative("blob info", err)
	}

	for pos := 0; pos+3 <= len(info); {
		tag := info[pos]
		if tag == paramblock.InfoEnd {
			break
		}
		n := int(binary.LittleEndian.Uint16(info[pos+1:]))
		pos += 3
		if pos+n > len(info) {
			break
		}
		if tag == paramblock.InfoBlobTotalLength {
			var v int64
			for i := n - 1; i >= 0; i-- {
				v = v<<8 | int64(info[pos+i])
			}
			return v, nil
		}
		pos += n
	}
	return 0, NewError(ErrorTypeNativeCallFailure, "blob info did not report a total length")
}

// Read reads the next segment into buf. It returns io.EOF at the end of the
// blob.
func (s *BlobStream) Read(ctx context.Context, buf []byte) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	if s.writable {
		return 0, NewError(ErrorTypeInvalidState, "blob stream is open for writing")
	}
	if len(buf) == 0 {
		return 0, nil
	}
	if len(buf) > native.MaxSegmentSize {
		buf = buf[:native.MaxSegmentSize]
	}

	n, result, err := s.handle.GetSegment(ctx, buf)
	if err != nil {
		return 0, errNative("get segment", err)
	}
	if result == native.ResultNoData && n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write appends data to the blob, split into segments the native layer
// accepts.
func (s *BlobStream) Write(ctx context.Context, data []byte) error {
	if err := s.check(); err != nil {
		return err
	}
	if !s.writable {
		return NewError(ErrorTypeInvalidState, "blob stream is open for reading")
	}

	for len(data) > 0 {
		n := len(data)
		if n > native.MaxSegmentSize {
			n = native.MaxSegmentSize
		}
		if err := s.handle.PutSegment(ctx, data[:n]); err != nil {
			return errNative("put segment", err)
		}
		data = data[n:]
	}
	return nil
}

// Close closes the stream. A write stream's blob becomes usable as a
// parameter.
func (s *BlobStream) Close(ctx context.Context) error {
	return s.end(ctx, "close blob", s.handle.Close)
}

// Cancel discards the stream. A cancelled write stream's blob is dropped.
func (s *BlobStream) Cancel(ctx context.Context) error {
	return s.end(ctx, "cancel blob", s.handle.Cancel)
}

func (s *BlobStream) end(ctx context.Context, call string, fn func(ctx context.Context) error) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		return errNative(call, err)
	}
	s.mu.Lock()
	s.state = stateDisposed
	s.mu.Unlock()
	return nil
}

// Reader adapts a read stream to io.Reader, issuing native calls under ctx.
func (s *BlobStream) Reader(ctx context.Context) io.Reader {
	return &blobReader{ctx: ctx, stream: s}
}

type blobReader struct {
	ctx    context.Context
	stream *BlobStream
}

func (r *blobReader) Read(p []byte) (int, error) {
	return r.stream.Read(r.ctx, p)
}
