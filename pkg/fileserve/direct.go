package fileserve

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/afero"

	"github.com/marmos91/dittoserve/internal/logger"
	"github.com/marmos91/dittoserve/pkg/bufpool"
	"github.com/marmos91/dittoserve/pkg/channel"
)

// transferDirect copies size bytes of f to sink, blocking on writability,
// then shuts down writes and waits for the flush. Errors are logged and
// swallowed. f and sink are always closed and the exchange completed. It
// returns the number of body bytes written.
func (s *Server) transferDirect(ctx context.Context, ex Exchange, sink channel.Sink, f afero.File, size int64) (written int64) {
	defer func() {
		_ = f.Close()
		_ = sink.Close()
		ex.Complete()
	}()

	buf := bufpool.Get(s.copySize)
	defer bufpool.Put(buf)

	written, err := copyToSink(ctx, sink, io.LimitReader(f, size), buf)
	if err == nil && written != size {
		err = fmt.Errorf("file changed size: wrote %d of %d bytes: %w", written, size, io.ErrUnexpectedEOF)
	}
	if err == nil {
		err = sink.ShutdownWrites()
	}
	if err == nil {
		err = sink.AwaitFlushed(ctx)
	}
	if err != nil {
		logger.DebugCtx(ctx, "direct transfer failed", logger.KeyBytesWritten, written, logger.Err(err))
	}
	return written
}

func copyToSink(ctx context.Context, sink channel.Sink, r io.Reader, buf []byte) (int64, error) {
	var written int64
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if err := writeFull(ctx, sink, buf[:n]); err != nil {
				return written, err
			}
			written += int64(n)
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

func writeFull(ctx context.Context, sink channel.Sink, p []byte) error {
	views := [][]byte{p}
	for len(views[0]) > 0 {
		n, err := sink.WriteVectored(views)
		if err != nil {
			return err
		}
		if n == 0 {
			if err := sink.AwaitWritable(ctx); err != nil {
				return err
			}
			continue
		}
		views[0] = views[0][n:]
	}
	return nil
}
