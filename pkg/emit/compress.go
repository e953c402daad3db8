package emit

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"

	"github.com/Sriram-PR/sitemap-gen/pkg/utils"
)

// Compressor turns the file at src into a compressed file at dst
type Compressor interface {
	Compress(src, dst string) error
}

// GzipCompressor writes a single-member gzip stream at the default level with no name or
// modification time in the header, so equal input gives equal output.
type GzipCompressor struct {
	Level int
}

// NewGzipCompressor returns a compressor at gzip.DefaultCompression
func NewGzipCompressor() *GzipCompressor {
	return &GzipCompressor{Level: gzip.DefaultCompression}
}

// Compress reads src and writes dst. Any failure is reported as ErrCompression.
func (g *GzipCompressor) Compress(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: open '%s': %w", utils.ErrCompression, src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("%w: create '%s': %w", utils.ErrCompression, dst, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: close '%s': %w", utils.ErrCompression, dst, cerr)
		}
	}()

	zw, err := gzip.NewWriterLevel(out, g.Level)
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrCompression, err)
	}
	if _, err = io.Copy(zw, bufio.NewReader(in)); err != nil {
		zw.Close()
		return fmt.Errorf("%w: writing '%s': %w", utils.ErrCompression, dst, err)
	}
	if err = zw.Close(); err != nil {
		return fmt.Errorf("%w: flushing '%s': %w", utils.ErrCompression, dst, err)
	}
	if err = out.Sync(); err != nil {
		return fmt.Errorf("%w: sync '%s': %w", utils.ErrCompression, dst, err)
	}
	return nil
}
