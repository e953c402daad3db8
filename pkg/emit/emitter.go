package emit

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/sitemap-gen/pkg/metrics"
	"github.com/Sriram-PR/sitemap-gen/pkg/utils"
)

// Document is anything that serializes itself as one sitemap file
type Document interface {
	WriteTo(w io.Writer) (int64, error)
	Len() int
}

// EmitResult describes the file that ended up on disk
type EmitResult struct {
	URL        string // Public URL as registered in the parent index
	Path       string // Final file path (.xml or .xml.gz)
	Compressed bool
	Bytes      int64 // Size of the final file
	SHA256     string
	Entries    int
}

// Emitter writes documents under an output directory and computes their public URLs
type Emitter struct {
	baseURL    string
	compressor Compressor
	recorder   metrics.Recorder
	log        *logrus.Entry
}

// Option configures an Emitter
type Option func(*Emitter)

// WithCompressor replaces the gzip compressor
func WithCompressor(c Compressor) Option {
	return func(e *Emitter) { e.compressor = c }
}

// WithRecorder reports emitted files and compression failures
func WithRecorder(r metrics.Recorder) Option {
	return func(e *Emitter) { e.recorder = r }
}

// NewEmitter creates an Emitter publishing under baseURL
func NewEmitter(baseURL string, log *logrus.Logger, opts ...Option) *Emitter {
	e := &Emitter{
		baseURL:    baseURL,
		compressor: NewGzipCompressor(),
		recorder:   metrics.NoopRecorder{},
		log:        log.WithField("component", "emitter"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BaseURL returns the address public URLs are built from
func (e *Emitter) BaseURL() string {
	return e.baseURL
}

// PublicURL builds baseURL[/parentFolder]/name.xml[.gz]
func PublicURL(baseURL, parentFolder, name string, compressed bool) string {
	u := baseURL
	if parentFolder != "" {
		u += "/" + parentFolder
	}
	u += "/" + name + ".xml"
	if compressed {
		u += ".gz"
	}
	return u
}

// Emit writes doc to outputDir/fileBaseName.xml and, when compress is set, replaces it with
// fileBaseName.xml.gz. A compression failure is logged and the plain file is published instead.
// The returned URL always reflects the file that exists after the call.
func (e *Emitter) Emit(doc Document, outputDir, fileBaseName string, compress bool, parentFolder string) (EmitResult, error) {
	xmlPath := filepath.Join(outputDir, fileBaseName+".xml")
	fileLog := e.log.WithField("file", xmlPath)
	start := time.Now()

	size, err := writeDocument(doc, xmlPath)
	if err != nil {
		return EmitResult{}, err
	}

	result := EmitResult{Path: xmlPath, Bytes: size, Entries: doc.Len()}
	if compress {
		gzPath := xmlPath + ".gz"
		if cerr := e.compressor.Compress(xmlPath, gzPath); cerr != nil {
			fileLog.WithField("error_type", utils.CategorizeError(cerr)).Errorf("Failed to compress file: %v", cerr)
			e.recorder.IncCompressionFailure()
			if rmErr := os.Remove(gzPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				fileLog.Warnf("Failed to remove partial compressed file: %v", rmErr)
			}
		} else {
			result.Compressed = true
			result.Path = gzPath
			if info, statErr := os.Stat(gzPath); statErr == nil {
				result.Bytes = info.Size()
			}
			if rmErr := os.Remove(xmlPath); rmErr != nil {
				fileLog.Warnf("Compressed, but failed to delete uncompressed file: %v", rmErr)
			}
		}
	}

	if sum, hashErr := utils.CalculateFileSHA256(result.Path); hashErr == nil {
		result.SHA256 = sum
	} else {
		fileLog.Debugf("Could not hash emitted file: %v", hashErr)
	}

	result.URL = PublicURL(e.baseURL, parentFolder, fileBaseName, result.Compressed)
	e.recorder.IncFiles(result.Compressed)
	fileLog.WithFields(logrus.Fields{
		"entries":    result.Entries,
		"compressed": result.Compressed,
		"bytes":      result.Bytes,
		"duration":   time.Since(start),
	}).Debug("Emitted sitemap file")
	return result, nil
}

// writeDocument creates or truncates path and writes the serialized document to it
func writeDocument(doc Document, path string) (n int64, err error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("%w: create '%s': %w", utils.ErrFilesystem, path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: close '%s': %w", utils.ErrFilesystem, path, cerr)
		}
	}()

	w := bufio.NewWriter(f)
	if n, err = doc.WriteTo(w); err != nil {
		return n, fmt.Errorf("%w: write '%s': %w", utils.ErrFilesystem, path, err)
	}
	if err = w.Flush(); err != nil {
		return n, fmt.Errorf("%w: flush '%s': %w", utils.ErrFilesystem, path, err)
	}
	if err = f.Sync(); err != nil {
		return n, fmt.Errorf("%w: sync '%s': %w", utils.ErrFilesystem, path, err)
	}
	return n, nil
}
