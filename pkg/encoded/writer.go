// Package encoded writes base64 payloads handed over by the UI to disk,
// decoding them in fixed-size slices so memory stays flat for large files.
package encoded

import (
	"bufio"
	"encoding/base64"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/go-artifactdelivery/pkg/artifact"
	"github.com/go-artifactdelivery/pkg/config"
	"github.com/go-artifactdelivery/pkg/utils"
)

// Writer decodes encoded payloads chunk by chunk
type Writer struct {
	fs        afero.Fs
	logger    *utils.Logger
	chunkSize int
}

// NewWriter creates a writer on the host filesystem
func NewWriter(chunkSize int, logger *utils.Logger) *Writer {
	return NewWriterFs(afero.NewOsFs(), chunkSize, logger)
}

// NewWriterFs creates a writer on fs. chunkSize is rounded down to a multiple of 4.
func NewWriterFs(fs afero.Fs, chunkSize int, logger *utils.Logger) *Writer {
	chunkSize -= chunkSize % 4
	if chunkSize <= 0 {
		chunkSize = config.DefaultDecodeChunkSize
	}
	return &Writer{fs: fs, logger: logger, chunkSize: chunkSize}
}

// SaveEncoded decodes payload into path and returns the number of bytes written
func (w *Writer) SaveEncoded(path, payload string) (int64, error) {
	return w.SaveEncodedFrom(path, strings.NewReader(payload))
}

// SaveEncodedFrom is SaveEncoded reading the encoded text from r.
// On a decode failure the bytes of earlier chunks stay on disk.
func (w *Writer) SaveEncodedFrom(path string, r io.Reader) (int64, error) {
	if err := utils.EnsureDirForFileFs(w.fs, path); err != nil {
		return 0, &artifact.Error{Kind: artifact.KindDirectoryCreateFailed, Op: "save", Path: path, Err: err}
	}

	file, err := w.fs.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return 0, artifact.Wrap("save", path, err)
	}

	written, err := w.decodeChunks(path, newPayloadReader(r), file)
	if err != nil {
		file.Close()
		return written, err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return written, artifact.Wrap("save", path, errors.Wrap(err, "flush"))
	}
	if err := file.Close(); err != nil {
		return written, artifact.Wrap("save", path, errors.Wrap(err, "close"))
	}

	w.logger.Debug("Saved %d bytes to %s", written, path)
	return written, nil
}

func (w *Writer) decodeChunks(path string, r io.Reader, out io.Writer) (int64, error) {
	encodedBuf := make([]byte, w.chunkSize)
	decodedBuf := make([]byte, base64.StdEncoding.DecodedLen(w.chunkSize))
	var written int64
	padded := false

	for index := 0; ; index++ {
		n, readErr := io.ReadFull(r, encodedBuf)
		if n > 0 {
			// padding only ends the whole payload, never a chunk in the middle
			if padded {
				return written, &artifact.Error{Kind: artifact.KindChunkDecodeError, Op: "save", Path: path, Index: index, Err: errDataAfterPadding}
			}
			padded = encodedBuf[n-1] == '='

			decoded, err := base64.StdEncoding.Decode(decodedBuf, encodedBuf[:n])
			if err != nil {
				return written, &artifact.Error{Kind: artifact.KindChunkDecodeError, Op: "save", Path: path, Index: index, Err: err}
			}
			if _, err := out.Write(decodedBuf[:decoded]); err != nil {
				return written, artifact.Wrap("save", path, err)
			}
			written += int64(decoded)
			w.logger.Verbose("Decoded chunk %d: %d bytes", index, decoded)
		}

		switch {
		case readErr == nil:
			continue
		case readErr == io.EOF || readErr == io.ErrUnexpectedEOF:
			return written, nil
		case readErr == errNotBase64DataURL:
			return written, &artifact.Error{Kind: artifact.KindChunkDecodeError, Op: "save", Path: path, Index: index, Err: readErr}
		default:
			return written, artifact.Wrap("save", path, readErr)
		}
	}
}

// payloadReader strips a data URL prefix and any whitespace from the encoded stream
type payloadReader struct {
	br       *bufio.Reader
	inPrefix bool
}

const dataURLMarker = ";base64,"

var (
	errNotBase64DataURL = errors.New("data url is not base64 encoded")
	errDataAfterPadding = errors.New("encoded data after padding")
)

func newPayloadReader(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	pr := &payloadReader{br: br}
	if head, _ := br.Peek(5); string(head) == "data:" {
		pr.inPrefix = true
	}
	return pr
}

func (p *payloadReader) Read(b []byte) (int, error) {
	if p.inPrefix {
		prefix, err := p.br.ReadString(',')
		if err != nil || !strings.HasSuffix(prefix, dataURLMarker) {
			return 0, errNotBase64DataURL
		}
		p.inPrefix = false
	}

	n := 0
	for n < len(b) {
		c, err := p.br.ReadByte()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}
		switch c {
		case ' ', '\n', '\r', '\t':
			continue
		}
		b[n] = c
		n++
	}
	return n, nil
}
