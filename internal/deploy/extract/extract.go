// Package extract unpacks a downloaded release archive into a destination
// directory, rejecting unsafe entries and enforcing resource limits.
package extract

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	shipwrighterrors "github.com/sundeck-sh/shipwright/internal/errors"
)

// Limits bounds archive extraction to defend against zip bombs and
// resource exhaustion.
type Limits struct {
	MaxTotalExtractedBytes int64
	MaxFileCount           int
	MaxIndividualFileBytes int64
	MaxDecompressionRatio  int64
}

// DefaultLimits mirrors conservative production defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxTotalExtractedBytes: 10 * 1024 * 1024 * 1024,
		MaxFileCount:           10_000,
		MaxIndividualFileBytes: 1024 * 1024 * 1024,
		MaxDecompressionRatio:  100,
	}
}

// limitedReader caps the number of bytes that can be read from inner.
type limitedReader struct {
	inner io.Reader
	limit int64
	read  int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	remaining := l.limit - l.read
	if remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := l.inner.Read(p)
	l.read += int64(n)
	return n, err
}

func validatePath(entryPath string) error {
	if path.IsAbs(entryPath) || strings.HasPrefix(entryPath, "/") {
		return shipwrighterrors.PathValidation("extract.validatePath", "absolute paths are not allowed")
	}
	clean := path.Clean(entryPath)
	for _, part := range strings.Split(clean, "/") {
		if part == ".." {
			return shipwrighterrors.PathValidation("extract.validatePath", "paths containing '..' are not allowed")
		}
	}
	return nil
}

// Unpack extracts the archive at src into destDir using DefaultLimits,
// dispatching on src's file extension, then flattens a single top-level
// root directory if the archive contained exactly one.
func Unpack(src, destDir string) error {
	return UnpackWithLimits(src, destDir, DefaultLimits())
}

// UnpackWithLimits extracts the archive at src into destDir, enforcing
// limits. Supported formats: .zip, .tar.gz/.tgz, .tar.bz2/.tbz2,
// .tar.xz/.txz, .tar.zst.
func UnpackWithLimits(src, destDir string, limits Limits) error {
	lower := strings.ToLower(src)

	switch {
	case strings.HasSuffix(lower, ".zip"):
		if err := unpackZip(src, destDir, limits); err != nil {
			return err
		}
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		if err := unpackTar(src, destDir, limits, gzipDecompressor); err != nil {
			return err
		}
	case strings.HasSuffix(lower, ".tar.bz2"), strings.HasSuffix(lower, ".tbz2"):
		if err := unpackTar(src, destDir, limits, bzip2Decompressor); err != nil {
			return err
		}
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		if err := unpackTar(src, destDir, limits, xzDecompressor); err != nil {
			return err
		}
	case strings.HasSuffix(lower, ".tar.zst"):
		if err := unpackTar(src, destDir, limits, zstdDecompressor); err != nil {
			return err
		}
	default:
		return shipwrighterrors.UnsupportedFormat("extract.UnpackWithLimits", fmt.Sprintf("unsupported archive format: %s", src))
	}

	_, err := detectAndStripSingleRoot(destDir)
	return err
}

type decompressorFunc func(io.Reader) (io.Reader, func() error, error)

func gzipDecompressor(r io.Reader) (io.Reader, func() error, error) {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return nil, nil, shipwrighterrors.IOWrap(err, "extract.gzipDecompressor", "failed to open gzip stream")
	}
	return gr, gr.Close, nil
}

func bzip2Decompressor(r io.Reader) (io.Reader, func() error, error) {
	return bzip2.NewReader(r), func() error { return nil }, nil
}

func xzDecompressor(r io.Reader) (io.Reader, func() error, error) {
	xr, err := xz.NewReader(r)
	if err != nil {
		return nil, nil, shipwrighterrors.IOWrap(err, "extract.xzDecompressor", "failed to open xz stream")
	}
	return xr, func() error { return nil }, nil
}

func zstdDecompressor(r io.Reader) (io.Reader, func() error, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, nil, shipwrighterrors.IOWrap(err, "extract.zstdDecompressor", "failed to open zstd stream")
	}
	return zr, func() error { zr.Close(); return nil }, nil
}

func unpackTar(src, destDir string, limits Limits, decompress decompressorFunc) error {
	f, err := os.Open(src) // #nosec G304 -- src is a pipeline-controlled download path
	if err != nil {
		return shipwrighterrors.IOWrap(err, "extract.unpackTar", "failed to open archive")
	}
	defer f.Close()

	reader, closeReader, err := decompress(f)
	if err != nil {
		return err
	}
	defer closeReader()

	tr := tar.NewReader(reader)

	var totalBytes int64
	var fileCount int

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return shipwrighterrors.IOWrap(err, "extract.unpackTar", "failed to read tar entry")
		}

		if err := validatePath(hdr.Name); err != nil {
			return err
		}
		destPath := filepath.Join(destDir, filepath.FromSlash(hdr.Name))

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return shipwrighterrors.IOWrap(err, "extract.unpackTar", "failed to create directory")
			}
		case tar.TypeSymlink, tar.TypeLink:
			return shipwrighterrors.PathValidation("extract.unpackTar", "symbolic links are not allowed")
		case tar.TypeReg:
			fileCount++
			if fileCount > limits.MaxFileCount {
				return shipwrighterrors.LimitExceeded("extract.unpackTar", fmt.Sprintf("file count limit exceeded: %d files", limits.MaxFileCount))
			}
			if hdr.Size > limits.MaxIndividualFileBytes {
				return shipwrighterrors.LimitExceeded("extract.unpackTar", fmt.Sprintf("individual file size limit exceeded: %d bytes (limit: %d)", hdr.Size, limits.MaxIndividualFileBytes))
			}
			if totalBytes+hdr.Size > limits.MaxTotalExtractedBytes {
				return shipwrighterrors.LimitExceeded("extract.unpackTar", "total extracted bytes limit exceeded")
			}

			if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
				return shipwrighterrors.IOWrap(err, "extract.unpackTar", "failed to create parent directory")
			}
			n, err := writeLimited(destPath, tr, hdr.Size, hdr.Mode)
			if err != nil {
				return err
			}
			totalBytes += n
		default:
			return shipwrighterrors.PathValidation("extract.unpackTar", fmt.Sprintf("unsupported entry type for: %s", hdr.Name))
		}
	}

	return nil
}

func unpackZip(src, destDir string, limits Limits) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return shipwrighterrors.IOWrap(err, "extract.unpackZip", "failed to open zip archive")
	}
	defer zr.Close()

	var totalBytes int64
	var fileCount int

	for _, entry := range zr.File {
		if err := validatePath(entry.Name); err != nil {
			return err
		}
		destPath := filepath.Join(destDir, filepath.FromSlash(entry.Name))

		mode := entry.Mode()
		switch {
		case mode&os.ModeSymlink != 0:
			return shipwrighterrors.PathValidation("extract.unpackZip", "symbolic links are not allowed")
		case entry.FileInfo().IsDir():
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return shipwrighterrors.IOWrap(err, "extract.unpackZip", "failed to create directory")
			}
		case mode.IsRegular():
			fileCount++
			if fileCount > limits.MaxFileCount {
				return shipwrighterrors.LimitExceeded("extract.unpackZip", fmt.Sprintf("file count limit exceeded: %d files", limits.MaxFileCount))
			}

			uncompressedSize := int64(entry.UncompressedSize64)
			compressedSize := int64(entry.CompressedSize64)

			if uncompressedSize > limits.MaxIndividualFileBytes {
				return shipwrighterrors.LimitExceeded("extract.unpackZip", fmt.Sprintf("individual file size limit exceeded: %d bytes (limit: %d)", uncompressedSize, limits.MaxIndividualFileBytes))
			}
			if compressedSize > 0 {
				ratio := uncompressedSize / compressedSize
				if ratio > limits.MaxDecompressionRatio {
					return shipwrighterrors.LimitExceeded("extract.unpackZip", fmt.Sprintf("decompression ratio exceeded: %d (limit: %d)", ratio, limits.MaxDecompressionRatio))
				}
			}
			if totalBytes+uncompressedSize > limits.MaxTotalExtractedBytes {
				return shipwrighterrors.LimitExceeded("extract.unpackZip", "total extracted bytes limit exceeded")
			}

			if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
				return shipwrighterrors.IOWrap(err, "extract.unpackZip", "failed to create parent directory")
			}

			rc, err := entry.Open()
			if err != nil {
				return shipwrighterrors.IOWrap(err, "extract.unpackZip", "failed to open zip entry")
			}
			n, err := writeLimited(destPath, rc, uncompressedSize, mode)
			_ = rc.Close()
			if err != nil {
				return err
			}
			totalBytes += n
		default:
			return shipwrighterrors.PathValidation("extract.unpackZip", fmt.Sprintf("unsupported entry type for: %s", entry.Name))
		}
	}

	return nil
}

// writeLimited copies up to size bytes from r into a newly created file at
// destPath, applying mode's execute bits if any are set, and returns the
// number of bytes actually written.
func writeLimited(destPath string, r io.Reader, size int64, mode os.FileMode) (int64, error) {
	out, err := os.Create(destPath) // #nosec G304 -- destPath is validated and confined to the staging directory
	if err != nil {
		return 0, shipwrighterrors.IOWrap(err, "extract.writeLimited", "failed to create destination file")
	}

	lr := &limitedReader{inner: r, limit: size}
	n, err := io.Copy(out, lr)
	if err != nil {
		_ = out.Close()
		return 0, shipwrighterrors.IOWrap(err, "extract.writeLimited", "failed to write extracted file")
	}
	if err := out.Close(); err != nil {
		return 0, shipwrighterrors.IOWrap(err, "extract.writeLimited", "failed to close extracted file")
	}

	if mode&0o111 != 0 {
		if err := os.Chmod(destPath, mode.Perm()); err != nil { // #nosec G302
			return 0, shipwrighterrors.IOWrap(err, "extract.writeLimited", "failed to set executable permissions")
		}
	}
	return n, nil
}

// detectAndStripSingleRoot hoists the contents of destDir's sole child
// directory up one level and removes the now-empty wrapper, matching
// GitHub's convention of wrapping a tarball in a single "project-version/"
// directory. Returns whether a root was stripped.
func detectAndStripSingleRoot(destDir string) (bool, error) {
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return false, shipwrighterrors.IOWrap(err, "extract.detectAndStripSingleRoot", "failed to list destination directory")
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return false, nil
	}

	rootDir := filepath.Join(destDir, entries[0].Name())
	children, err := os.ReadDir(rootDir)
	if err != nil {
		return false, shipwrighterrors.IOWrap(err, "extract.detectAndStripSingleRoot", "failed to list root directory")
	}

	for _, child := range children {
		src := filepath.Join(rootDir, child.Name())
		dst := filepath.Join(destDir, child.Name())
		if err := os.Rename(src, dst); err != nil {
			return false, shipwrighterrors.IOWrap(err, "extract.detectAndStripSingleRoot", "failed to hoist entry")
		}
	}

	if err := os.Remove(rootDir); err != nil {
		return false, shipwrighterrors.IOWrap(err, "extract.detectAndStripSingleRoot", "failed to remove stripped root directory")
	}
	return true, nil
}
