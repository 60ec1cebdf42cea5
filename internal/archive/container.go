package archive

import (
	"archive/tar"
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"

	"github.com/BadgerOps/zarchive/internal/safety"
)

// ussContainer is implemented by the tar and zip format variants.
type ussContainer interface {
	variant
	create(w io.Writer) (memberWriter, error)
	open(path string) (memberReader, error)
}

type memberWriter interface {
	// add writes the file at path as member name.
	add(name, path string, info fs.FileInfo) error
	Close() error
}

// entry is a member as read back from a container.
type entry struct {
	safety.Member
	mode    fs.FileMode
	modTime time.Time
}

type memberReader interface {
	members() ([]safety.Member, error)
	// walk calls fn for every member in archive order with its content.
	walk(fn func(e entry, content io.Reader) error) error
	Close() error
}

type compression int

const (
	compressNone compression = iota
	compressGzip
	compressBzip2
)

// tarVariant covers tar, gz, bz2 and pax.
type tarVariant struct {
	compression compression
	format      tar.Format
}

func (tarVariant) storage() Storage { return StorageUSS }

type tarWriter struct {
	tw     *tar.Writer
	comp   io.WriteCloser
	format tar.Format
}

func (v tarVariant) create(w io.Writer) (memberWriter, error) {
	tw := &tarWriter{format: v.format}
	out := w
	switch v.compression {
	case compressGzip:
		gz := gzip.NewWriter(w)
		tw.comp, out = gz, gz
	case compressBzip2:
		bz, err := bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
		if err != nil {
			return nil, fmt.Errorf("creating bzip2 writer: %w", err)
		}
		tw.comp, out = bz, bz
	}
	tw.tw = tar.NewWriter(out)
	return tw, nil
}

func (w *tarWriter) add(name, path string, info fs.FileInfo) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    int64(info.Mode().Perm()),
		ModTime: info.ModTime().Truncate(time.Second),
		Format:  w.format,
	}
	mode := info.Mode()
	switch {
	case mode.IsDir():
		hdr.Typeflag = tar.TypeDir
		hdr.Name = strings.TrimSuffix(name, "/") + "/"
	case mode&fs.ModeSymlink != 0:
		link, err := os.Readlink(path)
		if err != nil {
			return err
		}
		hdr.Typeflag = tar.TypeSymlink
		hdr.Linkname = link
	case mode.IsRegular():
		hdr.Typeflag = tar.TypeReg
		hdr.Size = info.Size()
	default:
		return fmt.Errorf("%s: unsupported file type %s", path, mode.Type())
	}

	if err := w.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing header for %s: %w", name, err)
	}
	if hdr.Typeflag != tar.TypeReg {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	if _, err := io.Copy(w.tw, f); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

func (w *tarWriter) Close() error {
	if err := w.tw.Close(); err != nil {
		return err
	}
	if w.comp != nil {
		return w.comp.Close()
	}
	return nil
}

// tarReader reopens the file for every pass since tar streams are
// sequential.
type tarReader struct {
	path        string
	compression compression
}

func (v tarVariant) open(path string) (memberReader, error) {
	r := &tarReader{path: path, compression: v.compression}
	_, closeFn, err := r.stream()
	if err != nil {
		return nil, err
	}
	_ = closeFn()
	return r, nil
}

func (r *tarReader) stream() (*tar.Reader, func() error, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, nil, err
	}
	var src io.Reader = f
	closeFn := f.Close
	switch r.compression {
	case compressGzip:
		zr, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		src = zr
		closeFn = func() error {
			_ = zr.Close()
			return f.Close()
		}
	case compressBzip2:
		br, err := bzip2.NewReader(f, nil)
		if err != nil {
			_ = f.Close()
			return nil, nil, fmt.Errorf("creating bzip2 reader: %w", err)
		}
		src = br
		closeFn = func() error {
			_ = br.Close()
			return f.Close()
		}
	}
	return tar.NewReader(src), closeFn, nil
}

func (r *tarReader) walk(fn func(entry, io.Reader) error) error {
	tr, closeFn, err := r.stream()
	if err != nil {
		return err
	}
	defer func() {
		_ = closeFn()
	}()
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar entry: %w", err)
		}
		if err := fn(tarEntry(hdr), tr); err != nil {
			return err
		}
	}
}

func tarEntry(hdr *tar.Header) entry {
	e := entry{
		Member:  safety.Member{Name: hdr.Name, LinkName: hdr.Linkname},
		mode:    fs.FileMode(hdr.Mode).Perm(),
		modTime: hdr.ModTime,
	}
	switch hdr.Typeflag {
	case tar.TypeReg:
		e.Kind = safety.KindFile
	case tar.TypeDir:
		e.Kind = safety.KindDir
	case tar.TypeSymlink:
		e.Kind = safety.KindSymlink
	case tar.TypeLink:
		e.Kind = safety.KindHardlink
	default:
		e.Kind = safety.KindOther
	}
	return e
}

func (r *tarReader) members() ([]safety.Member, error) {
	var ms []safety.Member
	err := r.walk(func(e entry, _ io.Reader) error {
		ms = append(ms, e.Member)
		return nil
	})
	return ms, err
}

func (r *tarReader) Close() error { return nil }

// zipVariant always deflates.
type zipVariant struct{}

func (zipVariant) storage() Storage { return StorageUSS }

type zipWriter struct {
	zw *zip.Writer
}

func (zipVariant) create(w io.Writer) (memberWriter, error) {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})
	return &zipWriter{zw: zw}, nil
}

func (w *zipWriter) add(name, path string, info fs.FileInfo) error {
	hdr := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: info.ModTime().Truncate(time.Second),
	}
	hdr.SetMode(info.Mode())

	mode := info.Mode()
	var content io.Reader
	switch {
	case mode.IsDir():
		hdr.Name = strings.TrimSuffix(name, "/") + "/"
		hdr.Method = zip.Store
	case mode&fs.ModeSymlink != 0:
		link, err := os.Readlink(path)
		if err != nil {
			return err
		}
		content = strings.NewReader(link)
	case mode.IsRegular():
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer func() {
			_ = f.Close()
		}()
		content = f
	default:
		return fmt.Errorf("%s: unsupported file type %s", path, mode.Type())
	}

	out, err := w.zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("writing header for %s: %w", name, err)
	}
	if content == nil {
		return nil
	}
	if _, err := io.Copy(out, content); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

func (w *zipWriter) Close() error { return w.zw.Close() }

type zipReader struct {
	zr *zip.ReadCloser
}

func (zipVariant) open(path string) (memberReader, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w: %v", path, ErrBadZip, err)
	}
	zr.RegisterDecompressor(zip.Deflate, flate.NewReader)
	return &zipReader{zr: zr}, nil
}

func (r *zipReader) entry(f *zip.File) (entry, error) {
	mode := f.Mode()
	e := entry{
		Member:  safety.Member{Name: f.Name, Kind: safety.KindFile},
		mode:    mode.Perm(),
		modTime: f.Modified,
	}
	switch {
	case mode.IsDir() || strings.HasSuffix(f.Name, "/"):
		e.Kind = safety.KindDir
	case mode&fs.ModeSymlink != 0:
		e.Kind = safety.KindSymlink
		rc, err := f.Open()
		if err != nil {
			return e, err
		}
		link, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return e, err
		}
		e.LinkName = string(link)
	case !mode.IsRegular():
		e.Kind = safety.KindOther
	}
	return e, nil
}

func (r *zipReader) walk(fn func(entry, io.Reader) error) error {
	for _, f := range r.zr.File {
		e, err := r.entry(f)
		if err != nil {
			return fmt.Errorf("reading zip entry %s: %w", f.Name, err)
		}
		if e.Kind != safety.KindFile {
			if err := fn(e, nil); err != nil {
				return err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("opening zip entry %s: %w", f.Name, err)
		}
		err = fn(e, rc)
		_ = rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *zipReader) members() ([]safety.Member, error) {
	var ms []safety.Member
	for _, f := range r.zr.File {
		e, err := r.entry(f)
		if err != nil {
			return nil, fmt.Errorf("reading zip entry %s: %w", f.Name, err)
		}
		ms = append(ms, e.Member)
	}
	return ms, nil
}

func (r *zipReader) Close() error { return r.zr.Close() }

// extractEntry materializes e under root and returns its root-relative name.
// Members resolving to root itself, and kinds that cannot be extracted,
// return "".
func extractEntry(root string, e entry, content io.Reader) (string, error) {
	rel, err := safety.CleanRelativePath(strings.TrimRight(e.Name, "/"))
	if err != nil {
		return "", err
	}
	if rel == "." || e.Kind == safety.KindOther {
		return "", nil
	}
	target, err := safety.SafeJoinUnder(root, rel)
	if err != nil {
		return "", err
	}

	if e.Kind != safety.KindDir {
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return "", err
		}
		if err := removeNonDir(target); err != nil {
			return "", err
		}
	}

	switch e.Kind {
	case safety.KindDir:
		if err := os.MkdirAll(target, e.mode|0o700); err != nil {
			return "", err
		}
	case safety.KindSymlink:
		if err := os.Symlink(e.LinkName, target); err != nil {
			return "", err
		}
	case safety.KindHardlink:
		src, err := safety.SafeJoinUnder(root, e.LinkName)
		if err != nil {
			return "", err
		}
		if err := os.Link(src, target); err != nil {
			return "", err
		}
	default:
		perm := e.mode
		if perm == 0 {
			perm = 0o644
		}
		f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
		if err != nil {
			return "", err
		}
		_, err = io.Copy(f, content)
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if err != nil {
			return "", fmt.Errorf("extracting %s: %w", e.Name, err)
		}
		if !e.modTime.IsZero() {
			_ = os.Chtimes(target, e.modTime, e.modTime)
		}
	}
	return filepath.ToSlash(rel), nil
}

// removeNonDir clears a file or link occupying target so extraction never
// writes through an existing symlink.
func removeNonDir(target string) error {
	info, err := os.Lstat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s exists and is a directory", target)
	}
	return os.Remove(target)
}
