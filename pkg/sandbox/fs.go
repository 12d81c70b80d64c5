// Package sandbox wraps the filesystem the embedded adapter checks remote
// content out onto. Pulled content is untrusted: writes into the reserved
// configuration directory are redirected into a quarantine subtree, writes of
// non-whitelisted file types are silently dropped, and note content is passed
// through a fixed set of neutralizing rewrites. Reads and metadata calls pass
// through unmodified.
//
// billy exposes no synchronous write path that could bypass the overlay;
// every mutation funnels through the Filesystem interface implemented here.
package sandbox

import (
	"bytes"
	"os"
	"path"
	"strings"

	"gopkg.in/src-d/go-billy.v4"

	"github.com/RahmaniErfan/abstract-folder-sub001/pkg/errors"
)

const (
	// ConfigDirName is the reserved per-workspace configuration directory.
	// Remote writes must never land there directly: its contents configure
	// the application that will open this workspace.
	ConfigDirName = ".afconfig"

	// QuarantineDirName is the subtree quarantined configuration writes are
	// redirected into, mirroring their original relative path.
	QuarantineDirName = ".quarantine"

	gitDirName = ".git"
)

var allowedExtensions = map[string]bool{
	".md": true, ".markdown": true, ".txt": true, ".csv": true,
	".json": true, ".yml": true, ".yaml": true, ".css": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".svg": true, ".webp": true, ".bmp": true, ".pdf": true,
	".canvas": true,
}

var allowedBasenames = map[string]bool{
	"LICENSE": true, "COPYING": true, "README": true,
	".gitignore": true, ".gitattributes": true,
}

// Overlay is a billy.Filesystem that applies the write policy. base carries
// the path prefix accumulated through Chroot so the policy always evaluates
// workspace-relative paths; root keeps the workspace-rooted filesystem so
// quarantined writes land in a single mirror no matter how deep the chroot.
type Overlay struct {
	inner billy.Filesystem
	root  billy.Filesystem
	base  string
}

// New wraps inner with the write policy.
func New(inner billy.Filesystem) billy.Filesystem {
	return &Overlay{inner: inner, root: inner}
}

func (o *Overlay) norm(filename string) string {
	return path.Join(o.base, path.Clean(strings.ReplaceAll(filename, "\\", "/")))
}

// isGitMeta reports whether the path is internal version-control metadata.
// Metadata is exempt from every policy: rewriting it would corrupt the
// repository.
func isGitMeta(normPath string) bool {
	return normPath == gitDirName || strings.HasPrefix(normPath, gitDirName+"/")
}

func underConfigDir(normPath string) bool {
	for _, segment := range strings.Split(normPath, "/") {
		if segment == ConfigDirName {
			return true
		}
	}
	return false
}

func whitelisted(normPath string) bool {
	base := path.Base(normPath)
	if allowedBasenames[base] {
		return true
	}
	ext := strings.ToLower(path.Ext(base))
	return allowedExtensions[ext]
}

func sanitizable(normPath string) bool {
	ext := strings.ToLower(path.Ext(normPath))
	return ext == ".md" || ext == ".markdown"
}

func quarantinePath(normPath string) string {
	return path.Join(QuarantineDirName, normPath)
}

func (o *Overlay) Create(filename string) (billy.File, error) {
	return o.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

func (o *Overlay) Open(filename string) (billy.File, error) {
	return o.inner.Open(filename)
}

func (o *Overlay) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) == 0 {
		return o.inner.OpenFile(filename, flag, perm)
	}

	normPath := o.norm(filename)
	switch {
	case isGitMeta(normPath):
		return o.inner.OpenFile(filename, flag, perm)
	case underConfigDir(normPath):
		// Redirect the write into the workspace-rooted quarantine mirror.
		// The real path is never touched.
		return o.root.OpenFile(quarantinePath(normPath), flag, perm)
	case !whitelisted(normPath):
		// Dropped, not an error: the file simply never materializes, and
		// the status layer reports it as missing. Intentional quirk.
		return newDiscardFile(filename), nil
	case sanitizable(normPath):
		return o.openSanitizing(filename, flag, perm)
	default:
		return o.inner.OpenFile(filename, flag, perm)
	}
}

func (o *Overlay) openSanitizing(filename string, flag int, perm os.FileMode) (billy.File, error) {
	buffered := &bufferedFile{name: filename}
	if flag&os.O_APPEND != 0 && flag&os.O_TRUNC == 0 {
		existing, err := o.inner.Open(filename)
		if err == nil {
			var buf bytes.Buffer
			if _, err := buf.ReadFrom(existing); err != nil {
				existing.Close()
				return nil, err
			}
			existing.Close()
			buffered.buf = buf
		}
	}
	buffered.flush = func(content []byte) error {
		f, err := o.inner.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
		if err != nil {
			return err
		}
		if _, err := f.Write(Sanitize(content)); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}
	return buffered, nil
}

func (o *Overlay) Stat(filename string) (os.FileInfo, error) {
	return o.inner.Stat(filename)
}

// Rename is policy-checked against its destination: a rename is just a write
// spelled differently.
func (o *Overlay) Rename(oldpath, newpath string) error {
	normNew := o.norm(newpath)
	switch {
	case isGitMeta(normNew):
		return o.inner.Rename(oldpath, newpath)
	case underConfigDir(normNew):
		return o.root.Rename(o.norm(oldpath), quarantinePath(normNew))
	case !whitelisted(normNew):
		// Dropped: the source stays put rather than escaping to a
		// disallowed destination.
		return nil
	default:
		return o.inner.Rename(oldpath, newpath)
	}
}

func (o *Overlay) Remove(filename string) error {
	return o.inner.Remove(filename)
}

func (o *Overlay) Join(elem ...string) string {
	return o.inner.Join(elem...)
}

func (o *Overlay) TempFile(dir, prefix string) (billy.File, error) {
	return o.inner.TempFile(dir, prefix)
}

func (o *Overlay) ReadDir(path string) ([]os.FileInfo, error) {
	return o.inner.ReadDir(path)
}

func (o *Overlay) MkdirAll(filename string, perm os.FileMode) error {
	return o.inner.MkdirAll(filename, perm)
}

func (o *Overlay) Lstat(filename string) (os.FileInfo, error) {
	return o.inner.Lstat(filename)
}

// Symlink targets can escape the policy entirely, so symlinks from remote
// content are never materialized outside git metadata.
func (o *Overlay) Symlink(target, link string) error {
	if isGitMeta(o.norm(link)) {
		return o.inner.Symlink(target, link)
	}
	return nil
}

func (o *Overlay) Readlink(link string) (string, error) {
	return o.inner.Readlink(link)
}

func (o *Overlay) Chroot(chrootPath string) (billy.Filesystem, error) {
	inner, err := o.inner.Chroot(chrootPath)
	if err != nil {
		return nil, err
	}
	return &Overlay{inner: inner, root: o.root, base: path.Join(o.base, path.Clean(chrootPath))}, nil
}

func (o *Overlay) Root() string {
	return o.inner.Root()
}

var errWriteOnly = errors.New("sandboxed write handle does not support reads")

// bufferedFile accumulates writes in memory and hands the final content to
// flush on Close, so partially written files never exist on disk and content
// transforms see the whole file. A nil flush discards the content.
type bufferedFile struct {
	name   string
	buf    bytes.Buffer
	flush  func([]byte) error
	closed bool
}

func newDiscardFile(name string) billy.File {
	return &bufferedFile{name: name}
}

func (f *bufferedFile) Name() string { return f.name }

func (f *bufferedFile) Write(p []byte) (int, error) {
	if f.closed {
		return 0, os.ErrClosed
	}
	return f.buf.Write(p)
}

func (f *bufferedFile) Read(p []byte) (int, error)                { return 0, errWriteOnly }
func (f *bufferedFile) ReadAt(p []byte, off int64) (int, error)   { return 0, errWriteOnly }
func (f *bufferedFile) Seek(offset int64, whence int) (int64, error) {
	// go-git seeks to the start before rewriting a file it just wrote.
	if offset == 0 && whence == 0 {
		f.buf.Reset()
		return 0, nil
	}
	return 0, errWriteOnly
}

func (f *bufferedFile) Close() error {
	if f.closed {
		return os.ErrClosed
	}
	f.closed = true
	if f.flush == nil {
		return nil
	}
	return f.flush(f.buf.Bytes())
}

func (f *bufferedFile) Truncate(size int64) error {
	if size == 0 {
		f.buf.Reset()
		return nil
	}
	return errors.New("sandboxed write handle supports truncate only to zero")
}

func (f *bufferedFile) Lock() error   { return nil }
func (f *bufferedFile) Unlock() error { return nil }
