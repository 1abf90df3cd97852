package fs

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// Op names an intercepted filesystem operation.
type Op string

// Operations [Faulty] can fail.
const (
	OpOpen      Op = "open"
	OpCreate    Op = "create"
	OpOpenFile  Op = "openfile"
	OpReadFile  Op = "readfile"
	OpWriteFile Op = "writefile"
	OpMkdirAll  Op = "mkdirall"
	OpMkdirTemp Op = "mkdirtemp"
	OpStat      Op = "stat"
	OpRemove    Op = "remove"
	OpRemoveAll Op = "removeall"
	OpRename    Op = "rename"
	OpWrite     Op = "write"
	OpSync      Op = "sync"
)

// InjectedError marks an error as intentionally injected by [Faulty].
//
// It wraps the underlying error so errors.Is/As continue to work, e.g.
// errors.Is(err, syscall.ENOSPC) for a simulated full disk.
type InjectedError struct {
	Err error
}

// Error returns the underlying error's message.
func (e *InjectedError) Error() string {
	return "injected: " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *InjectedError) Unwrap() error {
	return e.Err
}

// IsInjected reports whether err (or any wrapped error) was injected by [Faulty].
func IsInjected(err error) bool {
	var injected *InjectedError

	return errors.As(err, &injected)
}

// Faulty wraps an [FS] and fails operations matching configured rules.
//
// Unlike random fault injection, Faulty is deterministic: a test names the
// operation and a path substring, and every matching call fails (optionally
// after a number of successful calls). Writes through files opened by Faulty
// can be capped to simulate a full disk mid-write.
//
// Faulty is safe for concurrent use.
type Faulty struct {
	underlying FS

	mu     sync.Mutex
	rules  []*faultRule
	limits []*faultRule
	hits   int
}

type faultRule struct {
	op         Op
	pathSubstr string
	err        error
	skip       int   // matching calls that still succeed before failing
	writeLimit int64 // limits only: bytes allowed per file before failing
}

// NewFaulty creates a [Faulty] filesystem wrapping underlying.
// Panics if underlying is nil.
func NewFaulty(underlying FS) *Faulty {
	if underlying == nil {
		panic("underlying fs is nil")
	}

	return &Faulty{underlying: underlying}
}

// FailOn makes every call of op on a path containing pathSubstr fail with err.
// An empty pathSubstr matches every path.
func (f *Faulty) FailOn(op Op, pathSubstr string, err error) {
	f.FailAfter(op, pathSubstr, 0, err)
}

// FailAfter is like [Faulty.FailOn] but lets the first n matching calls succeed.
func (f *Faulty) FailAfter(op Op, pathSubstr string, n int, err error) {
	if err == nil {
		panic("err is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.rules = append(f.rules, &faultRule{op: op, pathSubstr: pathSubstr, err: err, skip: n})
}

// FailWritesAfter makes writes to files whose path contains pathSubstr fail
// with err once limit bytes have been written to that file. The write that
// crosses the limit is short: it stores the bytes that still fit.
func (f *Faulty) FailWritesAfter(pathSubstr string, limit int64, err error) {
	if err == nil {
		panic("err is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.limits = append(f.limits, &faultRule{op: OpWrite, pathSubstr: pathSubstr, err: err, writeLimit: limit})
}

// Reset removes all rules. Hits is preserved.
func (f *Faulty) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rules = nil
	f.limits = nil
}

// Hits returns the number of injected failures so far.
func (f *Faulty) Hits() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.hits
}

// check returns an injected error if a rule matches op on path.
func (f *Faulty) check(op Op, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, r := range f.rules {
		if r.op != op || !strings.Contains(path, r.pathSubstr) {
			continue
		}

		if r.skip > 0 {
			r.skip--

			continue
		}

		f.hits++

		return &os.PathError{Op: string(op), Path: path, Err: &InjectedError{Err: r.err}}
	}

	return nil
}

// writeRule returns the first write-limit rule for path, or nil.
func (f *Faulty) writeRule(path string) *faultRule {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, r := range f.limits {
		if strings.Contains(path, r.pathSubstr) {
			return r
		}
	}

	return nil
}

func (f *Faulty) wrap(path string, file File, err error) (File, error) {
	if err != nil {
		return nil, err
	}

	return &faultyFile{File: file, fs: f, path: path}, nil
}

func (f *Faulty) Open(path string) (File, error) {
	if err := f.check(OpOpen, path); err != nil {
		return nil, err
	}

	file, err := f.underlying.Open(path)

	return f.wrap(path, file, err)
}

func (f *Faulty) Create(path string) (File, error) {
	if err := f.check(OpCreate, path); err != nil {
		return nil, err
	}

	file, err := f.underlying.Create(path)

	return f.wrap(path, file, err)
}

func (f *Faulty) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	if err := f.check(OpOpenFile, path); err != nil {
		return nil, err
	}

	file, err := f.underlying.OpenFile(path, flag, perm)

	return f.wrap(path, file, err)
}

func (f *Faulty) ReadFile(path string) ([]byte, error) {
	if err := f.check(OpReadFile, path); err != nil {
		return nil, err
	}

	return f.underlying.ReadFile(path)
}

// WriteFile goes through OpenFile + Write so write-limit rules apply.
func (f *Faulty) WriteFile(path string, data []byte, perm os.FileMode) error {
	if err := f.check(OpWriteFile, path); err != nil {
		return err
	}

	file, err := f.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	_, writeErr := file.Write(data)
	closeErr := file.Close()

	return errors.Join(writeErr, closeErr)
}

func (f *Faulty) MkdirAll(path string, perm os.FileMode) error {
	if err := f.check(OpMkdirAll, path); err != nil {
		return err
	}

	return f.underlying.MkdirAll(path, perm)
}

func (f *Faulty) MkdirTemp(dir, pattern string) (string, error) {
	if err := f.check(OpMkdirTemp, dir); err != nil {
		return "", err
	}

	return f.underlying.MkdirTemp(dir, pattern)
}

func (f *Faulty) Stat(path string) (os.FileInfo, error) {
	if err := f.check(OpStat, path); err != nil {
		return nil, err
	}

	return f.underlying.Stat(path)
}

func (f *Faulty) Exists(path string) (bool, error) {
	if err := f.check(OpStat, path); err != nil {
		return false, err
	}

	return f.underlying.Exists(path)
}

func (f *Faulty) Remove(path string) error {
	if err := f.check(OpRemove, path); err != nil {
		return err
	}

	return f.underlying.Remove(path)
}

func (f *Faulty) RemoveAll(path string) error {
	if err := f.check(OpRemoveAll, path); err != nil {
		return err
	}

	return f.underlying.RemoveAll(path)
}

func (f *Faulty) Rename(oldpath, newpath string) error {
	if err := f.check(OpRename, newpath); err != nil {
		return err
	}

	return f.underlying.Rename(oldpath, newpath)
}

// faultyFile applies write-limit and sync rules to an open file.
type faultyFile struct {
	File

	fs   *Faulty
	path string

	mu      sync.Mutex
	written int64
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	if err := ff.fs.check(OpWrite, ff.path); err != nil {
		return 0, err
	}

	rule := ff.fs.writeRule(ff.path)
	if rule == nil {
		return ff.File.Write(p)
	}

	ff.mu.Lock()
	defer ff.mu.Unlock()

	room := rule.writeLimit - ff.written
	if int64(len(p)) <= room {
		n, err := ff.File.Write(p)
		ff.written += int64(n)

		return n, err
	}

	n := 0

	if room > 0 {
		var err error

		n, err = ff.File.Write(p[:room])
		ff.written += int64(n)

		if err != nil {
			return n, err
		}
	}

	ff.fs.mu.Lock()
	ff.fs.hits++
	ff.fs.mu.Unlock()

	return n, &os.PathError{Op: string(OpWrite), Path: ff.path, Err: &InjectedError{Err: rule.err}}
}

func (ff *faultyFile) Sync() error {
	if err := ff.fs.check(OpSync, ff.path); err != nil {
		return err
	}

	return ff.File.Sync()
}

// Compile-time interface check.
var _ FS = (*Faulty)(nil)
