// Package store implements the on-disk wiki store (spec.md §3, §4.1):
// pages with keep-old-revisions history, binary file uploads with a
// content-type sidecar, a per-space page-name index cache, and an
// append-only change log.
//
// Every page, keep, file, sidecar and index write goes through
// github.com/natefinch/atomic (grounded on
// a-h/gemini in the retrieval pack, which reaches for the same library
// for its own temp-file-then-rename writes) so a crash between write
// and rename always leaves either the old or the new content visible,
// never a truncated file — the atomicity guarantee spec.md §4.1 and §7
// both require. The change log is the exception: it is appended with a
// single O_APPEND write per line.
package store

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/natefinch/atomic"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned by read operations that find nothing, mapped
// by callers to Gemini status 51.
var ErrNotFound = errors.New("store: not found")

// ErrInvalidName is returned when a page/file name fails validation.
var ErrInvalidName = errors.New("store: invalid name")

const (
	pageDir    = "page"
	keepDir    = "keep"
	fileDir    = "file"
	metaDir    = "meta"
	indexName  = "index"
	changesLog = "changes.log"
)

// ReservedNames lists the top-level directory names a space name must
// never collide with (spec.md §3 "Space" invariant): spaces live as
// subdirectories of the wiki root right alongside these.
var ReservedNames = map[string]bool{
	"page":        true,
	"keep":        true,
	"file":        true,
	"meta":        true,
	"index":       true,
	"changes.log": true,
	"config":      true,
}

// fieldSep is the change-log column separator, ASCII unit separator.
const fieldSep = "\x1f"

// Store is the on-disk backing store for every declared wiki space.
type Store struct {
	root string
	log  *logrus.Logger

	mu          sync.Mutex // guards the two lock maps below
	pageLocks   map[string]*sync.Mutex
	spaceLocks  map[string]*sync.Mutex
}

// New creates a Store rooted at dir. dir must already exist.
func New(dir string, log *logrus.Logger) *Store {
	return &Store{
		root:       dir,
		log:        log,
		pageLocks:  make(map[string]*sync.Mutex),
		spaceLocks: make(map[string]*sync.Mutex),
	}
}

// ValidateName rejects names that cannot round-trip through
// percent-encode/decode, contain a path separator or NUL byte, or
// start with a dot (spec.md §4.1).
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: not valid utf-8", ErrInvalidName)
	}
	if strings.ContainsRune(name, '/') || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: contains / or NUL", ErrInvalidName)
	}
	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: leading dot", ErrInvalidName)
	}
	return nil
}

func (s *Store) spaceRoot(space string) string {
	if space == "" {
		return s.root
	}
	return filepath.Join(s.root, space)
}

func (s *Store) pagePath(space, name string) string {
	return filepath.Join(s.spaceRoot(space), pageDir, name+".gmi")
}

func (s *Store) keepPath(space, name string, rev int) string {
	return filepath.Join(s.spaceRoot(space), keepDir, name, strconv.Itoa(rev)+".gmi")
}

func (s *Store) keepDirPath(space, name string) string {
	return filepath.Join(s.spaceRoot(space), keepDir, name)
}

func (s *Store) filePath(space, name string) string {
	return filepath.Join(s.spaceRoot(space), fileDir, name)
}

func (s *Store) metaPath(space, name string) string {
	return filepath.Join(s.spaceRoot(space), metaDir, name)
}

func (s *Store) indexPath(space string) string {
	return filepath.Join(s.spaceRoot(space), indexName)
}

func (s *Store) changesPath(space string) string {
	return filepath.Join(s.spaceRoot(space), changesLog)
}

// pageLock returns the mutex serializing every commit for (space, name).
func (s *Store) pageLock(space, name string) *sync.Mutex {
	key := space + "\x00" + name
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.pageLocks[key]
	if !ok {
		m = &sync.Mutex{}
		s.pageLocks[key] = m
	}
	return m
}

// spaceLock returns the mutex serializing change-log appends for space.
func (s *Store) spaceLock(space string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.spaceLocks[space]
	if !ok {
		m = &sync.Mutex{}
		s.spaceLocks[space] = m
	}
	return m
}

// currentRevision returns the current revision for (space, name) and
// whether a primary slot is currently present (i.e. the page is not in
// a deleted state). It must be called with the page lock held.
func (s *Store) currentRevision(space, name string) (rev int, hasPrimary bool, err error) {
	if _, err := os.Stat(s.pagePath(space, name)); err == nil {
		hasPrimary = true
	} else if !os.IsNotExist(err) {
		return 0, false, err
	}

	keepMax, err := s.maxKeepRevision(space, name)
	if err != nil {
		return 0, false, err
	}

	if keepMax == 0 && !hasPrimary {
		return 0, false, nil
	}
	return keepMax + 1, hasPrimary, nil
}

func (s *Store) maxKeepRevision(space, name string) (int, error) {
	entries, err := os.ReadDir(s.keepDirPath(space, name))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	max := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n := strings.TrimSuffix(e.Name(), ".gmi")
		rev, err := strconv.Atoi(n)
		if err != nil {
			continue
		}
		if rev > max {
			max = rev
		}
	}
	return max, nil
}

// ReadPage returns the current revision of (space, name).
func (s *Store) ReadPage(space, name string) (text string, rev int, err error) {
	if err := ValidateName(name); err != nil {
		return "", 0, err
	}

	lock := s.pageLock(space, name)
	lock.Lock()
	defer lock.Unlock()

	rev, hasPrimary, err := s.currentRevision(space, name)
	if err != nil {
		return "", 0, err
	}
	if !hasPrimary {
		return "", 0, ErrNotFound
	}

	data, err := os.ReadFile(s.pagePath(space, name))
	if err != nil {
		return "", 0, err
	}
	return string(data), rev, nil
}

// ReadPageRevision returns a specific historical (or current) revision.
func (s *Store) ReadPageRevision(space, name string, rev int) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}

	lock := s.pageLock(space, name)
	lock.Lock()
	defer lock.Unlock()

	current, hasPrimary, err := s.currentRevision(space, name)
	if err != nil {
		return "", err
	}

	if hasPrimary && rev == current {
		data, err := os.ReadFile(s.pagePath(space, name))
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	data, err := os.ReadFile(s.keepPath(space, name, rev))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", err
	}
	return string(data), nil
}

// Revision describes one entry in a page's history.
type Revision struct {
	Number  int
	Current bool // true if this is the live, unarchived primary slot
}

// History lists every revision of (space, name), newest first. Returns
// ErrNotFound if the page has no recorded history at all.
func (s *Store) History(space, name string) ([]Revision, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	lock := s.pageLock(space, name)
	lock.Lock()
	defer lock.Unlock()

	current, hasPrimary, err := s.currentRevision(space, name)
	if err != nil {
		return nil, err
	}
	if current == 0 {
		return nil, ErrNotFound
	}

	keepMax, err := s.maxKeepRevision(space, name)
	if err != nil {
		return nil, err
	}

	out := make([]Revision, 0, current)
	if hasPrimary {
		out = append(out, Revision{Number: current, Current: true})
	}
	for r := keepMax; r >= 1; r-- {
		out = append(out, Revision{Number: r})
	}
	return out, nil
}

// WritePage commits a new revision of (space, name). An empty newText
// deletes the current primary slot while preserving history — the
// deletion is itself a revision, per spec.md §3.
func (s *Store) WritePage(space, name, newText, code string) (rev int, err error) {
	if err := ValidateName(name); err != nil {
		return 0, err
	}

	lock := s.pageLock(space, name)
	lock.Lock()
	defer lock.Unlock()

	current, hasPrimary, err := s.currentRevision(space, name)
	if err != nil {
		return 0, err
	}

	if current >= 1 && hasPrimary {
		data, err := os.ReadFile(s.pagePath(space, name))
		if err != nil {
			return 0, err
		}
		if err := os.MkdirAll(s.keepDirPath(space, name), 0o755); err != nil {
			return 0, err
		}
		if err := atomic.WriteFile(s.keepPath(space, name, current), bytes.NewReader(data)); err != nil {
			return 0, err
		}
	} else if current >= 1 {
		// The page is deleted: keep the deletion revision as an empty
		// slot so the numbering stays gap-free and monotonic.
		if err := os.MkdirAll(s.keepDirPath(space, name), 0o755); err != nil {
			return 0, err
		}
		if err := atomic.WriteFile(s.keepPath(space, name, current), strings.NewReader("")); err != nil {
			return 0, err
		}
	}

	pagePath := s.pagePath(space, name)
	if newText == "" {
		if err := os.Remove(pagePath); err != nil && !os.IsNotExist(err) {
			return 0, err
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(pagePath), 0o755); err != nil {
			return 0, err
		}
		if err := atomic.WriteFile(pagePath, strings.NewReader(newText)); err != nil {
			return 0, err
		}
	}

	newRev := current + 1

	if err := s.appendChange(space, name, newRev, code); err != nil {
		if s.log != nil {
			s.log.WithError(err).Warn("store: change log append failed after committed page write")
		}
	}

	if err := os.Remove(s.indexPath(space)); err != nil && !os.IsNotExist(err) {
		if s.log != nil {
			s.log.WithError(err).Warn("store: failed to invalidate index cache")
		}
	}

	return newRev, nil
}

// WriteFile overwrites a binary upload in place. Files carry no
// revision history: last writer wins.
func (s *Store) WriteFile(space, name string, data []byte, mime, code string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	lock := s.pageLock(space, name)
	lock.Lock()
	defer lock.Unlock()

	filePath := s.filePath(space, name)
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return err
	}
	if err := atomic.WriteFile(filePath, bytes.NewReader(data)); err != nil {
		return err
	}

	metaPath := s.metaPath(space, name)
	if err := os.MkdirAll(filepath.Dir(metaPath), 0o755); err != nil {
		return err
	}
	if err := atomic.WriteFile(metaPath, strings.NewReader(sidecarBody(mime))); err != nil {
		return err
	}

	if err := s.appendChange(space, name, 0, code); err != nil {
		if s.log != nil {
			s.log.WithError(err).Warn("store: change log append failed after committed file write")
		}
	}
	return nil
}

func sidecarBody(mime string) string {
	return fmt.Sprintf("content-type: %s\n", mime)
}

func parseSidecar(data []byte) string {
	line := strings.TrimSpace(string(data))
	return strings.TrimSpace(strings.TrimPrefix(line, "content-type:"))
}

// ReadFile returns the raw bytes and declared MIME type of a binary upload.
func (s *Store) ReadFile(space, name string) (data []byte, mime string, err error) {
	if err := ValidateName(name); err != nil {
		return nil, "", err
	}

	lock := s.pageLock(space, name)
	lock.Lock()
	defer lock.Unlock()

	data, err = os.ReadFile(s.filePath(space, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}

	metaRaw, err := os.ReadFile(s.metaPath(space, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}

	return data, parseSidecar(metaRaw), nil
}

// ListPages returns every current page name in space, in sorted order,
// reading the cached index if fresh or rebuilding it from a directory
// scan otherwise.
func (s *Store) ListPages(space string) ([]string, error) {
	idxPath := s.indexPath(space)
	if data, err := os.ReadFile(idxPath); err == nil {
		return splitIndex(data), nil
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	dir := filepath.Join(s.spaceRoot(space), pageDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(e.Name(), ".gmi") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".gmi"))
	}
	sort.Strings(names)

	var buf bytes.Buffer
	for _, n := range names {
		buf.WriteString(n)
		buf.WriteString("\n")
	}
	if err := atomic.WriteFile(idxPath, &buf); err != nil && s.log != nil {
		s.log.WithError(err).Warn("store: failed to persist rebuilt index")
	}

	return names, nil
}

func splitIndex(data []byte) []string {
	lines := strings.Split(string(data), "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l == "" {
			continue
		}
		out = append(out, l)
	}
	return out
}

// ChangeEntry is one parsed line of a space's change log.
type ChangeEntry struct {
	Timestamp time.Time
	Name      string
	Revision  int // 0 for a file write
	Code      string
}

func (s *Store) appendChange(space, name string, rev int, code string) error {
	lock := s.spaceLock(space)
	lock.Lock()
	defer lock.Unlock()

	path := s.changesPath(space)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	line := strings.Join([]string{
		strconv.FormatInt(time.Now().UTC().Unix(), 10),
		name,
		strconv.Itoa(rev),
		code,
	}, fieldSep) + "\n"

	_, err = f.WriteString(line)
	return err
}

// ReadChanges returns up to limit change-log entries for space, newest
// first, skipping offset entries. Malformed trailing lines (a torn tail
// write) are silently skipped rather than rejected.
func (s *Store) ReadChanges(space string, limit, offset int) ([]ChangeEntry, error) {
	f, err := os.Open(s.changesPath(space))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var all []ChangeEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		entry, ok := parseChangeLine(scanner.Text())
		if !ok {
			continue
		}
		all = append(all, entry)
	}

	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func parseChangeLine(line string) (ChangeEntry, bool) {
	fields := strings.Split(line, fieldSep)
	if len(fields) != 4 {
		return ChangeEntry{}, false
	}
	sec, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return ChangeEntry{}, false
	}
	rev, err := strconv.Atoi(fields[2])
	if err != nil {
		return ChangeEntry{}, false
	}
	return ChangeEntry{
		Timestamp: time.Unix(sec, 0).UTC(),
		Name:      fields[1],
		Revision:  rev,
		Code:      fields[3],
	}, true
}

// EnsureSpace creates the directory tree a space needs before it can be written to.
func (s *Store) EnsureSpace(space string) error {
	root := s.spaceRoot(space)
	for _, d := range []string{pageDir, keepDir, fileDir, metaDir} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return err
		}
	}
	return nil
}
