/*
Package history keeps each identity's append-only message log and replays it on reconnect.

Logs are newline-delimited plaintext files, one per identity, named by Key. When an archive is
configured, a log is uploaded when its appender closes and restored from the archive when a
replay finds no local file.
*/
package history

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"relaychat/internal/app/storage"
	"relaychat/internal/pkg/logx"
)

// ErrNoHistory is returned by Replay when the identity has no log.
var ErrNoHistory = errors.New("history: no history for identity")

const (
	archivePrefix  = "history/"
	archiveTimeout = 30 * time.Second

	// maxLineBytes bounds a single replayed line.
	maxLineBytes = 1 << 20
)

// Store is the per-identity append-only log abstraction used by sessions.
type Store interface {
	// Replay calls fn for every stored line of identity, in order, without the trailing newline.
	// It returns ErrNoHistory if identity has no log.
	Replay(ctx context.Context, identity string, fn func(line string) error) error

	// OpenAppender opens (creating if needed) identity's log for appending.
	OpenAppender(ctx context.Context, identity string) (Appender, error)
}

// Appender appends lines to one identity's log.
type Appender interface {
	// Append writes line followed by a newline.
	Append(line string) error

	// Close releases the log and archives it when an archive is configured.
	Close() error
}

// FileStore is a Store backed by files under a root directory.
type FileStore struct {
	root    string
	archive storage.ArchiveService
	logger  zerolog.Logger
}

// NewFileStore returns a FileStore rooted at root. archive may be nil.
func NewFileStore(root string, archive storage.ArchiveService) *FileStore {
	return &FileStore{
		root:    root,
		archive: archive,
		logger:  logx.Component("history"),
	}
}

func (s *FileStore) path(identity string) string {
	return filepath.Join(s.root, Key(identity))
}

func (s *FileStore) Replay(ctx context.Context, identity string, fn func(line string) error) error {
	f, err := os.Open(s.path(identity))
	if errors.Is(err, os.ErrNotExist) && s.archive != nil {
		if err = s.restore(ctx, identity); err == nil {
			f, err = os.Open(s.path(identity))
		}
	}
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("%w: %s", ErrNoHistory, identity)
	}
	if err != nil {
		return fmt.Errorf("open history for %s: %w", identity, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read history for %s: %w", identity, err)
	}
	return nil
}

// restore downloads identity's archived log into place.
func (s *FileStore) restore(ctx context.Context, identity string) error {
	ctx, cancel := context.WithTimeout(ctx, archiveTimeout)
	defer cancel()

	body, err := s.archive.Download(ctx, archivePrefix+Key(identity))
	if err != nil {
		return err
	}
	defer body.Close()

	if err := os.MkdirAll(s.root, 0o750); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.root, ".restore-*")
	if err != nil {
		return fmt.Errorf("create restore file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("restore history for %s: %w", identity, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("restore history for %s: %w", identity, err)
	}

	// A concurrent session may have created the log meanwhile; keep its file.
	if err := os.Link(tmp.Name(), s.path(identity)); err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("install restored history for %s: %w", identity, err)
	}

	s.logger.Info().Str("identity", identity).Msg("History restored from archive.")
	return nil
}

func (s *FileStore) OpenAppender(_ context.Context, identity string) (Appender, error) {
	if err := os.MkdirAll(s.root, 0o750); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	path := s.path(identity)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open history for %s: %w", identity, err)
	}

	return &fileAppender{store: s, identity: identity, path: path, f: f}, nil
}

type fileAppender struct {
	store    *FileStore
	identity string
	path     string

	mu     sync.Mutex
	f      *os.File
	closed bool
}

// Append issues a single write per line so that appenders of the same identity
// in other sessions never interleave within a line.
func (a *fileAppender) Append(line string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return os.ErrClosed
	}

	if _, err := a.f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("append history for %s: %w", a.identity, err)
	}
	return nil
}

func (a *fileAppender) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	err := a.f.Close()
	a.mu.Unlock()

	if err != nil {
		return fmt.Errorf("close history for %s: %w", a.identity, err)
	}

	if a.store.archive != nil {
		return a.store.upload(a.identity, a.path)
	}
	return nil
}

func (s *FileStore) upload(identity, path string) error {
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open history for archive: %w", err)
	}
	defer f.Close()

	if err := s.archive.Upload(ctx, archivePrefix+Key(identity), f); err != nil {
		return err
	}

	s.logger.Debug().Str("identity", identity).Msg("History archived.")
	return nil
}
