package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"crossbot/internal/post"
	logx "crossbot/pkg/logx"
)

// fileStore keeps the queue in three text files:
//   - <prefix>.pending.txt    (one encoded post per line)
//   - <prefix>.finished.txt   (one post id per line)
//   - <prefix>.watermarks.txt ("<account_id> <unix_seconds>" per line)
//
// Blank lines and lines starting with '#' are ignored on load.
// Each file is replaced atomically (tmp + rename).
type fileStore struct {
	log logx.Logger

	pendingPath   string
	finishedPath  string
	watermarkPath string
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &fileStore{
		log:           log,
		pendingPath:   prefix + ".pending.txt",
		finishedPath:  prefix + ".finished.txt",
		watermarkPath: prefix + ".watermarks.txt",
	}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) Load(ctx context.Context) (Snapshot, error) {
	_ = ctx
	snap := Snapshot{Watermarks: map[int64]time.Time{}}

	err := readLines(s.pendingPath, func(n int, line string) error {
		p, err := post.Decode(line)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", s.pendingPath, n, err)
		}
		snap.Pending = append(snap.Pending, p)
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}

	err = readLines(s.finishedPath, func(n int, line string) error {
		id, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return fmt.Errorf("%s:%d: invalid post id %q", s.finishedPath, n, line)
		}
		snap.Finished = append(snap.Finished, id)
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}

	err = readLines(s.watermarkPath, func(n int, line string) error {
		f := strings.Fields(line)
		if len(f) != 2 {
			return fmt.Errorf("%s:%d: want \"<account_id> <unix_seconds>\", got %q", s.watermarkPath, n, line)
		}
		id, err := strconv.ParseInt(f[0], 10, 64)
		if err != nil {
			return fmt.Errorf("%s:%d: invalid account id %q", s.watermarkPath, n, f[0])
		}
		at, err := post.ParseUnix(f[1])
		if err != nil {
			return fmt.Errorf("%s:%d: invalid timestamp %q", s.watermarkPath, n, f[1])
		}
		snap.Watermarks[id] = at
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}

	s.log.Debug("queue files loaded",
		logx.Int("pending", len(snap.Pending)),
		logx.Int("finished", len(snap.Finished)),
		logx.Int("watermarks", len(snap.Watermarks)),
	)
	return snap, nil
}

// Save writes finished ids first, then pending, then watermarks. A crash
// between files can leave an id both finished and pending (it is then
// skipped on drain) but never in neither.
func (s *fileStore) Save(ctx context.Context, snap Snapshot) error {
	_ = ctx

	finished := slices.Clone(snap.Finished)
	slices.Sort(finished)
	if err := writeAtomic(s.finishedPath, func(w io.Writer) error {
		for _, id := range finished {
			if _, err := fmt.Fprintln(w, id); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if err := writeAtomic(s.pendingPath, func(w io.Writer) error {
		for _, p := range snap.Pending {
			if _, err := fmt.Fprintln(w, post.Encode(p)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	accounts := make([]int64, 0, len(snap.Watermarks))
	for id := range snap.Watermarks {
		accounts = append(accounts, id)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i] < accounts[j] })
	return writeAtomic(s.watermarkPath, func(w io.Writer) error {
		for _, id := range accounts {
			if _, err := fmt.Fprintf(w, "%d %s\n", id, post.FormatUnix(snap.Watermarks[id])); err != nil {
				return err
			}
		}
		return nil
	})
}

func readLines(path string, fn func(n int, line string) error) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := fn(n, line); err != nil {
			return err
		}
	}
	return sc.Err()
}

func writeAtomic(path string, fill func(w io.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := fill(bw); err != nil {
		_ = f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
