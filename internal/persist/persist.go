package persist

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// Store keeps one JSON document per named snapshot file under a data
// directory. Writes go through a temp file and rename so a crash mid-write
// never leaves a half-written snapshot behind. A snapshot that fails to
// parse is treated as absent: the in-memory state stays authoritative and
// the next save overwrites the bad file.
type Store struct {
	mu     sync.Mutex
	dir    string
	logger *zap.Logger
}

func New(dir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Load fills v from the named snapshot. It returns false when the file is
// missing or unreadable; corruption is logged and never returned as an error.
func (s *Store) Load(name string, v any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("snapshot read failed", zap.String("file", name), zap.Error(err))
		}
		return false
	}
	if err := sonic.Unmarshal(data, v); err != nil {
		s.logger.Warn("snapshot corrupt, treating as empty", zap.String("file", name), zap.Error(err))
		return false
	}
	return true
}

func (s *Store) Save(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := sonic.Marshal(v)
	if err != nil {
		s.logger.Warn("snapshot marshal failed", zap.String("file", name), zap.Error(err))
		return err
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.logger.Warn("snapshot write failed", zap.String("file", name), zap.Error(err))
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		s.logger.Warn("snapshot rename failed", zap.String("file", name), zap.Error(err))
		return err
	}
	return nil
}
