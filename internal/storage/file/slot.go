package file

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/cartstore/internal/domain"
)

const filePerm = 0o600

// Slot хранит состояние корзины в файле. Запись атомарна: temp-файл + rename.
type Slot struct {
	mu   sync.Mutex
	path string
}

// NewSlot создаёт ячейку в каталоге dir; имя файла выводится из ключа.
func NewSlot(dir, key string) (*Slot, error) {
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("slot key is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create slot dir %s: %w", dir, err)
	}
	return &Slot{path: filepath.Join(dir, fileName(key))}, nil
}

// Path возвращает путь к файлу ячейки.
func (s *Slot) Path() string {
	return s.path
}

func (s *Slot) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrSlotEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrSlotUnavailable, s.path, err)
	}
	return data, nil
}

func (s *Slot) Save(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", domain.ErrSlotUnavailable, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: write temp file: %v", domain.ErrSlotUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: sync temp file: %v", domain.ErrSlotUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: close temp file: %v", domain.ErrSlotUnavailable, err)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		cleanup()
		return fmt.Errorf("%w: chmod temp file: %v", domain.ErrSlotUnavailable, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("%w: rename %s: %v", domain.ErrSlotUnavailable, s.path, err)
	}
	return nil
}

func (s *Slot) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %v", domain.ErrSlotUnavailable, s.path, err)
	}
	return nil
}

// fileName кодирует ключ в base64url: разные ключи никогда не делят один файл,
// а разделители путей в имя не попадают.
func fileName(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key)) + ".json"
}

var _ domain.Slot = (*Slot)(nil)
