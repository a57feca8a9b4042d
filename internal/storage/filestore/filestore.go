// Пакет filestore — хранение исходных документов схем на локальном диске.
// Запись потоковая, с подсчётом SHA-256 на лету.
package filestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bigkaa/goartstore/schema-module/internal/storage"
)

// FileStore — документы в поддиректориях корневой директории.
type FileStore struct {
	// dataDir — корневая директория хранения (SM_STORAGE_DIR)
	dataDir string
	now     func() time.Time
}

// New создаёт FileStore и директорию данных, если её нет.
func New(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}
	return &FileStore{dataDir: dataDir, now: time.Now}, nil
}

// Save записывает документ в {dataDir}/{folder}.
// Паттерн: temp файл → запись + SHA-256 → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (s *FileStore) Save(ctx context.Context, r io.Reader, folder, filename, owner string) (*storage.SaveResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ref, err := storage.CleanRef(storage.JoinRef(folder, storage.GenerateName(filename, owner, s.now())))
	if err != nil {
		return nil, err
	}
	fullPath := s.FullPath(ref)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return nil, fmt.Errorf("ошибка создания директории %s: %w", folder, err)
	}
	tmpPath := fullPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	hasher := sha256.New()
	size, err := io.Copy(f, io.TeeReader(r, hasher))
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &storage.SaveResult{
		Ref:      ref,
		Size:     size,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Open открывает документ для чтения. Вызывающий код обязан закрыть ReadCloser.
func (s *FileStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cleaned, err := storage.CleanRef(ref)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(s.FullPath(cleaned))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, ref)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", ref, err)
	}
	return f, nil
}

// FullPath возвращает абсолютный путь к документу на диске.
func (s *FileStore) FullPath(ref string) string {
	return filepath.Join(s.dataDir, filepath.FromSlash(ref))
}

// DataDir возвращает путь к директории данных.
func (s *FileStore) DataDir() string {
	return s.dataDir
}
