// Пакет storage — общие типы хранилищ исходных документов схем.
package storage

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound — документ по ссылке не найден.
var ErrNotFound = errors.New("документ не найден")

// SaveResult — результат сохранения документа.
type SaveResult struct {
	// Ref — ссылка на документ ({folder}/{имя}), сохраняется в schemas.file_name
	Ref string
	// Size — размер записанных данных в байтах
	Size int64
	// Checksum — SHA-256 хэш содержимого
	Checksum string
}

// GenerateName генерирует имя для хранения документа.
// Формат: {name}_{owner}_{timestamp}_{uuid}.{ext}
// Пример: covid_admin_20260221150405_a1b2c3d4.json
func GenerateName(originalFilename, owner string, now time.Time) string {
	base := filepath.Base(originalFilename)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)

	name = truncate(Sanitize(name), 50)
	user := truncate(Sanitize(owner), 20)

	ts := now.UTC().Format("20060102150405")
	uid := uuid.New().String()[:8]

	ext = Sanitize(strings.TrimPrefix(ext, "."))
	if ext == "file" {
		ext = "json"
	}
	return fmt.Sprintf("%s_%s_%s_%s.%s", name, user, ts, uid, ext)
}

// Sanitize убирает небезопасные символы.
// Остаются буквы, цифры, дефис и подчёркивание.
func Sanitize(s string) string {
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' ||
			(r >= 0x0400 && r <= 0x04FF) { // Кириллица
			result.WriteRune(r)
		}
	}
	if result.Len() == 0 {
		return "file"
	}
	return result.String()
}

// JoinRef склеивает папку и имя в ссылку на документ.
func JoinRef(folder, name string) string {
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return name
	}
	return path.Join(folder, name)
}

// CleanRef проверяет ссылку: относительный путь без выхода за корень.
func CleanRef(ref string) (string, error) {
	if ref == "" || strings.HasPrefix(ref, "/") || strings.Contains(ref, `\`) {
		return "", fmt.Errorf("недопустимая ссылка на документ %q", ref)
	}
	cleaned := path.Clean(ref)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("недопустимая ссылка на документ %q", ref)
	}
	return cleaned, nil
}

// truncate обрезает строку до max рун.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) > max {
		return string(r[:max])
	}
	return s
}
