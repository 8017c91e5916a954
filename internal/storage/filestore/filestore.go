// Пакет filestore — файловый шлюз фотографий отчётов.
// Отвечает за приём загрузок во временные имена, разрешение путей,
// построение публичных URL и удаление файлов с повтором при
// кратковременной блокировке.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// OptSuffix — суффикс имени нормализованного файла.
const OptSuffix = "-opt.jpg"

// variantExts — расширения исходных вариантов, удаляемых после нормализации.
var variantExts = []string{".webp", ".png", ".jpg", ".jpeg"}

// ErrTooLarge — загружаемый файл превышает допустимый размер.
var ErrTooLarge = errors.New("файл превышает допустимый размер")

// Параметры повтора удаления занятого файла.
const (
	deleteInitialInterval = 60 * time.Millisecond
	deleteMultiplier      = 2
	deleteMaxRetries      = 5
)

// FileStore — управляемая директория фотографий.
type FileStore struct {
	// dir — директория хранения (RM_UPLOAD_DIR)
	dir string
	// publicPrefix — префикс публичного URL без ведущего и завершающего /
	publicPrefix string
}

// StageResult — результат приёма загружаемого файла.
type StageResult struct {
	// Name — сгенерированное имя файла в директории
	Name string
	// FullPath — абсолютный путь файла на диске
	FullPath string
	// Size — количество записанных байт
	Size int64
}

// New создаёт FileStore и при необходимости создаёт директорию.
func New(dir, publicPrefix string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию загрузок %s: %w", dir, err)
	}
	return &FileStore{
		dir:          dir,
		publicPrefix: strings.Trim(publicPrefix, "/"),
	}, nil
}

// Stage записывает данные из reader под сгенерированным именем
// report-<unix-ms>-<uuid8>.<ext>. maxSize <= 0 отключает ограничение.
//
// Паттерн: temp файл → запись → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (fs *FileStore) Stage(reader io.Reader, originalFilename string, maxSize int64) (*StageResult, error) {
	name := generateStagedName(originalFilename, time.Now())
	fullPath := filepath.Join(fs.dir, name)
	tmpPath := fullPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	src := reader
	if maxSize > 0 {
		src = io.LimitReader(reader, maxSize+1)
	}

	size, err := io.Copy(f, src)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}
	if maxSize > 0 && size > maxSize {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: больше %d байт", ErrTooLarge, maxSize)
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

	return &StageResult{Name: name, FullPath: fullPath, Size: size}, nil
}

// FullPath возвращает абсолютный путь файла. Компоненты каталогов в name отбрасываются.
func (fs *FileStore) FullPath(name string) string {
	return filepath.Join(fs.dir, filepath.Base(name))
}

// PublicURL возвращает внешний URL файла: /<prefix>/<escaped-name>.
func (fs *FileStore) PublicURL(name string) string {
	return "/" + fs.publicPrefix + "/" + url.PathEscape(name)
}

// PublicPrefix возвращает префикс публичных URL.
func (fs *FileStore) PublicPrefix() string {
	return fs.publicPrefix
}

// Dir возвращает управляемую директорию.
func (fs *FileStore) Dir() string {
	return fs.dir
}

// FileSize возвращает размер файла на диске.
func (fs *FileStore) FileSize(name string) (int64, error) {
	info, err := os.Stat(fs.FullPath(name))
	if err != nil {
		return 0, fmt.Errorf("ошибка получения информации о файле %s: %w", name, err)
	}
	return info.Size(), nil
}

// SafeDelete удаляет файл. Отсутствующий файл не считается ошибкой.
// Ошибки занятости и прав доступа повторяются с экспоненциальной
// задержкой (60ms, x2, не более 5 повторов), остальные возвращаются сразу.
func (fs *FileStore) SafeDelete(ctx context.Context, name string) error {
	return SafeDeletePath(ctx, fs.FullPath(name))
}

// SafeDeletePath — SafeDelete для абсолютного пути.
func SafeDeletePath(ctx context.Context, path string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = deleteInitialInterval
	b.Multiplier = deleteMultiplier
	b.RandomizationFactor = 0

	op := func() error {
		err := os.Remove(path)
		switch {
		case err == nil, errors.Is(err, os.ErrNotExist):
			return nil
		case isBusy(err):
			return err
		default:
			return backoff.Permanent(err)
		}
	}

	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, deleteMaxRetries), ctx)); err != nil {
		return fmt.Errorf("ошибка удаления файла %s: %w", filepath.Base(path), err)
	}
	return nil
}

// DeleteVariants удаляет исходные варианты <base>.webp|.png|.jpg|.jpeg.
// Возвращает объединённую ошибку по всем неудачным удалениям.
func (fs *FileStore) DeleteVariants(ctx context.Context, base string) error {
	var errs []error
	for _, ext := range variantExts {
		if err := fs.SafeDelete(ctx, base+ext); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// VariantBase возвращает базовое имя для нормализованного файла
// (report-1-ab.jpg → report-1-ab-opt.jpg → report-1-ab). ok=false, если
// файл не нормализованный.
func VariantBase(name string) (base string, ok bool) {
	if !strings.HasSuffix(name, OptSuffix) {
		return "", false
	}
	return strings.TrimSuffix(name, OptSuffix), true
}

// OptName возвращает имя нормализованного файла для исходного имени.
func OptName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + OptSuffix
}

// isBusy — ошибка кратковременной блокировки файла.
func isBusy(err error) bool {
	return errors.Is(err, syscall.EBUSY) ||
		errors.Is(err, syscall.ETXTBSY) ||
		errors.Is(err, os.ErrPermission)
}

// generateStagedName генерирует имя загружаемого файла.
// Формат: report-<unix-ms>-<uuid8>.<ext>
// Пример: report-1736500000000-a1b2c3d4.jpg
func generateStagedName(originalFilename string, now time.Time) string {
	ext := sanitizeExt(filepath.Ext(originalFilename))
	uid := uuid.New().String()[:8]
	return fmt.Sprintf("report-%d-%s%s", now.UnixMilli(), uid, ext)
}

// sanitizeExt оставляет в расширении только латинские буквы и цифры
// (не более 5 символов) в нижнем регистре. Пустой результат — .bin.
func sanitizeExt(ext string) string {
	var result strings.Builder
	for _, r := range strings.ToLower(strings.TrimPrefix(ext, ".")) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			result.WriteRune(r)
		}
		if result.Len() == 5 {
			break
		}
	}
	if result.Len() == 0 {
		return ".bin"
	}
	return "." + result.String()
}
