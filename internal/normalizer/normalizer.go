// Пакет normalizer — приведение загруженных фотографий к каноническому JPEG.
//
// Лестница кодирования: вписывание в 1600×1600 (без увеличения), качество 78;
// если результат больше 800 KiB — повтор из декодированного оригинала
// в 1400×1400 с качеством 68. Результат пишется в новый файл <base>-opt.jpg,
// исходный файл удаляется только после успешной записи.
package normalizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	_ "golang.org/x/image/webp" // регистрация декодера WEBP в image.Decode

	"github.com/bigkaa/foodsalvage/report-module/internal/storage/filestore"
)

// MediaTypeJPEG — тип нормализованного файла.
const MediaTypeJPEG = "image/jpeg"

// Бюджеты лестницы кодирования.
const (
	MaxOutputBytes = 800 * 1024

	primaryMaxSide  = 1600
	primaryQuality  = 78
	fallbackMaxSide = 1400
	fallbackQuality = 68
)

// Ошибки нормализации.
var (
	// ErrUnsupportedFormat — заявленный тип не поддерживается (GIF).
	ErrUnsupportedFormat = errors.New("формат изображения не поддерживается")
	// ErrInvalidImage — содержимое файла не является корректным изображением.
	ErrInvalidImage = errors.New("некорректное изображение")
)

// InvalidImageError — повреждённое изображение. Paths — все пути,
// затронутые попыткой (исходный файл и цель -opt.jpg).
type InvalidImageError struct {
	Paths []string
	Err   error
}

func (e *InvalidImageError) Error() string {
	return fmt.Sprintf("некорректное изображение: %v", e.Err)
}

// Is позволяет сопоставлять ошибку с ErrInvalidImage через errors.Is.
func (e *InvalidImageError) Is(target error) bool {
	return target == ErrInvalidImage
}

func (e *InvalidImageError) Unwrap() error {
	return e.Err
}

// Типы, перекодируемые в JPEG.
var (
	jpegTypes = map[string]bool{
		"image/jpeg":  true,
		"image/jpg":   true,
		"image/pjpeg": true,
	}
	// flattenTypes — форматы с возможной прозрачностью, фон заливается белым.
	flattenTypes = map[string]bool{
		"image/png":   true,
		"image/x-png": true,
		"image/webp":  true,
		"image/heic":  true,
		"image/heif":  true,
	}
)

// Prometheus-метрики нормализатора.
var (
	filesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rm_normalizer_files_total",
		Help: "Количество обработанных фотографий по результату.",
	}, []string{"result"})
	outputBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rm_normalizer_output_bytes",
		Help:    "Размер нормализованных JPEG в байтах.",
		Buckets: prometheus.ExponentialBuckets(32*1024, 2, 6),
	})
)

// File — файл фотографии в управляемой директории.
type File struct {
	// Name — имя файла в директории FileStore
	Name string
	// OriginalName — имя файла у клиента (информационное)
	OriginalName string
	// MediaType — заявленный или итоговый MIME-тип
	MediaType string
	// Size — размер в байтах
	Size int64
}

// Normalizer — нормализатор фотографий.
type Normalizer struct {
	store  *filestore.FileStore
	logger *slog.Logger
}

// New создаёт нормализатор поверх файлового шлюза.
func New(store *filestore.FileStore, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		store:  store,
		logger: logger.With(slog.String("component", "normalizer")),
	}
}

// Normalize обрабатывает один загруженный файл. Вызывается ровно один раз на файл.
//
// Результаты:
//   - image/gif — ErrUnsupportedFormat (файл удаляет вызывающий)
//   - JPEG/PNG/WEBP/HEIC — новый файл <base>-opt.jpg, исходный удалён
//   - прочие типы — файл без изменений
//   - повреждённые данные — *InvalidImageError, затронутые файлы удалены
//   - прочие сбои (чтение, кодирование, запись) — исходный файл без изменений
func (n *Normalizer) Normalize(ctx context.Context, f File) (*File, error) {
	mediaType := strings.ToLower(strings.TrimSpace(f.MediaType))

	if mediaType == "image/gif" {
		filesTotal.WithLabelValues("unsupported").Inc()
		return nil, ErrUnsupportedFormat
	}

	flatten := flattenTypes[mediaType]
	if !jpegTypes[mediaType] && !flatten {
		filesTotal.WithLabelValues("passthrough").Inc()
		return &f, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	srcPath := n.store.FullPath(f.Name)
	optName := filestore.OptName(f.Name)
	optPath := n.store.FullPath(optName)

	log := n.logger.With(
		slog.String("file", f.Name),
		slog.String("media_type", mediaType),
	)

	src, err := os.ReadFile(srcPath)
	if err != nil {
		log.Warn("Не удалось прочитать файл, оставляем исходный", slog.String("error", err.Error()))
		filesTotal.WithLabelValues("kept").Inc()
		return &f, nil
	}

	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		if isInvalidImage(err) {
			n.purge(ctx, srcPath, optPath)
			filesTotal.WithLabelValues("invalid").Inc()
			log.Info("Некорректное изображение отклонено", slog.String("error", err.Error()))
			return nil, &InvalidImageError{Paths: []string{srcPath, optPath}, Err: err}
		}
		log.Warn("Ошибка декодирования, оставляем исходный", slog.String("error", err.Error()))
		filesTotal.WithLabelValues("kept").Inc()
		return &f, nil
	}

	data, err := encodeLadder(img, flatten)
	if err != nil {
		log.Warn("Ошибка кодирования JPEG, оставляем исходный", slog.String("error", err.Error()))
		filesTotal.WithLabelValues("kept").Inc()
		return &f, nil
	}

	if err := writeAtomic(optPath, data); err != nil {
		log.Warn("Ошибка записи JPEG, оставляем исходный", slog.String("error", err.Error()))
		filesTotal.WithLabelValues("kept").Inc()
		return &f, nil
	}

	size := int64(len(data))
	if onDisk, err := n.store.FileSize(optName); err == nil {
		size = onDisk
	}

	if optPath != srcPath {
		if err := n.store.SafeDelete(ctx, f.Name); err != nil {
			log.Warn("Не удалось удалить исходный файл", slog.String("error", err.Error()))
		}
	}

	filesTotal.WithLabelValues("optimized").Inc()
	outputBytes.Observe(float64(size))
	log.Debug("Фотография нормализована",
		slog.String("output", optName),
		slog.Int64("size", size),
		slog.Int64("original_size", f.Size),
	)

	return &File{
		Name:         optName,
		OriginalName: f.OriginalName,
		MediaType:    MediaTypeJPEG,
		Size:         size,
	}, nil
}

// encodeLadder кодирует изображение по основному шагу и при превышении
// MaxOutputBytes повторяет с резервными параметрами из того же оригинала.
func encodeLadder(img image.Image, flatten bool) ([]byte, error) {
	data, err := encodeStep(img, primaryMaxSide, primaryQuality, flatten)
	if err != nil {
		return nil, err
	}
	if len(data) <= MaxOutputBytes {
		return data, nil
	}
	return encodeStep(img, fallbackMaxSide, fallbackQuality, flatten)
}

// encodeStep вписывает изображение в maxSide×maxSide и кодирует JPEG.
func encodeStep(img image.Image, maxSide, quality int, flatten bool) ([]byte, error) {
	var out image.Image = imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)

	if flatten {
		b := out.Bounds()
		bg := imaging.New(b.Dx(), b.Dy(), color.White)
		out = imaging.Overlay(bg, out, image.Pt(0, 0), 1.0)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("ошибка кодирования JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// writeAtomic записывает данные через временный файл и rename.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".opt-*.tmp")
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка переименования: %w", err)
	}
	return nil
}

// purge удаляет затронутые файлы, ошибки только логируются.
func (n *Normalizer) purge(ctx context.Context, paths ...string) {
	for _, p := range paths {
		if err := filestore.SafeDeletePath(ctx, p); err != nil {
			n.logger.Warn("Не удалось удалить файл некорректного изображения",
				slog.String("path", p),
				slog.String("error", err.Error()),
			)
		}
	}
}

// isInvalidImage определяет ошибки декодирования, означающие повреждённые
// или неподдерживаемые данные.
func isInvalidImage(err error) bool {
	if errors.Is(err, image.ErrFormat) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}

	var (
		jpegFormat      jpeg.FormatError
		jpegUnsupported jpeg.UnsupportedError
		pngFormat       png.FormatError
		pngUnsupported  png.UnsupportedError
	)
	if errors.As(err, &jpegFormat) || errors.As(err, &jpegUnsupported) ||
		errors.As(err, &pngFormat) || errors.As(err, &pngUnsupported) {
		return true
	}

	// Декодер x/image/webp и его RIFF-парсер возвращают ошибки без типов
	msg := err.Error()
	return strings.Contains(msg, "webp:") || strings.Contains(msg, "riff:")
}
