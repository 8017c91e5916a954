// Пакет service — бизнес-логика Report Module: приём отчётов,
// жизненный цикл, отложенная очистка файлов и очистка по сроку хранения.
package service

import (
	"errors"

	"github.com/bigkaa/foodsalvage/report-module/internal/normalizer"
)

// Ошибки сервисного слоя. Сопоставляются через errors.Is.
var (
	// ErrInvalidPayload — данные отчёта не прошли проверку.
	ErrInvalidPayload = errors.New("некорректные данные отчёта")
	// ErrUnsupportedMediaType — тип загруженного файла не поддерживается.
	ErrUnsupportedMediaType = errors.New("тип файла не поддерживается")
	// ErrInvalidImage — загруженный файл не является корректным изображением.
	ErrInvalidImage = normalizer.ErrInvalidImage
	// ErrConflict — отчёт закрыт или изменён другим пользователем.
	ErrConflict = errors.New("конфликт состояния отчёта")
	// ErrStorage — сбой БД или файловой системы при сохранении.
	ErrStorage = errors.New("ошибка хранилища")
	// ErrFilesystem — сбой очистки файлов. Только логируется.
	ErrFilesystem = errors.New("ошибка очистки файлов")
)
