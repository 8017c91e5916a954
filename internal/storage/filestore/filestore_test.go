package filestore

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

// TestNew_CreatesDirectory проверяет создание директории загрузок.
func TestNew_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads", "reports")

	fs, err := New(dir, "/uploads/reports/")
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}
	if fs.Dir() != dir {
		t.Errorf("ожидался путь %s, получен %s", dir, fs.Dir())
	}
	if fs.PublicPrefix() != "uploads/reports" {
		t.Errorf("PublicPrefix() = %q, ожидалось uploads/reports", fs.PublicPrefix())
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("директория не создана: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("путь не является директорией")
	}
}

// TestStage проверяет запись загружаемого файла под сгенерированным именем.
func TestStage(t *testing.T) {
	fs, _ := New(t.TempDir(), "uploads/reports")

	content := []byte("фото хлеба")
	res, err := fs.Stage(bytes.NewReader(content), "Хлеб.JPG", 0)
	if err != nil {
		t.Fatalf("ошибка Stage: %v", err)
	}

	if ok, _ := regexp.MatchString(`^report-\d+-[0-9a-f]{8}\.jpg$`, res.Name); !ok {
		t.Errorf("имя %q не соответствует формату report-<ms>-<uuid8>.jpg", res.Name)
	}
	if res.Size != int64(len(content)) {
		t.Errorf("размер: ожидалось %d, получено %d", len(content), res.Size)
	}

	data, err := os.ReadFile(res.FullPath)
	if err != nil {
		t.Fatalf("файл не записан: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Error("содержимое файла не совпадает")
	}
	if _, err := os.Stat(res.FullPath + ".tmp"); !os.IsNotExist(err) {
		t.Error("временный файл не удалён")
	}
}

// TestStage_TooLarge проверяет ограничение размера.
func TestStage_TooLarge(t *testing.T) {
	dir := t.TempDir()
	fs, _ := New(dir, "uploads/reports")

	_, err := fs.Stage(strings.NewReader("0123456789"), "big.png", 5)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("ожидалась ErrTooLarge, получено %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("после ошибки в директории остались файлы: %d", len(entries))
	}
}

// TestPublicURL проверяет экранирование имени и обратное декодирование.
func TestPublicURL(t *testing.T) {
	fs, _ := New(t.TempDir(), "uploads/reports")

	name := "report 1#a?.jpg"
	u := fs.PublicURL(name)
	if !strings.HasPrefix(u, "/uploads/reports/") {
		t.Fatalf("URL %q без префикса", u)
	}

	decoded, err := url.PathUnescape(strings.TrimPrefix(u, "/uploads/reports/"))
	if err != nil {
		t.Fatalf("ошибка декодирования: %v", err)
	}
	if decoded != name {
		t.Errorf("декодированное имя %q, ожидалось %q", decoded, name)
	}
}

// TestFullPath_StripsDirectories проверяет защиту от выхода за пределы директории.
func TestFullPath_StripsDirectories(t *testing.T) {
	dir := t.TempDir()
	fs, _ := New(dir, "uploads/reports")

	got := fs.FullPath("../../etc/passwd")
	if got != filepath.Join(dir, "passwd") {
		t.Errorf("FullPath() = %q, ожидался путь внутри %s", got, dir)
	}
}

// TestSafeDelete проверяет удаление и идемпотентность.
func TestSafeDelete(t *testing.T) {
	dir := t.TempDir()
	fs, _ := New(dir, "uploads/reports")
	ctx := context.Background()

	path := filepath.Join(dir, "a.jpg")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := fs.SafeDelete(ctx, "a.jpg"); err != nil {
		t.Fatalf("ошибка удаления: %v", err)
	}
	if exists(fs, "a.jpg") {
		t.Error("файл не удалён")
	}
	// Повторное удаление — не ошибка
	if err := fs.SafeDelete(ctx, "a.jpg"); err != nil {
		t.Errorf("повторное удаление вернуло ошибку: %v", err)
	}
}

// TestSafeDelete_NonEmptyDirIsPermanent проверяет, что постоянная ошибка не повторяется.
func TestSafeDelete_NonEmptyDirIsPermanent(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "busy")
	if err := os.MkdirAll(filepath.Join(sub, "inner"), 0o750); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	err := SafeDeletePath(context.Background(), sub)
	if err == nil {
		t.Fatal("ожидалась ошибка удаления непустой директории")
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("постоянная ошибка не должна повторяться, прошло %v", elapsed)
	}
}

// TestDeleteVariants проверяет удаление исходных вариантов рядом с -opt.jpg.
func TestDeleteVariants(t *testing.T) {
	dir := t.TempDir()
	fs, _ := New(dir, "uploads/reports")

	base := "report-1-abcd1234"
	for _, name := range []string{base + ".png", base + ".jpeg", base + OptSuffix} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	if err := fs.DeleteVariants(context.Background(), base); err != nil {
		t.Fatalf("ошибка DeleteVariants: %v", err)
	}
	if exists(fs, base+".png") || exists(fs, base+".jpeg") {
		t.Error("варианты не удалены")
	}
	if !exists(fs, base+OptSuffix) {
		t.Error("нормализованный файл не должен удаляться")
	}
}

func TestVariantBase(t *testing.T) {
	if base, ok := VariantBase("report-1-ab-opt.jpg"); !ok || base != "report-1-ab" {
		t.Errorf("VariantBase() = %q, %v", base, ok)
	}
	if _, ok := VariantBase("report-1-ab.jpg"); ok {
		t.Error("VariantBase() для обычного файла должен вернуть false")
	}
	if got := OptName("report-1-ab.png"); got != "report-1-ab-opt.jpg" {
		t.Errorf("OptName() = %q", got)
	}
}

func TestSanitizeExt(t *testing.T) {
	tests := map[string]string{
		".JPG":      ".jpg",
		".jpeg":     ".jpeg",
		"":          ".bin",
		".":         ".bin",
		".we/bp":    ".webp",
		".toolongx": ".toolo",
	}
	for in, want := range tests {
		if got := sanitizeExt(in); got != want {
			t.Errorf("sanitizeExt(%q) = %q, ожидалось %q", in, got, want)
		}
	}
}

// exists проверяет наличие файла в директории хранилища.
func exists(store *FileStore, name string) bool {
	_, err := os.Stat(store.FullPath(name))
	return err == nil
}
