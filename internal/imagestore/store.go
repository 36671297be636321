// Package imagestore はアップロード画像の保存先を抽象化する。
package imagestore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/carmarket/internal/model"
)

// ErrNotImage はアップロードされたデータが対応する画像形式でない場合のエラー。
var ErrNotImage = errors.New("not a supported image")

// ErrInvalidDirectory は保存先ディレクトリが不正な場合のエラー。
var ErrInvalidDirectory = errors.New("invalid image directory")

// Upload はアップロードされた1ファイル。
type Upload struct {
	Filename string
	Data     []byte
}

// Store は画像の保存先。
// 参照名は保存先ディレクトリからの相対パス（"<dir>/<uuid><拡張子>"）。
type Store interface {
	// CreateDirectory は画像ディレクトリを作成する。
	CreateDirectory(ctx context.Context, dir string) error

	// RemoveDirectory は画像ディレクトリと配下の画像を削除する。存在しなくてもエラーにしない。
	RemoveDirectory(ctx context.Context, dir string) error

	// SaveImages は複数の画像をアップロード順に保存し、画像参照を返す。
	// 1件でも画像でないものがあれば何も保存せずにエラーを返す。
	SaveImages(ctx context.Context, files []Upload, dir string) ([]model.Image, error)

	// Save は画像を1件保存して参照名を返す。
	Save(ctx context.Context, file Upload, dir string) (string, error)

	// URL は参照名をクライアントが取得できるURLに変換する。
	URL(ref string) string
}

// 対応する画像形式と拡張子
var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// DetectImage はデータの先頭から画像形式を判定し、Content-Typeと拡張子を返す。
func DetectImage(data []byte) (contentType, ext string, err error) {
	contentType = http.DetectContentType(data)
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", "", ErrNotImage
	}
	return contentType, ext, nil
}

// cleanDir はディレクトリを正規化し、上位ディレクトリへの参照や絶対パスを拒否する。
func cleanDir(dir string) (string, error) {
	cleaned := path.Clean(strings.ReplaceAll(dir, "\\", "/"))
	if cleaned == "." || strings.HasPrefix(cleaned, "/") || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidDirectory, dir)
	}
	return cleaned, nil
}

// validateAll は全ファイルが画像であることを確認し、各ファイルの拡張子を返す。
func validateAll(files []Upload) ([]string, error) {
	exts := make([]string, len(files))
	for i, f := range files {
		_, ext, err := DetectImage(f.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", err, f.Filename)
		}
		exts[i] = ext
	}
	return exts, nil
}

// newObjectName はファイル名を生成する。元のファイル名は使わない。
func newObjectName(dir, ext string) string {
	return path.Join(dir, uuid.New().String()+ext)
}

// saveAll はvalidateAll済みのファイルをsaveで順に保存する。
func saveAll(ctx context.Context, files []Upload, dir string, save func(ctx context.Context, name, contentType string, data []byte) error) ([]model.Image, error) {
	dir, err := cleanDir(dir)
	if err != nil {
		return nil, err
	}
	exts, err := validateAll(files)
	if err != nil {
		return nil, err
	}

	images := make([]model.Image, 0, len(files))
	for i, f := range files {
		name := newObjectName(dir, exts[i])
		contentType, _, _ := DetectImage(f.Data)
		if err := save(ctx, name, contentType, f.Data); err != nil {
			return nil, err
		}
		images = append(images, model.Image{
			ID:       uuid.New().String(),
			Name:     name,
			Position: i,
		})
	}
	return images, nil
}
