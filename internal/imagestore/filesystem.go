package imagestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hitoshi/carmarket/internal/model"
)

// FileSystemStore はローカルファイルシステムに画像を保存する。
// 保存した画像はURLPrefix配下で静的配信される。
type FileSystemStore struct {
	root      string
	urlPrefix string
}

// NewFileSystemStore はFileSystemStoreを生成する。
// rootは画像ルートディレクトリ、urlPrefixは配信パス（例: "/images"）。
func NewFileSystemStore(root, urlPrefix string) *FileSystemStore {
	return &FileSystemStore{root: root, urlPrefix: urlPrefix}
}

// Root は画像ルートディレクトリを返す。
func (s *FileSystemStore) Root() string {
	return s.root
}

// CreateDirectory は画像ディレクトリを作成する。既に存在する場合は何もしない。
func (s *FileSystemStore) CreateDirectory(ctx context.Context, dir string) error {
	dir, err := cleanDir(dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(s.root, filepath.FromSlash(dir)), 0o755); err != nil {
		return fmt.Errorf("failed to create image directory: %w", err)
	}
	return nil
}

// RemoveDirectory は画像ディレクトリを配下ごと削除する。
func (s *FileSystemStore) RemoveDirectory(ctx context.Context, dir string) error {
	dir, err := cleanDir(dir)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(s.root, filepath.FromSlash(dir))); err != nil {
		return fmt.Errorf("failed to remove image directory: %w", err)
	}
	return nil
}

// SaveImages は複数の画像を保存する。
func (s *FileSystemStore) SaveImages(ctx context.Context, files []Upload, dir string) ([]model.Image, error) {
	return saveAll(ctx, files, dir, s.write)
}

// Save は画像を1件保存して参照名を返す。
func (s *FileSystemStore) Save(ctx context.Context, file Upload, dir string) (string, error) {
	images, err := s.SaveImages(ctx, []Upload{file}, dir)
	if err != nil {
		return "", err
	}
	return images[0].Name, nil
}

func (s *FileSystemStore) write(ctx context.Context, name, contentType string, data []byte) error {
	full := filepath.Join(s.root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create image directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	return nil
}

// URL は参照名を配信URLに変換する。
func (s *FileSystemStore) URL(ref string) string {
	if ref == "" {
		return ""
	}
	return s.urlPrefix + "/" + ref
}

// compile-time interface check
var _ Store = (*FileSystemStore)(nil)
