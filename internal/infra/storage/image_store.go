package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// 商品画像のディスク保存。
// 返すパスは "uploads/<name>" 形式（静的配信のURLと一致させる）。
type ImageStore struct {
	dir string
}

func NewImageStore(dir string) (*ImageStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &ImageStore{dir: dir}, nil
}

func (s *ImageStore) Dir() string {
	return s.dir
}

// 保存名は衝突しないようUUIDにする（元のファイル名は拡張子だけ残す）
func (s *ImageStore) Save(originalName string, src io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	name := uuid.NewString() + ext

	dst, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", err
	}

	return filepath.ToSlash(filepath.Join(filepath.Base(s.dir), name)), nil
}

// 商品削除時のベストエフォート削除に使う
func (s *ImageStore) Delete(imagePath string) error {
	name := filepath.Base(imagePath)
	if name == "." || name == "/" || name == "" {
		return fmt.Errorf("invalid image path: %q", imagePath)
	}
	return os.Remove(filepath.Join(s.dir, name))
}
