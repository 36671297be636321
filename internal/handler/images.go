package handler

import (
	"net/http"
	"os"
)

// imageFileSystem はディレクトリを存在しないものとして扱うhttp.FileSystem。
// http.FileServerによるディレクトリ一覧の出力を防ぐ。
type imageFileSystem struct {
	fs http.FileSystem
}

func (fsys imageFileSystem) Open(name string) (http.File, error) {
	f, err := fsys.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, os.ErrNotExist
	}
	return f, nil
}

// imagesHandler は画像ルート配下のファイルのみを配信する。
func imagesHandler(dir string) http.Handler {
	return http.StripPrefix("/images/", http.FileServer(imageFileSystem{fs: http.Dir(dir)}))
}
