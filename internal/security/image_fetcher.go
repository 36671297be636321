package security

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrImageTooLarge は取得した画像がサイズ上限を超えた場合のエラー。
var ErrImageTooLarge = errors.New("remote image exceeds size limit")

// ImageFetcher はURLで指定された画像を取得する。
type ImageFetcher struct {
	client   *http.Client
	validate func(rawURL string) error
	maxSize  int64
}

// NewImageFetcher はSSRF防止付きのImageFetcherを生成する。
func NewImageFetcher(guard SSRFGuardService, timeout time.Duration, maxSize int64) *ImageFetcher {
	return &ImageFetcher{
		client:   guard.NewSafeClient(timeout),
		validate: guard.ValidateURL,
		maxSize:  maxSize,
	}
}

// Fetch はURLを検証してから画像本体を取得する。
// 2xx以外の応答やmaxSizeを超える応答はエラーにする。画像形式の判定は呼び出し側で行う。
func (f *ImageFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := f.validate(rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	if resp.ContentLength > f.maxSize {
		return nil, ErrImageTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, ErrImageTooLarge
	}
	return data, nil
}
