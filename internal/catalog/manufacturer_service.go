package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/carmarket/internal/config"
	"github.com/hitoshi/carmarket/internal/imagestore"
	"github.com/hitoshi/carmarket/internal/model"
	"github.com/hitoshi/carmarket/internal/repository"
	"github.com/hitoshi/carmarket/internal/security"
)

// ErrInvalidID はIDがUUID形式でない場合のエラー。
var ErrInvalidID = errors.New("invalid id")

const (
	msgManufacturerNameRequired = "メーカー名を入力してください。"
	msgManufacturerExists       = "メーカー '%s' は既に登録されています。"
	msgManufacturerNotFound     = "メーカーが見つかりません。"
	msgManufacturerInvalidID    = "メーカーIDの形式が正しくありません。"
	msgManufacturerCreated      = "メーカー '%s' を登録しました。"
	msgManufacturerUpdated      = "メーカー '%s' を更新しました。"
	msgManufacturersListed      = "メーカー一覧を取得しました。"
	msgImageFetchFailed         = "画像を取得できませんでした。"
)

// ImageFetcher はURLから画像を取得する。
type ImageFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// ManufacturerService はメーカーのCRUDを提供する。
type ManufacturerService struct {
	repo      repository.ManufacturerRepository
	images    imagestore.Store
	fetcher   ImageFetcher
	sanitizer security.TextSanitizerService
	paths     config.Paths
	now       func() time.Time
}

// NewManufacturerService はManufacturerServiceを生成する。
func NewManufacturerService(
	repo repository.ManufacturerRepository,
	images imagestore.Store,
	fetcher ImageFetcher,
	sanitizer security.TextSanitizerService,
	paths config.Paths,
) *ManufacturerService {
	return &ManufacturerService{
		repo:      repo,
		images:    images,
		fetcher:   fetcher,
		sanitizer: sanitizer,
		paths:     paths,
		now:       time.Now,
	}
}

// ValidID はIDがUUID形式かを返す。
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// CreateManufacturer はメーカーを登録する。名前の重複は失敗レスポンスで返す。
func (s *ManufacturerService) CreateManufacturer(ctx context.Context, req ManufacturerRequest) (*model.ServiceResponse, error) {
	name := s.sanitizer.Sanitize(req.Name)
	if name == "" {
		return model.Failure(msgManufacturerNameRequired), nil
	}

	image, failure, err := s.storeImage(ctx, req)
	if err != nil || failure != nil {
		return failure, err
	}

	now := s.now()
	m := &model.Manufacturer{
		ID:          uuid.New().String(),
		Name:        name,
		Description: s.sanitizer.Sanitize(req.Description),
		Image:       image,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return model.Failure(fmt.Sprintf(msgManufacturerExists, name)), nil
		}
		return nil, fmt.Errorf("メーカーの登録に失敗しました: %w", err)
	}

	return model.Success(fmt.Sprintf(msgManufacturerCreated, m.Name), toManufacturerDTO(m, s.images)), nil
}

// UpdateManufacturer はメーカーを更新する。画像を指定しない場合は既存の画像を維持する。
func (s *ManufacturerService) UpdateManufacturer(ctx context.Context, req ManufacturerRequest) (*model.ServiceResponse, error) {
	if !ValidID(req.ID) {
		return model.Failure(msgManufacturerInvalidID), nil
	}
	name := s.sanitizer.Sanitize(req.Name)
	if name == "" {
		return model.Failure(msgManufacturerNameRequired), nil
	}

	m, err := s.repo.FindByID(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("メーカーの取得に失敗しました: %w", err)
	}
	if m == nil {
		return model.Failure(msgManufacturerNotFound), nil
	}

	image, failure, err := s.storeImage(ctx, req)
	if err != nil || failure != nil {
		return failure, err
	}

	m.Name = name
	m.Description = s.sanitizer.Sanitize(req.Description)
	if image != "" {
		m.Image = image
	}
	m.UpdatedAt = s.now()

	updated, err := s.repo.Update(ctx, m)
	if errors.Is(err, repository.ErrDuplicate) {
		return model.Failure(fmt.Sprintf(msgManufacturerExists, name)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("メーカーの更新に失敗しました: %w", err)
	}
	if !updated {
		return model.Failure(msgManufacturerNotFound), nil
	}

	return model.Success(fmt.Sprintf(msgManufacturerUpdated, m.Name), toManufacturerDTO(m, s.images)), nil
}

// DeleteManufacturer はメーカーを削除し、削除できたかを返す。
// IDの形式はストアを呼ぶ前に検証する。
func (s *ManufacturerService) DeleteManufacturer(ctx context.Context, id string) (bool, error) {
	if !ValidID(id) {
		return false, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("メーカーの削除に失敗しました: %w", err)
	}
	if deleted {
		slog.Info("メーカーを削除しました", slog.String("manufacturer_id", id))
	}
	return deleted, nil
}

// ListManufacturers は全メーカーを返す。
func (s *ManufacturerService) ListManufacturers(ctx context.Context) (*model.ServiceResponse, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("メーカー一覧の取得に失敗しました: %w", err)
	}

	dtos := make([]*ManufacturerDTO, 0, len(list))
	for i := range list {
		dtos = append(dtos, toManufacturerDTO(&list[i], s.images))
	}
	return model.Success(msgManufacturersListed, dtos), nil
}

// storeImage はリクエストの画像を保存して参照名を返す。画像の指定がなければ空文字列を返す。
// 画像として受け付けられない場合は失敗レスポンスを返す。
func (s *ManufacturerService) storeImage(ctx context.Context, req ManufacturerRequest) (string, *model.ServiceResponse, error) {
	upload := req.Image
	if upload == nil && req.ImageURL != "" {
		data, err := s.fetcher.Fetch(ctx, req.ImageURL)
		if err != nil {
			slog.Warn("メーカー画像の取得に失敗しました",
				slog.String("url", req.ImageURL),
				slog.String("error", err.Error()),
			)
			return "", model.Failure(msgImageFetchFailed), nil
		}
		upload = &imagestore.Upload{Filename: path.Base(req.ImageURL), Data: data}
	}
	if upload == nil {
		return "", nil, nil
	}

	ref, err := s.images.Save(ctx, *upload, s.paths.ManufacturesDir)
	if errors.Is(err, imagestore.ErrNotImage) {
		return "", model.Failure(fmt.Sprintf(msgNotAnImage, upload.Filename)), nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("メーカー画像の保存に失敗しました: %w", err)
	}
	return ref, nil, nil
}
