package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/carmarket/internal/config"
	"github.com/hitoshi/carmarket/internal/imagestore"
	"github.com/hitoshi/carmarket/internal/metrics"
	"github.com/hitoshi/carmarket/internal/model"
	"github.com/hitoshi/carmarket/internal/repository"
	"github.com/hitoshi/carmarket/internal/security"
)

const (
	msgCarSaveFailed = "車両を保存できませんでした。"
	msgCarSaved      = "車両 '%s %s' を保存しました。"
	msgCarsListed    = "車両一覧を取得しました。"
	msgNotAnImage    = "画像ファイルではありません: %s"
	msgInvalidImages = "画像ファイルではないファイルが含まれています。"
)

// ManufacturerFinder はメーカー名の解決に使用する。
type ManufacturerFinder interface {
	FindByName(ctx context.Context, name string) (*model.Manufacturer, error)
}

// CarService は車両の登録と一覧取得を提供する。
type CarService struct {
	cars          repository.CarRepository
	manufacturers ManufacturerFinder
	images        imagestore.Store
	sanitizer     security.TextSanitizerService
	metrics       metrics.MetricsCollector
	paths         config.Paths
	now           func() time.Time
}

// NewCarService はCarServiceを生成する。
func NewCarService(
	cars repository.CarRepository,
	manufacturers ManufacturerFinder,
	images imagestore.Store,
	sanitizer security.TextSanitizerService,
	collector metrics.MetricsCollector,
	paths config.Paths,
) *CarService {
	return &CarService{
		cars:          cars,
		manufacturers: manufacturers,
		images:        images,
		sanitizer:     sanitizer,
		metrics:       collector,
		paths:         paths,
		now:           time.Now,
	}
}

// CreateCar は車両を登録する。
// メーカー名が解決できない場合はメーカーなしで登録する。
// 画像は車両IDごとのディレクトリにアップロード順で保存する。
func (s *CarService) CreateCar(ctx context.Context, req CreateCarRequest) (*model.ServiceResponse, error) {
	now := s.now()
	car := &model.Car{
		ID:        uuid.New().String(),
		Brand:     s.sanitizer.Sanitize(req.Brand),
		Model:     s.sanitizer.Sanitize(req.Model),
		Year:      req.Year,
		Price:     req.Price,
		Color:     s.sanitizer.Sanitize(req.Color),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if name := s.sanitizer.Sanitize(req.Manufacturer); name != "" {
		m, err := s.manufacturers.FindByName(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("メーカーの取得に失敗しました: %w", err)
		}
		if m != nil {
			car.ManufacturerID = &m.ID
			car.Manufacturer = m
		} else {
			slog.Info("メーカーが見つからないためメーカーなしで登録します",
				slog.String("car_id", car.ID),
				slog.String("manufacturer", name),
			)
		}
	}

	var imageDir string
	if len(req.Images) > 0 {
		imageDir = s.paths.CarImagesPath(car.ID)
		if err := s.images.CreateDirectory(ctx, imageDir); err != nil {
			return nil, fmt.Errorf("画像ディレクトリの作成に失敗しました: %w", err)
		}
		images, err := s.images.SaveImages(ctx, req.Images, imageDir)
		if err != nil {
			s.discardImages(ctx, imageDir)
			if errors.Is(err, imagestore.ErrNotImage) {
				return model.Failure(msgInvalidImages), nil
			}
			return nil, fmt.Errorf("画像の保存に失敗しました: %w", err)
		}
		car.Images = images
	}

	if err := s.cars.Create(ctx, car); err != nil {
		slog.Error("車両の保存に失敗しました",
			slog.String("car_id", car.ID),
			slog.String("error", err.Error()),
		)
		if imageDir != "" {
			s.discardImages(ctx, imageDir)
		}
		return model.Failure(msgCarSaveFailed), nil
	}

	s.metrics.RecordCarCreated()
	return model.Success(fmt.Sprintf(msgCarSaved, car.Brand, car.Model), toCarDTO(car, s.images)), nil
}

// discardImages は保存されなかった車両の画像ディレクトリを削除する。
// 削除に失敗した場合は孤立したディレクトリとしてログに残す。
func (s *CarService) discardImages(ctx context.Context, dir string) {
	if err := s.images.RemoveDirectory(context.WithoutCancel(ctx), dir); err != nil {
		slog.Warn("孤立した画像ディレクトリを削除できませんでした",
			slog.String("dir", dir),
			slog.String("error", err.Error()),
		)
	}
}

// ListCars はメーカーと画像を含む全車両を返す。
func (s *CarService) ListCars(ctx context.Context) (*model.ServiceResponse, error) {
	cars, err := s.cars.ListWithRelations(ctx)
	if err != nil {
		return nil, fmt.Errorf("車両一覧の取得に失敗しました: %w", err)
	}

	dtos := make([]CarDTO, 0, len(cars))
	for i := range cars {
		dtos = append(dtos, toCarDTO(&cars[i], s.images))
	}
	return model.Success(msgCarsListed, dtos), nil
}
