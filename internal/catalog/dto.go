// Package catalog は車両とメーカーのカタログ管理フローを提供する。
package catalog

import (
	"github.com/hitoshi/carmarket/internal/imagestore"
	"github.com/hitoshi/carmarket/internal/model"
)

// CreateCarRequest は車両登録の入力。Imagesはアップロード順に保存される。
type CreateCarRequest struct {
	Brand        string
	Model        string
	Year         int
	Price        float64
	Color        string
	Manufacturer string
	Images       []imagestore.Upload
}

// ManufacturerRequest はメーカーの作成・更新の入力。
// 画像はアップロード（Image）かURL（ImageURL）のいずれかで指定する。両方ある場合はアップロードを優先する。
type ManufacturerRequest struct {
	ID          string             `json:"id,omitempty"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	ImageURL    string             `json:"imageUrl,omitempty"`
	Image       *imagestore.Upload `json:"-"`
}

// CarDTO は車両のレスポンス表現。
type CarDTO struct {
	ID           string           `json:"id"`
	Brand        string           `json:"brand"`
	Model        string           `json:"model"`
	Year         int              `json:"year"`
	Price        float64          `json:"price"`
	Color        string           `json:"color"`
	Manufacturer *ManufacturerDTO `json:"manufacturer"`
	Images       []string         `json:"images"`
}

// ManufacturerDTO はメーカーのレスポンス表現。
type ManufacturerDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

func toManufacturerDTO(m *model.Manufacturer, store imagestore.Store) *ManufacturerDTO {
	if m == nil {
		return nil
	}
	return &ManufacturerDTO{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Image:       store.URL(m.Image),
	}
}

func toCarDTO(c *model.Car, store imagestore.Store) CarDTO {
	images := make([]string, 0, len(c.Images))
	for _, img := range c.Images {
		images = append(images, store.URL(img.Name))
	}
	return CarDTO{
		ID:           c.ID,
		Brand:        c.Brand,
		Model:        c.Model,
		Year:         c.Year,
		Price:        c.Price,
		Color:        c.Color,
		Manufacturer: toManufacturerDTO(c.Manufacturer, store),
		Images:       images,
	}
}
