package model

import "time"

// Manufacturer は車両メーカーを表す。名前はカタログ内で一意。
type Manufacturer struct {
	ID          string
	Name        string
	Description string
	Image       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Car は出品車両を表す。
// ManufacturerIDはメーカー名が解決できた場合のみ設定される。
type Car struct {
	ID             string
	Brand          string
	Model          string
	Year           int
	Price          float64
	Color          string
	ManufacturerID *string
	Manufacturer   *Manufacturer
	Images         []Image
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Image は車両画像の参照を表す。
// Nameは画像ストア内の参照（"cars/<車両ID>/<uuid><拡張子>"）。
type Image struct {
	ID       string
	Name     string
	Position int
}
