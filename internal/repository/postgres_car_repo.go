package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hitoshi/carmarket/internal/model"
)

// PostgresCarRepo はPostgreSQLを使用した車両リポジトリ。
type PostgresCarRepo struct {
	db *sqlx.DB
}

// NewPostgresCarRepo はPostgresCarRepoを生成する。
func NewPostgresCarRepo(db *sql.DB) *PostgresCarRepo {
	return &PostgresCarRepo{db: sqlx.NewDb(db, "postgres")}
}

// Create は車両と画像参照を同一トランザクションで作成する。
func (r *PostgresCarRepo) Create(ctx context.Context, car *model.Car) error {
	return WithTx(ctx, r.db.DB, func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO cars (id, brand, model, year, price, color, manufacturer_id, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			car.ID, car.Brand, car.Model, car.Year, car.Price, car.Color,
			car.ManufacturerID, car.CreatedAt, car.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert car: %w", err)
		}

		for _, img := range car.Images {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO car_images (id, car_id, name, position) VALUES ($1, $2, $3, $4)`,
				img.ID, car.ID, img.Name, img.Position,
			)
			if err != nil {
				return fmt.Errorf("failed to insert car image: %w", err)
			}
		}
		return nil
	})
}

type carRow struct {
	ID                      string         `db:"id"`
	Brand                   string         `db:"brand"`
	Model                   string         `db:"model"`
	Year                    int            `db:"year"`
	Price                   float64        `db:"price"`
	Color                   string         `db:"color"`
	CreatedAt               time.Time      `db:"created_at"`
	UpdatedAt               time.Time      `db:"updated_at"`
	ManufacturerID          sql.NullString `db:"manufacturer_id"`
	ManufacturerName        sql.NullString `db:"manufacturer_name"`
	ManufacturerDescription sql.NullString `db:"manufacturer_description"`
	ManufacturerImage       sql.NullString `db:"manufacturer_image"`
}

type carImageRow struct {
	ID       string `db:"id"`
	CarID    string `db:"car_id"`
	Name     string `db:"name"`
	Position int    `db:"position"`
}

// ListWithRelations はメーカーと画像を含む全車両を作成日時順で返す。
func (r *PostgresCarRepo) ListWithRelations(ctx context.Context) ([]model.Car, error) {
	var rows []carRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT c.id, c.brand, c.model, c.year, c.price, c.color, c.created_at, c.updated_at,
		        c.manufacturer_id, m.name AS manufacturer_name,
		        m.description AS manufacturer_description, m.image AS manufacturer_image
		 FROM cars c
		 LEFT JOIN manufacturers m ON m.id = c.manufacturer_id
		 ORDER BY c.created_at, c.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list cars: %w", err)
	}

	var images []carImageRow
	err = r.db.SelectContext(ctx, &images,
		`SELECT id, car_id, name, position FROM car_images ORDER BY car_id, position`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list car images: %w", err)
	}

	imagesByCar := make(map[string][]model.Image, len(rows))
	for _, img := range images {
		imagesByCar[img.CarID] = append(imagesByCar[img.CarID], model.Image{
			ID:       img.ID,
			Name:     img.Name,
			Position: img.Position,
		})
	}

	cars := make([]model.Car, 0, len(rows))
	for _, row := range rows {
		car := model.Car{
			ID:        row.ID,
			Brand:     row.Brand,
			Model:     row.Model,
			Year:      row.Year,
			Price:     row.Price,
			Color:     row.Color,
			Images:    imagesByCar[row.ID],
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		}
		if row.ManufacturerID.Valid {
			id := row.ManufacturerID.String
			car.ManufacturerID = &id
			car.Manufacturer = &model.Manufacturer{
				ID:          id,
				Name:        row.ManufacturerName.String,
				Description: row.ManufacturerDescription.String,
				Image:       row.ManufacturerImage.String,
			}
		}
		cars = append(cars, car)
	}
	return cars, nil
}

// compile-time interface check
var _ CarRepository = (*PostgresCarRepo)(nil)
