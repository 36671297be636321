package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hitoshi/carmarket/internal/imagestore"
	"github.com/hitoshi/carmarket/internal/model"
	"github.com/hitoshi/carmarket/internal/repository"
	"github.com/hitoshi/carmarket/internal/security"
)

// --- モック ---

type mockManufacturerRepo struct {
	findByIDFn func(ctx context.Context, id string) (*model.Manufacturer, error)
	createFn   func(ctx context.Context, m *model.Manufacturer) error
	updateFn   func(ctx context.Context, m *model.Manufacturer) (bool, error)
	deleteFn   func(ctx context.Context, id string) (bool, error)
	listFn     func(ctx context.Context) ([]model.Manufacturer, error)
}

func (m *mockManufacturerRepo) FindByID(ctx context.Context, id string) (*model.Manufacturer, error) {
	return m.findByIDFn(ctx, id)
}
func (m *mockManufacturerRepo) FindByName(ctx context.Context, name string) (*model.Manufacturer, error) {
	return nil, nil
}
func (m *mockManufacturerRepo) Create(ctx context.Context, mf *model.Manufacturer) error {
	return m.createFn(ctx, mf)
}
func (m *mockManufacturerRepo) Update(ctx context.Context, mf *model.Manufacturer) (bool, error) {
	return m.updateFn(ctx, mf)
}
func (m *mockManufacturerRepo) Delete(ctx context.Context, id string) (bool, error) {
	return m.deleteFn(ctx, id)
}
func (m *mockManufacturerRepo) List(ctx context.Context) ([]model.Manufacturer, error) {
	return m.listFn(ctx)
}

type mockFetcher struct {
	fetchFn func(ctx context.Context, rawURL string) ([]byte, error)
	calls   int
}

func (m *mockFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	m.calls++
	return m.fetchFn(ctx, rawURL)
}

const validID = "3f2c1e1a-8a6b-4f0e-9a53-2b7f1c9d0e11"

func newTestManufacturerService(t *testing.T, repo *mockManufacturerRepo, fetcher ImageFetcher) *ManufacturerService {
	t.Helper()
	store := imagestore.NewFileSystemStore(t.TempDir(), "/images")
	return NewManufacturerService(repo, store, fetcher, security.NewTextSanitizer(), testPaths)
}

// --- テスト ---

func TestManufacturerService_Create(t *testing.T) {
	var saved *model.Manufacturer
	repo := &mockManufacturerRepo{createFn: func(ctx context.Context, m *model.Manufacturer) error {
		saved = m
		return nil
	}}
	svc := newTestManufacturerService(t, repo, &mockFetcher{})

	resp, err := svc.CreateManufacturer(context.Background(), ManufacturerRequest{
		Name:        "<i>Toyota</i>",
		Description: "Japanese maker",
		Image:       &imagestore.Upload{Filename: "logo.png", Data: pngData},
	})
	if err != nil || !resp.IsSuccess {
		t.Fatalf("expected success, got %+v, %v", resp, err)
	}
	if saved.Name != "Toyota" {
		t.Errorf("name = %q, want sanitized Toyota", saved.Name)
	}
	if !ValidID(saved.ID) {
		t.Errorf("id %q is not a uuid", saved.ID)
	}
	if !strings.HasPrefix(saved.Image, "manufactures/") {
		t.Errorf("image = %q, want manufactures/ prefix", saved.Image)
	}
	dto := resp.Payload.(*ManufacturerDTO)
	if dto.Image != "/images/"+saved.Image {
		t.Errorf("dto image = %q", dto.Image)
	}
}

func TestManufacturerService_Create_NameRequired(t *testing.T) {
	repo := &mockManufacturerRepo{createFn: func(ctx context.Context, m *model.Manufacturer) error {
		t.Error("Create should not be called")
		return nil
	}}
	svc := newTestManufacturerService(t, repo, &mockFetcher{})

	resp, err := svc.CreateManufacturer(context.Background(), ManufacturerRequest{Name: "<b></b>  "})
	if err != nil || resp.IsSuccess {
		t.Fatalf("expected soft failure, got %+v, %v", resp, err)
	}
}

func TestManufacturerService_Create_Duplicate(t *testing.T) {
	repo := &mockManufacturerRepo{createFn: func(ctx context.Context, m *model.Manufacturer) error {
		return repository.ErrDuplicate
	}}
	svc := newTestManufacturerService(t, repo, &mockFetcher{})

	resp, err := svc.CreateManufacturer(context.Background(), ManufacturerRequest{Name: "Toyota"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.IsSuccess || !strings.Contains(resp.Message, "Toyota") {
		t.Errorf("got %+v, want duplicate failure", resp)
	}
}

func TestManufacturerService_Create_InfrastructureError(t *testing.T) {
	repo := &mockManufacturerRepo{createFn: func(ctx context.Context, m *model.Manufacturer) error {
		return errors.New("db down")
	}}
	svc := newTestManufacturerService(t, repo, &mockFetcher{})

	if _, err := svc.CreateManufacturer(context.Background(), ManufacturerRequest{Name: "Toyota"}); err == nil {
		t.Fatal("expected error")
	}
}

// TestManufacturerService_Create_ImageURL はURL指定の画像が取得・保存されることを検証する。
func TestManufacturerService_Create_ImageURL(t *testing.T) {
	var saved *model.Manufacturer
	repo := &mockManufacturerRepo{createFn: func(ctx context.Context, m *model.Manufacturer) error {
		saved = m
		return nil
	}}
	fetcher := &mockFetcher{fetchFn: func(ctx context.Context, rawURL string) ([]byte, error) {
		if rawURL != "https://cdn.example.com/logo.jpg" {
			t.Errorf("url = %q", rawURL)
		}
		return jpegData, nil
	}}
	svc := newTestManufacturerService(t, repo, fetcher)

	resp, err := svc.CreateManufacturer(context.Background(), ManufacturerRequest{
		Name: "Honda", ImageURL: "https://cdn.example.com/logo.jpg",
	})
	if err != nil || !resp.IsSuccess {
		t.Fatalf("expected success, got %+v, %v", resp, err)
	}
	if !strings.HasSuffix(saved.Image, ".jpg") {
		t.Errorf("image = %q, want .jpg", saved.Image)
	}
}

func TestManufacturerService_Create_ImageURLFailures(t *testing.T) {
	tests := []struct {
		name    string
		fetchFn func(ctx context.Context, rawURL string) ([]byte, error)
	}{
		{"fetch error", func(ctx context.Context, rawURL string) ([]byte, error) {
			return nil, errors.New("blocked")
		}},
		{"not an image", func(ctx context.Context, rawURL string) ([]byte, error) {
			return []byte("<html></html>"), nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockManufacturerRepo{createFn: func(ctx context.Context, m *model.Manufacturer) error {
				t.Error("Create should not be called")
				return nil
			}}
			svc := newTestManufacturerService(t, repo, &mockFetcher{fetchFn: tt.fetchFn})

			resp, err := svc.CreateManufacturer(context.Background(), ManufacturerRequest{
				Name: "Honda", ImageURL: "http://169.254.169.254/latest",
			})
			if err != nil || resp.IsSuccess {
				t.Errorf("expected soft failure, got %+v, %v", resp, err)
			}
		})
	}
}

func TestManufacturerService_Create_UploadWinsOverURL(t *testing.T) {
	repo := &mockManufacturerRepo{createFn: func(ctx context.Context, m *model.Manufacturer) error { return nil }}
	fetcher := &mockFetcher{}
	svc := newTestManufacturerService(t, repo, fetcher)

	_, err := svc.CreateManufacturer(context.Background(), ManufacturerRequest{
		Name:     "Honda",
		ImageURL: "https://cdn.example.com/logo.jpg",
		Image:    &imagestore.Upload{Filename: "logo.png", Data: pngData},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetcher.calls != 0 {
		t.Error("fetcher should not be called when an upload is present")
	}
}

// TestManufacturerService_Update_KeepsImage は画像未指定の更新で既存画像が維持されることを検証する。
func TestManufacturerService_Update_KeepsImage(t *testing.T) {
	var updated *model.Manufacturer
	repo := &mockManufacturerRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Manufacturer, error) {
			return &model.Manufacturer{ID: id, Name: "Old", Image: "manufactures/old.png"}, nil
		},
		updateFn: func(ctx context.Context, m *model.Manufacturer) (bool, error) {
			updated = m
			return true, nil
		},
	}
	svc := newTestManufacturerService(t, repo, &mockFetcher{})

	resp, err := svc.UpdateManufacturer(context.Background(), ManufacturerRequest{ID: validID, Name: "New", Description: "d"})
	if err != nil || !resp.IsSuccess {
		t.Fatalf("expected success, got %+v, %v", resp, err)
	}
	if updated.Name != "New" || updated.Image != "manufactures/old.png" {
		t.Errorf("updated = %+v", updated)
	}
}

func TestManufacturerService_Update_Failures(t *testing.T) {
	notFound := func(ctx context.Context, id string) (*model.Manufacturer, error) { return nil, nil }

	tests := []struct {
		name string
		req  ManufacturerRequest
		repo *mockManufacturerRepo
	}{
		{"invalid id", ManufacturerRequest{ID: "not-a-uuid", Name: "X"}, &mockManufacturerRepo{}},
		{"not found", ManufacturerRequest{ID: validID, Name: "X"}, &mockManufacturerRepo{findByIDFn: notFound}},
		{"duplicate", ManufacturerRequest{ID: validID, Name: "X"}, &mockManufacturerRepo{
			findByIDFn: func(ctx context.Context, id string) (*model.Manufacturer, error) {
				return &model.Manufacturer{ID: id}, nil
			},
			updateFn: func(ctx context.Context, m *model.Manufacturer) (bool, error) {
				return false, repository.ErrDuplicate
			},
		}},
		{"deleted concurrently", ManufacturerRequest{ID: validID, Name: "X"}, &mockManufacturerRepo{
			findByIDFn: func(ctx context.Context, id string) (*model.Manufacturer, error) {
				return &model.Manufacturer{ID: id}, nil
			},
			updateFn: func(ctx context.Context, m *model.Manufacturer) (bool, error) {
				return false, nil
			},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestManufacturerService(t, tt.repo, &mockFetcher{})
			resp, err := svc.UpdateManufacturer(context.Background(), tt.req)
			if err != nil || resp.IsSuccess {
				t.Errorf("expected soft failure, got %+v, %v", resp, err)
			}
		})
	}
}

// TestManufacturerService_Delete_InvalidID は不正なIDでストアが呼ばれないことを検証する。
func TestManufacturerService_Delete_InvalidID(t *testing.T) {
	repo := &mockManufacturerRepo{deleteFn: func(ctx context.Context, id string) (bool, error) {
		t.Error("Delete should not be called")
		return false, nil
	}}
	svc := newTestManufacturerService(t, repo, &mockFetcher{})

	ok, err := svc.DeleteManufacturer(context.Background(), "1; DROP TABLE manufacturers")
	if ok || !errors.Is(err, ErrInvalidID) {
		t.Errorf("got (%v, %v), want (false, ErrInvalidID)", ok, err)
	}
}

func TestManufacturerService_Delete(t *testing.T) {
	repo := &mockManufacturerRepo{deleteFn: func(ctx context.Context, id string) (bool, error) {
		return id == validID, nil
	}}
	svc := newTestManufacturerService(t, repo, &mockFetcher{})

	ok, err := svc.DeleteManufacturer(context.Background(), validID)
	if err != nil || !ok {
		t.Errorf("got (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = svc.DeleteManufacturer(context.Background(), "0b8c9d2e-1111-4222-8333-444455556666")
	if err != nil || ok {
		t.Errorf("got (%v, %v), want (false, nil)", ok, err)
	}
}

func TestManufacturerService_List(t *testing.T) {
	repo := &mockManufacturerRepo{listFn: func(ctx context.Context) ([]model.Manufacturer, error) {
		return []model.Manufacturer{{ID: "m1", Name: "BMW"}, {ID: "m2", Name: "Kia", Image: "manufactures/k.png"}}, nil
	}}
	svc := newTestManufacturerService(t, repo, &mockFetcher{})

	resp, err := svc.ListManufacturers(context.Background())
	if err != nil || !resp.IsSuccess {
		t.Fatalf("expected success, got %+v, %v", resp, err)
	}
	dtos := resp.Payload.([]*ManufacturerDTO)
	if len(dtos) != 2 || dtos[0].Image != "" || dtos[1].Image != "/images/manufactures/k.png" {
		t.Errorf("unexpected dtos: %+v %+v", dtos[0], dtos[1])
	}
}
