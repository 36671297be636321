package handler

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"

	"github.com/hitoshi/carmarket/internal/catalog"
	"github.com/hitoshi/carmarket/internal/model"
)

// ManufacturerServiceInterface はメーカーハンドラーが必要とするサービスインターフェース。
type ManufacturerServiceInterface interface {
	CreateManufacturer(ctx context.Context, req catalog.ManufacturerRequest) (*model.ServiceResponse, error)
	UpdateManufacturer(ctx context.Context, req catalog.ManufacturerRequest) (*model.ServiceResponse, error)
	DeleteManufacturer(ctx context.Context, id string) (bool, error)
	ListManufacturers(ctx context.Context) (*model.ServiceResponse, error)
}

// ManufacturerHandler はメーカー管理のHTTPハンドラー。
type ManufacturerHandler struct {
	service       ManufacturerServiceInterface
	maxUploadSize int64
}

// NewManufacturerHandler はManufacturerHandlerを生成する。
func NewManufacturerHandler(service ManufacturerServiceInterface, maxUploadSize int64) *ManufacturerHandler {
	return &ManufacturerHandler{
		service:       service,
		maxUploadSize: maxUploadSize,
	}
}

// CreateManufacturer はメーカーを作成する。
// POST /api/manufacture (JSON または multipart/form-data)
func (h *ManufacturerHandler) CreateManufacturer(w http.ResponseWriter, r *http.Request) {
	req, apiErr := h.decodeRequest(w, r)
	if apiErr != nil {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	resp, err := h.service.CreateManufacturer(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeServiceResponse(w, resp)
}

// UpdateManufacturer はメーカーを更新する。
// PUT /api/manufacture (JSON または multipart/form-data)
func (h *ManufacturerHandler) UpdateManufacturer(w http.ResponseWriter, r *http.Request) {
	req, apiErr := h.decodeRequest(w, r)
	if apiErr != nil {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	resp, err := h.service.UpdateManufacturer(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeServiceResponse(w, resp)
}

// DeleteManufacturer はメーカーを削除する。
// DELETE /api/manufacture?id=xxx
func (h *ManufacturerHandler) DeleteManufacturer(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if !catalog.ValidID(id) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidIDError(id))
		return
	}

	deleted, err := h.service.DeleteManufacturer(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if !deleted {
		writeJSON(w, http.StatusBadRequest, false)
		return
	}
	writeJSON(w, http.StatusOK, true)
}

// ListManufacturers は全メーカーを返す。
// GET /api/manufacture/list
func (h *ManufacturerHandler) ListManufacturers(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.ListManufacturers(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeServiceResponse(w, resp)
}

// decodeRequest はContent-Typeに応じてJSONまたはmultipartからリクエストを組み立てる。
// multipartの場合は"image"ファイルをアップロード画像として扱う。
func (h *ManufacturerHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (catalog.ManufacturerRequest, *model.APIError) {
	var req catalog.ManufacturerRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, model.NewInvalidRequestError("JSONの解析に失敗しました")
		}
		return req, nil
	}

	form, apiErr := parseMultipart(w, r, h.maxUploadSize)
	if apiErr != nil {
		return req, apiErr
	}
	req.ID = formValue(form, "id")
	req.Name = formValue(form, "name")
	req.Description = formValue(form, "description")
	req.ImageURL = formValue(form, "imageUrl")

	if files := form.File["image"]; len(files) > 0 {
		upload, err := readUpload(files[0])
		if err != nil {
			return req, model.NewInvalidRequestError("画像ファイルを読み込めませんでした")
		}
		req.Image = &upload
	}
	return req, nil
}
