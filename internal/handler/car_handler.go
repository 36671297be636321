package handler

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/hitoshi/carmarket/internal/catalog"
	"github.com/hitoshi/carmarket/internal/imagestore"
	"github.com/hitoshi/carmarket/internal/model"
)

// CarServiceInterface は車両ハンドラーが必要とするサービスインターフェース。
type CarServiceInterface interface {
	CreateCar(ctx context.Context, req catalog.CreateCarRequest) (*model.ServiceResponse, error)
	ListCars(ctx context.Context) (*model.ServiceResponse, error)
}

// CarHandler は車両カタログのHTTPハンドラー。
type CarHandler struct {
	service       CarServiceInterface
	maxUploadSize int64
}

// NewCarHandler はCarHandlerを生成する。
// maxUploadSizeはmultipartリクエスト全体の上限バイト数。
func NewCarHandler(service CarServiceInterface, maxUploadSize int64) *CarHandler {
	return &CarHandler{
		service:       service,
		maxUploadSize: maxUploadSize,
	}
}

// CreateCar は車両を登録する。
// POST /api/car (multipart/form-data)
func (h *CarHandler) CreateCar(w http.ResponseWriter, r *http.Request) {
	form, apiErr := parseMultipart(w, r, h.maxUploadSize)
	if apiErr != nil {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	year, err := formInt(form, "year")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("yearは整数で指定してください"))
		return
	}
	price, err := formFloat(form, "price")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("priceは数値で指定してください"))
		return
	}

	images, err := readUploads(form.File["images"])
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("画像ファイルを読み込めませんでした"))
		return
	}

	resp, err := h.service.CreateCar(r.Context(), catalog.CreateCarRequest{
		Brand:        formValue(form, "brand"),
		Model:        formValue(form, "model"),
		Year:         year,
		Price:        price,
		Color:        formValue(form, "color"),
		Manufacturer: formValue(form, "manufacturer"),
		Images:       images,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeServiceResponse(w, resp)
}

// ListCars は全車両を返す。
// GET /api/car/list
func (h *CarHandler) ListCars(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.ListCars(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeServiceResponse(w, resp)
}

// parseMultipart はリクエストサイズを制限してmultipartフォームを解析する。
func parseMultipart(w http.ResponseWriter, r *http.Request, limit int64) (*multipart.Form, *model.APIError) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, model.NewPayloadTooLargeError(limit)
		}
		return nil, model.NewInvalidRequestError("multipart/form-dataの解析に失敗しました")
	}
	return r.MultipartForm, nil
}

func formValue(form *multipart.Form, key string) string {
	if vs := form.Value[key]; len(vs) > 0 {
		return strings.TrimSpace(vs[0])
	}
	return ""
}

// formInt は数値フィールドを解析する。未指定は0。
func formInt(form *multipart.Form, key string) (int, error) {
	v := formValue(form, key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func formFloat(form *multipart.Form, key string) (float64, error) {
	v := formValue(form, key)
	if v == "" {
		return 0, nil
	}
	return strconv.ParseFloat(v, 64)
}

// readUploads はアップロードファイルを送信順に読み込む。
func readUploads(files []*multipart.FileHeader) ([]imagestore.Upload, error) {
	uploads := make([]imagestore.Upload, 0, len(files))
	for _, fh := range files {
		u, err := readUpload(fh)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, u)
	}
	return uploads, nil
}

func readUpload(fh *multipart.FileHeader) (imagestore.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return imagestore.Upload{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return imagestore.Upload{}, err
	}
	return imagestore.Upload{Filename: fh.Filename, Data: data}, nil
}
