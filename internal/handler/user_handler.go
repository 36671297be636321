package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/carmarket/internal/model"
	"github.com/hitoshi/carmarket/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	ListAll(ctx context.Context) ([]user.UserDTO, error)
	ListPaged(ctx context.Context, page, pageSize int) ([]user.UserDTO, error)
	ListByRole(ctx context.Context, role string, page, pageSize int) ([]user.UserDTO, error)
	ListSorted(ctx context.Context, sortBy string, page, pageSize int) ([]user.UserDTO, error)
}

// UserHandler はユーザー一覧参照のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// ListAll は全ユーザーを返す。
// GET /api/user/all
func (h *UserHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListAll(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// ListPaged はページングしたユーザー一覧を返す。
// GET /api/user/list?page=1&pageSize=10
func (h *UserHandler) ListPaged(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := pagination(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	users, err := h.service.ListPaged(r.Context(), page, pageSize)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// ListByRole はロールに所属するユーザーを返す。
// GET /api/user/by-role?role=admin&page=1&pageSize=10
func (h *UserHandler) ListByRole(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	if role == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("roleは必須です"))
		return
	}
	page, pageSize, err := pagination(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	users, err := h.service.ListByRole(r.Context(), role, page, pageSize)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// ListSorted は並べ替えたユーザー一覧を返す。
// GET /api/user/sorted?sortBy=email&page=1&pageSize=10
func (h *UserHandler) ListSorted(w http.ResponseWriter, r *http.Request) {
	sortBy := r.URL.Query().Get("sortBy")
	if sortBy == "" {
		sortBy = "userName"
	}
	page, pageSize, err := pagination(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	users, err := h.service.ListSorted(r.Context(), sortBy, page, pageSize)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// pagination はpageとpageSizeを取得する。範囲外の値の補正はサービス側で行う。
func pagination(r *http.Request) (int, int, error) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		return 0, 0, err
	}
	pageSize, err := queryInt(r, "pageSize", user.DefaultPageSize)
	if err != nil {
		return 0, 0, err
	}
	return page, pageSize, nil
}
