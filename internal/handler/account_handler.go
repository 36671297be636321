package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/hitoshi/carmarket/internal/account"
	"github.com/hitoshi/carmarket/internal/model"
)

// AccountServiceInterface はアカウントハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	Register(ctx context.Context, req account.RegisterRequest) (*model.ServiceResponse, error)
	Login(ctx context.Context, req account.LoginRequest) (*model.ServiceResponse, error)
	ConfirmEmail(ctx context.Context, id, encodedToken string) bool
	SendConfirmEmailToken(ctx context.Context, userID string) account.DeliveryResult
}

// AccountHandler はユーザー登録・ログイン・メール確認のHTTPハンドラー。
type AccountHandler struct {
	service AccountServiceInterface
	// メール確認後のリダイレクト先
	redirectURL string
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(service AccountServiceInterface, redirectURL string) *AccountHandler {
	return &AccountHandler{
		service:     service,
		redirectURL: redirectURL,
	}
}

// Register はユーザー登録を処理する。
// POST /api/account/register
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req account.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("JSONの解析に失敗しました"))
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.UserName = strings.TrimSpace(req.UserName)

	resp, err := h.service.Register(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeServiceResponse(w, resp)
}

// Login はログインを処理する。
// POST /api/account/login
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req account.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("JSONの解析に失敗しました"))
		return
	}
	req.UserName = strings.TrimSpace(req.UserName)

	if req.UserName == "" || req.Password == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("userNameとpasswordは必須です"))
		return
	}

	resp, err := h.service.Login(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeServiceResponse(w, resp)
}

// ConfirmEmail は確認リンクを処理し、結果に関わらずリダイレクトする。
// GET /api/account/confirmEmail?id=xxx&t=yyy
func (h *AccountHandler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	token := r.URL.Query().Get("t")
	if id == "" || token == "" {
		http.NotFound(w, r)
		return
	}

	h.service.ConfirmEmail(r.Context(), id, token)
	http.Redirect(w, r, h.redirectURL, http.StatusFound)
}

// SendConfirmEmailToken は確認メールを再送する。
// GET /api/account/sendConfirmEmailToken?userId=xxx
func (h *AccountHandler) SendConfirmEmailToken(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.NotFound(w, r)
		return
	}

	if !h.service.SendConfirmEmailToken(r.Context(), userID).OK {
		writeServiceResponse(w, model.Failure("確認メールを送信できませんでした。"))
		return
	}
	writeServiceResponse(w, model.Success("確認メールを送信しました。", nil))
}
