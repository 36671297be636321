package model

// ServiceResponse は各フローが返す統一結果エンベロープ。
// IsSuccess=falseの場合Payloadは無視される。Messageは常に設定される。
type ServiceResponse struct {
	Message   string `json:"message"`
	IsSuccess bool   `json:"isSuccess"`
	Payload   any    `json:"payload,omitempty"`
}

// Success は成功レスポンスを生成する。
func Success(message string, payload any) *ServiceResponse {
	return &ServiceResponse{Message: message, IsSuccess: true, Payload: payload}
}

// Failure はソフトな業務エラーのレスポンスを生成する。
func Failure(message string) *ServiceResponse {
	return &ServiceResponse{Message: message}
}
