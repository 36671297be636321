// Package identity はユーザー資格情報（パスワード、ロール、メール確認トークン）を管理する。
package identity

// Result は資格情報ストア操作の結果を表す。
// 業務ルール違反はErrorsに順序付きで格納し、Goのerrorとしては返さない。
type Result struct {
	Errors []string
}

// Succeeded は操作が成功したかどうかを返す。
func (r *Result) Succeeded() bool {
	return len(r.Errors) == 0
}

// FirstError は最初のエラーメッセージを返す。成功時は空文字列。
func (r *Result) FirstError() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0]
}

func success() *Result {
	return &Result{}
}

func failed(messages ...string) *Result {
	return &Result{Errors: messages}
}
