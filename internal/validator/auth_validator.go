package validator

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"storefront/internal/usecase"
)

// username: 3〜20文字の英数字とアンダースコア
var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)

// ざっくりしたemail形式チェック（厳密なRFCはやらない）
var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type authValidator struct{}

// Usecaseは interface を依存注入
func NewAuthValidator() usecase.AuthValidator {
	return &authValidator{}
}

// サインアップの入力を検証
func (v *authValidator) ValidateRegister(ctx context.Context, in usecase.RegisterInput) error {
	// 必須チェック（電話は任意）
	if strings.TrimSpace(in.Name) == "" ||
		strings.TrimSpace(in.Surname) == "" ||
		strings.TrimSpace(in.Username) == "" ||
		strings.TrimSpace(in.Email) == "" ||
		in.Password == "" {
		return usecase.ErrValidation
	}

	if !usernameRe.MatchString(strings.TrimSpace(in.Username)) {
		return usecase.ErrValidation
	}

	if !emailRe.MatchString(strings.TrimSpace(in.Email)) {
		return usecase.ErrValidation
	}

	if !isStrongPassword(in.Password) {
		return usecase.ErrValidation
	}

	return nil
}

// ログインの入力を検証
func (v *authValidator) ValidateLogin(ctx context.Context, identifier string, password string) error {
	if strings.TrimSpace(identifier) == "" || password == "" {
		return usecase.ErrValidation
	}
	return nil
}

// リセットの入力を検証（新パスワードも同じポリシー）
func (v *authValidator) ValidateReset(ctx context.Context, identifier string, newPassword string) error {
	if strings.TrimSpace(identifier) == "" || newPassword == "" {
		return usecase.ErrValidation
	}
	if !isStrongPassword(newPassword) {
		return usecase.ErrValidation
	}
	return nil
}

// 8文字以上・大文字・小文字・数字を各1つ以上
func isStrongPassword(password string) bool {
	if len(password) < 8 {
		return false
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	return hasUpper && hasLower && hasDigit
}
