package usecase_test

import (
	"context"
	"testing"

	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"
)

func newAuthFixture() (*usecase.AuthUsecase, *MockUserRepo, *MockAuthValidator) {
	cfg := config.Config{JWTSecret: "test-secret"}
	users := new(MockUserRepo)
	validator := new(MockAuthValidator)
	return usecase.NewAuthUsecase(cfg, users, validator), users, validator
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	assert.NoError(t, err)
	return string(h)
}

// =====================
// Register
// =====================

func TestAuthUsecase_Register_OK(t *testing.T) {
	uc, users, validator := newAuthFixture()

	validator.On("ValidateRegister", mock.Anything, mock.Anything).Return(nil)
	users.On("FindByEmail", mock.Anything, "ana@example.com").Return(nil, repository.ErrUserNotFound)
	users.On("FindByUsername", mock.Anything, "ana_01").Return(nil, repository.ErrUserNotFound)
	users.On("Create", mock.Anything, mock.MatchedBy(func(u *model.User) bool {
		// 平文は保存しない・roleはCUSTOMER固定
		return u.Email == "ana@example.com" &&
			u.Username == "ana_01" &&
			u.PasswordHash != "Passw0rd!" &&
			u.Role == model.RoleCustomer
	})).Return(nil)

	out, err := uc.Register(context.Background(), usecase.RegisterInput{
		Name:     "Ana",
		Surname:  "García",
		Username: "ana_01",
		Email:    "Ana@Example.com",
		Password: "Passw0rd!",
	})
	assert.NoError(t, err)
	if assert.NotNil(t, out) {
		assert.Equal(t, "ana@example.com", out.Email)
		assert.Equal(t, string(model.RoleCustomer), out.Role)
	}
	users.AssertExpectations(t)
}

func TestAuthUsecase_Register_EmailTaken(t *testing.T) {
	uc, users, validator := newAuthFixture()

	validator.On("ValidateRegister", mock.Anything, mock.Anything).Return(nil)
	users.On("FindByEmail", mock.Anything, "ana@example.com").
		Return(&model.User{ID: 1, Email: "ana@example.com"}, nil)

	_, err := uc.Register(context.Background(), usecase.RegisterInput{
		Name:     "Ana",
		Surname:  "García",
		Username: "ana_01",
		Email:    "ana@example.com",
		Password: "Passw0rd!",
	})
	assert.ErrorIs(t, err, usecase.ErrEmailTaken)
	users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAuthUsecase_Register_UsernameTaken(t *testing.T) {
	uc, users, validator := newAuthFixture()

	validator.On("ValidateRegister", mock.Anything, mock.Anything).Return(nil)
	users.On("FindByEmail", mock.Anything, "ana@example.com").Return(nil, repository.ErrUserNotFound)
	users.On("FindByUsername", mock.Anything, "ana_01").
		Return(&model.User{ID: 2, Username: "ana_01"}, nil)

	_, err := uc.Register(context.Background(), usecase.RegisterInput{
		Name:     "Ana",
		Surname:  "García",
		Username: "ana_01",
		Email:    "ana@example.com",
		Password: "Passw0rd!",
	})
	assert.ErrorIs(t, err, usecase.ErrUsernameTaken)
}

func TestAuthUsecase_Register_ValidationError(t *testing.T) {
	uc, users, validator := newAuthFixture()

	validator.On("ValidateRegister", mock.Anything, mock.Anything).Return(usecase.ErrValidation)

	_, err := uc.Register(context.Background(), usecase.RegisterInput{})
	assert.ErrorIs(t, err, usecase.ErrValidation)
	users.AssertNotCalled(t, "FindByEmail", mock.Anything, mock.Anything)
}

// =====================
// Login
// =====================

func TestAuthUsecase_Login_OK(t *testing.T) {
	uc, users, validator := newAuthFixture()

	validator.On("ValidateLogin", mock.Anything, "ana_01", "Passw0rd!").Return(nil)
	users.On("FindByIdentifier", mock.Anything, "ana_01").Return(&model.User{
		ID:           1,
		Username:     "ana_01",
		Email:        "ana@example.com",
		PasswordHash: mustHash(t, "Passw0rd!"),
		Role:         model.RoleCustomer,
	}, nil)

	out, err := uc.Login(context.Background(), "ana_01", "Passw0rd!")
	assert.NoError(t, err)
	if assert.NotNil(t, out) {
		assert.NotEmpty(t, out.AccessToken)
		assert.Equal(t, int64(1), out.User.ID)
		assert.Greater(t, out.ExpiresIn, 0)
	}
}

// 未登録と誤パスワードは同じエラー（識別子の列挙を防ぐ）
func TestAuthUsecase_Login_UnknownAndWrongPasswordLookSame(t *testing.T) {
	uc, users, validator := newAuthFixture()

	validator.On("ValidateLogin", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	users.On("FindByIdentifier", mock.Anything, "nadie").Return(nil, repository.ErrUserNotFound)
	users.On("FindByIdentifier", mock.Anything, "ana_01").Return(&model.User{
		ID:           1,
		Username:     "ana_01",
		PasswordHash: mustHash(t, "Passw0rd!"),
	}, nil)

	_, errUnknown := uc.Login(context.Background(), "nadie", "Passw0rd!")
	_, errWrongPw := uc.Login(context.Background(), "ana_01", "otra-clave")

	assert.ErrorIs(t, errUnknown, usecase.ErrUnauthorized)
	assert.ErrorIs(t, errWrongPw, usecase.ErrUnauthorized)
	assert.Equal(t, errUnknown.Error(), errWrongPw.Error())
}

// =====================
// ResetPassword
// =====================

func TestAuthUsecase_ResetPassword_OK(t *testing.T) {
	uc, users, validator := newAuthFixture()

	validator.On("ValidateReset", mock.Anything, "ana@example.com", "Nuev0Pass").Return(nil)
	users.On("FindByIdentifier", mock.Anything, "ana@example.com").Return(&model.User{ID: 1}, nil)
	users.On("UpdatePasswordHash", mock.Anything, int64(1), mock.MatchedBy(func(hash string) bool {
		// 新パスワードもハッシュで保存される
		return hash != "Nuev0Pass" && bcrypt.CompareHashAndPassword([]byte(hash), []byte("Nuev0Pass")) == nil
	})).Return(nil)

	err := uc.ResetPassword(context.Background(), "ana@example.com", "Nuev0Pass")
	assert.NoError(t, err)
	users.AssertExpectations(t)
}

func TestAuthUsecase_ResetPassword_UnknownIdentifier(t *testing.T) {
	uc, users, validator := newAuthFixture()

	validator.On("ValidateReset", mock.Anything, "nadie", "Nuev0Pass").Return(nil)
	users.On("FindByIdentifier", mock.Anything, "nadie").Return(nil, repository.ErrUserNotFound)

	err := uc.ResetPassword(context.Background(), "nadie", "Nuev0Pass")
	assert.ErrorIs(t, err, usecase.ErrIdentifierNotFound)
	users.AssertNotCalled(t, "UpdatePasswordHash", mock.Anything, mock.Anything, mock.Anything)
}
