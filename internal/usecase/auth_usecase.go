package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/repository"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

var (
	//400 入力不足
	ErrValidation = errors.New("validation error")
	//401 認証失敗（未登録とパスワード違いを区別しない）
	ErrUnauthorized = errors.New("unauthorized")
	//409 email重複
	ErrEmailTaken = errors.New("email already registered")
	//409 username重複
	ErrUsernameTaken = errors.New("username already taken")
	//404 リセット対象なし
	ErrIdentifierNotFound = errors.New("identifier not found")
	//500
	ErrInternal = errors.New("internal error")
)

// accesstokenの有効期限
const accessTokenTTL = 24 * time.Hour

// usecaseがValidatorInterfaceに依存する約束
type AuthValidator interface {
	ValidateRegister(ctx context.Context, in RegisterInput) error
	ValidateLogin(ctx context.Context, identifier string, password string) error
	ValidateReset(ctx context.Context, identifier string, newPassword string) error
}

type UserDTO struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Surname  string  `json:"surname"`
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Phone    *string `json:"phone,omitempty"`
	Role     string  `json:"role"`
}

type RegisterInput struct {
	Name     string
	Surname  string
	Username string
	Email    string
	Phone    *string
	Password string
}

type LoginOutput struct {
	User        UserDTO `json:"user"`
	AccessToken string  `json:"access_token"`
	ExpiresIn   int     `json:"expires_in"`
}

type AuthUsecase struct {
	cfg       config.Config
	users     repository.UserRepository
	validator AuthValidator
}

func NewAuthUsecase(
	cfg config.Config,
	users repository.UserRepository,
	validator AuthValidator,
) *AuthUsecase {
	return &AuthUsecase{
		cfg:       cfg,
		users:     users,
		validator: validator,
	}
}

func (u *AuthUsecase) Register(ctx context.Context, in RegisterInput) (*UserDTO, error) {
	//入力検証（validatorに寄せる）
	if err := u.validator.ValidateRegister(ctx, in); err != nil {
		return nil, err
	}

	email := strings.TrimSpace(strings.ToLower(in.Email))
	username := strings.TrimSpace(in.Username)

	//重複チェック
	if existing, err := u.users.FindByEmail(ctx, email); err == nil && existing != nil {
		return nil, ErrEmailTaken
	}
	if existing, err := u.users.FindByUsername(ctx, username); err == nil && existing != nil {
		return nil, ErrUsernameTaken
	}

	//パスワードは必ずハッシュ化して保存（平文保存しない）
	pwHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, ErrInternal
	}

	user := &model.User{
		Name:         strings.TrimSpace(in.Name),
		Surname:      strings.TrimSpace(in.Surname),
		Username:     username,
		Email:        email,
		Phone:        in.Phone,
		PasswordHash: string(pwHash),
		Role:         model.RoleCustomer,
	}

	//保存（uniqueの同時競合はここで弾かれる）
	if err := u.users.Create(ctx, user); err != nil {
		return nil, ErrEmailTaken
	}

	dto := toUserDTO(user)
	return &dto, nil
}

// Login はemailまたはusernameでの認証。
// 未登録と誤パスワードは同じErrUnauthorizedにする（識別子の列挙を防ぐ）。
func (u *AuthUsecase) Login(ctx context.Context, identifier string, password string) (*LoginOutput, error) {
	if err := u.validator.ValidateLogin(ctx, identifier, password); err != nil {
		return nil, err
	}

	user, err := u.users.FindByIdentifier(ctx, strings.TrimSpace(identifier))
	if err != nil || user == nil {
		return nil, ErrUnauthorized
	}

	//パスワード照合（bcrypt）
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrUnauthorized
	}

	accessToken, expiresIn, err := u.issueAccessToken(user)
	if err != nil {
		return nil, ErrInternal
	}

	return &LoginOutput{
		User:        toUserDTO(user),
		AccessToken: accessToken,
		ExpiresIn:   expiresIn,
	}, nil
}

// ResetPassword は識別子（email/username）での簡易リセット。
func (u *AuthUsecase) ResetPassword(ctx context.Context, identifier string, newPassword string) error {
	if err := u.validator.ValidateReset(ctx, identifier, newPassword); err != nil {
		return err
	}

	user, err := u.users.FindByIdentifier(ctx, strings.TrimSpace(identifier))
	if err != nil || user == nil {
		return ErrIdentifierNotFound
	}

	pwHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return ErrInternal
	}

	if err := u.users.UpdatePasswordHash(ctx, user.ID, string(pwHash)); err != nil {
		if err == repository.ErrUserNotFound {
			return ErrIdentifierNotFound
		}
		return ErrInternal
	}

	return nil
}

func (u *AuthUsecase) issueAccessToken(user *model.User) (string, int, error) {
	now := time.Now()
	expiresAt := now.Add(accessTokenTTL)

	claims := jwt.MapClaims{
		"sub":  user.ID,
		"role": string(user.Role),
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(u.cfg.JWTSecret))
	if err != nil {
		return "", 0, err
	}

	return signed, int(accessTokenTTL.Seconds()), nil
}

// model.UserをAPI返却用DTOに変換。
func toUserDTO(u *model.User) UserDTO {
	return UserDTO{
		ID:       u.ID,
		Name:     u.Name,
		Surname:  u.Surname,
		Username: u.Username,
		Email:    u.Email,
		Phone:    u.Phone,
		Role:     string(u.Role),
	}
}
