package service

import (
	"context"
	"errors"
	"fmt"

	"furniture-store/internal/auth"
	"furniture-store/internal/model"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials はログイン失敗。メールアドレスの存在有無は区別しない
var ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", ErrUnauthenticated)

// AuthenticationService は登録・ログイン・トークン解決を行う
type AuthenticationService struct {
	users     UserService
	tokens    *auth.TokenService
	dummyHash []byte
}

// NewAuthenticationService は新しい認証サービスを作成
// bcryptCost は保存済みハッシュと同じコストを渡す
func NewAuthenticationService(users UserService, tokens *auth.TokenService, bcryptCost int) (*AuthenticationService, error) {
	// 存在しないメールアドレスでも同じ比較コストを払うためのダミーハッシュ
	dummyHash, err := bcrypt.GenerateFromPassword([]byte("furniture-store-dummy"), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}
	return &AuthenticationService{users: users, tokens: tokens, dummyHash: dummyHash}, nil
}

// Register は顧客アカウントを作成してトークンを発行。上位ロールは自己登録できない
func (s *AuthenticationService) Register(ctx context.Context, req *model.RegisterRequest) (*model.AuthResponse, error) {
	role := req.Role
	if role == "" {
		role = model.RoleCustomer
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if role != model.RoleCustomer {
		return nil, fmt.Errorf("%w: role %s cannot self-register", ErrUnauthorized, role)
	}

	user, err := s.users.CreateUser(ctx, &CreateUserRequest{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      role,
	})
	if err != nil {
		return nil, err
	}
	return s.respond(user)
}

// Login はユーザー認証とJWTトークン生成を行う
func (s *AuthenticationService) Login(ctx context.Context, email, password string) (*model.AuthResponse, error) {
	user, err := s.users.ValidatePassword(ctx, email, password)
	switch {
	case errors.Is(err, ErrNotFound):
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	case errors.Is(err, ErrUnauthenticated):
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, err
	}

	if !user.IsActive {
		zerolog.Ctx(ctx).Info().Str("user_id", user.ID).Msg("login rejected for inactive user")
		return nil, ErrInvalidCredentials
	}
	return s.respond(user)
}

// ResolveToken はトークンを有効なユーザーに解決。失敗時は ErrUnauthenticated
func (s *AuthenticationService) ResolveToken(ctx context.Context, token string) (*model.User, error) {
	userID, err := s.tokens.Verify(token)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUnauthenticated
	}
	return user, nil
}

func (s *AuthenticationService) respond(user *model.User) (*model.AuthResponse, error) {
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &model.AuthResponse{Token: token, User: *user}, nil
}
