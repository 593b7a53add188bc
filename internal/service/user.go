package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"furniture-store/internal/model"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	minPasswordLength = 6
	// bcrypt は72バイトを超える入力を扱えない
	maxPasswordLength = 72
)

// UserService はユーザー管理サービスのインターフェース
type UserService interface {
	CreateUser(ctx context.Context, req *CreateUserRequest) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	ValidatePassword(ctx context.Context, email, password string) (*model.User, error)
	EnsureAdmin(ctx context.Context, email, password string) (*model.User, error)

	Me(ctx context.Context, actor *model.User) (*model.User, error)
	GetUser(ctx context.Context, actor *model.User, id string) (*model.User, error)
	ListUsers(ctx context.Context, actor *model.User, filters UserFilters) ([]model.User, error)
	UpdateUser(ctx context.Context, actor *model.User, id string, req *model.UpdateUserRequest) (*model.User, error)
	DeactivateUser(ctx context.Context, actor *model.User, id string) (*model.User, error)

	CreateEmployee(ctx context.Context, actor *model.User, req *model.RegisterRequest) (*model.User, error)
	UpdateEmployee(ctx context.Context, actor *model.User, id string, req *model.UpdateUserRequest) (*model.User, error)
	ToggleEmployeeStatus(ctx context.Context, actor *model.User, id string) (*model.User, error)
	ListEmployees(ctx context.Context, actor *model.User, active *bool) ([]model.User, error)
}

// CreateUserRequest はユーザー作成リクエスト（ロール検証済みの内部用）
type CreateUserRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      model.Role
}

// UserFilters はユーザーフィルタリング条件
type UserFilters struct {
	Role   model.Role
	Active *bool
}

// userServiceImpl はユーザーサービスの実装
type userServiceImpl struct {
	db         *gorm.DB
	authz      Authorizer
	bcryptCost int
}

// NewUserService は新しいユーザーサービスを作成
func NewUserService(db *gorm.DB, authz Authorizer, bcryptCost int) UserService {
	return &userServiceImpl{db: db, authz: authz, bcryptCost: bcryptCost}
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser は新しいユーザーを作成
func (s *userServiceImpl) CreateUser(ctx context.Context, req *CreateUserRequest) (*model.User, error) {
	email := NormalizeEmail(req.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}
	firstName, lastName := strings.TrimSpace(req.FirstName), strings.TrimSpace(req.LastName)
	if firstName == "" || lastName == "" {
		return nil, fmt.Errorf("%w: first and last name are required", ErrInvalidInput)
	}
	if !req.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, req.Role)
	}

	if err := s.ensureEmailFree(ctx, email, ""); err != nil {
		return nil, err
	}

	// パスワードをハッシュ化
	hashedPassword, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:     email,
		Password:  hashedPassword,
		FirstName: firstName,
		LastName:  lastName,
		Role:      req.Role,
		IsActive:  true,
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: email already in use", ErrConflict)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	zerolog.Ctx(ctx).Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("user created")
	return user, nil
}

// GetUserByID はIDでユーザーを取得
func (s *userServiceImpl) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// GetUserByEmail はメールアドレスでユーザーを取得
func (s *userServiceImpl) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user with email", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// ValidatePassword はメールアドレスとパスワードを検証
func (s *userServiceImpl) ValidatePassword(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrUnauthenticated
	}
	return user, nil
}

// EnsureAdmin creates the bootstrap admin unless an account with the email exists.
func (s *userServiceImpl) EnsureAdmin(ctx context.Context, email, password string) (*model.User, error) {
	existing, err := s.GetUserByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	return s.CreateUser(ctx, &CreateUserRequest{
		Email:     email,
		Password:  password,
		FirstName: "System",
		LastName:  "Administrator",
		Role:      model.RoleAdmin,
	})
}

// Me は操作者自身のアカウントを返す
func (s *userServiceImpl) Me(ctx context.Context, actor *model.User) (*model.User, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	return s.GetUserByID(ctx, actor.ID)
}

// GetUser はユーザーを取得（本人または管理者）
func (s *userServiceImpl) GetUser(ctx context.Context, actor *model.User, id string) (*model.User, error) {
	if err := s.authz.Authorize(actor, ResourceUsers, ActionRead, id); err != nil {
		return nil, err
	}
	return s.GetUserByID(ctx, id)
}

// ListUsers はユーザー一覧を取得
func (s *userServiceImpl) ListUsers(ctx context.Context, actor *model.User, filters UserFilters) ([]model.User, error) {
	if err := s.authz.Authorize(actor, ResourceUsers, ActionRead, ""); err != nil {
		return nil, err
	}
	return s.listUsers(ctx, filters)
}

func (s *userServiceImpl) listUsers(ctx context.Context, filters UserFilters) ([]model.User, error) {
	query := s.db.WithContext(ctx).Model(&model.User{})

	// フィルタを適用
	if filters.Role != "" {
		query = query.Where("role = ?", filters.Role)
	}
	if filters.Active != nil {
		query = query.Where("is_active = ?", *filters.Active)
	}

	var users []model.User
	if err := query.Order("created_at ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// UpdateUser はユーザー情報を更新。ロールと有効フラグは管理者のみ変更可能
func (s *userServiceImpl) UpdateUser(ctx context.Context, actor *model.User, id string, req *model.UpdateUserRequest) (*model.User, error) {
	if err := s.authz.Authorize(actor, ResourceUsers, ActionUpdate, id); err != nil {
		return nil, err
	}
	if req.Role != nil || req.IsActive != nil {
		if err := s.authz.Authorize(actor, ResourceUsers, ActionManage, ""); err != nil {
			return nil, fmt.Errorf("%w: only an admin may change role or status", ErrUnauthorized)
		}
	}

	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.applyUpdate(ctx, user, req)
}

func (s *userServiceImpl) applyUpdate(ctx context.Context, user *model.User, req *model.UpdateUserRequest) (*model.User, error) {
	if req.Email != nil {
		email := NormalizeEmail(*req.Email)
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		if email != user.Email {
			if err := s.ensureEmailFree(ctx, email, user.ID); err != nil {
				return nil, err
			}
			user.Email = email
		}
	}
	if req.Password != nil {
		if err := validatePassword(*req.Password); err != nil {
			return nil, err
		}
		hashedPassword, err := s.hashPassword(*req.Password)
		if err != nil {
			return nil, err
		}
		user.Password = hashedPassword
	}
	if req.FirstName != nil {
		if strings.TrimSpace(*req.FirstName) == "" {
			return nil, fmt.Errorf("%w: first name must not be empty", ErrInvalidInput)
		}
		user.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		if strings.TrimSpace(*req.LastName) == "" {
			return nil, fmt.Errorf("%w: last name must not be empty", ErrInvalidInput)
		}
		user.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Role != nil {
		if !req.Role.Valid() {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, *req.Role)
		}
		user.Role = *req.Role
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}

	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: email already in use", ErrConflict)
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// DeactivateUser はユーザーを無効化（論理削除のみ、物理削除はしない）
func (s *userServiceImpl) DeactivateUser(ctx context.Context, actor *model.User, id string) (*model.User, error) {
	if err := s.authz.Authorize(actor, ResourceUsers, ActionManage, ""); err != nil {
		return nil, err
	}
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.setActive(ctx, user, false); err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().Str("user_id", id).Str("actor_id", actor.ID).Msg("user deactivated")
	return user, nil
}

// CreateEmployee は従業員アカウントを作成（管理者のみ）
func (s *userServiceImpl) CreateEmployee(ctx context.Context, actor *model.User, req *model.RegisterRequest) (*model.User, error) {
	if err := s.authz.Authorize(actor, ResourceUsers, ActionManage, ""); err != nil {
		return nil, err
	}
	return s.CreateUser(ctx, &CreateUserRequest{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      model.RoleEmployee,
	})
}

// UpdateEmployee は従業員情報を更新
func (s *userServiceImpl) UpdateEmployee(ctx context.Context, actor *model.User, id string, req *model.UpdateUserRequest) (*model.User, error) {
	if err := s.authz.Authorize(actor, ResourceUsers, ActionManage, ""); err != nil {
		return nil, err
	}
	employee, err := s.getEmployee(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.applyUpdate(ctx, employee, req)
}

// ToggleEmployeeStatus は従業員の有効・無効を切り替え
func (s *userServiceImpl) ToggleEmployeeStatus(ctx context.Context, actor *model.User, id string) (*model.User, error) {
	if err := s.authz.Authorize(actor, ResourceUsers, ActionManage, ""); err != nil {
		return nil, err
	}
	employee, err := s.getEmployee(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.setActive(ctx, employee, !employee.IsActive); err != nil {
		return nil, err
	}
	return employee, nil
}

// ListEmployees は従業員一覧を取得。active が nil なら全員
func (s *userServiceImpl) ListEmployees(ctx context.Context, actor *model.User, active *bool) ([]model.User, error) {
	if err := s.authz.Authorize(actor, ResourceUsers, ActionManage, ""); err != nil {
		return nil, err
	}
	return s.listUsers(ctx, UserFilters{Role: model.RoleEmployee, Active: active})
}

func (s *userServiceImpl) getEmployee(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Where("id = ? AND role = ?", id, model.RoleEmployee).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: employee %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get employee: %w", err)
	}
	return &user, nil
}

func (s *userServiceImpl) setActive(ctx context.Context, user *model.User, active bool) error {
	if err := s.db.WithContext(ctx).Model(user).Update("is_active", active).Error; err != nil {
		return fmt.Errorf("failed to update user status: %w", err)
	}
	user.IsActive = active
	return nil
}

func (s *userServiceImpl) ensureEmailFree(ctx context.Context, email, exceptID string) error {
	query := s.db.WithContext(ctx).Model(&model.User{}).Where("email = ?", email)
	if exceptID != "" {
		query = query.Where("id <> ?", exceptID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check email: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: email already in use", ErrConflict)
	}
	return nil
}

// hashPassword はパスワードをハッシュ化
func (s *userServiceImpl) hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: malformed email", ErrInvalidInput)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidInput, maxPasswordLength)
	}
	return nil
}
