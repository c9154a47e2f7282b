package market

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/safar/croptap/internal/models"
	"github.com/safar/croptap/internal/store"
)

type RegisterUserRequest struct {
	Name     string
	Email    string
	Password string
	Role     models.Role
	Phone    string
	Address  string
}

func (r RegisterUserRequest) validate() error {
	if strings.TrimSpace(r.Name) == "" || strings.TrimSpace(r.Email) == "" || r.Password == "" || r.Role == "" {
		return NewInvalidArgument(ErrMsgUserFieldsRequired)
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return NewInvalidArgument(ErrMsgInvalidEmail)
	}
	if !r.Role.Valid() {
		return NewInvalidArgument(ErrMsgInvalidRole)
	}
	return nil
}

// RegisterUser stores a new user with a bcrypt hash of the password.
func (s *Service) RegisterUser(ctx context.Context, req RegisterUserRequest) (*models.User, error) {
	if err := req.validate(); err != nil {
		return nil, s.fail("register_user", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.opts.BcryptCost)
	if err != nil {
		return nil, s.fail("register_user", fmt.Errorf("hash password: %w", err))
	}

	user, err := store.CreateUser(ctx, s.db, store.CreateUserParams{
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: string(hash),
		Role:         req.Role,
		Phone:        req.Phone,
		Address:      req.Address,
	})
	if err != nil {
		return nil, s.fail("register_user", err)
	}

	s.logger.Info("user registered", zap.Int64("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, id int64) (*models.User, error) {
	user, err := store.GetUser(ctx, s.db, id)
	if err != nil {
		return nil, s.fail("get_user", err)
	}
	return user, nil
}

func (s *Service) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := store.GetUserByEmail(ctx, s.db, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, s.fail("user_by_email", err)
	}
	return user, nil
}

func (s *Service) ListUsers(ctx context.Context, page, pageSize int) (*store.OffsetPage, error) {
	result, err := store.ListUsers(ctx, s.db, page, pageSize)
	if err != nil {
		return nil, s.fail("list_users", err)
	}
	return result, nil
}

// UpdateUserRequest changes only the non-nil fields. A new Password is
// re-hashed.
type UpdateUserRequest struct {
	ID       int64
	Name     *string
	Email    *string
	Password *string
	Role     *models.Role
	Phone    *string
	Address  *string
}

func (s *Service) UpdateUser(ctx context.Context, req UpdateUserRequest) (*models.User, error) {
	current, err := store.GetUser(ctx, s.db, req.ID)
	if err != nil {
		return nil, s.fail("update_user", err)
	}

	p := store.UpdateUserParams{
		ID:      current.ID,
		Name:    current.Name,
		Email:   current.Email,
		Role:    current.Role,
		Phone:   current.Phone,
		Address: current.Address,
	}
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		p.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Role != nil {
		p.Role = *req.Role
	}
	if req.Phone != nil {
		p.Phone = *req.Phone
	}
	if req.Address != nil {
		p.Address = *req.Address
	}

	if p.Name == "" || p.Email == "" || (req.Password != nil && *req.Password == "") {
		return nil, s.fail("update_user", NewInvalidArgument(ErrMsgUserFieldsRequired))
	}
	if _, err := mail.ParseAddress(p.Email); err != nil {
		return nil, s.fail("update_user", NewInvalidArgument(ErrMsgInvalidEmail))
	}
	if !p.Role.Valid() {
		return nil, s.fail("update_user", NewInvalidArgument(ErrMsgInvalidRole))
	}

	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), s.opts.BcryptCost)
		if err != nil {
			return nil, s.fail("update_user", fmt.Errorf("hash password: %w", err))
		}
		p.PasswordHash = string(hash)
	}

	user, err := store.UpdateUser(ctx, s.db, p)
	if err != nil {
		return nil, s.fail("update_user", err)
	}

	s.logger.Info("user updated", zap.Int64("user_id", user.ID), zap.Int("version", user.Version))
	return user, nil
}

// DeleteUser removes a user who has never ordered. Their carts go with them.
func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	if err := store.DeleteUser(ctx, s.db, id); err != nil {
		return s.fail("delete_user", err)
	}

	s.logger.Info("user deleted", zap.Int64("user_id", id))
	return nil
}
