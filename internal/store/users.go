package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/croptap/internal/database"
	"github.com/safar/croptap/internal/models"
)

type CreateUserParams struct {
	Name         string
	Email        string
	PasswordHash string
	Role         models.Role
	Phone        string
	Address      string
}

const userColumns = `id, name, email, password_hash, role, COALESCE(phone, ''), COALESCE(address, ''), created_at, updated_at, version`

func scanUser(row interface{ Scan(...any) error }, user *models.User) error {
	return row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.Phone,
		&user.Address,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Version,
	)
}

func CreateUser(ctx context.Context, q database.Querier, p CreateUserParams) (*models.User, error) {
	user := &models.User{}

	query := `
		INSERT INTO users (name, email, password_hash, role, phone, address, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NOW(), NOW(), 1)
		RETURNING ` + userColumns

	err := scanUser(q.QueryRowContext(ctx, query, p.Name, p.Email, p.PasswordHash, p.Role, p.Phone, p.Address), user)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, database.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

func GetUser(ctx context.Context, q database.Querier, id int64) (*models.User, error) {
	user := &models.User{}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	if err := scanUser(q.QueryRowContext(ctx, query, id), user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

func GetUserByEmail(ctx context.Context, q database.Querier, email string) (*models.User, error) {
	user := &models.User{}

	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	if err := scanUser(q.QueryRowContext(ctx, query, email), user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}

	return user, nil
}

func ListUsers(ctx context.Context, q database.Querier, page, pageSize int) (*OffsetPage, error) {
	var total int64
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	query := `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	rows, err := q.QueryContext(ctx, query, pageSize, pageOffset(page, pageSize))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var user models.User
		if err := scanUser(rows, &user); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(users, total, page, pageSize), nil
}

// UpdateUserParams replaces the profile fields of a user. An empty
// PasswordHash keeps the stored one.
type UpdateUserParams struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Role         models.Role
	Phone        string
	Address      string
}

func UpdateUser(ctx context.Context, q database.Querier, p UpdateUserParams) (*models.User, error) {
	user := &models.User{}

	query := `
		UPDATE users
		SET name          = $1,
		    email         = $2,
		    password_hash = COALESCE(NULLIF($3, ''), password_hash),
		    role          = $4,
		    phone         = NULLIF($5, ''),
		    address       = NULLIF($6, ''),
		    version       = version + 1,
		    updated_at    = NOW()
		WHERE id = $7
		RETURNING ` + userColumns

	err := scanUser(q.QueryRowContext(ctx, query,
		p.Name, p.Email, p.PasswordHash, p.Role, p.Phone, p.Address, p.ID,
	), user)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrUserNotFound
		}
		if database.IsUniqueViolation(err) {
			return nil, database.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("update user: %w", err)
	}

	return user, nil
}

// DeleteUser removes the user with their carts. Products they farm lose their
// owner. Users referenced by an order cannot be deleted.
func DeleteUser(ctx context.Context, q database.Querier, id int64) error {
	result, err := q.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return database.ErrUserHasOrders
		}
		return fmt.Errorf("delete user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrUserNotFound
	}

	return nil
}
