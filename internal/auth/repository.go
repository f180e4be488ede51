package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"notes-auth/internal/db"
)

const accountColumns = `id, username, email, password_hash, first_name, last_name, is_active, last_login_at, created_at, updated_at`

type Repository struct {
	db *sql.DB
}

var _ Store = (*Repository)(nil)

func NewRepository(database *sql.DB) *Repository {
	return &Repository{db: database}
}

func (r *Repository) FindByUsername(ctx context.Context, username string) (Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username)
	account, err := scanAccount(row)
	if err != nil {
		return Account{}, wrapLookup(err, "query account by username")
	}
	return account, nil
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	account, err := scanAccount(row)
	if err != nil {
		return Account{}, wrapLookup(err, "query account by email")
	}
	return account, nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Account{}, ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	account, err := scanAccount(row)
	if err != nil {
		return Account{}, wrapLookup(err, "query account by id")
	}
	return account, nil
}

func (r *Repository) CreateAccount(ctx context.Context, input NewAccount) (Account, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Account{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := time.Now().UTC()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO accounts (id, username, email, password_hash, first_name, last_name, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, $7)
		RETURNING `+accountColumns,
		id.String(), input.Username, input.Email, input.PasswordHash, input.FirstName, input.LastName, now)

	account, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			switch pgErr.ConstraintName {
			case "accounts_username_key":
				return Account{}, ErrUsernameConflict
			case "accounts_email_key":
				return Account{}, ErrEmailConflict
			}
		}
		return Account{}, fmt.Errorf("insert account: %w", err)
	}

	return account, nil
}

func (r *Repository) UpdatePassword(ctx context.Context, accountID, passwordHash string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`, accountID, passwordHash, now.UTC())
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update password rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *Repository) UpdatePasswordIfUnchanged(ctx context.Context, accountID, oldHash, newHash string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET password_hash = $3, updated_at = $4
		WHERE id = $1 AND password_hash = $2
	`, accountID, oldHash, newHash, now.UTC())
	if err != nil {
		return false, fmt.Errorf("swap password: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("swap password rows affected: %w", err)
	}

	return affected == 1, nil
}

func (r *Repository) CreateSession(ctx context.Context, accountID, rawToken string, expiresAt, now time.Time) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate refresh token id: %w", err)
	}

	return db.WithTx(ctx, r.db, nil, func(ctx context.Context, tx db.DBTX) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO auth_refresh_tokens (id, account_id, token_hash, expires_at, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, id.String(), accountID, hashToken(rawToken), expiresAt.UTC(), now.UTC()); err != nil {
			return fmt.Errorf("insert refresh token: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE accounts SET last_login_at = $2 WHERE id = $1
		`, accountID, now.UTC()); err != nil {
			return fmt.Errorf("stamp last login: %w", err)
		}

		return nil
	})
}

func (r *Repository) RotateRefreshToken(ctx context.Context, rawOldToken, rawNewToken string, newExpiresAt, now time.Time) (string, error) {
	oldHash := hashToken(rawOldToken)
	newHash := hashToken(rawNewToken)

	newID, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate new refresh token id: %w", err)
	}

	var accountID string
	err = db.WithTx(ctx, r.db, nil, func(ctx context.Context, tx db.DBTX) error {
		var oldID string
		var expiresAt time.Time
		var revokedAt sql.NullTime
		err := tx.QueryRowContext(ctx, `
			SELECT id, account_id, expires_at, revoked_at
			FROM auth_refresh_tokens
			WHERE token_hash = $1
			FOR UPDATE
		`, oldHash).Scan(&oldID, &accountID, &expiresAt, &revokedAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrRefreshTokenNotActive
			}
			return fmt.Errorf("read refresh token: %w", err)
		}

		if revokedAt.Valid || !now.Before(expiresAt.UTC()) {
			return ErrRefreshTokenNotActive
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO auth_refresh_tokens (id, account_id, token_hash, expires_at, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, newID.String(), accountID, newHash, newExpiresAt.UTC(), now.UTC()); err != nil {
			return fmt.Errorf("insert rotated refresh token: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE auth_refresh_tokens
			SET revoked_at = $2, replaced_by = $3
			WHERE id = $1
		`, oldID, now.UTC(), newID.String()); err != nil {
			return fmt.Errorf("revoke old refresh token: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE remember_me_tokens
			SET token_hash = $2, updated_at = $3
			WHERE token_hash = $1
		`, oldHash, newHash, now.UTC()); err != nil {
			return fmt.Errorf("move remember me token: %w", err)
		}

		return nil
	})
	if err != nil {
		return "", err
	}

	return accountID, nil
}

func (r *Repository) RevokeRefreshToken(ctx context.Context, rawToken string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE auth_refresh_tokens
		SET revoked_at = COALESCE(revoked_at, $2)
		WHERE token_hash = $1
	`, hashToken(rawToken), now.UTC())
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	return nil
}

func (r *Repository) UpsertRememberMe(ctx context.Context, accountID, rawToken string, expiresAt, now time.Time) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate remember me id: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO remember_me_tokens (id, account_id, token_hash, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (account_id)
		DO UPDATE SET
			token_hash = EXCLUDED.token_hash,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`, id.String(), accountID, hashToken(rawToken), expiresAt.UTC(), now.UTC())
	if err != nil {
		return fmt.Errorf("upsert remember me token: %w", err)
	}

	return nil
}

func (r *Repository) DeleteRememberMe(ctx context.Context, rawToken string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM remember_me_tokens WHERE token_hash = $1`, hashToken(rawToken)); err != nil {
		return fmt.Errorf("delete remember me token: %w", err)
	}
	return nil
}

func (r *Repository) ReplaceResetCode(ctx context.Context, code PasswordResetCode) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate reset code id: %w", err)
	}

	return db.WithTx(ctx, r.db, nil, func(ctx context.Context, tx db.DBTX) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM password_reset_codes
			WHERE account_id = $1 AND used = FALSE
		`, code.AccountID); err != nil {
			return fmt.Errorf("invalidate previous reset codes: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO password_reset_codes (id, account_id, code, created_at, expires_at, used)
			VALUES ($1, $2, $3, $4, $5, FALSE)
		`, id.String(), code.AccountID, code.Code, code.CreatedAt.UTC(), code.ExpiresAt.UTC()); err != nil {
			return fmt.Errorf("insert reset code: %w", err)
		}

		return nil
	})
}

func (r *Repository) HasRedeemableResetCode(ctx context.Context, accountID, code string, now time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM password_reset_codes
			WHERE account_id = $1 AND code = $2 AND used = FALSE AND expires_at > $3
		)
	`, accountID, code, now.UTC()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check reset code: %w", err)
	}

	return exists, nil
}

func (r *Repository) ConsumeResetCode(ctx context.Context, accountID, code, passwordHash string, now time.Time) (bool, error) {
	consumed := false
	err := db.WithTx(ctx, r.db, nil, func(ctx context.Context, tx db.DBTX) error {
		// Concurrent confirmers block on the row lock; the loser re-checks
		// used = FALSE after the winner commits and matches nothing.
		var codeID string
		err := tx.QueryRowContext(ctx, `
			UPDATE password_reset_codes
			SET used = TRUE, used_at = $4
			WHERE account_id = $1 AND code = $2 AND used = FALSE AND expires_at > $3
			RETURNING id
		`, accountID, code, now.UTC(), now.UTC()).Scan(&codeID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("consume reset code: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE accounts
			SET password_hash = $2, updated_at = $3
			WHERE id = $1
		`, accountID, passwordHash, now.UTC()); err != nil {
			return fmt.Errorf("set new password: %w", err)
		}

		consumed = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return consumed, nil
}

// CleanupStaleAuthData deletes, in bounded batches, refresh tokens past their
// retention, expired remember-me rows and reset codes that can no longer be used.
func (r *Repository) CleanupStaleAuthData(ctx context.Context, refreshRetention time.Duration, resetCodeRetention time.Duration, batchSize int) (CleanupResult, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	if refreshRetention <= 0 {
		refreshRetention = 14 * 24 * time.Hour
	}
	if resetCodeRetention <= 0 {
		resetCodeRetention = 30 * time.Minute
	}

	now := time.Now().UTC()

	deletedRefreshTokens, err := r.deleteStale(ctx, "refresh tokens", `
		WITH stale AS (
			SELECT id
			FROM auth_refresh_tokens
			WHERE expires_at < $1 OR (revoked_at IS NOT NULL AND revoked_at < $2)
			ORDER BY created_at ASC
			LIMIT $3
		)
		DELETE FROM auth_refresh_tokens t
		USING stale
		WHERE t.id = stale.id
	`, now, now.Add(-refreshRetention), batchSize)
	if err != nil {
		return CleanupResult{}, err
	}

	deletedRememberMe, err := r.deleteStale(ctx, "remember me tokens", `
		WITH stale AS (
			SELECT id
			FROM remember_me_tokens
			WHERE expires_at < $1
			ORDER BY expires_at ASC
			LIMIT $2
		)
		DELETE FROM remember_me_tokens t
		USING stale
		WHERE t.id = stale.id
	`, now, batchSize)
	if err != nil {
		return CleanupResult{}, err
	}

	deletedResetCodes, err := r.deleteStale(ctx, "reset codes", `
		WITH stale AS (
			SELECT id
			FROM password_reset_codes
			WHERE (used = TRUE OR expires_at < $1) AND created_at < $2
			ORDER BY created_at ASC
			LIMIT $3
		)
		DELETE FROM password_reset_codes t
		USING stale
		WHERE t.id = stale.id
	`, now, now.Add(-resetCodeRetention), batchSize)
	if err != nil {
		return CleanupResult{}, err
	}

	return CleanupResult{
		DeletedRefreshTokens:    deletedRefreshTokens,
		DeletedRememberMeTokens: deletedRememberMe,
		DeletedResetCodes:       deletedResetCodes,
	}, nil
}

func (r *Repository) deleteStale(ctx context.Context, what, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete stale %s: %w", what, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale %s rows affected: %w", what, err)
	}

	return affected, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (Account, error) {
	var account Account
	var lastLogin sql.NullTime
	err := row.Scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&account.PasswordHash,
		&account.FirstName,
		&account.LastName,
		&account.IsActive,
		&lastLogin,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return Account{}, err
	}

	if lastLogin.Valid {
		value := lastLogin.Time.UTC()
		account.LastLoginAt = &value
	}
	account.CreatedAt = account.CreatedAt.UTC()
	account.UpdatedAt = account.UpdatedAt.UTC()

	return account, nil
}

func wrapLookup(err error, action string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", action, err)
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
