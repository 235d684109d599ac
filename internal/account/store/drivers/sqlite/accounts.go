package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/brightlake/identity/internal/account/domain"
	"github.com/brightlake/identity/internal/account/store"
)

type accountsRepo struct {
	db querier
}

const accountColumns = `id, email, password_hash, name, second_name, sur_name, roles,
	confirmed, locked, confirmation_code,
	password_reset_code, password_reset_expires_at,
	pending_email, email_change_code, email_change_expires_at,
	refresh_token, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (domain.Account, error) {
	var (
		a                domain.Account
		roles            string
		confirmationCode sql.NullString
		resetCode        sql.NullString
		resetExpiresAt   sql.NullTime
		pendingEmail     sql.NullString
		changeCode       sql.NullString
		changeExpiresAt  sql.NullTime
		refreshToken     sql.NullString
	)

	err := row.Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.Name, &a.SecondName, &a.SurName, &roles,
		&a.Confirmed, &a.Locked, &confirmationCode,
		&resetCode, &resetExpiresAt,
		&pendingEmail, &changeCode, &changeExpiresAt,
		&refreshToken, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return domain.Account{}, err
	}

	a.Roles = splitRoles(roles)
	a.ConfirmationCode = mapNullStringPtr(confirmationCode)
	a.PasswordResetCode = mapNullStringPtr(resetCode)
	a.PasswordResetExpiresAt = mapNullTimePtr(resetExpiresAt)
	a.PendingEmail = mapNullStringPtr(pendingEmail)
	a.EmailChangeCode = mapNullStringPtr(changeCode)
	a.EmailChangeExpiresAt = mapNullTimePtr(changeExpiresAt)
	a.RefreshToken = mapNullStringPtr(refreshToken)
	return a, nil
}

func (r *accountsRepo) GetByID(ctx context.Context, id string) (domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err != nil {
		return domain.Account{}, mapNotFound(err)
	}
	return a, nil
}

func (r *accountsRepo) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = ?`, email)
	a, err := scanAccount(row)
	if err != nil {
		return domain.Account{}, mapNotFound(err)
	}
	return a, nil
}

func (r *accountsRepo) GetByConfirmationCode(ctx context.Context, code string) (domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE confirmation_code = ?`, code)
	a, err := scanAccount(row)
	if err != nil {
		return domain.Account{}, mapNotFound(err)
	}
	return a, nil
}

func (r *accountsRepo) GetByPendingEmail(ctx context.Context, email string) (domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE pending_email = ?`, email)
	a, err := scanAccount(row)
	if err != nil {
		return domain.Account{}, mapNotFound(err)
	}
	return a, nil
}

func (r *accountsRepo) Create(ctx context.Context, a domain.Account) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (
			id, email, password_hash, name, second_name, sur_name, roles,
			confirmed, locked, confirmation_code
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Email, a.PasswordHash, a.Name, a.SecondName, a.SurName, joinRoles(a.Roles),
		a.Confirmed, a.Locked, mapOptionalString(a.ConfirmationCode),
	)
	return mapConstraint(err)
}

func (r *accountsRepo) List(ctx context.Context) ([]domain.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *accountsRepo) MarkConfirmed(ctx context.Context, id string) error {
	return r.exec(ctx, `
		UPDATE accounts
		SET confirmed = 1, locked = 0, confirmation_code = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, id)
}

func (r *accountsRepo) SetConfirmationCode(ctx context.Context, id string, code string) error {
	return r.exec(ctx, `
		UPDATE accounts SET confirmation_code = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, code, id)
}

func (r *accountsRepo) SetPasswordResetCode(ctx context.Context, id string, code string, expiresAt time.Time) error {
	return r.exec(ctx, `
		UPDATE accounts
		SET password_reset_code = ?, password_reset_expires_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, code, expiresAt.UTC(), id)
}

func (r *accountsRepo) ClearPasswordReset(ctx context.Context, id string) error {
	return r.exec(ctx, `
		UPDATE accounts
		SET password_reset_code = NULL, password_reset_expires_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, id)
}

func (r *accountsRepo) SetPendingEmail(ctx context.Context, id string, pendingEmail, code string, expiresAt time.Time) error {
	return r.exec(ctx, `
		UPDATE accounts
		SET pending_email = ?, email_change_code = ?, email_change_expires_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, pendingEmail, code, expiresAt.UTC(), id)
}

func (r *accountsRepo) SetEmailChangeCode(ctx context.Context, id string, code string, expiresAt time.Time) error {
	return r.exec(ctx, `
		UPDATE accounts
		SET email_change_code = ?, email_change_expires_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, code, expiresAt.UTC(), id)
}

func (r *accountsRepo) PromotePendingEmail(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET email = pending_email,
		    pending_email = NULL, email_change_code = NULL, email_change_expires_at = NULL,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND pending_email IS NOT NULL`, id)
	if err != nil {
		return mapConstraint(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *accountsRepo) UpdatePasswordHash(ctx context.Context, id string, newHash string) error {
	return r.exec(ctx, `
		UPDATE accounts SET password_hash = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, newHash, id)
}

func (r *accountsRepo) UpdateRoles(ctx context.Context, id string, roles []string) error {
	return r.exec(ctx, `
		UPDATE accounts SET roles = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, joinRoles(roles), id)
}

func (r *accountsRepo) SetRefreshToken(ctx context.Context, id string, token *string) error {
	return r.exec(ctx, `
		UPDATE accounts SET refresh_token = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, mapOptionalString(token), id)
}

func (r *accountsRepo) SetConfirmedFlag(ctx context.Context, id string, confirmed bool) error {
	return r.exec(ctx, `
		UPDATE accounts SET confirmed = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, confirmed, id)
}

func (r *accountsRepo) SetLockedFlag(ctx context.Context, id string, locked bool) error {
	return r.exec(ctx, `
		UPDATE accounts SET locked = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, locked, id)
}

func (r *accountsRepo) UpdateName(ctx context.Context, id string, name string) error {
	return r.exec(ctx, `
		UPDATE accounts SET name = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, name, id)
}

func (r *accountsRepo) UpdateSecondName(ctx context.Context, id string, secondName string) error {
	return r.exec(ctx, `
		UPDATE accounts SET second_name = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, secondName, id)
}

func (r *accountsRepo) UpdateSurName(ctx context.Context, id string, surName string) error {
	return r.exec(ctx, `
		UPDATE accounts SET sur_name = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, surName, id)
}

func (r *accountsRepo) ClearExpiredPasswordResetCodes(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET password_reset_code = NULL, password_reset_expires_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE password_reset_expires_at IS NOT NULL AND password_reset_expires_at < ?`, now.UTC())
	return err
}

func (r *accountsRepo) ClearExpiredEmailChangeCodes(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET pending_email = NULL, email_change_code = NULL, email_change_expires_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE email_change_expires_at IS NOT NULL AND email_change_expires_at < ?`, now.UTC())
	return err
}

// exec runs an UPDATE expected to touch exactly one row.
func (r *accountsRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapConstraint(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
