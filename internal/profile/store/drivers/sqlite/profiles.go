package sqlite

import (
	"context"
	"database/sql"

	"github.com/brightlake/identity/internal/profile/domain"
	"github.com/brightlake/identity/internal/profile/store"
)

type profilesRepo struct {
	db *sql.DB
}

const profileColumns = `account_id, name, second_name, sur_name, email, avatar_ref, created_at, updated_at`

func scanProfile(row interface{ Scan(...any) error }) (domain.Profile, error) {
	var (
		p      domain.Profile
		avatar sql.NullString
	)
	err := row.Scan(
		&p.AccountID,
		&p.Name,
		&p.SecondName,
		&p.SurName,
		&p.Email,
		&avatar,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return domain.Profile{}, mapNotFound(err)
	}
	p.AvatarRef = mapNullStringPtr(avatar)
	return p, nil
}

func (r *profilesRepo) Get(ctx context.Context, accountID string) (domain.Profile, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE account_id = ?`, accountID)
	return scanProfile(row)
}

func (r *profilesRepo) GetByEmail(ctx context.Context, email string) (domain.Profile, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE email = ?`, email)
	return scanProfile(row)
}

// Upsert coalesces blank snapshot fields to the stored value, so a
// snapshot emitted by a single-field change never erases the rest of
// the row. Replays overwrite with identical values.
func (r *profilesRepo) Upsert(ctx context.Context, p domain.Profile) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (account_id, name, second_name, sur_name, email)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (account_id) DO UPDATE SET
			name        = CASE WHEN excluded.name = ''        THEN profiles.name        ELSE excluded.name END,
			second_name = CASE WHEN excluded.second_name = '' THEN profiles.second_name ELSE excluded.second_name END,
			sur_name    = CASE WHEN excluded.sur_name = ''    THEN profiles.sur_name    ELSE excluded.sur_name END,
			email       = CASE WHEN excluded.email = ''       THEN profiles.email       ELSE excluded.email END,
			updated_at  = CURRENT_TIMESTAMP`,
		p.AccountID, p.Name, p.SecondName, p.SurName, p.Email)
	return err
}

func (r *profilesRepo) SetAvatar(ctx context.Context, accountID string, ref *string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET avatar_ref = ?, updated_at = CURRENT_TIMESTAMP WHERE account_id = ?`,
		mapOptionalString(ref), accountID)
	if err != nil {
		return err
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

func (r *profilesRepo) List(ctx context.Context) ([]domain.Profile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles ORDER BY account_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
