package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"notenest.app/internal/accounts"
	"notenest.app/internal/ids"
)

const accountColumns = `id, email, plan, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (accounts.Account, error) {
	var (
		acct accounts.Account
		plan string
	)
	if err := row.Scan(&acct.ID, &acct.Email, &plan, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
		return accounts.Account{}, err
	}
	acct.Plan = accounts.Plan(plan)
	return acct, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (accounts.Account, error) {
	acct, err := scanAccount(s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from users where id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return accounts.Account{}, accounts.ErrNotFound
	}
	if err != nil {
		return accounts.Account{}, fmt.Errorf("find account by id: %w", err)
	}
	return acct, nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (accounts.Account, error) {
	acct, err := scanAccount(s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from users where email=$1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return accounts.Account{}, accounts.ErrNotFound
	}
	if err != nil {
		return accounts.Account{}, fmt.Errorf("find account by email: %w", err)
	}
	return acct, nil
}

// Create inserts a new account. A concurrent insert of the same email loses
// on the unique index and returns the row that won.
func (s *Store) Create(ctx context.Context, email string, plan accounts.Plan) (accounts.Account, error) {
	if email == "" {
		return accounts.Account{}, accounts.ErrInvalidEmail
	}
	if !plan.Valid() {
		return accounts.Account{}, accounts.ErrInvalidPlan
	}
	acct, err := scanAccount(s.db.QueryRowContext(ctx, `
		insert into users(id, email, plan)
		values ($1, $2, $3)
		returning `+accountColumns,
		ids.New(), email, string(plan)))
	if isUniqueViolation(err) {
		return s.FindByEmail(ctx, email)
	}
	if err != nil {
		return accounts.Account{}, fmt.Errorf("create account: %w", err)
	}
	return acct, nil
}

// UpdatePlan sets plan on every account with email. Rows already on plan keep
// their updated_at.
func (s *Store) UpdatePlan(ctx context.Context, email string, plan accounts.Plan) ([]accounts.Account, error) {
	if !plan.Valid() {
		return nil, accounts.ErrInvalidPlan
	}
	rows, err := s.db.QueryContext(ctx, `
		update users
		set plan = $2,
		    updated_at = case when plan = $2 then updated_at else now() end
		where email = $1
		returning `+accountColumns,
		email, string(plan))
	if err != nil {
		return nil, fmt.Errorf("update plan: %w", err)
	}
	defer rows.Close()

	var res []accounts.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("update plan: %w", err)
		}
		res = append(res, acct)
	}
	return res, rows.Err()
}
