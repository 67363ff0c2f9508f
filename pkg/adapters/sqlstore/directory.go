package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aretw0/gocare/pkg/domain"
)

const userColumns = `user_id, name, mobile, otp, dob, email, address, bill_amount, bill_due, last_login, transactions`

// Directory implements ports.IdentityStore and ports.DataStore over the users table.
type Directory struct {
	*DB
}

// Directory returns the user-record view of the database.
func (d *DB) Directory() *Directory {
	return &Directory{DB: d}
}

// Seed upserts users.
func (d *Directory) Seed(ctx context.Context, users []domain.UserRecord) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin seed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, d.rebind(`
INSERT INTO users (user_id, name, mobile, mobile_digits, otp, dob, email, address, bill_amount, bill_due, last_login, transactions)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET
    name = excluded.name, mobile = excluded.mobile, mobile_digits = excluded.mobile_digits, otp = excluded.otp,
    dob = excluded.dob, email = excluded.email, address = excluded.address, bill_amount = excluded.bill_amount,
    bill_due = excluded.bill_due, last_login = excluded.last_login, transactions = excluded.transactions`))
	if err != nil {
		return fmt.Errorf("failed to prepare seed: %w", err)
	}
	defer stmt.Close()

	for _, u := range users {
		if _, err := stmt.ExecContext(ctx, u.UserID, u.Name, u.Mobile, domain.DigitsOf(u.Mobile), u.Code,
			u.DOB, u.Email, u.Address, u.BillAmount, u.BillDue, u.LastLogin, u.Transactions); err != nil {
			return fmt.Errorf("failed to seed user %s: %w", u.UserID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed: %w", err)
	}
	d.logger.Info("users seeded", "count", len(users))
	return nil
}

func (d *Directory) scan(row *sql.Row) (domain.UserRecord, error) {
	var u domain.UserRecord
	err := row.Scan(&u.UserID, &u.Name, &u.Mobile, &u.Code, &u.DOB, &u.Email, &u.Address,
		&u.BillAmount, &u.BillDue, &u.LastLogin, &u.Transactions)
	if errors.Is(err, sql.ErrNoRows) {
		return u, domain.ErrNotFound
	}
	return u, err
}

func (d *Directory) byID(ctx context.Context, userID string) (domain.UserRecord, error) {
	return d.scan(d.db.QueryRowContext(ctx,
		d.rebind(`SELECT `+userColumns+` FROM users WHERE user_id = ?`), userID))
}

func (d *Directory) byIdentifier(ctx context.Context, identifier string) (domain.UserRecord, error) {
	u, err := d.byID(ctx, identifier)
	if !errors.Is(err, domain.ErrNotFound) {
		return u, err
	}
	digits := domain.DigitsOf(identifier)
	if digits == "" {
		return u, domain.ErrNotFound
	}
	return d.scan(d.db.QueryRowContext(ctx,
		d.rebind(`SELECT `+userColumns+` FROM users WHERE mobile_digits = ? ORDER BY user_id LIMIT 1`), digits))
}

// Verify checks credential against the stored one-time code. An empty credential
// answers pending.
func (d *Directory) Verify(ctx context.Context, identifier, credential string) (domain.VerifyResult, error) {
	u, err := d.byIdentifier(ctx, identifier)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.VerifyResult{Status: domain.VerifyFailure, Reason: "user not found"}, nil
	}
	if err != nil {
		return domain.VerifyResult{}, fmt.Errorf("failed to look up user: %w", err)
	}
	if credential == "" {
		return domain.VerifyResult{Status: domain.VerifyPending}, nil
	}
	if credential != u.Code {
		return domain.VerifyResult{Status: domain.VerifyFailure, Reason: "code is wrong"}, nil
	}
	return domain.VerifyResult{Status: domain.VerifySuccess, UserID: u.UserID, Name: u.Name, Mobile: u.Mobile}, nil
}

// Fetch returns the record of kind for userID.
func (d *Directory) Fetch(ctx context.Context, kind domain.DataKind, userID string) (domain.Record, error) {
	u, err := d.byID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to fetch %s for %s: %w", kind, userID, err)
	}
	rec := u.Record(kind)
	if rec == nil {
		return nil, fmt.Errorf("unknown data kind %q", kind)
	}
	if len(rec) == 0 {
		return nil, domain.ErrNotFound
	}
	return rec, nil
}
