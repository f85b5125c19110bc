package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/model"
)

// ContactFilter narrows contact listings. Limit <= 0 means no limit.
type ContactFilter struct {
	Offset int
	Limit  int
	Status model.ContactStatus
	Tags   []string
	Search string
}

type ContactRepositoryInterface interface {
	Create(ctx context.Context, c *model.Contact) error
	GetByID(ctx context.Context, userID, id int) (*model.Contact, error)
	GetByEmail(ctx context.Context, userID int, email string) (*model.Contact, error)
	Update(ctx context.Context, c *model.Contact) error
	Delete(ctx context.Context, userID, id int) error
	List(ctx context.Context, userID int, f ContactFilter) ([]*model.Contact, int, error)
	Count(ctx context.Context, userID int) (int, error)
	ListActive(ctx context.Context, userID int, ids []int, tags []string) ([]*model.Contact, error)
	Tags(ctx context.Context, userID int) ([]string, error)
	BulkUpdate(ctx context.Context, userID int, ids []int, addTags []string, status model.ContactStatus) (int, error)
	BulkDelete(ctx context.Context, userID int, ids []int) (int, error)
}

type ContactRepository struct {
	DB *sql.DB
}

const contactColumns = `id, user_id, email, first_name, last_name, company, tags, custom_fields,
	status, engagement_score, subscribed_at, unsubscribed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (*model.Contact, error) {
	var c model.Contact
	err := row.Scan(
		&c.ID, &c.UserID, &c.Email, &c.FirstName, &c.LastName, &c.Company, &c.Tags, &c.CustomFields,
		&c.Status, &c.EngagementScore, &c.SubscribedAt, &c.UnsubscribedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// isUniqueViolation reports a Postgres unique_violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (r *ContactRepository) Create(ctx context.Context, c *model.Contact) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	if c.SubscribedAt.IsZero() {
		c.SubscribedAt = now
	}
	if c.Status == "" {
		c.Status = model.ContactActive
	}
	if c.Tags == nil {
		c.Tags = pq.StringArray{}
	}
	query := `
		INSERT INTO contacts (user_id, email, first_name, last_name, company, tags, custom_fields, status, subscribed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	err := r.DB.QueryRowContext(ctx, query,
		c.UserID, c.Email, c.FirstName, c.LastName, c.Company, c.Tags, c.CustomFields, c.Status, c.SubscribedAt, c.CreatedAt,
	).Scan(&c.ID)
	if isUniqueViolation(err) {
		return appErrors.NewBadRequest("contact with email %s already exists", c.Email)
	}
	if err != nil {
		return fmt.Errorf("insert contact: %w", err)
	}
	return nil
}

func (r *ContactRepository) GetByID(ctx context.Context, userID, id int) (*model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id=$1 AND user_id=$2`
	c, err := scanContact(r.DB.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("contact", id)
		}
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return c, nil
}

// GetByEmail returns nil, nil when the owner has no contact with that email.
func (r *ContactRepository) GetByEmail(ctx context.Context, userID int, email string) (*model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE user_id=$1 AND lower(email)=lower($2)`
	c, err := scanContact(r.DB.QueryRowContext(ctx, query, userID, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get contact by email: %w", err)
	}
	return c, nil
}

func (r *ContactRepository) Update(ctx context.Context, c *model.Contact) error {
	now := time.Now().UTC()
	c.UpdatedAt = &now
	query := `
		UPDATE contacts
		SET email=$1, first_name=$2, last_name=$3, company=$4, tags=$5, custom_fields=$6,
		    status=$7, unsubscribed_at=$8, updated_at=$9
		WHERE id=$10 AND user_id=$11
	`
	res, err := r.DB.ExecContext(ctx, query,
		c.Email, c.FirstName, c.LastName, c.Company, c.Tags, c.CustomFields,
		c.Status, c.UnsubscribedAt, now, c.ID, c.UserID,
	)
	if isUniqueViolation(err) {
		return appErrors.NewBadRequest("contact with email %s already exists", c.Email)
	}
	if err != nil {
		return fmt.Errorf("update contact: %w", err)
	}
	return expectOne(res, "contact", c.ID)
}

func (r *ContactRepository) Delete(ctx context.Context, userID, id int) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM contacts WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	return expectOne(res, "contact", id)
}

func expectOne(res sql.Result, resource string, id int) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.NewNotFound(resource, id)
	}
	return nil
}

func contactWhere(userID int, f ContactFilter) (string, []any) {
	where := ` WHERE user_id=$1`
	args := []any{userID}
	argPos := 2

	if f.Status != "" {
		where += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, f.Status)
		argPos++
	}
	if len(f.Tags) > 0 {
		where += fmt.Sprintf(" AND tags @> $%d", argPos)
		args = append(args, pq.StringArray(f.Tags))
		argPos++
	}
	if f.Search != "" {
		where += fmt.Sprintf(
			" AND (email ILIKE $%[1]d OR first_name ILIKE $%[1]d OR last_name ILIKE $%[1]d OR company ILIKE $%[1]d)",
			argPos,
		)
		args = append(args, "%"+f.Search+"%")
	}
	return where, args
}

func (r *ContactRepository) List(ctx context.Context, userID int, f ContactFilter) ([]*model.Contact, int, error) {
	where, args := contactWhere(userID, f)

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count contacts: %w", err)
	}

	query := `SELECT ` + contactColumns + ` FROM contacts` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, f.Limit, f.Offset)
	}

	contacts, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return contacts, total, nil
}

func (r *ContactRepository) query(ctx context.Context, query string, args ...any) ([]*model.Contact, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	contacts := []*model.Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (r *ContactRepository) Count(ctx context.Context, userID int) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts WHERE user_id=$1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count contacts: %w", err)
	}
	return n, nil
}

// ListActive resolves campaign recipients: explicit ids win over tags; with neither,
// every active contact of the owner is returned.
func (r *ContactRepository) ListActive(ctx context.Context, userID int, ids []int, tags []string) ([]*model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE user_id=$1 AND status='active'`
	args := []any{userID}
	switch {
	case len(ids) > 0:
		query += ` AND id = ANY($2)`
		args = append(args, pq.Array(ids))
	case len(tags) > 0:
		query += ` AND tags @> $2`
		args = append(args, pq.StringArray(tags))
	}
	query += ` ORDER BY id`
	return r.query(ctx, query, args...)
}

func (r *ContactRepository) Tags(ctx context.Context, userID int) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT DISTINCT unnest(tags) AS tag FROM contacts WHERE user_id=$1 ORDER BY tag`, userID)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// BulkUpdate merges addTags into each contact and optionally sets status.
func (r *ContactRepository) BulkUpdate(ctx context.Context, userID int, ids []int, addTags []string, status model.ContactStatus) (int, error) {
	query := `
		UPDATE contacts
		SET tags = ARRAY(SELECT DISTINCT t FROM unnest(tags || $3::text[]) AS t),
		    status = COALESCE(NULLIF($4, ''), status),
		    unsubscribed_at = CASE WHEN $4 = 'unsubscribed' THEN NOW() ELSE unsubscribed_at END,
		    updated_at = NOW()
		WHERE user_id=$1 AND id = ANY($2)
	`
	if addTags == nil {
		addTags = []string{}
	}
	res, err := r.DB.ExecContext(ctx, query, userID, pq.Array(ids), pq.StringArray(addTags), string(status))
	if err != nil {
		return 0, fmt.Errorf("bulk update contacts: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *ContactRepository) BulkDelete(ctx context.Context, userID int, ids []int) (int, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM contacts WHERE user_id=$1 AND id = ANY($2)`, userID, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("bulk delete contacts: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
