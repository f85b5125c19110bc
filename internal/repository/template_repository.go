package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/model"
)

type TemplateFilter struct {
	Offset   int
	Limit    int
	Category string
	Search   string
}

type TemplateRepositoryInterface interface {
	Create(ctx context.Context, t *model.Template) error
	// GetVisible returns a template owned by userID or a default template.
	GetVisible(ctx context.Context, userID, id int) (*model.Template, error)
	List(ctx context.Context, userID int, f TemplateFilter) ([]*model.Template, int, error)
	Update(ctx context.Context, t *model.Template) error
	Delete(ctx context.Context, userID, id int) error
	Categories(ctx context.Context, userID int) ([]string, error)
	IncrementUsage(ctx context.Context, id int) error
}

type TemplateRepository struct {
	DB *sql.DB
}

const templateColumns = `id, user_id, name, description, subject, content, category, is_default, usage_count, created_at, updated_at`

func scanTemplate(row rowScanner) (*model.Template, error) {
	var t model.Template
	var userID sql.NullInt64
	err := row.Scan(&t.ID, &userID, &t.Name, &t.Description, &t.Subject, &t.Content, &t.Category,
		&t.IsDefault, &t.UsageCount, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		id := int(userID.Int64)
		t.UserID = &id
	}
	return &t, nil
}

func (r *TemplateRepository) Create(ctx context.Context, t *model.Template) error {
	t.CreatedAt = time.Now().UTC()
	query := `
		INSERT INTO templates (user_id, name, description, subject, content, category, is_default, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		RETURNING id
	`
	if err := r.DB.QueryRowContext(ctx, query,
		t.UserID, t.Name, t.Description, t.Subject, t.Content, t.Category, t.CreatedAt,
	).Scan(&t.ID); err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

func (r *TemplateRepository) GetVisible(ctx context.Context, userID, id int) (*model.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE id=$1 AND (user_id=$2 OR is_default)`
	t, err := scanTemplate(r.DB.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("template", id)
		}
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

func (r *TemplateRepository) List(ctx context.Context, userID int, f TemplateFilter) ([]*model.Template, int, error) {
	where := ` WHERE (user_id=$1 OR is_default)`
	args := []any{userID}
	argPos := 2

	if f.Category != "" {
		where += fmt.Sprintf(" AND category=$%d", argPos)
		args = append(args, f.Category)
		argPos++
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND (name ILIKE $%[1]d OR description ILIKE $%[1]d)", argPos)
		args = append(args, "%"+f.Search+"%")
		argPos++
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM templates`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count templates: %w", err)
	}

	query := `SELECT ` + templateColumns + ` FROM templates` + where +
		fmt.Sprintf(" ORDER BY is_default DESC, created_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	templates := []*model.Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, 0, err
		}
		templates = append(templates, t)
	}
	return templates, total, rows.Err()
}

// Update only touches templates the user owns; defaults never match.
func (r *TemplateRepository) Update(ctx context.Context, t *model.Template) error {
	query := `
		UPDATE templates
		SET name=$1, description=$2, subject=$3, content=$4, category=$5, updated_at=NOW()
		WHERE id=$6 AND user_id=$7 AND NOT is_default
	`
	res, err := r.DB.ExecContext(ctx, query, t.Name, t.Description, t.Subject, t.Content, t.Category, t.ID, t.UserID)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	return expectOne(res, "template", t.ID)
}

func (r *TemplateRepository) Delete(ctx context.Context, userID, id int) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM templates WHERE id=$1 AND user_id=$2 AND NOT is_default`, id, userID)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return expectOne(res, "template", id)
}

func (r *TemplateRepository) Categories(ctx context.Context, userID int) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT DISTINCT category FROM templates
		WHERE (user_id=$1 OR is_default) AND category <> ''
		ORDER BY category
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *TemplateRepository) IncrementUsage(ctx context.Context, id int) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE templates SET usage_count = usage_count + 1 WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("increment template usage: %w", err)
	}
	return nil
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)
