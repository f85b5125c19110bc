// internal/service/template_service.go
package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
	"github.com/unclebandit/mailleopard-backend/internal/validation"
)

// RenderTemplate replaces every {{key}} in template with data[key] in a single pass.
func RenderTemplate(template string, data map[string]string) string {
	if len(data) == 0 || !strings.Contains(template, "{{") {
		return template
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{{"+k+"}}", data[k])
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// PersonalizationData is the token table for one contact. Custom fields win over
// built-in tokens of the same name.
func PersonalizationData(c *model.Contact) map[string]string {
	fullName := strings.TrimSpace(c.FirstName + " " + c.LastName)
	data := map[string]string{
		"first_name": orDefault(c.FirstName, "there"),
		"last_name":  c.LastName,
		"full_name":  orDefault(fullName, "there"),
		"email":      c.Email,
		"company":    orDefault(c.Company, "your company"),
	}
	for k, v := range c.CustomFields {
		if v == nil {
			data[k] = ""
			continue
		}
		data[k] = fmt.Sprint(v)
	}
	return data
}

// Personalize fills contact tokens into content.
func Personalize(content string, c *model.Contact) string {
	return RenderTemplate(content, PersonalizationData(c))
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

type TemplateService struct {
	TemplateRepo repository.TemplateRepositoryInterface
	Log          *zap.Logger
}

type TemplateInput struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description" validate:"max=1000"`
	Subject     string `json:"subject" validate:"required,max=500"`
	Content     string `json:"content" validate:"required"`
	Category    string `json:"category" validate:"max=100"`
}

// TemplateUpdate holds optional fields; nil means unchanged.
type TemplateUpdate struct {
	Name        *string `json:"name" validate:"omitempty,max=255"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
	Subject     *string `json:"subject" validate:"omitempty,max=500"`
	Content     *string `json:"content"`
	Category    *string `json:"category" validate:"omitempty,max=100"`
}

func (s *TemplateService) Create(ctx context.Context, userID int, in TemplateInput) (*model.Template, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	owner := userID
	t := &model.Template{
		UserID:      &owner,
		Name:        in.Name,
		Description: in.Description,
		Subject:     in.Subject,
		Content:     in.Content,
		Category:    in.Category,
	}
	if err := s.TemplateRepo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TemplateService) Get(ctx context.Context, userID, id int) (*model.Template, error) {
	return s.TemplateRepo.GetVisible(ctx, userID, id)
}

func (s *TemplateService) List(ctx context.Context, userID, skip, limit int, category, search string) (*Page[*model.Template], error) {
	skip, limit = normalizePage(skip, limit)
	items, total, err := s.TemplateRepo.List(ctx, userID, repository.TemplateFilter{
		Offset:   skip,
		Limit:    limit,
		Category: category,
		Search:   search,
	})
	if err != nil {
		return nil, err
	}
	return newPage(items, total, skip, limit), nil
}

// editable loads a template and rejects defaults, which are read-only for everyone.
func (s *TemplateService) editable(ctx context.Context, userID, id int) (*model.Template, error) {
	t, err := s.TemplateRepo.GetVisible(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !t.OwnedBy(userID) {
		return nil, appErrors.NewForbidden("default templates cannot be modified")
	}
	return t, nil
}

func (s *TemplateService) Update(ctx context.Context, userID, id int, in TemplateUpdate) (*model.Template, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	t, err := s.editable(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		t.Name = *in.Name
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	if in.Subject != nil {
		t.Subject = *in.Subject
	}
	if in.Content != nil {
		t.Content = *in.Content
	}
	if in.Category != nil {
		t.Category = *in.Category
	}
	if err := s.TemplateRepo.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TemplateService) Delete(ctx context.Context, userID, id int) error {
	if _, err := s.editable(ctx, userID, id); err != nil {
		return err
	}
	return s.TemplateRepo.Delete(ctx, userID, id)
}

// Duplicate copies any visible template, including defaults, into the caller's library.
func (s *TemplateService) Duplicate(ctx context.Context, userID, id int, name string) (*model.Template, error) {
	src, err := s.TemplateRepo.GetVisible(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		name = src.Name + " (Copy)"
	}
	return s.Create(ctx, userID, TemplateInput{
		Name:        name,
		Description: src.Description,
		Subject:     src.Subject,
		Content:     src.Content,
		Category:    src.Category,
	})
}

func (s *TemplateService) Categories(ctx context.Context, userID int) ([]string, error) {
	return s.TemplateRepo.Categories(ctx, userID)
}
