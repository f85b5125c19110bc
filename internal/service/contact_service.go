package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/mailleopard-backend/internal/config"
	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
	"github.com/unclebandit/mailleopard-backend/internal/validation"
)

const maxImportErrors = 10

// ExportHeader is the fixed column layout of a contacts CSV export.
var ExportHeader = []string{"email", "first_name", "last_name", "company", "tags", "status", "subscribed_at", "engagement_score"}

type ContactService struct {
	ContactRepo repository.ContactRepositoryInterface
	UserRepo    repository.UserRepositoryInterface
	Plans       config.Plans
	Log         *zap.Logger
	Now         func() time.Time
}

type ContactInput struct {
	Email        string         `json:"email" validate:"required,email"`
	FirstName    string         `json:"first_name" validate:"max=100"`
	LastName     string         `json:"last_name" validate:"max=100"`
	Company      string         `json:"company" validate:"max=255"`
	Tags         []string       `json:"tags"`
	CustomFields map[string]any `json:"custom_fields"`
}

type ContactUpdate struct {
	Email        *string              `json:"email" validate:"omitempty,email"`
	FirstName    *string              `json:"first_name" validate:"omitempty,max=100"`
	LastName     *string              `json:"last_name" validate:"omitempty,max=100"`
	Company      *string              `json:"company" validate:"omitempty,max=255"`
	Tags         []string             `json:"tags"`
	CustomFields map[string]any       `json:"custom_fields"`
	Status       *model.ContactStatus `json:"status" validate:"omitempty,oneof=active unsubscribed bounced complained"`
}

type ContactQuery struct {
	Skip   int
	Limit  int
	Status model.ContactStatus
	Tags   []string
	Search string
}

type BulkUpdateInput struct {
	ContactIDs []int               `json:"contact_ids" validate:"required,min=1"`
	Tags       []string            `json:"tags"`
	Status     model.ContactStatus `json:"status" validate:"omitempty,oneof=active unsubscribed bounced complained"`
}

type ImportResult struct {
	Imported int      `json:"imported"`
	Updated  int      `json:"updated"`
	Errors   []string `json:"errors"`
}

func (s *ContactService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *ContactService) plan(ctx context.Context, userID int) (model.Plan, error) {
	u, err := s.UserRepo.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.Plan, nil
}

func (s *ContactService) Create(ctx context.Context, userID int, in ContactInput) (*model.Contact, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	plan, err := s.plan(ctx, userID)
	if err != nil {
		return nil, err
	}
	count, err := s.ContactRepo.Count(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := checkCeiling(s.Plans, plan, count+1); err != nil {
		return nil, err
	}

	existing, err := s.ContactRepo.GetByEmail(ctx, userID, in.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, appErrors.NewBadRequest("contact with email %s already exists", in.Email)
	}

	c := &model.Contact{
		UserID:       userID,
		Email:        in.Email,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Company:      strings.TrimSpace(in.Company),
		CustomFields: model.JSONMap(in.CustomFields),
		Status:       model.ContactActive,
		SubscribedAt: s.now(),
	}
	c.MergeTags(in.Tags)
	if err := s.ContactRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ContactService) Get(ctx context.Context, userID, id int) (*model.Contact, error) {
	return s.ContactRepo.GetByID(ctx, userID, id)
}

func (s *ContactService) List(ctx context.Context, userID int, q ContactQuery) (*Page[*model.Contact], error) {
	skip, limit := normalizePage(q.Skip, q.Limit)
	if q.Status != "" && !q.Status.Valid() {
		return nil, appErrors.NewBadRequest("invalid status %q", q.Status)
	}
	items, total, err := s.ContactRepo.List(ctx, userID, repository.ContactFilter{
		Offset: skip,
		Limit:  limit,
		Status: q.Status,
		Tags:   q.Tags,
		Search: q.Search,
	})
	if err != nil {
		return nil, err
	}
	return newPage(items, total, skip, limit), nil
}

func (s *ContactService) Update(ctx context.Context, userID, id int, in ContactUpdate) (*model.Contact, error) {
	if in.Email != nil {
		e := normalizeEmail(*in.Email)
		in.Email = &e
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	c, err := s.ContactRepo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if in.Email != nil && *in.Email != c.Email {
		other, err := s.ContactRepo.GetByEmail(ctx, userID, *in.Email)
		if err != nil {
			return nil, err
		}
		if other != nil && other.ID != c.ID {
			return nil, appErrors.NewBadRequest("contact with email %s already exists", *in.Email)
		}
		c.Email = *in.Email
	}
	if in.FirstName != nil {
		c.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		c.LastName = *in.LastName
	}
	if in.Company != nil {
		c.Company = *in.Company
	}
	if in.Tags != nil {
		c.Tags = nil
		c.MergeTags(in.Tags)
	}
	if in.CustomFields != nil {
		c.CustomFields = model.JSONMap(in.CustomFields)
	}
	if in.Status != nil && *in.Status != c.Status {
		c.Status = *in.Status
		if c.Status == model.ContactUnsubscribed {
			now := s.now()
			c.UnsubscribedAt = &now
		}
	}

	if err := s.ContactRepo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ContactService) Delete(ctx context.Context, userID, id int) error {
	return s.ContactRepo.Delete(ctx, userID, id)
}

func (s *ContactService) Unsubscribe(ctx context.Context, userID, id int) (*model.Contact, error) {
	status := model.ContactUnsubscribed
	return s.Update(ctx, userID, id, ContactUpdate{Status: &status})
}

func (s *ContactService) Tags(ctx context.Context, userID int) ([]string, error) {
	return s.ContactRepo.Tags(ctx, userID)
}

func (s *ContactService) BulkUpdate(ctx context.Context, userID int, in BulkUpdateInput) (int, error) {
	if err := validation.Struct(in); err != nil {
		return 0, err
	}
	return s.ContactRepo.BulkUpdate(ctx, userID, in.ContactIDs, in.Tags, in.Status)
}

func (s *ContactService) BulkDelete(ctx context.Context, userID int, ids []int) (int, error) {
	if len(ids) == 0 {
		return 0, appErrors.NewBadRequest("contact_ids is required")
	}
	return s.ContactRepo.BulkDelete(ctx, userID, ids)
}

// Import reads a CSV with at least an email column. Rows are numbered from 2 (after the
// header). Only the first maxImportErrors row errors are reported.
func (s *ContactService) Import(ctx context.Context, userID int, r io.Reader, updateExisting bool) (*ImportResult, error) {
	plan, err := s.plan(ctx, userID)
	if err != nil {
		return nil, err
	}
	count, err := s.ContactRepo.Count(ctx, userID)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, appErrors.NewBadRequest("CSV file is empty")
		}
		return nil, appErrors.NewBadRequest("invalid CSV: %v", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	if _, ok := cols["email"]; !ok {
		return nil, appErrors.NewBadRequest("CSV must have an email column")
	}
	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	res := &ImportResult{Errors: []string{}}
	addErr := func(format string, args ...any) {
		if len(res.Errors) < maxImportErrors {
			res.Errors = append(res.Errors, fmt.Sprintf(format, args...))
		}
	}

	seen := map[string]struct{}{}
	for row := 2; ; row++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			addErr("Row %d: %v", row, err)
			continue
		}

		email := normalizeEmail(field(rec, "email"))
		switch {
		case email == "":
			addErr("Row %d: email is required", row)
			continue
		case !validation.IsEmail(email):
			addErr("Row %d: invalid email %s", row, email)
			continue
		}
		if _, dup := seen[email]; dup {
			addErr("Row %d: duplicate email %s in file", row, email)
			continue
		}
		seen[email] = struct{}{}

		tags := splitTags(field(rec, "tags"))
		existing, err := s.ContactRepo.GetByEmail(ctx, userID, email)
		if err != nil {
			return nil, err
		}

		if existing != nil {
			if !updateExisting {
				addErr("Row %d: contact with email %s already exists", row, email)
				continue
			}
			overwrite(&existing.FirstName, field(rec, "first_name"))
			overwrite(&existing.LastName, field(rec, "last_name"))
			overwrite(&existing.Company, field(rec, "company"))
			existing.MergeTags(tags)
			if err := s.ContactRepo.Update(ctx, existing); err != nil {
				addErr("Row %d: %v", row, err)
				continue
			}
			res.Updated++
			continue
		}

		if !s.Plans.WithinLimit(plan, count+1) {
			addErr("Row %d: contact limit reached (%d)", row, s.Plans.Limit(plan))
			break
		}
		c := &model.Contact{
			UserID:       userID,
			Email:        email,
			FirstName:    field(rec, "first_name"),
			LastName:     field(rec, "last_name"),
			Company:      field(rec, "company"),
			Status:       model.ContactActive,
			SubscribedAt: s.now(),
		}
		c.MergeTags(tags)
		if err := s.ContactRepo.Create(ctx, c); err != nil {
			if appErrors.Public(err) {
				addErr("Row %d: %v", row, err)
				continue
			}
			return nil, err
		}
		count++
		res.Imported++
	}

	s.Log.Info("contacts imported",
		zap.Int("user_id", userID),
		zap.Int("imported", res.Imported),
		zap.Int("updated", res.Updated),
		zap.Int("errors", len(res.Errors)),
	)
	return res, nil
}

// Export writes every contact matching q (ignoring paging) as CSV.
func (s *ContactService) Export(ctx context.Context, userID int, q ContactQuery, w io.Writer) error {
	contacts, _, err := s.ContactRepo.List(ctx, userID, repository.ContactFilter{
		Status: q.Status,
		Tags:   q.Tags,
		Search: q.Search,
	})
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return err
	}
	for _, c := range contacts {
		rec := []string{
			c.Email,
			c.FirstName,
			c.LastName,
			c.Company,
			strings.Join(c.Tags, ","),
			string(c.Status),
			c.SubscribedAt.UTC().Format(time.RFC3339),
			strconv.FormatFloat(c.EngagementScore, 'f', 2, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func overwrite(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
