package service

import (
	"context"

	"github.com/unclebandit/mailleopard-backend/internal/config"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
)

type UserService struct {
	UserRepo    repository.UserRepositoryInterface
	ContactRepo repository.ContactRepositoryInterface
	Plans       config.Plans
}

type PlanUsage struct {
	Plan          model.Plan `json:"plan"`
	ContactsUsed  int        `json:"contacts_used"`
	ContactsLimit int        `json:"contacts_limit"`
	Features      []string   `json:"features"`
}

type Profile struct {
	*model.User
	Usage PlanUsage `json:"usage"`
}

func (s *UserService) Me(ctx context.Context, userID int) (*Profile, error) {
	u, err := s.UserRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	used, err := s.ContactRepo.Count(ctx, userID)
	if err != nil {
		return nil, err
	}
	spec := s.Plans.Spec(u.Plan)
	features := spec.Features
	if features == nil {
		features = []string{}
	}
	return &Profile{
		User: u,
		Usage: PlanUsage{
			Plan:          u.Plan,
			ContactsUsed:  used,
			ContactsLimit: spec.ContactLimit,
			Features:      features,
		},
	}, nil
}
