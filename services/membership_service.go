package services

import (
	"context"
	"fmt"
	"log/slog"
	"quorum/contract"
	"quorum/domain"
	"quorum/errors"

	"github.com/samber/lo"
)

// MembershipService decides who may join a group room.
// Public groups are open to everyone, guests included. Other groups need a membership.
type MembershipService struct {
	log          *slog.Logger
	repository   contract.IMembershipRepository
	publicGroups map[domain.GroupID]struct{}
	revoker      contract.IRevoker
}

var _ contract.IMembershipService = (*MembershipService)(nil)

func NewMembershipService(log *slog.Logger, repository contract.IMembershipRepository, publicGroups []domain.GroupID) *MembershipService {
	return &MembershipService{
		log:          log,
		repository:   repository,
		publicGroups: lo.SliceToMap(publicGroups, func(g domain.GroupID) (domain.GroupID, struct{}) { return g, struct{}{} }),
	}
}

// SetRevoker is called once the router exists, the router itself needing
// this service to authorize joins.
func (s *MembershipService) SetRevoker(revoker contract.IRevoker) {
	s.revoker = revoker
}

func (s *MembershipService) Authorize(ctx context.Context, identity domain.Identity, groupID domain.GroupID) (bool, error) {
	if _, ok := s.publicGroups[groupID]; ok {
		return true, nil
	}
	if identity.IsGuest() {
		return false, nil
	}
	if _, err := s.repository.Get(ctx, identity.UserID, groupID); err != nil {
		if errors.Is(err, errors.ErrMembershipNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %w", errors.ErrStorage, err)
	}
	return true, nil
}

func (s *MembershipService) AddMember(ctx context.Context, membership domain.Membership) error {
	if membership.UserID == "" {
		return fmt.Errorf("%w: missing user id", errors.ErrValidation)
	}
	groupID, err := domain.ParseGroupID(string(membership.GroupID))
	if err != nil {
		return err
	}
	membership.GroupID = groupID
	membership.Role = domain.ToRole(string(membership.Role))
	if err := s.repository.Add(ctx, membership); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrStorage, err)
	}
	s.log.Info("Member added", "user_id", membership.UserID, "group_id", groupID, "role", membership.Role)
	return nil
}

func (s *MembershipService) RemoveMember(ctx context.Context, userID string, groupID domain.GroupID) error {
	if err := s.repository.Remove(ctx, userID, groupID); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrStorage, err)
	}
	evicted := 0
	if s.revoker != nil {
		evicted = s.revoker.Reauthorize(ctx, userID, groupID)
	}
	s.log.Info("Member removed", "user_id", userID, "group_id", groupID, "evicted_connections", evicted)
	return nil
}

func (s *MembershipService) GroupsOf(ctx context.Context, userID string) ([]domain.Membership, error) {
	memberships, err := s.repository.GroupsOf(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrStorage, err)
	}
	return memberships, nil
}
