package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"quorum/contract"
	"quorum/domain"
	"quorum/errors"

	"github.com/dgraph-io/badger/v4"
)

// MembershipRepository stores one key per (user, group) under "member:{uid}:{group}".
type MembershipRepository struct {
	db *badger.DB
}

var _ contract.IMembershipRepository = (*MembershipRepository)(nil)

func NewMembershipRepository(db *badger.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// Add creates or replaces the membership, changing a role is an Add.
func (r *MembershipRepository) Add(ctx context.Context, membership domain.Membership) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(membership)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(membershipKey(membership.UserID, membership.GroupID), data)
	})
}

// Remove is a no-op for an unknown membership.
func (r *MembershipRepository) Remove(ctx context.Context, userID string, groupID domain.GroupID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(membershipKey(userID, groupID))
	})
}

func (r *MembershipRepository) Get(ctx context.Context, userID string, groupID domain.GroupID) (domain.Membership, error) {
	if err := ctx.Err(); err != nil {
		return domain.Membership{}, err
	}
	var membership domain.Membership
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(membershipKey(userID, groupID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &membership)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Membership{}, fmt.Errorf("%w: %s in %s", errors.ErrMembershipNotFound, userID, groupID)
	}
	return membership, err
}

// GroupsOf lists the memberships of a user ordered by group.
func (r *MembershipRepository) GroupsOf(ctx context.Context, userID string) ([]domain.Membership, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var memberships []domain.Membership
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("member:%s:", userID))
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var membership domain.Membership
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &membership)
			})
			if err != nil {
				return err
			}
			memberships = append(memberships, membership)
		}
		return nil
	})
	return memberships, err
}

func membershipKey(userID string, groupID domain.GroupID) []byte {
	return []byte(fmt.Sprintf("member:%s:%s", userID, groupID))
}
