package core

import (
	"context"

	"golang.org/x/sync/errgroup"

	"fridgeshare/pkg/domain"
)

// StoreDirectory answers relationship lookups from the facts held in the
// persistent store. Friendships count in both directions.
type StoreDirectory struct {
	store PersistentStore
}

var _ RelationshipDirectory = (*StoreDirectory)(nil)

// NewStoreDirectory constructs a directory over store.
func NewStoreDirectory(store PersistentStore) *StoreDirectory {
	return &StoreDirectory{store: store}
}

// FriendIDsOf returns the ids of userID's accepted friends.
func (d *StoreDirectory) FriendIDsOf(ctx context.Context, userID string) (IDSet, error) {
	out := domain.NewIDSet()
	if userID == "" {
		return out, nil
	}
	err := d.store.View(ctx, func(v TransactionView) error {
		for _, f := range v.ListFriendships() {
			if other := f.Other(userID); other != "" {
				out[other] = struct{}{}
			}
		}
		return nil
	})
	return out, err
}

// GroupIDsOf returns the ids of the groups userID belongs to.
func (d *StoreDirectory) GroupIDsOf(ctx context.Context, userID string) (IDSet, error) {
	out := domain.NewIDSet()
	if userID == "" {
		return out, nil
	}
	err := d.store.View(ctx, func(v TransactionView) error {
		for _, m := range v.ListGroupMemberships() {
			if m.UserID == userID {
				out[m.GroupID] = struct{}{}
			}
		}
		return nil
	})
	return out, err
}

// Relationships is a viewer's social graph snapshot used by the visibility predicate.
type Relationships struct {
	ViewerID string
	Friends  IDSet
	Groups   IDSet
}

// LoadRelationships fetches the viewer's friend and group sets concurrently.
// An anonymous viewer has no relationships and triggers no lookups.
func LoadRelationships(ctx context.Context, dir RelationshipDirectory, viewerID string) (Relationships, error) {
	rel := Relationships{ViewerID: viewerID, Friends: domain.NewIDSet(), Groups: domain.NewIDSet()}
	if viewerID == "" {
		return rel, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		friends, err := dir.FriendIDsOf(gctx, viewerID)
		if err != nil {
			return err
		}
		rel.Friends = friends
		return nil
	})
	g.Go(func() error {
		groups, err := dir.GroupIDsOf(gctx, viewerID)
		if err != nil {
			return err
		}
		rel.Groups = groups
		return nil
	})
	if err := g.Wait(); err != nil {
		return Relationships{}, err
	}
	return rel, nil
}

// RecordFriendship stores a friendship requested by requesterID that actor,
// the addressee, has accepted. Recording an existing pair is a no-op.
func (s *Service) RecordFriendship(ctx context.Context, actor, requesterID, addresseeID string) (domain.Friendship, error) {
	var out domain.Friendship
	err := s.run(ctx, "record_friendship", actor, func(ctx context.Context) (string, error) {
		if err := requireActor(actor, "accept friendships"); err != nil {
			return "", err
		}
		if requesterID == "" || addresseeID == "" {
			return "", domain.ErrInvalidInput{Field: "friendship", Reason: "both users are required"}
		}
		if requesterID == addresseeID {
			return "", domain.ErrInvalidInput{Field: "friendship", Reason: "users cannot befriend themselves"}
		}
		if actor != addresseeID {
			return "", domain.ErrForbidden{Actor: actor, Action: "accept a friendship for " + addresseeID}
		}
		if err := s.transact(ctx, "record_friendship", func(tx Transaction) error {
			var err error
			out, err = tx.CreateFriendship(domain.Friendship{RequesterID: requesterID, AddresseeID: addresseeID})
			return err
		}); err != nil {
			return "", err
		}
		s.invalidate(ctx, requesterID, addresseeID)
		return out.ID, nil
	})
	return out, err
}

// RecordGroupMembership stores that actor joined groupID. Only the member
// themselves may record it.
func (s *Service) RecordGroupMembership(ctx context.Context, actor, groupID, userID string) (domain.GroupMembership, error) {
	var out domain.GroupMembership
	err := s.run(ctx, "record_group_membership", actor, func(ctx context.Context) (string, error) {
		if err := requireActor(actor, "join groups"); err != nil {
			return "", err
		}
		if groupID == "" || userID == "" {
			return "", domain.ErrInvalidInput{Field: "membership", Reason: "group and user are required"}
		}
		if actor != userID {
			return "", domain.ErrForbidden{Actor: actor, Action: "add " + userID + " to group " + groupID}
		}
		if err := s.transact(ctx, "record_group_membership", func(tx Transaction) error {
			var err error
			out, err = tx.CreateGroupMembership(domain.GroupMembership{GroupID: groupID, UserID: userID})
			return err
		}); err != nil {
			return "", err
		}
		s.invalidate(ctx, userID)
		return out.ID, nil
	})
	return out, err
}

// invalidate drops cached relationship entries. The facts are already
// committed, so a cache failure is logged and the stale entry expires by TTL.
func (s *Service) invalidate(ctx context.Context, userIDs ...string) {
	inv, ok := s.directory.(domain.DirectoryInvalidator)
	if !ok {
		return
	}
	if err := inv.Invalidate(ctx, userIDs...); err != nil {
		s.logger.Warn("relationship cache invalidation failed", "users", userIDs, "error", err)
	}
}
