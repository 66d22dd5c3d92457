package core

import (
	"context"
	"fmt"

	"fridgeshare/pkg/domain"
)

// IsVisible reports whether the viewer in rel may see p. It is a pure
// predicate: unknown visibility modes and malformed share targets deny.
func IsVisible(p Product, rel Relationships) bool {
	viewer := rel.ViewerID
	if viewer != "" && viewer == p.OwnerID {
		return true
	}
	switch p.Visibility {
	case "", domain.VisibilityPublic:
		return true
	}
	if viewer == "" || p.SharedWith.Malformed {
		return false
	}
	switch p.Visibility {
	case domain.VisibilityFriends:
		return rel.Friends.Has(p.OwnerID)
	case domain.VisibilityGroups:
		return rel.Groups.Intersects(p.SharedWith.GroupIDs)
	case domain.VisibilitySpecific:
		return domain.NewIDSet(p.SharedWith.UserIDs...).Has(viewer)
	default:
		return false
	}
}

// VisibilityEngine applies IsVisible using relationships resolved through a directory.
type VisibilityEngine struct {
	directory RelationshipDirectory
}

// NewVisibilityEngine binds the engine to dir.
func NewVisibilityEngine(dir RelationshipDirectory) *VisibilityEngine {
	return &VisibilityEngine{directory: dir}
}

// IsVisible resolves the viewer's relationships and evaluates p.
func (e *VisibilityEngine) IsVisible(ctx context.Context, p Product, viewerID string) (bool, error) {
	if viewerID != "" && viewerID == p.OwnerID {
		return true, nil
	}
	rel, err := LoadRelationships(ctx, e.directory, viewerID)
	if err != nil {
		return false, fmt.Errorf("load relationships for %s: %w", viewerID, err)
	}
	return IsVisible(p, rel), nil
}

// FilterVisible keeps the candidates the viewer may see, in their original
// order. Relationships are fetched once for the whole batch.
func (e *VisibilityEngine) FilterVisible(ctx context.Context, candidates []Product, viewerID string) ([]Product, error) {
	rel, err := LoadRelationships(ctx, e.directory, viewerID)
	if err != nil {
		return nil, fmt.Errorf("load relationships for %s: %w", viewerID, err)
	}
	out := make([]Product, 0, len(candidates))
	for _, p := range candidates {
		if IsVisible(p, rel) {
			out = append(out, p)
		}
	}
	return out, nil
}
