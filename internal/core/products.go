package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"fridgeshare/internal/blob"
	"fridgeshare/pkg/domain"
)

// DefaultExpiringWithinDays is the notification horizon used when none is given.
const DefaultExpiringWithinDays = 3

// ProductInput carries the fields accepted when creating a product.
type ProductInput struct {
	Name      string
	Category  string
	ExpiresOn time.Time
}

// ProductPatch carries optional product updates; nil fields are left unchanged.
type ProductPatch struct {
	Name       *string
	Category   *string
	ExpiresOn  *time.Time
	Status     *domain.ProductStatus
	Visibility *domain.Visibility
	SharedWith *SharedWith
}

// ProductQuery narrows ListProducts. ViewerID selects whose visibility applies.
type ProductQuery struct {
	OwnerID  string
	Status   domain.ProductStatus
	ViewerID string
}

// Notification warns an owner about a product close to expiring.
type Notification struct {
	ProductID string `json:"productId"`
	Message   string `json:"message"`
	DaysLeft  int    `json:"daysLeft"`
}

// PhotoLink points at a product photo. Direct is false when the blob store
// cannot sign URLs and the photo must be streamed through the API.
type PhotoLink struct {
	URL    string
	Direct bool
}

// CreateProduct stores a new product owned by actor. New products start in
// the owner's fridge and are public.
func (s *Service) CreateProduct(ctx context.Context, actor string, in ProductInput) (Product, error) {
	var out Product
	err := s.run(ctx, "create_product", actor, func(ctx context.Context) (string, error) {
		if err := requireActor(actor, "create products"); err != nil {
			return "", err
		}
		if err := validateProductInput(in); err != nil {
			return "", err
		}
		err := s.transact(ctx, "create_product", func(tx Transaction) error {
			var err error
			out, err = tx.CreateProduct(Product{
				OwnerID:    actor,
				Name:       strings.TrimSpace(in.Name),
				Category:   strings.TrimSpace(in.Category),
				ExpiresOn:  in.ExpiresOn.UTC(),
				Status:     domain.ProductInFridge,
				Visibility: domain.VisibilityPublic,
			})
			return err
		})
		return out.ID, err
	})
	return out, err
}

func validateProductInput(in ProductInput) error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return domain.ErrInvalidInput{Field: "name", Reason: "required"}
	case strings.TrimSpace(in.Category) == "":
		return domain.ErrInvalidInput{Field: "category", Reason: "required"}
	case in.ExpiresOn.IsZero():
		return domain.ErrInvalidInput{Field: "expiresOn", Reason: "required"}
	}
	return nil
}

// UpdateProduct applies patch to a product owned by actor.
func (s *Service) UpdateProduct(ctx context.Context, actor, id string, patch ProductPatch) (Product, error) {
	var out Product
	err := s.run(ctx, "update_product", actor, func(ctx context.Context) (string, error) {
		if err := requireActor(actor, "update products"); err != nil {
			return id, err
		}
		err := s.transact(ctx, "update_product", func(tx Transaction) error {
			current, ok := tx.FindProduct(id)
			if !ok {
				return domain.ErrNotFound{Entity: domain.EntityProduct, ID: id}
			}
			if current.OwnerID != actor {
				return domain.ErrForbidden{Actor: actor, Action: "update product " + id}
			}
			var err error
			out, err = tx.UpdateProduct(id, func(p *Product) error {
				return applyPatch(p, patch)
			})
			return err
		})
		return id, err
	})
	return out, err
}

func applyPatch(p *Product, patch ProductPatch) error {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return domain.ErrInvalidInput{Field: "name", Reason: "cannot be blank"}
		}
		p.Name = name
	}
	if patch.Category != nil {
		category := strings.TrimSpace(*patch.Category)
		if category == "" {
			return domain.ErrInvalidInput{Field: "category", Reason: "cannot be blank"}
		}
		p.Category = category
	}
	if patch.ExpiresOn != nil {
		if patch.ExpiresOn.IsZero() {
			return domain.ErrInvalidInput{Field: "expiresOn", Reason: "cannot be empty"}
		}
		p.ExpiresOn = patch.ExpiresOn.UTC()
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	if patch.Visibility != nil {
		p.Visibility = *patch.Visibility
	}
	if patch.SharedWith != nil {
		p.SharedWith = patch.SharedWith.Clone()
	}
	return nil
}

// DeleteProduct removes a product owned by actor. Pending claims on it are
// rejected in the same transaction and its photo is removed afterwards.
func (s *Service) DeleteProduct(ctx context.Context, actor, id string) error {
	return s.run(ctx, "delete_product", actor, func(ctx context.Context) (string, error) {
		if err := requireActor(actor, "delete products"); err != nil {
			return id, err
		}
		err := s.transact(ctx, "delete_product", func(tx Transaction) error {
			current, ok := tx.FindProduct(id)
			if !ok {
				return domain.ErrNotFound{Entity: domain.EntityProduct, ID: id}
			}
			if current.OwnerID != actor {
				return domain.ErrForbidden{Actor: actor, Action: "delete product " + id}
			}
			for _, c := range tx.Snapshot().ClaimsForProduct(id) {
				if c.Status != domain.ClaimPending {
					continue
				}
				if _, err := tx.UpdateClaim(c.ID, func(c *Claim) error {
					c.Status = domain.ClaimRejected
					return nil
				}); err != nil {
					return err
				}
			}
			return tx.DeleteProduct(id)
		})
		if err != nil {
			return id, err
		}
		s.removePhotos(ctx, id)
		return id, nil
	})
}

// removePhotos deletes every blob under the product prefix. The product is
// already gone, so failures only leave orphaned bytes and are logged.
func (s *Service) removePhotos(ctx context.Context, productID string) {
	infos, err := s.blobs.List(ctx, productPrefix(productID))
	if err != nil {
		s.logger.Warn("list product photos failed", "product_id", productID, "error", err)
		return
	}
	for _, info := range infos {
		if _, err := s.blobs.Delete(ctx, info.Key); err != nil {
			s.logger.Warn("delete product photo failed", "product_id", productID, "key", info.Key, "error", err)
		}
	}
}

// GetProduct returns the product when viewerID may see it. Invisible
// products are reported as not found.
func (s *Service) GetProduct(ctx context.Context, viewerID, id string) (Product, error) {
	var out Product
	err := s.run(ctx, "get_product", viewerID, func(ctx context.Context) (string, error) {
		p, ok := s.store.GetProduct(id)
		if !ok {
			return id, domain.ErrNotFound{Entity: domain.EntityProduct, ID: id}
		}
		visible, err := s.visibility.IsVisible(ctx, p, viewerID)
		if err != nil {
			return id, err
		}
		if !visible {
			return id, domain.ErrNotFound{Entity: domain.EntityProduct, ID: id}
		}
		out = p
		return id, nil
	})
	return out, err
}

// ListProducts returns products matching q ordered by expiration then id. The
// result is filtered by visibility unless the viewer is the queried owner.
func (s *Service) ListProducts(ctx context.Context, q ProductQuery) ([]Product, error) {
	var out []Product
	err := s.run(ctx, "list_products", q.ViewerID, func(ctx context.Context) (string, error) {
		var candidates []Product
		if err := s.store.View(ctx, func(v TransactionView) error {
			for _, p := range v.ListProducts() {
				if q.OwnerID != "" && p.OwnerID != q.OwnerID {
					continue
				}
				if q.Status != "" && p.Status != q.Status {
					continue
				}
				candidates = append(candidates, p)
			}
			return nil
		}); err != nil {
			return "", err
		}
		sortByExpiration(candidates)
		if q.OwnerID != "" && q.OwnerID == q.ViewerID {
			out = candidates
			return "", nil
		}
		var err error
		out, err = s.visibility.FilterVisible(ctx, candidates, q.ViewerID)
		return "", err
	})
	return out, err
}

func sortByExpiration(products []Product) {
	sort.SliceStable(products, func(i, j int) bool {
		a, b := products[i], products[j]
		if !a.ExpiresOn.Equal(b.ExpiresOn) {
			return a.ExpiresOn.Before(b.ExpiresOn)
		}
		return a.ID < b.ID
	})
}

// ExpiringSoon lists the actor's IN_FRIDGE products that expire within the
// given number of days and have not expired yet. withinDays <= 0 selects
// DefaultExpiringWithinDays.
func (s *Service) ExpiringSoon(ctx context.Context, actor string, withinDays int) ([]Notification, error) {
	if withinDays <= 0 {
		withinDays = DefaultExpiringWithinDays
	}
	var out []Notification
	err := s.run(ctx, "expiring_soon", actor, func(ctx context.Context) (string, error) {
		if err := requireActor(actor, "read notifications"); err != nil {
			return "", err
		}
		today := truncateDay(s.clock.Now())
		horizon := today.AddDate(0, 0, withinDays)
		var products []Product
		for _, p := range s.store.ListProducts() {
			if p.OwnerID != actor || p.Status != domain.ProductInFridge {
				continue
			}
			day := truncateDay(p.ExpiresOn)
			if day.Before(today) || day.After(horizon) {
				continue
			}
			products = append(products, p)
		}
		sortByExpiration(products)
		out = make([]Notification, 0, len(products))
		for _, p := range products {
			days := int(truncateDay(p.ExpiresOn).Sub(today).Hours() / 24)
			out = append(out, Notification{
				ProductID: p.ID,
				Message:   expiryMessage(p.Name, days),
				DaysLeft:  days,
			})
		}
		return "", nil
	})
	return out, err
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func expiryMessage(name string, days int) string {
	switch days {
	case 0:
		return fmt.Sprintf("%s expires today", name)
	case 1:
		return fmt.Sprintf("%s expires tomorrow", name)
	default:
		return fmt.Sprintf("%s expires in %d days", name, days)
	}
}

func productPrefix(productID string) string {
	return path.Join("products", productID) + "/"
}

func photoKey(productID string) string {
	return productPrefix(productID) + "photo"
}

// AttachPhoto stores the photo bytes for a product owned by actor, replacing
// any previous photo, and records the key on the product.
func (s *Service) AttachPhoto(ctx context.Context, actor, id string, r io.Reader, contentType string) (Product, error) {
	var out Product
	err := s.run(ctx, "attach_photo", actor, func(ctx context.Context) (string, error) {
		if err := requireActor(actor, "attach photos"); err != nil {
			return id, err
		}
		current, ok := s.store.GetProduct(id)
		if !ok {
			return id, domain.ErrNotFound{Entity: domain.EntityProduct, ID: id}
		}
		if current.OwnerID != actor {
			return id, domain.ErrForbidden{Actor: actor, Action: "attach a photo to product " + id}
		}
		key := photoKey(id)
		if _, err := s.blobs.Put(ctx, key, r, blob.PutOptions{
			ContentType: contentType,
			Metadata:    map[string]string{"product-id": id, "owner-id": actor},
			Overwrite:   true,
		}); err != nil {
			return id, fmt.Errorf("store photo: %w", err)
		}
		err := s.transact(ctx, "attach_photo", func(tx Transaction) error {
			p, ok := tx.FindProduct(id)
			if !ok {
				return domain.ErrNotFound{Entity: domain.EntityProduct, ID: id}
			}
			if p.OwnerID != actor {
				return domain.ErrForbidden{Actor: actor, Action: "attach a photo to product " + id}
			}
			var err error
			out, err = tx.UpdateProduct(id, func(p *Product) error {
				p.PhotoKey = key
				return nil
			})
			return err
		})
		if err != nil && current.PhotoKey == "" {
			// nothing references the bytes we just wrote
			if _, derr := s.blobs.Delete(ctx, key); derr != nil {
				s.logger.Warn("photo cleanup failed", "product_id", id, "key", key, "error", derr)
			}
		}
		return id, err
	})
	return out, err
}

// PhotoURL returns a link to the product photo for a viewer who may see the
// product. Stores that cannot sign URLs yield a non-direct link to the API.
func (s *Service) PhotoURL(ctx context.Context, viewerID, id string) (PhotoLink, error) {
	p, err := s.photoProduct(ctx, viewerID, id)
	if err != nil {
		return PhotoLink{}, err
	}
	url, err := s.blobs.PresignURL(ctx, p.PhotoKey, blob.SignedURLOptions{Method: "GET"})
	switch {
	case err == nil:
		return PhotoLink{URL: url, Direct: true}, nil
	case errors.Is(err, blob.ErrUnsupported):
		return PhotoLink{URL: "/products/" + id + "/photo"}, nil
	default:
		return PhotoLink{}, fmt.Errorf("sign photo url: %w", err)
	}
}

// OpenPhoto streams the product photo for a viewer who may see the product.
// The caller closes the reader.
func (s *Service) OpenPhoto(ctx context.Context, viewerID, id string) (blob.Info, io.ReadCloser, error) {
	p, err := s.photoProduct(ctx, viewerID, id)
	if err != nil {
		return blob.Info{}, nil, err
	}
	info, rc, err := s.blobs.Get(ctx, p.PhotoKey)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return blob.Info{}, nil, domain.ErrNotFound{Entity: domain.EntityProduct, ID: id + "/photo"}
		}
		return blob.Info{}, nil, fmt.Errorf("open photo: %w", err)
	}
	return info, rc, nil
}

func (s *Service) photoProduct(ctx context.Context, viewerID, id string) (Product, error) {
	p, err := s.GetProduct(ctx, viewerID, id)
	if err != nil {
		return Product{}, err
	}
	if p.PhotoKey == "" {
		return Product{}, domain.ErrNotFound{Entity: domain.EntityProduct, ID: id + "/photo"}
	}
	return p, nil
}
