package httpapi

import (
	"encoding/json"
	"strings"
	"time"

	"fridgeshare/internal/core"
	"fridgeshare/pkg/domain"
)

const dateLayout = "2006-01-02"

type productResponse struct {
	ID             string            `json:"id"`
	UserID         string            `json:"userId"`
	Name           string            `json:"name"`
	Category       string            `json:"category"`
	ExpirationDate string            `json:"expirationDate"`
	Status         string            `json:"status"`
	Visibility     string            `json:"visibility"`
	SharedWith     domain.SharedWith `json:"sharedWith"`
	PhotoURL       string            `json:"photoUrl,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

func toProduct(p core.Product) productResponse {
	out := productResponse{
		ID:             p.ID,
		UserID:         p.OwnerID,
		Name:           p.Name,
		Category:       p.Category,
		ExpirationDate: p.ExpiresOn.UTC().Format(dateLayout),
		Status:         string(p.Status),
		Visibility:     string(p.Visibility),
		SharedWith:     p.SharedWith,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
	if p.PhotoKey != "" {
		out.PhotoURL = "/products/" + p.ID + "/photo"
	}
	return out
}

func toProducts(ps []core.Product) []productResponse {
	out := make([]productResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, toProduct(p))
	}
	return out
}

type claimResponse struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	ClaimerID string    `json:"claimerId"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toClaim(c core.Claim) claimResponse {
	return claimResponse{
		ID:        c.ID,
		ProductID: c.ProductID,
		ClaimerID: c.ClaimerID,
		Status:    string(c.Status),
		Message:   c.Message,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

type createProductRequest struct {
	Name           string `json:"name"`
	Category       string `json:"category"`
	ExpirationDate string `json:"expirationDate"`
}

type updateProductRequest struct {
	Name           *string         `json:"name"`
	Category       *string         `json:"category"`
	ExpirationDate *string         `json:"expirationDate"`
	Status         *string         `json:"status"`
	Visibility     *string         `json:"visibility"`
	SharedWith     json.RawMessage `json:"sharedWith"`
}

type submitClaimRequest struct {
	ProductID flexID `json:"productId"`
	Message   string `json:"message"`
}

type decideClaimRequest struct {
	Decision string `json:"decision"`
}

// flexID accepts identifiers sent as JSON strings or integers.
type flexID string

func (id *flexID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return domain.ErrInvalidInput{Field: "id", Reason: "expected a string or integer"}
	}
	if _, err := n.Int64(); err != nil {
		return domain.ErrInvalidInput{Field: "id", Reason: "expected a string or integer"}
	}
	*id = flexID(n.String())
	return nil
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, domain.ErrInvalidInput{Field: field, Reason: "required"}
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, domain.ErrInvalidInput{Field: field, Reason: "expected YYYY-MM-DD"}
	}
	return t.UTC(), nil
}

func (r updateProductRequest) patch() (core.ProductPatch, error) {
	patch := core.ProductPatch{Name: r.Name, Category: r.Category}
	if r.ExpirationDate != nil {
		t, err := parseDate("expirationDate", *r.ExpirationDate)
		if err != nil {
			return core.ProductPatch{}, err
		}
		patch.ExpiresOn = &t
	}
	if r.Status != nil {
		status := domain.ProductStatus(*r.Status)
		patch.Status = &status
	}
	if r.Visibility != nil {
		visibility := domain.Visibility(*r.Visibility)
		patch.Visibility = &visibility
	}
	if len(r.SharedWith) > 0 {
		shared, err := domain.DecodeSharedWith(r.SharedWith)
		if err != nil {
			return core.ProductPatch{}, domain.ErrInvalidInput{Field: "sharedWith", Reason: "expected {\"groupIds\": [...], \"userIds\": [...]}"}
		}
		patch.SharedWith = &shared
	}
	return patch, nil
}
