package ecommerce

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/capture/backend/internal/domain/capture"
)

// ---------------------------------------------------------------------------
// Response envelopes
// ---------------------------------------------------------------------------

// OrderSearchResponse is the envelope returned by the order search endpoint
type OrderSearchResponse struct {
	Orders []OrderRecord `json:"orders"`
	Total  int           `json:"total"`
}

// CustomerSearchResponse is the envelope returned by the customer search endpoint
type CustomerSearchResponse struct {
	Customers []CustomerRecord `json:"customers"`
	Total     int              `json:"total"`
}

// ErrorResponse is the body the platform sends with 4xx/5xx statuses
type ErrorResponse struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

// OrderRecord is an order as sent by the platform
type OrderRecord struct {
	ID                 string          `json:"id"`
	OrderPaidDate      string          `json:"orderPaidDate"`
	OrderSubmittedDate string          `json:"orderSubmittedDate"`
	CustomerID         string          `json:"customerId"`
	SalesAssociate     *SalesAssociate `json:"salesAssociate"`
	Items              []OrderItem     `json:"items"`
}

// SalesAssociate is the staff member attached to an order
type SalesAssociate struct {
	Name      string `json:"name"`
	AccountID string `json:"accountId"`
}

// OrderItem is one line of an order
type OrderItem struct {
	ProductID string  `json:"productId"`
	SKU       string  `json:"sku"`
	Quantity  float64 `json:"quantity"`
}

// CustomerRecord is a customer profile as sent by the platform
type CustomerRecord struct {
	ID                   string         `json:"id"`
	FirstName            string         `json:"firstName"`
	LastName             string         `json:"lastName"`
	Email                string         `json:"email"`
	Emails               ContactList    `json:"emails"`
	Phone                string         `json:"phone"`
	Phones               ContactList    `json:"phones"`
	CreatedAt            string         `json:"createdAt"`
	EmailMarketingStatus string         `json:"emailMarketingStatus"`
	Tags                 TagList        `json:"tags"`
	MetaData             map[string]any `json:"metaData"`
}

// ContactList accepts either plain strings or objects carrying the value
// under "email", "phone" or "value".
type ContactList []string

// UnmarshalJSON implements json.Unmarshaler
func (l *ContactList) UnmarshalJSON(data []byte) error {
	*l = nil
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			*l = append(*l, s)
			continue
		}
		var obj struct {
			Email string `json:"email"`
			Phone string `json:"phone"`
			Value string `json:"value"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			continue
		}
		for _, v := range []string{obj.Email, obj.Phone, obj.Value} {
			if v != "" {
				*l = append(*l, v)
				break
			}
		}
	}
	return nil
}

// TagList accepts either tag id strings or objects with an "id" field.
type TagList []string

// UnmarshalJSON implements json.Unmarshaler
func (l *TagList) UnmarshalJSON(data []byte) error {
	*l = nil
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			*l = append(*l, s)
			continue
		}
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(item, &obj); err == nil && obj.ID != "" {
			*l = append(*l, obj.ID)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Conversion
// ---------------------------------------------------------------------------

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// ParseTimestamp parses the platform's timestamp formats. Unparseable or
// empty values yield the zero time.
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// ToDomain converts the record to a capture order
func (r OrderRecord) ToDomain() capture.Order {
	o := capture.Order{
		ID:          r.ID,
		PaidAt:      ParseTimestamp(r.OrderPaidDate),
		SubmittedAt: ParseTimestamp(r.OrderSubmittedDate),
		CustomerID:  r.CustomerID,
		Items:       make([]capture.LineItem, 0, len(r.Items)),
	}
	if r.SalesAssociate != nil {
		o.Staff = &capture.StaffRef{
			Name:      r.SalesAssociate.Name,
			AccountID: r.SalesAssociate.AccountID,
		}
	}
	for _, item := range r.Items {
		o.Items = append(o.Items, capture.LineItem{
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Quantity:  int(math.Round(item.Quantity)),
		})
	}
	return o
}

// ToDomain converts the record to a capture profile
func (r CustomerRecord) ToDomain() capture.CustomerProfile {
	return capture.CustomerProfile{
		ID:         r.ID,
		FirstName:  r.FirstName,
		LastName:   r.LastName,
		Email:      r.Email,
		Emails:     []string(r.Emails),
		Phone:      r.Phone,
		Phones:     []string(r.Phones),
		CreatedAt:  ParseTimestamp(r.CreatedAt),
		Subscribed: strings.EqualFold(strings.TrimSpace(r.EmailMarketingStatus), "subscribed"),
		TagIDs:     []string(r.Tags),
		Metadata:   r.MetaData,
	}
}
