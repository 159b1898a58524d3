package capture

import (
	"strings"
	"time"
	"unicode"
)

// DefaultAttributionKey is the profile metadata field sign-up tools use to
// record the staff member who captured the guest.
const DefaultAttributionKey = "attribution"

// LineItem is a single product line on an order.
type LineItem struct {
	ProductID string
	SKU       string
	Quantity  int
}

// in reports whether the item's product id or SKU is in set.
func (li LineItem) in(set map[string]struct{}) bool {
	if _, ok := set[li.ProductID]; ok && li.ProductID != "" {
		return true
	}
	_, ok := set[li.SKU]
	return ok && li.SKU != ""
}

// StaffRef references the staff member who rang up an order.
type StaffRef struct {
	Name      string
	AccountID string
}

// Order is a point-of-sale order as fetched from the commerce platform.
type Order struct {
	ID          string
	PaidAt      time.Time
	SubmittedAt time.Time
	Items       []LineItem
	Staff       *StaffRef
	CustomerID  string
}

// SortTime returns the paid date, falling back to the submitted date.
func (o Order) SortTime() time.Time {
	if !o.PaidAt.IsZero() {
		return o.PaidAt
	}
	return o.SubmittedAt
}

// StaffName returns the trimmed staff display name, or BucketUnknown when the
// order carries no staff reference.
func (o Order) StaffName() string {
	if o.Staff == nil {
		return BucketUnknown
	}
	name := strings.TrimSpace(o.Staff.Name)
	if name == "" {
		return BucketUnknown
	}
	return name
}

// CustomerProfile is a customer record as fetched from the commerce platform.
type CustomerProfile struct {
	ID         string
	FirstName  string
	LastName   string
	Email      string
	Emails     []string
	Phone      string
	Phones     []string
	CreatedAt  time.Time
	Subscribed bool
	TagIDs     []string
	Metadata   map[string]any
}

// Name returns the profile's display name.
func (p CustomerProfile) Name() string {
	return strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
}

// HasTag reports whether the profile carries the given tag.
func (p CustomerProfile) HasTag(tagID string) bool {
	if tagID == "" {
		return false
	}
	for _, t := range p.TagIDs {
		if t == tagID {
			return true
		}
	}
	return false
}

// Attribution returns the trimmed string stored under key in the metadata.
// Missing, empty and non-string values are reported as absent.
func (p CustomerProfile) Attribution(key string) (string, bool) {
	if p.Metadata == nil {
		return "", false
	}
	raw, ok := p.Metadata[key].(string)
	if !ok {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

// Channels merges the single and list-valued email and phone fields,
// dropping blanks and duplicates. Emails compare case-insensitively and
// phones compare on their digits.
func (p CustomerProfile) Channels() (emails, phones []string) {
	emails = dedupe(append([]string{p.Email}, p.Emails...), strings.ToLower)
	phones = dedupe(append([]string{p.Phone}, p.Phones...), phoneDigits)
	return emails, phones
}

func dedupe(values []string, key func(string) string) []string {
	var out []string
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		k := key(v)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

func phoneDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// DefaultGuestSKU is the guest-count product used when no settings are available.
const DefaultGuestSKU = "GUEST-COUNT"

// Settings is the externally managed configuration read once per computation.
type Settings struct {
	GuestSKUs    []string `json:"guest_skus"`
	WeddingTagID string   `json:"wedding_tag_id"`
}

// Validate checks that at least one guest SKU is configured.
func (s *Settings) Validate() error {
	for _, sku := range s.GuestSKUs {
		if strings.TrimSpace(sku) != "" {
			return nil
		}
	}
	return ErrNoGuestSKUs
}

func (s Settings) guestSKUSet() map[string]struct{} {
	set := make(map[string]struct{}, len(s.GuestSKUs))
	for _, sku := range s.GuestSKUs {
		if sku = strings.TrimSpace(sku); sku != "" {
			set[sku] = struct{}{}
		}
	}
	return set
}
