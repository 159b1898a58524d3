package capture

import (
	"sort"
	"strings"
)

// Reserved bucket names.
const (
	BucketUnknown         = "Unknown"
	BucketCompanyNoOrders = "Company, no orders"
	BucketWeddingNoOrders = "Wedding leads, no orders"

	manualEntryPrefix = "Manual Entry – "
)

// BucketKind classifies an attribution bucket.
type BucketKind string

const (
	BucketKindStaff    BucketKind = "staff"
	BucketKindManual   BucketKind = "manual_entry"
	BucketKindFallback BucketKind = "fallback"
	BucketKindUnknown  BucketKind = "unknown"
)

// ManualEntryBucket returns the bucket used for a manual attribution that
// matched no known staff member.
func ManualEntryBucket(raw string) string {
	return manualEntryPrefix + strings.TrimSpace(raw)
}

// KindOf returns the kind of the named bucket.
func KindOf(name string) BucketKind {
	switch {
	case name == BucketUnknown:
		return BucketKindUnknown
	case name == BucketCompanyNoOrders, name == BucketWeddingNoOrders:
		return BucketKindFallback
	case strings.HasPrefix(name, manualEntryPrefix):
		return BucketKindManual
	default:
		return BucketKindStaff
	}
}

type idSet map[string]struct{}

func (s idSet) add(id string) {
	s[id] = struct{}{}
}

func (s idSet) has(id string) bool {
	_, ok := s[id]
	return ok
}

// without counts members of s that are not in other.
func (s idSet) without(other idSet) int {
	n := 0
	for id := range s {
		if !other.has(id) {
			n++
		}
	}
	return n
}

// bucket is the working state of one attribution bucket.
type bucket struct {
	name string

	created             idSet
	withEmail           idSet
	withPhone           idSet
	withData            idSet
	withDataNoWedding   idSet
	subscribed          idSet
	subscribedNoWedding idSet
	wedding             idSet
	manual              idSet

	orders int
	guests int
}

func newBucket(name string) *bucket {
	return &bucket{
		name:                name,
		created:             make(idSet),
		withEmail:           make(idSet),
		withPhone:           make(idSet),
		withData:            make(idSet),
		withDataNoWedding:   make(idSet),
		subscribed:          make(idSet),
		subscribedNoWedding: make(idSet),
		wedding:             make(idSet),
		manual:              make(idSet),
	}
}

// buckets maps bucket name to accumulator. Entries are created on first use.
type buckets map[string]*bucket

func (b buckets) get(name string) *bucket {
	acc, ok := b[name]
	if !ok {
		acc = newBucket(name)
		b[name] = acc
	}
	return acc
}

// sorted returns the accumulators in name order.
func (b buckets) sorted() []*bucket {
	out := make([]*bucket, 0, len(b))
	for _, acc := range b {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (acc *bucket) metrics() StaffMetrics {
	return StaffMetrics{
		Name:                acc.name,
		Kind:                KindOf(acc.name),
		GuestCount:          acc.guests,
		OrderCount:          acc.orders,
		ProfilesCreated:     len(acc.created),
		WithEmail:           len(acc.withEmail),
		WithPhone:           len(acc.withPhone),
		WithData:            len(acc.withData),
		WithDataNoWedding:   len(acc.withDataNoWedding),
		Subscribed:          len(acc.subscribed),
		SubscribedNoWedding: len(acc.subscribedNoWedding),
		WeddingLeads:        len(acc.wedding),
		ManualEntries:       len(acc.manual),
		CaptureRate:         Rate(len(acc.withData), acc.guests),
		SubscriptionRate:    Rate(len(acc.subscribed), acc.guests),
	}
}
