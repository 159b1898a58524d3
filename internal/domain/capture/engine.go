package capture

import (
	"fmt"
	"sort"
	"time"

	"github.com/capture/backend/internal/domain/namematch"
)

// Input is everything one computation needs.
type Input struct {
	Label    string
	Start    time.Time
	End      time.Time
	Orders   []Order
	Profiles []CustomerProfile
	Settings Settings
}

// Engine reconciles orders and profiles into capture metrics.
// An Engine holds no per-computation state and is safe for concurrent use.
type Engine struct {
	matcher        *namematch.Matcher
	attributionKey string
	now            func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMatcher sets the name matcher used for manual attribution.
func WithMatcher(m *namematch.Matcher) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.matcher = m
		}
	}
}

// WithAttributionKey sets the metadata field holding manual attribution.
func WithAttributionKey(key string) EngineOption {
	return func(e *Engine) {
		if key != "" {
			e.attributionKey = key
		}
	}
}

// WithClock sets the clock used for MetricsResult.GeneratedAt.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewMatcher returns a name matcher that never resolves to a reserved bucket.
func NewMatcher(threshold float64) *namematch.Matcher {
	return namematch.New(
		namematch.WithThreshold(threshold),
		namematch.WithPlaceholders(BucketUnknown, BucketCompanyNoOrders, BucketWeddingNoOrders),
		namematch.WithPlaceholderPrefixes(manualEntryPrefix),
	)
}

// NewEngine creates an Engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		matcher:        NewMatcher(namematch.DefaultThreshold),
		attributionKey: DefaultAttributionKey,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compute runs the reconciliation pipeline. Stages run in a fixed order
// because later stages read the assignments made by earlier ones.
func (e *Engine) Compute(in Input) *MetricsResult {
	orders := uniqueOrders(in.Orders)
	profiles := keyedProfiles(in.Profiles)

	manual := e.manualAttributions(profiles)
	known := knownStaff(orders)
	owners := e.resolveManual(manual, known)
	weddings := weddingLeads(profiles, in.Settings.WeddingTagID)

	assignFirstOrders(owners, orders)

	acc := make(buckets)
	accumulateOrders(acc, orders, in.Settings.guestSKUSet())
	classifyProfiles(acc, profiles, owners, manual, weddings)

	label := in.Label
	if label == "" {
		label = DefaultLabel(in.Start, in.End)
	}

	result := &MetricsResult{
		PeriodLabel:   label,
		Start:         in.Start,
		End:           in.End,
		GeneratedAt:   e.now(),
		TotalOrders:   len(orders),
		TotalProfiles: len(profiles),
	}
	result.Staff, result.StaffTotals, result.Company, result.CompanyLessWeddings = summarize(acc)
	return result
}

// keyedProfile is a profile with the identifier used in accumulator sets.
type keyedProfile struct {
	key string
	CustomerProfile
}

// keyedProfiles drops repeated profile ids. Profiles without an id get a
// positional key so they are still counted.
func keyedProfiles(in []CustomerProfile) []keyedProfile {
	out := make([]keyedProfile, 0, len(in))
	seen := make(idSet, len(in))
	for i, p := range in {
		key := p.ID
		if key == "" {
			key = fmt.Sprintf("#%d", i)
		}
		if seen.has(key) {
			continue
		}
		seen.add(key)
		out = append(out, keyedProfile{key: key, CustomerProfile: p})
	}
	return out
}

// uniqueOrders drops repeated order ids, which pagination over a changing
// result set can produce.
func uniqueOrders(in []Order) []Order {
	out := make([]Order, 0, len(in))
	seen := make(idSet, len(in))
	for _, o := range in {
		if o.ID != "" {
			if seen.has(o.ID) {
				continue
			}
			seen.add(o.ID)
		}
		out = append(out, o)
	}
	return out
}

// manualAttributions collects profile key -> raw staff name.
func (e *Engine) manualAttributions(profiles []keyedProfile) map[string]string {
	manual := make(map[string]string)
	for _, p := range profiles {
		if raw, ok := p.Attribution(e.attributionKey); ok {
			manual[p.key] = raw
		}
	}
	return manual
}

// knownStaff returns the distinct staff names found on orders, sorted.
func knownStaff(orders []Order) []string {
	seen := make(idSet)
	for _, o := range orders {
		if name := o.StaffName(); name != BucketUnknown {
			seen.add(name)
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolveManual maps each manually attributed profile to a bucket.
func (e *Engine) resolveManual(manual map[string]string, known []string) map[string]string {
	owners := make(map[string]string, len(manual))
	resolved := make(map[string]string)
	for key, raw := range manual {
		name, ok := resolved[raw]
		if !ok {
			if res, matched := e.matcher.Match(raw, known); matched {
				name = res.Name
			} else {
				name = ManualEntryBucket(raw)
			}
			resolved[raw] = name
		}
		owners[key] = name
	}
	return owners
}

func weddingLeads(profiles []keyedProfile, tagID string) idSet {
	set := make(idSet)
	if tagID == "" {
		return set
	}
	for _, p := range profiles {
		if p.HasTag(tagID) {
			set.add(p.key)
		}
	}
	return set
}

// assignFirstOrders gives every unowned customer the staff bucket of their
// earliest order.
func assignFirstOrders(owners map[string]string, orders []Order) {
	sorted := make([]Order, len(orders))
	copy(sorted, orders)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SortTime().Before(sorted[j].SortTime())
	})

	for _, o := range sorted {
		if o.CustomerID == "" {
			continue
		}
		if _, ok := owners[o.CustomerID]; ok {
			continue
		}
		owners[o.CustomerID] = o.StaffName()
	}
}

// accumulateOrders adds order and guest counts to each order's staff bucket.
func accumulateOrders(acc buckets, orders []Order, guestSKUs map[string]struct{}) {
	for _, o := range orders {
		b := acc.get(o.StaffName())
		b.orders++
		for _, item := range o.Items {
			if item.Quantity > 0 && item.in(guestSKUs) {
				b.guests += item.Quantity
			}
		}
	}
}

// classifyProfiles places every profile in exactly one bucket and updates
// that bucket's category sets.
func classifyProfiles(acc buckets, profiles []keyedProfile, owners, manual map[string]string, weddings idSet) {
	for _, p := range profiles {
		wedding := weddings.has(p.key)

		name, ok := owners[p.key]
		if !ok {
			if wedding {
				name = BucketWeddingNoOrders
			} else {
				name = BucketCompanyNoOrders
			}
		}
		b := acc.get(name)

		b.created.add(p.key)

		emails, phones := p.Channels()
		if len(emails) > 0 {
			b.withEmail.add(p.key)
		}
		if len(phones) > 0 {
			b.withPhone.add(p.key)
		}
		if len(emails) > 0 || len(phones) > 0 {
			b.withData.add(p.key)
			if !wedding {
				b.withDataNoWedding.add(p.key)
			}
		}
		if p.Subscribed {
			b.subscribed.add(p.key)
			if !wedding {
				b.subscribedNoWedding.add(p.key)
			}
		}
		if wedding {
			b.wedding.add(p.key)
		}
		if _, ok := manual[p.key]; ok {
			b.manual.add(p.key)
		}
	}
}

// summarize builds the per-bucket rows sorted by capture rate and the three
// pooled aggregates.
func summarize(acc buckets) (rows []StaffMetrics, staff, company, lessWeddings AggregateMetrics) {
	rows = make([]StaffMetrics, 0, len(acc))
	for _, b := range acc.sorted() {
		row := b.metrics()
		rows = append(rows, row)

		if b.guests > 0 {
			addRow(&staff, row)
		}
		addRow(&company, row)

		lessWeddings.Buckets++
		lessWeddings.GuestCount += b.guests
		lessWeddings.OrderCount += b.orders
		lessWeddings.ProfilesCreated += b.created.without(b.wedding)
		lessWeddings.WithEmail += b.withEmail.without(b.wedding)
		lessWeddings.WithPhone += b.withPhone.without(b.wedding)
		lessWeddings.WithData += len(b.withDataNoWedding)
		lessWeddings.Subscribed += len(b.subscribedNoWedding)
		lessWeddings.ManualEntries += b.manual.without(b.wedding)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CaptureRate > rows[j].CaptureRate
	})

	staff.finalize()
	company.finalize()
	lessWeddings.finalize()
	return rows, staff, company, lessWeddings
}

func addRow(agg *AggregateMetrics, row StaffMetrics) {
	agg.Buckets++
	agg.GuestCount += row.GuestCount
	agg.OrderCount += row.OrderCount
	agg.ProfilesCreated += row.ProfilesCreated
	agg.WithEmail += row.WithEmail
	agg.WithPhone += row.WithPhone
	agg.WithData += row.WithData
	agg.Subscribed += row.Subscribed
	agg.WeddingLeads += row.WeddingLeads
	agg.ManualEntries += row.ManualEntries
}
