package portalcache

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/plushcare/portal/internal/cache"
)

var ErrEmptyCustomer = errors.New("customer id is required")

// Set is the process-wide collection of portal caches
type Set struct {
	Customers     *cache.Cache[Customer]
	Notifications *cache.Cache[int]
	Queries       *cache.Cache[[]byte]
	Invoices      *cache.Cache[Invoice]
	Jobs          *cache.Cache[Job]

	Registry *cache.Registry
}

type options struct {
	clock   clock.Clock
	onEvict func(cacheName, key string, reason cache.EvictReason)
}

type Option func(*options)

// WithClock shares one time source across every cache in the set
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithOnEvict receives every eviction from every cache, tagged with the cache name
func WithOnEvict(fn func(cacheName, key string, reason cache.EvictReason)) Option {
	return func(o *options) { o.onEvict = fn }
}

// New builds every cache from t and registers it
func New(t Tuning, opts ...Option) (*Set, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cacheOpts := func(name string) []cache.Option {
		l, ok := t.Caches[name]
		if !ok {
			l = DefaultTuning().Caches[name]
		}
		co := []cache.Option{cache.WithMaxEntries(l.MaxEntries), cache.WithTTL(l.TTL)}
		if o.clock != nil {
			co = append(co, cache.WithClock(o.clock))
		}
		if o.onEvict != nil {
			co = append(co, cache.WithOnEvict(func(key string, reason cache.EvictReason) {
				o.onEvict(name, key, reason)
			}))
		}
		return co
	}

	s := &Set{
		Customers:     cache.New[Customer](NameCustomer, cacheOpts(NameCustomer)...),
		Notifications: cache.New[int](NameNotifications, cacheOpts(NameNotifications)...),
		Queries:       cache.New[[]byte](NameQuery, cacheOpts(NameQuery)...),
		Invoices:      cache.New[Invoice](NameInvoice, cacheOpts(NameInvoice)...),
		Jobs:          cache.New[Job](NameJob, cacheOpts(NameJob)...),
		Registry:      cache.NewRegistry(),
	}
	for _, inst := range []cache.Instance{s.Customers, s.Notifications, s.Queries, s.Invoices, s.Jobs} {
		if err := s.Registry.Register(inst); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Customer returns the customer for email, calling load on a miss
func (s *Set) Customer(ctx context.Context, email string, load func(context.Context) (Customer, error)) (Customer, error) {
	return s.Customers.GetOrLoad(ctx, CustomerKey(email), load)
}

// UnreadNotifications returns the cached unread count for a customer, calling load on a miss
func (s *Set) UnreadNotifications(ctx context.Context, customerID string, load func(context.Context) (int, error)) (int, error) {
	return s.Notifications.GetOrLoad(ctx, NotificationsKey(customerID), load)
}

func (s *Set) Invoice(ctx context.Context, customerID, invoiceID string, load func(context.Context) (Invoice, error)) (Invoice, error) {
	return s.Invoices.GetOrLoad(ctx, InvoiceKey(customerID, invoiceID), load)
}

func (s *Set) Job(ctx context.Context, customerID, jobID string, load func(context.Context) (Job, error)) (Job, error) {
	return s.Jobs.GetOrLoad(ctx, JobKey(customerID, jobID), load)
}

// Query returns a cached serialized query result
func (s *Set) Query(ctx context.Context, customerID, query string, load func(context.Context) ([]byte, error)) ([]byte, error) {
	return s.Queries.GetOrLoad(ctx, QueryKey(customerID, query), load)
}

// InvalidateCustomer drops everything cached for one customer: the customer
// record when email is known, and every notification, query, invoice and job
// entry keyed by customerID. Returns the number of entries removed.
func (s *Set) InvalidateCustomer(customerID, email string) (int, error) {
	if customerID == "" {
		return 0, ErrEmptyCustomer
	}
	n := 0
	if email != "" && s.Customers.Invalidate(CustomerKey(email)) {
		n++
	}
	m := ownedBy(customerID)
	n += s.Notifications.InvalidateMatching(m)
	n += s.Queries.InvalidateMatching(m)
	n += s.Invoices.InvalidateMatching(m)
	n += s.Jobs.InvalidateMatching(m)
	return n, nil
}

// RunJanitors sweeps expired entries from every cache each interval until ctx is done
func (s *Set) RunJanitors(ctx context.Context, every time.Duration) {
	go s.Customers.Janitor(ctx, every)
	go s.Notifications.Janitor(ctx, every)
	go s.Queries.Janitor(ctx, every)
	go s.Invoices.Janitor(ctx, every)
	go s.Jobs.Janitor(ctx, every)
}
