// Package identity resolves a channel sender to a customer account. A sender
// is linked by a stored binding; senders without one stay usable for general
// questions and get pushed toward the bind flow when an operation needs an
// account.
package identity

import (
	"context"
	"errors"
	"log/slog"
)

// LinkStatus is the outcome of resolving a sender.
type LinkStatus string

const (
	// StatusLinked means exactly one customer is bound to the sender.
	StatusLinked LinkStatus = "linked"
	// StatusUnlinked means no binding exists.
	StatusUnlinked LinkStatus = "unlinked"
	// StatusAmbiguous means more than one customer matched, for example a
	// shared family phone bound from two chat accounts.
	StatusAmbiguous LinkStatus = "ambiguous"
)

// ErrLookupFailed wraps storage errors so callers can distinguish "no
// binding" from "could not check".
var ErrLookupFailed = errors.New("identity: binding lookup failed")

// ErrAlreadyBound is returned by Create when the sender is bound to a
// different customer. Re-linking requires an explicit unbind first.
var ErrAlreadyBound = errors.New("identity: sender already bound to another customer")

// Link is the resolution the pipeline attaches to a turn.
type Link struct {
	Status       LinkStatus
	CustomerID   int64
	CustomerName string
	Phone        string
}

// Linked reports whether the sender resolved to exactly one customer.
func (l Link) Linked() bool {
	return l.Status == StatusLinked
}

// Binding is one stored sender-to-customer association.
type Binding struct {
	Channel      string
	SenderID     string
	CustomerID   int64
	CustomerName string
	Phone        string
}

// BindingStore is the persistence behind the linker.
type BindingStore interface {
	FindBySender(ctx context.Context, channel, senderID string) ([]Binding, error)
	Create(ctx context.Context, b Binding) error
	Delete(ctx context.Context, channel, senderID string) (bool, error)
}

// Customer is one directory candidate for a phone match.
type Customer struct {
	ID   int64
	Name string
}

// CustomerMatcher finds the customers registered under a phone number. A
// shared family phone can match more than one.
type CustomerMatcher interface {
	MatchByPhone(ctx context.Context, phone string) ([]Customer, error)
}

// Linker resolves senders, consulting a short-lived cache before Postgres.
type Linker struct {
	store     BindingStore
	directory CustomerMatcher
	cache     *LinkCache
	logger    *slog.Logger
}

// LinkerOption customizes a Linker.
type LinkerOption func(*Linker)

// WithDirectory enables the phone-match path: an unbound sender who offers
// a phone number that matches exactly one customer gets linked on the spot.
func WithDirectory(d CustomerMatcher) LinkerOption {
	return func(l *Linker) { l.directory = d }
}

// NewLinker builds a linker. cache may be nil, in which case every
// resolution hits the store.
func NewLinker(store BindingStore, cache *LinkCache, logger *slog.Logger, opts ...LinkerOption) *Linker {
	if store == nil {
		panic("identity: binding store cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &Linker{store: store, cache: cache, logger: logger}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Resolve maps a sender to its customer link. Storage failures return
// ErrLookupFailed with an unlinked result so the caller can degrade instead
// of dropping the turn.
func (l *Linker) Resolve(ctx context.Context, channel, senderID string) (Link, error) {
	if cached, ok := l.cache.Get(ctx, channel, senderID); ok {
		return cached, nil
	}

	bindings, err := l.store.FindBySender(ctx, channel, senderID)
	if err != nil {
		l.logger.Warn("binding lookup failed", "channel", channel, "error", err)
		return Link{Status: StatusUnlinked}, errors.Join(ErrLookupFailed, err)
	}

	link := Link{Status: StatusUnlinked}
	switch len(bindings) {
	case 0:
	case 1:
		b := bindings[0]
		link = Link{
			Status:       StatusLinked,
			CustomerID:   b.CustomerID,
			CustomerName: b.CustomerName,
			Phone:        b.Phone,
		}
	default:
		link = Link{Status: StatusAmbiguous}
	}

	l.cache.Put(ctx, channel, senderID, link)
	return link, nil
}

// ResolveByPhone tries to link an unbound sender by a phone number they
// offered, either in the current message or remembered from a recent turn.
// Exactly one directory candidate persists a binding and returns a linked
// result; zero candidates return unlinked; several return ambiguous and
// leave the binding untouched, so an explicit flow can disambiguate.
func (l *Linker) ResolveByPhone(ctx context.Context, channel, senderID, phone string) (Link, error) {
	if phone == "" {
		cached, ok := l.cache.RecentPhone(ctx, channel, senderID)
		if !ok {
			return Link{Status: StatusUnlinked}, nil
		}
		phone = cached
	} else {
		l.cache.RememberPhone(ctx, channel, senderID, phone)
	}
	if l.directory == nil {
		return Link{Status: StatusUnlinked}, nil
	}

	candidates, err := l.directory.MatchByPhone(ctx, phone)
	if err != nil {
		l.logger.Warn("phone match failed", "channel", channel, "error", err)
		return Link{Status: StatusUnlinked}, errors.Join(ErrLookupFailed, err)
	}

	switch len(candidates) {
	case 0:
		return Link{Status: StatusUnlinked}, nil
	case 1:
		c := candidates[0]
		err := l.Bind(ctx, Binding{
			Channel:      channel,
			SenderID:     senderID,
			CustomerID:   c.ID,
			CustomerName: c.Name,
			Phone:        phone,
		})
		if errors.Is(err, ErrAlreadyBound) {
			// Lost a race with an explicit bind; the stored binding wins.
			return l.Resolve(ctx, channel, senderID)
		}
		if err != nil {
			return Link{Status: StatusUnlinked}, err
		}
		link := Link{Status: StatusLinked, CustomerID: c.ID, CustomerName: c.Name, Phone: phone}
		l.cache.Put(ctx, channel, senderID, link)
		return link, nil
	default:
		return Link{Status: StatusAmbiguous}, nil
	}
}

// Bind stores a new sender binding and drops any cached resolution.
func (l *Linker) Bind(ctx context.Context, b Binding) error {
	if err := l.store.Create(ctx, b); err != nil {
		return err
	}
	l.cache.Invalidate(ctx, b.Channel, b.SenderID)
	return nil
}

// BindSender is Bind in the shape the action dispatcher consumes.
func (l *Linker) BindSender(ctx context.Context, channel, senderID string, customerID int64) error {
	return l.Bind(ctx, Binding{Channel: channel, SenderID: senderID, CustomerID: customerID})
}

// Unbind removes a sender's binding. It reports whether one existed.
func (l *Linker) Unbind(ctx context.Context, channel, senderID string) (bool, error) {
	existed, err := l.store.Delete(ctx, channel, senderID)
	if err != nil {
		return false, err
	}
	l.cache.Invalidate(ctx, channel, senderID)
	return existed, nil
}
