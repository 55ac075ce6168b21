package service

import (
	"sync"

	domainauth "github.com/tiffinlabs/tiffin-auth/internal/domain/auth"
)

// FederatedBroker fans provider sign-in state out to subscribers. The OAuth
// callback handler feeds it on completed exchanges; the session manager
// consumes it as its federated observer. Each subscription immediately
// receives the current state, then every transition until unsubscribed.
type FederatedBroker struct {
	mu      sync.Mutex
	current *domainauth.Principal
	subs    map[int]func(*domainauth.Principal)
	nextID  int
}

// NewFederatedBroker starts in the signed-out state.
func NewFederatedBroker() *FederatedBroker {
	return &FederatedBroker{subs: make(map[int]func(*domainauth.Principal))}
}

// Subscribe registers a callback, fires it once with the current state, and
// returns its removal function.
func (b *FederatedBroker) Subscribe(fn func(p *domainauth.Principal)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	current := b.current
	b.mu.Unlock()

	fn(current)

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// SignedIn publishes a provider sign-in.
func (b *FederatedBroker) SignedIn(p domainauth.Principal) {
	principal := p
	b.publish(&principal)
}

// SignedOut publishes a provider sign-out.
func (b *FederatedBroker) SignedOut() {
	b.publish(nil)
}

func (b *FederatedBroker) publish(p *domainauth.Principal) {
	b.mu.Lock()
	b.current = p
	fns := make([]func(*domainauth.Principal), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(p)
	}
}

// PrincipalFromIdentity maps a provider identity plus a mapped role into the
// unified principal shape.
func PrincipalFromIdentity(id domainauth.Identity, role domainauth.Role) domainauth.Principal {
	return domainauth.Principal{
		ID:          id.UID,
		Email:       id.Email,
		DisplayName: id.DisplayName,
		PhoneNumber: id.PhoneNumber,
		PhotoURL:    id.PhotoURL,
		Role:        role,
	}
}
