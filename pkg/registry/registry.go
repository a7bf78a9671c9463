// Package registry stores provider-published service descriptors. The
// generic serving variant keys services by (provider, name); the inference
// and fine-tuning variants hold one descriptor per provider and use an empty
// name. Each entry carries the time of its last update so settlement can
// reject claims signed against stale terms.
package registry

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/0g-serving-ledger/pkg/model"
)

type key struct {
	provider common.Address
	name     string
}

// Entry pairs a descriptor with the time of its last update.
type Entry[S any] struct {
	Service   S
	UpdatedAt int64
}

// Registry holds the descriptors of one serving instance. It is not safe
// for concurrent use; the owning serving instance serializes calls.
type Registry[S any] struct {
	entries map[key]*Entry[S]
	order   []key
}

// New returns an empty registry.
func New[S any]() *Registry[S] {
	return &Registry[S]{entries: make(map[key]*Entry[S])}
}

// Put creates or replaces the (provider, name) descriptor, stamping it with
// now. Reports whether the entry was newly created.
func (r *Registry[S]) Put(provider common.Address, name string, svc S, now int64) bool {
	k := key{provider, name}
	if e, ok := r.entries[k]; ok {
		e.Service = svc
		e.UpdatedAt = now
		return false
	}
	r.entries[k] = &Entry[S]{Service: svc, UpdatedAt: now}
	r.order = append(r.order, k)
	return true
}

// Get returns the (provider, name) entry.
func (r *Registry[S]) Get(provider common.Address, name string) (Entry[S], error) {
	e, ok := r.entries[key{provider, name}]
	if !ok {
		return Entry[S]{}, model.ErrServiceNotFound
	}
	return *e, nil
}

// Update applies fn to the (provider, name) descriptor in place without
// touching UpdatedAt. Used for bookkeeping changes, like marking a
// fine-tuning provider occupied, that must not invalidate signed claims.
func (r *Registry[S]) Update(provider common.Address, name string, fn func(*S)) error {
	e, ok := r.entries[key{provider, name}]
	if !ok {
		return model.ErrServiceNotFound
	}
	fn(&e.Service)
	return nil
}

// Remove deletes the (provider, name) entry.
func (r *Registry[S]) Remove(provider common.Address, name string) error {
	k := key{provider, name}
	if _, ok := r.entries[k]; !ok {
		return model.ErrServiceNotFound
	}
	delete(r.entries, k)
	for i, o := range r.order {
		if o == k {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Len returns the number of registered services.
func (r *Registry[S]) Len() int { return len(r.order) }

// List returns a page of descriptors in registration order plus the total
// count.
func (r *Registry[S]) List(offset, limit int) ([]S, int, error) {
	total := len(r.order)
	start, end, err := model.PageBounds(total, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	out := make([]S, 0, end-start)
	for _, k := range r.order[start:end] {
		out = append(out, r.entries[k].Service)
	}
	return out, total, nil
}

// ByProvider returns every descriptor the provider registered, in
// registration order.
func (r *Registry[S]) ByProvider(provider common.Address) []S {
	var out []S
	for _, k := range r.order {
		if k.provider == provider {
			out = append(out, r.entries[k].Service)
		}
	}
	return out
}
