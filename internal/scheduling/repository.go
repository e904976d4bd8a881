package scheduling

import (
	"context"
	"sort"
	"sync"
)

// Repository stores appointments. Listings are ordered by date then time.
type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	Get(ctx context.Context, id string) (*Appointment, error)
	List(ctx context.Context) ([]*Appointment, error)
	ListByDate(ctx context.Context, date string) ([]*Appointment, error)
	UpdateStatus(ctx context.Context, id string, status Status) (*Appointment, error)
}

type InMemoryRepository struct {
	mu           sync.RWMutex
	appointments map[string]*Appointment
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{appointments: make(map[string]*Appointment)}
}

func (r *InMemoryRepository) Create(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.appointments[a.ID] = &cp
	return nil
}

func (r *InMemoryRepository) Get(_ context.Context, id string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *InMemoryRepository) List(_ context.Context) ([]*Appointment, error) {
	return r.filter(func(*Appointment) bool { return true }), nil
}

func (r *InMemoryRepository) ListByDate(_ context.Context, date string) ([]*Appointment, error) {
	return r.filter(func(a *Appointment) bool { return a.Date == date }), nil
}

func (r *InMemoryRepository) UpdateStatus(_ context.Context, id string, status Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.Status = status
	cp := *a
	return &cp, nil
}

func (r *InMemoryRepository) filter(keep func(*Appointment) bool) []*Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Appointment, 0, len(r.appointments))
	for _, a := range r.appointments {
		if keep(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sortAgenda(out)
	return out
}

func sortAgenda(list []*Appointment) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Date != list[j].Date {
			return list[i].Date < list[j].Date
		}
		if list[i].Time != list[j].Time {
			return list[i].Time < list[j].Time
		}
		return list[i].ID < list[j].ID
	})
}
