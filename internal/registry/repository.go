package registry

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Counts summarizes the size of the registry.
type Counts struct {
	Clients int `json:"clients"`
	Pets    int `json:"pets"`
}

// Repository defines the interface for client and pet storage
type Repository interface {
	Create(ctx context.Context, client *Client) error
	Get(ctx context.Context, id string) (*Client, error)
	List(ctx context.Context) ([]*Client, error)
	Search(ctx context.Context, term string) ([]*Client, error)
	AddPet(ctx context.Context, clientID string, pet *Pet) error
	AddMedicalEntry(ctx context.Context, clientID, petID string, entry *MedicalEntry) error
	AddVaccination(ctx context.Context, clientID, petID string, v *Vaccination) error
	Counts(ctx context.Context) (Counts, error)
}

// InMemoryRepository is an in-memory implementation of Repository
type InMemoryRepository struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{clients: make(map[string]*Client)}
}

func (r *InMemoryRepository) Create(ctx context.Context, client *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[client.ID] = cloneClient(client)
	return nil
}

func (r *InMemoryRepository) Get(ctx context.Context, id string) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	if !ok {
		return nil, ErrClientNotFound
	}
	return cloneClient(c), nil
}

func (r *InMemoryRepository) List(ctx context.Context) ([]*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, cloneClient(c))
	}
	sortClients(out)
	return out, nil
}

// Search matches the term against the client name, national id and pet names.
func (r *InMemoryRepository) Search(ctx context.Context, term string) ([]*Client, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Client
	for _, c := range r.clients {
		if term == "" || matches(c, term) {
			out = append(out, cloneClient(c))
		}
	}
	sortClients(out)
	return out, nil
}

func (r *InMemoryRepository) AddPet(ctx context.Context, clientID string, pet *Pet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[clientID]
	if !ok {
		return ErrClientNotFound
	}
	c.Pets = append(c.Pets, clonePet(*pet))
	return nil
}

func (r *InMemoryRepository) AddMedicalEntry(ctx context.Context, clientID, petID string, entry *MedicalEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pet, err := r.pet(clientID, petID)
	if err != nil {
		return err
	}
	e := *entry
	e.Attachments = append([]Attachment(nil), entry.Attachments...)
	// Newest visit date first; a new entry goes ahead of others on the same date.
	i := sort.Search(len(pet.History), func(i int) bool {
		return !pet.History[i].Date.After(e.Date)
	})
	pet.History = append(pet.History, MedicalEntry{})
	copy(pet.History[i+1:], pet.History[i:])
	pet.History[i] = e
	return nil
}

func (r *InMemoryRepository) AddVaccination(ctx context.Context, clientID, petID string, v *Vaccination) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pet, err := r.pet(clientID, petID)
	if err != nil {
		return err
	}
	pet.Vaccinations = append(pet.Vaccinations, *v)
	return nil
}

func (r *InMemoryRepository) Counts(ctx context.Context) (Counts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := Counts{Clients: len(r.clients)}
	for _, c := range r.clients {
		counts.Pets += len(c.Pets)
	}
	return counts, nil
}

// pet must be called with the write lock held.
func (r *InMemoryRepository) pet(clientID, petID string) (*Pet, error) {
	c, ok := r.clients[clientID]
	if !ok {
		return nil, ErrClientNotFound
	}
	p, ok := c.Pet(petID)
	if !ok {
		return nil, ErrPetNotFound
	}
	return p, nil
}

func matches(c *Client, term string) bool {
	if strings.Contains(strings.ToLower(c.FullName), term) || strings.Contains(c.NationalID, term) {
		return true
	}
	for _, p := range c.Pets {
		if strings.Contains(strings.ToLower(p.Name), term) {
			return true
		}
	}
	return false
}

func sortClients(clients []*Client) {
	sort.Slice(clients, func(i, j int) bool {
		if clients[i].CreatedAt.Equal(clients[j].CreatedAt) {
			return clients[i].ID < clients[j].ID
		}
		return clients[i].CreatedAt.Before(clients[j].CreatedAt)
	})
}

func cloneClient(c *Client) *Client {
	cp := *c
	cp.Pets = make([]Pet, len(c.Pets))
	for i, p := range c.Pets {
		cp.Pets[i] = clonePet(p)
	}
	return &cp
}

func clonePet(p Pet) Pet {
	p.Vaccinations = append([]Vaccination{}, p.Vaccinations...)
	history := make([]MedicalEntry, len(p.History))
	for i, e := range p.History {
		e.Attachments = append([]Attachment{}, e.Attachments...)
		history[i] = e
	}
	p.History = history
	return p
}
