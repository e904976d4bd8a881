package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const foreignKeyViolation = "23503"

// PostgresRepository stores clients, pets and history in Postgres.
type PostgresRepository struct {
	db DB
}

func NewPostgresRepository(db DB) *PostgresRepository {
	if db == nil {
		panic("registry: db required")
	}
	return &PostgresRepository{db: db}
}

const clientColumns = `id, national_id, full_name, email, phone, address, created_at`

func (r *PostgresRepository) Create(ctx context.Context, c *Client) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.NationalID, c.FullName, c.Email, c.Phone, c.Address, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("registry: insert client: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Client, error) {
	var c Client
	err := r.db.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id).
		Scan(&c.ID, &c.NationalID, &c.FullName, &c.Email, &c.Phone, &c.Address, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrClientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("registry: get client: %w", err)
	}
	clients := []*Client{&c}
	if err := r.attachPets(ctx, clients); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*Client, error) {
	return r.queryClients(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY created_at ASC, id ASC`)
}

func (r *PostgresRepository) Search(ctx context.Context, term string) ([]*Client, error) {
	pattern := "%" + strings.TrimSpace(term) + "%"
	return r.queryClients(ctx, `
		SELECT `+clientColumns+`
		FROM clients c
		WHERE c.full_name ILIKE $1
		   OR c.national_id LIKE $1
		   OR EXISTS (SELECT 1 FROM pets p WHERE p.client_id = c.id AND p.name ILIKE $1)
		ORDER BY c.created_at ASC, c.id ASC`, pattern)
}

func (r *PostgresRepository) AddPet(ctx context.Context, clientID string, pet *Pet) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO pets (id, client_id, name, species, breed, birth_date, weight_kg, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::date, $7, $8)`,
		pet.ID, clientID, pet.Name, string(pet.Species), pet.Breed, pet.BirthDate, pet.WeightKg, pet.CreatedAt,
	)
	if isForeignKeyViolation(err) {
		return ErrClientNotFound
	}
	if err != nil {
		return fmt.Errorf("registry: insert pet: %w", err)
	}
	return nil
}

const insertMedicalEntrySQL = `
	INSERT INTO medical_entries (id, pet_id, date, reason, diagnosis, treatment, attachments, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// History is newest first by visit date; entries sharing a date keep
// insertion order, latest first.
const selectHistorySQL = `
	SELECT id, pet_id, date, reason, diagnosis, treatment, attachments
	FROM medical_entries
	WHERE pet_id = ANY($1)
	ORDER BY date DESC, created_at DESC, id DESC`

func (r *PostgresRepository) AddMedicalEntry(ctx context.Context, clientID, petID string, entry *MedicalEntry) error {
	attachments, err := json.Marshal(entry.Attachments)
	if err != nil {
		return fmt.Errorf("registry: marshal attachments: %w", err)
	}
	_, err = r.db.Exec(ctx, insertMedicalEntrySQL,
		entry.ID, petID, entry.Date, entry.Reason, entry.Diagnosis, entry.Treatment, attachments, time.Now().UTC(),
	)
	if isForeignKeyViolation(err) {
		return ErrPetNotFound
	}
	if err != nil {
		return fmt.Errorf("registry: insert medical entry: %w", err)
	}
	return nil
}

func (r *PostgresRepository) AddVaccination(ctx context.Context, clientID, petID string, v *Vaccination) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO vaccinations (id, pet_id, name, date, next_due_date)
		VALUES ($1, $2, $3, $4::date, NULLIF($5, '')::date)`,
		v.ID, petID, v.Name, v.Date, v.NextDueDate,
	)
	if isForeignKeyViolation(err) {
		return ErrPetNotFound
	}
	if err != nil {
		return fmt.Errorf("registry: insert vaccination: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := r.db.QueryRow(ctx, `SELECT (SELECT COUNT(*) FROM clients), (SELECT COUNT(*) FROM pets)`).
		Scan(&c.Clients, &c.Pets)
	if err != nil {
		return Counts{}, fmt.Errorf("registry: count: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) queryClients(ctx context.Context, sql string, args ...any) ([]*Client, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("registry: list clients: %w", err)
	}
	defer rows.Close()

	var clients []*Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.NationalID, &c.FullName, &c.Email, &c.Phone, &c.Address, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("registry: scan client: %w", err)
		}
		clients = append(clients, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachPets(ctx, clients); err != nil {
		return nil, err
	}
	return clients, nil
}

// attachPets loads pets, vaccinations and history for the given clients.
func (r *PostgresRepository) attachPets(ctx context.Context, clients []*Client) error {
	if len(clients) == 0 {
		return nil
	}
	ids := make([]string, len(clients))
	byID := make(map[string]*Client, len(clients))
	for i, c := range clients {
		ids[i] = c.ID
		c.Pets = []Pet{}
		byID[c.ID] = c
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, client_id, name, species, breed, COALESCE(to_char(birth_date, 'YYYY-MM-DD'), ''), weight_kg, created_at
		FROM pets
		WHERE client_id = ANY($1)
		ORDER BY created_at ASC, id ASC`, ids)
	if err != nil {
		return fmt.Errorf("registry: list pets: %w", err)
	}
	var pets []Pet
	for rows.Next() {
		var p Pet
		var species string
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &species, &p.Breed, &p.BirthDate, &p.WeightKg, &p.CreatedAt); err != nil {
			rows.Close()
			return fmt.Errorf("registry: scan pet: %w", err)
		}
		p.Species = Species(species)
		p.Vaccinations = []Vaccination{}
		p.History = []MedicalEntry{}
		pets = append(pets, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(pets) == 0 {
		return nil
	}

	petIDs := make([]string, len(pets))
	petIndex := make(map[string]int, len(pets))
	for i, p := range pets {
		petIDs[i] = p.ID
		petIndex[p.ID] = i
	}

	if err := r.loadVaccinations(ctx, petIDs, pets, petIndex); err != nil {
		return err
	}
	if err := r.loadHistory(ctx, petIDs, pets, petIndex); err != nil {
		return err
	}

	for _, p := range pets {
		if c, ok := byID[p.OwnerID]; ok {
			c.Pets = append(c.Pets, p)
		}
	}
	return nil
}

func (r *PostgresRepository) loadVaccinations(ctx context.Context, petIDs []string, pets []Pet, index map[string]int) error {
	rows, err := r.db.Query(ctx, `
		SELECT id, pet_id, name, to_char(date, 'YYYY-MM-DD'), COALESCE(to_char(next_due_date, 'YYYY-MM-DD'), '')
		FROM vaccinations
		WHERE pet_id = ANY($1)
		ORDER BY date ASC`, petIDs)
	if err != nil {
		return fmt.Errorf("registry: list vaccinations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v Vaccination
		var petID string
		if err := rows.Scan(&v.ID, &petID, &v.Name, &v.Date, &v.NextDueDate); err != nil {
			return fmt.Errorf("registry: scan vaccination: %w", err)
		}
		if i, ok := index[petID]; ok {
			pets[i].Vaccinations = append(pets[i].Vaccinations, v)
		}
	}
	return rows.Err()
}

func (r *PostgresRepository) loadHistory(ctx context.Context, petIDs []string, pets []Pet, index map[string]int) error {
	rows, err := r.db.Query(ctx, selectHistorySQL, petIDs)
	if err != nil {
		return fmt.Errorf("registry: list history: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e MedicalEntry
		var petID string
		var raw []byte
		if err := rows.Scan(&e.ID, &petID, &e.Date, &e.Reason, &e.Diagnosis, &e.Treatment, &raw); err != nil {
			return fmt.Errorf("registry: scan medical entry: %w", err)
		}
		e.Attachments = []Attachment{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Attachments); err != nil {
				return fmt.Errorf("registry: decode attachments: %w", err)
			}
		}
		if i, ok := index[petID]; ok {
			pets[i].History = append(pets[i].History, e)
		}
	}
	return rows.Err()
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}
