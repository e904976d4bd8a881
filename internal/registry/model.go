// Package registry keeps clients (pet owners), their pets and each pet's
// medical history.
package registry

import (
	"regexp"
	"strings"
	"time"
)

type Species string

const (
	SpeciesDog Species = "dog"
	SpeciesCat Species = "cat"
)

var nationalIDPattern = regexp.MustCompile(`^\d{9,12}$`)

// Client is a pet owner.
type Client struct {
	ID         string    `json:"id"`
	NationalID string    `json:"national_id,omitempty"`
	FullName   string    `json:"full_name"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Address    string    `json:"address,omitempty"`
	Pets       []Pet     `json:"pets"`
	CreatedAt  time.Time `json:"created_at"`
}

// Pet returns the owner's pet with the given id.
func (c *Client) Pet(petID string) (*Pet, bool) {
	for i := range c.Pets {
		if c.Pets[i].ID == petID {
			return &c.Pets[i], true
		}
	}
	return nil, false
}

type Pet struct {
	ID           string         `json:"id"`
	OwnerID      string         `json:"owner_id"`
	Name         string         `json:"name"`
	Species      Species        `json:"species"`
	Breed        string         `json:"breed,omitempty"`
	BirthDate    string         `json:"birth_date,omitempty"`
	WeightKg     float64        `json:"weight_kg,omitempty"`
	Vaccinations []Vaccination  `json:"vaccinations"`
	History      []MedicalEntry `json:"history"`
	CreatedAt    time.Time      `json:"created_at"`
}

// MedicalEntry is one visit in a pet's history. Histories are kept newest first.
type MedicalEntry struct {
	ID          string       `json:"id"`
	Date        time.Time    `json:"date"`
	Reason      string       `json:"reason"`
	Diagnosis   string       `json:"diagnosis,omitempty"`
	Treatment   string       `json:"treatment,omitempty"`
	Attachments []Attachment `json:"attachments"`
}

type Attachment struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type,omitempty"`
	Size        int64     `json:"size,omitempty"`
	URL         string    `json:"url,omitempty"`
	Date        time.Time `json:"date"`
}

type Vaccination struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Date        string `json:"date"`
	NextDueDate string `json:"next_due_date,omitempty"`
}

// RegisterClientRequest is the payload for registering a client.
type RegisterClientRequest struct {
	NationalID string `json:"national_id,omitempty"`
	FullName   string `json:"full_name"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address,omitempty"`
}

// Validate trims the request and checks the required fields.
func (r *RegisterClientRequest) Validate() error {
	r.NationalID = strings.TrimSpace(r.NationalID)
	r.FullName = strings.TrimSpace(r.FullName)
	r.Email = strings.TrimSpace(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Address = strings.TrimSpace(r.Address)

	if r.FullName == "" {
		return ErrInvalidName
	}
	if r.Email == "" && r.Phone == "" {
		return ErrMissingContact
	}
	if r.NationalID != "" && !nationalIDPattern.MatchString(r.NationalID) {
		return ErrInvalidNationalID
	}
	return nil
}

type AddPetRequest struct {
	Name      string  `json:"name"`
	Species   Species `json:"species"`
	Breed     string  `json:"breed,omitempty"`
	BirthDate string  `json:"birth_date,omitempty"`
	WeightKg  float64 `json:"weight_kg,omitempty"`
}

func (r *AddPetRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Breed = strings.TrimSpace(r.Breed)
	if r.Name == "" {
		return ErrInvalidPetName
	}
	if r.Species != SpeciesDog && r.Species != SpeciesCat {
		return ErrInvalidSpecies
	}
	if r.BirthDate != "" && !isDate(r.BirthDate) {
		return ErrInvalidDate
	}
	if r.WeightKg < 0 {
		return ErrInvalidWeight
	}
	return nil
}

// AttachmentUpload is an attachment sent with a new medical entry. Data is
// only present for multipart uploads.
type AttachmentUpload struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Data        []byte `json:"-"`
}

type AddMedicalEntryRequest struct {
	Date        *time.Time         `json:"date,omitempty"`
	Reason      string             `json:"reason"`
	Diagnosis   string             `json:"diagnosis,omitempty"`
	Treatment   string             `json:"treatment,omitempty"`
	Attachments []AttachmentUpload `json:"attachments,omitempty"`
}

func (r *AddMedicalEntryRequest) Validate() error {
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		return ErrInvalidReason
	}
	for _, a := range r.Attachments {
		if strings.TrimSpace(a.Name) == "" {
			return ErrInvalidAttachment
		}
	}
	return nil
}

type AddVaccinationRequest struct {
	Name        string `json:"name"`
	Date        string `json:"date"`
	NextDueDate string `json:"next_due_date,omitempty"`
}

func (r *AddVaccinationRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return ErrInvalidVaccine
	}
	if !isDate(r.Date) {
		return ErrInvalidDate
	}
	if r.NextDueDate != "" && (!isDate(r.NextDueDate) || r.NextDueDate < r.Date) {
		return ErrInvalidDate
	}
	return nil
}

func isDate(s string) bool {
	_, err := time.Parse(time.DateOnly, s)
	return err == nil
}

var dogBreeds = []string{
	"Labrador Retriever", "Pastor Alemán", "Golden Retriever", "French Bulldog",
	"Beagle", "Poodle", "Rottweiler", "Yorkshire Terrier", "Boxer", "Chihuahua",
	"Dachshund", "Siberian Husky", "Zaguatito (Mezcla)", "Border Collie", "Shih Tzu",
}

var catBreeds = []string{
	"Persa", "Maine Coon", "Siamés", "Bengala", "Abisinio", "Ragdoll",
	"Sphynx", "British Shorthair", "Común Europeo", "Azul Ruso", "Munchkin", "Zaguate (Mezcla)",
}

// Breeds lists the common breeds for a species.
func Breeds(s Species) ([]string, bool) {
	switch s {
	case SpeciesDog:
		return append([]string(nil), dogBreeds...), true
	case SpeciesCat:
		return append([]string(nil), catBreeds...), true
	}
	return nil, false
}
