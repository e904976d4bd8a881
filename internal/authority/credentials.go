// Package authority holds the clinic's e-invoicing authority credentials and
// the connection check that marks them usable for billing.
package authority

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

type Environment string

const (
	EnvironmentSandbox    Environment = "sandbox"
	EnvironmentProduction Environment = "production"
)

var (
	ErrInvalidUser        = errors.New("api user must start with cpj- or be a national id")
	ErrMissingPassword    = errors.New("api password is required")
	ErrInvalidPIN         = errors.New("pin must be 4 digits")
	ErrInvalidEnvironment = errors.New("environment must be sandbox or production")
)

var (
	nationalIDPattern = regexp.MustCompile(`^\d{9,12}$`)
	pinPattern        = regexp.MustCompile(`^\d{4}$`)
)

// Credentials is the persisted authority configuration.
type Credentials struct {
	APIUser      string      `json:"api_user"`
	APIPassword  string      `json:"api_password"`
	PIN          string      `json:"pin"`
	KeyFileName  string      `json:"key_file_name"`
	Environment  Environment `json:"environment"`
	Configured   bool        `json:"configured"`
	SessionToken string      `json:"session_token,omitempty"`
	ValidatedAt  *time.Time  `json:"validated_at,omitempty"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Default is an unconfigured sandbox configuration.
func Default() *Credentials {
	return &Credentials{Environment: EnvironmentSandbox}
}

// IsConfigured reports whether billing may submit documents.
func (c *Credentials) IsConfigured() bool {
	return c != nil && c.Configured
}

// Validate checks the structural rules the authority enforces.
func (c *Credentials) Validate() error {
	user := strings.TrimSpace(c.APIUser)
	if !strings.HasPrefix(strings.ToLower(user), "cpj-") && !nationalIDPattern.MatchString(user) {
		return ErrInvalidUser
	}
	if strings.TrimSpace(c.APIPassword) == "" {
		return ErrMissingPassword
	}
	if !pinPattern.MatchString(c.PIN) {
		return ErrInvalidPIN
	}
	switch c.Environment {
	case EnvironmentSandbox, EnvironmentProduction:
	default:
		return ErrInvalidEnvironment
	}
	return nil
}

// Masked returns a copy safe to send to the browser.
func (c Credentials) Masked() Credentials {
	if c.APIPassword != "" {
		c.APIPassword = "********"
	}
	if c.PIN != "" {
		c.PIN = "****"
	}
	c.SessionToken = ""
	return c
}

// Update is a partial change to the credentials. Nil fields are left as is.
type Update struct {
	APIUser     *string      `json:"api_user,omitempty"`
	APIPassword *string      `json:"api_password,omitempty"`
	PIN         *string      `json:"pin,omitempty"`
	KeyFileName *string      `json:"key_file_name,omitempty"`
	Environment *Environment `json:"environment,omitempty"`
}

// apply merges u into c and reports whether anything changed.
func (u Update) apply(c *Credentials) bool {
	changed := false
	set := func(dst *string, src *string) {
		if src == nil {
			return
		}
		v := strings.TrimSpace(*src)
		if v != *dst {
			*dst = v
			changed = true
		}
	}
	set(&c.APIUser, u.APIUser)
	set(&c.APIPassword, u.APIPassword)
	set(&c.PIN, u.PIN)
	set(&c.KeyFileName, u.KeyFileName)
	if u.Environment != nil && *u.Environment != c.Environment {
		c.Environment = *u.Environment
		changed = true
	}
	return changed
}
