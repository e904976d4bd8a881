package authority

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/vethome-platform/internal/gateway"
	"github.com/wolfman30/vethome-platform/pkg/logging"
)

// Validator checks credentials with the authority.
type Validator interface {
	ValidateCredentials(ctx context.Context, check gateway.CredentialCheck) (gateway.CredentialResult, error)
}

// CredentialsError is returned by Connect when the authority refuses the credentials.
type CredentialsError struct {
	Reason string
}

func (e *CredentialsError) Error() string {
	return "authority: credentials rejected: " + e.Reason
}

// Service reads and changes the credentials.
type Service struct {
	store     Store
	validator Validator
	logger    *logging.Logger
	now       func() time.Time

	// serializes read-modify-write cycles on the blob
	mu sync.Mutex
}

func NewService(store Store, validator Validator, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, validator: validator, logger: logger, now: time.Now}
}

// Current returns the stored credentials.
func (s *Service) Current(ctx context.Context) (*Credentials, error) {
	return s.store.Get(ctx)
}

// Update applies a partial change. Any change to the credentials clears the
// configured flag until Connect succeeds again.
func (s *Service) Update(ctx context.Context, u Update) (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	if u.Environment != nil {
		switch *u.Environment {
		case EnvironmentSandbox, EnvironmentProduction:
		default:
			return nil, ErrInvalidEnvironment
		}
	}
	if !u.apply(c) {
		return c, nil
	}
	c.Configured = false
	c.SessionToken = ""
	c.ValidatedAt = nil
	c.UpdatedAt = s.now().UTC()
	if err := s.store.Set(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Connect validates the stored credentials with the authority and marks
// them configured when accepted.
func (s *Service) Connect(ctx context.Context) (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	res, err := s.validator.ValidateCredentials(ctx, gateway.CredentialCheck{
		User:        c.APIUser,
		Password:    c.APIPassword,
		PIN:         c.PIN,
		Environment: string(c.Environment),
	})
	if err != nil {
		return nil, fmt.Errorf("authority: connect: %w", err)
	}
	if !res.Valid {
		s.logger.Warn("authority rejected credentials", "user", c.APIUser, "reason", res.Error)
		return nil, &CredentialsError{Reason: res.Error}
	}

	now := s.now().UTC()
	c.Configured = true
	c.SessionToken = res.Token
	c.ValidatedAt = &now
	c.UpdatedAt = now
	if err := s.store.Set(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("authority credentials validated",
		"environment", c.Environment,
		"simulated", res.Fallback,
	)
	return c, nil
}
