package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/vethome-platform/internal/gateway"
)

type fakeValidator struct {
	result gateway.CredentialResult
	err    error
	calls  int
}

func (f *fakeValidator) ValidateCredentials(context.Context, gateway.CredentialCheck) (gateway.CredentialResult, error) {
	f.calls++
	return f.result, f.err
}

func validUpdate() Update {
	user, pass, pin := "cpj-3-101-123456", "secret", "1234"
	env := EnvironmentSandbox
	return Update{APIUser: &user, APIPassword: &pass, PIN: &pin, Environment: &env}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	c, err := store.Get(ctx)
	require.NoError(t, err)
	assert.False(t, c.Configured)
	assert.Equal(t, EnvironmentSandbox, c.Environment)

	c.APIUser = "cpj-1"
	c.Configured = true
	require.NoError(t, store.Set(ctx, c))
	assert.True(t, mr.Exists(credentialsKey))

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cpj-1", got.APIUser)
	assert.True(t, got.Configured)
}

func TestCredentialsValidate(t *testing.T) {
	base := Credentials{APIUser: "cpj-1", APIPassword: "x", PIN: "1234", Environment: EnvironmentProduction}
	require.NoError(t, base.Validate())

	nationalID := base
	nationalID.APIUser = "112340567"
	assert.NoError(t, nationalID.Validate())

	badUser := base
	badUser.APIUser = "admin"
	assert.ErrorIs(t, badUser.Validate(), ErrInvalidUser)

	badPIN := base
	badPIN.PIN = "12a4"
	assert.ErrorIs(t, badPIN.Validate(), ErrInvalidPIN)

	noPass := base
	noPass.APIPassword = " "
	assert.ErrorIs(t, noPass.Validate(), ErrMissingPassword)

	badEnv := base
	badEnv.Environment = "staging"
	assert.ErrorIs(t, badEnv.Validate(), ErrInvalidEnvironment)
}

func TestConnectMarksConfigured(t *testing.T) {
	validator := &fakeValidator{result: gateway.CredentialResult{Valid: true, Token: "tok"}}
	svc := NewService(NewMemoryStore(), validator, nil)
	ctx := context.Background()

	_, err := svc.Update(ctx, validUpdate())
	require.NoError(t, err)

	c, err := svc.Connect(ctx)
	require.NoError(t, err)
	assert.True(t, c.Configured)
	assert.Equal(t, "tok", c.SessionToken)
	assert.NotNil(t, c.ValidatedAt)

	stored, _ := svc.Current(ctx)
	assert.True(t, stored.IsConfigured())
}

func TestConnectRejectsBeforeCallingAuthority(t *testing.T) {
	validator := &fakeValidator{}
	svc := NewService(NewMemoryStore(), validator, nil)

	_, err := svc.Connect(context.Background())
	assert.ErrorIs(t, err, ErrInvalidUser)
	assert.Zero(t, validator.calls)
}

func TestConnectInvalidCredentials(t *testing.T) {
	validator := &fakeValidator{result: gateway.CredentialResult{Valid: false, Error: "PIN incorrecto"}}
	svc := NewService(NewMemoryStore(), validator, nil)
	ctx := context.Background()
	_, _ = svc.Update(ctx, validUpdate())

	_, err := svc.Connect(ctx)
	var credErr *CredentialsError
	require.True(t, errors.As(err, &credErr))
	assert.Equal(t, "PIN incorrecto", credErr.Reason)

	stored, _ := svc.Current(ctx)
	assert.False(t, stored.Configured)
}

func TestUpdateClearsConfigured(t *testing.T) {
	validator := &fakeValidator{result: gateway.CredentialResult{Valid: true, Token: "tok"}}
	svc := NewService(NewMemoryStore(), validator, nil)
	ctx := context.Background()
	_, _ = svc.Update(ctx, validUpdate())
	_, err := svc.Connect(ctx)
	require.NoError(t, err)

	samePIN := "1234"
	c, err := svc.Update(ctx, Update{PIN: &samePIN})
	require.NoError(t, err)
	assert.True(t, c.Configured, "unchanged values keep the connection")

	newPIN := "9999"
	c, err = svc.Update(ctx, Update{PIN: &newPIN})
	require.NoError(t, err)
	assert.False(t, c.Configured)
	assert.Empty(t, c.SessionToken)
}

func TestHandlerMasksSecrets(t *testing.T) {
	svc := NewService(NewMemoryStore(), &fakeValidator{}, nil)
	h := NewHandler(svc, nil)

	body, _ := json.Marshal(validUpdate())
	rec := httptest.NewRecorder()
	h.Update(rec, httptest.NewRequest(http.MethodPut, "/authority/credentials", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var got Credentials
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "********", got.APIPassword)
	assert.Equal(t, "****", got.PIN)
	assert.Equal(t, "cpj-3-101-123456", got.APIUser)
}

func TestHandlerConnectStatuses(t *testing.T) {
	ctx := context.Background()

	svc := NewService(NewMemoryStore(), &fakeValidator{}, nil)
	rec := httptest.NewRecorder()
	NewHandler(svc, nil).Connect(rec, httptest.NewRequest(http.MethodPost, "/authority/connect", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	down := &fakeValidator{err: gateway.ErrUnavailable}
	svc = NewService(NewMemoryStore(), down, nil)
	_, _ = svc.Update(ctx, validUpdate())
	rec = httptest.NewRecorder()
	NewHandler(svc, nil).Connect(rec, httptest.NewRequest(http.MethodPost, "/authority/connect", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	refused := &fakeValidator{result: gateway.CredentialResult{Error: "usuario bloqueado"}}
	svc = NewService(NewMemoryStore(), refused, nil)
	_, _ = svc.Update(ctx, validUpdate())
	rec = httptest.NewRecorder()
	NewHandler(svc, nil).Connect(rec, httptest.NewRequest(http.MethodPost, "/authority/connect", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
