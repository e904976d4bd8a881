// Package gateway adapts the generative model into the external services the
// clinic depends on: the e-invoicing authority, the civil registry, the
// CABYS catalog and notification copywriting. Each call returns a strict
// result type; what happens when a call fails is decided by a Policy.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/vethome-platform/internal/llm"
	"github.com/wolfman30/vethome-platform/internal/observability/metrics"
	"github.com/wolfman30/vethome-platform/pkg/logging"
)

var tracer = otel.Tracer("vethome.internal.gateway")

const (
	callValidateCredentials = "validate_credentials"
	callValidateDocument    = "validate_document"
	callSendAcceptance      = "send_acceptance"
	callBatchMessage        = "batch_message"
	callLookupIdentity      = "lookup_identity"
	callSearchCABYS         = "search_cabys"
	callReminderText        = "reminder_text"

	batchMessageLimit = 160
	reminderLimit     = 100
)

// Placeholder names returned by LookupIdentity.
const (
	NameNotFound     = "Nombre No Encontrado"
	NameLookupFailed = "Error en conexión con el registro civil"
)

// Policy decides what a failed call returns.
type Policy struct {
	// FallbackOnError answers failed calls with a fixed optimistic default
	// (fail open). When false the error is returned to the caller.
	FallbackOnError bool
}

var (
	FailOpen   = Policy{FallbackOnError: true}
	FailClosed = Policy{FallbackOnError: false}
)

func (p Policy) String() string {
	if p.FallbackOnError {
		return "fail-open"
	}
	return "fail-closed"
}

// Adapter performs the external calls.
type Adapter struct {
	client  llm.Client
	policy  Policy
	metrics *metrics.GatewayMetrics
	logger  *logging.Logger
	now     func() time.Time
}

type Option func(*Adapter)

func WithMetrics(m *metrics.GatewayMetrics) Option {
	return func(a *Adapter) { a.metrics = m }
}

func WithLogger(l *logging.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		if now != nil {
			a.now = now
		}
	}
}

// New builds an adapter. A nil client runs every call through the failure path.
func New(client llm.Client, policy Policy, opts ...Option) *Adapter {
	if client == nil {
		client = llm.Offline{}
	}
	a := &Adapter{
		client: client,
		policy: policy,
		logger: logging.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Policy returns the adapter's failure policy.
func (a *Adapter) Policy() Policy { return a.policy }

func invoke[T any](ctx context.Context, a *Adapter, call string, req llm.Request, parse func(string) (T, error), fallback func() T) (T, error) {
	ctx, span := tracer.Start(ctx, "gateway."+call)
	defer span.End()
	span.SetAttributes(
		attribute.String("vethome.gateway.call", call),
		attribute.String("vethome.gateway.policy", a.policy.String()),
	)

	start := a.now()
	var out T
	resp, err := a.client.Complete(ctx, req)
	if err != nil {
		err = fmt.Errorf("gateway: %s: %w: %w", call, ErrUnavailable, err)
	} else {
		out, err = parse(resp.Text)
	}
	elapsed := a.now().Sub(start).Seconds()

	if err == nil {
		a.metrics.ObserveCall(call, "ok", elapsed)
		return out, nil
	}

	span.RecordError(err)
	if ctxErr := ctx.Err(); ctxErr != nil {
		span.SetStatus(codes.Error, "context done")
		a.metrics.ObserveCall(call, "error", elapsed)
		var zero T
		return zero, ctxErr
	}
	if !a.policy.FallbackOnError {
		span.SetStatus(codes.Error, "call failed")
		a.metrics.ObserveCall(call, "error", elapsed)
		a.logger.Warn("gateway call failed", "call", call, "error", err)
		var zero T
		return zero, err
	}

	span.SetAttributes(attribute.Bool("vethome.gateway.fallback", true))
	a.metrics.ObserveCall(call, "fallback", elapsed)
	a.logger.Warn("gateway call failed, using fallback", "call", call, "error", err)
	return fallback(), nil
}

func jsonRequest(prompt string) llm.Request {
	req := llm.Prompt(prompt)
	req.System = []string{systemAuthority}
	req.JSON = true
	req.Temperature = 0
	return req
}

// ValidateCredentials checks the authority credentials.
func (a *Adapter) ValidateCredentials(ctx context.Context, check CredentialCheck) (CredentialResult, error) {
	return invoke(ctx, a, callValidateCredentials, jsonRequest(credentialsPrompt(check)), parseCredentialResult,
		func() CredentialResult {
			return CredentialResult{Valid: true, Token: "SIM_TOKEN_" + uuid.NewString()[:8], Fallback: true}
		})
}

// ValidateDocument submits an invoice, ticket or credit note.
func (a *Adapter) ValidateDocument(ctx context.Context, doc DocumentRequest) (DocumentResult, error) {
	return invoke(ctx, a, callValidateDocument, jsonRequest(documentPrompt(doc)), parseDocumentResult,
		func() DocumentResult {
			return DocumentResult{
				Status:   StatusAccepted,
				Message:  "Validado exitosamente",
				Key:      fmt.Sprintf("506%d", a.now().UnixMilli()),
				Fallback: true,
			}
		})
}

// SendAcceptance sends the receiver's acceptance message for a supplier invoice.
func (a *Adapter) SendAcceptance(ctx context.Context, req AcceptanceRequest) (AcceptanceResult, error) {
	return invoke(ctx, a, callSendAcceptance, jsonRequest(acceptancePrompt(req)), parseAcceptanceResult,
		func() AcceptanceResult {
			return AcceptanceResult{
				Success:           true,
				Consecutive:       fmt.Sprintf("MR-%d", a.now().UnixMilli()),
				AuthorityResponse: StatusAccepted,
				Fallback:          true,
			}
		})
}

// LookupIdentity resolves a national id to a registered full name. Failures
// under the fail-open policy yield NameLookupFailed as the name.
func (a *Adapter) LookupIdentity(ctx context.Context, nationalID string) (Identity, error) {
	id, err := invoke(ctx, a, callLookupIdentity, jsonRequest(identityPrompt(nationalID)), parseIdentity,
		func() Identity {
			return Identity{FullName: NameLookupFailed, Fallback: true}
		})
	id.NationalID = nationalID
	return id, err
}

// SearchCABYS searches the goods and services catalog. Fallback is an empty list.
func (a *Adapter) SearchCABYS(ctx context.Context, query string) ([]CABYSCode, error) {
	return invoke(ctx, a, callSearchCABYS, jsonRequest(cabysPrompt(query)), parseCABYSCodes,
		func() []CABYSCode { return []CABYSCode{} })
}

// BatchMessageRequest describes one appointment notification.
type BatchMessageRequest struct {
	DoctorName string
	ClinicName string
	OwnerName  string
	PetName    string
	Reason     string
	Date       string
	Time       string
}

// GenerateBatchMessage writes one appointment notification of at most 160 characters.
func (a *Adapter) GenerateBatchMessage(ctx context.Context, req BatchMessageRequest) (Text, error) {
	return invoke(ctx, a, callBatchMessage, llm.Prompt(batchMessagePrompt(req)), parseText(callBatchMessage, batchMessageLimit),
		func() Text {
			return Text{
				Value:    truncateRunes(fmt.Sprintf("Hola %s, recordatorio de cita para %s el %s.", req.OwnerName, req.PetName, req.Date), batchMessageLimit),
				Fallback: true,
			}
		})
}

// ReminderRequest describes a portal reminder.
type ReminderRequest struct {
	PetName string
	Reason  string
}

// GenerateReminderText writes a portal reminder of at most 100 characters.
func (a *Adapter) GenerateReminderText(ctx context.Context, req ReminderRequest) (Text, error) {
	return invoke(ctx, a, callReminderText, llm.Prompt(reminderPrompt(req)), parseText(callReminderText, reminderLimit),
		func() Text {
			return Text{
				Value:    truncateRunes(fmt.Sprintf("Recordatorio: %s tiene pendiente su %s.", req.PetName, req.Reason), reminderLimit),
				Fallback: true,
			}
		})
}
