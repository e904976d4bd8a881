package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/vethome-platform/pkg/logging"
)

var fixedNow = time.Date(2025, 6, 24, 15, 0, 0, 0, time.UTC)

func newTestService(store Store) *Service {
	svc := NewService(store, logging.NewWithWriter("error", &bytes.Buffer{}))
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestRecordFillsIDAndTimestamp(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(store)

	svc.Record(context.Background(), Event{
		Type:         EventDocumentAccepted,
		DocumentType: "FE",
		DocumentID:   "inv-1",
	}, &Details{Total: "11300.00", Fallback: true})

	events, err := svc.Events(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].ID)
	assert.Equal(t, fixedNow, events[0].CreatedAt)

	var d Details
	require.NoError(t, json.Unmarshal(events[0].Details, &d))
	assert.Equal(t, "11300.00", d.Total)
	assert.True(t, d.Fallback)
}

func TestRecordOnNilServiceIsNoop(t *testing.T) {
	var svc *Service
	svc.Record(context.Background(), Event{Type: EventPaymentRegistered}, nil)
}

type failingStore struct{}

func (failingStore) Append(context.Context, Event) error { return errors.New("disk full") }

func (failingStore) Query(context.Context, Filter) ([]Event, error) { return nil, nil }

func TestRecordSwallowsStoreErrors(t *testing.T) {
	var buf bytes.Buffer
	svc := NewService(failingStore{}, logging.NewWithWriter("info", &buf))
	svc.Record(context.Background(), Event{Type: EventPaymentRegistered, DocumentID: "inv-1"}, nil)
	assert.Contains(t, buf.String(), "failed to record audit event")
}

func TestMemoryStoreFiltersNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for i, typ := range []EventType{EventDocumentAccepted, EventPaymentRegistered, EventDocumentAccepted} {
		require.NoError(t, store.Append(ctx, Event{
			ID:         string(rune('a' + i)),
			Type:       typ,
			DocumentID: "inv-1",
			CreatedAt:  fixedNow.Add(time.Duration(i) * time.Hour),
		}))
	}

	events, err := store.Query(ctx, Filter{Type: EventDocumentAccepted})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "c", events[0].ID)
	assert.Equal(t, "a", events[1].ID)

	events, err = store.Query(ctx, Filter{From: fixedNow.Add(30 * time.Minute), Limit: 1})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "c", events[0].ID)
}

func TestEventsRejectsInvertedRange(t *testing.T) {
	svc := newTestService(NewMemoryStore())
	_, err := svc.Events(context.Background(), Filter{From: fixedNow, To: fixedNow.Add(-time.Hour)})
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestPostgresStoreAppend(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO audit_events").
		WithArgs("e1", "document.accepted", "FE", "inv-1", "50624", "ok", pgxmock.AnyArg(), fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewPostgresStore(mock)
	err = store.Append(context.Background(), Event{
		ID: "e1", Type: EventDocumentAccepted, DocumentType: "FE", DocumentID: "inv-1",
		Consecutive: "50624", Message: "ok", CreatedAt: fixedNow,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreQueryBuildsFilter(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"id", "type", "document_type", "document_id", "consecutive", "message", "details", "created_at"}).
		AddRow("e1", "document.payment_registered", "FE", "inv-1", "", "", []byte(`{"payment_status":"paid"}`), fixedNow)
	mock.ExpectQuery(`FROM audit_events\s+WHERE TRUE AND type = \$1 AND document_id = \$2 ORDER BY created_at DESC LIMIT \$3`).
		WithArgs("document.payment_registered", "inv-1", 10).
		WillReturnRows(rows)

	store := NewPostgresStore(mock)
	events, err := store.Query(context.Background(), Filter{Type: EventPaymentRegistered, DocumentID: "inv-1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventPaymentRegistered, events[0].Type)
	assert.JSONEq(t, `{"payment_status":"paid"}`, string(events[0].Details))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlerList(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(store)
	svc.Record(context.Background(), Event{Type: EventCreditNoteIssued, DocumentType: "NC", DocumentID: "nc-1"}, nil)

	r := NewHandler(svc, nil).Routes()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?type=document.credit_note_issued", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Events []Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Events, 1)
	assert.Equal(t, "nc-1", body.Events[0].DocumentID)

	for _, q := range []string{"/?from=yesterday", "/?limit=ten", "/?limit=-1"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, q, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}
