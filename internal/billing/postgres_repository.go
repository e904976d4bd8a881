package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx pool for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresRepository persists billing documents. Line items are stored as JSONB.
type PostgresRepository struct {
	db DB
}

func NewPostgresRepository(db DB) *PostgresRepository {
	if db == nil {
		panic("billing: db required")
	}
	return &PostgresRepository{db: db}
}

const invoiceColumns = `id, consecutive, client_id, client_name, date, items, subtotal, tax, total,
	type, status, payment_status, sale_condition, payment_method, credit_term,
	reference_id, reference_consecutive, void_reason, credit_note_reason, authority_message`

func (r *PostgresRepository) CreateInvoice(ctx context.Context, inv *Invoice) error {
	return insertInvoice(ctx, r.db, inv)
}

func insertInvoice(ctx context.Context, db execer, inv *Invoice) error {
	items, err := json.Marshal(inv.Items)
	if err != nil {
		return fmt.Errorf("billing: marshal items: %w", err)
	}
	_, err = db.Exec(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		inv.ID, inv.Consecutive, inv.ClientID, inv.ClientName, inv.Date, items,
		inv.Subtotal, inv.Tax, inv.Total,
		string(inv.Type), string(inv.Status), string(inv.PaymentStatus),
		string(inv.SaleCondition), string(inv.PaymentMethod), inv.CreditTerm,
		inv.ReferenceID, inv.ReferenceConsecutive, inv.VoidReason, string(inv.CreditNoteReason), inv.AuthorityMessage,
	)
	if isUniqueViolation(err, "invoices_consecutive_key") {
		return fmt.Errorf("%w: %s", ErrDuplicateConsecutive, inv.Consecutive)
	}
	if err != nil {
		return fmt.Errorf("billing: insert invoice: %w", err)
	}
	return nil
}

const uniqueViolation = "23505"

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraint
}

func (r *PostgresRepository) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("billing: get invoice: %w", err)
	}
	return inv, nil
}

func (r *PostgresRepository) ListInvoices(ctx context.Context) ([]*Invoice, error) {
	rows, err := r.db.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices ORDER BY date DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("billing: list invoices: %w", err)
	}
	defer rows.Close()

	var out []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("billing: scan invoice: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) VoidWithCreditNote(ctx context.Context, originalID string, nc *Invoice) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("billing: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE invoices SET status = 'voided', void_reason = $2
		WHERE id = $1 AND status = 'accepted' AND type <> 'NC'`,
		originalID, nc.VoidReason,
	)
	if err != nil {
		return fmt.Errorf("billing: void invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invoices WHERE id = $1)`, originalID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("billing: check invoice: %w", err)
		}
		if !exists {
			return ErrInvoiceNotFound
		}
		return ErrNotVoidable
	}

	if err := insertInvoice(ctx, tx, nc); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("billing: commit void: %w", err)
	}
	return nil
}

func (r *PostgresRepository) MarkPaid(ctx context.Context, id string) (*Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRow(ctx, `
		UPDATE invoices SET payment_status = 'paid'
		WHERE id = $1
		RETURNING `+invoiceColumns, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("billing: mark paid: %w", err)
	}
	return inv, nil
}

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	var items []byte
	var typ, status, payment, sale, method, reason string
	if err := row.Scan(
		&inv.ID, &inv.Consecutive, &inv.ClientID, &inv.ClientName, &inv.Date, &items,
		&inv.Subtotal, &inv.Tax, &inv.Total,
		&typ, &status, &payment, &sale, &method, &inv.CreditTerm,
		&inv.ReferenceID, &inv.ReferenceConsecutive, &inv.VoidReason, &reason, &inv.AuthorityMessage,
	); err != nil {
		return nil, err
	}
	inv.Type = DocumentType(typ)
	inv.Status = Status(status)
	inv.PaymentStatus = PaymentStatus(payment)
	inv.SaleCondition = SaleCondition(sale)
	inv.PaymentMethod = PaymentMethod(method)
	inv.CreditNoteReason = CreditNoteReason(reason)
	if err := decodeItems(items, &inv.Items); err != nil {
		return nil, err
	}
	return &inv, nil
}

const quoteColumns = `id, quote_number, client_id, client_name, date, expiry_date, items, subtotal, tax, total, status`

func (r *PostgresRepository) CreateQuote(ctx context.Context, q *Quote) error {
	items, err := json.Marshal(q.Items)
	if err != nil {
		return fmt.Errorf("billing: marshal items: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO quotes (`+quoteColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		q.ID, q.QuoteNumber, q.ClientID, q.ClientName, q.Date, q.ExpiryDate, items,
		q.Subtotal, q.Tax, q.Total, string(q.Status),
	)
	if err != nil {
		return fmt.Errorf("billing: insert quote: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListQuotes(ctx context.Context) ([]*Quote, error) {
	rows, err := r.db.Query(ctx, `SELECT `+quoteColumns+` FROM quotes ORDER BY date DESC, quote_number DESC`)
	if err != nil {
		return nil, fmt.Errorf("billing: list quotes: %w", err)
	}
	defer rows.Close()

	var out []*Quote
	for rows.Next() {
		var q Quote
		var items []byte
		var status string
		if err := rows.Scan(&q.ID, &q.QuoteNumber, &q.ClientID, &q.ClientName, &q.Date, &q.ExpiryDate,
			&items, &q.Subtotal, &q.Tax, &q.Total, &status); err != nil {
			return nil, fmt.Errorf("billing: scan quote: %w", err)
		}
		q.Status = QuoteStatus(status)
		if err := decodeItems(items, &q.Items); err != nil {
			return nil, err
		}
		out = append(out, &q)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CountQuotes(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM quotes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("billing: count quotes: %w", err)
	}
	return n, nil
}

const expenseColumns = `id, supplier_id, supplier_name, key, total, tax, status, acceptance_code, acceptance_consecutive, accepted_at, created_at`

func (r *PostgresRepository) CreateExpense(ctx context.Context, e *Expense) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO expenses (`+expenseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.SupplierID, e.SupplierName, e.Key, e.Total, e.Tax, string(e.Status),
		string(e.AcceptanceCode), e.AcceptanceConsecutive, e.AcceptedAt, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("billing: insert expense: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetExpense(ctx context.Context, id string) (*Expense, error) {
	e, err := scanExpense(r.db.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExpenseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("billing: get expense: %w", err)
	}
	return e, nil
}

func (r *PostgresRepository) ListExpenses(ctx context.Context) ([]*Expense, error) {
	rows, err := r.db.Query(ctx, `SELECT `+expenseColumns+` FROM expenses ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("billing: list expenses: %w", err)
	}
	defer rows.Close()

	var out []*Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("billing: scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) UpdateExpense(ctx context.Context, e *Expense) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE expenses
		SET status = $2, acceptance_code = $3, acceptance_consecutive = $4, accepted_at = $5
		WHERE id = $1`,
		e.ID, string(e.Status), string(e.AcceptanceCode), e.AcceptanceConsecutive, e.AcceptedAt,
	)
	if err != nil {
		return fmt.Errorf("billing: update expense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExpenseNotFound
	}
	return nil
}

func scanExpense(row pgx.Row) (*Expense, error) {
	var e Expense
	var status, code string
	if err := row.Scan(&e.ID, &e.SupplierID, &e.SupplierName, &e.Key, &e.Total, &e.Tax,
		&status, &code, &e.AcceptanceConsecutive, &e.AcceptedAt, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Status = ExpenseStatus(status)
	e.AcceptanceCode = AcceptanceCode(code)
	return &e, nil
}

func decodeItems(raw []byte, dst *[]LineItem) error {
	*dst = []LineItem{}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("billing: decode items: %w", err)
	}
	return nil
}
