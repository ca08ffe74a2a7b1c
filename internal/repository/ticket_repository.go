package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/maintenance-voice/internal/domain"
)

// DBTX is the subset of pgxpool.Pool the repositories use.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TicketFilter narrows caller ticket listings.
type TicketFilter struct {
	CallerID   *int64
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	Categories []domain.TicketCategory
	Limit      int
	Offset     int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	ListByCaller(ctx context.Context, callerID int64, limit, offset int) ([]domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	Update(ctx context.Context, ticket *domain.Ticket) error
}

type ticketRepository struct {
	db DBTX
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db DBTX) TicketRepository {
	return &ticketRepository{db: db}
}

const ticketColumns = `id, user_id, title, description, category, priority, status, image_url, assigned_to, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO maintenance_requests (user_id, title, description, category, priority, status, image_url)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		ticket.CallerID,
		ticket.Title,
		ticket.Description,
		string(ticket.Category),
		string(ticket.Priority),
		string(ticket.Status),
		nullableString(ticket.ImageRef),
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM maintenance_requests WHERE id=$1`
	ticket, err := scanTicket(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// Update writes status and assignee and refreshes ticket from the stored row.
func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	query := `
        UPDATE maintenance_requests
        SET status=$2, assigned_to=$3, updated_at=NOW()
        WHERE id=$1
        RETURNING ` + ticketColumns
	updated, err := scanTicket(r.db.QueryRow(ctx, query, ticket.ID, string(ticket.Status), ticket.AssigneeID))
	if err != nil {
		return err
	}
	*ticket = *updated
	return nil
}

func (r *ticketRepository) ListByCaller(ctx context.Context, callerID int64, limit, offset int) ([]domain.Ticket, error) {
	return r.ListWithFilter(ctx, TicketFilter{
		CallerID: &callerID,
		Limit:    limit,
		Offset:   offset,
	})
}

// ListWithFilter returns matching tickets, newest first.
func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CallerID != nil {
		args = append(args, *filter.CallerID)
		clauses = append(clauses, fmt.Sprintf("user_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, inClause("status", toStrings(filter.Statuses), &args))
	}
	if len(filter.Priorities) > 0 {
		clauses = append(clauses, inClause("priority", toStrings(filter.Priorities), &args))
	}
	if len(filter.Categories) > 0 {
		clauses = append(clauses, inClause("category", toStrings(filter.Categories), &args))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM maintenance_requests WHERE %s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func inClause(column string, values []string, args *[]any) string {
	placeholders := make([]string, len(values))
	for i, v := range values {
		*args = append(*args, v)
		placeholders[i] = fmt.Sprintf("$%d", len(*args))
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ","))
}

func toStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

func nullableString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket                     domain.Ticket
		category, priority, status string
		imageURL                   *string
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.CallerID,
		&ticket.Title,
		&ticket.Description,
		&category,
		&priority,
		&status,
		&imageURL,
		&ticket.AssigneeID,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	ticket.Category = domain.TicketCategory(category)
	ticket.Priority = domain.TicketPriority(priority)
	ticket.Status = domain.TicketStatus(status)
	if imageURL != nil {
		ticket.ImageRef = *imageURL
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
