package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hospitalms/backoffice/internal/platform/db"
)

// Notification is one event surfaced to back-office operators. Category maps
// to the screen the event belongs to, so the UI can badge per menu.
type Notification struct {
	ID        uuid.UUID              `db:"id" json:"id"`
	Category  string                 `db:"category" json:"category"`
	Title     string                 `db:"title" json:"title"`
	Message   string                 `db:"message" json:"message"`
	Meta      map[string]interface{} `db:"meta" json:"meta,omitempty"`
	IsRead    bool                   `db:"is_read" json:"is_read"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
}

// CategoryCount is the unread tally for one category.
type CategoryCount struct {
	Category string `json:"category"`
	Unread   int    `json:"unread"`
}

type Store interface {
	Create(ctx context.Context, n *Notification) error
	List(ctx context.Context, category string, unreadOnly bool, limit, offset int) ([]*Notification, int, error)
	UnreadCounts(ctx context.Context) (int, []CategoryCount, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
	MarkCategoryRead(ctx context.Context, category string) error
}

// -- PG Store --

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type storePG struct{ pool *pgxpool.Pool }

func NewStorePG(pool *pgxpool.Pool) Store {
	return &storePG{pool: pool}
}

func (s *storePG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

const cols = `id, category, title, message, meta, is_read, created_at`

func (s *storePG) Create(ctx context.Context, n *Notification) error {
	n.ID = uuid.New()
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO notification (id, category, title, message, meta)
		VALUES ($1,$2,$3,$4,$5)`,
		n.ID, n.Category, n.Title, n.Message, n.Meta)
	return err
}

func (s *storePG) List(ctx context.Context, category string, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	where := ` WHERE ($1 = '' OR category = $1) AND (NOT $2 OR NOT is_read)`
	var total int
	if err := s.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM notification`+where, category, unreadOnly).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.conn(ctx).Query(ctx,
		`SELECT `+cols+` FROM notification`+where+` ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		category, unreadOnly, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.Category, &n.Title, &n.Message, &n.Meta,
			&n.IsRead, &n.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &n)
	}
	return items, total, rows.Err()
}

func (s *storePG) UnreadCounts(ctx context.Context) (int, []CategoryCount, error) {
	rows, err := s.conn(ctx).Query(ctx, `
		SELECT category, COUNT(*) FROM notification
		WHERE NOT is_read GROUP BY category ORDER BY category`)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()
	total := 0
	var counts []CategoryCount
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.Category, &c.Unread); err != nil {
			return 0, nil, err
		}
		total += c.Unread
		counts = append(counts, c)
	}
	return total, counts, rows.Err()
}

func (s *storePG) MarkRead(ctx context.Context, id uuid.UUID) error {
	tag, err := s.conn(ctx).Exec(ctx,
		`UPDATE notification SET is_read = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *storePG) MarkCategoryRead(ctx context.Context, category string) error {
	_, err := s.conn(ctx).Exec(ctx,
		`UPDATE notification SET is_read = TRUE WHERE category = $1 AND NOT is_read`, category)
	return err
}

// -- Service --

// Service fans workflow events into the store. Notify is called after the
// triggering transaction commits, so a failed insert only costs the badge,
// never the stock movement; failures are logged and swallowed.
type Service struct {
	store Store
	log   zerolog.Logger
}

func NewService(store Store, log zerolog.Logger) *Service {
	return &Service{store: store, log: log}
}

func (s *Service) Notify(ctx context.Context, category, title, message string, meta map[string]interface{}) {
	n := &Notification{Category: category, Title: title, Message: message, Meta: meta}
	if err := s.store.Create(ctx, n); err != nil {
		s.log.Warn().Err(err).
			Str("category", category).
			Str("title", title).
			Msg("failed to store notification")
	}
}

func (s *Service) List(ctx context.Context, category string, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	return s.store.List(ctx, category, unreadOnly, limit, offset)
}

func (s *Service) UnreadCounts(ctx context.Context) (int, []CategoryCount, error) {
	return s.store.UnreadCounts(ctx)
}

func (s *Service) MarkRead(ctx context.Context, id uuid.UUID) error {
	return s.store.MarkRead(ctx, id)
}

func (s *Service) MarkCategoryRead(ctx context.Context, category string) error {
	return s.store.MarkCategoryRead(ctx, category)
}
