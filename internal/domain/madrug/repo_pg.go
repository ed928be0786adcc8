package madrug

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hospitalms/backoffice/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const maDrugCols = `id, request_number, status, note, total_price, completed_at, created_at, updated_at`
const itemCols = `id, ma_drug_id, drug_id, quantity, received_quantity, expiry_date, price`

func (r *repoPG) scanMaDrug(row pgx.Row) (*MaDrug, error) {
	var m MaDrug
	err := row.Scan(&m.ID, &m.RequestNumber, &m.Status, &m.Note, &m.TotalPrice,
		&m.CompletedAt, &m.CreatedAt, &m.UpdatedAt)
	return &m, err
}

func (r *repoPG) Create(ctx context.Context, m *MaDrug) error {
	m.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO ma_drug (id, request_number, status, note, total_price)
		VALUES ($1,$2,$3,$4,$5)`,
		m.ID, m.RequestNumber, m.Status, m.Note, m.TotalPrice)
	if err != nil {
		return err
	}
	return r.insertItems(ctx, m.ID, m.Items)
}

func (r *repoPG) insertItems(ctx context.Context, maDrugID uuid.UUID, items []*MaDrugItem) error {
	for _, it := range items {
		it.ID = uuid.New()
		it.MaDrugID = maDrugID
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO ma_drug_item (id, ma_drug_id, drug_id, quantity, received_quantity, expiry_date, price)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			it.ID, it.MaDrugID, it.DrugID, it.Quantity, it.ReceivedQuantity, it.ExpiryDate, it.Price)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*MaDrug, error) {
	m, err := r.scanMaDrug(r.conn(ctx).QueryRow(ctx,
		`SELECT `+maDrugCols+` FROM ma_drug WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+itemCols+` FROM ma_drug_item WHERE ma_drug_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it MaDrugItem
		if err := rows.Scan(&it.ID, &it.MaDrugID, &it.DrugID, &it.Quantity,
			&it.ReceivedQuantity, &it.ExpiryDate, &it.Price); err != nil {
			return nil, err
		}
		m.Items = append(m.Items, &it)
	}
	return m, rows.Err()
}

func (r *repoPG) List(ctx context.Context, status Status, limit, offset int) ([]*MaDrug, int, error) {
	where := ``
	var whereArgs []interface{}
	if status != "" {
		where = ` WHERE status = $1`
		whereArgs = append(whereArgs, status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM ma_drug`+where, whereArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(whereArgs)
	query := fmt.Sprintf(`SELECT `+maDrugCols+` FROM ma_drug`+where+
		` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(whereArgs, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*MaDrug
	for rows.Next() {
		m, err := r.scanMaDrug(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	completed := status == StatusCompleted
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE ma_drug
		SET status = $2,
			completed_at = CASE WHEN $3 THEN NOW() ELSE completed_at END,
			updated_at = NOW()
		WHERE id = $1`,
		id, status, completed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) UpdateTotals(ctx context.Context, m *MaDrug) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE ma_drug SET note = $2, total_price = $3, updated_at = NOW()
		WHERE id = $1`,
		m.ID, m.Note, m.TotalPrice)
	return err
}

func (r *repoPG) ReplaceItems(ctx context.Context, maDrugID uuid.UUID, items []*MaDrugItem) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM ma_drug_item WHERE ma_drug_id = $1`, maDrugID)
	if err != nil {
		return err
	}
	return r.insertItems(ctx, maDrugID, items)
}

func (r *repoPG) UpdateItem(ctx context.Context, it *MaDrugItem) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE ma_drug_item
		SET quantity = $2, received_quantity = $3, expiry_date = $4, price = $5
		WHERE id = $1`,
		it.ID, it.Quantity, it.ReceivedQuantity, it.ExpiryDate, it.Price)
	return err
}

func (r *repoPG) CountCreatedOn(ctx context.Context, day time.Time) (int, error) {
	var count int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM ma_drug WHERE created_at::date = $1::date`, day).Scan(&count)
	return count, err
}
