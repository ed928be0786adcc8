package dispense

import (
	"context"
	"fmt"

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

const dispenseCols = `id, status, note, total_price, completed_at, created_at, updated_at`
const itemCols = `id, dispense_id, drug_id, quantity, price`

func (r *repoPG) scanDispense(row pgx.Row) (*Dispense, error) {
	var d Dispense
	err := row.Scan(&d.ID, &d.Status, &d.Note, &d.TotalPrice, &d.CompletedAt,
		&d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func (r *repoPG) Create(ctx context.Context, d *Dispense) error {
	d.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO dispense (id, status, note, total_price)
		VALUES ($1,$2,$3,$4)`,
		d.ID, d.Status, d.Note, d.TotalPrice)
	if err != nil {
		return err
	}
	return r.insertItems(ctx, d.ID, d.Items)
}

func (r *repoPG) insertItems(ctx context.Context, dispenseID uuid.UUID, items []*DispenseItem) error {
	for _, it := range items {
		it.ID = uuid.New()
		it.DispenseID = dispenseID
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO dispense_item (id, dispense_id, drug_id, quantity, price)
			VALUES ($1,$2,$3,$4,$5)`,
			it.ID, it.DispenseID, it.DrugID, it.Quantity, it.Price)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Dispense, error) {
	d, err := r.scanDispense(r.conn(ctx).QueryRow(ctx,
		`SELECT `+dispenseCols+` FROM dispense WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+itemCols+` FROM dispense_item WHERE dispense_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it DispenseItem
		if err := rows.Scan(&it.ID, &it.DispenseID, &it.DrugID, &it.Quantity, &it.Price); err != nil {
			return nil, err
		}
		d.Items = append(d.Items, &it)
	}
	return d, rows.Err()
}

func (r *repoPG) List(ctx context.Context, status Status, limit, offset int) ([]*Dispense, int, error) {
	where := ``
	var whereArgs []interface{}
	if status != "" {
		where = ` WHERE status = $1`
		whereArgs = append(whereArgs, status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM dispense`+where, whereArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(whereArgs)
	query := fmt.Sprintf(`SELECT `+dispenseCols+` FROM dispense`+where+
		` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(whereArgs, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Dispense
	for rows.Next() {
		d, err := r.scanDispense(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	completed := status == StatusCompleted
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE dispense
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

func (r *repoPG) UpdateTotals(ctx context.Context, d *Dispense) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE dispense SET note = $2, total_price = $3, updated_at = NOW()
		WHERE id = $1`,
		d.ID, d.Note, d.TotalPrice)
	return err
}

func (r *repoPG) ReplaceItems(ctx context.Context, dispenseID uuid.UUID, items []*DispenseItem) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM dispense_item WHERE dispense_id = $1`, dispenseID)
	if err != nil {
		return err
	}
	return r.insertItems(ctx, dispenseID, items)
}

func (r *repoPG) SaveAllocations(ctx context.Context, itemID uuid.UUID, allocs []*Allocation) error {
	for _, a := range allocs {
		a.ID = uuid.New()
		a.DispenseItemID = itemID
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO dispense_allocation (id, dispense_item_id, lot_id, quantity)
			VALUES ($1,$2,$3,$4)`,
			a.ID, a.DispenseItemID, a.LotID, a.Quantity)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) ListAllocations(ctx context.Context, itemID uuid.UUID) ([]*Allocation, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, dispense_item_id, lot_id, quantity
		FROM dispense_allocation WHERE dispense_item_id = $1 ORDER BY id`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var allocs []*Allocation
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.ID, &a.DispenseItemID, &a.LotID, &a.Quantity); err != nil {
			return nil, err
		}
		allocs = append(allocs, &a)
	}
	return allocs, rows.Err()
}

func (r *repoPG) DeleteAllocations(ctx context.Context, itemID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM dispense_allocation WHERE dispense_item_id = $1`, itemID)
	return err
}
