package drug

import (
	"context"
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

// ---- Drug Repo ----

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

const drugCols = `id, working_code, name, unit, quantity, price, created_at, updated_at`

func (r *repoPG) scanDrug(row pgx.Row) (*Drug, error) {
	var d Drug
	err := row.Scan(&d.ID, &d.WorkingCode, &d.Name, &d.Unit, &d.Quantity, &d.Price,
		&d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func (r *repoPG) Create(ctx context.Context, d *Drug) error {
	d.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO drug (id, working_code, name, unit, quantity, price)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		d.ID, d.WorkingCode, d.Name, d.Unit, d.Quantity, d.Price)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Drug, error) {
	return r.scanDrug(r.conn(ctx).QueryRow(ctx, `SELECT `+drugCols+` FROM drug WHERE id = $1`, id))
}

// GetForUpdate locks the drug row for the remainder of the enclosing
// transaction. Stock checks and deductions against the same drug serialize
// on this lock.
func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Drug, error) {
	return r.scanDrug(r.conn(ctx).QueryRow(ctx, `SELECT `+drugCols+` FROM drug WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) Update(ctx context.Context, d *Drug) error {
	// Quantity is deliberately absent: it moves only through AdjustQuantity.
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE drug SET working_code=$2, name=$3, unit=$4, price=$5, updated_at=NOW()
		WHERE id = $1`,
		d.ID, d.WorkingCode, d.Name, d.Unit, d.Price)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM drug WHERE id = $1`, id)
	return err
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Drug, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM drug`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+drugCols+` FROM drug ORDER BY working_code ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Drug
	for rows.Next() {
		d, err := r.scanDrug(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, nil
}

// ListWithNearestExpiry annotates each drug with the soonest expiry date
// among its active lots.
func (r *repoPG) ListWithNearestExpiry(ctx context.Context, limit, offset int) ([]*Drug, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM drug`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT d.id, d.working_code, d.name, d.unit, d.quantity, d.price, d.created_at, d.updated_at,
			(SELECT MIN(l.expiry_date) FROM drug_lot l
			 WHERE l.drug_id = d.id AND l.quantity > 0 AND l.is_active) AS nearest_expiry
		FROM drug d
		ORDER BY d.working_code ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Drug
	for rows.Next() {
		var d Drug
		if err := rows.Scan(&d.ID, &d.WorkingCode, &d.Name, &d.Unit, &d.Quantity, &d.Price,
			&d.CreatedAt, &d.UpdatedAt, &d.NearestExpiry); err != nil {
			return nil, 0, err
		}
		items = append(items, &d)
	}
	return items, total, nil
}

// AdjustQuantity applies a signed delta to the aggregate quantity. The guard
// in the WHERE clause makes a would-be-negative result a no-op, reported as
// applied=false, so the invariant holds even under concurrent writers.
func (r *repoPG) AdjustQuantity(ctx context.Context, id uuid.UUID, delta int64) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE drug SET quantity = quantity + $2, updated_at = NOW()
		WHERE id = $1 AND quantity + $2 >= 0`,
		id, delta)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ---- DrugLot Repo ----

type lotRepoPG struct{ pool *pgxpool.Pool }

func NewLotRepoPG(pool *pgxpool.Pool) LotRepository {
	return &lotRepoPG{pool: pool}
}

func (r *lotRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const lotCols = `id, drug_id, lot_number, quantity, expiry_date, price, is_active, ma_drug_item_id, created_at, updated_at`

func (r *lotRepoPG) scanLot(row pgx.Row) (*DrugLot, error) {
	var l DrugLot
	err := row.Scan(&l.ID, &l.DrugID, &l.LotNumber, &l.Quantity, &l.ExpiryDate, &l.Price,
		&l.IsActive, &l.MaDrugItemID, &l.CreatedAt, &l.UpdatedAt)
	return &l, err
}

func (r *lotRepoPG) Create(ctx context.Context, lot *DrugLot) error {
	lot.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO drug_lot (id, drug_id, lot_number, quantity, expiry_date, price, is_active, ma_drug_item_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		lot.ID, lot.DrugID, lot.LotNumber, lot.Quantity, lot.ExpiryDate, lot.Price,
		lot.IsActive, lot.MaDrugItemID)
	return err
}

func (r *lotRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*DrugLot, error) {
	return r.scanLot(r.conn(ctx).QueryRow(ctx, `SELECT `+lotCols+` FROM drug_lot WHERE id = $1`, id))
}

func (r *lotRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*DrugLot, error) {
	return r.scanLot(r.conn(ctx).QueryRow(ctx, `SELECT `+lotCols+` FROM drug_lot WHERE id = $1 FOR UPDATE`, id))
}

func (r *lotRepoPG) GetBySourceItem(ctx context.Context, maDrugItemID uuid.UUID) (*DrugLot, error) {
	return r.scanLot(r.conn(ctx).QueryRow(ctx, `SELECT `+lotCols+` FROM drug_lot WHERE ma_drug_item_id = $1`, maDrugItemID))
}

// ListActiveByDrug returns depletable lots in FEFO order. The id tiebreak
// keeps the ordering deterministic for lots sharing an expiry date. Lot rows
// are only mutated while the owning drug row is locked, so no row lock is
// taken here.
func (r *lotRepoPG) ListActiveByDrug(ctx context.Context, drugID uuid.UUID) ([]*DrugLot, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+lotCols+` FROM drug_lot
		WHERE drug_id = $1 AND quantity > 0 AND is_active
		ORDER BY expiry_date ASC, id ASC`, drugID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lots []*DrugLot
	for rows.Next() {
		l, err := r.scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, l)
	}
	return lots, rows.Err()
}

func (r *lotRepoPG) ListExpiringWithin(ctx context.Context, cutoff time.Time) ([]*DrugLot, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+lotCols+` FROM drug_lot
		WHERE quantity > 0 AND is_active AND expiry_date <= $1
		ORDER BY expiry_date ASC, id ASC`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lots []*DrugLot
	for rows.Next() {
		l, err := r.scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, l)
	}
	return lots, rows.Err()
}

// Adjust applies a signed delta to a lot. A lot drained to zero is
// deactivated; a reversal that restores quantity reactivates it.
func (r *lotRepoPG) Adjust(ctx context.Context, id uuid.UUID, delta int64) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE drug_lot
		SET quantity = quantity + $2,
			is_active = (quantity + $2 > 0),
			updated_at = NOW()
		WHERE id = $1 AND quantity + $2 >= 0`,
		id, delta)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
