package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/storefront-orders/internal/apperr"
	"github.com/ariefcatur/storefront-orders/internal/inventory"
)

const productColumns = `id, code, name, category, price::text, description,
	available_quantity, in_stock, version, created_at, updated_at`

func scanProduct(row pgx.Row) (inventory.Product, error) {
	var p inventory.Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Category, &p.Price, &p.Description,
		&p.AvailableQuantity, &p.InStock, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func findProduct(ctx context.Context, q querier, id string) (inventory.Product, error) {
	p, err := scanProduct(q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return inventory.Product{}, apperr.NotFound("postgres.FindProductByID", "product %s not found", id)
		}
		return inventory.Product{}, mapErr("postgres.FindProductByID", err)
	}
	return p, nil
}

func listProducts(ctx context.Context, q querier) ([]inventory.Product, error) {
	const op = "postgres.ListProducts"
	rows, err := q.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY code`)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer rows.Close()

	var out []inventory.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, mapErr(op, err)
		}
		out = append(out, p)
	}
	return out, mapErr(op, rows.Err())
}

func (s *Store) FindProductByID(ctx context.Context, id string) (inventory.Product, error) {
	return findProduct(ctx, s.pool, id)
}

func (s *Store) ListProducts(ctx context.Context) ([]inventory.Product, error) {
	return listProducts(ctx, s.pool)
}

func (t *tx) FindProductByID(ctx context.Context, id string) (inventory.Product, error) {
	return findProduct(ctx, t.q, id)
}

func (t *tx) ListProducts(ctx context.Context) ([]inventory.Product, error) {
	return listProducts(ctx, t.q)
}

// LockProducts takes the row locks in id order so that two transactions
// touching the same products cannot deadlock.
func (t *tx) LockProducts(ctx context.Context, ids []string) (map[string]inventory.Product, error) {
	const op = "postgres.LockProducts"
	rows, err := t.q.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer rows.Close()

	out := make(map[string]inventory.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, mapErr(op, err)
		}
		out[p.ID] = p
	}
	return out, mapErr(op, rows.Err())
}

func (t *tx) WriteLevel(ctx context.Context, l inventory.Level) error {
	const op = "postgres.WriteLevel"
	ct, err := t.q.Exec(ctx, `
		UPDATE products
		SET available_quantity=$2, in_stock=$3, version=$4, updated_at=$5
		WHERE id=$1 AND version=$6`,
		l.ProductID(), l.Quantity(), l.InStock(), l.NextVersion(), l.UpdatedAt(), l.PrevVersion())
	if err != nil {
		return mapErr(op, err)
	}
	if ct.RowsAffected() != 1 {
		return apperr.Conflict(op, apperr.CodeVersionMismatch,
			"product %s changed concurrently (expected version %d)", l.ProductID(), l.PrevVersion())
	}
	return nil
}

func (t *tx) AppendMovement(ctx context.Context, m inventory.Movement) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO stock_movements(id, product_id, order_ref, delta, reason, note, quantity_after, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		m.ID, m.ProductID, m.OrderRef, m.Delta, string(m.Reason), m.Note, m.QuantityAfter, m.CreatedAt)
	return mapErr("postgres.AppendMovement", err)
}

func (t *tx) InsertProduct(ctx context.Context, p inventory.Product, l inventory.Level) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO products(id, code, name, category, price, description,
			available_quantity, in_stock, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		p.ID, p.Code, p.Name, string(p.Category), p.Price, p.Description,
		l.Quantity(), l.InStock(), l.NextVersion(), p.CreatedAt, l.UpdatedAt())
	return mapErr("postgres.InsertProduct", err)
}
