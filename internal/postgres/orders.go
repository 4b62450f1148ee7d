package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/storefront-orders/internal/apperr"
	"github.com/ariefcatur/storefront-orders/internal/orders"
)

const orderColumns = `id, ref, customer_name, customer_phone, customer_email,
	subtotal::text, shipping_fee::text, discount::text, total::text,
	status, stock_deducted, contact_message, version, created_at, updated_at`

func scanOrder(row pgx.Row) (orders.Order, error) {
	var o orders.Order
	err := row.Scan(&o.ID, &o.Ref, &o.Customer.FullName, &o.Customer.Phone, &o.Customer.Email,
		&o.Subtotal, &o.ShippingFee, &o.Discount, &o.Total,
		&o.Status, &o.StockDeducted, &o.ContactMessage, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// loadItems fills the line items of every order in byID.
func loadItems(ctx context.Context, q querier, byID map[string]*orders.Order) error {
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	rows, err := q.Query(ctx, `
		SELECT order_id, product_id, title, unit_price::text, qty
		FROM order_items WHERE order_id = ANY($1)
		ORDER BY order_id, position`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var orderID string
		var it orders.LineItem
		if err := rows.Scan(&orderID, &it.ProductID, &it.Title, &it.UnitPrice, &it.Qty); err != nil {
			return err
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	return rows.Err()
}

func findOrder(ctx context.Context, q querier, op, where, arg string, lock bool) (orders.Order, error) {
	sql := `SELECT ` + orderColumns + ` FROM orders WHERE ` + where
	if lock {
		sql += ` FOR UPDATE`
	}
	o, err := scanOrder(q.QueryRow(ctx, sql, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, apperr.NotFound(op, "order %s not found", arg)
	}
	if err != nil {
		return orders.Order{}, mapErr(op, err)
	}
	if err := loadItems(ctx, q, map[string]*orders.Order{o.ID: &o}); err != nil {
		return orders.Order{}, mapErr(op, err)
	}
	return o, nil
}

func (s *Store) FindOrderByID(ctx context.Context, id string) (orders.Order, error) {
	return findOrder(ctx, s.pool, "postgres.FindOrderByID", "id=$1", id, false)
}

func (s *Store) FindOrderByRef(ctx context.Context, ref string) (orders.Order, error) {
	return findOrder(ctx, s.pool, "postgres.FindOrderByRef", "ref=$1", ref, false)
}

func (s *Store) RefExists(ctx context.Context, ref string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE ref=$1)`, ref).Scan(&exists)
	return exists, mapErr("postgres.RefExists", err)
}

func (s *Store) ListOrders(ctx context.Context, f orders.ListFilter) ([]orders.Order, error) {
	const op = "postgres.ListOrders"
	rows, err := s.pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, ref DESC
		LIMIT $2`, string(f.Status), f.Limit)
	if err != nil {
		return nil, mapErr(op, err)
	}
	var out []orders.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, mapErr(op, err)
		}
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, mapErr(op, err)
	}
	if len(out) == 0 {
		return out, nil
	}

	byID := make(map[string]*orders.Order, len(out))
	for i := range out {
		byID[out[i].ID] = &out[i]
	}
	return out, mapErr(op, loadItems(ctx, s.pool, byID))
}

func (t *tx) LockOrder(ctx context.Context, id string) (orders.Order, error) {
	return findOrder(ctx, t.q, "postgres.LockOrder", "id=$1", id, true)
}

func (t *tx) InsertOrder(ctx context.Context, o orders.Order) error {
	const op = "postgres.InsertOrder"
	_, err := t.q.Exec(ctx, `
		INSERT INTO orders(id, ref, customer_name, customer_phone, customer_email,
			subtotal, shipping_fee, discount, total, status, stock_deducted,
			contact_message, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		o.ID, o.Ref, o.Customer.FullName, o.Customer.Phone, o.Customer.Email,
		o.Subtotal, o.ShippingFee, o.Discount, o.Total, string(o.Status), o.StockDeducted,
		o.ContactMessage, o.Version, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return mapErr(op, err)
	}

	batch := &pgx.Batch{}
	for i, it := range o.Items {
		batch.Queue(`
			INSERT INTO order_items(order_id, position, product_id, title, unit_price, qty)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			o.ID, i, it.ProductID, it.Title, it.UnitPrice, it.Qty)
	}
	return mapErr(op, t.q.SendBatch(ctx, batch).Close())
}

// SaveOrder writes the mutable columns. Items and ref never change after
// insert.
func (t *tx) SaveOrder(ctx context.Context, o orders.Order) error {
	const op = "postgres.SaveOrder"
	ct, err := t.q.Exec(ctx, `
		UPDATE orders
		SET shipping_fee=$2, discount=$3, total=$4, status=$5, stock_deducted=$6,
			version=version+1, updated_at=$7
		WHERE id=$1 AND version=$8`,
		o.ID, o.ShippingFee, o.Discount, o.Total, string(o.Status), o.StockDeducted, o.UpdatedAt, o.Version)
	if err != nil {
		return mapErr(op, err)
	}
	if ct.RowsAffected() != 1 {
		return apperr.Conflict(op, apperr.CodeVersionMismatch, "order %s changed concurrently", o.ID)
	}
	return nil
}

func (t *tx) DeleteOrder(ctx context.Context, id string) error {
	const op = "postgres.DeleteOrder"
	ct, err := t.q.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id)
	if err != nil {
		return mapErr(op, err)
	}
	if ct.RowsAffected() == 0 {
		return apperr.NotFound(op, "order %s not found", id)
	}
	return nil
}
