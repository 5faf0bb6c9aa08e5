package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if len(order.Items) == 0 {
		return nil, fmt.Errorf("%w: order has no items", store.ErrInvalidTransaction)
	}
	now := time.Now().UTC()
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, code, status_id, warehouse_id, terminal_id,
			final_total, total_price, tax_amount, created_by, created_at, updated_at
		)
		VALUES (
			$1, COALESCE(NULLIF($2, ''), 'ORD-' || lpad(nextval('order_code_seq')::text, 6, '0')),
			$3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`, order.ID, order.Code, int(order.StatusID), order.WarehouseID, order.TerminalID,
		order.FinalTotal, order.TotalPrice, order.TaxAmount, order.CreatedBy, order.CreatedAt, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	if err := insertItems(ctx, tx, order.ID, order.Items); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, order.ID)
}

func insertItems(ctx context.Context, tx *sql.Tx, orderID string, items []domain.OrderItem) error {
	for _, item := range items {
		if item.ID == "" {
			item.ID = xid.New("item")
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, size, quantity, unit_cost, discount, final_cost, deleted)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,false)
		`, item.ID, orderID, item.ProductID, item.Size, item.Quantity, item.UnitCost, item.Discount, item.FinalCost); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var order domain.Order
	var status int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, status_id, warehouse_id, terminal_id,
			final_total, total_price, tax_amount, created_by, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, orderID).Scan(
		&order.ID,
		&order.Code,
		&status,
		&order.WarehouseID,
		&order.TerminalID,
		&order.FinalTotal,
		&order.TotalPrice,
		&order.TaxAmount,
		&order.CreatedBy,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	order.StatusID = domain.OrderStatus(status)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()

	if order.Items, err = s.GetOrderItems(ctx, orderID); err != nil {
		return nil, err
	}
	if order.Payments, err = s.ListPayments(ctx, orderID); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) GetOrderItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, size, quantity, unit_cost, discount, final_cost, deleted
		FROM order_items
		WHERE order_id = $1 AND deleted = false
		ORDER BY seq
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0, 8)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Size,
			&item.Quantity,
			&item.UnitCost,
			&item.Discount,
			&item.FinalCost,
			&item.Deleted,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) AddOrderItems(ctx context.Context, orderID string, items []domain.OrderItem) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertItems(ctx, tx, orderID, items); err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		return err
	}
	return tx.Commit()
}

func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status_id = $2, updated_at = now() WHERE id = $1
	`, orderID, int(status))
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (s *Store) UpdateOrderTotal(ctx context.Context, orderID string, total decimal.Decimal) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET final_total = $2, updated_at = now() WHERE id = $1
	`, orderID, total)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (s *Store) SoftDeleteOrderItems(ctx context.Context, orderID string) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	_, err := s.db.ExecContext(ctx, `UPDATE order_items SET deleted = true WHERE order_id = $1`, orderID)
	return err
}

func (s *Store) UpdateOrderItemQuantity(ctx context.Context, itemID string, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("%w: negative quantity", store.ErrInvalidTransaction)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE order_items SET quantity = $2 WHERE id = $1 AND deleted = false
	`, itemID, quantity)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (s *Store) CreatePayment(ctx context.Context, payment domain.OrderPayment) (*domain.OrderPayment, error) {
	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if payment.PaidAt.IsZero() {
		payment.PaidAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO order_payments (id, order_id, payment_method_id, amount, tax, status_id, paid_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, payment.ID, payment.OrderID, payment.PaymentMethodID, payment.Amount, payment.Tax, int(payment.StatusID), payment.PaidAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (s *Store) ListPayments(ctx context.Context, orderID string) ([]domain.OrderPayment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, payment_method_id, amount, tax, status_id, paid_at
		FROM order_payments
		WHERE order_id = $1
		ORDER BY seq
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.OrderPayment, 0, 4)
	for rows.Next() {
		var p domain.OrderPayment
		var status int
		if err := rows.Scan(&p.ID, &p.OrderID, &p.PaymentMethodID, &p.Amount, &p.Tax, &status, &p.PaidAt); err != nil {
			return nil, err
		}
		p.StatusID = domain.PaymentStatus(status)
		p.PaidAt = p.PaidAt.UTC()
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (s *Store) UpdatePaymentsStatus(ctx context.Context, orderID string, from domain.PaymentStatus, to domain.PaymentStatus) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE order_payments SET status_id = $3 WHERE order_id = $1 AND status_id = $2
	`, orderID, int(from), int(to))
	return err
}

func (s *Store) UpdatePaymentStatus(ctx context.Context, paymentID string, status domain.PaymentStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE order_payments SET status_id = $2 WHERE id = $1`, paymentID, int(status))
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (s *Store) GetStock(ctx context.Context, productID string, warehouseID string) (int, error) {
	var qty int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(st.qty, 0)
		FROM products p
		LEFT JOIN stock st ON st.product_id = p.id AND st.warehouse_id = $2
		WHERE p.id = $1
	`, productID, warehouseID).Scan(&qty)
	if err != nil {
		return 0, notFound(err)
	}
	return qty, nil
}

// AdjustStock applies a signed delta in one statement so concurrent
// terminals never overwrite each other.
func (s *Store) AdjustStock(ctx context.Context, adj domain.StockAdjustment) error {
	if adj.QuantityDelta < 1 {
		return fmt.Errorf("%w: stock delta must be positive", store.ErrInvalidTransaction)
	}
	if adj.Direction == domain.StockAdd {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO stock (warehouse_id, product_id, qty, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (warehouse_id, product_id)
			DO UPDATE SET qty = stock.qty + EXCLUDED.qty, updated_at = now()
		`, adj.WarehouseID, adj.ProductID, adj.QuantityDelta)
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: product %s", store.ErrNotFound, adj.ProductID)
		}
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE stock SET qty = qty - $3, updated_at = now()
		WHERE warehouse_id = $1 AND product_id = $2 AND qty >= $3
	`, adj.WarehouseID, adj.ProductID, adj.QuantityDelta)
	if err != nil {
		return err
	}
	if err := expectOne(res); err != nil {
		return fmt.Errorf("%w: product %s", store.ErrInsufficientStock, adj.ProductID)
	}
	return nil
}

func (s *Store) CreateVoucher(ctx context.Context, voucher domain.Voucher) (*domain.Voucher, error) {
	if !voucher.TotalAmount.IsPositive() {
		return nil, fmt.Errorf("%w: voucher amount must be positive", store.ErrInvalidTransaction)
	}
	if voucher.ID == "" {
		voucher.ID = xid.New("vch")
	}
	if voucher.StatusID == 0 {
		voucher.StatusID = domain.VoucherStatusValid
	}
	if voucher.CreatedAt.IsZero() {
		voucher.CreatedAt = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO vouchers (
			id, code, total_amount, used_amount, status_id,
			origin_order_id, destination_order_id, valid_from, valid_to, created_at
		)
		VALUES (
			$1, COALESCE(NULLIF($2, ''), 'VCH-' || lpad(nextval('voucher_code_seq')::text, 6, '0')),
			$3, $4, $5, $6, $7, $8, $9, $10
		)
		RETURNING code
	`, voucher.ID, voucher.Code, voucher.TotalAmount, voucher.UsedAmount, int(voucher.StatusID),
		voucher.OriginOrderID, voucher.DestinationOrderID, voucher.ValidFrom, voucher.ValidTo, voucher.CreatedAt,
	).Scan(&voucher.Code)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &voucher, nil
}

const voucherColumns = `id, code, total_amount, used_amount, status_id,
	origin_order_id, destination_order_id, valid_from, valid_to, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVoucher(row rowScanner) (*domain.Voucher, error) {
	var v domain.Voucher
	var status int
	if err := row.Scan(
		&v.ID,
		&v.Code,
		&v.TotalAmount,
		&v.UsedAmount,
		&status,
		&v.OriginOrderID,
		&v.DestinationOrderID,
		&v.ValidFrom,
		&v.ValidTo,
		&v.CreatedAt,
	); err != nil {
		return nil, notFound(err)
	}
	v.StatusID = domain.VoucherStatus(status)
	v.ValidFrom, v.ValidTo, v.CreatedAt = v.ValidFrom.UTC(), v.ValidTo.UTC(), v.CreatedAt.UTC()
	return &v, nil
}

func (s *Store) GetVoucher(ctx context.Context, voucherID string) (*domain.Voucher, error) {
	return scanVoucher(s.db.QueryRowContext(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE id = $1`, voucherID))
}

func (s *Store) RedeemVoucher(ctx context.Context, voucherID string, amount decimal.Decimal, destinationOrderID string, status domain.VoucherStatus) (*domain.Voucher, error) {
	return s.updateVoucher(ctx, voucherID, func(v *domain.Voucher) error {
		if v.StatusID == domain.VoucherStatusFullyUsed {
			return store.ErrConflict
		}
		if !amount.IsPositive() || amount.GreaterThan(v.Balance()) {
			return fmt.Errorf("%w: redemption exceeds voucher balance", store.ErrInvalidTransaction)
		}
		v.UsedAmount = v.UsedAmount.Add(amount)
		v.DestinationOrderID = destinationOrderID
		v.StatusID = status
		return nil
	})
}

func (s *Store) ReleaseVoucher(ctx context.Context, voucherID string, amount decimal.Decimal) (*domain.Voucher, error) {
	return s.updateVoucher(ctx, voucherID, func(v *domain.Voucher) error {
		if !amount.IsPositive() || amount.GreaterThan(v.UsedAmount) {
			return fmt.Errorf("%w: release exceeds used amount", store.ErrInvalidTransaction)
		}
		v.UsedAmount = v.UsedAmount.Sub(amount)
		v.StatusID = domain.VoucherStatusPartiallyUsed
		if v.UsedAmount.IsZero() {
			v.StatusID = domain.VoucherStatusValid
			v.DestinationOrderID = ""
		}
		return nil
	})
}

// updateVoucher locks the voucher row while fn changes it.
func (s *Store) updateVoucher(ctx context.Context, voucherID string, fn func(v *domain.Voucher) error) (*domain.Voucher, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	voucher, err := scanVoucher(tx.QueryRowContext(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE id = $1 FOR UPDATE`, voucherID))
	if err != nil {
		return nil, err
	}
	if err := fn(voucher); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE vouchers SET used_amount = $2, status_id = $3, destination_order_id = $4 WHERE id = $1
	`, voucher.ID, voucher.UsedAmount, int(voucher.StatusID), voucher.DestinationOrderID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return voucher, nil
}
