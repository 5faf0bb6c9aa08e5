package postgres

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

func (s *Store) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, size, list_price, sale_price, active
		FROM products
		WHERE id = $1 AND active = true
	`, productID).Scan(&p.ID, &p.Name, &p.Size, &p.ListPrice, &p.SalePrice, &p.Active)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *Store) UpsertProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.ID = strings.TrimSpace(product.ID)
	if product.ID == "" || !product.ListPrice.IsPositive() || product.SalePrice.IsNegative() {
		return nil, store.ErrInvalidTransaction
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, size, list_price, sale_price, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())
		ON CONFLICT (id)
		DO UPDATE SET name = EXCLUDED.name, size = EXCLUDED.size, list_price = EXCLUDED.list_price,
			sale_price = EXCLUDED.sale_price, active = EXCLUDED.active, updated_at = now()
	`, product.ID, product.Name, product.Size, product.ListPrice, product.SalePrice, product.Active)
	if err != nil {
		return nil, err
	}
	saved := product
	return &saved, nil
}

func (s *Store) CreatePromotion(ctx context.Context, promo domain.Promotion) (*domain.Promotion, error) {
	if promo.ID == "" {
		promo.ID = xid.New("promo")
	}
	if promo.CreatedAt.IsZero() {
		promo.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO promotions (id, name, expression, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, promo.ID, promo.Name, promo.Expression, promo.Active, promo.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	saved := promo
	return &saved, nil
}

func (s *Store) GetPromotion(ctx context.Context, promotionID string) (*domain.Promotion, error) {
	var promo domain.Promotion
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, expression, active, created_at FROM promotions WHERE id = $1
	`, promotionID).Scan(&promo.ID, &promo.Name, &promo.Expression, &promo.Active, &promo.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	promo.CreatedAt = promo.CreatedAt.UTC()
	return &promo, nil
}

func (s *Store) ListPromotions(ctx context.Context) ([]domain.Promotion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, expression, active, created_at FROM promotions ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	promos := make([]domain.Promotion, 0, 16)
	for rows.Next() {
		var promo domain.Promotion
		if err := rows.Scan(&promo.ID, &promo.Name, &promo.Expression, &promo.Active, &promo.CreatedAt); err != nil {
			return nil, err
		}
		promo.CreatedAt = promo.CreatedAt.UTC()
		promos = append(promos, promo)
	}
	return promos, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,true,$4)
	`, user.Username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at FROM users ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, terminal_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.TerminalID, entry.ActorUsername, entry.ActorRole, entry.Action,
		entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, terminal_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(
			&entry.ID,
			&entry.TerminalID,
			&entry.ActorUsername,
			&entry.ActorRole,
			&entry.Action,
			&entry.EntityType,
			&entry.EntityID,
			&entry.Detail,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CreateFrozenCart(ctx context.Context, frozen domain.FrozenCart) (*domain.FrozenCart, error) {
	if frozen.TerminalID == "" || frozen.Cart.Empty() {
		return nil, store.ErrInvalidTransaction
	}
	if frozen.ID == "" {
		frozen.ID = xid.New("frz")
	}
	if frozen.FrozenAt.IsZero() {
		frozen.FrozenAt = time.Now().UTC()
	}
	cartJSON, err := json.Marshal(frozen.Cart)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO frozen_carts (id, terminal_id, label, frozen_by, cart, frozen_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, frozen.ID, frozen.TerminalID, frozen.Label, frozen.FrozenBy, cartJSON, frozen.FrozenAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	saved := frozen
	return &saved, nil
}

func (s *Store) CountFrozenCarts(ctx context.Context, terminalID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM frozen_carts WHERE terminal_id = $1`, terminalID).Scan(&count)
	return count, err
}

func scanFrozen(row rowScanner) (*domain.FrozenCart, error) {
	var frozen domain.FrozenCart
	var cartRaw []byte
	if err := row.Scan(&frozen.ID, &frozen.TerminalID, &frozen.Label, &frozen.FrozenBy, &cartRaw, &frozen.FrozenAt); err != nil {
		return nil, notFound(err)
	}
	if err := json.Unmarshal(cartRaw, &frozen.Cart); err != nil {
		return nil, err
	}
	frozen.FrozenAt = frozen.FrozenAt.UTC()
	return &frozen, nil
}

func (s *Store) ListFrozenCarts(ctx context.Context, terminalID string) ([]domain.FrozenCart, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, terminal_id, label, frozen_by, cart, frozen_at
		FROM frozen_carts
		WHERE terminal_id = $1
		ORDER BY frozen_at DESC
	`, terminalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.FrozenCart, 0, 4)
	for rows.Next() {
		frozen, err := scanFrozen(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *frozen)
	}
	return result, rows.Err()
}

func (s *Store) PopFrozenCart(ctx context.Context, terminalID string, frozenID string) (*domain.FrozenCart, error) {
	return scanFrozen(s.db.QueryRowContext(ctx, `
		DELETE FROM frozen_carts
		WHERE id = $1 AND terminal_id = $2
		RETURNING id, terminal_id, label, frozen_by, cart, frozen_at
	`, frozenID, terminalID))
}

func (s *Store) DeleteFrozenCart(ctx context.Context, terminalID string, frozenID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM frozen_carts WHERE id = $1 AND terminal_id = $2`, frozenID, terminalID)
	if err != nil {
		return err
	}
	return expectOne(res)
}
