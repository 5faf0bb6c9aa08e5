package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/promotion"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

// CreatePromotion stores a promotion after compiling its expression.
func (s *Service) CreatePromotion(ctx context.Context, req domain.PromotionRequest) (domain.Promotion, error) {
	if err := requireRole(ctx, domain.RoleManager, domain.RoleAdmin); err != nil {
		return domain.Promotion{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Expression = strings.TrimSpace(req.Expression)
	if req.Name == "" {
		return domain.Promotion{}, fmt.Errorf("%w: promotion name required", store.ErrInvalidTransaction)
	}
	rule, err := promotion.Parse(req.Expression)
	if err != nil {
		return domain.Promotion{}, err
	}

	created, err := s.repo.CreatePromotion(ctx, domain.Promotion{
		ID:         xid.New("promo"),
		Name:       req.Name,
		Expression: rule.String(),
		Active:     req.Active,
		CreatedAt:  s.now().UTC(),
	})
	if err != nil {
		return domain.Promotion{}, err
	}
	s.cacheRule(created.ID, created.Expression, rule)
	s.logAudit(ctx, "", "promotion_create", "promotion", created.ID, created.Expression)
	return *created, nil
}

func (s *Service) ListPromotions(ctx context.Context) ([]domain.Promotion, error) {
	return s.repo.ListPromotions(ctx)
}

// rule returns the compiled rule of an active promotion, parsing it only the
// first time it is seen.
func (s *Service) rule(ctx context.Context, promotionID string) (*promotion.Rule, error) {
	promo, err := s.repo.GetPromotion(ctx, promotionID)
	if err != nil {
		return nil, err
	}
	if !promo.Active {
		return nil, fmt.Errorf("%w: promotion %s is not active", store.ErrInvalidTransaction, promotionID)
	}

	s.rulesMu.RLock()
	cached, ok := s.rules[promotionID]
	s.rulesMu.RUnlock()
	if ok && cached.expression == promo.Expression {
		return cached.rule, nil
	}

	rule, err := promotion.Parse(promo.Expression)
	if err != nil {
		s.logger.Error("stored promotion does not compile", zap.String("promotion_id", promotionID), zap.Error(err))
		return nil, err
	}
	s.cacheRule(promotionID, promo.Expression, rule)
	return rule, nil
}

func (s *Service) cacheRule(id string, expression string, rule *promotion.Rule) {
	s.rulesMu.Lock()
	defer s.rulesMu.Unlock()
	s.rules[id] = compiledRule{expression: expression, rule: rule}
}
