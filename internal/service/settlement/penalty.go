package settlement

import (
	"context"
	"fmt"

	"github.com/dairycoop/settlement-backend/internal/domain/settlement"
	"github.com/dairycoop/settlement-backend/internal/pkg/validator"
	"github.com/shopspring/decimal"
)

// EvaluatePenalty applies cfg to the magnitude of variance. It depends on
// nothing but its arguments; a nil cfg is ErrNoActivePolicy, never zero.
func EvaluatePenalty(variance decimal.Decimal, cfg *settlement.VariancePenaltyConfig, places int32) (decimal.Decimal, settlement.PenaltyBand, error) {
	if cfg == nil {
		return decimal.Decimal{}, settlement.PenaltyBand{}, settlement.ErrNoActivePolicy
	}
	if err := settlement.ValidateBands(cfg.Bands); err != nil {
		return decimal.Decimal{}, settlement.PenaltyBand{}, fmt.Errorf("%w: config %s: %v", settlement.ErrInvalidPenaltyConfig, cfg.ID, err)
	}

	magnitude := variance.Abs()
	band, ok := settlement.SelectBand(cfg.Bands, magnitude)
	if !ok {
		return decimal.Decimal{}, settlement.PenaltyBand{}, fmt.Errorf("%w: config %s has no band for %s liters", settlement.ErrInvalidPenaltyConfig, cfg.ID, magnitude)
	}

	var penalty decimal.Decimal
	switch band.Kind {
	case settlement.BandKindNone:
		penalty = decimal.Zero
	case settlement.BandKindFlat:
		penalty = band.FlatFee
	case settlement.BandKindProportional:
		excess := magnitude.Sub(band.LowerBoundLiters)
		penalty = band.FlatFee.Add(excess.Mul(band.RatePerLiter))
	}

	return penalty.Round(places), band, nil
}

func (s *SettlementServiceImpl) CreatePenaltyConfig(ctx context.Context, req settlement.CreatePenaltyConfigRequest) (settlement.PenaltyConfigResponse, error) {
	caller, err := authorize(ctx, "")
	if err != nil {
		return settlement.PenaltyConfigResponse{}, err
	}
	if err := req.Validate(); err != nil {
		return settlement.PenaltyConfigResponse{}, err
	}

	createdBy := caller.UserID
	cfg, err := s.penaltyRepo.Create(ctx, settlement.VariancePenaltyConfig{
		Name:      req.Name,
		Bands:     req.Bands,
		CreatedBy: &createdBy,
	})
	if err != nil {
		return settlement.PenaltyConfigResponse{}, err
	}

	s.log.Info("penalty config created", "config_id", cfg.ID, "version", cfg.Version, "by", caller.UserID)
	return toPenaltyConfigResponse(cfg), nil
}

// ActivatePenaltyConfig swaps the active config in one transaction so that
// exactly one config is active once it commits.
func (s *SettlementServiceImpl) ActivatePenaltyConfig(ctx context.Context, id string) (settlement.PenaltyConfigResponse, error) {
	caller, err := authorize(ctx, "")
	if err != nil {
		return settlement.PenaltyConfigResponse{}, err
	}
	if !validator.IsUUID(id) {
		return settlement.PenaltyConfigResponse{}, settlement.ErrPenaltyConfigNotFound
	}

	var activated settlement.VariancePenaltyConfig
	err = s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		if _, err := s.penaltyRepo.GetByID(txCtx, id); err != nil {
			return err
		}
		if err := s.penaltyRepo.Activate(txCtx, id); err != nil {
			return err
		}
		activated, err = s.penaltyRepo.GetByID(txCtx, id)
		return err
	})
	if err != nil {
		return settlement.PenaltyConfigResponse{}, err
	}

	s.log.Info("penalty config activated", "config_id", activated.ID, "version", activated.Version, "by", caller.UserID)
	return toPenaltyConfigResponse(activated), nil
}

func (s *SettlementServiceImpl) GetActivePenaltyConfig(ctx context.Context) (settlement.PenaltyConfigResponse, error) {
	cfg, err := s.penaltyRepo.GetActive(ctx)
	if err != nil {
		return settlement.PenaltyConfigResponse{}, err
	}
	return toPenaltyConfigResponse(cfg), nil
}

func (s *SettlementServiceImpl) ListPenaltyConfigs(ctx context.Context) ([]settlement.PenaltyConfigResponse, error) {
	configs, err := s.penaltyRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	resp := make([]settlement.PenaltyConfigResponse, 0, len(configs))
	for _, cfg := range configs {
		resp = append(resp, toPenaltyConfigResponse(cfg))
	}
	return resp, nil
}

// PreviewPenalty evaluates a hypothetical variance against the active config.
func (s *SettlementServiceImpl) PreviewPenalty(ctx context.Context, req settlement.PreviewPenaltyRequest) (settlement.PenaltyPreviewResponse, error) {
	cfg, err := s.penaltyRepo.GetActive(ctx)
	if err != nil {
		return settlement.PenaltyPreviewResponse{}, err
	}

	penalty, band, err := EvaluatePenalty(req.Variance, &cfg, s.places)
	if err != nil {
		return settlement.PenaltyPreviewResponse{}, err
	}

	return settlement.PenaltyPreviewResponse{
		ConfigID:      cfg.ID,
		ConfigVersion: cfg.Version,
		Variance:      req.Variance,
		Band:          band,
		PenaltyAmount: penalty,
	}, nil
}
