package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/dairycoop/settlement-backend/internal/domain/notification"
	"github.com/dairycoop/settlement-backend/internal/domain/settlement"
	"github.com/dairycoop/settlement-backend/internal/pkg/validator"
)

// collectedAtSkew tolerates device clocks running slightly ahead.
const collectedAtSkew = 5 * time.Minute

// ListCollectorCollections is the read-only ledger: Collected and Approved
// collections of one collector in [from, to], ordered by collection time.
// An unknown collector is ErrCollectorNotFound; no collections is an empty list.
func (s *SettlementServiceImpl) ListCollectorCollections(ctx context.Context, req settlement.DateRangeRequest) ([]settlement.CollectionResponse, error) {
	from, to, err := req.Parse()
	if err != nil {
		return nil, err
	}
	if _, err := authorize(ctx, req.CollectorID); err != nil {
		return nil, err
	}

	if _, err := s.staffRepo.GetCollectorByID(ctx, req.CollectorID); err != nil {
		return nil, err
	}

	collections, err := s.collectionRepo.ListByCollector(ctx, req.CollectorID, from, to, settlement.LedgerStatuses)
	if err != nil {
		return nil, err
	}

	resp := make([]settlement.CollectionResponse, 0, len(collections))
	for _, c := range collections {
		resp = append(resp, toCollectionResponse(c))
	}
	return resp, nil
}

// RecordCollection logs a drop-off and refreshes the day's summary in the
// same transaction. Days already frozen into a payment reject new entries.
func (s *SettlementServiceImpl) RecordCollection(ctx context.Context, req settlement.RecordCollectionRequest) (settlement.CollectionResponse, error) {
	if err := req.Validate(); err != nil {
		return settlement.CollectionResponse{}, err
	}
	caller, err := authorize(ctx, req.CollectorID)
	if err != nil {
		return settlement.CollectionResponse{}, err
	}

	collectedAt, _ := validator.IsValidDateTime(req.CollectedAt)
	if collectedAt.After(s.now().Add(collectedAtSkew)) {
		return settlement.CollectionResponse{}, validator.ValidationErrors{{Field: "collected_at", Message: "must not be in the future"}}
	}

	var created settlement.Collection
	err = s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		collector, err := s.staffRepo.LockCollector(txCtx, req.CollectorID)
		if err != nil {
			return err
		}
		if !collector.IsActive {
			return settlement.ErrCollectorInactive
		}

		created, err = s.collectionRepo.Create(txCtx, settlement.Collection{
			FarmerID:       req.FarmerID,
			CollectorID:    req.CollectorID,
			Liters:         req.Liters,
			RatePerLiter:   req.RatePerLiter,
			TotalAmount:    req.Liters.Mul(req.RatePerLiter).Round(s.places),
			CollectionDate: dayOf(collectedAt),
			CollectedAt:    collectedAt.UTC(),
			Latitude:       req.Latitude,
			Longitude:      req.Longitude,
			Status:         settlement.CollectionStatusCollected,
		})
		if err != nil {
			return err
		}

		_, err = s.recomputeDay(txCtx, req.CollectorID, created.CollectionDate, nil, nil)
		return err
	})
	if err != nil {
		return settlement.CollectionResponse{}, err
	}

	s.log.Info("collection recorded",
		"collection_id", created.ID, "collector_id", created.CollectorID,
		"liters", created.Liters.String(), "amount", created.TotalAmount.String(), "by", caller.UserID)
	s.notify(ctx, caller, notification.TypeCollectionRecorded,
		"Milk collection recorded",
		fmt.Sprintf("%s L recorded on %s", created.Liters.String(), created.CollectionDate.Format(settlement.DateLayout)),
		map[string]interface{}{
			"collection_id": created.ID,
			"collector_id":  created.CollectorID,
			"farmer_id":     created.FarmerID,
			"liters":        created.Liters.String(),
			"amount":        created.TotalAmount.String(),
		},
		notification.RecipientOffice)

	return toCollectionResponse(created), nil
}

// ApproveCollection moves Collected → Approved. Liters and amount are locked
// from then on; the day's gross is refreshed in the same transaction.
func (s *SettlementServiceImpl) ApproveCollection(ctx context.Context, id string) (settlement.CollectionResponse, error) {
	if !validator.IsUUID(id) {
		return settlement.CollectionResponse{}, settlement.ErrCollectionNotFound
	}

	current, err := s.collectionRepo.GetByID(ctx, id)
	if err != nil {
		return settlement.CollectionResponse{}, err
	}
	caller, err := authorize(ctx, current.CollectorID)
	if err != nil {
		return settlement.CollectionResponse{}, err
	}

	var approved settlement.Collection
	err = s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		if _, err := s.staffRepo.LockCollector(txCtx, current.CollectorID); err != nil {
			return err
		}
		c, err := s.collectionRepo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if c.Status != settlement.CollectionStatusCollected {
			return settlement.ErrCollectionAlreadyApproved
		}

		approved, err = s.collectionRepo.Approve(txCtx, id, caller.UserID, s.now().UTC())
		if err != nil {
			return err
		}

		_, err = s.recomputeDay(txCtx, approved.CollectorID, approved.CollectionDate, nil, nil)
		return err
	})
	if err != nil {
		return settlement.CollectionResponse{}, err
	}

	s.log.Info("collection approved", "collection_id", approved.ID, "collector_id", approved.CollectorID, "by", caller.UserID)
	return toCollectionResponse(approved), nil
}
