package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dairycoop/settlement-backend/internal/domain/notification"
	"github.com/dairycoop/settlement-backend/internal/domain/settlement"
	"github.com/dairycoop/settlement-backend/internal/domain/user"
	"github.com/dairycoop/settlement-backend/internal/pkg/validator"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	testDay = time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
)

const (
	periodStart = "2025-03-03"
	periodEnd   = "2025-03-09"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]interface{}{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func testBands() []settlement.PenaltyBand {
	return []settlement.PenaltyBand{
		{LowerBoundLiters: dec("0"), Kind: settlement.BandKindNone},
		{LowerBoundLiters: dec("2"), Kind: settlement.BandKindFlat, FlatFee: dec("200")},
		{LowerBoundLiters: dec("5"), Kind: settlement.BandKindProportional, FlatFee: dec("200"), RatePerLiter: dec("50")},
	}
}

func officeCtx() context.Context {
	return user.WithCaller(context.Background(), user.Caller{UserID: "office-1", Role: user.RoleOfficeStaff})
}

func collectorCtx(staffID string) context.Context {
	return user.WithCaller(context.Background(), user.Caller{UserID: "collector-user", Role: user.RoleCollector, StaffID: &staffID})
}

type fixture struct {
	store       *memStore
	notifier    *recordingNotifier
	svc         *SettlementServiceImpl
	collectorID string
	farmerA     string
	farmerB     string
	configID    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:       newMemStore(),
		notifier:    &recordingNotifier{},
		collectorID: uuid.NewString(),
		farmerA:     uuid.NewString(),
		farmerB:     uuid.NewString(),
		configID:    uuid.NewString(),
	}
	f.store.collectors[f.collectorID] = settlement.Collector{ID: f.collectorID, FullName: "Route 7", IsActive: true}
	f.store.configs[f.configID] = settlement.VariancePenaltyConfig{
		ID: f.configID, Name: "Standard", Version: 1, Bands: testBands(), IsActive: true,
	}
	f.svc = NewSettlementService(memTx{f.store}, f.store.repositories(), f.notifier, Config{
		Clock: func() time.Time { return testNow },
	})
	return f
}

// record logs one collection at the given time and approves it.
func (f *fixture) record(t *testing.T, farmerID string, liters string, at time.Time) settlement.CollectionResponse {
	t.Helper()
	ctx := officeCtx()
	c, err := f.svc.RecordCollection(ctx, settlement.RecordCollectionRequest{
		FarmerID:     farmerID,
		CollectorID:  f.collectorID,
		Liters:       dec(liters),
		RatePerLiter: dec("750"),
		CollectedAt:  at.Format(time.RFC3339),
	})
	require.NoError(t, err)
	c, err = f.svc.ApproveCollection(ctx, c.ID)
	require.NoError(t, err)
	return c
}

func (f *fixture) receive(t *testing.T, day time.Time, liters string) settlement.DailySummaryResponse {
	t.Helper()
	s, err := f.svc.RecordReceivedLiters(officeCtx(), settlement.RecordReceivedLitersRequest{
		CollectorID:    f.collectorID,
		Date:           day.Format(settlement.DateLayout),
		ReceivedLiters: dec(liters),
	})
	require.NoError(t, err)
	return s
}

// seedFinalizedWeek records 12 L and 8 L on the last day of the period
// against 17 L received, plus a 1000 credit for a served farmer.
func (f *fixture) seedFinalizedWeek(t *testing.T) {
	t.Helper()
	f.record(t, f.farmerA, "12", testDay.Add(6*time.Hour))
	f.record(t, f.farmerB, "8", testDay.Add(7*time.Hour))
	f.receive(t, testDay, "17")

	f.addCredit(f.farmerA, "1000", settlement.CreditStatusApproved)
}

func (f *fixture) addCredit(farmerID, amount string, status settlement.CreditStatus) string {
	id := uuid.NewString()
	f.store.credits[id] = settlement.CreditRequest{
		ID:               id,
		FarmerID:         farmerID,
		Amount:           dec(amount),
		Status:           status,
		SettlementStatus: settlement.CreditSettlementPending,
	}
	return id
}

func (f *fixture) generate(t *testing.T) settlement.CollectorPaymentResponse {
	t.Helper()
	p, err := f.svc.GenerateCollectorPayment(officeCtx(), settlement.GeneratePaymentRequest{
		CollectorID: f.collectorID,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	})
	require.NoError(t, err)
	return p
}

// ===== PENALTY EVALUATOR =====

func TestEvaluatePenalty_Bands(t *testing.T) {
	cfg := &settlement.VariancePenaltyConfig{ID: "cfg", Bands: testBands()}

	tests := []struct {
		name     string
		variance string
		want     string
		kind     settlement.BandKind
	}{
		{"no variance", "0", "0", settlement.BandKindNone},
		{"small shortfall", "-1.999", "0", settlement.BandKindNone},
		{"lower bound is inclusive", "2", "200", settlement.BandKindFlat},
		{"worked example shortfall", "-3", "200", settlement.BandKindFlat},
		{"surplus uses magnitude", "3", "200", settlement.BandKindFlat},
		{"just below proportional band", "-4.999", "200", settlement.BandKindFlat},
		{"proportional at bound", "-5", "200", settlement.BandKindProportional},
		{"proportional excess", "-7.5", "325", settlement.BandKindProportional},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, band, err := EvaluatePenalty(dec(tt.variance), cfg, 2)
			require.NoError(t, err)
			assertDecimal(t, tt.want, got)
			assert.Equal(t, tt.kind, band.Kind)
		})
	}
}

func TestEvaluatePenalty_SameInputsSameResult(t *testing.T) {
	cfg := &settlement.VariancePenaltyConfig{ID: "cfg", Bands: testBands()}

	first, firstBand, err := EvaluatePenalty(dec("-6.25"), cfg, 2)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		got, band, err := EvaluatePenalty(dec("-6.25"), cfg, 2)
		require.NoError(t, err)
		assert.True(t, first.Equal(got))
		assert.Equal(t, firstBand, band)
	}
	assert.Len(t, cfg.Bands, 3, "config must not be mutated")
}

func TestEvaluatePenalty_RoundsHalfAwayFromZero(t *testing.T) {
	cfg := &settlement.VariancePenaltyConfig{ID: "cfg", Bands: []settlement.PenaltyBand{
		{LowerBoundLiters: dec("0"), Kind: settlement.BandKindNone},
		{LowerBoundLiters: dec("5"), Kind: settlement.BandKindProportional, FlatFee: dec("200"), RatePerLiter: dec("33.333")},
	}}

	// 200 + 0.5 * 33.333 = 216.6665
	got, _, err := EvaluatePenalty(dec("5.5"), cfg, 2)
	require.NoError(t, err)
	assertDecimal(t, "216.67", got)
}

func TestEvaluatePenalty_NoConfig_ReturnsNoActivePolicy(t *testing.T) {
	_, _, err := EvaluatePenalty(dec("-3"), nil, 2)
	assert.ErrorIs(t, err, settlement.ErrNoActivePolicy)
}

func TestEvaluatePenalty_InvalidBands_ReturnsInvalidConfig(t *testing.T) {
	cfg := &settlement.VariancePenaltyConfig{ID: "cfg", Bands: []settlement.PenaltyBand{
		{LowerBoundLiters: dec("1"), Kind: settlement.BandKindFlat, FlatFee: dec("100")},
	}}

	_, _, err := EvaluatePenalty(dec("3"), cfg, 2)
	assert.ErrorIs(t, err, settlement.ErrInvalidPenaltyConfig)
}

// ===== DAILY SUMMARY AGGREGATOR =====

func dayCollections(collectorID string) []settlement.Collection {
	return []settlement.Collection{
		{ID: "c1", CollectorID: collectorID, CollectionDate: testDay, Liters: dec("12"), TotalAmount: dec("9000"), Status: settlement.CollectionStatusApproved},
		{ID: "c2", CollectorID: collectorID, CollectionDate: testDay, Liters: dec("8"), TotalAmount: dec("6000"), Status: settlement.CollectionStatusApproved},
	}
}

func TestAggregateDay_WithoutReceived_IsProvisional(t *testing.T) {
	summary, err := AggregateDay("col", testDay, dayCollections("col"), nil, nil, 2)

	require.NoError(t, err)
	assert.Equal(t, settlement.SummaryStatusProvisional, summary.Status)
	assert.Nil(t, summary.TotalReceivedLiters)
	assert.Nil(t, summary.Variance)
	assert.Nil(t, summary.PenaltyAmount)
	assert.Nil(t, summary.PenaltyConfigID)
	assertDecimal(t, "20", summary.TotalRecordedLiters)
	assert.Equal(t, 2, summary.CollectionCount)
}

func TestAggregateDay_WorkedExample(t *testing.T) {
	cfg := &settlement.VariancePenaltyConfig{ID: "cfg", Bands: testBands()}

	summary, err := AggregateDay("col", testDay, dayCollections("col"), decPtr("17"), cfg, 2)

	require.NoError(t, err)
	assert.Equal(t, settlement.SummaryStatusFinalized, summary.Status)
	assertDecimal(t, "20", summary.TotalRecordedLiters)
	require.NotNil(t, summary.Variance)
	assertDecimal(t, "-3", *summary.Variance)
	require.NotNil(t, summary.PenaltyAmount)
	assertDecimal(t, "200", *summary.PenaltyAmount)
	assertDecimal(t, "15000", summary.GrossAmount)
	assert.Equal(t, "cfg", *summary.PenaltyConfigID)
}

func TestAggregateDay_Idempotent(t *testing.T) {
	cfg := &settlement.VariancePenaltyConfig{ID: "cfg", Bands: testBands()}

	first, err := AggregateDay("col", testDay, dayCollections("col"), decPtr("17"), cfg, 2)
	require.NoError(t, err)
	second, err := AggregateDay("col", testDay, dayCollections("col"), decPtr("17"), cfg, 2)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestAggregateDay_CollectedCountsLitersNotGross(t *testing.T) {
	collections := dayCollections("col")
	collections[1].Status = settlement.CollectionStatusCollected

	summary, err := AggregateDay("col", testDay, collections, nil, nil, 2)

	require.NoError(t, err)
	assertDecimal(t, "20", summary.TotalRecordedLiters)
	assertDecimal(t, "9000", summary.GrossAmount)
}

func TestAggregateDay_ReceivedWithoutConfig_ReturnsNoActivePolicy(t *testing.T) {
	_, err := AggregateDay("col", testDay, dayCollections("col"), decPtr("17"), nil, 2)
	assert.ErrorIs(t, err, settlement.ErrNoActivePolicy)
}

func TestAggregateDay_ForeignCollection_ReturnsMismatch(t *testing.T) {
	collections := dayCollections("col")
	collections[0].CollectionDate = testDay.AddDate(0, 0, -1)

	_, err := AggregateDay("col", testDay, collections, nil, nil, 2)
	assert.ErrorIs(t, err, settlement.ErrCollectionMismatch)
}

// ===== LEDGER =====

func TestListCollectorCollections_OrderedByCollectedAt(t *testing.T) {
	f := newFixture(t)
	ctx := officeCtx()

	late, err := f.svc.RecordCollection(ctx, settlement.RecordCollectionRequest{
		FarmerID: f.farmerA, CollectorID: f.collectorID,
		Liters: dec("5"), RatePerLiter: dec("750"),
		CollectedAt: testDay.Add(9 * time.Hour).Format(time.RFC3339),
	})
	require.NoError(t, err)
	early := f.record(t, f.farmerB, "3", testDay.Add(5*time.Hour))

	got, err := f.svc.ListCollectorCollections(ctx, settlement.DateRangeRequest{
		CollectorID: f.collectorID, From: periodStart, To: periodEnd,
	})

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, early.ID, got[0].ID)
	assert.Equal(t, "Approved", got[0].Status)
	assert.Equal(t, late.ID, got[1].ID)
	assert.Equal(t, "Collected", got[1].Status)
	assertDecimal(t, "3750", got[1].TotalAmount)
}

func TestListCollectorCollections_Empty(t *testing.T) {
	f := newFixture(t)

	got, err := f.svc.ListCollectorCollections(officeCtx(), settlement.DateRangeRequest{
		CollectorID: f.collectorID, From: periodStart, To: periodEnd,
	})

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListCollectorCollections_UnknownCollector_ReturnsNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ListCollectorCollections(officeCtx(), settlement.DateRangeRequest{
		CollectorID: uuid.NewString(), From: periodStart, To: periodEnd,
	})

	assert.ErrorIs(t, err, settlement.ErrNotFound)
}

func TestListCollectorCollections_OtherRoute_Forbidden(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ListCollectorCollections(collectorCtx(uuid.NewString()), settlement.DateRangeRequest{
		CollectorID: f.collectorID, From: periodStart, To: periodEnd,
	})
	assert.ErrorIs(t, err, settlement.ErrForbiddenCollector)

	_, err = f.svc.ListCollectorCollections(collectorCtx(f.collectorID), settlement.DateRangeRequest{
		CollectorID: f.collectorID, From: periodStart, To: periodEnd,
	})
	assert.NoError(t, err)
}

func TestListCollectorCollections_NoCaller(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ListCollectorCollections(context.Background(), settlement.DateRangeRequest{
		CollectorID: f.collectorID, From: periodStart, To: periodEnd,
	})

	assert.ErrorIs(t, err, user.ErrCallerNotFound)
}

func TestRecordCollection_InvalidRequest(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RecordCollection(officeCtx(), settlement.RecordCollectionRequest{
		FarmerID: "nope", CollectorID: f.collectorID, Liters: dec("-1"), CollectedAt: "yesterday",
	})

	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	fields := verrs.ToMap()
	assert.Contains(t, fields, "farmer_id")
	assert.Contains(t, fields, "liters")
	assert.Contains(t, fields, "rate_per_liter")
	assert.Contains(t, fields, "collected_at")
}

func TestRecordCollection_RejectsExcessPrecision(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RecordCollection(officeCtx(), settlement.RecordCollectionRequest{
		FarmerID: f.farmerA, CollectorID: f.collectorID, Liters: dec("5.0001"), RatePerLiter: dec("750.125"),
		CollectedAt: testDay.Format(time.RFC3339),
	})

	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, map[string]string{
		"liters":         "must have at most 3 decimal places",
		"rate_per_liter": "must have at most 2 decimal places",
	}, verrs.ToMap())
	assert.Empty(t, f.store.collections)
}

func TestRecordCollection_InactiveCollector(t *testing.T) {
	f := newFixture(t)
	c := f.store.collectors[f.collectorID]
	c.IsActive = false
	f.store.collectors[f.collectorID] = c

	_, err := f.svc.RecordCollection(officeCtx(), settlement.RecordCollectionRequest{
		FarmerID: f.farmerA, CollectorID: f.collectorID, Liters: dec("5"), RatePerLiter: dec("750"),
		CollectedAt: testDay.Format(time.RFC3339),
	})

	assert.ErrorIs(t, err, settlement.ErrCollectorInactive)
	assert.Empty(t, f.store.collections)
}

func TestApproveCollection_Twice(t *testing.T) {
	f := newFixture(t)
	c := f.record(t, f.farmerA, "5", testDay.Add(6*time.Hour))

	_, err := f.svc.ApproveCollection(officeCtx(), c.ID)

	assert.ErrorIs(t, err, settlement.ErrCollectionAlreadyApproved)
}

// ===== DAILY SUMMARIES =====

func TestRecordCollection_KeepsSummaryProvisional(t *testing.T) {
	f := newFixture(t)
	f.record(t, f.farmerA, "12", testDay.Add(6*time.Hour))

	got, err := f.svc.ListDailySummaries(officeCtx(), settlement.DateRangeRequest{
		CollectorID: f.collectorID, From: periodStart, To: periodEnd,
	})

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "provisional", got[0].Status)
	assert.Nil(t, got[0].Variance)
	assert.Nil(t, got[0].PenaltyAmount)
	assertDecimal(t, "12", got[0].TotalRecordedLiters)
	assertDecimal(t, "9000", got[0].GrossAmount)
}

func TestRecordReceivedLiters_FinalizesWithPenalty(t *testing.T) {
	f := newFixture(t)
	f.record(t, f.farmerA, "12", testDay.Add(6*time.Hour))
	f.record(t, f.farmerB, "8", testDay.Add(7*time.Hour))

	summary := f.receive(t, testDay, "17")

	assert.Equal(t, "finalized", summary.Status)
	require.NotNil(t, summary.Variance)
	assertDecimal(t, "-3", *summary.Variance)
	require.NotNil(t, summary.PenaltyAmount)
	assertDecimal(t, "200", *summary.PenaltyAmount)
	assert.Equal(t, f.configID, *summary.PenaltyConfigID)
	assert.Contains(t, f.notifier.types(f.collectorID), notification.TypePenaltyApplied)
	assert.Contains(t, f.notifier.types(notification.RecipientOffice), notification.TypeSummaryFinalized)
}

func TestRecordReceivedLiters_LateCollectionRecomputesVariance(t *testing.T) {
	f := newFixture(t)
	f.record(t, f.farmerA, "12", testDay.Add(6*time.Hour))
	f.receive(t, testDay, "17")

	f.record(t, f.farmerB, "8", testDay.Add(7*time.Hour))

	stored := f.store.summaries[summaryKey(f.collectorID, testDay)]
	assert.Equal(t, settlement.SummaryStatusFinalized, stored.Status)
	assertDecimal(t, "-3", *stored.Variance)
	assertDecimal(t, "200", *stored.PenaltyAmount)
	assertDecimal(t, "15000", stored.GrossAmount)
}

func TestRecordReceivedLiters_NoActivePolicy_StaysProvisional(t *testing.T) {
	f := newFixture(t)
	f.record(t, f.farmerA, "12", testDay.Add(6*time.Hour))
	cfg := f.store.configs[f.configID]
	cfg.IsActive = false
	f.store.configs[f.configID] = cfg

	_, err := f.svc.RecordReceivedLiters(officeCtx(), settlement.RecordReceivedLitersRequest{
		CollectorID: f.collectorID, Date: periodEnd, ReceivedLiters: dec("12"),
	})

	assert.ErrorIs(t, err, settlement.ErrNoActivePolicy)
	stored := f.store.summaries[summaryKey(f.collectorID, testDay)]
	assert.True(t, stored.IsProvisional())
	assert.Nil(t, stored.PenaltyAmount)
}

func TestSummaryWrites_LockCollector(t *testing.T) {
	f := newFixture(t)
	f.record(t, f.farmerA, "12", testDay.Add(6*time.Hour))
	f.store.locks = nil

	f.receive(t, testDay, "11")
	assert.Equal(t, []string{f.collectorID}, f.store.locks)

	f.store.locks = nil
	_, err := f.svc.RecomputeDailySummary(officeCtx(), f.collectorID, periodEnd)
	require.NoError(t, err)
	assert.Equal(t, []string{f.collectorID}, f.store.locks)
}

func TestRecordReceivedLiters_FutureDate(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RecordReceivedLiters(officeCtx(), settlement.RecordReceivedLitersRequest{
		CollectorID: f.collectorID, Date: "2025-03-11", ReceivedLiters: dec("10"),
	})

	var verrs validator.ValidationErrors
	assert.ErrorAs(t, err, &verrs)
}

// ===== PENALTY CONFIG =====

func TestActivatePenaltyConfig_SingleActive(t *testing.T) {
	f := newFixture(t)
	ctx := officeCtx()

	created, err := f.svc.CreatePenaltyConfig(ctx, settlement.CreatePenaltyConfigRequest{Name: "Strict", Bands: testBands()})
	require.NoError(t, err)
	assert.Equal(t, 2, created.Version)
	assert.False(t, created.IsActive)

	activated, err := f.svc.ActivatePenaltyConfig(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, activated.IsActive)

	active, err := f.svc.GetActivePenaltyConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, created.ID, active.ID)
	assert.False(t, f.store.configs[f.configID].IsActive)
}

func TestCreatePenaltyConfig_InvalidBands(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreatePenaltyConfig(officeCtx(), settlement.CreatePenaltyConfigRequest{
		Name:  "Broken",
		Bands: []settlement.PenaltyBand{{LowerBoundLiters: dec("1"), Kind: settlement.BandKindNone}},
	})

	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Contains(t, verrs.ToMap(), "bands")
}

func TestCreatePenaltyConfig_CollectorForbidden(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreatePenaltyConfig(collectorCtx(f.collectorID), settlement.CreatePenaltyConfigRequest{Name: "Mine", Bands: testBands()})

	assert.ErrorIs(t, err, settlement.ErrForbiddenCollector)
}

func TestPreviewPenalty(t *testing.T) {
	f := newFixture(t)

	got, err := f.svc.PreviewPenalty(officeCtx(), settlement.PreviewPenaltyRequest{Variance: dec("-3")})

	require.NoError(t, err)
	assert.Equal(t, f.configID, got.ConfigID)
	assert.Equal(t, settlement.BandKindFlat, got.Band.Kind)
	assertDecimal(t, "200", got.PenaltyAmount)
}

// ===== PAYMENT BATCH GENERATOR =====

func TestGenerateCollectorPayment_NetPayable(t *testing.T) {
	f := newFixture(t)
	f.seedFinalizedWeek(t)
	unserved := f.addCredit(uuid.NewString(), "500", settlement.CreditStatusApproved)
	rejected := f.addCredit(f.farmerA, "300", settlement.CreditStatusRejected)

	p := f.generate(t)

	assert.Equal(t, "Generated", p.Status)
	assertDecimal(t, "15000", p.GrossEarnings)
	assertDecimal(t, "200", p.TotalPenalty)
	assertDecimal(t, "1000", p.CreditDeductions)
	assertDecimal(t, "13800", p.NetPayable)
	assert.Equal(t, 1, p.SummaryCount)
	require.Len(t, p.Credits, 1)
	assert.Equal(t, f.farmerA, p.Credits[0].FarmerID)

	stored := f.store.summaries[summaryKey(f.collectorID, testDay)]
	assert.True(t, stored.IsFrozen())
	assert.Equal(t, p.ID, *stored.CollectorPaymentID)
	assert.Nil(t, f.store.credits[unserved].CollectorPaymentID)
	assert.Nil(t, f.store.credits[rejected].CollectorPaymentID)

	assert.Contains(t, f.notifier.types(f.collectorID), notification.TypePaymentGenerated)
	assert.Contains(t, f.notifier.types(notification.RecipientOffice), notification.TypePaymentGenerated)
}

func TestGenerateCollectorPayment_NegativeNet(t *testing.T) {
	f := newFixture(t)
	f.seedFinalizedWeek(t)
	f.addCredit(f.farmerB, "20000", settlement.CreditStatusApproved)

	p := f.generate(t)

	assertDecimal(t, "-6200", p.NetPayable)
}

func TestGenerateCollectorPayment_Twice_ReturnsAlreadyGenerated(t *testing.T) {
	f := newFixture(t)
	f.seedFinalizedWeek(t)
	f.generate(t)

	_, err := f.svc.GenerateCollectorPayment(officeCtx(), settlement.GeneratePaymentRequest{
		CollectorID: f.collectorID, PeriodStart: periodStart, PeriodEnd: periodEnd,
	})
	assert.ErrorIs(t, err, settlement.ErrAlreadyGenerated)

	_, err = f.svc.GenerateCollectorPayment(officeCtx(), settlement.GeneratePaymentRequest{
		CollectorID: f.collectorID, PeriodStart: periodEnd, PeriodEnd: periodEnd,
	})
	assert.ErrorIs(t, err, settlement.ErrAlreadyGenerated)

	assert.Len(t, f.store.payments, 1)
}

func TestGenerateCollectorPayment_ProvisionalDay_ReturnsIncompletePeriod(t *testing.T) {
	f := newFixture(t)
	f.seedFinalizedWeek(t)
	provisionalDay := testDay.AddDate(0, 0, -1)
	f.record(t, f.farmerA, "10", provisionalDay.Add(6*time.Hour))

	_, err := f.svc.GenerateCollectorPayment(officeCtx(), settlement.GeneratePaymentRequest{
		CollectorID: f.collectorID, PeriodStart: periodStart, PeriodEnd: periodEnd,
	})

	var incomplete *settlement.IncompletePeriodError
	require.ErrorAs(t, err, &incomplete)
	assert.ErrorIs(t, err, settlement.ErrIncompletePeriod)
	assert.Equal(t, []time.Time{provisionalDay}, incomplete.ProvisionalDates)

	assert.Empty(t, f.store.payments)
	for _, c := range f.store.credits {
		assert.Nil(t, c.CollectorPaymentID)
	}
	assert.False(t, f.store.summaries[summaryKey(f.collectorID, testDay)].IsFrozen())
}

func TestGenerateCollectorPayment_UnapprovedCollection_ReturnsIncompletePeriod(t *testing.T) {
	f := newFixture(t)
	ctx := officeCtx()
	f.record(t, f.farmerA, "12", testDay.Add(6*time.Hour))
	pending, err := f.svc.RecordCollection(ctx, settlement.RecordCollectionRequest{
		FarmerID: f.farmerB, CollectorID: f.collectorID, Liters: dec("8"), RatePerLiter: dec("750"),
		CollectedAt: testDay.Add(7 * time.Hour).Format(time.RFC3339),
	})
	require.NoError(t, err)
	f.receive(t, testDay, "17")

	_, err = f.svc.GenerateCollectorPayment(ctx, settlement.GeneratePaymentRequest{
		CollectorID: f.collectorID, PeriodStart: periodStart, PeriodEnd: periodEnd,
	})

	var incomplete *settlement.IncompletePeriodError
	require.ErrorAs(t, err, &incomplete)
	assert.Empty(t, incomplete.ProvisionalDates)
	assert.Equal(t, []time.Time{testDay}, incomplete.UnapprovedDates)
	assert.Empty(t, f.store.payments)
	assert.False(t, f.store.summaries[summaryKey(f.collectorID, testDay)].IsFrozen())

	_, err = f.svc.ApproveCollection(ctx, pending.ID)
	require.NoError(t, err)

	p := f.generate(t)
	assertDecimal(t, "15000", p.GrossEarnings)
	assertDecimal(t, "200", p.TotalPenalty)
}

func TestGenerateCollectorPayment_OpenPeriod_ReturnsPeriodNotClosed(t *testing.T) {
	f := newFixture(t)
	f.seedFinalizedWeek(t)

	_, err := f.svc.GenerateCollectorPayment(officeCtx(), settlement.GeneratePaymentRequest{
		CollectorID: f.collectorID, PeriodStart: periodStart, PeriodEnd: testNow.Format(settlement.DateLayout),
	})

	assert.ErrorIs(t, err, settlement.ErrPeriodNotClosed)
	assert.Empty(t, f.store.payments)
}

func TestGenerateCollectorPayment_NothingFinalized_ReturnsInvalidPeriod(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GenerateCollectorPayment(officeCtx(), settlement.GeneratePaymentRequest{
		CollectorID: f.collectorID, PeriodStart: periodStart, PeriodEnd: periodEnd,
	})

	assert.ErrorIs(t, err, settlement.ErrInvalidPeriod)
}

func TestRecordCollection_FrozenDay_ReturnsSummaryFrozen(t *testing.T) {
	f := newFixture(t)
	f.seedFinalizedWeek(t)
	f.generate(t)
	before := len(f.store.collections)

	_, err := f.svc.RecordCollection(officeCtx(), settlement.RecordCollectionRequest{
		FarmerID: f.farmerA, CollectorID: f.collectorID, Liters: dec("4"), RatePerLiter: dec("750"),
		CollectedAt: testDay.Add(10 * time.Hour).Format(time.RFC3339),
	})

	assert.ErrorIs(t, err, settlement.ErrSummaryFrozen)
	assert.Len(t, f.store.collections, before)
}

func TestListCollectorPayments_CollectorSeesOwnOnly(t *testing.T) {
	f := newFixture(t)
	f.seedFinalizedWeek(t)
	f.generate(t)
	other := uuid.NewString()

	own, err := f.svc.ListCollectorPayments(collectorCtx(f.collectorID), settlement.PaymentFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), own.TotalCount)
	assert.Equal(t, 20, own.Limit)

	none, err := f.svc.ListCollectorPayments(collectorCtx(other), settlement.PaymentFilter{})
	require.NoError(t, err)
	assert.Empty(t, none.Data)

	_, err = f.svc.ListCollectorPayments(collectorCtx(other), settlement.PaymentFilter{CollectorID: &f.collectorID})
	assert.ErrorIs(t, err, settlement.ErrForbiddenCollector)
}

// ===== SETTLEMENT STATE MACHINE =====

func TestMarkPaymentPaid_SettlesCreditsAndCollections(t *testing.T) {
	f := newFixture(t)
	f.seedFinalizedWeek(t)
	p := f.generate(t)
	ctx := officeCtx()

	pending, err := f.svc.MarkPaymentPending(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pending", pending.Status)
	assert.NotNil(t, pending.ReviewedAt)

	paid, err := f.svc.MarkPaymentPaid(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Paid", paid.Status)
	assert.NotNil(t, paid.PaidAt)
	require.Len(t, paid.Credits, 1)
	assert.Equal(t, "paid", paid.Credits[0].SettlementStatus)

	for _, c := range f.store.collections {
		assert.Equal(t, settlement.CollectionStatusPaid, c.Status)
	}
	ledger, err := f.svc.ListCollectorCollections(ctx, settlement.DateRangeRequest{
		CollectorID: f.collectorID, From: periodStart, To: periodEnd,
	})
	require.NoError(t, err)
	assert.Empty(t, ledger)
	assert.Contains(t, f.notifier.types(f.collectorID), notification.TypePaymentPaid)
}

func TestMarkPaymentPaid_CreditFailure_StaysPending(t *testing.T) {
	f := newFixture(t)
	f.seedFinalizedWeek(t)
	p := f.generate(t)
	ctx := officeCtx()
	_, err := f.svc.MarkPaymentPending(ctx, p.ID)
	require.NoError(t, err)

	f.store.settleErr = errors.New("credit ledger unavailable")
	_, err = f.svc.MarkPaymentPaid(ctx, p.ID)

	assert.ErrorIs(t, err, settlement.ErrSettlementAtomicity)
	var atomicity *settlement.SettlementAtomicityError
	require.ErrorAs(t, err, &atomicity)
	assert.Equal(t, p.ID, atomicity.PaymentID)

	stored := f.store.payments[p.ID]
	assert.Equal(t, settlement.PaymentStatusPending, stored.Status)
	assert.Nil(t, stored.PaidAt)
	for _, c := range f.store.credits {
		assert.Equal(t, settlement.CreditSettlementPending, c.SettlementStatus)
	}
	for _, c := range f.store.collections {
		assert.Equal(t, settlement.CollectionStatusApproved, c.Status)
	}

	// retry succeeds once the credit ledger recovers
	f.store.settleErr = nil
	paid, err := f.svc.MarkPaymentPaid(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Paid", paid.Status)
}

func TestPaymentTransitions_Invalid(t *testing.T) {
	f := newFixture(t)
	f.seedFinalizedWeek(t)
	p := f.generate(t)
	ctx := officeCtx()

	_, err := f.svc.MarkPaymentPaid(ctx, p.ID)
	assert.ErrorIs(t, err, settlement.ErrInvalidTransition, "Generated cannot skip to Paid")

	_, err = f.svc.MarkPaymentPending(ctx, p.ID)
	require.NoError(t, err)
	_, err = f.svc.MarkPaymentPending(ctx, p.ID)
	assert.ErrorIs(t, err, settlement.ErrInvalidTransition)

	_, err = f.svc.MarkPaymentPaid(ctx, p.ID)
	require.NoError(t, err)
	_, err = f.svc.MarkPaymentPaid(ctx, p.ID)
	assert.ErrorIs(t, err, settlement.ErrInvalidTransition, "Paid is terminal")
}

func TestMarkPaymentPaid_CollectorForbidden(t *testing.T) {
	f := newFixture(t)
	f.seedFinalizedWeek(t)
	p := f.generate(t)

	_, err := f.svc.MarkPaymentPending(collectorCtx(f.collectorID), p.ID)

	assert.ErrorIs(t, err, settlement.ErrForbiddenCollector)
	assert.Equal(t, settlement.PaymentStatusGenerated, f.store.payments[p.ID].Status)
}

func TestGetCollectorPayment_UnknownID(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetCollectorPayment(officeCtx(), uuid.NewString())

	assert.ErrorIs(t, err, settlement.ErrNotFound)
}

// ===== OVERVIEW =====

func TestGetPeriodOverview_Readiness(t *testing.T) {
	f := newFixture(t)
	ctx := officeCtx()
	req := settlement.DateRangeRequest{CollectorID: f.collectorID, From: periodStart, To: periodEnd}

	f.record(t, f.farmerA, "12", testDay.Add(6*time.Hour))
	f.record(t, f.farmerB, "8", testDay.Add(7*time.Hour))
	f.addCredit(f.farmerA, "1000", settlement.CreditStatusApproved)

	before, err := f.svc.GetPeriodOverview(ctx, req)
	require.NoError(t, err)
	assert.False(t, before.ReadyForGeneration)
	assert.Equal(t, []string{periodEnd}, before.ProvisionalDates)

	f.receive(t, testDay, "17")

	ready, err := f.svc.GetPeriodOverview(ctx, req)
	require.NoError(t, err)
	assert.True(t, ready.ReadyForGeneration)
	assert.Empty(t, ready.ProvisionalDates)
	assertDecimal(t, "15000", ready.GrossEarnings)
	assertDecimal(t, "200", ready.TotalPenalty)
	assertDecimal(t, "1000", ready.PendingCreditTotal)

	f.generate(t)

	after, err := f.svc.GetPeriodOverview(ctx, req)
	require.NoError(t, err)
	assert.False(t, after.ReadyForGeneration)
	assert.Len(t, after.ExistingPayments, 1)
}

func TestGetPeriodOverview_UnapprovedCollectionBlocks(t *testing.T) {
	f := newFixture(t)
	ctx := officeCtx()
	req := settlement.DateRangeRequest{CollectorID: f.collectorID, From: periodStart, To: periodEnd}

	f.record(t, f.farmerA, "12", testDay.Add(6*time.Hour))
	_, err := f.svc.RecordCollection(ctx, settlement.RecordCollectionRequest{
		FarmerID: f.farmerB, CollectorID: f.collectorID, Liters: dec("8"), RatePerLiter: dec("750"),
		CollectedAt: testDay.Add(7 * time.Hour).Format(time.RFC3339),
	})
	require.NoError(t, err)
	f.receive(t, testDay, "17")

	overview, err := f.svc.GetPeriodOverview(ctx, req)
	require.NoError(t, err)
	assert.False(t, overview.ReadyForGeneration)
	assert.Empty(t, overview.ProvisionalDates)
	assert.Equal(t, []string{periodEnd}, overview.UnapprovedDates)
}
