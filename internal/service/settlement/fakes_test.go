package settlement

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dairycoop/settlement-backend/internal/domain/notification"
	"github.com/dairycoop/settlement-backend/internal/domain/settlement"
	"github.com/google/uuid"
)

// memStore is an in-memory stand-in for the relational store. memTx
// snapshots it before a unit of work and restores it when the work fails.
type memStore struct {
	mu          sync.Mutex
	collectors  map[string]settlement.Collector
	collections map[string]settlement.Collection
	summaries   map[string]settlement.DailyCollectorSummary
	configs     map[string]settlement.VariancePenaltyConfig
	credits     map[string]settlement.CreditRequest
	payments    map[string]settlement.CollectorPayment

	settleErr error
	locks     []string // collector ids passed to LockCollector
}

func newMemStore() *memStore {
	return &memStore{
		collectors:  map[string]settlement.Collector{},
		collections: map[string]settlement.Collection{},
		summaries:   map[string]settlement.DailyCollectorSummary{},
		configs:     map[string]settlement.VariancePenaltyConfig{},
		credits:     map[string]settlement.CreditRequest{},
		payments:    map[string]settlement.CollectorPayment{},
	}
}

func copyMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (st *memStore) snapshot() *memStore {
	return &memStore{
		collectors:  copyMap(st.collectors),
		collections: copyMap(st.collections),
		summaries:   copyMap(st.summaries),
		configs:     copyMap(st.configs),
		credits:     copyMap(st.credits),
		payments:    copyMap(st.payments),
	}
}

func (st *memStore) restore(snap *memStore) {
	st.collectors = snap.collectors
	st.collections = snap.collections
	st.summaries = snap.summaries
	st.configs = snap.configs
	st.credits = snap.credits
	st.payments = snap.payments
}

func (st *memStore) repositories() Repositories {
	return Repositories{
		Staff:          memStaff{st},
		Collections:    memCollections{st},
		Summaries:      memSummaries{st},
		PenaltyConfigs: memConfigs{st},
		Credits:        memCredits{st},
		Payments:       memPayments{st},
	}
}

func inRange(d, from, to time.Time) bool {
	return !d.Before(from) && !d.After(to)
}

func summaryKey(collectorID string, day time.Time) string {
	return collectorID + "|" + day.Format(settlement.DateLayout)
}

// ========== TRANSACTOR ==========

type memTx struct{ st *memStore }

func (t memTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.st.mu.Lock()
	snap := t.st.snapshot()
	t.st.mu.Unlock()

	if err := fn(ctx); err != nil {
		t.st.mu.Lock()
		t.st.restore(snap)
		t.st.mu.Unlock()
		return err
	}
	return nil
}

// ========== STAFF ==========

type memStaff struct{ st *memStore }

func (r memStaff) GetCollectorByID(_ context.Context, id string) (settlement.Collector, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	c, ok := r.st.collectors[id]
	if !ok {
		return settlement.Collector{}, settlement.ErrCollectorNotFound
	}
	return c, nil
}

func (r memStaff) LockCollector(ctx context.Context, id string) (settlement.Collector, error) {
	r.st.mu.Lock()
	r.st.locks = append(r.st.locks, id)
	r.st.mu.Unlock()
	return r.GetCollectorByID(ctx, id)
}

func (r memStaff) ListActiveCollectors(_ context.Context) ([]settlement.Collector, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []settlement.Collector
	for _, c := range r.st.collectors {
		if c.IsActive {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ========== COLLECTIONS ==========

type memCollections struct{ st *memStore }

func (r memCollections) Create(_ context.Context, c settlement.Collection) (settlement.Collection, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	r.st.collections[c.ID] = c
	return c, nil
}

func (r memCollections) GetByID(_ context.Context, id string) (settlement.Collection, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	c, ok := r.st.collections[id]
	if !ok {
		return settlement.Collection{}, settlement.ErrCollectionNotFound
	}
	return c, nil
}

func (r memCollections) ListByCollector(_ context.Context, collectorID string, from, to time.Time, statuses []settlement.CollectionStatus) ([]settlement.Collection, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []settlement.Collection
	for _, c := range r.st.collections {
		if c.CollectorID != collectorID || !inRange(c.CollectionDate, from, to) {
			continue
		}
		for _, s := range statuses {
			if c.Status == s {
				out = append(out, c)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CollectedAt.Equal(out[j].CollectedAt) {
			return out[i].CollectedAt.Before(out[j].CollectedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r memCollections) Approve(_ context.Context, id string, approvedBy string, approvedAt time.Time) (settlement.Collection, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	c, ok := r.st.collections[id]
	if !ok {
		return settlement.Collection{}, settlement.ErrCollectionNotFound
	}
	if c.Status != settlement.CollectionStatusCollected {
		return settlement.Collection{}, settlement.ErrCollectionAlreadyApproved
	}
	c.Status = settlement.CollectionStatusApproved
	c.ApprovedBy = &approvedBy
	c.ApprovedAt = &approvedAt
	r.st.collections[id] = c
	return c, nil
}

func (r memCollections) MarkPaid(_ context.Context, collectorID string, from, to time.Time) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var n int64
	for id, c := range r.st.collections {
		if c.CollectorID == collectorID && inRange(c.CollectionDate, from, to) && c.Status == settlement.CollectionStatusApproved {
			c.Status = settlement.CollectionStatusPaid
			r.st.collections[id] = c
			n++
		}
	}
	return n, nil
}

// ========== DAILY SUMMARIES ==========

type memSummaries struct{ st *memStore }

func (r memSummaries) Get(_ context.Context, collectorID string, date time.Time) (settlement.DailyCollectorSummary, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	s, ok := r.st.summaries[summaryKey(collectorID, date)]
	if !ok {
		return settlement.DailyCollectorSummary{}, settlement.ErrDailySummaryNotFound
	}
	return s, nil
}

func (r memSummaries) Upsert(_ context.Context, s settlement.DailyCollectorSummary) (settlement.DailyCollectorSummary, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	key := summaryKey(s.CollectorID, s.SummaryDate)
	if existing, ok := r.st.summaries[key]; ok {
		if existing.IsFrozen() {
			return settlement.DailyCollectorSummary{}, settlement.ErrSummaryFrozen
		}
		s.ID = existing.ID
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	r.st.summaries[key] = s
	return s, nil
}

func (r memSummaries) ListByCollector(_ context.Context, collectorID string, from, to time.Time) ([]settlement.DailyCollectorSummary, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []settlement.DailyCollectorSummary
	for _, s := range r.st.summaries {
		if s.CollectorID == collectorID && inRange(s.SummaryDate, from, to) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SummaryDate.Before(out[j].SummaryDate) })
	return out, nil
}

func (r memSummaries) Freeze(_ context.Context, ids []string, paymentID string) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var n int64
	for key, s := range r.st.summaries {
		for _, id := range ids {
			if s.ID == id && s.Status == settlement.SummaryStatusFinalized {
				s.Status = settlement.SummaryStatusFrozen
				s.CollectorPaymentID = &paymentID
				r.st.summaries[key] = s
				n++
			}
		}
	}
	return n, nil
}

func (r memSummaries) ListProvisionalBefore(_ context.Context, before time.Time) ([]settlement.DailyCollectorSummary, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []settlement.DailyCollectorSummary
	for _, s := range r.st.summaries {
		if s.IsProvisional() && s.SummaryDate.Before(before) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SummaryDate.Before(out[j].SummaryDate) })
	return out, nil
}

// ========== PENALTY CONFIGS ==========

type memConfigs struct{ st *memStore }

func (r memConfigs) Create(_ context.Context, cfg settlement.VariancePenaltyConfig) (settlement.VariancePenaltyConfig, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	version := 0
	for _, c := range r.st.configs {
		if c.Version > version {
			version = c.Version
		}
	}
	cfg.Version = version + 1
	cfg.IsActive = false
	r.st.configs[cfg.ID] = cfg
	return cfg, nil
}

func (r memConfigs) GetByID(_ context.Context, id string) (settlement.VariancePenaltyConfig, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	cfg, ok := r.st.configs[id]
	if !ok {
		return settlement.VariancePenaltyConfig{}, settlement.ErrPenaltyConfigNotFound
	}
	return cfg, nil
}

func (r memConfigs) GetActive(_ context.Context) (settlement.VariancePenaltyConfig, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, cfg := range r.st.configs {
		if cfg.IsActive {
			return cfg, nil
		}
	}
	return settlement.VariancePenaltyConfig{}, settlement.ErrNoActivePolicy
}

func (r memConfigs) List(_ context.Context) ([]settlement.VariancePenaltyConfig, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []settlement.VariancePenaltyConfig
	for _, cfg := range r.st.configs {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (r memConfigs) Activate(_ context.Context, id string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.configs[id]; !ok {
		return settlement.ErrPenaltyConfigNotFound
	}
	for key, cfg := range r.st.configs {
		cfg.IsActive = key == id
		r.st.configs[key] = cfg
	}
	return nil
}

// ========== CREDITS ==========

type memCredits struct{ st *memStore }

func (r memCredits) sorted(match func(settlement.CreditRequest) bool) []settlement.CreditRequest {
	var out []settlement.CreditRequest
	for _, c := range r.st.credits {
		if match(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r memCredits) ListDeductible(_ context.Context, farmerIDs []string) ([]settlement.CreditRequest, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	farmers := map[string]bool{}
	for _, f := range farmerIDs {
		farmers[f] = true
	}
	return r.sorted(func(c settlement.CreditRequest) bool {
		return farmers[c.FarmerID] &&
			c.Status == settlement.CreditStatusApproved &&
			c.SettlementStatus == settlement.CreditSettlementPending &&
			c.CollectorPaymentID == nil
	}), nil
}

func (r memCredits) AttachToPayment(_ context.Context, ids []string, paymentID string) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var n int64
	for _, id := range ids {
		c, ok := r.st.credits[id]
		if !ok || c.CollectorPaymentID != nil {
			continue
		}
		pid := paymentID
		c.CollectorPaymentID = &pid
		r.st.credits[id] = c
		n++
	}
	return n, nil
}

func (r memCredits) ListByPayment(_ context.Context, paymentID string) ([]settlement.CreditRequest, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return r.sorted(func(c settlement.CreditRequest) bool {
		return c.CollectorPaymentID != nil && *c.CollectorPaymentID == paymentID
	}), nil
}

func (r memCredits) SettleByPayment(_ context.Context, paymentID string, settledAt time.Time) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if r.st.settleErr != nil {
		return 0, r.st.settleErr
	}
	var n int64
	for id, c := range r.st.credits {
		if c.CollectorPaymentID != nil && *c.CollectorPaymentID == paymentID && c.SettlementStatus == settlement.CreditSettlementPending {
			at := settledAt
			c.SettlementStatus = settlement.CreditSettlementPaid
			c.SettledAt = &at
			r.st.credits[id] = c
			n++
		}
	}
	return n, nil
}

// ========== PAYMENTS ==========

type memPayments struct{ st *memStore }

func (r memPayments) Create(_ context.Context, p settlement.CollectorPayment) (settlement.CollectorPayment, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, existing := range r.st.payments {
		if existing.CollectorID == p.CollectorID && existing.PeriodStart.Equal(p.PeriodStart) && existing.PeriodEnd.Equal(p.PeriodEnd) {
			return settlement.CollectorPayment{}, settlement.ErrAlreadyGenerated
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	r.st.payments[p.ID] = p
	return p, nil
}

func (r memPayments) GetByID(_ context.Context, id string) (settlement.CollectorPayment, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	p, ok := r.st.payments[id]
	if !ok {
		return settlement.CollectorPayment{}, settlement.ErrPaymentNotFound
	}
	return p, nil
}

func (r memPayments) LockByID(ctx context.Context, id string) (settlement.CollectorPayment, error) {
	return r.GetByID(ctx, id)
}

func (r memPayments) FindOverlapping(_ context.Context, collectorID string, start, end time.Time) ([]settlement.CollectorPayment, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []settlement.CollectorPayment
	for _, p := range r.st.payments {
		if p.CollectorID == collectorID && !p.PeriodStart.After(end) && !p.PeriodEnd.Before(start) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r memPayments) UpdateStatus(_ context.Context, id string, from, to settlement.PaymentStatus, actor string, at time.Time) (settlement.CollectorPayment, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	p, ok := r.st.payments[id]
	if !ok || p.Status != from {
		return settlement.CollectorPayment{}, settlement.ErrInvalidTransition
	}
	p.Status = to
	switch to {
	case settlement.PaymentStatusPending:
		p.ReviewedBy, p.ReviewedAt = &actor, &at
	case settlement.PaymentStatusPaid:
		p.PaidBy, p.PaidAt = &actor, &at
	}
	r.st.payments[id] = p
	return p, nil
}

func (r memPayments) List(_ context.Context, filter settlement.PaymentFilter) ([]settlement.CollectorPayment, int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []settlement.CollectorPayment
	for _, p := range r.st.payments {
		if filter.CollectorID != nil && p.CollectorID != *filter.CollectorID {
			continue
		}
		if filter.Status != nil && string(p.Status) != *filter.Status {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodStart.After(out[j].PeriodStart) })
	return out, int64(len(out)), nil
}

// ========== NOTIFIER ==========

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification.CreateNotificationRequest
}

func (n *recordingNotifier) QueueNotification(_ context.Context, req notification.CreateNotificationRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, req)
	return nil
}

func (n *recordingNotifier) GetNotifications(context.Context, []string, notification.ListQuery) (*notification.NotificationListResponse, error) {
	return nil, errors.New("not implemented")
}

func (n *recordingNotifier) MarkAsRead(context.Context, []string, notification.MarkAsReadRequest) error {
	return errors.New("not implemented")
}

func (n *recordingNotifier) Subscribe(context.Context, []string) (<-chan notification.SSEEvent, func()) {
	ch := make(chan notification.SSEEvent)
	close(ch)
	return ch, func() {}
}

func (n *recordingNotifier) Stop() {}

func (n *recordingNotifier) types(recipient string) []notification.NotificationType {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notification.NotificationType
	for _, req := range n.sent {
		if req.RecipientID == recipient {
			out = append(out, req.Type)
		}
	}
	return out
}
