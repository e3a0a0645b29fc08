package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marketvend/payout-service/internal/domain"
	"github.com/marketvend/payout-service/internal/store"
)

// memoryRepo is an in-memory store.Repository used by the app tests. It
// mirrors the conditional-update semantics of the Postgres implementation:
// reservations debit available atomically, status transitions are guarded on
// the current status.
type memoryRepo struct {
	mu           sync.Mutex
	balances     map[uuid.UUID]*domain.VendorBalance
	reservations map[uuid.UUID]*domain.BalanceReservation
	accounts     map[uuid.UUID]*domain.PayoutAccount
	payouts      map[uuid.UUID]*domain.Payout
	schedules    map[uuid.UUID]*domain.PayoutSchedule
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		balances:     make(map[uuid.UUID]*domain.VendorBalance),
		reservations: make(map[uuid.UUID]*domain.BalanceReservation),
		accounts:     make(map[uuid.UUID]*domain.PayoutAccount),
		payouts:      make(map[uuid.UUID]*domain.Payout),
		schedules:    make(map[uuid.UUID]*domain.PayoutSchedule),
	}
}

func (m *memoryRepo) seedBalance(vendorID uuid.UUID, available int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[vendorID] = &domain.VendorBalance{
		VendorID:  vendorID,
		Available: available,
		Currency:  "USD",
		UpdatedAt: time.Now(),
	}
}

func (m *memoryRepo) seedAccount(account *domain.PayoutAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.ID] = account
}

func (m *memoryRepo) GetVendorBalance(ctx context.Context, vendorID uuid.UUID) (*domain.VendorBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[vendorID]
	if !ok {
		return nil, store.ErrVendorBalanceNotFound
	}
	copied := *balance
	return &copied, nil
}

func (m *memoryRepo) ReserveBalance(ctx context.Context, vendorID uuid.UUID, amount int64) (*domain.BalanceReservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[vendorID]
	if !ok {
		return nil, store.ErrVendorBalanceNotFound
	}
	if amount <= 0 || balance.Available < amount {
		return nil, store.ErrInsufficientBalance
	}
	balance.Available -= amount
	reservation := &domain.BalanceReservation{
		ID:        uuid.New(),
		VendorID:  vendorID,
		Amount:    amount,
		State:     domain.ReservationOpen,
		CreatedAt: time.Now(),
	}
	m.reservations[reservation.ID] = reservation
	return reservation, nil
}

func (m *memoryRepo) CommitReservation(ctx context.Context, reservationID uuid.UUID) error {
	return m.settle(reservationID, domain.ReservationCommitted)
}

func (m *memoryRepo) ReleaseReservation(ctx context.Context, reservationID uuid.UUID) error {
	return m.settle(reservationID, domain.ReservationReleased)
}

func (m *memoryRepo) settle(reservationID uuid.UUID, toState string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	reservation, ok := m.reservations[reservationID]
	if !ok {
		return store.ErrReservationNotFound
	}
	if reservation.State != domain.ReservationOpen {
		return nil
	}
	reservation.State = toState
	now := time.Now()
	reservation.SettledAt = &now
	balance := m.balances[reservation.VendorID]
	if toState == domain.ReservationReleased {
		balance.Available += reservation.Amount
	} else {
		balance.TotalPayouts += reservation.Amount
	}
	return nil
}

func (m *memoryRepo) AttachReservationPayout(ctx context.Context, reservationID, payoutID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	reservation, ok := m.reservations[reservationID]
	if !ok {
		return store.ErrReservationNotFound
	}
	reservation.PayoutID = &payoutID
	return nil
}

func (m *memoryRepo) FindStaleOpenReservations(ctx context.Context, olderThan time.Time) ([]domain.BalanceReservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stale []domain.BalanceReservation
	for _, reservation := range m.reservations {
		if reservation.State == domain.ReservationOpen && reservation.CreatedAt.Before(olderThan) {
			stale = append(stale, *reservation)
		}
	}
	return stale, nil
}

func (m *memoryRepo) CreditEarnings(ctx context.Context, vendorID uuid.UUID, amount int64, currency string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[vendorID]
	if !ok {
		balance = &domain.VendorBalance{VendorID: vendorID, Currency: currency}
		m.balances[vendorID] = balance
	}
	balance.Pending += amount
	balance.TotalEarnings += amount
	return nil
}

func (m *memoryRepo) SettlePendingBalance(ctx context.Context, vendorID uuid.UUID, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[vendorID]
	if !ok || balance.Pending < amount {
		return store.ErrInsufficientBalance
	}
	balance.Pending -= amount
	balance.Available += amount
	return nil
}

func (m *memoryRepo) HoldBalance(ctx context.Context, vendorID uuid.UUID, amount int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[vendorID]
	if !ok || balance.Available < amount {
		return store.ErrInsufficientBalance
	}
	balance.Available -= amount
	balance.OnHold += amount
	balance.HoldReason = &reason
	return nil
}

func (m *memoryRepo) ReleaseHold(ctx context.Context, vendorID uuid.UUID, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[vendorID]
	if !ok || balance.OnHold < amount {
		return store.ErrInsufficientBalance
	}
	balance.OnHold -= amount
	balance.Available += amount
	if balance.OnHold == 0 {
		balance.HoldReason = nil
	}
	return nil
}

func (m *memoryRepo) CreatePayoutAccount(ctx context.Context, account *domain.PayoutAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	hasAny := false
	for _, existing := range m.accounts {
		if existing.VendorID == account.VendorID {
			hasAny = true
			break
		}
	}
	if !hasAny {
		account.IsPrimary = true
	}
	if account.IsPrimary {
		for _, existing := range m.accounts {
			if existing.VendorID == account.VendorID {
				existing.IsPrimary = false
			}
		}
	}
	account.CreatedAt = time.Now()
	account.UpdatedAt = account.CreatedAt
	m.accounts[account.ID] = account
	return nil
}

func (m *memoryRepo) FindPayoutAccountByID(ctx context.Context, accountID, vendorID uuid.UUID) (*domain.PayoutAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[accountID]
	if !ok || account.VendorID != vendorID {
		return nil, store.ErrPayoutAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (m *memoryRepo) FindPayoutAccountsByVendorID(ctx context.Context, vendorID uuid.UUID) ([]domain.PayoutAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var accounts []domain.PayoutAccount
	for _, account := range m.accounts {
		if account.VendorID == vendorID {
			accounts = append(accounts, *account)
		}
	}
	return accounts, nil
}

func (m *memoryRepo) FindPrimaryPayoutAccount(ctx context.Context, vendorID uuid.UUID) (*domain.PayoutAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.accounts {
		if account.VendorID == vendorID && account.IsPrimary {
			copied := *account
			return &copied, nil
		}
	}
	return nil, store.ErrPayoutAccountNotFound
}

func (m *memoryRepo) SetPrimaryPayoutAccount(ctx context.Context, vendorID, accountID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.accounts[accountID]
	if !ok || target.VendorID != vendorID {
		return store.ErrPayoutAccountNotFound
	}
	for _, account := range m.accounts {
		if account.VendorID == vendorID {
			account.IsPrimary = false
		}
	}
	target.IsPrimary = true
	return nil
}

func (m *memoryRepo) MarkAccountVerified(ctx context.Context, accountID uuid.UUID, stripeAccountID, paypalMerchantID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[accountID]
	if !ok {
		return store.ErrPayoutAccountNotFound
	}
	account.VerificationStatus = domain.VerificationVerified
	if stripeAccountID != nil {
		account.StripeAccountID = stripeAccountID
	}
	if paypalMerchantID != nil {
		account.PayPalMerchantID = paypalMerchantID
	}
	now := time.Now()
	account.VerifiedAt = &now
	account.VerificationAttempts++
	return nil
}

func (m *memoryRepo) MarkAccountVerificationFailed(ctx context.Context, accountID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[accountID]
	if !ok {
		return store.ErrPayoutAccountNotFound
	}
	account.VerificationStatus = domain.VerificationFailed
	account.VerificationAttempts++
	return nil
}

func (m *memoryRepo) DeletePayoutAccount(ctx context.Context, accountID, vendorID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[accountID]
	if !ok || account.VendorID != vendorID {
		return false, nil
	}
	for _, payout := range m.payouts {
		if payout.PayoutAccountID == accountID && !payout.IsTerminal() {
			return false, nil
		}
	}
	delete(m.accounts, accountID)
	return true, nil
}

func (m *memoryRepo) CreatePayout(ctx context.Context, payout *domain.Payout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	payout.CreatedAt = time.Now()
	payout.UpdatedAt = payout.CreatedAt
	copied := *payout
	m.payouts[payout.ID] = &copied
	return nil
}

func (m *memoryRepo) FindPayoutByID(ctx context.Context, payoutID uuid.UUID) (*domain.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payout, ok := m.payouts[payoutID]
	if !ok {
		return nil, store.ErrPayoutNotFound
	}
	copied := *payout
	return &copied, nil
}

func (m *memoryRepo) FindPayoutByProcessorReference(ctx context.Context, processorReference string) (*domain.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, payout := range m.payouts {
		if payout.ProcessorReference != nil && *payout.ProcessorReference == processorReference {
			copied := *payout
			return &copied, nil
		}
	}
	return nil, store.ErrPayoutNotFound
}

func (m *memoryRepo) ListPayoutsByVendorID(ctx context.Context, vendorID uuid.UUID, opts domain.PayoutListOptions) ([]domain.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var payouts []domain.Payout
	for _, payout := range m.payouts {
		if payout.VendorID != vendorID {
			continue
		}
		if opts.Status != "" && payout.Status != opts.Status {
			continue
		}
		payouts = append(payouts, *payout)
	}
	return payouts, nil
}

func (m *memoryRepo) FindStuckProcessingPayouts(ctx context.Context, olderThan time.Time, limit int) ([]domain.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stuck []domain.Payout
	for _, payout := range m.payouts {
		if payout.Status == domain.PayoutStatusProcessing &&
			payout.ProcessedAt != nil && payout.ProcessedAt.Before(olderThan) {
			stuck = append(stuck, *payout)
		}
	}
	return stuck, nil
}

func (m *memoryRepo) MarkPayoutProcessing(ctx context.Context, payoutID uuid.UUID, processorReference *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payout, ok := m.payouts[payoutID]
	if !ok || payout.Status != domain.PayoutStatusPending {
		return false, nil
	}
	payout.Status = domain.PayoutStatusProcessing
	if processorReference != nil {
		payout.ProcessorReference = processorReference
	}
	now := time.Now()
	payout.ProcessedAt = &now
	return true, nil
}

func (m *memoryRepo) MarkPayoutCompleted(ctx context.Context, payoutID uuid.UUID, processorReference string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payout, ok := m.payouts[payoutID]
	if !ok || payout.Status != domain.PayoutStatusProcessing {
		return false, nil
	}
	payout.Status = domain.PayoutStatusCompleted
	if processorReference != "" {
		payout.ProcessorReference = &processorReference
	}
	now := time.Now()
	payout.CompletedAt = &now
	payout.FailureReason = nil
	return true, nil
}

func (m *memoryRepo) MarkPayoutFailed(ctx context.Context, payoutID uuid.UUID, failureReason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payout, ok := m.payouts[payoutID]
	if !ok || payout.IsTerminal() {
		return false, nil
	}
	payout.Status = domain.PayoutStatusFailed
	payout.FailureReason = &failureReason
	return true, nil
}

func (m *memoryRepo) MarkPayoutCancelled(ctx context.Context, payoutID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payout, ok := m.payouts[payoutID]
	if !ok || payout.IsTerminal() {
		return false, nil
	}
	payout.Status = domain.PayoutStatusCancelled
	return true, nil
}

func (m *memoryRepo) IncrementPayoutRetryCount(ctx context.Context, payoutID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payout, ok := m.payouts[payoutID]
	if !ok {
		return 0, store.ErrPayoutNotFound
	}
	payout.RetryCount++
	return payout.RetryCount, nil
}

func (m *memoryRepo) RevertPayoutToPending(ctx context.Context, payoutID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payout, ok := m.payouts[payoutID]
	if !ok || payout.Status != domain.PayoutStatusProcessing {
		return 0, store.ErrPayoutNotFound
	}
	payout.Status = domain.PayoutStatusPending
	payout.RetryCount++
	payout.UpdatedAt = time.Now()
	return payout.RetryCount, nil
}

func (m *memoryRepo) FindStalePendingPayouts(ctx context.Context, olderThan time.Time, limit int) ([]domain.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	var out []domain.Payout
	for _, p := range m.payouts {
		if p.Status == domain.PayoutStatusPending && p.ReservationID != nil && p.UpdatedAt.Before(olderThan) {
			out = append(out, *p)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memoryRepo) RequeuePayoutForRetry(ctx context.Context, payoutID, reservationID uuid.UUID, maxRetries int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payout, ok := m.payouts[payoutID]
	if !ok || payout.Status != domain.PayoutStatusFailed || payout.RetryCount >= maxRetries {
		return false, nil
	}
	payout.Status = domain.PayoutStatusPending
	payout.ReservationID = &reservationID
	payout.RetryCount++
	payout.FailureReason = nil
	payout.ProcessorReference = nil
	payout.ProcessedAt = nil
	return true, nil
}

func (m *memoryRepo) UpdatePayoutProcessorReference(ctx context.Context, payoutID uuid.UUID, processorReference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	payout, ok := m.payouts[payoutID]
	if !ok {
		return store.ErrPayoutNotFound
	}
	payout.ProcessorReference = &processorReference
	return nil
}

func (m *memoryRepo) PayoutSummaryByVendorID(ctx context.Context, vendorID uuid.UUID) (*domain.PayoutSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	summary := &domain.PayoutSummary{}
	for _, payout := range m.payouts {
		if payout.VendorID != vendorID {
			continue
		}
		switch payout.Status {
		case domain.PayoutStatusCompleted:
			summary.TotalPayouts += payout.NetAmount
		case domain.PayoutStatusPending, domain.PayoutStatusProcessing:
			summary.PendingPayouts += payout.Amount
		}
	}
	return summary, nil
}

func (m *memoryRepo) GetOrCreateSchedule(ctx context.Context, vendorID uuid.UUID) (*domain.PayoutSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	schedule, ok := m.schedules[vendorID]
	if !ok {
		schedule = &domain.PayoutSchedule{
			VendorID:      vendorID,
			ScheduleType:  domain.ScheduleManual,
			MinimumAmount: 5000,
			CreatedAt:     time.Now(),
		}
		m.schedules[vendorID] = schedule
	}
	copied := *schedule
	return &copied, nil
}

func (m *memoryRepo) UpdateSchedule(ctx context.Context, vendorID uuid.UUID, req domain.UpdateScheduleRequest) (*domain.PayoutSchedule, error) {
	if _, err := m.GetOrCreateSchedule(ctx, vendorID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	schedule := m.schedules[vendorID]
	if req.ScheduleType != nil {
		schedule.ScheduleType = *req.ScheduleType
	}
	if req.IsActive != nil {
		schedule.IsActive = *req.IsActive
	}
	if req.AutoProcess != nil {
		schedule.AutoProcess = *req.AutoProcess
	}
	if req.MinimumAmount != nil {
		schedule.MinimumAmount = *req.MinimumAmount
	}
	if interval := domain.CadenceInterval(schedule.ScheduleType); interval > 0 && schedule.IsActive {
		if schedule.NextPayoutDate == nil {
			next := time.Now().UTC().AddDate(0, 0, interval)
			schedule.NextPayoutDate = &next
		}
	} else {
		schedule.NextPayoutDate = nil
	}
	copied := *schedule
	return &copied, nil
}

func (m *memoryRepo) FindDueSchedules(ctx context.Context, asOf time.Time) ([]domain.PayoutSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []domain.PayoutSchedule
	for _, schedule := range m.schedules {
		if schedule.IsActive && schedule.AutoProcess &&
			schedule.NextPayoutDate != nil && !schedule.NextPayoutDate.After(asOf) {
			due = append(due, *schedule)
		}
	}
	return due, nil
}

func (m *memoryRepo) AdvanceSchedule(ctx context.Context, vendorID uuid.UUID, next *time.Time, processedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	schedule, ok := m.schedules[vendorID]
	if !ok {
		return store.ErrScheduleNotFound
	}
	schedule.NextPayoutDate = next
	schedule.LastProcessedAt = &processedAt
	return nil
}

var _ store.Repository = (*memoryRepo)(nil)
