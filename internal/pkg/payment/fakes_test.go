package payment

import (
	"context"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/framelabid/framelab/app/models"
	"github.com/framelabid/framelab/app/repository"
)

// memTransactionRepo is an in-memory TransactionRepository honoring the same
// contract as the GORM implementation: forward-only status updates and a
// compare-and-swap receipt flag.
type memTransactionRepo struct {
	mu     sync.Mutex
	nextID uint
	rows   map[string]*models.Transaction
	emails map[uint]string // user id -> email, for the fallback join
}

func newMemTransactionRepo() *memTransactionRepo {
	return &memTransactionRepo{rows: make(map[string]*models.Transaction), emails: make(map[uint]string)}
}

func (r *memTransactionRepo) Create(tx *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[tx.OrderID]; ok {
		return gorm.ErrDuplicatedKey
	}
	r.nextID++
	tx.ID = r.nextID
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	clone := *tx
	r.rows[tx.OrderID] = &clone
	return nil
}

func (r *memTransactionRepo) GetByOrderID(orderID string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[orderID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *row
	return &clone, nil
}

func (r *memTransactionRepo) GetByUserID(userID uint, offset, limit int) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Transaction
	for _, row := range r.rows {
		if row.UserID == userID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (r *memTransactionRepo) GetLatestPending(userID uint) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.Transaction
	for _, row := range r.rows {
		if row.UserID != userID || row.Status != models.TransactionStatusPending {
			continue
		}
		if latest == nil || row.CreatedAt.After(latest.CreatedAt) {
			latest = row
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *latest
	return &clone, nil
}

func (r *memTransactionRepo) GetStaleForReconcile(minAge, maxAge time.Duration, limit int) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var out []models.Transaction
	for _, row := range r.rows {
		if row.Status != models.TransactionStatusPending {
			continue
		}
		age := now.Sub(row.CreatedAt)
		if age < minAge || age > maxAge {
			continue
		}
		out = append(out, *row)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *memTransactionRepo) UpdateStatus(orderID string, status string, meta repository.StatusMeta) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[orderID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if !row.IsTerminal() && status != "" {
		row.Status = strings.ToLower(strings.TrimSpace(status))
	}
	if meta.PaymentType != "" {
		row.PaymentType = meta.PaymentType
	}
	if meta.GatewayTransactionID != "" {
		row.GatewayTransactionID = meta.GatewayTransactionID
	}
	if meta.RawGatewayResponse != "" {
		row.RawGatewayResponse = meta.RawGatewayResponse
	}
	if row.IsPaid() && row.PaidAt == nil {
		paidAt := meta.PaidAt
		if paidAt == nil {
			now := time.Now()
			paidAt = &now
		}
		row.PaidAt = paidAt
	}
	clone := *row
	return &clone, nil
}

func (r *memTransactionRepo) MarkFailed(orderID string, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[orderID]
	if !ok {
		return nil
	}
	if row.Status == models.TransactionStatusPending {
		row.Status = models.TransactionStatusFailed
		row.FailureReason = reason
	}
	return nil
}

func (r *memTransactionRepo) MarkReceiptSent(orderID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[orderID]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if row.ReceiptSentAt != nil {
		return false, nil
	}
	now := time.Now()
	row.ReceiptSentAt = &now
	return true, nil
}

func (r *memTransactionRepo) FindPendingByEmailAmount(email string, amount int64, window time.Duration) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-window)
	var out []models.Transaction
	for _, row := range r.rows {
		if row.Status != models.TransactionStatusPending || row.Amount != amount {
			continue
		}
		if r.emails[row.UserID] != email || row.CreatedAt.Before(cutoff) {
			continue
		}
		out = append(out, *row)
	}
	return out, nil
}

func (r *memTransactionRepo) SaveCheckoutArtifacts(orderID, snapToken, redirectURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[orderID]; ok {
		row.SnapToken = snapToken
		row.RedirectURL = redirectURL
	}
	return nil
}

// memUserRepo is an in-memory UserRepository.
type memUserRepo struct {
	mu    sync.Mutex
	users map[uint]*models.User
}

func newMemUserRepo(users ...*models.User) *memUserRepo {
	r := &memUserRepo{users: make(map[uint]*models.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *memUserRepo) GetByID(id uint) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *user
	return &clone, nil
}

func (r *memUserRepo) GetByEmail(email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// memAccessRepo is an in-memory AccessRepository honoring the atomic grant
// contract: idempotency check first, then deactivate, then insert.
type memAccessRepo struct {
	mu     sync.Mutex
	nextID uint
	grants []*models.AccessGrant
}

func newMemAccessRepo() *memAccessRepo { return &memAccessRepo{} }

func (r *memAccessRepo) Grant(userID, transactionID uint, packageIDs []uint, startsAt, endsAt time.Time) (*models.AccessGrant, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.grants {
		if g.TransactionID == transactionID {
			clone := *g
			return &clone, false, nil
		}
	}
	for _, g := range r.grants {
		if g.UserID == userID && g.IsActive {
			g.IsActive = false
		}
	}
	r.nextID++
	grant := &models.AccessGrant{
		ID:            r.nextID,
		UserID:        userID,
		TransactionID: transactionID,
		StartsAt:      startsAt,
		EndsAt:        endsAt,
		IsActive:      true,
	}
	_ = grant.SetPackageIDs(packageIDs)
	r.grants = append(r.grants, grant)
	clone := *grant
	return &clone, true, nil
}

func (r *memAccessRepo) GetByTransactionID(transactionID uint) (*models.AccessGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.grants {
		if g.TransactionID == transactionID {
			clone := *g
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memAccessRepo) GetActiveByUserID(userID uint) (*models.AccessGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.AccessGrant
	now := time.Now()
	for _, g := range r.grants {
		if g.UserID != userID || !g.IsActive || !g.EndsAt.After(now) {
			continue
		}
		if latest == nil || g.ID > latest.ID {
			latest = g
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *latest
	return &clone, nil
}

func (r *memAccessRepo) DeactivateExpired(userID uint, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.grants {
		if g.UserID == userID && g.IsActive && !g.EndsAt.After(now) {
			g.IsActive = false
		}
	}
	return nil
}

func (r *memAccessRepo) countForTransaction(transactionID uint) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, g := range r.grants {
		if g.TransactionID == transactionID {
			n++
		}
	}
	return n
}

func (r *memAccessRepo) activeCount(userID uint) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, g := range r.grants {
		if g.UserID == userID && g.IsActive {
			n++
		}
	}
	return n
}

// memPackageRepo is an in-memory PackageRepository.
type memPackageRepo struct {
	packages []models.Package
}

func (r *memPackageRepo) GetByID(id uint) (*models.Package, error) {
	for i := range r.packages {
		if r.packages[i].ID == id {
			clone := r.packages[i]
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memPackageRepo) GetByIDs(ids []uint) ([]models.Package, error) {
	var out []models.Package
	for _, id := range ids {
		for i := range r.packages {
			if r.packages[i].ID == id {
				out = append(out, r.packages[i])
			}
		}
	}
	return out, nil
}

func (r *memPackageRepo) GetActive(limit int) ([]models.Package, error) {
	var out []models.Package
	for i := range r.packages {
		if r.packages[i].IsActive {
			out = append(out, r.packages[i])
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *memPackageRepo) GetActiveByNameLike(pattern string) ([]models.Package, error) {
	needle := strings.ToLower(strings.Trim(pattern, "%"))
	var out []models.Package
	for i := range r.packages {
		if r.packages[i].IsActive && strings.Contains(strings.ToLower(r.packages[i].Name), needle) {
			out = append(out, r.packages[i])
		}
	}
	return out, nil
}

// memFrameRepo answers frame existence checks from a fixed set.
type memFrameRepo struct {
	frames []models.Frame
}

func (r *memFrameRepo) GetByIDs(ids []uint) ([]models.Frame, error) {
	var out []models.Frame
	for _, id := range ids {
		for i := range r.frames {
			if r.frames[i].ID == id {
				out = append(out, r.frames[i])
			}
		}
	}
	return out, nil
}

// fakeGateway is a scripted Gateway. Notification verification delegates to
// the real signature logic so webhook tests exercise it.
type fakeGateway struct {
	serverKey string

	statusByOrder map[string]*StatusResponse
	statusErr     error

	checkout    *Checkout
	checkoutErr error

	cancelErr   error
	statusCalls int
}

func (g *fakeGateway) CreateCheckout(ctx context.Context, orderID string, amount int64, customer Customer) (*Checkout, error) {
	if g.checkoutErr != nil {
		return nil, g.checkoutErr
	}
	if g.checkout != nil {
		return g.checkout, nil
	}
	return &Checkout{Token: "tok-" + orderID, RedirectURL: "https://pay.test/" + orderID}, nil
}

func (g *fakeGateway) GetStatus(ctx context.Context, orderID string) (*StatusResponse, error) {
	g.statusCalls++
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	if status, ok := g.statusByOrder[orderID]; ok {
		return status, nil
	}
	return nil, ErrTransactionNotFound
}

func (g *fakeGateway) Cancel(ctx context.Context, orderID string) error {
	return g.cancelErr
}

func (g *fakeGateway) VerifyNotification(payload []byte) (*Notification, error) {
	real := &SnapGateway{ServerKey: g.serverKey}
	return real.VerifyNotification(payload)
}

// recordingMailer counts receipt deliveries.
type recordingMailer struct {
	mu   sync.Mutex
	sent []string
}

func (m *recordingMailer) Send(to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to)
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}
