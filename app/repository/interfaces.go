package repository

import (
	"time"

	"github.com/framelabid/framelab/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the read surface over accounts. The identity
// service owns the users table; the payment core only resolves recipients
// and webhook emails.
type UserRepository interface {
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
}

// TransactionRepository defines the interface for the purchase ledger.
// UpdateStatus is the single path through which a transaction's status
// mutates; every resolve path (webhook, poll, reconciler) funnels into it.
type TransactionRepository interface {
	Create(tx *models.Transaction) error
	GetByOrderID(orderID string) (*models.Transaction, error)
	GetByUserID(userID uint, offset, limit int) ([]models.Transaction, error)
	GetLatestPending(userID uint) (*models.Transaction, error)
	GetStaleForReconcile(minAge, maxAge time.Duration, limit int) ([]models.Transaction, error)
	UpdateStatus(orderID string, status string, meta StatusMeta) (*models.Transaction, error)
	MarkFailed(orderID string, reason string) error
	MarkReceiptSent(orderID string) (bool, error)
	FindPendingByEmailAmount(email string, amount int64, window time.Duration) ([]models.Transaction, error)
	SaveCheckoutArtifacts(orderID, snapToken, redirectURL string) error
}

// StatusMeta carries gateway-reported payment metadata applied alongside a
// status update. Re-applying the same meta is safe; fields are overwritten.
type StatusMeta struct {
	PaymentType          string
	GatewayTransactionID string
	RawGatewayResponse   string
	PaidAt               *time.Time
}

// AccessRepository defines the interface for access grant persistence.
type AccessRepository interface {
	// Grant executes the atomic existence-check / deactivate / insert
	// sequence and reports whether a new row was created.
	Grant(userID, transactionID uint, packageIDs []uint, startsAt, endsAt time.Time) (*models.AccessGrant, bool, error)
	GetByTransactionID(transactionID uint) (*models.AccessGrant, error)
	GetActiveByUserID(userID uint) (*models.AccessGrant, error)
	DeactivateExpired(userID uint, now time.Time) error
}

// PackageRepository defines the interface for content package reads.
type PackageRepository interface {
	GetByID(id uint) (*models.Package, error)
	GetByIDs(ids []uint) ([]models.Package, error)
	GetActive(limit int) ([]models.Package, error)
	GetActiveByNameLike(pattern string) ([]models.Package, error)
}

// FrameRepository defines the interface for frame reads. Packages reference
// frames by id; resolving a grant filters those ids against rows that still
// exist.
type FrameRepository interface {
	GetByIDs(ids []uint) ([]models.Frame, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User        UserRepository
	Transaction TransactionRepository
	Access      AccessRepository
	Package     PackageRepository
	Frame       FrameRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:        NewUserRepository(db),
		Transaction: NewTransactionRepository(db),
		Access:      NewAccessRepository(db),
		Package:     NewPackageRepository(db),
		Frame:       NewFrameRepository(db),
	}
}
