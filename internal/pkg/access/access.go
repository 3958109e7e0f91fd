package access

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/framelabid/framelab/app/models"
	"github.com/framelabid/framelab/app/repository"
	"github.com/framelabid/framelab/internal/pkg/env"
)

const defaultPackageCount = 3

// Config controls the access window and which packages a payment unlocks.
type Config struct {
	// DurationDays is the length of the access window for regular grants.
	DurationDays int
	// PackageIDs pins the granted package set explicitly. When empty the
	// service falls back to the name heuristic, then to the first
	// DefaultPackageCount active packages.
	PackageIDs []uint
	// PackageNamePattern is the SQL LIKE pattern for the name heuristic.
	PackageNamePattern string
	// DefaultPackageCount caps the final fallback selection.
	DefaultPackageCount int
}

// ConfigFromEnv reads the access configuration surface.
func ConfigFromEnv() Config {
	cfg := Config{
		DurationDays:        env.GetEnvInt("PAYMENT_ACCESS_DURATION_DAYS", 30),
		PackageNamePattern:  env.GetEnv("PAYMENT_PACKAGE_NAME_PATTERN", "%premium%"),
		DefaultPackageCount: env.GetEnvInt("PAYMENT_DEFAULT_PACKAGE_COUNT", defaultPackageCount),
	}
	for _, part := range strings.Split(env.GetEnv("PAYMENT_PACKAGE_IDS", ""), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var id uint
		for _, r := range part {
			if r < '0' || r > '9' {
				id = 0
				break
			}
			id = id*10 + uint(r-'0')
		}
		if id > 0 {
			cfg.PackageIDs = append(cfg.PackageIDs, id)
		}
	}
	return cfg
}

// Service grants and reads paid access. All mutations funnel through the
// repository's atomic grant sequence; the service only decides the window
// and the package set.
type Service struct {
	accessRepo  repository.AccessRepository
	packageRepo repository.PackageRepository
	frameRepo   repository.FrameRepository
	cfg         Config
}

// NewService creates an access service from injected repositories.
func NewService(accessRepo repository.AccessRepository, packageRepo repository.PackageRepository, frameRepo repository.FrameRepository, cfg Config) *Service {
	if cfg.DurationDays <= 0 {
		cfg.DurationDays = 30
	}
	if cfg.DefaultPackageCount <= 0 {
		cfg.DefaultPackageCount = defaultPackageCount
	}
	return &Service{accessRepo: accessRepo, packageRepo: packageRepo, frameRepo: frameRepo, cfg: cfg}
}

// GrantForTransaction grants access funded by the given transaction. It is
// idempotent on the transaction id: the first caller creates the grant and
// every later caller gets the existing row back with created=false. The
// access window starts at the settlement time when the gateway reported
// one, otherwise now; explicitEnd overrides the configured duration for
// administrative grants.
func (s *Service) GrantForTransaction(tx *models.Transaction, explicitEnd *time.Time) (*models.AccessGrant, bool, error) {
	if tx == nil || tx.ID == 0 {
		return nil, false, errors.New("transaction is required")
	}

	packageIDs, err := s.selectPackages()
	if err != nil {
		return nil, false, err
	}

	startsAt := time.Now()
	if tx.PaidAt != nil {
		startsAt = *tx.PaidAt
	}
	endsAt := startsAt.AddDate(0, 0, s.cfg.DurationDays)
	if explicitEnd != nil {
		endsAt = *explicitEnd
	}

	grant, created, err := s.accessRepo.Grant(tx.UserID, tx.ID, packageIDs, startsAt, endsAt)
	if err != nil {
		return nil, false, err
	}
	if created {
		log.Infof("[Access] Granted access to user %d until %s (transaction %s)", tx.UserID, endsAt.Format(time.RFC3339), tx.OrderID)
	}
	return grant, created, nil
}

// GetActiveAccess returns the user's current grant, lazily deactivating
// expired rows first. Returns nil without error when no access is active.
func (s *Service) GetActiveAccess(userID uint) (*models.AccessGrant, error) {
	if err := s.accessRepo.DeactivateExpired(userID, time.Now()); err != nil {
		return nil, err
	}
	grant, err := s.accessRepo.GetActiveByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return grant, nil
}

// HasAccessForTransaction reports whether a grant already references the
// transaction.
func (s *Service) HasAccessForTransaction(transactionID uint) (bool, error) {
	_, err := s.accessRepo.GetByTransactionID(transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetAccessibleContent resolves the user's granted packages to the frame ids
// they unlock. Ids whose frame no longer exists are dropped, so a package
// referencing a deleted frame never leaks it into the response. An inactive
// or missing grant yields an empty list.
func (s *Service) GetAccessibleContent(userID uint) ([]uint, error) {
	grant, err := s.GetActiveAccess(userID)
	if err != nil {
		return nil, err
	}
	if grant == nil {
		return nil, nil
	}

	packageIDs, err := grant.GetPackageIDs()
	if err != nil {
		return nil, err
	}
	pkgs, err := s.packageRepo.GetByIDs(packageIDs)
	if err != nil {
		return nil, err
	}

	seen := make(map[uint]struct{})
	var candidates []uint
	for i := range pkgs {
		ids, err := pkgs[i].GetFrameIDs()
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	frames, err := s.frameRepo.GetByIDs(candidates)
	if err != nil {
		return nil, err
	}
	existing := make(map[uint]struct{}, len(frames))
	for i := range frames {
		existing[frames[i].ID] = struct{}{}
	}

	frameIDs := make([]uint, 0, len(frames))
	for _, id := range candidates {
		if _, ok := existing[id]; ok {
			frameIDs = append(frameIDs, id)
		}
	}
	return frameIDs, nil
}

// selectPackages applies the package-selection policy: explicit id list,
// else active packages matching the name pattern, else the first N active.
func (s *Service) selectPackages() ([]uint, error) {
	if len(s.cfg.PackageIDs) > 0 {
		return s.cfg.PackageIDs, nil
	}

	if s.cfg.PackageNamePattern != "" {
		pkgs, err := s.packageRepo.GetActiveByNameLike(s.cfg.PackageNamePattern)
		if err != nil {
			return nil, err
		}
		if len(pkgs) > 0 {
			return packageIDsOf(pkgs), nil
		}
	}

	pkgs, err := s.packageRepo.GetActive(s.cfg.DefaultPackageCount)
	if err != nil {
		return nil, err
	}
	return packageIDsOf(pkgs), nil
}

func packageIDsOf(pkgs []models.Package) []uint {
	ids := make([]uint, 0, len(pkgs))
	for i := range pkgs {
		ids = append(ids, pkgs[i].ID)
	}
	return ids
}
