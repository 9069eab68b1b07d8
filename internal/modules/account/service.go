package account

import (
	"context"
	"errors"
	"time"

	"github.com/futureofwork/core/internal/models"
	"github.com/futureofwork/core/internal/modules/account/token"
	"github.com/futureofwork/core/internal/pkg/apperr"
	"github.com/futureofwork/core/internal/pkg/jwt"
	"github.com/futureofwork/core/internal/pkg/ratelimit"
	"github.com/futureofwork/core/internal/pkg/session"
	"github.com/futureofwork/core/internal/pkg/taskqueue"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Enqueuer hands work to the background queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, taskType string, payload interface{}) (*taskqueue.Task, error)
}

// Limiter is the fixed-window counter used for resend throttling.
type Limiter interface {
	Allow(ctx context.Context, key string, rate ratelimit.Rate) (ratelimit.Result, error)
}

// Hook runs inside the transaction that creates or deletes an account.
type Hook func(tx *gorm.DB, u *models.UserModel) error

type Options struct {
	GracePeriod    time.Duration
	UpdateCooldown time.Duration
	ResendRate     ratelimit.Rate
	BcryptCost     int
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	Now            func() time.Time
}

type Deps struct {
	DB      *gorm.DB
	Log     *zap.Logger
	Tokens  *token.Issuer
	Signer  *jwt.Signer
	Ledger  *session.Ledger
	Limiter Limiter
	Queue   Enqueuer
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	tokens   *token.Issuer
	signer   *jwt.Signer
	ledger   *session.Ledger
	limiter  Limiter
	queue    Enqueuer
	validate *validator.Validate
	opts     Options

	afterCreate  []Hook
	beforeDelete []Hook
}

func NewService(d Deps, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		db:       d.DB,
		log:      log.Named("AccountService"),
		tokens:   d.Tokens,
		signer:   d.Signer,
		ledger:   d.Ledger,
		limiter:  d.Limiter,
		queue:    d.Queue,
		validate: newValidator(),
		opts:     opts,
	}
	s.OnCreate(createProfile)
	s.OnDelete(purgeAccountRows)
	return s
}

// OnCreate registers a hook that runs after an account row is inserted.
func (s *Service) OnCreate(h Hook) { s.afterCreate = append(s.afterCreate, h) }

// OnDelete registers a hook that runs before an account row is deleted.
func (s *Service) OnDelete(h Hook) { s.beforeDelete = append(s.beforeDelete, h) }

func (s *Service) now() time.Time { return s.opts.Now().UTC() }

// DB exposes the handle for collaborators wired around the service.
func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) GetByID(ctx context.Context, id string) (*models.UserModel, error) {
	var u models.UserModel
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Service) findByLogin(tx *gorm.DB, login string) (*models.UserModel, error) {
	var u models.UserModel
	q := tx.Where("username = ?", normalize(login))
	if containsAt(login) {
		q = tx.Where("email = ?", normalize(login))
	}
	if err := q.First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (s *Service) hashPassword(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), s.opts.BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func checkHash(u *models.UserModel, raw string) bool {
	if !u.HasUsablePassword() {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(raw)) == nil
}

// enqueue schedules an email. Queue failures are logged, never returned, so
// the request path does not depend on delivery.
func (s *Service) enqueue(ctx context.Context, taskType string, job emailJob) {
	if s.queue == nil {
		return
	}
	if _, err := s.queue.Enqueue(ctx, taskType, job); err != nil {
		s.log.Error("enqueue email failed",
			zap.String("type", taskType),
			zap.String("user_id", job.UserID),
			zap.Error(err),
		)
	}
}

func createProfile(tx *gorm.DB, u *models.UserModel) error {
	return tx.Create(&models.ProfileModel{UserID: u.ID}).Error
}

// purgeAccountRows removes identity and tracking rows owned by an account.
func purgeAccountRows(tx *gorm.DB, u *models.UserModel) error {
	for _, m := range []interface{}{
		&models.ProfileModel{},
		&models.OAuthAccountModel{},
		&models.RefreshTokenModel{},
		&models.DeviceSessionModel{},
	} {
		if err := tx.Where("user_id = ?", u.ID).Delete(m).Error; err != nil {
			return err
		}
	}
	return tx.Model(&models.IPActivityModel{}).
		Where("user_id = ?", u.ID).
		Update("user_id", nil).Error
}
