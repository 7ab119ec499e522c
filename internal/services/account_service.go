package services

import (
	"context"
	"crypto/rand"
	"math/big"

	"github.com/casilisto/sync/internal/models"
	"github.com/casilisto/sync/internal/observability"
	"github.com/casilisto/sync/internal/repository"
)

// AccountService issues share codes and links devices to them.
type AccountService struct {
	accounts repository.AccountRepo
	devices  repository.DeviceRepo
	state    repository.SyncStateRepo
	metrics  *observability.SyncMetrics
}

func NewAccountService(accounts repository.AccountRepo, devices repository.DeviceRepo, state repository.SyncStateRepo, metrics *observability.SyncMetrics) *AccountService {
	return &AccountService{
		accounts: accounts,
		devices:  devices,
		state:    state,
		metrics:  metrics,
	}
}

// codeAttempts bounds collision retries when minting a fresh code.
const codeAttempts = 10

func generateCode() (string, error) {
	alphabet := models.CodeAlphabet
	max := big.NewInt(int64(len(alphabet)))

	buf := make([]byte, models.CodeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf), nil
}

// CreateAccount mints a new share code with empty sync state. Collisions
// with existing codes are retried a bounded number of times.
func (s *AccountService) CreateAccount(ctx context.Context) (string, error) {
	ctx, span := observability.StartSpan(ctx, "account.create")
	defer span.End()

	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := generateCode()
		if err != nil {
			observability.RecordError(span, err)
			return "", err
		}

		err = s.accounts.Create(ctx, code)
		if err == nil {
			s.metrics.RecordAccountIssued(ctx)
			observability.Infof("account created: %s", code)
			return code, nil
		}
		if repository.IsUniqueViolation(err) {
			observability.Warnf("code collision on attempt %d, retrying", attempt+1)
			continue
		}
		observability.RecordError(span, err)
		return "", err
	}

	observability.RecordError(span, models.ErrAccountCreationFailed)
	return "", models.ErrAccountCreationFailed
}

// Login validates the code, registers the device and returns current
// server state for the account.
func (s *AccountService) Login(ctx context.Context, code, deviceID, deviceName string) (*models.SyncData, error) {
	ctx, span := observability.StartSpan(ctx, "account.login")
	defer span.End()

	code = models.NormalizeCode(code)
	if !models.ValidCode(code) {
		return nil, models.ErrAccountNotFound
	}

	exists, err := s.accounts.Exists(ctx, code)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	if !exists {
		return nil, models.ErrAccountNotFound
	}

	if err := s.devices.Register(ctx, code, deviceID, deviceName); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	data, err := s.state.Get(ctx, code)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	return data, nil
}
