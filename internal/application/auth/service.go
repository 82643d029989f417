package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-otp-auth/internal/application/notification"
	"github.com/go-otp-auth/internal/domain"
	"github.com/go-otp-auth/internal/pkg/clock"
	"github.com/go-otp-auth/internal/pkg/id"
	"github.com/go-otp-auth/internal/pkg/otpcode"
	"github.com/go-otp-auth/internal/pkg/validate"
)

// AccountStore is the system of record for accounts. Every method is atomic
// per email; see the dynamo and postgres implementations.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	InsertPending(ctx context.Context, a *domain.Account) error
	ReplaceChallenge(ctx context.Context, email string, ch domain.Challenge, purgeAt int64) error
	ConsumeAttempt(ctx context.Context, email, codeHash string) (int, error)
	Activate(ctx context.Context, email, codeHash string, at time.Time) error
}

type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hashed string) bool
}

type Dispatcher interface {
	Dispatch(ctx context.Context, n notification.OTPNotice) notification.Result
}

type SessionIssuer interface {
	Issue(ctx context.Context, a *domain.Account) (string, error)
}

// Metrics observes operation outcomes. Optional.
type Metrics interface {
	Operation(op string, err error)
	Delivery(method string)
}

type nopMetrics struct{}

func (nopMetrics) Operation(string, error) {}
func (nopMetrics) Delivery(string)         {}

type SignupResult struct {
	Email           string
	PendingDelivery bool
	Method          string
}

type ResendResult struct {
	Email           string
	PendingDelivery bool
	Method          string
}

type AuthResult struct {
	Token   string
	Account *domain.Account
}

type Service interface {
	Signup(ctx context.Context, req domain.SignupRequest) (*SignupResult, error)
	Verify(ctx context.Context, req domain.VerifyOTPRequest) (*AuthResult, error)
	Resend(ctx context.Context, req domain.ResendOTPRequest) (*ResendResult, error)
	Login(ctx context.Context, req domain.LoginRequest) (*AuthResult, error)
}

// ServiceDeps groups all dependencies for the auth service.
type ServiceDeps struct {
	Store          AccountStore
	PasswordHasher Hasher
	CodeHasher     Hasher
	Dispatcher     Dispatcher
	Issuer         SessionIssuer
	Policy         domain.OTPPolicy
	Clock          clock.Clocker            // optional, defaults to the system clock
	GenerateCode   func(int) (string, error) // optional, defaults to otpcode.Generate
	Metrics        Metrics                   // optional

	StoreTimeout    time.Duration
	DispatchTimeout time.Duration
	PendingTTL      time.Duration
}

type service struct {
	store           AccountStore
	passwords       Hasher
	codes           Hasher
	dispatcher      Dispatcher
	issuer          SessionIssuer
	policy          domain.OTPPolicy
	clock           clock.Clocker
	generate        func(int) (string, error)
	metrics         Metrics
	storeTimeout    time.Duration
	dispatchTimeout time.Duration
	pendingTTL      time.Duration

	dummyOnce sync.Once
	dummyHash string
}

func NewService(d ServiceDeps) Service {
	s := &service{
		store:           d.Store,
		passwords:       d.PasswordHasher,
		codes:           d.CodeHasher,
		dispatcher:      d.Dispatcher,
		issuer:          d.Issuer,
		policy:          d.Policy,
		clock:           d.Clock,
		generate:        d.GenerateCode,
		metrics:         d.Metrics,
		storeTimeout:    d.StoreTimeout,
		dispatchTimeout: d.DispatchTimeout,
		pendingTTL:      d.PendingTTL,
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	if s.generate == nil {
		s.generate = otpcode.Generate
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.storeTimeout <= 0 {
		s.storeTimeout = 5 * time.Second
	}
	if s.dispatchTimeout <= 0 {
		s.dispatchTimeout = 10 * time.Second
	}
	return s
}

// Signup creates a pending account and sends its first code. Uniqueness is
// left to the store so two concurrent signups cannot both succeed.
func (s *service) Signup(ctx context.Context, req domain.SignupRequest) (res *SignupResult, err error) {
	defer func() { s.metrics.Operation("signup", err) }()
	req.Email = domain.NormalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBadRequest, err)
	}

	pwHash, err := s.passwords.Hash(req.Password)
	if err != nil {
		slog.ErrorContext(ctx, "hash password", "err", err)
		return nil, fmt.Errorf("hash password: %w", domain.ErrInternal)
	}
	code, ch, err := s.newChallenge(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	acc := &domain.Account{
		AccountID:    id.New(),
		Email:        req.Email,
		PasswordHash: pwHash,
		Challenge:    ch,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if s.pendingTTL > 0 {
		acc.PurgeAt = now.Add(s.pendingTTL).Unix()
	}
	if err := s.withStore(ctx, "insert pending account", func(ctx context.Context) error {
		return s.store.InsertPending(ctx, acc)
	}); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "pending account created", "account_id", acc.AccountID, "email", acc.Email)

	sent := s.dispatch(ctx, acc.Email, code)
	return &SignupResult{Email: acc.Email, PendingDelivery: sent.PendingDelivery(), Method: sent.Method}, nil
}

// Verify checks a submitted code against the pending challenge. Outcomes are
// decided in order: unknown account, expired, exhausted, wrong code. A wrong
// code costs one attempt; a right one activates the account exactly once.
func (s *service) Verify(ctx context.Context, req domain.VerifyOTPRequest) (res *AuthResult, err error) {
	defer func() { s.metrics.Operation("verify", err) }()
	req.Email = domain.NormalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBadRequest, err)
	}

	acc, err := s.find(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if acc.Verified {
		return nil, fmt.Errorf("verify %s: %w", acc.Email, domain.ErrAlreadyVerified)
	}
	ch := acc.Challenge
	if ch == nil {
		return nil, fmt.Errorf("verify %s: no pending challenge: %w", acc.Email, domain.ErrNotFound)
	}
	now := s.clock.Now().UTC()
	if ch.Expired(now) {
		return nil, fmt.Errorf("verify %s: %w", acc.Email, domain.ErrExpired)
	}
	if ch.Exhausted() {
		return nil, fmt.Errorf("verify %s: %w", acc.Email, domain.ErrTooManyAttempts)
	}

	if !s.codes.Verify(req.OTP, ch.CodeHash) {
		var remaining int
		if err := s.withStore(ctx, "consume attempt", func(ctx context.Context) (err error) {
			remaining, err = s.store.ConsumeAttempt(ctx, acc.Email, ch.CodeHash)
			return err
		}); err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "otp mismatch", "email", acc.Email, "attempts_remaining", remaining)
		// The guess that spends the budget is still a wrong code; the next
		// call is refused by the exhausted check above.
		return nil, &domain.AttemptError{Remaining: max(remaining, 0)}
	}

	if err := s.withStore(ctx, "activate account", func(ctx context.Context) error {
		return s.store.Activate(ctx, acc.Email, ch.CodeHash, now)
	}); err != nil {
		return nil, err
	}
	acc.Verified = true
	acc.Challenge = nil
	acc.VerifiedAt = &now
	acc.UpdatedAt = now
	slog.InfoContext(ctx, "account verified", "account_id", acc.AccountID, "email", acc.Email)

	return s.issue(ctx, acc)
}

// Resend replaces the challenge of a pending account with a fresh one. The
// old code stops working once the new challenge is stored, whether or not
// the new one reaches the user.
func (s *service) Resend(ctx context.Context, req domain.ResendOTPRequest) (res *ResendResult, err error) {
	defer func() { s.metrics.Operation("resend", err) }()
	req.Email = domain.NormalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBadRequest, err)
	}

	acc, err := s.find(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if acc.Verified {
		return nil, fmt.Errorf("resend %s: %w", acc.Email, domain.ErrAlreadyVerified)
	}

	code, ch, err := s.newChallenge(ctx)
	if err != nil {
		return nil, err
	}
	var purgeAt int64
	if s.pendingTTL > 0 {
		purgeAt = s.clock.Now().UTC().Add(s.pendingTTL).Unix()
	}
	if err := s.withStore(ctx, "replace challenge", func(ctx context.Context) error {
		return s.store.ReplaceChallenge(ctx, acc.Email, *ch, purgeAt)
	}); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "otp reissued", "email", acc.Email)

	sent := s.dispatch(ctx, acc.Email, code)
	return &ResendResult{Email: acc.Email, PendingDelivery: sent.PendingDelivery(), Method: sent.Method}, nil
}

// Login authenticates a verified account by password. Absent, unverified and
// wrong-password cases all return the same error after a bcrypt comparison.
func (s *service) Login(ctx context.Context, req domain.LoginRequest) (res *AuthResult, err error) {
	defer func() { s.metrics.Operation("login", err) }()
	req.Email = domain.NormalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBadRequest, err)
	}

	acc, err := s.find(ctx, req.Email)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if acc == nil || !acc.Verified {
		s.passwords.Verify(req.Password, s.dummy())
		return nil, fmt.Errorf("login %s: %w", req.Email, domain.ErrInvalidCredentials)
	}
	if !s.passwords.Verify(req.Password, acc.PasswordHash) {
		return nil, fmt.Errorf("login %s: %w", req.Email, domain.ErrInvalidCredentials)
	}
	slog.InfoContext(ctx, "login", "account_id", acc.AccountID)
	return s.issue(ctx, acc)
}

func (s *service) find(ctx context.Context, email string) (*domain.Account, error) {
	var acc *domain.Account
	err := s.withStore(ctx, "find account", func(ctx context.Context) (err error) {
		acc, err = s.store.FindByEmail(ctx, email)
		return err
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func (s *service) newChallenge(ctx context.Context) (string, *domain.Challenge, error) {
	code, err := s.generate(s.policy.Length)
	if err != nil {
		slog.ErrorContext(ctx, "generate otp", "err", err)
		return "", nil, fmt.Errorf("generate otp: %w", domain.ErrInternal)
	}
	codeHash, err := s.codes.Hash(code)
	if err != nil {
		slog.ErrorContext(ctx, "hash otp", "err", err)
		return "", nil, fmt.Errorf("hash otp: %w", domain.ErrInternal)
	}
	now := s.clock.Now().UTC()
	return code, &domain.Challenge{
		CodeHash:          codeHash,
		IssuedAt:          now.Truncate(time.Second),
		ExpiresAt:         now.Add(s.policy.Window).Truncate(time.Second),
		AttemptsRemaining: s.policy.MaxAttempts,
	}, nil
}

func (s *service) dispatch(ctx context.Context, email, code string) notification.Result {
	dctx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	defer cancel()
	res := s.dispatcher.Dispatch(dctx, notification.OTPNotice{To: email, Code: code, Window: s.policy.Window})
	s.metrics.Delivery(res.Method)
	if res.Err != nil {
		slog.WarnContext(ctx, "otp delivery degraded", "email", email, "method", res.Method, "err", res.Err)
	}
	return res
}

func (s *service) issue(ctx context.Context, acc *domain.Account) (*AuthResult, error) {
	tok, err := s.issuer.Issue(ctx, acc)
	if err != nil {
		slog.ErrorContext(ctx, "issue session", "account_id", acc.AccountID, "err", err)
		return nil, fmt.Errorf("issue session: %w", domain.ErrInternal)
	}
	return &AuthResult{Token: tok, Account: acc}, nil
}

// withStore runs fn under the store timeout and classifies its error:
// domain outcomes pass through, deadlines become ErrDependencyTimeout and
// everything else ErrInternal.
func (s *service) withStore(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	err := fn(sctx)
	switch {
	case err == nil:
		return nil
	case domain.IsBusiness(err):
		return err
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(sctx.Err(), context.DeadlineExceeded):
		slog.ErrorContext(ctx, "account store timed out", "op", op, "timeout", s.storeTimeout, "err", err)
		return fmt.Errorf("%s: %w", op, domain.ErrDependencyTimeout)
	default:
		slog.ErrorContext(ctx, "account store failed", "op", op, "err", err)
		return fmt.Errorf("%s: %w", op, domain.ErrInternal)
	}
}

// dummy is a real hash of a random string, compared against on failed
// logins so they cost the same as successful lookups.
func (s *service) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.passwords.Hash(id.New())
		if err != nil {
			slog.Error("build dummy password hash", "err", err)
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}
