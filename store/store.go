package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-storefront-auth"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9\-._@+]+$`)

// Store is the CredentialStore backed by bun
type Store struct {
	db                *bun.DB
	tokens            tokenProvider
	password          PasswordOptions
	hashCost          int
	maxFailedAttempts int
	lockoutDuration   time.Duration
	logger            auth.Logger
	now               func() time.Time
}

var (
	_ auth.CredentialStore        = (*Store)(nil)
	_ auth.ExternalAccountCreator = (*Store)(nil)
)

// Option configures a Store
type Option func(*Store)

// WithPasswordOptions replaces the password policy
func WithPasswordOptions(opts PasswordOptions) Option {
	return func(s *Store) {
		s.password = opts
	}
}

// WithHashCost sets the bcrypt cost
func WithHashCost(cost int) Option {
	return func(s *Store) {
		s.hashCost = cost
	}
}

// WithLockout sets the failure threshold and the lockout window
func WithLockout(maxFailedAttempts int, duration time.Duration) Option {
	return func(s *Store) {
		if maxFailedAttempts > 0 {
			s.maxFailedAttempts = maxFailedAttempts
		}
		if duration > 0 {
			s.lockoutDuration = duration
		}
	}
}

// WithTokenLifespan sets how long emailed tokens stay valid
func WithTokenLifespan(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.tokens.lifespan = d
		}
	}
}

// WithCodeStep sets the window of numeric codes
func WithCodeStep(d time.Duration) Option {
	return func(s *Store) {
		if d >= time.Second {
			s.tokens.codeStep = d
		}
	}
}

func WithLogger(logger auth.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a store over db. tokenKey signs every issued token.
func New(db *bun.DB, tokenKey []byte, opts ...Option) *Store {
	s := &Store{
		db: db,
		tokens: tokenProvider{
			key:      tokenKey,
			lifespan: 24 * time.Hour,
			codeStep: 5 * time.Minute,
		},
		password:          DefaultPasswordOptions(),
		hashCost:          DefaultHashCost,
		maxFailedAttempts: 5,
		lockoutDuration:   5 * time.Minute,
		logger:            nopLogger{},
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateUser validates and inserts user. An empty password creates an
// account without local credentials.
func (s *Store) CreateUser(ctx context.Context, user *auth.User, password string) (*auth.User, error) {
	return s.create(ctx, user, password, nil)
}

// CreateUserWithLogin inserts a user without local credentials and its
// first external login in one transaction.
func (s *Store) CreateUserWithLogin(ctx context.Context, user *auth.User, info auth.ExternalLoginInfo) (*auth.User, error) {
	return s.create(ctx, user, "", func(ctx context.Context, tx bun.Tx, record *auth.User) error {
		return s.insertLogin(ctx, tx, record, info)
	})
}

func (s *Store) create(ctx context.Context, user *auth.User, password string, then func(context.Context, bun.Tx, *auth.User) error) (*auth.User, error) {
	if user == nil {
		return nil, errors.New("store: nil user")
	}

	record := *user
	record.NormalizedUsername = auth.NormalizeKey(record.Username)
	record.NormalizedEmail = auth.NormalizeKey(record.Email)

	var errs auth.StoreErrors
	errs = append(errs, s.checkIdentity(ctx, s.db, &record)...)
	if password != "" {
		errs = append(errs, s.password.Check(password)...)
	}
	if len(errs) > 0 {
		return nil, errs
	}

	if password != "" {
		hash, err := HashPassword(password, s.hashCost)
		if err != nil {
			return nil, fmt.Errorf("store: hash password: %w", err)
		}
		record.PasswordHash = hash
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Status == "" {
		record.Status = auth.UserStatusActive
	}
	record.SecurityStamp = uuid.NewString()
	now := s.now()
	record.CreatedAt = &now
	record.UpdatedAt = &now

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// recheck inside the transaction, the unique index closes the rest
		if errs := s.checkIdentity(ctx, tx, &record); len(errs) > 0 {
			return errs
		}
		if _, err := tx.NewInsert().Model(&record).Exec(ctx); err != nil {
			return err
		}
		if then != nil {
			return then(ctx, tx, &record)
		}
		return nil
	})
	if err != nil {
		if _, ok := auth.AsStoreErrors(err); ok {
			return nil, err
		}
		return nil, fmt.Errorf("store: insert user: %w", err)
	}

	s.logger.Debug("store: created user %s in store %s", record.Username, record.StoreID)
	return &record, nil
}

// checkIdentity validates username and email shape and uniqueness
func (s *Store) checkIdentity(ctx context.Context, db bun.IDB, user *auth.User) auth.StoreErrors {
	var errs auth.StoreErrors

	if user.Username == "" || !usernamePattern.MatchString(user.Username) {
		errs = append(errs, auth.StoreError{
			Code:        auth.StoreErrInvalidUserName,
			Description: fmt.Sprintf("username %q is invalid", user.Username),
		})
	} else if taken, err := s.taken(ctx, db, "normalized_username", user.NormalizedUsername, user.ID); err != nil {
		errs = append(errs, auth.StoreError{Code: auth.StoreErrDefault, Description: err.Error()})
	} else if taken {
		errs = append(errs, auth.StoreError{
			Code:        auth.StoreErrDuplicateUserName,
			Description: fmt.Sprintf("username %q is already taken", user.Username),
		})
	}

	if user.Email != "" {
		if err := is.Email.Validate(user.Email); err != nil {
			errs = append(errs, auth.StoreError{
				Code:        auth.StoreErrInvalidEmail,
				Description: fmt.Sprintf("email %q is invalid", user.Email),
			})
		} else if taken, err := s.taken(ctx, db, "normalized_email", user.NormalizedEmail, user.ID); err != nil {
			errs = append(errs, auth.StoreError{Code: auth.StoreErrDefault, Description: err.Error()})
		} else if taken {
			errs = append(errs, auth.StoreError{
				Code:        auth.StoreErrDuplicateEmail,
				Description: fmt.Sprintf("email %q is already taken", user.Email),
			})
		}
	}

	return errs
}

func (s *Store) taken(ctx context.Context, db bun.IDB, column, value string, self uuid.UUID) (bool, error) {
	q := db.NewSelect().Model((*auth.User)(nil)).Where("? = ?", bun.Ident(column), value)
	if self != uuid.Nil {
		q = q.Where("id != ?", self)
	}
	return q.Exists(ctx)
}

// UpdateUser persists profile and administrative fields. Credentials,
// stamp and lockout state only change through their own operations.
func (s *Store) UpdateUser(ctx context.Context, user *auth.User) error {
	if user == nil || user.ID == uuid.Nil {
		return auth.ErrUserNotFound
	}

	user.NormalizedUsername = auth.NormalizeKey(user.Username)
	user.NormalizedEmail = auth.NormalizeKey(user.Email)

	if errs := s.checkIdentity(ctx, s.db, user); len(errs) > 0 {
		return errs
	}

	now := s.now()
	user.UpdatedAt = &now

	res, err := s.db.NewUpdate().
		Model(user).
		ExcludeColumn("password_hash", "security_stamp", "access_failed_count", "lockout_end", "created_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("store: update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

// FindByName looks up the normalized username
func (s *Store) FindByName(ctx context.Context, username string) (*auth.User, error) {
	return s.findOne(ctx, "usr.normalized_username = ?", auth.NormalizeKey(username))
}

// FindByEmail looks up the normalized email
func (s *Store) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	key := auth.NormalizeKey(email)
	if key == "" {
		return nil, auth.ErrUserNotFound
	}
	return s.findOne(ctx, "usr.normalized_email = ?", key)
}

// FindByID resolves a user from its string id
func (s *Store) FindByID(ctx context.Context, id string) (*auth.User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, auth.ErrUserNotFound
	}
	return s.findOne(ctx, "usr.id = ?", uid)
}

// FindByLogin resolves the user linked to a provider identity
func (s *Store) FindByLogin(ctx context.Context, provider, providerKey string) (*auth.User, error) {
	user := &auth.User{}
	err := s.db.NewSelect().
		Model(user).
		Join("JOIN user_logins AS ulg ON ulg.user_id = usr.id").
		Where("ulg.provider = ?", provider).
		Where("ulg.provider_key = ?", providerKey).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return user, nil
}

func (s *Store) findOne(ctx context.Context, where string, arg any) (*auth.User, error) {
	user := &auth.User{}
	if err := s.db.NewSelect().Model(user).Where(where, arg).Limit(1).Scan(ctx); err != nil {
		return nil, mapNotFound(err)
	}
	return user, nil
}

// Logins lists the provider identities linked to user
func (s *Store) Logins(ctx context.Context, user *auth.User) ([]auth.ExternalLogin, error) {
	var logins []auth.ExternalLogin
	err := s.db.NewSelect().
		Model(&logins).
		Where("ulg.user_id = ?", user.ID).
		OrderExpr("ulg.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list logins: %w", err)
	}
	return logins, nil
}

// PasswordSignIn verifies a password and applies lockout accounting
func (s *Store) PasswordSignIn(ctx context.Context, username, password string, lockoutOnFailure bool) (auth.LoginOutcome, error) {
	user, err := s.FindByName(ctx, username)
	if err != nil {
		if auth.IsNotFound(err) {
			return auth.OutcomeFailed(), nil
		}
		return auth.OutcomeFailed(), err
	}

	now := s.now()
	if user.IsLockedOut(now) {
		return auth.OutcomeLockedOut(), nil
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		if !errors.Is(err, auth.ErrMismatchedHashAndPassword) {
			return auth.OutcomeFailed(), fmt.Errorf("store: compare password: %w", err)
		}
		if !lockoutOnFailure {
			return auth.OutcomeFailed(), nil
		}
		locked, err := s.accessFailed(ctx, user, now)
		if err != nil {
			return auth.OutcomeFailed(), err
		}
		if locked {
			s.logger.Info("store: user %s locked out until %s", user.Username, user.LockoutEnd.Format(time.RFC3339))
			return auth.OutcomeLockedOut(), nil
		}
		return auth.OutcomeFailed(), nil
	}

	if err := s.resetAccessFailed(ctx, user); err != nil {
		return auth.OutcomeFailed(), err
	}

	return s.signInOutcome(user, false), nil
}

// ExternalLoginSignIn signs in the user linked to provider and key.
// Unlinked identities fail so the caller can provision.
func (s *Store) ExternalLoginSignIn(ctx context.Context, provider, providerKey string, bypassTwoFactor bool) (auth.LoginOutcome, error) {
	user, err := s.FindByLogin(ctx, provider, providerKey)
	if err != nil {
		if auth.IsNotFound(err) {
			return auth.OutcomeFailed(), nil
		}
		return auth.OutcomeFailed(), err
	}

	if user.IsLockedOut(s.now()) {
		return auth.OutcomeLockedOut(), nil
	}

	return s.signInOutcome(user, bypassTwoFactor), nil
}

// signInOutcome is the post verification decision. Suspension is not
// decided here.
func (s *Store) signInOutcome(user *auth.User, bypassTwoFactor bool) auth.LoginOutcome {
	switch user.Status {
	case auth.UserStatusDisabled, auth.UserStatusArchived:
		return auth.OutcomeRejected(fmt.Sprintf("account is %s", user.Status))
	}
	if user.TwoFactorEnabled && !bypassTwoFactor {
		return auth.OutcomeRequiresTwoFactor()
	}
	return auth.OutcomeSucceeded()
}

func (s *Store) accessFailed(ctx context.Context, user *auth.User, now time.Time) (bool, error) {
	user.AccessFailedCount++

	locked := user.AccessFailedCount >= s.maxFailedAttempts
	if locked {
		end := now.Add(s.lockoutDuration)
		user.LockoutEnd = &end
		user.AccessFailedCount = 0
	}

	_, err := s.db.NewUpdate().
		Model(user).
		Column("access_failed_count", "lockout_end").
		WherePK().
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("store: track failed login: %w", err)
	}
	return locked, nil
}

func (s *Store) resetAccessFailed(ctx context.Context, user *auth.User) error {
	if user.AccessFailedCount == 0 && user.LockoutEnd == nil {
		return nil
	}
	user.AccessFailedCount = 0
	user.LockoutEnd = nil

	_, err := s.db.NewUpdate().
		Model(user).
		Column("access_failed_count", "lockout_end").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("store: reset failed logins: %w", err)
	}
	return nil
}

// AddExternalLogin links a provider identity to user
func (s *Store) AddExternalLogin(ctx context.Context, user *auth.User, info auth.ExternalLoginInfo) error {
	if user == nil || user.ID == uuid.Nil {
		return auth.ErrUserNotFound
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return s.insertLogin(ctx, tx, user, info)
	})
}

func (s *Store) insertLogin(ctx context.Context, tx bun.Tx, user *auth.User, info auth.ExternalLoginInfo) error {
	exists, err := tx.NewSelect().
		Model((*auth.ExternalLogin)(nil)).
		Where("provider = ?", info.Provider).
		Where("provider_key = ?", info.ProviderKey).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("store: lookup login: %w", err)
	}
	if exists {
		return auth.NewStoreError(auth.StoreErrLoginAlreadyAssociated,
			fmt.Sprintf("a user with this %s login already exists", info.Provider))
	}

	now := s.now()
	login := &auth.ExternalLogin{
		ID:          uuid.New(),
		UserID:      user.ID,
		Provider:    info.Provider,
		ProviderKey: info.ProviderKey,
		DisplayName: info.DisplayName,
		CreatedAt:   &now,
	}
	if _, err := tx.NewInsert().Model(login).Exec(ctx); err != nil {
		return fmt.Errorf("store: insert login: %w", err)
	}
	return nil
}

// GenerateToken issues a purpose scoped token. Phone purposes get a
// numeric code.
func (s *Store) GenerateToken(ctx context.Context, user *auth.User, purpose auth.TokenPurpose) (string, error) {
	current, err := s.reload(ctx, user)
	if err != nil {
		return "", err
	}
	if purpose == auth.PurposePasswordResetPhone {
		return s.tokens.code(current, purpose, s.now()), nil
	}
	return s.tokens.issue(current, purpose, s.now()), nil
}

// VerifyToken checks a token without consuming it. Numeric codes are
// short, so every wrong code counts towards the account lockout and no
// code is accepted while the account is locked out.
func (s *Store) VerifyToken(ctx context.Context, user *auth.User, purpose auth.TokenPurpose, token string) (bool, error) {
	current, err := s.reload(ctx, user)
	if err != nil {
		return false, err
	}
	if purpose != auth.PurposePasswordResetPhone {
		return s.verify(current, purpose, token), nil
	}

	now := s.now()
	if current.IsLockedOut(now) {
		return false, nil
	}
	if s.verify(current, purpose, token) {
		return true, nil
	}

	locked, err := s.accessFailed(ctx, current, now)
	if err != nil {
		return false, err
	}
	if locked {
		s.logger.Info("store: user %s locked out after wrong reset codes", current.Username)
	}
	return false, nil
}

func (s *Store) verify(user *auth.User, purpose auth.TokenPurpose, token string) bool {
	if token == "" {
		return false
	}
	if purpose == auth.PurposePasswordResetPhone {
		return s.tokens.verifyCode(user, purpose, token, s.now())
	}
	return s.tokens.verify(user, purpose, token, s.now())
}

// ResetPassword consumes a reset token and sets a new password. The
// stamp rotation and the token check happen in one statement.
func (s *Store) ResetPassword(ctx context.Context, user *auth.User, token, newPassword string) error {
	current, err := s.reload(ctx, user)
	if err != nil {
		return err
	}

	if !s.verify(current, auth.PurposePasswordReset, token) {
		return auth.NewStoreError(auth.StoreErrInvalidToken, "invalid token")
	}

	return s.replacePassword(ctx, current, newPassword, auth.StoreErrInvalidToken)
}

// ChangePassword replaces the password after checking the current one
func (s *Store) ChangePassword(ctx context.Context, user *auth.User, oldPassword, newPassword string) error {
	current, err := s.reload(ctx, user)
	if err != nil {
		return err
	}

	if err := ComparePasswordAndHash(oldPassword, current.PasswordHash); err != nil {
		if errors.Is(err, auth.ErrMismatchedHashAndPassword) {
			return auth.NewStoreError(auth.StoreErrPasswordMismatch, "incorrect password")
		}
		return err
	}

	return s.replacePassword(ctx, current, newPassword, auth.StoreErrConcurrencyFailure)
}

func (s *Store) replacePassword(ctx context.Context, current *auth.User, newPassword string, staleCode auth.StoreErrorCode) error {
	if errs := s.password.Check(newPassword); len(errs) > 0 {
		return errs
	}

	hash, err := HashPassword(newPassword, s.hashCost)
	if err != nil {
		return fmt.Errorf("store: hash password: %w", err)
	}

	res, err := s.db.NewUpdate().
		Model((*auth.User)(nil)).
		Set("password_hash = ?", hash).
		Set("security_stamp = ?", uuid.NewString()).
		Set("access_failed_count = 0").
		Set("lockout_end = NULL").
		Set("updated_at = ?", s.now()).
		Where("id = ?", current.ID).
		Where("security_stamp = ?", current.SecurityStamp).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("store: update password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.NewStoreError(staleCode, "the account changed while the password was updated")
	}
	return nil
}

// ConfirmEmail consumes a confirmation token
func (s *Store) ConfirmEmail(ctx context.Context, user *auth.User, token string) error {
	current, err := s.reload(ctx, user)
	if err != nil {
		return err
	}

	if !s.verify(current, auth.PurposeEmailConfirmation, token) {
		return auth.NewStoreError(auth.StoreErrInvalidToken, "invalid token")
	}

	res, err := s.db.NewUpdate().
		Model((*auth.User)(nil)).
		Set("email_confirmed = ?", true).
		Set("updated_at = ?", s.now()).
		Where("id = ?", current.ID).
		Where("security_stamp = ?", current.SecurityStamp).
		Where("email_confirmed = ?", false).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("store: confirm email: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.NewStoreError(auth.StoreErrInvalidToken, "invalid token")
	}
	return nil
}

// reload reads the persisted state, tokens never trust a caller's copy
func (s *Store) reload(ctx context.Context, user *auth.User) (*auth.User, error) {
	if user == nil {
		return nil, auth.ErrUserNotFound
	}
	return s.FindByID(ctx, user.ID.String())
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ErrUserNotFound
	}
	return fmt.Errorf("store: query user: %w", err)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
