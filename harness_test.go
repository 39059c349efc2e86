package auth_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-storefront-auth"
	"github.com/goliatone/go-storefront-auth/storefront"
)

const testPassword = "Abc12345!"

// harnessNow is the orchestrator clock in every flow test
var harnessNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// maxCodeAttempts mirrors the store default lockout threshold
const maxCodeAttempts = 5

type tokenKey struct {
	userID  uuid.UUID
	purpose auth.TokenPurpose
}

// memStore is an in memory credential store. Password hashes are the
// plain password prefixed with "hash:".
type memStore struct {
	mu      sync.Mutex
	users   map[uuid.UUID]*auth.User
	logins  map[string]uuid.UUID
	tokens  map[tokenKey]string
	serial  int
	journal *[]string

	resets  []uuid.UUID
	creates int
	// linkErr fails the next external login write
	linkErr error
}

func newMemStore(journal *[]string) *memStore {
	return &memStore{
		users:   map[uuid.UUID]*auth.User{},
		logins:  map[string]uuid.UUID{},
		tokens:  map[tokenKey]string{},
		journal: journal,
	}
}

func (s *memStore) note(format string, args ...any) {
	if s.journal != nil {
		*s.journal = append(*s.journal, fmt.Sprintf(format, args...))
	}
}

func (s *memStore) seed(u auth.User, password string) *auth.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Status == "" {
		u.Status = auth.UserStatusActive
	}
	if password != "" {
		u.PasswordHash = "hash:" + password
	}
	s.users[u.ID] = &u
	cp := u
	return &cp
}

func (s *memStore) get(id uuid.UUID) *auth.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

func (s *memStore) byName(username string) *auth.User {
	for _, u := range s.users {
		if auth.NormalizeKey(u.Username) == auth.NormalizeKey(username) {
			return u
		}
	}
	return nil
}

func (s *memStore) CreateUser(_ context.Context, user *auth.User, password string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.byName(user.Username) != nil {
		return nil, auth.NewStoreError(auth.StoreErrDuplicateUserName, "username is already taken")
	}

	u := *user
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if password != "" {
		u.PasswordHash = "hash:" + password
	}
	s.users[u.ID] = &u
	s.creates++
	s.note("create:%s", u.Username)

	cp := u
	return &cp, nil
}

func (s *memStore) CreateUserWithLogin(_ context.Context, user *auth.User, info auth.ExternalLoginInfo) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.byName(user.Username) != nil {
		return nil, auth.NewStoreError(auth.StoreErrDuplicateUserName, "username is already taken")
	}
	key := info.Provider + "|" + info.ProviderKey
	if _, ok := s.logins[key]; ok {
		return nil, auth.NewStoreError(auth.StoreErrLoginAlreadyAssociated, "login already associated")
	}
	if err := s.linkErr; err != nil {
		s.linkErr = nil
		return nil, err
	}

	u := *user
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	s.users[u.ID] = &u
	s.logins[key] = u.ID
	s.creates++
	s.note("create:%s", u.Username)

	cp := u
	return &cp, nil
}

func (s *memStore) UpdateUser(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if other := s.byName(user.Username); other != nil && other.ID != user.ID {
		return auth.NewStoreError(auth.StoreErrDuplicateUserName, "username is already taken")
	}
	if _, ok := s.users[user.ID]; !ok {
		return auth.ErrUserNotFound
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *memStore) FindByName(_ context.Context, username string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u := s.byName(username); u != nil {
		cp := *u
		return &cp, nil
	}
	return nil, auth.ErrUserNotFound
}

func (s *memStore) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email != "" && auth.NormalizeKey(u.Email) == auth.NormalizeKey(email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrUserNotFound
}

func (s *memStore) FindByID(_ context.Context, id string) (*auth.User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, auth.ErrUserNotFound
	}
	if u := s.get(uid); u != nil {
		return u, nil
	}
	return nil, auth.ErrUserNotFound
}

func (s *memStore) FindByLogin(_ context.Context, provider, providerKey string) (*auth.User, error) {
	s.mu.Lock()
	id, ok := s.logins[provider+"|"+providerKey]
	s.mu.Unlock()
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return s.get(id), nil
}

func (s *memStore) PasswordSignIn(_ context.Context, username, password string, _ bool) (auth.LoginOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.byName(username)
	switch {
	case u == nil:
		return auth.OutcomeFailed(), nil
	case u.LockoutEnd != nil:
		return auth.OutcomeLockedOut(), nil
	case u.Status == auth.UserStatusDisabled:
		return auth.OutcomeRejected("account disabled"), nil
	case u.PasswordHash != "hash:"+password:
		return auth.OutcomeFailed(), nil
	case u.TwoFactorEnabled:
		return auth.OutcomeRequiresTwoFactor(), nil
	}
	return auth.OutcomeSucceeded(), nil
}

func (s *memStore) ExternalLoginSignIn(_ context.Context, provider, providerKey string, _ bool) (auth.LoginOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.logins[provider+"|"+providerKey]; ok {
		return auth.OutcomeSucceeded(), nil
	}
	return auth.OutcomeFailed(), nil
}

func (s *memStore) AddExternalLogin(_ context.Context, user *auth.User, info auth.ExternalLoginInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.linkErr; err != nil {
		s.linkErr = nil
		return err
	}
	key := info.Provider + "|" + info.ProviderKey
	if owner, ok := s.logins[key]; ok && owner != user.ID {
		return auth.NewStoreError(auth.StoreErrLoginAlreadyAssociated, "login already associated")
	}
	s.logins[key] = user.ID
	return nil
}

func (s *memStore) GenerateToken(_ context.Context, user *auth.User, purpose auth.TokenPurpose) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serial++
	token := fmt.Sprintf("%s-%d", purpose, s.serial)
	if purpose == auth.PurposePasswordResetPhone {
		token = "123456"
	}
	s.tokens[tokenKey{user.ID, purpose}] = token
	return token, nil
}

func (s *memStore) VerifyToken(_ context.Context, user *auth.User, purpose auth.TokenPurpose, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	held, ok := s.tokens[tokenKey{user.ID, purpose}]
	if purpose != auth.PurposePasswordResetPhone {
		return ok && held == token, nil
	}

	u := s.users[user.ID]
	if u == nil || u.IsLockedOut(harnessNow) {
		return false, nil
	}
	if ok && held == token {
		return true, nil
	}
	u.AccessFailedCount++
	if u.AccessFailedCount >= maxCodeAttempts {
		end := harnessNow.Add(5 * time.Minute)
		u.LockoutEnd = &end
		u.AccessFailedCount = 0
	}
	return false, nil
}

func (s *memStore) consume(user *auth.User, purpose auth.TokenPurpose, token string) bool {
	key := tokenKey{user.ID, purpose}
	if held, ok := s.tokens[key]; !ok || held != token {
		return false
	}
	delete(s.tokens, key)
	return true
}

func (s *memStore) ResetPassword(_ context.Context, user *auth.User, token, newPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.consume(user, auth.PurposePasswordReset, token) {
		return auth.NewStoreError(auth.StoreErrInvalidToken, "invalid token")
	}
	s.users[user.ID].PasswordHash = "hash:" + newPassword
	s.resets = append(s.resets, user.ID)
	return nil
}

func (s *memStore) ChangePassword(_ context.Context, user *auth.User, oldPassword, newPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[user.ID]
	if u == nil || u.PasswordHash != "hash:"+oldPassword {
		return auth.NewStoreError(auth.StoreErrPasswordMismatch, "incorrect password")
	}
	u.PasswordHash = "hash:" + newPassword
	return nil
}

func (s *memStore) ConfirmEmail(_ context.Context, user *auth.User, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.consume(user, auth.PurposeEmailConfirmation, token) {
		return auth.NewStoreError(auth.StoreErrInvalidToken, "invalid token")
	}
	s.users[user.ID].EmailConfirmed = true
	return nil
}

// plainStore hides the optional store capabilities of its CredentialStore
type plainStore struct {
	auth.CredentialStore
}

type signIn struct {
	Username   string
	Persistent bool
	Operator   string
}

type fakeSession struct {
	journal  *[]string
	signIns  []signIn
	signOuts int
}

func (f *fakeSession) SignIn(_ context.Context, user *auth.User, persistent bool) error {
	f.signIns = append(f.signIns, signIn{Username: user.Username, Persistent: persistent, Operator: user.OperatorName})
	*f.journal = append(*f.journal, "signin:"+user.Username)
	return nil
}

func (f *fakeSession) SignOut(context.Context) error {
	f.signOuts++
	*f.journal = append(*f.journal, "signout")
	return nil
}

type fakeGateway struct {
	journal *[]string
	sent    []auth.Notification
	result  func(auth.Notification) auth.NotificationResult
}

func (g *fakeGateway) Send(_ context.Context, n auth.Notification) auth.NotificationResult {
	g.sent = append(g.sent, n)
	*g.journal = append(*g.journal, "notify:"+string(n.Type))
	if g.result != nil {
		return g.result(n)
	}
	return auth.NotificationSucceeded()
}

type recordingBus struct {
	journal *[]string
	events  []auth.DomainEvent
}

func (b *recordingBus) Publish(_ context.Context, e auth.DomainEvent) {
	b.events = append(b.events, e)
	*b.journal = append(*b.journal, "event:"+e.EventName())
}

func (b *recordingBus) count(name string) int {
	n := 0
	for _, e := range b.events {
		if e.EventName() == name {
			n++
		}
	}
	return n
}

type flowRecord struct{ flow, outcome string }

type recordingFlows struct {
	records []flowRecord
}

func (r *recordingFlows) RecordFlow(flow, outcome string) {
	r.records = append(r.records, flowRecord{flow, outcome})
}

type fakeExternal struct {
	info      *auth.ExternalLoginInfo
	returnURL string
	err       error

	gotProvider string
	gotCallback string
	gotReturn   string
}

func (f *fakeExternal) Challenge(_ context.Context, provider, callbackURL, returnURL string) (string, error) {
	f.gotProvider = provider
	f.gotCallback = callbackURL
	f.gotReturn = returnURL
	if f.err != nil {
		return "", f.err
	}
	return "https://idp.example.com/authorize?state=sealed", nil
}

func (f *fakeExternal) Complete(context.Context, string, string) (*auth.ExternalLoginInfo, string, error) {
	return f.info, f.returnURL, f.err
}

type harness struct {
	journal  []string
	store    *memStore
	session  *fakeSession
	gateway  *fakeGateway
	bus      *recordingBus
	flows    *recordingFlows
	external *fakeExternal
	orch     *auth.Orchestrator
	rc       auth.RequestContext
}

var mainStore = storefront.Store{
	ID:              "main",
	Name:            "Main Store",
	DefaultLanguage: "en-US",
	Languages:       []string{"en-US", "fr-FR"},
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{}
	h.store = newMemStore(&h.journal)
	h.session = &fakeSession{journal: &h.journal}
	h.gateway = &fakeGateway{journal: &h.journal}
	h.bus = &recordingBus{journal: &h.journal}
	h.flows = &recordingFlows{}
	h.external = &fakeExternal{}

	h.orch = auth.NewOrchestrator(h.store, storefront.PathURLBuilder{DefaultStoreID: mainStore.ID}).
		WithNotificationGateway(h.gateway).
		WithEventBus(h.bus).
		WithFlowRecorder(h.flows).
		WithExternalAuthenticator(h.external).
		WithLogger(auth.NewSlogLogger(nil, "TEST")).
		WithClock(func() time.Time { return harnessNow })

	h.rc = auth.RequestContext{
		Store:    mainStore,
		Language: "en-US",
		BaseURL:  "http://localhost:8080",
		Session:  h.session,
	}
	return h
}

// as returns the request context of an authenticated caller
func (h *harness) as(user *auth.User) auth.RequestContext {
	rc := h.rc
	rc.User = user
	return rc
}

func (h *harness) journalSince(mark int) string {
	return strings.Join(h.journal[mark:], " ")
}

func requireCodes(t *testing.T, out auth.Outcome, codes ...auth.FormErrorCode) {
	t.Helper()
	require.NotNil(t, out.Form)
	for _, c := range codes {
		require.Truef(t, out.Form.HasCode(c), "expected %s in [%s]", c, out.Form.CodeString())
	}
}
