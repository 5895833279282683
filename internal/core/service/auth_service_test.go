package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/echos/users-api/internal/core/domain"
	"github.com/echos/users-api/internal/core/ports"
	"github.com/echos/users-api/internal/infrastructure/security"
)

// ---------------------------------------------------------------------------
// In-memory stub directory
// ---------------------------------------------------------------------------

type stubUserRepo struct {
	users     map[string]*domain.User // keyed by ID
	nextID    int
	creates   int
	findErr   error
	updateErr error
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[string]*domain.User)}
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

func (r *stubUserRepo) FindOne(_ context.Context, f ports.UserFilter) (*domain.User, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	if f.ID != "" {
		if u, ok := r.users[f.ID]; ok {
			return cloneUser(u), nil
		}
		return nil, domain.ErrUserNotFound
	}
	for _, u := range r.users {
		if u.Pseudonyme == f.Pseudonyme {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubUserRepo) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	for _, u := range r.users {
		if u.Pseudonyme == user.Pseudonyme {
			return nil, domain.ErrUserExists
		}
	}
	r.nextID++
	r.creates++
	c := cloneUser(user)
	c.ID = "user-" + strconv.Itoa(r.nextID)
	r.users[c.ID] = c
	return cloneUser(c), nil
}

func (r *stubUserRepo) Update(_ context.Context, f ports.UserFilter, p domain.UserPatch) (*domain.User, error) {
	if r.updateErr != nil {
		return nil, r.updateErr
	}
	u, ok := r.users[f.ID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	if p.Pseudonyme != nil {
		for id, other := range r.users {
			if id != f.ID && other.Pseudonyme == *p.Pseudonyme {
				return nil, domain.ErrUserExists
			}
		}
		u.Pseudonyme = *p.Pseudonyme
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Address != nil {
		addr := *p.Address
		u.Address = &addr
	}
	if p.Comment != nil {
		u.Comment = *p.Comment
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.LastAuthenticatedAt != nil {
		ts := *p.LastAuthenticatedAt
		u.LastAuthenticatedAt = &ts
	}
	return cloneUser(u), nil
}

func (r *stubUserRepo) Remove(_ context.Context, f ports.UserFilter) error {
	if _, ok := r.users[f.ID]; !ok {
		return domain.ErrUserNotFound
	}
	delete(r.users, f.ID)
	return nil
}

func (r *stubUserRepo) List(_ context.Context, f ports.ListUsersFilter) ([]*domain.User, int64, error) {
	var matched []*domain.User
	for _, u := range r.users {
		if f.Text != "" && !strings.Contains(u.Pseudonyme+" "+u.Name+" "+u.Comment, f.Text) {
			continue
		}
		matched = append(matched, cloneUser(u))
	}
	total := int64(len(matched))
	skip := (f.Page - 1) * f.Limit
	if skip > len(matched) {
		return []*domain.User{}, total, nil
	}
	end := skip + f.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[skip:end], total, nil
}

// stubCache mirrors the generation rules of the Redis subject cache.
type stubCache struct {
	mu          sync.Mutex
	entries     map[string]*domain.User
	generations map[string]int64
	invalidated []string
	getErr      error
}

func newStubCache() *stubCache {
	return &stubCache{entries: make(map[string]*domain.User), generations: make(map[string]int64)}
}

func (c *stubCache) Get(_ context.Context, id string) (*domain.User, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, 0, c.getErr
	}
	return cloneUser(c.entries[id]), c.generations[id], nil
}

func (c *stubCache) Set(_ context.Context, u *domain.User, generation int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[u.ID] != generation {
		return nil
	}
	c.entries[u.ID] = cloneUser(u)
	return nil
}

func (c *stubCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[id]++
	delete(c.entries, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}

// pausingRepo stalls the first ID lookup after it has read the directory,
// until release is closed.
type pausingRepo struct {
	*stubUserRepo
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func newPausingRepo(inner *stubUserRepo) *pausingRepo {
	return &pausingRepo{stubUserRepo: inner, read: make(chan struct{}), release: make(chan struct{})}
}

func (r *pausingRepo) FindOne(ctx context.Context, f ports.UserFilter) (*domain.User, error) {
	u, err := r.stubUserRepo.FindOne(ctx, f)
	paused := false
	r.once.Do(func() { paused = true })
	if paused {
		close(r.read)
		<-r.release
	}
	return u, err
}

type failingHasher struct{}

func (failingHasher) Hash(string) (string, error) { return "", errors.New("entropy exhausted") }
func (failingHasher) Verify(string, string) bool  { return false }

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var discardLogger = zerolog.Nop()

func testIssuer(t *testing.T) *security.JWTIssuer {
	t.Helper()
	iss, err := security.NewJWTIssuer(security.TokenConfig{AccessSecret: "access", RefreshSecret: "refresh"})
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	return iss
}

func newTestAuthService(t *testing.T, repo *stubUserRepo, opts AuthOptions) *AuthService {
	t.Helper()
	return NewAuthService(repo, security.NewBcryptHasher(bcrypt.MinCost), testIssuer(t), nil, opts, discardLogger)
}

func seedUser(t *testing.T, repo *stubUserRepo, pseudonyme, password, role string) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u, err := repo.Create(context.Background(), &domain.User{
		Pseudonyme:   pseudonyme,
		PasswordHash: string(hash),
		Name:         strings.ToUpper(pseudonyme[:1]) + pseudonyme[1:],
		Role:         role,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return u
}

// ---------------------------------------------------------------------------
// Signup
// ---------------------------------------------------------------------------

func TestAuthService_Signup_Success(t *testing.T) {
	repo := newStubUserRepo()
	svc := newTestAuthService(t, repo, AuthOptions{})

	res, err := svc.Signup(context.Background(), ports.SignupInput{Pseudonyme: "Alice", Password: "Secret1!", Name: "Alice"})
	if err != nil {
		t.Fatalf("Signup returned error: %v", err)
	}
	if res.Token == "" || res.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", res)
	}
	if res.User.Role != domain.RoleUser || res.User.Name != "Alice" || res.User.UserID == "" {
		t.Fatalf("unexpected claims: %+v", res.User)
	}

	stored, err := repo.FindOne(context.Background(), ports.UserFilter{Pseudonyme: "alice"})
	if err != nil {
		t.Fatalf("expected stored user under lowercased pseudonyme: %v", err)
	}
	if stored.PasswordHash == "Secret1!" {
		t.Fatalf("expected password to be hashed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("Secret1!")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}
}

func TestAuthService_Signup_AlwaysUserRole(t *testing.T) {
	repo := newStubUserRepo()
	svc := newTestAuthService(t, repo, AuthOptions{})

	res, err := svc.Signup(context.Background(), ports.SignupInput{Pseudonyme: "mallory", Password: "Secret1!"})
	if err != nil {
		t.Fatalf("Signup returned error: %v", err)
	}
	if res.User.Role != domain.RoleUser {
		t.Fatalf("expected role %q, got %q", domain.RoleUser, res.User.Role)
	}
	stored, _ := repo.FindOne(context.Background(), ports.UserFilter{ID: res.User.UserID})
	if stored.Role != domain.RoleUser {
		t.Fatalf("stored role: %s", stored.Role)
	}
}

func TestAuthService_Signup_DuplicateCaseInsensitive(t *testing.T) {
	repo := newStubUserRepo()
	svc := newTestAuthService(t, repo, AuthOptions{})

	if _, err := svc.Signup(context.Background(), ports.SignupInput{Pseudonyme: "bob", Password: "Secret1!"}); err != nil {
		t.Fatalf("first signup failed: %v", err)
	}
	_, err := svc.Signup(context.Background(), ports.SignupInput{Pseudonyme: "BoB", Password: "Other1!x"})
	if !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
	if repo.creates != 1 {
		t.Fatalf("expected a single record, got %d creates", repo.creates)
	}
}

func TestAuthService_Signup_HashFailureIsInternal(t *testing.T) {
	repo := newStubUserRepo()
	svc := NewAuthService(repo, failingHasher{}, testIssuer(t), nil, AuthOptions{}, discardLogger)

	_, err := svc.Signup(context.Background(), ports.SignupInput{Pseudonyme: "carol", Password: "Secret1!"})
	if err == nil || errors.Is(err, domain.ErrUserExists) || errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if repo.creates != 0 {
		t.Fatalf("no record should be created")
	}
}

func TestAuthService_Signup_BindsUserAgent(t *testing.T) {
	repo := newStubUserRepo()
	iss := testIssuer(t)
	svc := NewAuthService(repo, security.NewBcryptHasher(bcrypt.MinCost), iss, nil, AuthOptions{BindUserAgent: true}, discardLogger)

	res, err := svc.Signup(context.Background(), ports.SignupInput{Pseudonyme: "dan", Password: "Secret1!", UserAgent: "ua/1"})
	if err != nil {
		t.Fatalf("Signup returned error: %v", err)
	}
	claims, err := iss.VerifyAccess(res.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserAgent != "ua/1" {
		t.Fatalf("expected bound user agent, got %q", claims.UserAgent)
	}
	if res.User.UserAgent != "" {
		t.Fatalf("fingerprint must not be echoed in the user payload")
	}
}

// ---------------------------------------------------------------------------
// Signin
// ---------------------------------------------------------------------------

func TestAuthService_Signin_Success(t *testing.T) {
	repo := newStubUserRepo()
	alice := seedUser(t, repo, "alice", "Secret1!", domain.RoleUser)
	iss := testIssuer(t)
	svc := NewAuthService(repo, security.NewBcryptHasher(bcrypt.MinCost), iss, nil, AuthOptions{}, discardLogger)

	before := time.Now().UTC().Add(-time.Millisecond)
	res, err := svc.Signin(context.Background(), ports.SigninInput{Pseudonyme: "ALICE", Password: "Secret1!"})
	if err != nil {
		t.Fatalf("signin failed: %v", err)
	}
	if res.Token == "" || res.RefreshToken == "" {
		t.Fatalf("expected tokens, got %+v", res)
	}

	claims, err := iss.VerifyAccess(res.Token)
	if err != nil {
		t.Fatalf("token invalid: %v", err)
	}
	if claims.UserID != alice.ID || claims.Role != domain.RoleUser {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	stored, _ := repo.FindOne(context.Background(), ports.UserFilter{ID: alice.ID})
	if stored.LastAuthenticatedAt == nil || stored.LastAuthenticatedAt.Before(before) {
		t.Fatalf("expected lastAuthenticatedAt >= %v, got %v", before, stored.LastAuthenticatedAt)
	}
}

func TestAuthService_Signin_InvalidPassword(t *testing.T) {
	repo := newStubUserRepo()
	seedUser(t, repo, "dave", "Goodpass1!", domain.RoleUser)
	svc := newTestAuthService(t, repo, AuthOptions{})

	if _, err := svc.Signin(context.Background(), ports.SigninInput{Pseudonyme: "dave", Password: "badpass"}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthService_Signin_UserNotFound(t *testing.T) {
	svc := newTestAuthService(t, newStubUserRepo(), AuthOptions{})

	if _, err := svc.Signin(context.Background(), ports.SigninInput{Pseudonyme: "ghost", Password: "pass"}); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestAuthService_Signin_DirectoryFailureIsInternal(t *testing.T) {
	repo := newStubUserRepo()
	repo.findErr = errors.New("connection reset")
	svc := newTestAuthService(t, repo, AuthOptions{})

	_, err := svc.Signin(context.Background(), ports.SigninInput{Pseudonyme: "alice", Password: "Secret1!"})
	if err == nil || errors.Is(err, domain.ErrUserNotFound) || errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Refresh
// ---------------------------------------------------------------------------

func TestAuthService_Refresh_Success(t *testing.T) {
	repo := newStubUserRepo()
	seedUser(t, repo, "erin", "Secret1!", domain.RoleAdmin)
	iss := testIssuer(t)
	svc := NewAuthService(repo, security.NewBcryptHasher(bcrypt.MinCost), iss, nil, AuthOptions{}, discardLogger)

	res, err := svc.Signin(context.Background(), ports.SigninInput{Pseudonyme: "erin", Password: "Secret1!"})
	if err != nil {
		t.Fatalf("signin failed: %v", err)
	}

	pair, err := svc.Refresh(context.Background(), res.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if pair.RefreshToken == res.RefreshToken {
		t.Fatalf("expected a rotated refresh token")
	}

	claims, err := iss.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("new access token invalid: %v", err)
	}
	if claims.UserID != res.User.UserID || claims.Role != domain.RoleAdmin {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if _, err := iss.VerifyRefresh(pair.RefreshToken); err != nil {
		t.Fatalf("new refresh token invalid: %v", err)
	}
}

func TestAuthService_Refresh_RejectsBadTokens(t *testing.T) {
	iss := testIssuer(t)
	svc := NewAuthService(newStubUserRepo(), security.NewBcryptHasher(bcrypt.MinCost), iss, nil, AuthOptions{}, discardLogger)

	access, _ := iss.IssueAccess(domain.Claims{UserID: "u1", Role: domain.RoleUser})
	expired, _ := iss.WithClock(func() time.Time { return time.Now().Add(-30 * 24 * time.Hour) }).
		IssueRefresh(domain.Claims{UserID: "u1", Role: domain.RoleUser})

	for name, token := range map[string]string{
		"tampered":     "tampered-or-expired-token",
		"access token": access,
		"expired":      expired,
		"empty":        "",
	} {
		_, err := svc.Refresh(context.Background(), token)
		if err != domain.ErrUnauthorized {
			t.Fatalf("%s: expected bare ErrUnauthorized, got %v", name, err)
		}
	}
}

func TestAuthService_Refresh_TrustsEmbeddedClaimsByDefault(t *testing.T) {
	repo := newStubUserRepo()
	iss := testIssuer(t)
	svc := NewAuthService(repo, security.NewBcryptHasher(bcrypt.MinCost), iss, nil, AuthOptions{}, discardLogger)

	refresh, _ := iss.IssueRefresh(domain.Claims{UserID: "deleted-user", Role: domain.RoleAdmin, Name: "Old"})
	pair, err := svc.Refresh(context.Background(), refresh)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	claims, _ := iss.VerifyAccess(pair.AccessToken)
	if claims.Role != domain.RoleAdmin || claims.Name != "Old" {
		t.Fatalf("expected embedded claims, got %+v", claims)
	}
}

func TestAuthService_Refresh_Revalidate(t *testing.T) {
	repo := newStubUserRepo()
	frank := seedUser(t, repo, "frank", "Secret1!", domain.RoleUser)
	iss := testIssuer(t)
	svc := NewAuthService(repo, security.NewBcryptHasher(bcrypt.MinCost), iss, nil, AuthOptions{RevalidateOnRefresh: true}, discardLogger)

	stale, _ := iss.IssueRefresh(domain.Claims{UserID: frank.ID, Role: domain.RoleAdmin, Name: "Frank"})
	pair, err := svc.Refresh(context.Background(), stale)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	claims, _ := iss.VerifyAccess(pair.AccessToken)
	if claims.Role != domain.RoleUser {
		t.Fatalf("expected current directory role, got %q", claims.Role)
	}

	gone, _ := iss.IssueRefresh(domain.Claims{UserID: "missing", Role: domain.RoleUser})
	if _, err := svc.Refresh(context.Background(), gone); err != domain.ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized for deleted subject, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// ValidateSubject
// ---------------------------------------------------------------------------

func TestAuthService_ValidateSubject(t *testing.T) {
	repo := newStubUserRepo()
	gina := seedUser(t, repo, "gina", "Secret1!", domain.RoleUser)
	svc := newTestAuthService(t, repo, AuthOptions{})

	u, err := svc.ValidateSubject(context.Background(), gina.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if u.PasswordHash != "" {
		t.Fatalf("projection must not carry the password hash")
	}

	if _, err := svc.ValidateSubject(context.Background(), "nope"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestAuthService_ValidateSubject_UsesCache(t *testing.T) {
	repo := newStubUserRepo()
	hank := seedUser(t, repo, "hank", "Secret1!", domain.RoleUser)
	cache := newStubCache()
	svc := NewAuthService(repo, security.NewBcryptHasher(bcrypt.MinCost), testIssuer(t), cache, AuthOptions{}, discardLogger)

	if _, err := svc.ValidateSubject(context.Background(), hank.ID); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cache.entries[hank.ID] == nil || cache.entries[hank.ID].PasswordHash != "" {
		t.Fatalf("expected public projection in cache, got %+v", cache.entries[hank.ID])
	}

	repo.findErr = errors.New("directory down")
	if _, err := svc.ValidateSubject(context.Background(), hank.ID); err != nil {
		t.Fatalf("expected cache hit, got %v", err)
	}
}

func TestAuthService_ValidateSubject_CacheErrorFallsBack(t *testing.T) {
	repo := newStubUserRepo()
	ivy := seedUser(t, repo, "ivy", "Secret1!", domain.RoleUser)
	cache := newStubCache()
	cache.getErr = errors.New("redis down")
	svc := NewAuthService(repo, security.NewBcryptHasher(bcrypt.MinCost), testIssuer(t), cache, AuthOptions{}, discardLogger)

	u, err := svc.ValidateSubject(context.Background(), ivy.ID)
	if err != nil || u.ID != ivy.ID {
		t.Fatalf("expected directory fallback, got %v %v", u, err)
	}
}

func TestAuthService_ValidateSubject_DeleteDuringLookup(t *testing.T) {
	repo := newStubUserRepo()
	jill := seedUser(t, repo, "jill", "Secret1!", domain.RoleUser)
	cache := newStubCache()
	paused := newPausingRepo(repo)
	auth := NewAuthService(paused, security.NewBcryptHasher(bcrypt.MinCost), testIssuer(t), cache, AuthOptions{}, discardLogger)
	users := newTestUserService(repo, cache)

	done := make(chan error, 1)
	go func() {
		_, err := auth.ValidateSubject(context.Background(), jill.ID)
		done <- err
	}()

	<-paused.read
	if err := users.Delete(context.Background(), jill.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	close(paused.release)
	if err := <-done; err != nil {
		t.Fatalf("in-flight lookup: %v", err)
	}

	if cache.entries[jill.ID] != nil {
		t.Fatalf("deleted subject must not be cached, got %+v", cache.entries[jill.ID])
	}
	if _, err := auth.ValidateSubject(context.Background(), jill.ID); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound after delete, got %v", err)
	}
}

func TestAuthService_ValidateSubject_DemotionDuringLookup(t *testing.T) {
	repo := newStubUserRepo()
	kurt := seedUser(t, repo, "kurt", "Secret1!", domain.RoleAdmin)
	cache := newStubCache()
	paused := newPausingRepo(repo)
	auth := NewAuthService(paused, security.NewBcryptHasher(bcrypt.MinCost), testIssuer(t), cache, AuthOptions{}, discardLogger)
	users := newTestUserService(repo, cache)

	done := make(chan error, 1)
	go func() {
		_, err := auth.ValidateSubject(context.Background(), kurt.ID)
		done <- err
	}()

	<-paused.read
	role := domain.RoleUser
	if _, err := users.AdminUpdate(context.Background(), kurt.ID, ports.AdminUserInput{Role: &role}); err != nil {
		t.Fatalf("demote: %v", err)
	}
	close(paused.release)
	if err := <-done; err != nil {
		t.Fatalf("in-flight lookup: %v", err)
	}

	u, err := auth.ValidateSubject(context.Background(), kurt.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if u.Role != domain.RoleUser {
		t.Fatalf("expected demoted role %q, got %q", domain.RoleUser, u.Role)
	}
}
