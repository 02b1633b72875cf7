package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	principaldomain "minha-agenda/backend/internal/principal/domain"
	"minha-agenda/backend/internal/security"
	sessiondomain "minha-agenda/backend/internal/session/domain"
	sessionrepo "minha-agenda/backend/internal/session/repository"
)

type memPrincipals struct {
	mu   sync.Mutex
	rows []*principaldomain.Principal
	err  error
}

func (m *memPrincipals) FindByEmail(ctx context.Context, email string, role principaldomain.Role) (*principaldomain.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, p := range m.rows {
		if p.Email == email && p.Role == role && p.Active {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memPrincipals) FindByID(ctx context.Context, id int64, role principaldomain.Role) (*principaldomain.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, p := range m.rows {
		if p.ID == id && p.Role == role && p.Active {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memPrincipals) deactivate(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.rows {
		if p.ID == id {
			p.Active = false
		}
	}
}

type memSessionRepo struct {
	mu     sync.Mutex
	nextID int64
	m      map[int64]*sessiondomain.Session
	err    error
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{m: make(map[int64]*sessiondomain.Session)}
}

func (r *memSessionRepo) Create(ctx context.Context, s *sessiondomain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.nextID++
	s.ID = r.nextID
	s.CreatedAt = s.AccessIssuedAt
	s.Active = true
	s.Revoked = false
	cp := *s
	r.m[s.ID] = &cp
	return nil
}

func (r *memSessionRepo) Renew(ctx context.Context, s *sessiondomain.Session, previousRefreshHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	cur, ok := r.m[s.ID]
	if !ok || cur.RefreshTokenHash != previousRefreshHash || !cur.Refreshable(s.AccessIssuedAt) {
		return sessionrepo.ErrNotFound
	}
	at := s.AccessIssuedAt
	cur.AccessTokenHash, cur.AccessIssuedAt, cur.AccessExpiresAt = s.AccessTokenHash, s.AccessIssuedAt, s.AccessExpiresAt
	cur.RefreshTokenHash, cur.RefreshIssuedAt, cur.RefreshExpiresAt = s.RefreshTokenHash, s.RefreshIssuedAt, s.RefreshExpiresAt
	cur.UpdatedAt = &at
	s.UpdatedAt = &at
	return nil
}

func (r *memSessionRepo) FindByRefreshTokenHash(ctx context.Context, hash string, at time.Time) (*sessiondomain.Session, error) {
	return r.find(func(s *sessiondomain.Session) bool { return s.RefreshTokenHash == hash && s.Refreshable(at) })
}

func (r *memSessionRepo) FindByAccessTokenHash(ctx context.Context, hash string, at time.Time) (*sessiondomain.Session, error) {
	return r.find(func(s *sessiondomain.Session) bool { return s.AccessTokenHash == hash && s.Usable(at) })
}

func (r *memSessionRepo) find(match func(*sessiondomain.Session) bool) (*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	for _, s := range r.m {
		if match(s) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memSessionRepo) Revoke(ctx context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.m[id]; ok && !s.Revoked {
		s.Revoked = true
		s.UpdatedAt = &at
	}
	return nil
}

func (r *memSessionRepo) RevokeAllForPrincipal(ctx context.Context, principalID int64, role principaldomain.Role, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.m {
		if s.PrincipalID == principalID && s.PrincipalRole == role && !s.Revoked {
			s.Revoked = true
			s.UpdatedAt = &at
			n++
		}
	}
	return n, nil
}

func (r *memSessionRepo) ListActive(ctx context.Context, principalID int64, role principaldomain.Role, at time.Time) ([]*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*sessiondomain.Session
	for _, s := range r.m {
		if s.PrincipalID == principalID && s.PrincipalRole == role && s.Refreshable(at) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memSessionRepo) SweepExpired(ctx context.Context, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.m {
		if s.Active && s.Expired(at) {
			s.Active = false
			n++
		}
	}
	return n, nil
}

func (r *memSessionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}

func (r *memSessionRepo) get(id int64) sessiondomain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.m[id]
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recorder struct {
	mu       sync.Mutex
	outcomes map[string]int
	swept    int64
}

func (r *recorder) AuthOutcome(operation, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = make(map[string]int)
	}
	r.outcomes[operation+"/"+outcome]++
}

func (r *recorder) SessionsSwept(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.swept += n
}

type fixture struct {
	svc        *AuthService
	principals *memPrincipals
	sessions   *memSessionRepo
	clock      *clock
	metrics    *recorder
}

const (
	clientEmail    = "a@b.com"
	clientPassword = "secret"
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hasher := security.NewPasswordHasher(bcrypt.MinCost)
	clientHash, err := hasher.Hash(clientPassword)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	managerHash, err := hasher.Hash("gerente-pw")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	principals := &memPrincipals{rows: []*principaldomain.Principal{
		{ID: 1, Name: "Ana", Email: clientEmail, PasswordHash: clientHash, Role: principaldomain.RoleClient, Active: true},
		{ID: 1, Name: "Gil", Email: "gil@b.com", PasswordHash: managerHash, Role: principaldomain.RoleManager, Active: true},
	}}
	c := &clock{t: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	sessions := newMemSessionRepo()
	rec := &recorder{}
	svc := NewAuthService(principals, sessions, hasher, security.NewTestTokenCodec(c.Now), time.Hour, 24*time.Hour).
		WithClock(c.Now).
		WithMetrics(rec)
	return &fixture{svc: svc, principals: principals, sessions: sessions, clock: c, metrics: rec}
}

func TestLogin_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, err := f.svc.Login(ctx, clientEmail, clientPassword, principaldomain.RoleClient)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if pair.Access.Code == "" || pair.Refresh.Code == "" {
		t.Fatal("Login returned empty token codes")
	}
	if pair.Access.ExpiresIn() != 3600 {
		t.Errorf("access expiresIn = %d, want 3600", pair.Access.ExpiresIn())
	}
	if pair.Refresh.ExpiresIn() != 86400 {
		t.Errorf("refresh expiresIn = %d, want 86400", pair.Refresh.ExpiresIn())
	}

	stored := f.sessions.get(pair.SessionID)
	if stored.AccessTokenHash == pair.Access.Code || stored.RefreshTokenHash == pair.Refresh.Code {
		t.Fatal("raw token codes must not be stored")
	}
	if stored.AccessTokenHash != security.HashToken(pair.Access.Code) {
		t.Error("stored access hash does not match the returned token")
	}

	view, err := f.svc.ValidateAccessToken(ctx, pair.Access.Code)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	want := principaldomain.View{ID: 1, Name: "Ana", Email: clientEmail, Role: principaldomain.RoleClient}
	if view == nil || *view != want {
		t.Fatalf("ValidateAccessToken = %+v, want %+v", view, want)
	}
	if f.metrics.outcomes["login/success"] != 1 || f.metrics.outcomes["validate/success"] != 1 {
		t.Errorf("outcomes = %v", f.metrics.outcomes)
	}
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := []struct {
		name, email, password string
		role                  principaldomain.Role
	}{
		{"unknown email", "nobody@b.com", clientPassword, principaldomain.RoleClient},
		{"wrong password", clientEmail, "wrong", principaldomain.RoleClient},
		{"wrong class", clientEmail, clientPassword, principaldomain.RoleAdministrator},
		{"administrative role mismatch", "gil@b.com", "gerente-pw", principaldomain.RoleEmployee},
		{"empty email", "", clientPassword, principaldomain.RoleClient},
		{"empty password", clientEmail, "", principaldomain.RoleClient},
		{"unknown role", clientEmail, clientPassword, principaldomain.Role("root")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pair, err := f.svc.Login(ctx, tc.email, tc.password, tc.role)
			if err != ErrUnauthorized {
				t.Fatalf("Login: want ErrUnauthorized, got %v", err)
			}
			if pair != nil {
				t.Error("Login should return nil pair on failure")
			}
		})
	}
	if f.sessions.count() != 0 {
		t.Errorf("failed logins created %d sessions", f.sessions.count())
	}
}

func TestLogin_NormalisesEmail(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Login(context.Background(), "  A@B.com ", clientPassword, principaldomain.RoleClient); err != nil {
		t.Fatalf("Login: %v", err)
	}
}

func TestLogin_AdministrativeRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pair, err := f.svc.Login(ctx, "gil@b.com", "gerente-pw", principaldomain.RoleManager)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	view, err := f.svc.ValidateAccessToken(ctx, pair.Access.Code)
	if err != nil || view == nil || view.Role != principaldomain.RoleManager || view.Name != "Gil" {
		t.Fatalf("ValidateAccessToken = %+v, %v", view, err)
	}
}

func TestLogin_EachLoginOpensANewSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.svc.Login(ctx, clientEmail, clientPassword, principaldomain.RoleClient)
	if err != nil {
		t.Fatalf("Login 1: %v", err)
	}
	b, err := f.svc.Login(ctx, clientEmail, clientPassword, principaldomain.RoleClient)
	if err != nil {
		t.Fatalf("Login 2: %v", err)
	}
	if a.SessionID == b.SessionID {
		t.Fatal("two logins must produce distinct session ids")
	}
	for _, p := range []*TokenPair{a, b} {
		if v, err := f.svc.ValidateAccessToken(ctx, p.Access.Code); err != nil || v == nil {
			t.Errorf("session %d should be valid: %v", p.SessionID, err)
		}
	}
}

func TestLogin_StorageErrorIsNotUnauthorized(t *testing.T) {
	f := newFixture(t)
	f.sessions.err = errors.New("connection reset")
	_, err := f.svc.Login(context.Background(), clientEmail, clientPassword, principaldomain.RoleClient)
	if err == nil || errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Login with failing store: want storage error, got %v", err)
	}
	if f.metrics.outcomes["login/error"] != 1 {
		t.Errorf("outcomes = %v", f.metrics.outcomes)
	}

	f.sessions.err = nil
	f.principals.err = errors.New("timeout")
	_, err = f.svc.Login(context.Background(), clientEmail, clientPassword, principaldomain.RoleClient)
	if err == nil || errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Login with failing directory: want storage error, got %v", err)
	}
}

func TestRefresh_MutatesSameSessionAndRotates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.svc.Login(ctx, clientEmail, clientPassword, principaldomain.RoleClient)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	f.clock.Advance(10 * time.Minute)

	second, err := f.svc.Refresh(ctx, first.Refresh.Code)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Errorf("Refresh session id = %d, want %d", second.SessionID, first.SessionID)
	}
	if f.sessions.count() != 1 {
		t.Errorf("session rows = %d, want 1", f.sessions.count())
	}
	if second.Access.Code == first.Access.Code || second.Refresh.Code == first.Refresh.Code {
		t.Error("Refresh must mint new codes")
	}
	stored := f.sessions.get(first.SessionID)
	if stored.UpdatedAt == nil || stored.Revoked || !stored.Active {
		t.Errorf("stored session after refresh = %+v", stored)
	}

	if _, err := f.svc.Refresh(ctx, first.Refresh.Code); err != ErrUnauthorized {
		t.Errorf("reusing old refresh token: want ErrUnauthorized, got %v", err)
	}
	if v, _ := f.svc.ValidateAccessToken(ctx, first.Access.Code); v != nil {
		t.Error("old access token must not validate after rotation")
	}
	if v, err := f.svc.ValidateAccessToken(ctx, second.Access.Code); err != nil || v == nil {
		t.Errorf("new access token should validate: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, second.Refresh.Code); err != nil {
		t.Errorf("new refresh token should work: %v", err)
	}
}

func TestRefresh_ConcurrentRefreshHasOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pair, err := f.svc.Login(ctx, clientEmail, clientPassword, principaldomain.RoleClient)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	const n = 10
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Refresh(ctx, pair.Refresh.Code)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		switch err {
		case nil:
			wins++
		case ErrUnauthorized:
		default:
			t.Fatalf("Refresh: unexpected error %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("successful refreshes = %d, want 1", wins)
	}
}

func TestRefresh_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pair, err := f.svc.Login(ctx, clientEmail, clientPassword, principaldomain.RoleClient)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if _, err := f.svc.Refresh(ctx, ""); err != ErrUnauthorized {
		t.Errorf("empty: want ErrUnauthorized, got %v", err)
	}
	if _, err := f.svc.Refresh(ctx, "garbage"); err != ErrUnauthorized {
		t.Errorf("garbage: want ErrUnauthorized, got %v", err)
	}
	if _, err := f.svc.Refresh(ctx, pair.Access.Code); err != ErrUnauthorized {
		t.Errorf("access token used as refresh: want ErrUnauthorized, got %v", err)
	}

	if err := f.svc.Logout(ctx, pair.Access.Code); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, pair.Refresh.Code); err != ErrUnauthorized {
		t.Errorf("revoked session: want ErrUnauthorized, got %v", err)
	}
}

func TestRefresh_ExpiredRefreshToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pair, err := f.svc.Login(ctx, clientEmail, clientPassword, principaldomain.RoleClient)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	f.clock.Advance(25 * time.Hour)
	if _, err := f.svc.Refresh(ctx, pair.Refresh.Code); err != ErrUnauthorized {
		t.Errorf("expired refresh: want ErrUnauthorized, got %v", err)
	}
}

func TestRefresh_PrincipalDeactivated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pair, err := f.svc.Login(ctx, clientEmail, clientPassword, principaldomain.RoleClient)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	f.principals.deactivate(1)
	if _, err := f.svc.Refresh(ctx, pair.Refresh.Code); err != ErrUnauthorized {
		t.Errorf("deactivated principal: want ErrUnauthorized, got %v", err)
	}
}

func TestLogout_TerminalAndIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pair, err := f.svc.Login(ctx, clientEmail, clientPassword, principaldomain.RoleClient)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := f.svc.Logout(ctx, pair.Access.Code); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if v, err := f.svc.ValidateAccessToken(ctx, pair.Access.Code); err != nil || v != nil {
		t.Errorf("ValidateAccessToken after logout = %+v, %v; want nil", v, err)
	}
	if err := f.svc.Logout(ctx, pair.Access.Code); err != nil {
		t.Errorf("second Logout: %v", err)
	}
	if err := f.svc.Logout(ctx, "unknown"); err != nil {
		t.Errorf("Logout unknown token: %v", err)
	}
	if err := f.svc.Logout(ctx, ""); err != nil {
		t.Errorf("Logout empty token: %v", err)
	}
	if !f.sessions.get(pair.SessionID).Revoked {
		t.Error("session should be revoked")
	}
}

func TestValidateAccessToken_ExpiryIndependentOfRevocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pair, err := f.svc.Login(ctx, clientEmail, clientPassword, principaldomain.RoleClient)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	f.clock.Advance(time.Hour + time.Second)
	if v, err := f.svc.ValidateAccessToken(ctx, pair.Access.Code); err != nil || v != nil {
		t.Errorf("expired access token = %+v, %v; want nil", v, err)
	}
	if f.sessions.get(pair.SessionID).Revoked {
		t.Error("expiry must not revoke the session")
	}
}

func TestValidateAccessToken_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pair, err := f.svc.Login(ctx, clientEmail, clientPassword, principaldomain.RoleClient)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	// Signed by us but never stored.
	orphan, err := security.NewTestTokenCodec(f.clock.Now).Mint(1, "Ana", "cliente", time.Hour)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	for name, code := range map[string]string{
		"empty":         "",
		"garbage":       "not-a-jwt",
		"refresh token": pair.Refresh.Code,
		"orphan":        orphan.Code,
	} {
		if v, err := f.svc.ValidateAccessToken(ctx, code); err != nil || v != nil {
			t.Errorf("%s: ValidateAccessToken = %+v, %v; want nil", name, v, err)
		}
	}

	f.principals.deactivate(1)
	if v, err := f.svc.ValidateAccessToken(ctx, pair.Access.Code); err != nil || v != nil {
		t.Errorf("deactivated principal: ValidateAccessToken = %+v, %v; want nil", v, err)
	}
}

func TestValidateAccessToken_StorageError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pair, err := f.svc.Login(ctx, clientEmail, clientPassword, principaldomain.RoleClient)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	f.sessions.err = errors.New("down")
	if _, err := f.svc.ValidateAccessToken(ctx, pair.Access.Code); err == nil {
		t.Fatal("ValidateAccessToken should surface storage errors")
	}
}

func TestLogoutEverywhere(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, _ := f.svc.Login(ctx, clientEmail, clientPassword, principaldomain.RoleClient)
	b, _ := f.svc.Login(ctx, clientEmail, clientPassword, principaldomain.RoleClient)
	m, _ := f.svc.Login(ctx, "gil@b.com", "gerente-pw", principaldomain.RoleManager)

	n, err := f.svc.LogoutEverywhere(ctx, a.Access.Code)
	if err != nil {
		t.Fatalf("LogoutEverywhere: %v", err)
	}
	if n != 2 {
		t.Errorf("revoked = %d, want 2", n)
	}
	for _, p := range []*TokenPair{a, b} {
		if v, _ := f.svc.ValidateAccessToken(ctx, p.Access.Code); v != nil {
			t.Errorf("session %d should be revoked", p.SessionID)
		}
	}
	// Same numeric id in the administrative class is a different principal.
	if v, _ := f.svc.ValidateAccessToken(ctx, m.Access.Code); v == nil {
		t.Error("manager session must survive a client's logout-all")
	}
	if _, err := f.svc.LogoutEverywhere(ctx, a.Access.Code); err != ErrUnauthorized {
		t.Errorf("LogoutEverywhere with revoked token: want ErrUnauthorized, got %v", err)
	}
}

func TestListSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, _ := f.svc.Login(ctx, clientEmail, clientPassword, principaldomain.RoleClient)
	b, _ := f.svc.Login(ctx, clientEmail, clientPassword, principaldomain.RoleClient)
	if err := f.svc.Logout(ctx, b.Access.Code); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	id, err := f.svc.Authenticate(ctx, a.Access.Code)
	if err != nil || id == nil {
		t.Fatalf("Authenticate = %+v, %v", id, err)
	}
	if id.SessionID != a.SessionID {
		t.Errorf("Authenticate session = %d, want %d", id.SessionID, a.SessionID)
	}
	list, err := f.svc.ListSessions(ctx, id.Principal, id.SessionID)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(list) != 1 || list[0].ID != a.SessionID || !list[0].Current {
		t.Errorf("ListSessions = %+v", list)
	}
}

func TestSweepExpiredSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old, _ := f.svc.Login(ctx, clientEmail, clientPassword, principaldomain.RoleClient)
	f.clock.Advance(2 * time.Hour)

	// Access expired, refresh still live: not swept.
	n, err := f.svc.SweepExpiredSessions(ctx)
	if err != nil {
		t.Fatalf("SweepExpiredSessions: %v", err)
	}
	if n != 0 {
		t.Errorf("swept = %d, want 0 while refresh is live", n)
	}

	f.clock.Advance(23 * time.Hour)
	fresh, _ := f.svc.Login(ctx, clientEmail, clientPassword, principaldomain.RoleClient)
	n, err = f.svc.SweepExpiredSessions(ctx)
	if err != nil {
		t.Fatalf("SweepExpiredSessions: %v", err)
	}
	if n != 1 {
		t.Errorf("swept = %d, want 1", n)
	}
	if f.sessions.get(old.SessionID).Active {
		t.Error("expired session should be inactive")
	}
	if f.sessions.count() != 2 {
		t.Error("sweep must not delete rows")
	}
	if !f.sessions.get(fresh.SessionID).Active {
		t.Error("fresh session should stay active")
	}
	if f.metrics.swept != 1 {
		t.Errorf("metrics swept = %d, want 1", f.metrics.swept)
	}
}
