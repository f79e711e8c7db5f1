package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopfront-dev/shopfront/internal/identity"
	"github.com/shopfront-dev/shopfront/pkg/storage"
)

type fixedProvider struct {
	id  identity.Identity
	err error
}

func (p fixedProvider) Login(ctx context.Context, email, password string) (identity.Identity, error) {
	if p.err != nil {
		return identity.Identity{}, p.err
	}
	id := p.id
	id.Email = email
	return id, nil
}

func (p fixedProvider) Register(ctx context.Context, email, password, name string) (identity.Identity, error) {
	if p.err != nil {
		return identity.Identity{}, p.err
	}
	id := p.id
	id.Email = email
	id.Name = name
	return id, nil
}

func newTestStore(t *testing.T, p identity.Provider) (*Store, *storage.MemoryKV) {
	t.Helper()
	kv := storage.NewMemoryKV()
	t.Cleanup(func() { kv.Close() })
	return New(kv, "client-1", p, WithOrigin("tab-a")), kv
}

// TestLogin tests sign-in, persistence under both keys, and notification.
func TestLogin(t *testing.T) {
	s, kv := newTestStore(t, fixedProvider{id: identity.Identity{
		Token: "jwt-1", UserID: "1", Name: "Test User",
	}})
	ctx := context.Background()

	var seen *identity.Identity
	s.Subscribe(func(id *identity.Identity) { seen = id })

	id, err := s.Login(ctx, "a@b.com", "x")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if id.Email != "a@b.com" || id.Token == "" {
		t.Errorf("identity: got %+v", id)
	}

	if cur, ok := s.Current(); !ok || cur.Email != "a@b.com" {
		t.Errorf("Current: got %+v ok=%v", cur, ok)
	}
	if !s.Authenticated() {
		t.Error("Authenticated should be true after login")
	}
	if seen == nil || seen.Email != "a@b.com" {
		t.Errorf("subscriber saw %+v", seen)
	}

	// Token persisted as an opaque string.
	tok, _ := kv.Get(ctx, "client-1", TokenKey)
	if string(tok) != "jwt-1" {
		t.Errorf("persisted token: got %q", tok)
	}

	// User persisted as a JSON record without the token.
	userData, _ := kv.Get(ctx, "client-1", UserKey)
	var rec map[string]any
	if err := json.Unmarshal(userData, &rec); err != nil {
		t.Fatalf("unmarshal user record: %v", err)
	}
	if rec["email"] != "a@b.com" || rec["id"] != "1" {
		t.Errorf("user record: got %v", rec)
	}
	if _, ok := rec["token"]; ok {
		t.Error("user record must not duplicate the token")
	}
}

// TestLoginFailure tests that provider errors leave the store signed out.
func TestLoginFailure(t *testing.T) {
	s, kv := newTestStore(t, fixedProvider{err: identity.ErrInvalidCredentials})
	ctx := context.Background()

	_, err := s.Login(ctx, "a@b.com", "bad")
	if !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Fatalf("got %v, want ErrInvalidCredentials", err)
	}
	if s.Authenticated() {
		t.Error("failed login must not sign in")
	}
	if tok, _ := kv.Get(ctx, "client-1", TokenKey); tok != nil {
		t.Error("failed login must not persist a token")
	}
}

// TestRegister tests account creation.
func TestRegister(t *testing.T) {
	s, _ := newTestStore(t, fixedProvider{id: identity.Identity{Token: "jwt-2", UserID: "2"}})

	id, err := s.Register(context.Background(), "n@b.com", "pw", "Nia")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if id.Name != "Nia" || id.UserID != "2" {
		t.Errorf("identity: got %+v", id)
	}
	if !s.Authenticated() {
		t.Error("expected signed in after register")
	}
}

// TestUpdateUser tests partial profile merge.
func TestUpdateUser(t *testing.T) {
	ctx := context.Background()

	t.Run("MergesFields", func(t *testing.T) {
		s, kv := newTestStore(t, fixedProvider{id: identity.Identity{Token: "t", UserID: "1", Name: "Old"}})
		s.Login(ctx, "a@b.com", "x")

		name := "New Name"
		if err := s.UpdateUser(ctx, Update{Name: &name}); err != nil {
			t.Fatalf("UpdateUser: %v", err)
		}

		cur, _ := s.Current()
		if cur.Name != "New Name" {
			t.Errorf("Name: got %q", cur.Name)
		}
		if cur.Email != "a@b.com" {
			t.Errorf("untouched field changed: %q", cur.Email)
		}

		userData, _ := kv.Get(ctx, "client-1", UserKey)
		var rec userRecord
		json.Unmarshal(userData, &rec)
		if rec.Name != "New Name" {
			t.Errorf("persisted name: got %q", rec.Name)
		}
	})

	t.Run("NoOpWhenSignedOut", func(t *testing.T) {
		s, kv := newTestStore(t, fixedProvider{})
		name := "Ghost"
		if err := s.UpdateUser(ctx, Update{Name: &name}); err != nil {
			t.Fatalf("UpdateUser: %v", err)
		}
		if s.Authenticated() {
			t.Error("update while signed out must not create an identity")
		}
		if data, _ := kv.Get(ctx, "client-1", UserKey); data != nil {
			t.Error("update while signed out must not persist anything")
		}
	})
}

// TestLogout tests that memory and both durable records are cleared.
func TestLogout(t *testing.T) {
	s, kv := newTestStore(t, fixedProvider{id: identity.Identity{Token: "t", UserID: "1"}})
	ctx := context.Background()

	s.Login(ctx, "a@b.com", "x")

	seen := &identity.Identity{}
	s.Subscribe(func(id *identity.Identity) { seen = id })

	if err := s.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if s.Authenticated() {
		t.Error("expected signed out")
	}
	if seen != nil {
		t.Error("subscriber should see nil on logout")
	}
	if tok, _ := kv.Get(ctx, "client-1", TokenKey); tok != nil {
		t.Error("token record must be deleted")
	}
	if u, _ := kv.Get(ctx, "client-1", UserKey); u != nil {
		t.Error("user record must be deleted")
	}
}

// TestLoad tests hydration of a previously signed-in client.
func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("BothRecordsPresent", func(t *testing.T) {
		s, kv := newTestStore(t, fixedProvider{})
		kv.Set(ctx, "client-1", TokenKey, []byte("jwt-x"), "")
		kv.Set(ctx, "client-1", UserKey, []byte(`{"id":"5","name":"Ada","email":"ada@b.com"}`), "")

		if err := s.Load(ctx); err != nil {
			t.Fatalf("Load: %v", err)
		}
		cur, ok := s.Current()
		if !ok || cur.Token != "jwt-x" || cur.Name != "Ada" {
			t.Errorf("got %+v ok=%v", cur, ok)
		}
	})

	t.Run("TokenWithoutUserIsSignedOut", func(t *testing.T) {
		s, kv := newTestStore(t, fixedProvider{})
		kv.Set(ctx, "client-1", TokenKey, []byte("orphan"), "")

		if err := s.Load(ctx); err != nil {
			t.Fatalf("Load: %v", err)
		}
		if s.Authenticated() {
			t.Error("a lone token must not count as signed in")
		}
	})
}

// TestApplyRemote tests cross-context convergence of the identity.
func TestApplyRemote(t *testing.T) {
	ctx := context.Background()

	t.Run("SignInFromAnotherContext", func(t *testing.T) {
		s, kv := newTestStore(t, fixedProvider{})
		kv.Set(ctx, "client-1", TokenKey, []byte("jwt-b"), "tab-b")
		kv.Set(ctx, "client-1", UserKey, []byte(`{"id":"9","name":"Bea","email":"bea@b.com"}`), "tab-b")

		s.ApplyRemote(ctx, storage.Event{ClientID: "client-1", Key: UserKey, Origin: "tab-b"})

		cur, ok := s.Current()
		if !ok || cur.UserID != "9" {
			t.Errorf("got %+v ok=%v", cur, ok)
		}
	})

	t.Run("SignOutFromAnotherContext", func(t *testing.T) {
		s, kv := newTestStore(t, fixedProvider{id: identity.Identity{Token: "t", UserID: "1"}})
		s.Login(ctx, "a@b.com", "x")

		kv.Delete(ctx, "client-1", TokenKey, "tab-b")
		kv.Delete(ctx, "client-1", UserKey, "tab-b")
		s.ApplyRemote(ctx, storage.Event{ClientID: "client-1", Key: TokenKey, Origin: "tab-b"})

		if s.Authenticated() {
			t.Error("expected signed out after remote logout")
		}
	})

	t.Run("OwnOriginIgnored", func(t *testing.T) {
		s, kv := newTestStore(t, fixedProvider{id: identity.Identity{Token: "t", UserID: "1"}})
		s.Login(ctx, "a@b.com", "x")

		// A stale event stamped with our own origin must not trigger a
		// resync even if storage has since changed underneath.
		kv.Delete(ctx, "client-1", TokenKey, "tab-a")
		s.ApplyRemote(ctx, storage.Event{ClientID: "client-1", Key: TokenKey, Origin: "tab-a"})

		if !s.Authenticated() {
			t.Error("own-origin event must be ignored")
		}
	})

	t.Run("UnrelatedKeyIgnored", func(t *testing.T) {
		s, _ := newTestStore(t, fixedProvider{id: identity.Identity{Token: "t", UserID: "1"}})
		s.Login(ctx, "a@b.com", "x")

		s.ApplyRemote(ctx, storage.Event{ClientID: "client-1", Key: "cart", Origin: "tab-b"})
		if !s.Authenticated() {
			t.Error("cart events must not touch the session")
		}
	})
}
