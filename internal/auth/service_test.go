package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/workhub/internal/model"
	"github.com/hitoshi/workhub/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	createFn              func(ctx context.Context, user *model.User) error
	findByEmailFn         func(ctx context.Context, email string) (*model.User, error)
	findByIDFn            func(ctx context.Context, id int64) (*model.User, error)
	updateProviderTokenFn func(ctx context.Context, userID int64, slot repository.TokenSlot, value string) error
	updateGmailTokensFn   func(ctx context.Context, userID int64, access, refresh string) error
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) UpdateProviderToken(ctx context.Context, userID int64, slot repository.TokenSlot, value string) error {
	if m.updateProviderTokenFn != nil {
		return m.updateProviderTokenFn(ctx, userID, slot, value)
	}
	return nil
}

func (m *mockUserRepo) UpdateGmailTokens(ctx context.Context, userID int64, access, refresh string) error {
	if m.updateGmailTokensFn != nil {
		return m.updateGmailTokensFn(ctx, userID, access, refresh)
	}
	return nil
}

var _ repository.UserRepository = (*mockUserRepo)(nil)

func newTestService(repo repository.UserRepository) *Service {
	return NewService(repo, NewTokenService(testSecret, time.Hour))
}

// --- テスト ---

func TestSignup_Success_HashesPassword(t *testing.T) {
	var created *model.User
	repo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			user.ID = 1
			created = user
			return nil
		},
	}
	svc := newTestService(repo)

	user, err := svc.Signup(context.Background(), "Alice", "a@x.com", "p")
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	if user.ID != 1 {
		t.Errorf("ID = %d, want 1", user.ID)
	}
	if created.PasswordHash == "p" || created.PasswordHash == "" {
		t.Error("password should be stored as a hash")
	}
	if !CheckPassword("p", created.PasswordHash) {
		t.Error("stored hash should verify against the original password")
	}
}

func TestSignup_DuplicateEmail_ReturnsAPIError(t *testing.T) {
	repo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			return repository.ErrDuplicateEmail
		},
	}
	svc := newTestService(repo)

	_, err := svc.Signup(context.Background(), "Alice", "a@x.com", "p")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *model.APIError", err)
	}
	if apiErr.Code != model.ErrCodeDuplicateEmail {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeDuplicateEmail)
	}
}

func TestLogin_Success_IssuesVerifiableToken(t *testing.T) {
	hash, err := HashPassword("p")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	repo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: 1, Email: email, PasswordHash: hash}, nil
		},
	}
	tokens := NewTokenService(testSecret, time.Hour)
	svc := NewService(repo, tokens)

	result, err := svc.Login(context.Background(), "a@x.com", "p")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if result.UserID != 1 {
		t.Errorf("UserID = %d, want 1", result.UserID)
	}

	userID, err := tokens.VerifySession(result.AccessToken)
	if err != nil {
		t.Fatalf("issued token should verify: %v", err)
	}
	if userID != 1 {
		t.Errorf("verified userID = %d, want 1", userID)
	}
}

func TestLogin_WrongPassword_ReturnsInvalidCredentials(t *testing.T) {
	hash, _ := HashPassword("correct")
	repo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: 1, Email: email, PasswordHash: hash}, nil
		},
	}
	svc := newTestService(repo)

	_, err := svc.Login(context.Background(), "a@x.com", "wrong")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *model.APIError", err)
	}
	if apiErr.Code != model.ErrCodeInvalidCredentials {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeInvalidCredentials)
	}
}

func TestLogin_UnknownEmail_SameErrorAsWrongPassword(t *testing.T) {
	// email不明とパスワード不一致は区別しない
	repo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return nil, nil
		},
	}
	svc := newTestService(repo)

	_, err := svc.Login(context.Background(), "nobody@x.com", "p")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *model.APIError", err)
	}
	if apiErr.Code != model.ErrCodeInvalidCredentials {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeInvalidCredentials)
	}
}

func TestCurrentUser_UnknownID_ReturnsUnauthorized(t *testing.T) {
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id int64) (*model.User, error) {
			return nil, nil
		},
	}
	svc := newTestService(repo)

	_, err := svc.CurrentUser(context.Background(), 99)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *model.APIError", err)
	}
	if apiErr.Code != model.ErrCodeUnauthorized {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeUnauthorized)
	}
}

func TestResolveStateUser_RoundTrip_ResolvesInitiatingUser(t *testing.T) {
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id int64) (*model.User, error) {
			if id == 5 {
				return &model.User{ID: 5, Email: "u5@x.com"}, nil
			}
			return nil, nil
		},
	}
	svc := newTestService(repo)

	state, err := svc.MintState(5)
	if err != nil {
		t.Fatalf("MintState() error = %v", err)
	}

	user, err := svc.ResolveStateUser(context.Background(), state)
	if err != nil {
		t.Fatalf("ResolveStateUser() error = %v", err)
	}
	if user.ID != 5 {
		t.Errorf("resolved user ID = %d, want 5", user.ID)
	}
}

func TestResolveStateUser_ForgedState_ReturnsInvalidState(t *testing.T) {
	svc := newTestService(&mockUserRepo{})

	for _, state := range []string{"", "1", "forged-state-value"} {
		_, err := svc.ResolveStateUser(context.Background(), state)

		var apiErr *model.APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("ResolveStateUser(%q) error = %v, want *model.APIError", state, err)
		}
		if apiErr.Code != model.ErrCodeInvalidState {
			t.Errorf("ResolveStateUser(%q) code = %q, want %q", state, apiErr.Code, model.ErrCodeInvalidState)
		}
	}
}

func TestResolveStateUser_ValidStateDeletedUser_ReturnsUserNotFound(t *testing.T) {
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id int64) (*model.User, error) {
			return nil, nil
		},
	}
	svc := newTestService(repo)

	state, err := svc.MintState(12)
	if err != nil {
		t.Fatalf("MintState() error = %v", err)
	}

	_, err = svc.ResolveStateUser(context.Background(), state)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *model.APIError", err)
	}
	if apiErr.Code != model.ErrCodeUserNotFound {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeUserNotFound)
	}
}
