package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"gamelysync/internal/entity"
	"gamelysync/internal/gateway"
)

// Session is the signed-in state for one user, owned by the application
// root and torn down explicitly on sign-out.
type Session struct {
	UserID   string
	Handle   string
	Email    string
	Token    string
	IssuedAt time.Time
}

// Provider is the auth collaborator contract. Production deployments plug
// in the managed backend's auth; tests and the demo use LocalProvider.
type Provider interface {
	SignUp(ctx context.Context, handle, email, password string) (*Session, error)
	SignIn(ctx context.Context, identifier, secret string) (*Session, error)
}

type credential struct {
	userID string
	handle string
	email  string
	hash   string
}

// LocalProvider keeps bcrypt credentials in memory and creates the profile
// document through the gateway on sign-up. Handles are unique
// case-insensitively.
type LocalProvider struct {
	gw     gateway.Gateway
	tokens *TokenManager

	mu    sync.Mutex
	creds map[string]*credential // keyed by lowercase handle and email
}

func NewLocalProvider(gw gateway.Gateway, tokens *TokenManager) *LocalProvider {
	return &LocalProvider{gw: gw, tokens: tokens, creds: make(map[string]*credential)}
}

func (p *LocalProvider) SignUp(ctx context.Context, handle, email, password string) (*Session, error) {
	if err := ValidateHandle(handle); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	userID := uuid.NewString()
	cred := &credential{userID: userID, handle: handle, email: strings.ToLower(email), hash: hash}

	p.mu.Lock()
	hk := strings.ToLower(handle)
	if _, exists := p.creds[hk]; exists {
		p.mu.Unlock()
		return nil, fmt.Errorf("handle %q already exists", handle)
	}
	if _, exists := p.creds[cred.email]; exists {
		p.mu.Unlock()
		return nil, fmt.Errorf("email %q already registered", email)
	}
	p.creds[hk] = cred
	p.creds[cred.email] = cred
	p.mu.Unlock()

	profile := &entity.Profile{
		ID:          userID,
		DisplayName: handle,
		Handle:      handle,
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
	patch, err := gateway.FullPatch(profile)
	if err != nil {
		return nil, err
	}
	if err := p.gw.Write(ctx, entity.KindProfile, userID, patch); err != nil {
		return nil, err
	}

	return p.session(cred)
}

func (p *LocalProvider) SignIn(ctx context.Context, identifier, secret string) (*Session, error) {
	p.mu.Lock()
	cred, ok := p.creds[strings.ToLower(strings.TrimSpace(identifier))]
	p.mu.Unlock()
	if !ok {
		return nil, gateway.Fail(gateway.ErrUnauthenticated, "sign-in", fmt.Errorf("unknown identifier"))
	}
	if err := CheckPassword(secret, cred.hash); err != nil {
		return nil, gateway.Fail(gateway.ErrUnauthenticated, "sign-in", fmt.Errorf("invalid password"))
	}
	return p.session(cred)
}

func (p *LocalProvider) session(cred *credential) (*Session, error) {
	token, err := p.tokens.Generate(cred.userID, cred.handle)
	if err != nil {
		return nil, err
	}
	return &Session{
		UserID:   cred.userID,
		Handle:   cred.handle,
		Email:    cred.email,
		Token:    token,
		IssuedAt: time.Now(),
	}, nil
}
