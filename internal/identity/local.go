package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/serenitybot/serenity/internal/store"
)

// AccountStore is the slice of the store the local provider needs.
type AccountStore interface {
	CreateAccount(ctx context.Context, a store.Account) error
	AccountByEmail(ctx context.Context, email string) (store.Account, error)
}

// LocalProvider keeps accounts in the local database with bcrypt password hashes.
type LocalProvider struct {
	accounts AccountStore
	cost     int
}

func NewLocalProvider(accounts AccountStore) *LocalProvider {
	return &LocalProvider{accounts: accounts, cost: bcrypt.DefaultCost}
}

// SetCost lowers the bcrypt cost (for testing).
func (p *LocalProvider) SetCost(cost int) {
	p.cost = cost
}

func (p *LocalProvider) SignUp(ctx context.Context, email, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := checkCredentials(email, password); err != nil {
		return User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	id := uuid.NewString()
	err = p.accounts.CreateAccount(ctx, store.Account{ID: id, Email: email, PasswordHash: string(hash)})
	if errors.Is(err, store.ErrDuplicateEmail) {
		return User{}, ErrEmailExists
	}
	if err != nil {
		return User{}, err
	}
	return User{ID: id, Email: email}, nil
}

func (p *LocalProvider) Login(ctx context.Context, email, password string) (User, error) {
	if err := checkCredentials(email, password); err != nil {
		return User{}, err
	}
	a, err := p.accounts.AccountByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return User{ID: a.ID, Email: a.Email}, nil
}

func (p *LocalProvider) Anonymous(ctx context.Context) (User, error) {
	id := uuid.NewString()
	if err := p.accounts.CreateAccount(ctx, store.Account{ID: id, Anonymous: true}); err != nil {
		return User{}, err
	}
	return User{ID: id, Anonymous: true}, nil
}
