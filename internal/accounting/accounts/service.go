package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/accounting/shared"
)

// MappingModule scopes classification overrides in account_mappings.
const MappingModule = "LEDGER"

// MappingLookup resolves explicit classification overrides.
type MappingLookup interface {
	Get(ctx context.Context, module, key string) (mappings.AccountMapping, error)
}

type Service struct {
	repo     Repository
	mappings MappingLookup
}

func NewService(repo Repository, mappings MappingLookup) *Service {
	return &Service{repo: repo, mappings: mappings}
}

func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx)
}

// Require loads an account and fails unless it exists and is active.
func (s *Service) Require(ctx context.Context, id int64) (Account, error) {
	account, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Account{}, &shared.AccountError{Kind: shared.ErrUnknownAccount, AccountID: id}
		}
		return Account{}, err
	}
	if !account.IsActive {
		return Account{}, &shared.AccountError{Kind: shared.ErrInactiveAccount, AccountID: id, Code: account.Code}
	}
	return account, nil
}

// ResolveByClassification returns the account configured for class.
//
// An explicit LEDGER mapping wins and is returned as-is; activity is checked
// later by the posting engine. Without a mapping exactly one active account
// must carry the classification.
func (s *Service) ResolveByClassification(ctx context.Context, class Classification) (Account, error) {
	if s.mappings != nil {
		mapping, err := s.mappings.Get(ctx, MappingModule, string(class))
		switch {
		case err == nil:
			account, err := s.repo.Get(ctx, mapping.AccountID)
			if err != nil {
				if errors.Is(err, ErrAccountNotFound) {
					return Account{}, &shared.AccountError{Kind: shared.ErrUnknownAccount, AccountID: mapping.AccountID}
				}
				return Account{}, err
			}
			return account, nil
		case !errors.Is(err, shared.ErrMappingNotFound):
			return Account{}, fmt.Errorf("accounts: resolve mapping %s: %w", class, err)
		}
	}
	candidates, err := s.repo.FindActiveByClassification(ctx, class)
	if err != nil {
		return Account{}, err
	}
	switch len(candidates) {
	case 0:
		return Account{}, &shared.AccountTypeError{Kind: shared.ErrAccountTypeNotConfigured, Classification: string(class)}
	case 1:
		return candidates[0], nil
	default:
		return Account{}, &shared.AccountTypeError{Kind: shared.ErrAmbiguousAccountType, Classification: string(class), Candidates: len(candidates)}
	}
}

// ResolveSet resolves every classification, failing on the first gap.
func (s *Service) ResolveSet(ctx context.Context, classes ...Classification) (map[Classification]Account, error) {
	out := make(map[Classification]Account, len(classes))
	for _, class := range classes {
		if _, ok := out[class]; ok {
			continue
		}
		account, err := s.ResolveByClassification(ctx, class)
		if err != nil {
			return nil, err
		}
		out[class] = account
	}
	return out, nil
}
