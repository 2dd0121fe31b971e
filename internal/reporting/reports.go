// Package reporting serves the read-only admin queries. It consumes only
// the store's committed read methods and imposes no invariants of its own.
package reporting

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/custodianpay/wallet-ledger/internal/interfaces"
	"github.com/custodianpay/wallet-ledger/internal/models"
)

// Service answers aggregate queries over accounts, ledger entries and
// anomaly flags.
type Service struct {
	store interfaces.Store
}

// NewService creates a reporting service on top of a store.
func NewService(store interfaces.Store) *Service {
	return &Service{store: store}
}

// AccountBalance pairs an account with its balance summed across
// currencies. The sum is not currency-normalized; it mirrors the admin
// leaderboard's historical behavior.
type AccountBalance struct {
	AccountID string          `json:"account_id"`
	Email     string          `json:"email"`
	Name      string          `json:"name"`
	Total     decimal.Decimal `json:"total_balance"`
}

// AccountActivity pairs an account with its outbound entry count.
type AccountActivity struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Count     int    `json:"transaction_count"`
}

// FlagReport is a flagged transaction with its account and triggering
// entry resolved.
type FlagReport struct {
	Flag    models.FlaggedTransaction `json:"flag"`
	Account *models.Account           `json:"account,omitempty"`
	Entry   *models.LedgerEntry       `json:"entry,omitempty"`
}

// TotalBalances sums every account's balance per currency.
func (s *Service) TotalBalances(ctx context.Context) (map[models.Currency]decimal.Decimal, error) {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	totals := make(map[models.Currency]decimal.Decimal)
	for _, account := range accounts {
		for currency, amount := range account.Balances {
			totals[currency] = totals[currency].Add(amount)
		}
	}
	return totals, nil
}

// TopAccountsByBalance returns the n accounts with the largest balance
// summed across currencies, descending.
func (s *Service) TopAccountsByBalance(ctx context.Context, n int) ([]AccountBalance, error) {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	ranked := make([]AccountBalance, 0, len(accounts))
	for _, account := range accounts {
		total := decimal.Zero
		for _, amount := range account.Balances {
			total = total.Add(amount)
		}
		ranked = append(ranked, AccountBalance{
			AccountID: account.ID,
			Email:     account.Email,
			Name:      account.Name,
			Total:     total,
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Total.GreaterThan(ranked[j].Total)
	})
	return truncate(ranked, n), nil
}

// TopSenders returns the n accounts with the most outbound ledger entries,
// descending.
func (s *Service) TopSenders(ctx context.Context, n int) ([]AccountActivity, error) {
	entries, err := s.store.ListEntries(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, entry := range entries {
		counts[entry.From]++
	}

	ranked := make([]AccountActivity, 0, len(counts))
	for accountID, count := range counts {
		activity := AccountActivity{AccountID: accountID, Count: count}
		if account, err := s.store.Account(ctx, accountID); err == nil {
			activity.Email = account.Email
			activity.Name = account.Name
		}
		ranked = append(ranked, activity)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].AccountID < ranked[j].AccountID
	})
	return truncate(ranked, n), nil
}

// FlaggedTransactions lists all anomaly flags with account and entry
// references resolved where they still exist.
func (s *Service) FlaggedTransactions(ctx context.Context) ([]FlagReport, error) {
	flags, err := s.store.ListFlags(ctx)
	if err != nil {
		return nil, err
	}

	reports := make([]FlagReport, 0, len(flags))
	for _, flag := range flags {
		report := FlagReport{Flag: flag}
		if account, err := s.store.Account(ctx, flag.AccountID); err == nil {
			report.Account = account
		}
		if flag.EntryID != "" {
			if entry, err := s.store.Entry(ctx, flag.EntryID); err == nil {
				report.Entry = entry
			}
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func truncate[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
