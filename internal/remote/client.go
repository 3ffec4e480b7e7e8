package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/ledgersync/internal/model"
	"github.com/Veraticus/ledgersync/internal/service"
)

const periodDateLayout = "2006-01-02"

type accountDTO struct {
	CreatedAt model.Timestamp `json:"createdAt"`
	UpdatedAt model.Timestamp `json:"updatedAt"`
	Name      string          `json:"name"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	ID        int64           `json:"id"`
	UserID    int64           `json:"userId"`
}

func (d accountDTO) model() model.Account {
	return model.Account{
		ID:        d.ID,
		UserID:    d.UserID,
		Name:      d.Name,
		Balance:   d.Balance,
		Currency:  d.Currency,
		CreatedAt: d.CreatedAt.Time(),
		UpdatedAt: d.UpdatedAt.Time(),
	}
}

type accountUpdateRequest struct {
	Name     string `json:"name"`
	Balance  string `json:"balance"`
	Currency string `json:"currency"`
}

type accountBriefDTO struct {
	Name     string          `json:"name"`
	Currency string          `json:"currency"`
	Balance  decimal.Decimal `json:"balance"`
	ID       int64           `json:"id"`
}

type categoryDTO struct {
	Name     string `json:"name"`
	Emoji    string `json:"emoji"`
	ID       int64  `json:"id"`
	IsIncome bool   `json:"isIncome"`
}

func (d categoryDTO) model() model.Category {
	return model.Category{
		ID:        d.ID,
		Name:      d.Name,
		Emoji:     d.Emoji,
		Direction: model.DirectionFromIncome(d.IsIncome),
	}
}

type transactionRequest struct {
	Comment         *string         `json:"comment"`
	Amount          string          `json:"amount"`
	TransactionDate model.Timestamp `json:"transactionDate"`
	AccountID       int64           `json:"accountId"`
	CategoryID      int64           `json:"categoryId"`
}

func newTransactionRequest(d model.TransactionDraft) transactionRequest {
	return transactionRequest{
		AccountID:       d.AccountID,
		CategoryID:      d.CategoryID,
		Amount:          d.Amount.StringFixed(2),
		TransactionDate: model.Timestamp(d.TransactionDate),
		Comment:         d.Comment,
	}
}

type transactionDTO struct {
	Comment         *string         `json:"comment"`
	TransactionDate model.Timestamp `json:"transactionDate"`
	CreatedAt       model.Timestamp `json:"createdAt"`
	UpdatedAt       model.Timestamp `json:"updatedAt"`
	Amount          decimal.Decimal `json:"amount"`
	ID              int64           `json:"id"`
	AccountID       int64           `json:"accountId"`
	CategoryID      int64           `json:"categoryId"`
}

func (d transactionDTO) model() model.Transaction {
	return model.Transaction{
		ID:              d.ID,
		AccountID:       d.AccountID,
		CategoryID:      d.CategoryID,
		Amount:          d.Amount,
		TransactionDate: d.TransactionDate.Time(),
		Comment:         d.Comment,
		CreatedAt:       d.CreatedAt.Time(),
		UpdatedAt:       d.UpdatedAt.Time(),
	}
}

type transactionResponseDTO struct {
	Comment         *string         `json:"comment"`
	TransactionDate model.Timestamp `json:"transactionDate"`
	CreatedAt       model.Timestamp `json:"createdAt"`
	UpdatedAt       model.Timestamp `json:"updatedAt"`
	Category        categoryDTO     `json:"category"`
	Account         accountBriefDTO `json:"account"`
	Amount          decimal.Decimal `json:"amount"`
	ID              int64           `json:"id"`
}

func (d transactionResponseDTO) model() model.Transaction {
	return model.Transaction{
		ID:              d.ID,
		AccountID:       d.Account.ID,
		CategoryID:      d.Category.ID,
		Amount:          d.Amount,
		TransactionDate: d.TransactionDate.Time(),
		Comment:         d.Comment,
		CreatedAt:       d.CreatedAt.Time(),
		UpdatedAt:       d.UpdatedAt.Time(),
	}
}

// Client implements service.RemoteAPI on top of a Gateway.
type Client struct {
	gw *Gateway
}

var _ service.RemoteAPI = (*Client)(nil)

// NewClient creates a backend client.
func NewClient(gw *Gateway) *Client {
	return &Client{gw: gw}
}

// Ping reports whether the backend is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.gw.Ping(ctx)
}

// ListAccounts returns the user's accounts.
func (c *Client) ListAccounts(ctx context.Context) ([]model.Account, error) {
	var dtos []accountDTO
	if err := c.gw.Do(ctx, http.MethodGet, "accounts", nil, nil, &dtos); err != nil {
		return nil, err
	}

	accounts := make([]model.Account, 0, len(dtos))
	for _, d := range dtos {
		accounts = append(accounts, d.model())
	}
	return accounts, nil
}

// UpdateAccount replaces the account's name, balance and currency.
func (c *Client) UpdateAccount(ctx context.Context, account model.Account) (model.Account, error) {
	req := accountUpdateRequest{
		Name:     account.Name,
		Balance:  account.Balance.StringFixed(2),
		Currency: account.Currency,
	}

	var dto accountDTO
	if err := c.gw.Do(ctx, http.MethodPut, "accounts/"+strconv.FormatInt(account.ID, 10), nil, req, &dto); err != nil {
		return model.Account{}, err
	}
	return dto.model(), nil
}

// ListCategories returns every category.
func (c *Client) ListCategories(ctx context.Context) ([]model.Category, error) {
	return c.categories(ctx, "categories")
}

// CategoriesByDirection returns only income or only outcome categories.
func (c *Client) CategoriesByDirection(ctx context.Context, direction model.Direction) ([]model.Category, error) {
	if !direction.Valid() {
		return nil, fmt.Errorf("unknown direction %q", direction)
	}
	return c.categories(ctx, "categories/type/"+strconv.FormatBool(direction == model.DirectionIncome))
}

func (c *Client) categories(ctx context.Context, path string) ([]model.Category, error) {
	var dtos []categoryDTO
	if err := c.gw.Do(ctx, http.MethodGet, path, nil, nil, &dtos); err != nil {
		return nil, err
	}

	categories := make([]model.Category, 0, len(dtos))
	for _, d := range dtos {
		if strings.TrimSpace(d.Emoji) == "" {
			return nil, &DecodingError{Path: path, Err: fmt.Errorf("category %d has no emoji", d.ID)}
		}
		categories = append(categories, d.model())
	}
	return categories, nil
}

// CreateTransaction posts a new transaction and returns it with the
// server-assigned ID.
func (c *Client) CreateTransaction(ctx context.Context, draft model.TransactionDraft) (model.Transaction, error) {
	var dto transactionDTO
	if err := c.gw.Do(ctx, http.MethodPost, "transactions", nil, newTransactionRequest(draft), &dto); err != nil {
		return model.Transaction{}, err
	}
	return dto.model(), nil
}

// UpdateTransaction replaces a server transaction.
func (c *Client) UpdateTransaction(ctx context.Context, t model.Transaction) error {
	path := "transactions/" + strconv.FormatInt(t.ID, 10)
	return c.gw.Do(ctx, http.MethodPut, path, nil, newTransactionRequest(model.DraftOf(t)), nil)
}

// DeleteTransaction removes a server transaction.
func (c *Client) DeleteTransaction(ctx context.Context, id int64) error {
	return c.gw.Do(ctx, http.MethodDelete, "transactions/"+strconv.FormatInt(id, 10), nil, nil, nil)
}

// TransactionsForPeriod returns the account's transactions on the calendar
// days spanned by [from, to]. The backend filters by whole days, so callers
// needing an exact window must filter the result.
func (c *Client) TransactionsForPeriod(ctx context.Context, accountID int64, from, to time.Time) ([]model.Transaction, error) {
	query := url.Values{}
	query.Set("startDate", from.Format(periodDateLayout))
	query.Set("endDate", to.Format(periodDateLayout))

	var dtos []transactionResponseDTO
	path := fmt.Sprintf("transactions/account/%d/period", accountID)
	if err := c.gw.Do(ctx, http.MethodGet, path, query, nil, &dtos); err != nil {
		return nil, err
	}

	transactions := make([]model.Transaction, 0, len(dtos))
	for _, d := range dtos {
		transactions = append(transactions, d.model())
	}
	return transactions, nil
}
