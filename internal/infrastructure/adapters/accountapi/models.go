package accountapi

import (
	"strings"
	"time"

	"github.com/antidetect/dashboard_service/internal/domain/entities"
	"github.com/shopspring/decimal"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
	User         userPayload `json:"user"`
}

func (r loginResponse) toResult() *entities.LoginResult {
	tokens := entities.AuthTokens{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
	}
	if r.ExpiresIn > 0 {
		tokens.ExpiresAt = time.Now().UTC().Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return &entities.LoginResult{User: r.User.toEntity(), Tokens: tokens}
}

// userPayload accepts both "display_name" and "name"
type userPayload struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	DisplayName      string    `json:"display_name"`
	Name             string    `json:"name"`
	Language         string    `json:"language"`
	Timezone         string    `json:"timezone"`
	TwoFactorEnabled bool      `json:"two_factor_enabled"`
	CreatedAt        time.Time `json:"created_at"`
}

func (p userPayload) toEntity() entities.User {
	name := p.DisplayName
	if name == "" {
		name = p.Name
	}
	return entities.User{
		ID:               p.ID,
		Email:            p.Email,
		DisplayName:      name,
		Language:         p.Language,
		Timezone:         p.Timezone,
		TwoFactorEnabled: p.TwoFactorEnabled,
		CreatedAt:        p.CreatedAt,
	}
}

type balancePayload struct {
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
}

type transactionPayload struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"`
	Method string          `json:"method"`
	Date   time.Time       `json:"date"`
	Amount decimal.Decimal `json:"amount"`
	Status string          `json:"status"`
}

func (p transactionPayload) toEntity() entities.Transaction {
	return entities.Transaction{
		ID:     p.ID,
		Type:   entities.TransactionType(strings.ToLower(p.Type)),
		Method: entities.PaymentMethod(strings.ToLower(p.Method)),
		Date:   p.Date,
		Amount: p.Amount,
		Status: normalizeStatus(p.Status),
	}
}

// depositPayload accepts "id" as an alias for "transaction_id" and "wallet_address" for "address"
type depositPayload struct {
	TransactionID string `json:"transaction_id"`
	ID            string `json:"id"`
	PaymentURL    string `json:"payment_url"`
	Address       string `json:"address"`
	WalletAddress string `json:"wallet_address"`
}

func (p depositPayload) toEntity() entities.DepositResult {
	return entities.DepositResult{
		TransactionID: firstNonEmpty(p.TransactionID, p.ID),
		PaymentURL:    p.PaymentURL,
		Address:       firstNonEmpty(p.Address, p.WalletAddress),
	}
}

type statusPayload struct {
	Status string `json:"status"`
}
