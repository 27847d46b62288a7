package mtn

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"passpay/internal/gateways"
	"passpay/internal/models/db_models"
	"passpay/internal/observability/logger"
	"passpay/pkg/memcache"
)

// Config holds MTN MoMo Collection API credentials.
type Config struct {
	BaseURL           string
	UserID            string
	APIKey            string
	SubscriptionKey   string
	TargetEnvironment string
	CallbackURL       string
	Currency          string
	HTTP              gateways.HTTPOptions
}

type Adapter struct {
	cfg          Config
	http         *gateways.HTTPClient
	tokens       memcache.TokenStore
	newReference func() string
	log          *zap.Logger
}

var _ gateways.Adapter = (*Adapter)(nil)

func New(cfg Config, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Currency == "" {
		cfg.Currency = db_models.DefaultCurrency
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	log = log.Named("gateway.mtn")
	return &Adapter{
		cfg:          cfg,
		http:         gateways.NewHTTPClient(string(db_models.OperatorMTN), cfg.HTTP, log),
		tokens:       memcache.NewAccessTokens(),
		newReference: uuid.NewString,
		log:          log,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (a *Adapter) AcquireAccessToken(ctx context.Context) (gateways.Token, error) {
	value, expiresAt, err := a.tokens.Get(ctx, a.fetchToken)
	if err != nil {
		return gateways.Token{}, err
	}
	return gateways.Token{Value: value, ExpiresAt: expiresAt}, nil
}

func (a *Adapter) fetchToken(ctx context.Context) (string, time.Duration, error) {
	const op = "token"
	resp, err := a.http.Do(ctx, op, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/collection/token/", nil)
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(a.cfg.UserID, a.cfg.APIKey)
		req.Header.Set("Ocp-Apim-Subscription-Key", a.cfg.SubscriptionKey)
		return req, nil
	})
	if err != nil {
		return "", 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, a.http.Failure(op, errorMessage(resp.Body, "token request rejected"), resp.StatusCode, false, resp.Body)
	}

	var body tokenResponse
	if err := a.http.DecodeJSON(op, resp, &body); err != nil {
		return "", 0, err
	}
	if body.AccessToken == "" {
		return "", 0, a.http.Failure(op, "empty access token", resp.StatusCode, true, resp.Body)
	}
	a.log.Debug("token refreshed",
		zap.String("token", logger.MaskSecret(body.AccessToken)),
		zap.Int64("expires_in", body.ExpiresIn))
	return body.AccessToken, time.Duration(body.ExpiresIn) * time.Second, nil
}

type party struct {
	PartyIDType string `json:"partyIdType"`
	PartyID     string `json:"partyId"`
}

type requestToPay struct {
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	ExternalID   string `json:"externalId"`
	Payer        party  `json:"payer"`
	PayerMessage string `json:"payerMessage"`
	PayeeNote    string `json:"payeeNote"`
}

func (a *Adapter) InitiateDebit(ctx context.Context, in gateways.DebitRequest) (*gateways.DebitResult, error) {
	const op = "initiate_debit"
	payer, err := gateways.CanonicalMSISDN(in.PayerNumber)
	if err != nil {
		return nil, a.http.Failure(op, err.Error(), 0, false, nil)
	}
	currency := in.Currency
	if currency == "" {
		currency = a.cfg.Currency
	}
	description := in.Description
	if description == "" {
		description = "Payment " + in.Reference
	}

	payload, err := json.Marshal(requestToPay{
		Amount:       in.Amount.StringFixed(0),
		Currency:     currency,
		ExternalID:   in.Reference,
		Payer:        party{PartyIDType: "MSISDN", PartyID: gateways.InternationalDigits(payer)},
		PayerMessage: description,
		PayeeNote:    description,
	})
	if err != nil {
		return nil, a.http.Failure(op, "encode request", 0, false, nil)
	}

	token, err := a.AcquireAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	referenceID := a.newReference()

	resp, err := a.http.Do(ctx, op, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/collection/v1_0/requesttopay", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		a.setAPIHeaders(req, token.Value)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Reference-Id", referenceID)
		if a.cfg.CallbackURL != "" {
			req.Header.Set("X-Callback-Url", a.cfg.CallbackURL)
		}
		return req, nil
	})
	if err != nil {
		return nil, gateways.Unconfirmed(err, referenceID)
	}

	switch {
	case resp.StatusCode == http.StatusAccepted:
	case resp.StatusCode == http.StatusUnauthorized:
		a.tokens.Invalidate()
		return nil, a.http.Failure(op, "access token rejected", resp.StatusCode, true, resp.Body)
	default:
		return nil, a.http.Failure(op, errorMessage(resp.Body, "debit request rejected"), resp.StatusCode, false, resp.Body)
	}

	raw, _ := json.Marshal(map[string]any{
		"status_code":  resp.StatusCode,
		"reference_id": referenceID,
	})
	return &gateways.DebitResult{
		PendingReference: referenceID,
		RawRequest:       payload,
		RawResponse:      raw,
	}, nil
}

type statusResponse struct {
	FinancialTransactionID string          `json:"financialTransactionId"`
	ExternalID             string          `json:"externalId"`
	Amount                 string          `json:"amount"`
	Currency               string          `json:"currency"`
	Status                 string          `json:"status"`
	Reason                 json.RawMessage `json:"reason"`
}

func (a *Adapter) QueryStatus(ctx context.Context, reference string) (*gateways.StatusResult, error) {
	const op = "query_status"
	token, err := a.AcquireAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := a.http.Do(ctx, op, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/collection/v1_0/requesttopay/"+reference, nil)
		if err != nil {
			return nil, err
		}
		a.setAPIHeaders(req, token.Value)
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		a.tokens.Invalidate()
		return nil, a.http.Failure(op, "access token rejected", resp.StatusCode, true, resp.Body)
	default:
		return nil, a.http.Failure(op, errorMessage(resp.Body, "status query rejected"), resp.StatusCode, false, resp.Body)
	}

	var body statusResponse
	if err := a.http.DecodeJSON(op, resp, &body); err != nil {
		return nil, err
	}
	status, unmapped := normalize(body.Status)
	return &gateways.StatusResult{
		Status:           status,
		RawCode:          body.Status,
		Unmapped:         unmapped,
		Reason:           reasonText(body.Reason),
		ConfirmationCode: body.FinancialTransactionID,
		RawResponse:      resp.Body,
	}, nil
}

type balanceResponse struct {
	AvailableBalance string `json:"availableBalance"`
	Currency         string `json:"currency"`
}

func (a *Adapter) QueryBalance(ctx context.Context) (*gateways.Balance, error) {
	const op = "query_balance"
	token, err := a.AcquireAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := a.http.Do(ctx, op, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/collection/v1_0/account/balance", nil)
		if err != nil {
			return nil, err
		}
		a.setAPIHeaders(req, token.Value)
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, a.http.Failure(op, errorMessage(resp.Body, "balance query rejected"), resp.StatusCode, false, resp.Body)
	}
	var body balanceResponse
	if err := a.http.DecodeJSON(op, resp, &body); err != nil {
		return nil, err
	}
	available, err := decimal.NewFromString(body.AvailableBalance)
	if err != nil {
		return nil, a.http.Failure(op, "malformed balance", resp.StatusCode, true, resp.Body)
	}
	return &gateways.Balance{Available: available, Currency: body.Currency, RawResponse: resp.Body}, nil
}

func (a *Adapter) setAPIHeaders(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Target-Environment", a.cfg.TargetEnvironment)
	req.Header.Set("Ocp-Apim-Subscription-Key", a.cfg.SubscriptionKey)
}
