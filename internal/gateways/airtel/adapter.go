package airtel

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"passpay/internal/gateways"
	"passpay/internal/models/db_models"
	"passpay/internal/observability/logger"
	"passpay/pkg/memcache"
)

// Config holds Airtel Money Open API credentials.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Country      string
	Currency     string
	HTTP         gateways.HTTPOptions
}

type Adapter struct {
	cfg    Config
	http   *gateways.HTTPClient
	tokens memcache.TokenStore
	log    *zap.Logger
}

var _ gateways.Adapter = (*Adapter)(nil)

func New(cfg Config, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Country == "" {
		cfg.Country = db_models.CountryTag
	}
	if cfg.Currency == "" {
		cfg.Currency = db_models.DefaultCurrency
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	log = log.Named("gateway.airtel")
	return &Adapter{
		cfg:    cfg,
		http:   gateways.NewHTTPClient(string(db_models.OperatorAirtel), cfg.HTTP, log),
		tokens: memcache.NewAccessTokens(),
		log:    log,
	}
}

// flexSeconds accepts expires_in both as a JSON number and as a quoted string.
type flexSeconds int64

func (f *flexSeconds) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexSeconds(n)
	return nil
}

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   flexSeconds `json:"expires_in"`
	TokenType   string      `json:"token_type"`
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
	payload, _ := json.Marshal(tokenRequest{
		ClientID:     a.cfg.ClientID,
		ClientSecret: a.cfg.ClientSecret,
		GrantType:    "client_credentials",
	})
	resp, err := a.http.Do(ctx, op, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/auth/oauth2/token", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "*/*")
		return req, nil
	})
	if err != nil {
		return "", 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, a.http.Failure(op, statusMessage(resp.Body, "token request rejected"), resp.StatusCode, false, resp.Body)
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
		zap.Int64("expires_in", int64(body.ExpiresIn)))
	return body.AccessToken, time.Duration(body.ExpiresIn) * time.Second, nil
}

type subscriber struct {
	Country  string `json:"country"`
	Currency string `json:"currency"`
	MSISDN   string `json:"msisdn"`
}

type transaction struct {
	Amount   string `json:"amount"`
	Country  string `json:"country"`
	Currency string `json:"currency"`
	ID       string `json:"id"`
}

type paymentRequest struct {
	Reference   string      `json:"reference"`
	Subscriber  subscriber  `json:"subscriber"`
	Transaction transaction `json:"transaction"`
}

type apiStatus struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	ResultCode   string `json:"result_code"`
	ResponseCode string `json:"response_code"`
	Success      *bool  `json:"success"`
}

type paymentResponse struct {
	Data struct {
		Transaction struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"transaction"`
	} `json:"data"`
	Status apiStatus `json:"status"`
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
	payload, err := json.Marshal(paymentRequest{
		Reference: description,
		Subscriber: subscriber{
			Country:  a.cfg.Country,
			Currency: currency,
			MSISDN:   gateways.NationalNumber(payer),
		},
		Transaction: transaction{
			Amount:   in.Amount.StringFixed(0),
			Country:  a.cfg.Country,
			Currency: currency,
			ID:       in.Reference,
		},
	})
	if err != nil {
		return nil, a.http.Failure(op, "encode request", 0, false, nil)
	}

	token, err := a.AcquireAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := a.http.Do(ctx, op, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/merchant/v1/payments/", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		a.setAPIHeaders(req, token.Value, currency)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, gateways.Unconfirmed(err, in.Reference)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
	case http.StatusUnauthorized:
		a.tokens.Invalidate()
		return nil, a.http.Failure(op, "access token rejected", resp.StatusCode, true, resp.Body)
	default:
		return nil, a.http.Failure(op, statusMessage(resp.Body, "debit request rejected"), resp.StatusCode, false, resp.Body)
	}

	var body paymentResponse
	if err := a.http.DecodeJSON(op, resp, &body); err != nil {
		return nil, gateways.Unconfirmed(err, in.Reference)
	}
	if body.Status.Success != nil && !*body.Status.Success {
		msg := body.Status.Message
		if msg == "" {
			msg = "debit request rejected"
		}
		return nil, a.http.Failure(op, msg, resp.StatusCode, false, resp.Body)
	}

	pending := body.Data.Transaction.ID
	if pending == "" {
		pending = in.Reference
	}
	return &gateways.DebitResult{
		PendingReference: pending,
		RawRequest:       payload,
		RawResponse:      resp.Body,
	}, nil
}

type enquiryResponse struct {
	Data struct {
		Transaction struct {
			ID            string `json:"id"`
			Status        string `json:"status"`
			Message       string `json:"message"`
			AirtelMoneyID string `json:"airtel_money_id"`
		} `json:"transaction"`
	} `json:"data"`
	Status apiStatus `json:"status"`
}

func (a *Adapter) QueryStatus(ctx context.Context, reference string) (*gateways.StatusResult, error) {
	const op = "query_status"
	token, err := a.AcquireAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := a.http.Do(ctx, op, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/standard/v1/payments/"+url.PathEscape(reference), nil)
		if err != nil {
			return nil, err
		}
		a.setAPIHeaders(req, token.Value, a.cfg.Currency)
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		// Airtel answers 404 until the debit is registered on their side.
		return &gateways.StatusResult{Status: gateways.StatusPending, RawCode: "404", RawResponse: jsonOrNil(resp.Body)}, nil
	case http.StatusUnauthorized:
		a.tokens.Invalidate()
		return nil, a.http.Failure(op, "access token rejected", resp.StatusCode, true, resp.Body)
	default:
		return nil, a.http.Failure(op, statusMessage(resp.Body, "status query rejected"), resp.StatusCode, false, resp.Body)
	}

	var body enquiryResponse
	if err := a.http.DecodeJSON(op, resp, &body); err != nil {
		return nil, err
	}
	txn := body.Data.Transaction
	status, unmapped := normalize(txn.Status)
	reason := ""
	if status == gateways.StatusFailed {
		reason = failureReason(txn.Message, txn.Status)
	}
	return &gateways.StatusResult{
		Status:           status,
		RawCode:          txn.Status,
		Unmapped:         unmapped,
		Reason:           reason,
		ConfirmationCode: txn.AirtelMoneyID,
		RawResponse:      resp.Body,
	}, nil
}

type balanceResponse struct {
	Data struct {
		Balance       string `json:"balance"`
		Currency      string `json:"currency"`
		AccountStatus string `json:"account_status"`
	} `json:"data"`
	Status apiStatus `json:"status"`
}

func (a *Adapter) QueryBalance(ctx context.Context) (*gateways.Balance, error) {
	const op = "query_balance"
	token, err := a.AcquireAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := a.http.Do(ctx, op, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/standard/v1/users/balance", nil)
		if err != nil {
			return nil, err
		}
		a.setAPIHeaders(req, token.Value, a.cfg.Currency)
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, a.http.Failure(op, statusMessage(resp.Body, "balance query rejected"), resp.StatusCode, false, resp.Body)
	}
	var body balanceResponse
	if err := a.http.DecodeJSON(op, resp, &body); err != nil {
		return nil, err
	}
	available, err := decimal.NewFromString(body.Data.Balance)
	if err != nil {
		return nil, a.http.Failure(op, "malformed balance", resp.StatusCode, true, resp.Body)
	}
	return &gateways.Balance{Available: available, Currency: body.Data.Currency, RawResponse: resp.Body}, nil
}

func (a *Adapter) setAPIHeaders(req *http.Request, token, currency string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("X-Country", a.cfg.Country)
	req.Header.Set("X-Currency", currency)
}

func jsonOrNil(b []byte) json.RawMessage {
	if json.Valid(b) {
		return b
	}
	return nil
}
