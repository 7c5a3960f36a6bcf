package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// DeliveryCredentials is a read-only view of the provider credentials
// used for a single dispatch. Never held beyond one SendCode call so a
// settings rotation takes effect on the next send.
type DeliveryCredentials struct {
	AccountSID       string
	AuthToken        string
	FromNumber       string
	VerifyServiceSID string
	OTPTemplate      string
}

// CredentialSource resolves the current delivery credentials. The
// settings service implements it; resolution happens on every send,
// never cached across calls.
type CredentialSource interface {
	DeliveryCredentials(ctx context.Context) (*DeliveryCredentials, error)
}

// DeliveryService dispatches a verification code to a phone number via
// the requested channel. No internal retries: a retry would risk
// duplicate billing and duplicate codes, so retry policy stays with
// the caller.
type DeliveryService interface {
	SendCode(ctx context.Context, phoneNumber, code, method string) error
}

// CredentialProber dispatches a probe using explicitly supplied
// credentials instead of the stored ones. The settings test endpoint
// uses it to exercise a payload before the operator saves it.
type CredentialProber interface {
	ProbeCredentials(ctx context.Context, creds DeliveryCredentials, phoneNumber, code, method string) error
}

// NoopDeliveryService is used in development when no provider is
// configured; it logs instead of dispatching.
type NoopDeliveryService struct{}

func (s *NoopDeliveryService) SendCode(ctx context.Context, phoneNumber, code, method string) error {
	log.Printf("[DeliveryService] noop dispatch method=%s to=%s", method, phoneNumber)
	return nil
}

func (s *NoopDeliveryService) ProbeCredentials(ctx context.Context, creds DeliveryCredentials, phoneNumber, code, method string) error {
	log.Printf("[DeliveryService] noop credential probe sid=%s method=%s to=%s", creds.AccountSID, method, phoneNumber)
	return nil
}

// EnvDeliveryDefaults are the environment-level fallback credentials
// used only while no settings version exists yet (first boot).
type EnvDeliveryDefaults struct {
	AccountSID  string
	AuthToken   string
	FromNumber  string
	OTPTemplate string
}

// TwilioDeliveryService sends codes through the Twilio Messages and
// Calls APIs.
type TwilioDeliveryService struct {
	source   CredentialSource
	defaults EnvDeliveryDefaults
}

func NewTwilioDeliveryService(source CredentialSource, defaults EnvDeliveryDefaults) (*TwilioDeliveryService, error) {
	if source == nil {
		return nil, fmt.Errorf("credential source is required")
	}
	return &TwilioDeliveryService{source: source, defaults: defaults}, nil
}

// resolveCredentials prefers the latest settings version and falls
// back to environment defaults when the store is empty. The fallback
// is explicit and logged — never a silent default.
func (s *TwilioDeliveryService) resolveCredentials(ctx context.Context) (*DeliveryCredentials, error) {
	creds, err := s.source.DeliveryCredentials(ctx)
	if err == nil {
		return creds, nil
	}
	if !errors.Is(err, ErrNoSettings) {
		// Ошибка дешифрования или БД — не маскируем пустыми кредами.
		return nil, err
	}

	if s.defaults.AccountSID == "" || s.defaults.AuthToken == "" || s.defaults.FromNumber == "" {
		return nil, fmt.Errorf("%w: no settings version and no TWILIO_* environment defaults", ErrDeliveryConfig)
	}

	log.Printf("[DeliveryService] no settings version found, falling back to environment credentials")
	template := s.defaults.OTPTemplate
	if template == "" {
		template = "Your verification code is " + CodePlaceholder
	}
	return &DeliveryCredentials{
		AccountSID:  s.defaults.AccountSID,
		AuthToken:   s.defaults.AuthToken,
		FromNumber:  s.defaults.FromNumber,
		OTPTemplate: template,
	}, nil
}

func (s *TwilioDeliveryService) SendCode(ctx context.Context, phoneNumber, code, method string) error {
	creds, err := s.resolveCredentials(ctx)
	if err != nil {
		return err
	}
	return s.dispatch(creds, phoneNumber, code, method)
}

// ProbeCredentials dispatches through the supplied credentials without
// touching the settings store, so an operator can test a payload
// before saving it.
func (s *TwilioDeliveryService) ProbeCredentials(ctx context.Context, creds DeliveryCredentials, phoneNumber, code, method string) error {
	return s.dispatch(&creds, phoneNumber, code, method)
}

func (s *TwilioDeliveryService) dispatch(creds *DeliveryCredentials, phoneNumber, code, method string) error {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: creds.AccountSID,
		Password: creds.AuthToken,
	})

	switch method {
	case "voice":
		// Разделяем цифры пробелами, чтобы синтезатор читал их по одной.
		spoken := strings.ReplaceAll(creds.OTPTemplate, CodePlaceholder, strings.Join(strings.Split(code, ""), " "))
		twiml := fmt.Sprintf("<Response><Say voice=\"alice\">%s</Say></Response>", spoken)

		params := &twilioApi.CreateCallParams{}
		params.SetTo(phoneNumber)
		params.SetFrom(creds.FromNumber)
		params.SetTwiml(twiml)
		if _, err := client.Api.CreateCall(params); err != nil {
			return deliveryError(err)
		}
	default:
		body := strings.ReplaceAll(creds.OTPTemplate, CodePlaceholder, code)

		params := &twilioApi.CreateMessageParams{}
		params.SetTo(phoneNumber)
		params.SetFrom(creds.FromNumber)
		params.SetBody(body)
		if _, err := client.Api.CreateMessage(params); err != nil {
			return deliveryError(err)
		}
	}

	return nil
}

// deliveryError translates provider failures into ErrDeliveryFailed,
// keeping the provider diagnostic so the caller can act on it.
func deliveryError(err error) error {
	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) {
		return fmt.Errorf("%w: twilio responded %d: %s", ErrDeliveryFailed, restErr.Status, restErr.Error())
	}
	return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
}
