package channel

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/valyala/fasthttp"
)

const (
	DefaultInteraktURL = "https://api.interakt.ai/v1/public/message/"
	defaultCountryCode = "91"
)

// WhatsAppSender posts text messages to the Interakt public message API.
type WhatsAppSender struct {
	URL     string
	APIKey  string
	Timeout time.Duration
	Client  *fasthttp.Client
}

func NewWhatsAppSender(url, apiKey string) *WhatsAppSender {
	if url == "" {
		url = DefaultInteraktURL
	}
	return &WhatsAppSender{
		URL:     url,
		APIKey:  apiKey,
		Timeout: 10 * time.Second,
		Client:  &fasthttp.Client{Name: "leadflow"},
	}
}

type interaktMessage struct {
	CountryCode  string `json:"countryCode"`
	PhoneNumber  string `json:"phoneNumber"`
	CallbackData string `json:"callbackData,omitempty"`
	Type         string `json:"type"`
	Data         struct {
		Message string `json:"message"`
	} `json:"data"`
}

// SplitPhone strips non-digits and splits off everything before the last ten
// digits as the country code. Shorter numbers get the default code.
func SplitPhone(phone string) (countryCode, number string) {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, phone)
	if len(digits) > 10 {
		return digits[:len(digits)-10], digits[len(digits)-10:]
	}
	return defaultCountryCode, digits
}

func (s *WhatsAppSender) Send(ctx context.Context, msg Message) error {
	countryCode, number := SplitPhone(msg.To)
	if number == "" {
		return ErrNoRecipient
	}

	payload := interaktMessage{
		CountryCode:  countryCode,
		PhoneNumber:  number,
		CallbackData: msg.CallbackData,
		Type:         "Text",
	}
	payload.Data.Message = msg.Body
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.URL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(s.APIKey+":")))
	req.SetBodyRaw(body)

	deadline := time.Now().Add(s.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.Client.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("interakt request: %w", err)
	}

	if code := resp.StatusCode(); code < 200 || code >= 300 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(resp.Body(), &apiErr)
		if apiErr.Message == "" {
			apiErr.Message = "failed to send message"
		}
		return fmt.Errorf("interakt returned %d: %s", code, apiErr.Message)
	}
	return nil
}
