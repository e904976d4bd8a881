package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Document statuses reported by the authority.
const (
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

// CredentialCheck is the input of ValidateCredentials.
type CredentialCheck struct {
	User        string
	Password    string
	PIN         string
	Environment string
}

// CredentialResult is the authority's answer to a credential check.
type CredentialResult struct {
	Valid    bool   `json:"valid"`
	Token    string `json:"token,omitempty"`
	Error    string `json:"error,omitempty"`
	Fallback bool   `json:"fallback"`
}

type credentialWire struct {
	Valid *bool  `json:"valid"`
	Token string `json:"token"`
	Error string `json:"error"`
}

func parseCredentialResult(raw string) (CredentialResult, error) {
	const call = callValidateCredentials
	var w credentialWire
	if err := decodeJSON(raw, &w); err != nil {
		return CredentialResult{}, malformed(call, "not a JSON object", raw, err)
	}
	if w.Valid == nil {
		return CredentialResult{}, malformed(call, "missing valid flag", raw, nil)
	}
	res := CredentialResult{Valid: *w.Valid, Token: strings.TrimSpace(w.Token), Error: strings.TrimSpace(w.Error)}
	if res.Valid && res.Token == "" {
		return CredentialResult{}, malformed(call, "valid result without token", raw, nil)
	}
	if !res.Valid && res.Error == "" {
		res.Error = "credenciales rechazadas"
	}
	return res, nil
}

// DocumentLine is one priced line of a fiscal document.
type DocumentLine struct {
	Name     string          `json:"name"`
	CABYS    string          `json:"cabys"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Tax      decimal.Decimal `json:"tax"`
}

// DocumentRequest is the input of ValidateDocument.
type DocumentRequest struct {
	Type          string          `json:"type"`
	ClientID      string          `json:"client_id"`
	ClientName    string          `json:"client_name"`
	Items         []DocumentLine  `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	SaleCondition string          `json:"sale_condition,omitempty"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	CreditTerm    int             `json:"credit_term,omitempty"`
	ReferenceKey  string          `json:"reference_key,omitempty"`
	ReasonCode    string          `json:"reason_code,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Environment   string          `json:"environment,omitempty"`
}

// DocumentResult is the authority's answer to a submitted document.
type DocumentResult struct {
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Key      string `json:"key,omitempty"`
	Fallback bool   `json:"fallback"`
}

// Accepted reports whether the authority accepted the document.
func (r DocumentResult) Accepted() bool { return r.Status == StatusAccepted }

type documentWire struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	ClaveDigital string `json:"clavedigital"`
	Key          string `json:"key"`
}

func parseDocumentResult(raw string) (DocumentResult, error) {
	const call = callValidateDocument
	var w documentWire
	if err := decodeJSON(raw, &w); err != nil {
		return DocumentResult{}, malformed(call, "not a JSON object", raw, err)
	}
	status := strings.ToLower(strings.TrimSpace(w.Status))
	if status != StatusAccepted && status != StatusRejected {
		return DocumentResult{}, malformed(call, fmt.Sprintf("unknown status %q", w.Status), raw, nil)
	}
	key := strings.TrimSpace(w.Key)
	if key == "" {
		key = strings.TrimSpace(w.ClaveDigital)
	}
	if key != "" && !isDigits(key) {
		return DocumentResult{}, malformed(call, "non-numeric document key", raw, nil)
	}
	return DocumentResult{Status: status, Message: strings.TrimSpace(w.Message), Key: key}, nil
}

// AcceptanceRequest is the input of SendAcceptance.
type AcceptanceRequest struct {
	Key          string          `json:"key"`
	SupplierName string          `json:"supplier_name"`
	Total        decimal.Decimal `json:"total"`
	Tax          decimal.Decimal `json:"tax"`
	Code         string          `json:"code"`
	Environment  string          `json:"environment,omitempty"`
}

// AcceptanceResult is the authority's answer to an acceptance message.
type AcceptanceResult struct {
	Success           bool   `json:"success"`
	Consecutive       string `json:"consecutive,omitempty"`
	AuthorityResponse string `json:"authority_response,omitempty"`
	Fallback          bool   `json:"fallback"`
}

type acceptanceWire struct {
	Success          *bool  `json:"success"`
	Consecutive      string `json:"consecutive"`
	HaciendaResponse string `json:"haciendaResponse"`
	Response         string `json:"response"`
}

func parseAcceptanceResult(raw string) (AcceptanceResult, error) {
	const call = callSendAcceptance
	var w acceptanceWire
	if err := decodeJSON(raw, &w); err != nil {
		return AcceptanceResult{}, malformed(call, "not a JSON object", raw, err)
	}
	if w.Success == nil {
		return AcceptanceResult{}, malformed(call, "missing success flag", raw, nil)
	}
	res := AcceptanceResult{
		Success:           *w.Success,
		Consecutive:       strings.TrimSpace(w.Consecutive),
		AuthorityResponse: strings.TrimSpace(w.Response),
	}
	if res.AuthorityResponse == "" {
		res.AuthorityResponse = strings.TrimSpace(w.HaciendaResponse)
	}
	if res.Success && res.Consecutive == "" {
		return AcceptanceResult{}, malformed(call, "successful acceptance without consecutive", raw, nil)
	}
	return res, nil
}

// Identity is the civil-registry answer for a national id.
type Identity struct {
	NationalID string `json:"national_id"`
	FullName   string `json:"full_name"`
	Found      bool   `json:"found"`
	Fallback   bool   `json:"fallback"`
}

func parseIdentity(raw string) (Identity, error) {
	const call = callLookupIdentity
	var w struct {
		FullName *string `json:"full_name"`
	}
	if err := decodeJSON(raw, &w); err != nil {
		return Identity{}, malformed(call, "not a JSON object", raw, err)
	}
	if w.FullName == nil {
		return Identity{}, malformed(call, "missing full_name", raw, nil)
	}
	name := strings.Join(strings.Fields(*w.FullName), " ")
	if name == "" {
		return Identity{FullName: NameNotFound}, nil
	}
	if utf8.RuneCountInString(name) > 120 {
		return Identity{}, malformed(call, "name too long", raw, nil)
	}
	return Identity{FullName: strings.ToUpper(name), Found: true}, nil
}

// CABYSCode is one entry of the goods and services tax catalog.
type CABYSCode struct {
	Code        string          `json:"code"`
	Description string          `json:"description"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
}

func parseCABYSCodes(raw string) ([]CABYSCode, error) {
	const call = callSearchCABYS
	var wire []struct {
		Code        string   `json:"code"`
		Description string   `json:"description"`
		Tax         *float64 `json:"tax"`
	}
	if err := decodeJSON(raw, &wire); err != nil {
		return nil, malformed(call, "not a JSON array", raw, err)
	}
	out := make([]CABYSCode, 0, len(wire))
	for i, w := range wire {
		code := strings.TrimSpace(w.Code)
		if len(code) != 13 || !isDigits(code) {
			return nil, malformed(call, fmt.Sprintf("entry %d: code must be 13 digits", i), raw, nil)
		}
		if w.Tax == nil {
			return nil, malformed(call, fmt.Sprintf("entry %d: missing tax", i), raw, nil)
		}
		rate := decimal.NewFromFloat(*w.Tax)
		// Some answers come back as percentages.
		if rate.GreaterThan(decimal.NewFromInt(1)) {
			rate = rate.Div(decimal.NewFromInt(100))
		}
		if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
			return nil, malformed(call, fmt.Sprintf("entry %d: tax out of range", i), raw, nil)
		}
		out = append(out, CABYSCode{Code: code, Description: strings.TrimSpace(w.Description), TaxRate: rate})
	}
	return out, nil
}

// Text is a generated short message.
type Text struct {
	Value    string `json:"text"`
	Fallback bool   `json:"fallback"`
}

func parseText(call string, limit int) func(string) (Text, error) {
	return func(raw string) (Text, error) {
		value := strings.Trim(strings.TrimSpace(stripFences(raw)), `"`)
		value = strings.Join(strings.Fields(value), " ")
		if value == "" {
			return Text{}, malformed(call, "empty text", raw, nil)
		}
		return Text{Value: truncateRunes(value, limit)}, nil
	}
}

func decodeJSON(raw string, v any) error {
	dec := json.NewDecoder(strings.NewReader(stripFences(raw)))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("trailing data after JSON value")
	}
	return nil
}

// stripFences removes a surrounding markdown code fence.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimRightFunc(string(runes[:limit]), unicode.IsSpace)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
