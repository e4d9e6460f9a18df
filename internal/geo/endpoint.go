package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Endpoint kinds with known response shapes
const (
	KindIPAPICo = "ipapi"  // ipapi.co: {"country_code": "US"} or {"error": true, "reason": "..."}
	KindIPAPI   = "ip-api" // ip-api.com: {"status": "success", "countryCode": "US"}
)

// Default endpoint URL templates; {ip} is replaced by the path-escaped address
const (
	DefaultPrimaryURL  = "https://ipapi.co/{ip}/json/"
	DefaultFallbackURL = "http://ip-api.com/json/{ip}?fields=status,message,countryCode"
)

// ErrNoCountry is returned when a response decodes but carries no usable code
var ErrNoCountry = errors.New("response has no country code")

// Endpoint is one lookup service
type Endpoint struct {
	Name        string
	URLTemplate string
	Kind        string
}

// DefaultEndpoints returns the primary and fallback services in lookup order
func DefaultEndpoints() []Endpoint {
	return []Endpoint{
		{Name: "primary", URLTemplate: DefaultPrimaryURL, Kind: KindIPAPICo},
		{Name: "fallback", URLTemplate: DefaultFallbackURL, Kind: KindIPAPI},
	}
}

// URL builds the request URL for addr
func (e Endpoint) URL(addr string) string {
	return strings.ReplaceAll(e.URLTemplate, "{ip}", url.PathEscape(addr))
}

type ipapiCoResponse struct {
	CountryCode string `json:"country_code"`
	Error       bool   `json:"error"`
	Reason      string `json:"reason"`
}

type ipAPIResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	CountryCode string `json:"countryCode"`
}

// Decode extracts the two-letter country code from a response body.
// The field name differs between services, so decoding branches on Kind.
func (e Endpoint) Decode(body []byte) (string, error) {
	var code string

	switch e.Kind {
	case KindIPAPICo:
		var resp ipapiCoResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to decode %s response: %w", e.Name, err)
		}
		if resp.Error {
			return "", fmt.Errorf("%s lookup failed: %s", e.Name, resp.Reason)
		}
		code = resp.CountryCode
	case KindIPAPI:
		var resp ipAPIResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to decode %s response: %w", e.Name, err)
		}
		if resp.Status != "success" {
			return "", fmt.Errorf("%s lookup failed: %s", e.Name, resp.Message)
		}
		code = resp.CountryCode
	default:
		return "", fmt.Errorf("unknown endpoint kind %q", e.Kind)
	}

	if _, ok := Flag(code); !ok {
		return "", ErrNoCountry
	}
	return strings.ToUpper(code), nil
}
