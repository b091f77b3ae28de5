package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strings"
)

// GeoLookup resolves an IP address to an ISO country code.
type GeoLookup func(ctx context.Context, ip string) (string, error)

// GeoProvider is one link of the detection fallback chain.
type GeoProvider struct {
	Name   string
	Lookup GeoLookup
}

type GeoURLs struct {
	IPAPI    string
	IPAPICom string
	IPWhois  string
}

var DefaultGeoURLs = GeoURLs{
	IPAPI:    "https://ipapi.co",
	IPAPICom: "http://ip-api.com",
	IPWhois:  "https://ipwho.is",
}

var errNoCountry = errors.New("no country in response")

// DefaultGeoProviders returns the chain in priority order. Empty URLs drop
// the corresponding provider.
func DefaultGeoProviders(client *http.Client, urls GeoURLs) []GeoProvider {
	if client == nil {
		client = &http.Client{}
	}
	var providers []GeoProvider

	if urls.IPAPI != "" {
		base := strings.TrimRight(urls.IPAPI, "/")
		providers = append(providers, GeoProvider{
			Name: "ipapi.co",
			Lookup: func(ctx context.Context, ip string) (string, error) {
				var body struct {
					CountryCode string `json:"country_code"`
					Error       bool   `json:"error"`
					Reason      string `json:"reason"`
				}
				if err := getJSON(ctx, client, fmt.Sprintf("%s/%s/json/", base, ip), &body); err != nil {
					return "", err
				}
				if body.Error {
					return "", fmt.Errorf("ipapi.co: %s", body.Reason)
				}
				return body.CountryCode, nil
			},
		})
	}

	if urls.IPAPICom != "" {
		base := strings.TrimRight(urls.IPAPICom, "/")
		providers = append(providers, GeoProvider{
			Name: "ip-api.com",
			Lookup: func(ctx context.Context, ip string) (string, error) {
				var body struct {
					Status      string `json:"status"`
					Message     string `json:"message"`
					CountryCode string `json:"countryCode"`
				}
				if err := getJSON(ctx, client, fmt.Sprintf("%s/json/%s?fields=status,message,countryCode", base, ip), &body); err != nil {
					return "", err
				}
				if body.Status != "success" {
					return "", fmt.Errorf("ip-api.com: %s", body.Message)
				}
				return body.CountryCode, nil
			},
		})
	}

	if urls.IPWhois != "" {
		base := strings.TrimRight(urls.IPWhois, "/")
		providers = append(providers, GeoProvider{
			Name: "ipwho.is",
			Lookup: func(ctx context.Context, ip string) (string, error) {
				var body struct {
					Success     bool   `json:"success"`
					Message     string `json:"message"`
					CountryCode string `json:"country_code"`
				}
				if err := getJSON(ctx, client, fmt.Sprintf("%s/%s", base, ip), &body); err != nil {
					return "", err
				}
				if !body.Success {
					return "", fmt.Errorf("ipwho.is: %s", body.Message)
				}
				return body.CountryCode, nil
			},
		})
	}

	return providers
}

func getJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// isPublicIP reports whether ip is a routable address worth looking up.
func isPublicIP(ip string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	return !(addr.IsPrivate() || addr.IsLoopback() || addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() || addr.IsMulticast())
}
