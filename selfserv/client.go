// Package selfserv talks to the selfserv.net ping API, which registers an
// address and hands back a certificate for it.
package selfserv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"selfserv.net/certsync/certs"
)

const (
	DefaultEndpoint = "https://selfserv.net"
	pingPath        = "/api/service/ping"
	requestTimeout  = 70 * time.Second
	maxBodySize     = 1 << 20
)

var _ certs.Issuer = (*Client)(nil)

// ServiceError is returned for transport failures, non-2xx responses and
// bodies that are not a certificate pair. StatusCode is zero when no
// response was received.
type ServiceError struct {
	StatusCode int
	Status     string
	Body       string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("request failed: %v", e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("invalid response: %s %q: %v", e.Status, e.Body, e.Err)
	}

	return fmt.Sprintf("returned error: %s %q", e.Status, e.Body)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) HTTPStatus() (int, string) {
	return e.StatusCode, e.Body
}

type pingResponse struct {
	Cert    *string `json:"cert"`
	CertKey *string `json:"cert_key"`
}

type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient builds a client without connection reuse, every ping dials anew.
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				Proxy:             http.ProxyFromEnvironment,
				DisableKeepAlives: true,
			},
		},
	}
}

func (c *Client) Ping(ctx context.Context, token string, ip netip.Addr) (certs.Credential, error) {
	form := url.Values{"ip": {ip.String()}}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+pingPath, strings.NewReader(form.Encode()))
	if err != nil {
		return certs.Credential{}, &ServiceError{Err: err}
	}
	request.Header.Set("Authorization", "token "+token)
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return certs.Credential{}, &ServiceError{Err: err}
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxBodySize))
	if err != nil {
		return certs.Credential{}, &ServiceError{StatusCode: response.StatusCode, Status: response.Status, Err: err}
	}

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return certs.Credential{}, &ServiceError{StatusCode: response.StatusCode, Status: response.Status, Body: string(body)}
	}

	var parsed pingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return certs.Credential{}, &ServiceError{StatusCode: response.StatusCode, Status: response.Status, Body: string(body), Err: err}
	}
	if parsed.Cert == nil || parsed.CertKey == nil {
		return certs.Credential{}, &ServiceError{
			StatusCode: response.StatusCode,
			Status:     response.Status,
			Body:       string(body),
			Err:        fmt.Errorf("missing cert or cert_key"),
		}
	}

	return certs.Credential{Cert: *parsed.Cert, CertKey: *parsed.CertKey}, nil
}
