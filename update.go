package noip

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultUpdateURL is the No-IP update API.
const DefaultUpdateURL = "https://dynupdate.no-ip.com/nic/update"

// UserAgentProduct is the product name sent in the User-Agent header.
const UserAgentProduct = "noipsensor"

// Update is one request to point Hostname at IP.
type Update struct {
	Hostname string
	Username string
	Password string
	IP       string
	Firmware string
}

// UpdateResult is the reply to an Update.
// Body is trimmed; Status and IP are parsed from it with ParseResponse.
type UpdateResult struct {
	StatusCode int
	Body       string
	Status     Status
	IP         string
}

// NoIPUpdater constructs the Updater for the No-IP update API.
// An empty updateURL selects DefaultUpdateURL.
func NoIPUpdater(updateURL string) Updater {
	if updateURL == "" {
		updateURL = DefaultUpdateURL
	}
	return &noipUpdater{endpoint: updateURL}
}

type noipUpdater struct {
	httpClient *http.Client
	endpoint   string
}

func (u *noipUpdater) SetHTTPClient(c *http.Client) { u.httpClient = c }

// PushUpdate implements noip.Updater.
//
// Any HTTP response is returned as an UpdateResult, whatever its status code,
// because No-IP reports most failures in the body.
// A *TransportError is returned only when no response was received.
func (u *noipUpdater) PushUpdate(ctx context.Context, up Update) (UpdateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	target, err := url.Parse(u.endpoint)
	if err != nil {
		return UpdateResult{}, &TransportError{Hostname: up.Hostname, Err: fmt.Errorf("error parsing update URL: %w", err)}
	}
	q := target.Query()
	q.Set("hostname", up.Hostname)
	q.Set("myip", up.IP)
	target.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return UpdateResult{}, &TransportError{Hostname: up.Hostname, Err: fmt.Errorf("error creating request: %w", err)}
	}
	req.SetBasicAuth(up.Username, up.Password)
	req.Header.Set("User-Agent", fmt.Sprintf("%s/v%s", UserAgentProduct, up.Firmware))

	httpclient := u.httpClient
	if httpclient == nil {
		httpclient = http.DefaultClient
	}
	resp, err := httpclient.Do(req)
	if err != nil {
		return UpdateResult{}, &TransportError{Hostname: up.Hostname, Err: fmt.Errorf("http request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if err != nil {
		return UpdateResult{}, &TransportError{Hostname: up.Hostname, Err: fmt.Errorf("error reading response body: %w", err)}
	}

	res := UpdateResult{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
	res.Status, res.IP = ParseResponse(res.Body)
	return res, nil
}
