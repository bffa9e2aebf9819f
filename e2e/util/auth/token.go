// Package auth obtains an OpenShift OAuth bearer token with a username and
// password, the way the console login does.
package auth

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"k8s.io/client-go/rest"
	"k8s.io/klog/v2"
)

const (
	challengingClient = "openshift-challenging-client"
	wellKnownPath     = "/.well-known/oauth-authorization-server"
)

// NewHTTPClient returns a client that does not follow redirects, so the
// token can be read from the Location of the authorize response.
func NewHTTPClient(insecure bool) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: insecure,
			},
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// RequestToken asks the OAuth server for an implicit-grant token on behalf
// of the challenging client, authenticating with basic auth.
func RequestToken(ctx context.Context, oauthURL, user, password string, client *http.Client) (string, error) {
	if client == nil {
		client = NewHTTPClient(false)
	}
	authorize, err := url.Parse(strings.TrimSuffix(oauthURL, "/") + "/oauth/authorize")
	if err != nil {
		return "", fmt.Errorf("parse oauth url %q: %w", oauthURL, err)
	}
	authorize.RawQuery = url.Values{
		"response_type": {"token"},
		"client_id":     {challengingClient},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, authorize.String(), nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(user, password)
	req.Header.Set("X-CSRF-Token", "1")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request token from %s: %w", authorize.Host, err)
	}
	defer resp.Body.Close()

	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("request token from %s: status %d without a redirect", authorize.Host, resp.StatusCode)
	}
	token, err := TokenFromLocation(location)
	if err != nil {
		return "", err
	}
	klog.FromContext(ctx).V(1).Info("Acquired OAuth token", "user", user, "server", authorize.Host)
	return token, nil
}

// TokenFromLocation extracts access_token from the fragment of a redirect.
func TokenFromLocation(location string) (string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parse redirect location: %w", err)
	}
	values, err := url.ParseQuery(u.Fragment)
	if err != nil {
		return "", fmt.Errorf("parse redirect fragment: %w", err)
	}
	token := values.Get("access_token")
	if token == "" {
		if reason := u.Query().Get("error"); reason != "" {
			return "", fmt.Errorf("no access token in redirect: %s", reason)
		}
		return "", fmt.Errorf("no access token in redirect")
	}
	return token, nil
}

// OAuthURL discovers the OAuth server of the cluster serving apiURL.
func OAuthURL(ctx context.Context, apiURL string, client *http.Client) (string, error) {
	if client == nil {
		client = NewHTTPClient(false)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(apiURL, "/")+wellKnownPath, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("discover oauth server of %s: %w", apiURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("discover oauth server of %s: status %d", apiURL, resp.StatusCode)
	}

	var metadata struct {
		Issuer string `json:"issuer"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&metadata); err != nil {
		return "", fmt.Errorf("decode oauth metadata of %s: %w", apiURL, err)
	}
	if metadata.Issuer == "" {
		return "", fmt.Errorf("oauth metadata of %s has no issuer", apiURL)
	}
	return metadata.Issuer, nil
}

// Login discovers the OAuth server of apiURL and requests a token there.
func Login(ctx context.Context, apiURL, user, password string, client *http.Client) (string, error) {
	oauthURL, err := OAuthURL(ctx, apiURL, client)
	if err != nil {
		return "", err
	}
	return RequestToken(ctx, oauthURL, user, password, client)
}

// BearerConfig returns a rest config authenticating with token only.
func BearerConfig(host, token string, insecure bool) *rest.Config {
	return &rest.Config{
		Host:        host,
		BearerToken: token,
		TLSClientConfig: rest.TLSClientConfig{
			Insecure: insecure,
		},
	}
}

// WithBearer copies config and replaces its credentials with token.
func WithBearer(config *rest.Config, token string) *rest.Config {
	c := rest.AnonymousClientConfig(config)
	c.BearerToken = token
	return c
}
