package prometheus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"k8s.io/client-go/rest"
)

type QueryParams struct {
	RestClient  rest.Interface
	URL         string
	Namespace   string
	ServiceName string
	Query       string
	HTTPClient  *http.Client
}

// Query sends an instant query through the API server proxy of the
// Prometheus service, or to URL when no service is given.
func Query(ctx context.Context, params QueryParams) (string, error) {
	if params.RestClient != nil && params.Namespace != "" && params.ServiceName != "" {
		req := params.RestClient.
			Get().
			RequestURI(fmt.Sprintf("/api/v1/namespaces/%s/services/%s:9090/proxy/api/v1/query", params.Namespace, params.ServiceName)).
			Param("query", params.Query)
		raw, err := req.Do(ctx).Raw()
		if err != nil {
			return "", err
		}
		return string(raw), nil
	} else if params.URL != "" {
		u, err := url.Parse(params.URL)
		if err != nil {
			return "", err
		}
		u = u.JoinPath("api", "v1", "query")
		q := u.Query()
		q.Set("query", params.Query)
		u.RawQuery = q.Encode()

		client := params.HTTPClient
		if client == nil {
			client = http.DefaultClient
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return "", err
		}
		resp, err := client.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", err
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("query %s: status %d: %s", u.Redacted(), resp.StatusCode, body)
		}
		return string(body), nil
	}
	return "", errors.New("must specify either RestClient+Namespace+ServiceName or URL")
}
