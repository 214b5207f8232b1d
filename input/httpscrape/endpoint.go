package httpscrape

import (
	"net/url"

	"github.com/Tomwslape5638/vector/errors"
)

// buildURL parses endpoint and appends the configured query values to whatever the
// endpoint's own query string holds for the same key. When query is not empty the whole
// query string is re-encoded in sorted key order, the endpoint's own keys included; values
// of one key keep their declared order. An empty query leaves the endpoint untouched.
func buildURL(endpoint string, query map[string][]string) (*url.URL, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.WrapInvalid(err, "httpscrape", "buildURL", "parse endpoint")
	}
	if len(query) == 0 {
		return u, nil
	}

	values, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return nil, errors.WrapInvalid(err, "httpscrape", "buildURL", "parse endpoint query")
	}

	for k, vs := range query {
		for _, v := range vs {
			values.Add(k, v)
		}
	}

	u.RawQuery = values.Encode()
	return u, nil
}
