package executor

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/nlapi/orchestra/engine/metadata"
	"github.com/nlapi/orchestra/pkg/logger"
)

// buildRequest partitions resolved params by declared location and
// produces the path (with {param} placeholders substituted), the query
// string, header map, and JSON body to send. A param name not declared on
// the endpoint is dropped with a warning rather than guessed into the
// body (spec §4.6 step 2).
func buildRequest(ctx context.Context, baseURL string, ep *metadata.Endpoint, resolved map[string]any) (fullURL string, headers map[string]string, body map[string]any, err error) {
	pathParams := map[string]any{}
	queryParams := url.Values{}
	headers = map[string]string{}
	body = map[string]any{}

	byName := make(map[string]metadata.RequestParameter, len(ep.Parameters))
	for _, p := range ep.Parameters {
		byName[p.Name] = p
	}

	for name, value := range resolved {
		p, ok := byName[name]
		if !ok {
			logger.FromContext(ctx).Warn("dropping unknown param not declared on endpoint", "endpoint", ep.Label(), "param", name)
			continue
		}
		switch p.In {
		case metadata.InPath:
			pathParams[name] = value
		case metadata.InQuery:
			queryParams.Set(name, toQueryString(value))
		case metadata.InHeader:
			headers[name] = toQueryString(value)
		default:
			body[name] = value
		}
	}

	path := ep.Path
	for name, value := range pathParams {
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(toQueryString(value)))
	}
	if strings.Contains(path, "{") {
		return "", nil, nil, fmt.Errorf("unresolved path parameter remains in %q", path)
	}

	fullURL = strings.TrimRight(baseURL, "/") + path
	if encoded := queryParams.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}
	return fullURL, headers, body, nil
}

func toQueryString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
