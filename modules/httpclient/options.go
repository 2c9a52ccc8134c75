package httpclient

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/synadia-io/accessorhost/models"
	"github.com/synadia-io/accessorhost/modules"
)

const DefaultTimeout = 5000

// Options are the request options a script passes. URL is either a
// string or an object with host, path, port, protocol and query.
type Options struct {
	Headers   map[string]any `json:"headers"`
	KeepAlive bool           `json:"keepAlive"`
	Method    string         `json:"method"`
	TrustAll  bool           `json:"trustAll"`
	Timeout   int            `json:"timeout"`
	URL       any            `json:"url"`

	Body models.Token `json:"-"`
}

func DefaultOptions() Options {
	return Options{
		Headers: map[string]any{},
		Method:  "GET",
		Timeout: DefaultTimeout,
	}
}

type urlSpec struct {
	Host     string `json:"host"`
	Path     string `json:"path"`
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
	Query    any    `json:"query"`
}

// ParseOptions accepts a URL string or an options map.
func ParseOptions(v any) (Options, error) {
	opts := DefaultOptions()
	switch x := v.(type) {
	case string:
		opts.URL = x
	case map[string]any:
		if err := modules.MergeOptions(&opts, x); err != nil {
			return opts, fmt.Errorf("invalid request options: %w", err)
		}
	case Options:
		opts = x
	default:
		return opts, fmt.Errorf("request options must be a URL or an object, got %T", v)
	}
	opts.Method = strings.ToUpper(opts.Method)
	if opts.Method == "" {
		opts.Method = "GET"
	}
	return opts, nil
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout * time.Millisecond
	}
	return time.Duration(o.Timeout) * time.Millisecond
}

// ResolveURL turns the url option into an absolute URL.
func (o Options) ResolveURL() (*url.URL, error) {
	switch x := o.URL.(type) {
	case string:
		u, err := url.Parse(x)
		if err != nil {
			return nil, err
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("not an absolute URL: %s", x)
		}
		return u, nil
	case nil:
		return buildURL(urlSpec{})
	case map[string]any:
		spec := urlSpec{}
		if err := modules.MergeOptions(&spec, x); err != nil {
			return nil, err
		}
		return buildURL(spec)
	}
	return nil, fmt.Errorf("url must be a string or an object, got %T", o.URL)
}

func buildURL(spec urlSpec) (*url.URL, error) {
	if spec.Host == "" {
		spec.Host = "localhost"
	}
	if spec.Port == 0 {
		spec.Port = 80
	}
	if spec.Protocol == "" {
		spec.Protocol = "http"
	}
	spec.Protocol = strings.TrimSuffix(spec.Protocol, ":")

	path := spec.Path
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	raw := fmt.Sprintf("%s://%s:%s%s", spec.Protocol, spec.Host, strconv.Itoa(spec.Port), path)
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}

	query, err := encodeQuery(spec.Query)
	if err != nil {
		return nil, err
	}
	if query != "" {
		if u.RawQuery != "" {
			u.RawQuery += "&" + query
		} else {
			u.RawQuery = query
		}
	}
	return u, nil
}

func encodeQuery(q any) (string, error) {
	switch x := q.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimPrefix(x, "?"), nil
	case map[string]any:
		values := url.Values{}
		for k, v := range x {
			values.Add(k, fmt.Sprint(v))
		}
		return values.Encode(), nil
	}
	return "", fmt.Errorf("query must be a string or an object, got %T", q)
}
