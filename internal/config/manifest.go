package config

import (
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/me/fetchq/pkg/model"
	"github.com/me/fetchq/pkg/queue"
)

// Manifest is a batch of requests to run through the queue, loaded from
// YAML.
type Manifest struct {
	Defaults ManifestDefaults  `yaml:"defaults"`
	Requests []ManifestRequest `yaml:"requests"`
}

// ManifestDefaults apply to every request that leaves the matching field
// unset.
type ManifestDefaults struct {
	Priority     string            `yaml:"priority"`
	ResponseType string            `yaml:"responseType"`
	Headers      map[string]string `yaml:"headers"`
	Auth         string            `yaml:"auth"`
	Retries      *int              `yaml:"retries"`
}

// ManifestRequest describes one request of the batch. A scalar body is
// sent as-is; a mapping or sequence body is sent as JSON.
type ManifestRequest struct {
	Name            string            `yaml:"name"`
	Method          string            `yaml:"method"`
	URL             string            `yaml:"url"`
	Priority        string            `yaml:"priority"`
	ResponseType    string            `yaml:"responseType"`
	Headers         map[string]string `yaml:"headers"`
	Body            any               `yaml:"body"`
	Auth            string            `yaml:"auth"`
	WithCredentials bool              `yaml:"withCredentials"`
	Retries         *int              `yaml:"retries"`
}

// RequestSpec is a manifest request resolved against the defaults, ready
// to submit.
type RequestSpec struct {
	Name    string
	Method  model.Method
	URL     string
	Options queue.Options
}

// LoadManifest reads a YAML manifest and resolves it into submittable
// request specs.
func LoadManifest(path string) ([]RequestSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := unmarshalStrict(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	specs, err := m.Resolve()
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return specs, nil
}

// Resolve validates every request and folds in the defaults.
func (m *Manifest) Resolve() ([]RequestSpec, error) {
	if len(m.Requests) == 0 {
		return nil, fmt.Errorf("no requests declared")
	}
	specs := make([]RequestSpec, 0, len(m.Requests))
	for i, r := range m.Requests {
		spec, err := m.resolve(r)
		if err != nil {
			name := r.Name
			if name == "" {
				name = fmt.Sprintf("request %d", i+1)
			}
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func (m *Manifest) resolve(r ManifestRequest) (RequestSpec, error) {
	if r.URL == "" {
		return RequestSpec{}, fmt.Errorf("url is required")
	}
	if _, err := url.ParseRequestURI(r.URL); err != nil {
		return RequestSpec{}, fmt.Errorf("invalid url %q: %w", r.URL, err)
	}

	methodName := r.Method
	if methodName == "" {
		methodName = "GET"
	}
	method, err := model.ParseMethod(methodName)
	if err != nil {
		return RequestSpec{}, err
	}

	priority, err := model.ParsePriority(firstNonEmpty(r.Priority, m.Defaults.Priority))
	if err != nil {
		return RequestSpec{}, err
	}
	responseType, err := model.ParseResponseType(firstNonEmpty(r.ResponseType, m.Defaults.ResponseType))
	if err != nil {
		return RequestSpec{}, err
	}

	var headers http.Header
	if len(m.Defaults.Headers) > 0 || len(r.Headers) > 0 {
		headers = make(http.Header, len(m.Defaults.Headers)+len(r.Headers))
		for k, v := range m.Defaults.Headers {
			headers.Set(k, v)
		}
		for k, v := range r.Headers {
			headers.Set(k, v)
		}
	}

	retries := r.Retries
	if retries == nil {
		retries = m.Defaults.Retries
	}

	name := r.Name
	if name == "" {
		name = r.URL
	}
	return RequestSpec{
		Name:   name,
		Method: method,
		URL:    r.URL,
		Options: queue.Options{
			Priority:        priority,
			ResponseType:    responseType,
			Headers:         headers,
			Body:            r.Body,
			Auth:            firstNonEmpty(r.Auth, m.Defaults.Auth),
			WithCredentials: r.WithCredentials,
			MaxRetries:      retries,
		},
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
