// Package metadata implements C1: the persisted catalog of projects,
// endpoints, parameters, response fields, field-links and response
// messages that feeds the rest of the orchestration pipeline.
package metadata

import (
	"time"

	"github.com/nlapi/orchestra/engine/core"
)

// HTTPMethod enumerates the methods an Endpoint may declare.
type HTTPMethod string

const (
	MethodGet     HTTPMethod = "GET"
	MethodPost    HTTPMethod = "POST"
	MethodPut     HTTPMethod = "PUT"
	MethodDelete  HTTPMethod = "DELETE"
	MethodPatch   HTTPMethod = "PATCH"
	MethodHead    HTTPMethod = "HEAD"
	MethodOptions HTTPMethod = "OPTIONS"
)

// NormalizeMethod upper-cases a method string for case-insensitive lookup
// on Method, while paths stay case-sensitive.
func NormalizeMethod(m string) HTTPMethod {
	return HTTPMethod(upperASCII(m))
}

func upperASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}

// Project is the top-level owner of a registered API surface.
type Project struct {
	ID          core.ID   `db:"id"`
	Name        string    `db:"name"`
	Version     string    `db:"version"`
	BaseURL     string    `db:"base_url"`
	Domain      string    `db:"domain"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

// ParamLocation enumerates where a RequestParameter is carried.
type ParamLocation string

const (
	InPath   ParamLocation = "path"
	InQuery  ParamLocation = "query"
	InHeader ParamLocation = "header"
	InBody   ParamLocation = "body"
)

// Endpoint is a single (METHOD, PATH) within a project's API.
type Endpoint struct {
	ID              core.ID    `db:"id"`
	ProjectID       core.ID    `db:"project_id"`
	Method          HTTPMethod `db:"method"`
	Path            string     `db:"path"`
	Summary         string     `db:"summary"`
	PromptText      string     `db:"prompt_text"`
	Keywords        []string   `db:"keywords"`
	IntentPatterns  []string   `db:"intent_patterns"`
	EmbeddingVector []float64  `db:"embedding_vector"`

	// Eager-loaded associations, populated by ListEndpoints(withDetails).
	Parameters     []RequestParameter `db:"-"`
	ResponseFields []ResponseField    `db:"-"`
}

// Label renders the endpoint as "METHOD PATH", the identifier used in plans
// and field-link hints.
func (e *Endpoint) Label() string {
	return string(e.Method) + " " + e.Path
}

// RequestParameter describes one input the endpoint accepts.
type RequestParameter struct {
	ID          core.ID       `db:"id"`
	EndpointID  core.ID       `db:"endpoint_id"`
	Name        string        `db:"name"`
	In          ParamLocation `db:"in"`
	Type        string        `db:"type"`
	Required    bool          `db:"required"`
	Description string        `db:"description"`
}

// ResponseField describes one field reachable in the endpoint's JSON
// response via a JSONPath expression.
type ResponseField struct {
	ID          core.ID `db:"id"`
	EndpointID  core.ID `db:"endpoint_id"`
	JSONPath    string  `db:"json_path"`
	Type        string  `db:"type"`
	Description string  `db:"description"`
}

// FieldLink expresses that the value at FromField.JSONPath of one endpoint
// may feed ToParamName of another endpoint.
type FieldLink struct {
	ID           core.ID `db:"id"`
	FromFieldID  core.ID `db:"from_field_id"`
	ToEndpointID core.ID `db:"to_endpoint_id"`
	ToParamName  string  `db:"to_param_name"`
	RelationType string  `db:"relation_type"`
	Description  string  `db:"description"`

	// Populated by eager-loading joins; not persisted directly.
	FromField  *ResponseField `db:"-"`
	ToEndpoint *Endpoint      `db:"-"`
}

// ResponseMessage maps an HTTP status of one endpoint to user-visible text.
type ResponseMessage struct {
	ID         core.ID `db:"id"`
	EndpointID core.ID `db:"endpoint_id"`
	StatusCode int     `db:"status_code"`
	Message    string  `db:"message"`
	Suggestion string  `db:"suggestion"`
}

// GenericStatusMessages is the fixed fallback table §7 mandates when neither
// an endpoint-specific nor a project-wide ResponseMessage exists.
var GenericStatusMessages = map[int]string{
	400: "The request was malformed or missing required information.",
	401: "Authentication is required or the provided credentials are invalid.",
	403: "You don't have permission to perform this action.",
	404: "The requested resource could not be found.",
	422: "The request could not be processed due to invalid data.",
	429: "Too many requests were made; please slow down and retry.",
	500: "The service encountered an internal error.",
	502: "The upstream service returned an invalid response.",
	503: "The service is temporarily unavailable.",
}
