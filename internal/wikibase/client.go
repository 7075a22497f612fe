// Package wikibase is the authenticated client for the knowledge base's
// write API. It owns the property data-type and label caches and maps
// remote failures onto the engine's closed error taxonomy: 4xx responses
// become api_user_error carrying the remote code and message, 5xx become
// api_server_error. Calls are synchronous, one attempt, no retry.
package wikibase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/domain"
)

// Config configures the API client
type Config struct {
	Endpoint  string
	Token     string
	UserAgent string
	Timeout   time.Duration
}

// Validate checks the config is valid
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if c.Token == "" {
		return fmt.Errorf("token is required")
	}
	return nil
}

// Client is an authenticated HTTP client for the remote write API
type Client struct {
	http      *http.Client
	endpoint  string
	token     string
	userAgent string

	dataTypes map[string]string            // property id -> data type
	labels    map[string]map[string]string // entity id -> language -> label
}

// NewClient creates a client for one user's bearer token
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		endpoint:  strings.TrimRight(cfg.Endpoint, "/"),
		token:     cfg.Token,
		userAgent: cfg.UserAgent,
		dataTypes: make(map[string]string),
		labels:    make(map[string]map[string]string),
	}, nil
}

// apiError is the remote error body shape
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return raw, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, &domain.CommandError{Kind: domain.ErrAPIUserError, Message: remoteMessage(resp.StatusCode, raw)}
	default:
		return nil, &domain.CommandError{Kind: domain.ErrAPIServerError, Message: remoteMessage(resp.StatusCode, raw)}
	}
}

func remoteMessage(status int, raw []byte) string {
	var e apiError
	if err := json.Unmarshal(raw, &e); err == nil && e.Message != "" {
		if e.Code != "" {
			return fmt.Sprintf("%s: %s", e.Code, e.Message)
		}
		return e.Message
	}
	return fmt.Sprintf("HTTP %d", status)
}

// entityPath returns the REST path for an entity document
func entityPath(ref domain.EntityRef) string {
	if ref.Type == "property" {
		return "/entities/properties/" + ref.ID
	}
	return "/entities/" + ref.Type + "s/" + ref.ID
}

// CreateItem creates a new item from a document and returns its assigned id
func (c *Client) CreateItem(ctx context.Context, doc *domain.Document) (string, json.RawMessage, error) {
	raw, err := c.do(ctx, http.MethodPost, "/entities/items", map[string]interface{}{"item": doc})
	if err != nil {
		return "", nil, err
	}
	return createdID(raw)
}

// CreateProperty creates a new property with the given data type
func (c *Client) CreateProperty(ctx context.Context, dataType string) (string, json.RawMessage, error) {
	raw, err := c.do(ctx, http.MethodPost, "/entities/properties",
		map[string]interface{}{"property": map[string]string{"data_type": dataType}})
	if err != nil {
		return "", nil, err
	}
	return createdID(raw)
}

func createdID(raw json.RawMessage) (string, json.RawMessage, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", nil, fmt.Errorf("decoding create response: %w", err)
	}
	return out.ID, raw, nil
}

// CreateStatement adds one statement to an entity
func (c *Client) CreateStatement(ctx context.Context, ref domain.EntityRef, st domain.Statement) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, entityPath(ref)+"/statements",
		map[string]interface{}{"statement": st})
}

// GetDocument fetches an entity's full document
func (c *Client) GetDocument(ctx context.Context, ref domain.EntityRef) (*domain.Document, error) {
	raw, err := c.do(ctx, http.MethodGet, entityPath(ref), nil)
	if err != nil {
		return nil, err
	}
	doc := &domain.Document{}
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	return doc, nil
}

// GetStatements fetches an entity's statements for one property, in remote
// order.
func (c *Client) GetStatements(ctx context.Context, ref domain.EntityRef, property string) ([]domain.Statement, error) {
	raw, err := c.do(ctx, http.MethodGet, entityPath(ref)+"/statements?property="+property, nil)
	if err != nil {
		return nil, err
	}
	byProperty := map[string][]domain.Statement{}
	if err := json.Unmarshal(raw, &byProperty); err != nil {
		return nil, fmt.Errorf("decoding statements: %w", err)
	}
	return byProperty[property], nil
}

// DeleteStatement removes a statement by id
func (c *Client) DeleteStatement(ctx context.Context, statementID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, "/statements/"+statementID, nil)
}

// ReplaceStatement rewrites a statement in place (qualifier and reference
// removal is expressed as a full statement mutation)
func (c *Client) ReplaceStatement(ctx context.Context, statementID string, st domain.Statement) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPatch, "/statements/"+statementID,
		map[string]interface{}{"statement": st})
}

// PatchOp is one JSON-patch operation
type PatchOp struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value,omitempty"`
}

// PatchDocument applies a JSON-patch to an entity document
func (c *Client) PatchDocument(ctx context.Context, ref domain.EntityRef, ops []PatchOp) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPatch, entityPath(ref),
		map[string]interface{}{"patch": ops})
}

// SetLabel sets one language's label. The label cache for the entity is
// invalidated.
func (c *Client) SetLabel(ctx context.Context, ref domain.EntityRef, language, text string) (json.RawMessage, error) {
	defer delete(c.labels, ref.ID)
	return c.do(ctx, http.MethodPatch, entityPath(ref)+"/labels",
		map[string]interface{}{"patch": []PatchOp{{Op: "add", Path: "/" + language, Value: text}}})
}

// DeleteLabel removes one language's label
func (c *Client) DeleteLabel(ctx context.Context, ref domain.EntityRef, language string) (json.RawMessage, error) {
	defer delete(c.labels, ref.ID)
	return c.do(ctx, http.MethodDelete, entityPath(ref)+"/labels/"+language, nil)
}

// SetDescription sets one language's description
func (c *Client) SetDescription(ctx context.Context, ref domain.EntityRef, language, text string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPatch, entityPath(ref)+"/descriptions",
		map[string]interface{}{"patch": []PatchOp{{Op: "add", Path: "/" + language, Value: text}}})
}

// DeleteDescription removes one language's description
func (c *Client) DeleteDescription(ctx context.Context, ref domain.EntityRef, language string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, entityPath(ref)+"/descriptions/"+language, nil)
}

// AddAlias appends an alias to a language's list
func (c *Client) AddAlias(ctx context.Context, ref domain.EntityRef, language, text string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPatch, entityPath(ref)+"/aliases",
		map[string]interface{}{"patch": []PatchOp{{Op: "add", Path: "/" + language + "/-", Value: text}}})
}

// RemoveAlias removes one alias from a language's list
func (c *Client) RemoveAlias(ctx context.Context, ref domain.EntityRef, language, text string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPatch, entityPath(ref)+"/aliases",
		map[string]interface{}{"patch": []PatchOp{{Op: "remove", Path: "/" + language, Value: text}}})
}

// SetSitelink sets a site's link title
func (c *Client) SetSitelink(ctx context.Context, ref domain.EntityRef, site, title string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPatch, entityPath(ref)+"/sitelinks",
		map[string]interface{}{"patch": []PatchOp{{Op: "add", Path: "/" + site, Value: title}}})
}

// DeleteSitelink removes a site's link
func (c *Client) DeleteSitelink(ctx context.Context, ref domain.EntityRef, site string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, entityPath(ref)+"/sitelinks/"+site, nil)
}

// DataType returns a property's data type, memoized per client
func (c *Client) DataType(ctx context.Context, property string) (string, error) {
	if dt, ok := c.dataTypes[property]; ok {
		return dt, nil
	}
	raw, err := c.do(ctx, http.MethodGet, "/entities/properties/"+property, nil)
	if err != nil {
		return "", err
	}
	var out struct {
		DataType string `json:"data_type"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decoding property: %w", err)
	}
	c.dataTypes[property] = out.DataType
	return out.DataType, nil
}

// Labels returns an entity's labels, memoized until a label mutation on
// the same entity invalidates the cache.
func (c *Client) Labels(ctx context.Context, ref domain.EntityRef) (map[string]string, error) {
	if cached, ok := c.labels[ref.ID]; ok {
		return cached, nil
	}
	raw, err := c.do(ctx, http.MethodGet, entityPath(ref)+"/labels", nil)
	if err != nil {
		return nil, err
	}
	labels := map[string]string{}
	if err := json.Unmarshal(raw, &labels); err != nil {
		return nil, fmt.Errorf("decoding labels: %w", err)
	}
	c.labels[ref.ID] = labels
	return labels, nil
}

// UserGroups returns the acting user's group membership
func (c *Client) UserGroups(ctx context.Context) ([]string, error) {
	raw, err := c.do(ctx, http.MethodGet, "/profile", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Username string   `json:"username"`
		Groups   []string `json:"groups"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding profile: %w", err)
	}
	return out.Groups, nil
}

// IsAutoconfirmed reports whether the acting user carries the capability
// required before any write is attempted.
func (c *Client) IsAutoconfirmed(ctx context.Context) (bool, error) {
	groups, err := c.UserGroups(ctx)
	if err != nil {
		return false, err
	}
	for _, g := range groups {
		if g == "autoconfirmed" {
			return true, nil
		}
	}
	return false, nil
}
