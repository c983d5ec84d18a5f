package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"notification-engine/pkg/circuitbreaker"
)

// CRMClient implements UserResolver against the CRM's internal HTTP API.
// Calls go through a circuit breaker so a degraded CRM does not stall every
// sweep.
type CRMClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
}

func NewCRMClient(baseURL string) *CRMClient {
	return &CRMClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
	}
}

func (c *CRMClient) GetUser(ctx context.Context, tenantID, userID string) (*User, error) {
	var u User
	err := c.get(ctx, fmt.Sprintf("/internal/tenants/%s/users/%s", url.PathEscape(tenantID), url.PathEscape(userID)), &u)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *CRMClient) UserExists(ctx context.Context, tenantID, userID string) (bool, error) {
	u, err := c.GetUser(ctx, tenantID, userID)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return u != nil, nil
}

func (c *CRMClient) TenantActive(ctx context.Context, tenantID string) (bool, error) {
	var out struct {
		Active bool `json:"active"`
	}
	if err := c.get(ctx, fmt.Sprintf("/internal/tenants/%s", url.PathEscape(tenantID)), &out); err != nil {
		return false, err
	}
	return out.Active, nil
}

func (c *CRMClient) GetSubscribers(ctx context.Context, tenantID, typeID string) ([]string, error) {
	var out struct {
		UserIDs []string `json:"user_ids"`
	}
	path := fmt.Sprintf("/internal/tenants/%s/notification-types/%s/subscribers", url.PathEscape(tenantID), url.PathEscape(typeID))
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.UserIDs, nil
}

func (c *CRMClient) GetUserTimezone(ctx context.Context, tenantID, userID string) (string, error) {
	u, err := c.GetUser(ctx, tenantID, userID)
	if err != nil {
		return "", err
	}
	return u.Timezone, nil
}

func (c *CRMClient) GetUserLocale(ctx context.Context, tenantID, userID string) (string, error) {
	u, err := c.GetUser(ctx, tenantID, userID)
	if err != nil {
		return "", err
	}
	return u.Locale, nil
}

func (c *CRMClient) UserHasPermission(ctx context.Context, tenantID, userID, permission string) (bool, error) {
	var out struct {
		Allowed bool `json:"allowed"`
	}
	path := fmt.Sprintf("/internal/tenants/%s/users/%s/permissions/%s",
		url.PathEscape(tenantID), url.PathEscape(userID), url.PathEscape(permission))
	if err := c.get(ctx, path, &out); err != nil {
		return false, err
	}
	return out.Allowed, nil
}

func (c *CRMClient) UserMatchesConditions(ctx context.Context, tenantID, userID string, conditions []Condition) (bool, error) {
	var out struct {
		Matches bool `json:"matches"`
	}
	path := fmt.Sprintf("/internal/tenants/%s/users/%s/match-conditions", url.PathEscape(tenantID), url.PathEscape(userID))
	if err := c.post(ctx, path, map[string]any{"conditions": conditions}, &out); err != nil {
		return false, err
	}
	return out.Matches, nil
}

// CreateDataAccessChecker returns a per-recipient predicate backed by the
// CRM's record-visibility endpoint. Lookup failures deny access.
func (c *CRMClient) CreateDataAccessChecker(ctx context.Context, tenantID, userID string) (DataAccessChecker, error) {
	return func(entity, entityID string) bool {
		var out struct {
			Allowed bool `json:"allowed"`
		}
		path := fmt.Sprintf("/internal/tenants/%s/users/%s/access/%s/%s",
			url.PathEscape(tenantID), url.PathEscape(userID), url.PathEscape(entity), url.PathEscape(entityID))
		if err := c.get(ctx, path, &out); err != nil {
			return false
		}
		return out.Allowed
	}, nil
}

func (c *CRMClient) GetUserChannelAddress(ctx context.Context, tenantID, userID, channelName string) (string, error) {
	var out struct {
		Address string `json:"address"`
	}
	path := fmt.Sprintf("/internal/tenants/%s/users/%s/addresses/%s",
		url.PathEscape(tenantID), url.PathEscape(userID), url.PathEscape(channelName))
	if err := c.get(ctx, path, &out); err != nil {
		return "", err
	}
	return out.Address, nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("crm service returned status %d", e.code)
}

func isNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.code == http.StatusNotFound
}

func (c *CRMClient) get(ctx context.Context, path string, out any) error {
	return c.breaker.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return err
		}
		return c.do(req, out)
	})
}

func (c *CRMClient) post(ctx context.Context, path string, body, out any) error {
	return c.breaker.Execute(func() error {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		return c.do(req, out)
	})
}

func (c *CRMClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call crm service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
