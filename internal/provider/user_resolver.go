// Package provider declares the contracts the engine consumes from the
// surrounding CRM: user/tenant resolution and template rendering.
package provider

import "context"

// User is the slice of the CRM user the engine needs.
type User struct {
	ID       string
	TenantID string
	Email    string
	Name     string
	Locale   string
	Timezone string
	Active   bool
}

// DataAccessChecker vetoes rendering of records the recipient cannot see.
type DataAccessChecker func(entity, entityID string) bool

// UserResolver is the read-only view onto the CRM's tenant/user/permission
// model.
type UserResolver interface {
	GetUser(ctx context.Context, tenantID, userID string) (*User, error)
	UserExists(ctx context.Context, tenantID, userID string) (bool, error)
	TenantActive(ctx context.Context, tenantID string) (bool, error)
	GetSubscribers(ctx context.Context, tenantID, typeID string) ([]string, error)
	GetUserTimezone(ctx context.Context, tenantID, userID string) (string, error)
	GetUserLocale(ctx context.Context, tenantID, userID string) (string, error)
	UserHasPermission(ctx context.Context, tenantID, userID, permission string) (bool, error)
	UserMatchesConditions(ctx context.Context, tenantID, userID string, conditions []Condition) (bool, error)
	CreateDataAccessChecker(ctx context.Context, tenantID, userID string) (DataAccessChecker, error)
	GetUserChannelAddress(ctx context.Context, tenantID, userID, channel string) (string, error)
}

// Condition mirrors model.SubscriptionCondition without importing the model
// package, keeping the contract free of engine types.
type Condition struct {
	Kind  string `json:"kind"`
	Value string `json:"value,omitempty"`
}
