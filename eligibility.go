package auth

import (
	"slices"

	"github.com/goliatone/go-storefront-auth/storefront"
)

// Specification is a pure predicate over a user in a store
type Specification interface {
	IsSatisfiedBy(user *User, store storefront.Store) bool
}

// SpecificationFunc adapts a function to Specification
type SpecificationFunc func(user *User, store storefront.Store) bool

// IsSatisfiedBy implements Specification
func (f SpecificationFunc) IsSatisfiedBy(user *User, store storefront.Store) bool {
	return f(user, store)
}

// CanLoginToStore is satisfied when the account belongs to the store,
// to a store the current one trusts, or is an administrator.
func CanLoginToStore(user *User, store storefront.Store) bool {
	if user == nil {
		return false
	}
	if user.HasRole(RoleAdministrator) {
		return true
	}
	if user.StoreID == store.ID {
		return true
	}
	return slices.Contains(store.TrustedStores, user.StoreID)
}

// IsSuspended is satisfied by suspended accounts
func IsSuspended(user *User) bool {
	return user != nil && user.Suspended
}

// EligibilityRule pairs a gate with the error raised when it fails
type EligibilityRule struct {
	Name  string
	Code  FormErrorCode
	Allow Specification
}

// DefaultEligibilityRules gate every session establishment
func DefaultEligibilityRules() []EligibilityRule {
	return []EligibilityRule{
		{
			Name:  "store-membership",
			Code:  FormErrUserCannotLoginInStore,
			Allow: SpecificationFunc(CanLoginToStore),
		},
		{
			Name: "not-suspended",
			Code: FormErrUserSuspended,
			Allow: SpecificationFunc(func(u *User, _ storefront.Store) bool {
				return !IsSuspended(u)
			}),
		},
	}
}

// CheckEligibility returns the first failing rule
func CheckEligibility(rules []EligibilityRule, user *User, store storefront.Store) (EligibilityRule, bool) {
	for _, rule := range rules {
		if !rule.Allow.IsSatisfiedBy(user, store) {
			return rule, false
		}
	}
	return EligibilityRule{}, true
}
