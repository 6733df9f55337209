package rediskey

import "fmt"

// Licensing keys (global convention across services)
const (
	LicenseLockPrefix  = "lock:license"
	PolicyCachePrefix  = "policy"
	AccountCachePrefix = "account"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildLicenseLockKey returns "lock:license:{licenseID}"
func BuildLicenseLockKey(licenseID string) string {
	return NamespaceKey(LicenseLockPrefix, licenseID)
}

// BuildPolicyKey returns "policy:{policyID}"
func BuildPolicyKey(policyID string) string {
	return NamespaceKey(PolicyCachePrefix, policyID)
}

// BuildAccountKey returns "account:{accountID}"
func BuildAccountKey(accountID string) string {
	return NamespaceKey(AccountCachePrefix, accountID)
}
