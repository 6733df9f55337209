package license

import (
	"strconv"
	"strings"
	"time"

	"licensing-controlplane/services/account"
	"licensing-controlplane/services/policy"
)

// templateVars collects the substitution tokens available to pre-assigned key
// patterns. Operators may embed e.g. {{account}} or {{expiry}} in a key value
// and have it expanded before the value becomes the signing seed.
func templateVars(lic *License, pol *policy.Policy, acct *account.Account, user *account.User) map[string]string {
	vars := map[string]string{
		"id":      lic.ID,
		"account": acct.ID,
		"product": pol.ProductID,
		"policy":  pol.ID,
		"created": strconv.FormatInt(lic.CreatedAt.UnixMilli(), 10),
	}

	if user != nil {
		vars["user"] = user.ID
		vars["email"] = user.Email
	}
	if lic.Expiry != nil {
		vars["expiry"] = strconv.FormatInt(lic.Expiry.UnixMilli(), 10)
	}
	if d, ok := pol.ExpiryDuration(); ok {
		vars["duration"] = strconv.FormatInt(int64(d/time.Second), 10)
	}

	return vars
}

// expandTemplate substitutes {{token}} placeholders. Unknown tokens are left
// in place.
func expandTemplate(tpl string, vars map[string]string) string {
	if !strings.Contains(tpl, "{{") {
		return tpl
	}

	pairs := make([]string, 0, len(vars)*2)
	for token, value := range vars {
		pairs = append(pairs, "{{"+token+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}
