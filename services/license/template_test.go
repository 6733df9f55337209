package license

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"licensing-controlplane/services/account"
	"licensing-controlplane/services/policy"
)

func TestTemplateVars(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	expiry := created.Add(time.Hour)
	duration := int64(3600)

	lic := &License{ID: "lic-1", CreatedAt: created, Expiry: &expiry}
	pol := &policy.Policy{ID: "pol-1", ProductID: "prod-1", Duration: &duration}
	acct := &account.Account{ID: "acct-1"}
	user := &account.User{ID: "user-1", Email: "dev@example.com"}

	vars := templateVars(lic, pol, acct, user)
	require.Equal(t, "lic-1", vars["id"])
	require.Equal(t, "acct-1", vars["account"])
	require.Equal(t, "prod-1", vars["product"])
	require.Equal(t, "pol-1", vars["policy"])
	require.Equal(t, "user-1", vars["user"])
	require.Equal(t, "dev@example.com", vars["email"])
	require.Equal(t, "3600", vars["duration"])
	require.NotEmpty(t, vars["created"])
	require.NotEmpty(t, vars["expiry"])
}

func TestTemplateVarsWithoutOptionalParts(t *testing.T) {
	lic := &License{ID: "lic-1", CreatedAt: time.Now()}
	pol := &policy.Policy{ID: "pol-1"}
	acct := &account.Account{ID: "acct-1"}

	vars := templateVars(lic, pol, acct, nil)
	require.NotContains(t, vars, "user")
	require.NotContains(t, vars, "email")
	require.NotContains(t, vars, "expiry")
	require.NotContains(t, vars, "duration")
}

func TestExpandTemplate(t *testing.T) {
	vars := map[string]string{"account": "acct-1", "policy": "pol-1"}

	require.Equal(t, "acct-1/pol-1", expandTemplate("{{account}}/{{policy}}", vars))
	require.Equal(t, "no tokens here", expandTemplate("no tokens here", vars))
	require.Equal(t, "{{unknown}}", expandTemplate("{{unknown}}", vars))
	require.Equal(t, `{"acct":"acct-1"}`, expandTemplate(`{"acct":"{{account}}"}`, vars))
}
