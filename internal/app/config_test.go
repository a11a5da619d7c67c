package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/gatekeeper/internal/identity"
)

func TestLoadConfigParsesApprovalPolicy(t *testing.T) {
	t.Setenv("APPROVAL_POLICY_DEV", "dev:8,qa:8,PROD:4")
	t.Setenv("APPROVAL_POLICY_SUPPORT", "prod:6")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	pol := cfg.ApprovalPolicy()

	hours, ok := pol.Threshold(identity.RoleDev, "prod")
	require.True(t, ok)
	require.Equal(t, 4, hours)
	hours, ok = pol.Threshold(identity.RoleSupport, "PROD")
	require.True(t, ok)
	require.Equal(t, 6, hours)
	_, ok = pol.Threshold(identity.RoleSupport, "qa")
	require.False(t, ok)
	require.Equal(t, 192*time.Hour, cfg.GrantLookback)
	require.True(t, cfg.NotifyAccessRequested)
}

func TestLoadConfigRejectsShortLookback(t *testing.T) {
	t.Setenv("GRANT_LOOKBACK", "24h")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestResolverConfigFromEnv(t *testing.T) {
	t.Setenv("APPROVER_GROUP", "SEC_APPROVERS")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	role, _ := identity.NewResolver(cfg.ResolverConfig()).Resolve([]string{"sec_approvers"})
	require.Equal(t, identity.RoleApprover, role)
}
