package approval

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func thresholds(local, general, hard string) Thresholds {
	t := Thresholds{LocalLimit: d(local), GeneralCeiling: d(general)}
	if hard != "" {
		t.HardCeiling = decimal.NewNullDecimal(d(hard))
	}
	return t
}

func TestRequiredLevel(t *testing.T) {
	withHard := thresholds("5000", "20000", "100000")
	noHard := thresholds("5000", "20000", "")

	tests := []struct {
		name     string
		amount   string
		t        Thresholds
		expected Level
	}{
		{name: "below local", amount: "100", t: withHard, expected: LevelLocal},
		{name: "at local limit", amount: "5000", t: withHard, expected: LevelLocal},
		{name: "just above local", amount: "5000.01", t: withHard, expected: LevelPastoral},
		{name: "at general ceiling", amount: "20000", t: withHard, expected: LevelPastoral},
		{name: "between ceiling and hard", amount: "50000", t: withHard, expected: LevelGlobal},
		{name: "at hard ceiling", amount: "100000", t: withHard, expected: LevelGlobal},
		{name: "above hard ceiling", amount: "100000.01", t: withHard, expected: LevelPresidential},
		{name: "no hard ceiling caps at global", amount: "9999999", t: noHard, expected: LevelGlobal},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, RequiredLevel(d(tt.amount), tt.t))
		})
	}
}

func TestRequiredLevel_TenantLocalLimit(t *testing.T) {
	// 租户把本地限额提高到 50,000
	tenant := thresholds("50000", "80000", "")

	assert.Equal(t, LevelLocal, RequiredLevel(d("8000"), tenant))
	assert.Equal(t, LevelPastoral, RequiredLevel(d("60000"), tenant))
}

func TestCanApprove_Hierarchy(t *testing.T) {
	tests := []struct {
		name     string
		roles    []Role
		level    Level
		expected bool
	}{
		{name: "treasurer local", roles: []Role{RoleTreasurer}, level: LevelLocal, expected: true},
		{name: "treasurer pastoral", roles: []Role{RoleTreasurer}, level: LevelPastoral, expected: false},
		{name: "pastor local", roles: []Role{RolePastor}, level: LevelLocal, expected: true},
		{name: "pastor pastoral", roles: []Role{RolePastor}, level: LevelPastoral, expected: true},
		{name: "pastor global", roles: []Role{RolePastor}, level: LevelGlobal, expected: false},
		{name: "administrator global", roles: []Role{RoleAdministrator}, level: LevelGlobal, expected: true},
		{name: "administrator presidential", roles: []Role{RoleAdministrator}, level: LevelPresidential, expected: false},
		{name: "president everything", roles: []Role{RolePresident}, level: LevelPresidential, expected: true},
		{name: "super admin everything", roles: []Role{RoleSuperAdmin}, level: LevelPresidential, expected: true},
		{name: "member nothing", roles: []Role{RoleMember}, level: LevelLocal, expected: false},
		{name: "no roles", roles: nil, level: LevelLocal, expected: false},
		{name: "unknown role", roles: []Role{"janitor"}, level: LevelLocal, expected: false},
		{name: "best role wins", roles: []Role{RoleMember, RoleTreasurer, RolePastor}, level: LevelPastoral, expected: true},
		{name: "invalid level", roles: []Role{RoleSuperAdmin}, level: Level("BOGUS"), expected: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, CanApprove(tt.roles, tt.level))
		})
	}
}

func TestCanApprove_HigherTierImpliesLower(t *testing.T) {
	for role, ceiling := range roleAuthority {
		for _, level := range Levels() {
			if level.Rank() <= ceiling.Rank() {
				assert.True(t, CanApprove([]Role{role}, level), "%s should approve %s", role, level)
			} else {
				assert.False(t, CanApprove([]Role{role}, level), "%s should not approve %s", role, level)
			}
		}
	}
}

func TestAuthorizedRoles(t *testing.T) {
	assert.Equal(t,
		[]Role{RoleAdministrator, RolePastor, RolePresident, RoleSuperAdmin, RoleTreasurer},
		AuthorizedRoles(LevelLocal))
	assert.Equal(t,
		[]Role{RoleAdministrator, RolePastor, RolePresident, RoleSuperAdmin},
		AuthorizedRoles(LevelPastoral))
	assert.Equal(t,
		[]Role{RolePresident, RoleSuperAdmin},
		AuthorizedRoles(LevelPresidential))

	th := thresholds("5000", "20000", "")
	assert.Equal(t, AuthorizedRoles(LevelPastoral), AuthorizedRolesFor(d("6000"), th))

	table := AuthorityTable()
	require.Len(t, table, 4)
	assert.Contains(t, table[LevelGlobal], RoleAdministrator)
	assert.NotContains(t, table[LevelGlobal], RolePastor)
}

func TestThresholds_Validate(t *testing.T) {
	assert.NoError(t, thresholds("5000", "20000", "100000").Validate())
	assert.NoError(t, thresholds("5000", "5000", "").Validate())
	assert.ErrorIs(t, thresholds("0", "20000", "").Validate(), ErrLocalLimitNotPositive)
	assert.ErrorIs(t, thresholds("5000", "1000", "").Validate(), ErrCeilingBelowLocal)
	assert.ErrorIs(t, thresholds("5000", "20000", "10000").Validate(), ErrHardBelowCeiling)
}

func TestParseLevelAndRoles(t *testing.T) {
	l, err := ParseLevel(" pastoral ")
	require.NoError(t, err)
	assert.Equal(t, LevelPastoral, l)

	_, err = ParseLevel("bishop")
	assert.Error(t, err)

	assert.Equal(t, []Role{RoleTreasurer, RolePastor}, ParseRoles([]string{" Treasurer", "", "PASTOR"}))
}

func TestClassifyMagnitude(t *testing.T) {
	b := DefaultMagnitudeBands()

	assert.Equal(t, MagnitudeSmall, ClassifyMagnitude(d("8"), b))
	assert.Equal(t, MagnitudeSmall, ClassifyMagnitude(d("5000"), b))
	assert.Equal(t, MagnitudeMedium, ClassifyMagnitude(d("8000"), b))
	assert.Equal(t, MagnitudeMedium, ClassifyMagnitude(d("20000"), b))
	assert.Equal(t, MagnitudeLarge, ClassifyMagnitude(d("50000"), b))
	assert.Equal(t, MagnitudeCritical, ClassifyMagnitude(d("50000.01"), b))
}

func TestBandsFor_FollowsTenantLimits(t *testing.T) {
	fallback := d("50000")

	// 租户本地限额 50,000：8,000 属于小额申请
	b := BandsFor(thresholds("50000", "80000", ""), fallback)
	assert.Equal(t, MagnitudeSmall, ClassifyMagnitude(d("8000"), b))
	assert.Equal(t, MagnitudeMedium, ClassifyMagnitude(d("60000"), b))
	assert.Equal(t, MagnitudeCritical, ClassifyMagnitude(d("80000.01"), b))

	// 编译期默认值对应 5,000 / 20,000 / 50,000 区间
	def := DefaultMagnitudeBands()
	got := BandsFor(thresholds("5000", "20000", ""), fallback)
	assert.True(t, def.SmallMax.Equal(got.SmallMax))
	assert.True(t, def.MediumMax.Equal(got.MediumMax))
	assert.True(t, def.LargeMax.Equal(got.LargeMax))

	withHard := BandsFor(thresholds("5000", "20000", "100000"), fallback)
	assert.True(t, withHard.LargeMax.Equal(d("100000")))
	assert.Equal(t, MagnitudeLarge, ClassifyMagnitude(d("90000"), withHard))
}
