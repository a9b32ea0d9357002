package approval

import "github.com/shopspring/decimal"

// Magnitude 申请金额的量级
type Magnitude string

const (
	MagnitudeSmall    Magnitude = "SMALL"
	MagnitudeMedium   Magnitude = "MEDIUM"
	MagnitudeLarge    Magnitude = "LARGE"
	MagnitudeCritical Magnitude = "CRITICAL"
)

// MagnitudeBands 前三个量级的上界（含）
type MagnitudeBands struct {
	SmallMax  decimal.Decimal
	MediumMax decimal.Decimal
	LargeMax  decimal.Decimal
}

// DefaultMagnitudeBands 5,000 / 20,000 / 50,000
func DefaultMagnitudeBands() MagnitudeBands {
	return MagnitudeBands{
		SmallMax:  decimal.NewFromInt(5000),
		MediumMax: decimal.NewFromInt(20000),
		LargeMax:  decimal.NewFromInt(50000),
	}
}

// BandsFor 由审批限额推导量级区间，使量级跟随租户配置：
// SMALL 不超过本地限额，MEDIUM 不超过一般上限，
// LARGE 不超过硬上限（未配置硬上限时取 largeFallback），
// 其余为 CRITICAL
func BandsFor(t Thresholds, largeFallback decimal.Decimal) MagnitudeBands {
	large := largeFallback
	if t.HardCeiling.Valid {
		large = t.HardCeiling.Decimal
	}
	if large.LessThan(t.GeneralCeiling) {
		large = t.GeneralCeiling
	}
	return MagnitudeBands{
		SmallMax:  t.LocalLimit,
		MediumMax: t.GeneralCeiling,
		LargeMax:  large,
	}
}

// ClassifyMagnitude 按区间给金额分级
func ClassifyMagnitude(amount decimal.Decimal, b MagnitudeBands) Magnitude {
	switch {
	case amount.LessThanOrEqual(b.SmallMax):
		return MagnitudeSmall
	case amount.LessThanOrEqual(b.MediumMax):
		return MagnitudeMedium
	case amount.LessThanOrEqual(b.LargeMax):
		return MagnitudeLarge
	default:
		return MagnitudeCritical
	}
}
