package dto

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xssnick/tonutils-go/tlb"
)

var ErrBadAmount = errors.New("malformed amount")

// ParseNativeAmount переводит "1.5" (нативная валюта, 9 знаков) в базовые единицы.
func ParseNativeAmount(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrBadAmount)
	}
	coins, err := tlb.FromTON(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadAmount, err)
	}
	return toUint64(coins.Nano())
}

func FormatNativeAmount(v uint64) string {
	return tlb.FromNanoTONU(v).String()
}

// ParseTokenAmount переводит "12.5" платёжной валюты в базовые единицы.
// Дробная часть длиннее decimals - ошибка, округления нет.
func ParseTokenAmount(s string, decimals int) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrBadAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadAmount, err)
	}
	base := d.Shift(int32(decimals))
	if !base.Equal(base.Truncate(0)) {
		return 0, fmt.Errorf("%w: more than %d fractional digits", ErrBadAmount, decimals)
	}
	return toUint64(base.BigInt())
}

func FormatTokenAmount(v uint64, decimals int) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -int32(decimals)).String()
}

func toUint64(v *big.Int) (uint64, error) {
	if v.Sign() < 0 {
		return 0, fmt.Errorf("%w: negative", ErrBadAmount)
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("%w: out of range", ErrBadAmount)
	}
	return v.Uint64(), nil
}
