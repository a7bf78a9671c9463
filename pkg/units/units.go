// Package units converts between A0GI, the marketplace's display token unit,
// and neuron, its smallest unit (18 decimals), in which every balance and
// price in the ledger is denominated.
package units

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrUnsupportedType rejects amount values of a type the converters do not
// understand.
var ErrUnsupportedType = errors.New("unsupported amount type")

// A0GIToNeuron converts an A0GI amount to neuron.
//
// Supported input types for iamount: string, float64, int64, decimal.Decimal,
// *decimal.Decimal. The returned value is amount * 10^18.
func A0GIToNeuron(iamount any) (*big.Int, error) {
	var amount decimal.Decimal
	var err error
	switch v := iamount.(type) {
	case string:
		amount, err = decimal.NewFromString(v)
		if err != nil {
			zap.L().Error("Failed to convert string to decimal", zap.Error(err))
			return nil, err
		}
	case float64:
		amount = decimal.NewFromFloat(v)
	case int64:
		amount = decimal.NewFromInt(v)
	case decimal.Decimal:
		amount = v
	case *decimal.Decimal:
		amount = *v
	default:
		zap.L().Error("Unsupported amount type")
		return nil, ErrUnsupportedType
	}

	mul := decimal.NewFromInt(10).Pow(decimal.NewFromInt(18))
	result := amount.Mul(mul)

	neuron := new(big.Int)
	if _, ok := neuron.SetString(result.String(), 10); !ok {
		return nil, errors.New("amount is not an integral neuron value")
	}
	return neuron, nil
}

// NeuronToA0GI converts a neuron amount into A0GI with 18 digits of
// precision.
//
// Supported input types for ivalue: string, *big.Int, int. Any other type
// results in decimal.Zero.
func NeuronToA0GI(ivalue any) decimal.Decimal {
	value := new(big.Int)
	switch v := ivalue.(type) {
	case string:
		value.SetString(v, 10)
	case *big.Int:
		value = v
	case int:
		value.SetInt64(int64(v))
	default:
		zap.L().Error("Unsupported amount type")
		return decimal.Zero
	}

	mul := decimal.NewFromInt(10).Pow(decimal.NewFromInt(18))
	num, err := decimal.NewFromString(value.String())
	if err != nil {
		zap.L().Error("Failed to convert string to decimal", zap.Error(err))
		return decimal.Zero
	}
	return num.DivRound(mul, 18)
}
