package units

import (
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestA0GIToNeuron(t *testing.T) {
	tests := []struct {
		name   string
		amount any
		want   string
	}{
		{"string", "1.5", "1500000000000000000"},
		{"float", 0.25, "250000000000000000"},
		{"int", int64(3), "3000000000000000000"},
		{"decimal", decimal.NewFromInt(2), "2000000000000000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := A0GIToNeuron(tt.amount)
			if err != nil {
				t.Fatalf("A0GIToNeuron(%v): %v", tt.amount, err)
			}
			if got.String() != tt.want {
				t.Fatalf("A0GIToNeuron(%v) = %s, want %s", tt.amount, got, tt.want)
			}
		})
	}
}

func TestA0GIToNeuronUnsupportedType(t *testing.T) {
	if _, err := A0GIToNeuron(struct{}{}); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("err = %v, want ErrUnsupportedType", err)
	}
}

func TestNeuronToA0GI(t *testing.T) {
	neuron, ok := new(big.Int).SetString("1500000000000000000", 10)
	if !ok {
		t.Fatal("parse neuron amount")
	}
	got := NeuronToA0GI(neuron)
	if !got.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("NeuronToA0GI = %s, want 1.5", got)
	}
}

func TestRoundTrip(t *testing.T) {
	neuron, err := A0GIToNeuron("123.456789")
	if err != nil {
		t.Fatalf("to neuron: %v", err)
	}
	back := NeuronToA0GI(neuron)
	if !back.Equal(decimal.RequireFromString("123.456789")) {
		t.Fatalf("round trip = %s, want 123.456789", back)
	}
}
