package chain

import (
	"errors"
	"testing"
)

func TestIsInsufficientFunds(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"insufficient funds for gas * price + value", true},
		{"INSUFFICIENT BALANCE", true},
		{"tx value exceeds balance of account", true},
		{"nonce too low", false},
		{"replacement transaction underpriced", false},
	}

	for _, c := range cases {
		got := isInsufficientFunds(errors.New(c.msg))
		if got != c.want {
			t.Errorf("isInsufficientFunds(%q) = %v, want %v", c.msg, got, c.want)
		}
	}
}
