package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveStatus(t *testing.T) {
	cases := []struct {
		name     string
		staked   float64
		delegate string
		want     DelegationStatus
	}{
		{name: "no delegate no stake", want: StatusUndelegated},
		{name: "delegate without stake", delegate: "tz1baker", want: StatusDelegated},
		{name: "delegate with stake", staked: 10, delegate: "tz1baker", want: StatusStaked},
		{name: "stake takes precedence even without delegate", staked: 10, want: StatusStaked},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveStatus(tc.staked, tc.delegate))
		})
	}
}
