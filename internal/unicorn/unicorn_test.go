// Copyright 2026 The corevault Authors
// This file is part of the corevault library.
//
// The corevault library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The corevault library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the corevault library. If not, see <http://www.gnu.org/licenses/>.

package unicorn

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testModulus = "6864797660130609714981900799081393217269435300143305409394463459185543183397656052122559640661454554977296311391480858037121987999716643812574028291115057151"
	testSeedHex = "1eeb30c7163271850b6d018e8282093ac6755a771da6267edf6c9b4fce9242ba"
	testWitness = "3519722601447054908751517254890810869415446534615259770378249754169022895693105944708707316137352415946228979178396400856098248558222287197711860247275230167"
)

func newTestUnicorn(t *testing.T) *Unicorn {
	modulus, ok := new(big.Int).SetString(testModulus, 10)
	require.True(t, ok)
	seed, ok := new(big.Int).SetString(testSeedHex, 16)
	require.True(t, ok)

	return &Unicorn{
		Iterations:    1000,
		SecurityLevel: 1,
		Seed:          seed,
		Modulus:       modulus,
	}
}

func TestUnicorn_EvalMatchesKnownWitness(t *testing.T) {
	u := newTestUnicorn(t)
	witness, g, err := u.Eval()
	require.NoError(t, err)

	wantWitness, ok := new(big.Int).SetString(testWitness, 10)
	require.True(t, ok)
	assert.Equal(t, 0, witness.Cmp(wantWitness))
	assert.NotEmpty(t, g)
}

func TestUnicorn_VerifyRoundTrip(t *testing.T) {
	u := newTestUnicorn(t)
	witness, _, err := u.Eval()
	require.NoError(t, err)

	v := newTestUnicorn(t)
	assert.True(t, v.Verify(v.Seed, witness))
}

func TestUnicorn_VerifyRejectsWrongWitness(t *testing.T) {
	u := newTestUnicorn(t)
	_, _, err := u.Eval()
	require.NoError(t, err)

	v := newTestUnicorn(t)
	assert.False(t, v.Verify(v.Seed, big.NewInt(8)))
}

func TestUnicorn_EvalRejectsInvalidModulus(t *testing.T) {
	u := newTestUnicorn(t)
	u.Modulus = big.NewInt(2)
	_, _, err := u.Eval()
	assert.ErrorIs(t, err, ErrInvalidModulus)
}

func TestUnicorn_GetUnicornWithModulus(t *testing.T) {
	u := newTestUnicorn(t)
	_, _, err := u.Eval()
	require.NoError(t, err)

	got := u.GetUnicorn(big.NewInt(20))
	assert.True(t, got.Sign() >= 0 && got.Cmp(big.NewInt(20)) < 0)
}

func TestConstructSeed_Deterministic(t *testing.T) {
	a := ConstructSeed([]string{"tx1", "tx2"}, []string{"addr1", "addr2"}, []string{"h1"})
	b := ConstructSeed([]string{"tx1", "tx2"}, []string{"addr1", "addr2"}, []string{"h1"})
	assert.Equal(t, 0, a.Cmp(b))

	c := ConstructSeed([]string{"tx1", "tx2"}, []string{"addr1", "addr2"}, []string{"h2"})
	assert.NotEqual(t, 0, a.Cmp(c))
}
