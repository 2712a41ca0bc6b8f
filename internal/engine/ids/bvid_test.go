package ids

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAVToBVKnownPairs(t *testing.T) {
	tests := []struct {
		av, bv string
	}{
		{"av1", "BV1xx411c7mQ"},
		{"av170001", "BV17x411w7KC"},
		{"av80433022", "BV1GJ411x7h7"},
	}
	for _, tt := range tests {
		t.Run(tt.av, func(t *testing.T) {
			bv, err := AVToBV(tt.av)
			require.NoError(t, err)
			assert.Equal(t, tt.bv, bv)
			assert.True(t, strings.HasPrefix(bv, "BV1"))
			assert.Len(t, bv, 12)

			av, err := BVToAV(tt.bv)
			require.NoError(t, err)
			assert.Equal(t, tt.av, av)
		})
	}
}

func TestAVToBVAcceptsBareNumber(t *testing.T) {
	bv, err := AVToBV("170001")
	require.NoError(t, err)
	assert.Equal(t, "BV17x411w7KC", bv)

	bv, err = AVToBV("AV170001")
	require.NoError(t, err)
	assert.Equal(t, "BV17x411w7KC", bv)
}

func TestAVToBVInvalid(t *testing.T) {
	for _, in := range []string{"", "av", "avx", "av-5", "av99999999999999"} {
		_, err := AVToBV(in)
		assert.ErrorIs(t, err, ErrInvalidAV, "input %q", in)
	}
}

func TestBVToAVInvalid(t *testing.T) {
	for _, in := range []string{"", "BV1", "BV17x411w7K", "XX17x411w7KC", "BV17x411w7K0", "BV17x511w7KC"} {
		_, err := BVToAV(in)
		assert.ErrorIs(t, err, ErrInvalidBV, "input %q", in)
	}
}

func TestAVRoundTripStable(t *testing.T) {
	for _, n := range []string{"av1", "av2", "av10", "av12345", "av170001", "av99999999", "av1000000000"} {
		first := Normalize(n)
		av, err := BVToAV(first)
		require.NoError(t, err, n)
		assert.Equal(t, n, av)
		assert.Equal(t, first, Normalize(av), n)
	}
}

func TestBVRoundTrip(t *testing.T) {
	// Every encoded id must decode and re-encode to itself, across a spread
	// of magnitudes that exercises all six encoded positions.
	checked := 0
	for n := int64(1); n < 10_000_000_000; n = n*7 + 3 {
		av := "av" + strconv.FormatInt(n, 10)
		bv, err := AVToBV(av)
		require.NoError(t, err, av)

		back, err := BVToAV(bv)
		require.NoError(t, err, bv)
		assert.Equal(t, av, back)

		again, err := AVToBV(back)
		require.NoError(t, err, back)
		assert.Equal(t, bv, again)
		checked++
	}
	assert.GreaterOrEqual(t, checked, 10)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"canonical", "BV17x411w7KC", "BV17x411w7KC"},
		{"canonical in url", "https://www.bilibili.com/video/BV17x411w7KC?p=1", "BV17x411w7KC"},
		{"lowercase prefix", "bv17x411w7KC", "bv17x411w7KC"},
		{"legacy", "av170001", "BV17x411w7KC"},
		{"legacy in url", "https://www.bilibili.com/video/av170001/", "BV17x411w7KC"},
		{"legacy uppercase", "AV170001", "BV17x411w7KC"},
		{"passthrough", "hello", "hello"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}
