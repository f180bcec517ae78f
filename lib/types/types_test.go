package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in  string
		exp time.Duration
	}{
		{"500", 500 * time.Millisecond},
		{"1.5", 1500 * time.Microsecond},
		{"0", 0},
		{"10s", 10 * time.Second},
		{"1m30s", 90 * time.Second},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			d, err := ParseDuration(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.exp, d)
		})
	}

	for _, in := range []string{"", "1d", "x", "-5s", "-100"} {
		_, err := ParseDuration(in)
		assert.Error(t, err, in)
	}
	_, err := ParseDuration("-1s")
	assert.ErrorIs(t, err, errNegativeDuration)
}

func TestNullDuration(t *testing.T) {
	t.Parallel()

	t.Run("JSON", func(t *testing.T) {
		t.Parallel()
		var d NullDuration
		require.NoError(t, json.Unmarshal([]byte(`"30s"`), &d))
		assert.Equal(t, NullDurationFrom(30*time.Second), d)

		require.NoError(t, json.Unmarshal([]byte(`1500`), &d))
		assert.Equal(t, NullDurationFrom(1500*time.Millisecond), d)

		require.NoError(t, json.Unmarshal([]byte(`null`), &d))
		assert.False(t, d.Valid)

		assert.Error(t, json.Unmarshal([]byte(`true`), &d))
	})

	t.Run("Text", func(t *testing.T) {
		t.Parallel()
		var d NullDuration
		require.NoError(t, d.UnmarshalText([]byte("2m")))
		assert.Equal(t, 2*time.Minute, d.TimeDuration())
		require.NoError(t, d.UnmarshalText(nil))
		assert.False(t, d.Valid)
	})

	t.Run("Marshal", func(t *testing.T) {
		t.Parallel()
		b, err := json.Marshal(NewNullDuration(time.Second, false))
		require.NoError(t, err)
		assert.Equal(t, `null`, string(b))
		b, err = json.Marshal(NullDurationFrom(time.Second))
		require.NoError(t, err)
		assert.Equal(t, `"1s"`, string(b))
	})
}
