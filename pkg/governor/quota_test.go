package governor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseQuota(t *testing.T) {
	q, err := ParseQuota("500/100s")
	require.NoError(t, err)
	require.Equal(t, Quota{Max: 500, Window: 100 * time.Second}, q)

	q, err = ParseQuota(" 15000/720h ")
	require.NoError(t, err)
	require.Equal(t, Quota{Max: 15000, Window: 720 * time.Hour}, q)
}

func TestParseQuotaRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "nope", "5", "/1s", "5/", "0/1s", "-1/1s", "5/0s", "5/-1s", "x/1s", "5/abc"} {
		_, err := ParseQuota(s)
		require.Error(t, err, "quota %q", s)
	}
}

func TestParseQuotas(t *testing.T) {
	quotas, err := ParseQuotas("5/1s, 80/1m")
	require.NoError(t, err)
	require.Equal(t, []Quota{
		{Max: 5, Window: time.Second},
		{Max: 80, Window: time.Minute},
	}, quotas)

	_, err = ParseQuotas("")
	require.Error(t, err)

	_, err = ParseQuotas("5/1s,bogus")
	require.Error(t, err)
}

func TestQuotaString(t *testing.T) {
	require.Equal(t, "5/1s", Quota{Max: 5, Window: time.Second}.String())
}
