package post

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeExampleLine(t *testing.T) {
	p, err := Decode("5 7 1700000000.0 m 9 11 r 3")
	require.NoError(t, err)

	assert.Equal(t, int64(5), p.ID())
	assert.Equal(t, int64(7), p.AuthorID())
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), p.CreatedAt())
	assert.Equal(t, []int64{9, 11}, p.Mentions())
	assert.Equal(t, Some(3), p.ReplyTo())
	assert.False(t, p.QuoteOf().Valid)
	assert.Equal(t, []int64{3, 9, 11}, p.Counterparties())
}

func TestEncodeFormat(t *testing.T) {
	p := New(Fields{
		ID:        5,
		AuthorID:  7,
		CreatedAt: time.Unix(1700000000, 0),
		Mentions:  []int64{11, 9, 11},
		ReplyTo:   Some(3),
	})
	assert.Equal(t, "5 7 1700000000.0 m 9 11 r 3", Encode(p))

	bare := New(Fields{ID: 1, AuthorID: 2, CreatedAt: time.Unix(1700000000, 250_000_000)})
	assert.Equal(t, "1 2 1700000000.25", Encode(bare))
}

func TestRoundTrip(t *testing.T) {
	base := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	cases := []Fields{
		{ID: 1, AuthorID: 2, CreatedAt: base},
		{ID: 1766931127810490368, AuthorID: 1390620618001838086, CreatedAt: base.Add(123456 * time.Microsecond), Mentions: []int64{4, 5, 6}},
		{ID: 3, AuthorID: 4, CreatedAt: base, ReplyTo: Some(0)},
		{ID: 3, AuthorID: 4, CreatedAt: base, QuoteOf: Some(9), ReplyTo: Some(4), Mentions: []int64{4}},
		{ID: 0, AuthorID: 0, CreatedAt: time.Unix(0, 0)},
		{ID: 1, AuthorID: 2, CreatedAt: time.UnixMilli(-500)},
		{ID: 1, AuthorID: 2, CreatedAt: time.Unix(-86400, 250000000)},
	}
	for _, f := range cases {
		p := New(f)
		got, err := Decode(Encode(p))
		require.NoError(t, err, Encode(p))
		assert.True(t, p.Equal(got), "round trip changed %q into %q", Encode(p), Encode(got))
	}
}

func TestZeroTargetIsKept(t *testing.T) {
	p, err := Decode("10 20 1.0 r 0 q 0")
	require.NoError(t, err)
	assert.Equal(t, Some(0), p.ReplyTo())
	assert.Equal(t, Some(0), p.QuoteOf())
	assert.Equal(t, "10 20 1.0 r 0 q 0", Encode(p))
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":             "",
		"too few tokens":    "1 2",
		"bad id":            "x 2 3.0",
		"bad author":        "1 y 3.0",
		"bad timestamp":     "1 2 soon",
		"nan timestamp":     "1 2 NaN",
		"huge float":        "1 2 1e300",
		"huge decimal":      "1 2 99999999999999999999.0",
		"negative huge":     "1 2 -1e300",
		"value before mode": "1 2 3.0 4",
		"unknown mode":      "1 2 3.0 x 4",
		"word token":        "1 2 3.0 m 4 five",
		"two replies":       "1 2 3.0 r 4 5",
		"two quotes":        "1 2 3.0 q 4 q 5",
	}
	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(line)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedRecord))
			var rerr *RecordError
			assert.True(t, errors.As(err, &rerr))
		})
	}
}

func TestDecodeAcceptsEmptyModes(t *testing.T) {
	p, err := Decode("1 2 3 m r q")
	require.NoError(t, err)
	assert.Empty(t, p.Mentions())
	assert.False(t, p.ReplyTo().Valid)
	assert.Equal(t, time.Unix(3, 0).UTC(), p.CreatedAt())
}

func TestPreEpochTimestamp(t *testing.T) {
	assert.Equal(t, "-0.5", FormatUnix(time.UnixMilli(-500)))
	got, err := ParseUnix("-0.5")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.UnixMilli(-500)), got)
	got, err = ParseUnix("-1.25")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.UnixMilli(-1250)), got)
}

func TestDecodeFloatTimestamp(t *testing.T) {
	p, err := Decode("1 2 1.7e9")
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), p.CreatedAt())
}
