package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeProgress_Empty(t *testing.T) {
	for _, raw := range []string{"", "   ", "null"} {
		p, err := DecodeProgress([]byte(raw))
		require.NoError(t, err)
		assert.Equal(t, EmptyProgress(), p)
	}
}

func TestDecodeProgress_Current(t *testing.T) {
	raw := `{
		"version": 2,
		"completedChallenges": ["t1", "t2"],
		"deductionsById": {
			"t1": {"pointsDeducted": 30, "forwardSeeks": 1, "peakRate": 2, "completedAt": "2026-10-01T12:00:00Z"},
			"t2": {"pointsDeducted": 0, "forwardSeeks": 0}
		}
	}`

	p, err := DecodeProgress([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, CurrentVersion, p.Version)
	assert.Equal(t, []string{"t1", "t2"}, p.CompletedChallenges)
	require.NotNil(t, p.DeductionsByID["t1"].PeakRate)
	assert.Equal(t, 2.0, *p.DeductionsByID["t1"].PeakRate)
	assert.Equal(t, 30, p.DeductionsByID["t1"].PointsDeducted)
	assert.Equal(t, "2026-10-01T12:00:00Z", p.DeductionsByID["t1"].CompletedAt)
	assert.Nil(t, p.DeductionsByID["t2"].PeakRate)
}

func TestDecodeProgress_SanitizesFields(t *testing.T) {
	raw := `{
		"completedChallenges": ["t1", 7, null, "t1", "", "t3"],
		"deductionsById": {
			"t1": {"pointsDeducted": -4, "forwardSeeks": 2.9, "peakRate": -1, "completedAt": "yesterday"},
			"t3": "garbage"
		}
	}`

	p, err := DecodeProgress([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, []string{"t1", "t3"}, p.CompletedChallenges)
	assert.Equal(t, Deduction{PointsDeducted: 0, ForwardSeeks: 2}, p.DeductionsByID["t1"])
	assert.Equal(t, Deduction{}, p.DeductionsByID["t3"])
}

func TestDecodeProgress_WrongFieldTypesDefault(t *testing.T) {
	p, err := DecodeProgress([]byte(`{"completedChallenges": "t1", "deductionsById": []}`))
	require.NoError(t, err)
	assert.Equal(t, EmptyProgress(), p)
}

func TestDecodeProgress_LegacyChallengeArray(t *testing.T) {
	raw := `{
		"state": {
			"challenges": [
				{"id": "challenge-1", "completed": true, "progress": 100, "completedAt": "2025-01-02T03:04:05.000Z"},
				{"id": "challenge-2", "completed": false, "progress": 40},
				{"id": "challenge-3", "completed": true, "pointsDeducted": 30, "forwardSeeks": 1}
			]
		},
		"version": 0
	}`

	p, err := DecodeProgress([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, []string{"challenge-1", "challenge-3"}, p.CompletedChallenges)
	assert.Equal(t, "2025-01-02T03:04:05Z", p.DeductionsByID["challenge-1"].CompletedAt)
	assert.Equal(t, 30, p.DeductionsByID["challenge-3"].PointsDeducted)
	assert.NotContains(t, p.DeductionsByID, "challenge-2")
}

func TestDecodeProgress_Corrupt(t *testing.T) {
	for _, raw := range []string{`{not json`, `[1,2,3]`, `"text"`} {
		p, err := DecodeProgress([]byte(raw))
		require.Error(t, err, raw)
		assert.True(t, IsCorrupt(err))
		assert.Equal(t, EmptyProgress(), p)
	}
}

func TestDecodeLedger(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Ledger
	}{
		{"empty", ``, EmptyLedger()},
		{
			"current",
			`{"version":2,"totalPoints":570,"completedChallenges":["t1","t2"]}`,
			Ledger{Version: 2, TotalPoints: 570, CompletedChallenges: []string{"t1", "t2"}},
		},
		{
			"persist envelope",
			`{"state":{"totalPoints":300,"completedChallenges":["t1"]},"version":0}`,
			Ledger{Version: 2, TotalPoints: 300, CompletedChallenges: []string{"t1"}},
		},
		{
			"negative and fractional",
			`{"totalPoints":-12.5}`,
			Ledger{Version: 2, TotalPoints: 0, CompletedChallenges: []string{}},
		},
		{
			"string total",
			`{"totalPoints":"300","completedChallenges":[1,"t9"]}`,
			Ledger{Version: 2, TotalPoints: 0, CompletedChallenges: []string{"t9"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeLedger([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeLedger_Corrupt(t *testing.T) {
	l, err := DecodeLedger([]byte(`{"totalPoints": 1`))
	require.Error(t, err)
	assert.True(t, IsCorrupt(err))
	assert.Equal(t, EmptyLedger(), l)
}

func TestEncode_RoundTripsThroughDecode(t *testing.T) {
	rate := 1.25
	p := Progress{
		CompletedChallenges: []string{"t2"},
		DeductionsByID:      map[string]Deduction{"t2": {PointsDeducted: 7, ForwardSeeks: 1, PeakRate: &rate}},
	}
	raw, err := EncodeProgress(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":2,"completedChallenges":["t2"],"deductionsById":{"t2":{"pointsDeducted":7,"forwardSeeks":1,"peakRate":1.25}}}`, string(raw))

	back, err := DecodeProgress(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"t2"}, back.CompletedChallenges)

	raw, err = EncodeLedger(Ledger{TotalPoints: 5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":2,"totalPoints":5,"completedChallenges":[]}`, string(raw))
}
