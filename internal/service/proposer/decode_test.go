package proposer

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCandidates_BareArrayAndEnvelope(t *testing.T) {
	id := uuid.New()
	one := `{"title":"Retry","detail":"","actionKind":"sync_retry","targetEntity":"syncQueueItem","targetId":"` + id.String() + `","diffJson":{"status":"Queued->Uploading"}}`

	for _, raw := range []string{"[" + one + "]", `{"actions":[` + one + `]}`, "  \n[" + one + "]\n"} {
		got, err := decodeCandidates(raw)
		require.NoError(t, err, raw)
		require.Len(t, got, 1)
		assert.Equal(t, id, got[0].targetID)
		assert.Equal(t, "Retry", got[0].Title)
	}
}

func TestNormalizeDiff(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"missing", ``, `{}`},
		{"null", `null`, `{}`},
		{"object", `{ "status" : "Verified" }`, `{"status":"Verified"}`},
		{"encoded object", `"{\"status\":\"Verified\"}"`, `{"status":"Verified"}`},
		{"plain text", `"set status to verified"`, `{"summary":"set status to verified"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeDiff([]byte(tt.in))
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}

	_, err := normalizeDiff([]byte(`[1,2]`))
	assert.Error(t, err)
	_, err = normalizeDiff([]byte(`true`))
	assert.Error(t, err)
}

func TestDecodeCandidates_TitleIsTrimmed(t *testing.T) {
	raw := `[{"title":"  Verify  ","actionKind":"status_normalization","targetEntity":"serviceEntry","targetId":"` + uuid.NewString() + `"}]`
	got, err := decodeCandidates(raw)
	require.NoError(t, err)
	assert.Equal(t, "Verify", got[0].Title)
	assert.JSONEq(t, `{}`, string(got[0].diff))
}
