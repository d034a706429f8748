package protocol

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_Envelope(t *testing.T) {
	data, err := Encode(Checkpoint{Status: StatusReady})
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1,"type":"CHECKPOINT","payload":{"status":"READY"}}`, string(data))

	data, err = Encode(Init{RemoteURL: "https://example.test", RemoteKey: "anon"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1,"type":"INIT","payload":{"remoteUrl":"https://example.test","remoteKey":"anon"}}`, string(data))

	_, err = Encode(nil)
	assert.ErrorIs(t, err, ErrNilMessage)
}

func TestDecode_TypedPayloads(t *testing.T) {
	id := uuid.New()
	matches := json.RawMessage(`[{"id":1,"path":"/docs/x","type":"markdown","title":"X","headings":["Intro"],"slugs":["intro"]}]`)

	msgs := []Message{
		Search{ID: id, Query: "row level security"},
		AbortSearch{},
		Error{Message: "replication failed for 2 rows", Params: map[string]any{"failed": float64(2)}},
		SearchError{RequestID: id, Message: "boom"},
		SearchResults{RequestID: id, Matches: matches},
		NotReady{RequestID: id, Hint: FallbackHint},
	}

	for _, msg := range msgs {
		t.Run(string(msg.Type()), func(t *testing.T) {
			data, err := Encode(msg)
			require.NoError(t, err)

			decoded, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, msg.Type(), decoded.Type())

			if results, ok := msg.(SearchResults); ok {
				got := decoded.(SearchResults)
				assert.Equal(t, results.RequestID, got.RequestID)
				assert.JSONEq(t, string(results.Matches), string(got.Matches))
				return
			}
			assert.Equal(t, msg, decoded)
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{name: "not json", data: `{`, want: ErrMalformed},
		{name: "wrong version", data: `{"v":2,"type":"SEARCH","payload":{}}`, want: ErrUnsupportedVersion},
		{name: "missing version", data: `{"type":"SEARCH","payload":{}}`, want: ErrUnsupportedVersion},
		{name: "unknown type", data: `{"v":1,"type":"REINDEX","payload":{}}`, want: ErrUnknownType},
		{name: "bad payload", data: `{"v":1,"type":"SEARCH","payload":{"query":7}}`, want: ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecode_EmptyPayload(t *testing.T) {
	msg, err := Decode([]byte(`{"v":1,"type":"ABORT_SEARCH"}`))
	require.NoError(t, err)
	assert.Equal(t, AbortSearch{}, msg)
}
