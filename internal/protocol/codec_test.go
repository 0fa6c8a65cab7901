package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPacket(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType PacketType
		wantErr  bool
	}{
		{
			name:     "login request",
			input:    `{"type":101,"data":{"username":"alice","password":"pw"}}` + "\n",
			wantType: PlayerLogin,
		},
		{
			name:     "empty lines before frame are skipped",
			input:    "\n\n" + `{"type":99,"data":{"msg":"ping"}}` + "\n",
			wantType: KeepAlive,
		},
		{
			name:     "whitespace padding is tolerated",
			input:    `  {"type":104,"data":{}}  ` + "\n",
			wantType: PlayerCreateRoom,
		},
		{
			name:    "malformed json is fatal",
			input:   "{not json}\n",
			wantErr: true,
		},
		{
			name:    "truncated frame at stream end",
			input:   `{"type":101`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bufio.NewReader(strings.NewReader(tt.input))
			p, err := ReadPacket(r)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, p.Type)
		})
	}
}

func TestReadPacketEOF(t *testing.T) {
	r := bufio.NewReader(strings.NewReader(""))
	_, err := ReadPacket(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestWritePacketRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	out := OK(KindCreateRoom, Payload{"room_id": 7})
	require.NoError(t, WritePacket(&buf, out))

	// Exactly one newline-terminated frame.
	raw := buf.String()
	require.True(t, strings.HasSuffix(raw, "\n"))
	assert.Equal(t, 1, strings.Count(raw, "\n"))

	p, err := ReadPacket(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, ServerResponse, p.Type)

	var data map[string]any
	require.NoError(t, json.Unmarshal(p.Data, &data))
	assert.Equal(t, KindCreateRoom, data["kind"])
	assert.Equal(t, true, data["ok"])
	assert.Equal(t, float64(7), data["room_id"])
}

func TestWritePacketStream(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePacket(&buf, NewKeepAlive()))
	require.NoError(t, WritePacket(&buf, Fail(KindJoinRoom, "Room full.")))

	r := bufio.NewReader(&buf)

	first, err := ReadPacket(r)
	require.NoError(t, err)
	assert.Equal(t, KeepAlive, first.Type)

	second, err := ReadPacket(r)
	require.NoError(t, err)
	assert.Equal(t, ServerResponse, second.Type)

	var data map[string]any
	require.NoError(t, json.Unmarshal(second.Data, &data))
	assert.Equal(t, false, data["ok"])
	assert.Equal(t, "Room full.", data["msg"])
}

func TestFailAndError(t *testing.T) {
	p := Fail(KindStartGame, "Only host can start the game.")
	var data map[string]any
	require.NoError(t, json.Unmarshal(p.Data, &data))
	assert.Equal(t, KindStartGame, data["kind"])
	assert.Equal(t, false, data["ok"])

	e := Error("Unknown lobby command.")
	assert.Equal(t, ErrorResponse, e.Type)
	require.NoError(t, json.Unmarshal(e.Data, &data))
	assert.Equal(t, "Unknown lobby command.", data["msg"])
}
