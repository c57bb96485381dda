package events

import (
	"encoding/base64"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/near/borsh-go"
	"github.com/stretchr/testify/require"
)

func encodeEventLog(t *testing.T, disc [8]byte, body any) string {
	t.Helper()
	raw, err := borsh.Serialize(body)
	require.NoError(t, err)
	payload := append(disc[:], raw...)
	return programDataPrefix + base64.StdEncoding.EncodeToString(payload)
}

func TestEvents_ParseLogs_PixelChanged(t *testing.T) {
	t.Parallel()

	painter := solana.NewWallet().PublicKey()
	owner := solana.NewWallet().PublicKey()

	line := encodeEventLog(t, pixelChangedDiscriminator, PixelChanged{
		PX:         10,
		PY:         20,
		Color:      0x0000FF,
		Painter:    painter,
		MainWallet: owner,
		Timestamp:  1000,
	})

	got := ParseLogs([]string{
		"Program 11111111111111111111111111111111 invoke [1]",
		line,
		"Program 11111111111111111111111111111111 success",
	})
	require.Len(t, got, 1)
	require.Equal(t, PixelChanged{
		PX:         10,
		PY:         20,
		Color:      0x0000FF,
		Painter:    painter,
		MainWallet: owner,
		Timestamp:  1000,
	}, got[0])
}

func TestEvents_ParseLogs_ShardInitialized(t *testing.T) {
	t.Parallel()

	creator := solana.NewWallet().PublicKey()

	line := encodeEventLog(t, shardInitializedDiscriminator, ShardInitialized{
		ShardX:     -3,
		ShardY:     7,
		Creator:    creator,
		MainWallet: creator,
		Timestamp:  2000,
	})

	got := ParseLogs([]string{line})
	require.Len(t, got, 1)
	shard, ok := got[0].(ShardInitialized)
	require.True(t, ok)
	require.Equal(t, int32(-3), shard.ShardX)
	require.Equal(t, int32(7), shard.ShardY)
	require.Equal(t, creator, shard.Creator)
}

func TestEvents_ParseLogs_MultipleEventsPreserveOrder(t *testing.T) {
	t.Parallel()

	wallet := solana.NewWallet().PublicKey()

	first := encodeEventLog(t, pixelChangedDiscriminator, PixelChanged{
		PX: 1, PY: 1, Color: 1, Painter: wallet, MainWallet: wallet, Timestamp: 1,
	})
	second := encodeEventLog(t, shardInitializedDiscriminator, ShardInitialized{
		ShardX: 0, ShardY: 0, Creator: wallet, MainWallet: wallet, Timestamp: 2,
	})

	got := ParseLogs([]string{first, second})
	require.Len(t, got, 2)
	require.IsType(t, PixelChanged{}, got[0])
	require.IsType(t, ShardInitialized{}, got[1])
}

func TestEvents_ParseLogs_SkipsMalformedEntries(t *testing.T) {
	t.Parallel()

	unknown := eventDiscriminator("SomethingElse")
	wallet := solana.NewWallet().PublicKey()

	lines := []string{
		"Program log: Instruction: PlacePixel",
		programDataPrefix + "!!!not base64!!!",
		programDataPrefix + base64.StdEncoding.EncodeToString([]byte{1, 2, 3}),
		encodeEventLog(t, unknown, ShardInitialized{Creator: wallet, MainWallet: wallet}),
		// Right discriminator, truncated body.
		programDataPrefix + base64.StdEncoding.EncodeToString(append(pixelChangedDiscriminator[:], 0x01)),
	}

	require.Empty(t, ParseLogs(lines))
}

func TestEvents_ParseLogs_EmptyInput(t *testing.T) {
	t.Parallel()

	require.Empty(t, ParseLogs(nil))
	require.Empty(t, ParseLogs([]string{}))
}
