package delivery

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/replyd/internal/channel"
	"github.com/memohai/replyd/internal/config"
	"github.com/memohai/replyd/internal/logger"
)

func TestRegistryRejectsDuplicates(t *testing.T) {
	t.Parallel()
	f := func(channel.Channel, Context) Strategy { return nil }
	_, err := NewRegistry(Registration{Mode: ModeCard, Factory: f}, Registration{Mode: ModeCard, Factory: f})
	require.Error(t, err)
	_, err = NewRegistry(Registration{Mode: ModeCard})
	require.Error(t, err)
}

func TestConfiguredRegistry(t *testing.T) {
	t.Parallel()
	reg, err := NewConfiguredRegistry(logger.Discard(), config.Default().Delivery)
	require.NoError(t, err)
	assert.Equal(t, []Mode{ModeCard, ModeMultiMessage}, reg.Modes())

	s, err := reg.New(ModeCard, &fakeChannel{}, Context{TriggerMessageID: "t"})
	require.NoError(t, err)
	assert.IsType(t, &CardStrategy{}, s)

	s, err = reg.New(ModeMultiMessage, &fakeChannel{}, Context{TriggerMessageID: "t"})
	require.NoError(t, err)
	assert.IsType(t, &MultiMessageStrategy{}, s)

	_, err = reg.New(Mode("carrier_pigeon"), &fakeChannel{}, Context{})
	assert.True(t, errors.Is(err, ErrStrategyNotFound))
}

func TestSelectByChat(t *testing.T) {
	t.Parallel()
	sel := SelectByChat(ModeCard, []string{" oc_multi ", ""})
	assert.Equal(t, ModeMultiMessage, sel(Context{ChatID: "oc_multi"}))
	assert.Equal(t, ModeCard, sel(Context{ChatID: "oc_other"}))
	assert.Equal(t, ModeMultiMessage, Fixed(ModeMultiMessage)(Context{}))
}

func TestParseMode(t *testing.T) {
	t.Parallel()
	cases := map[string]Mode{"": ModeCard, "card": ModeCard, " Multi_Message ": ModeMultiMessage}
	for in, want := range cases {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMode("fax")
	assert.ErrorIs(t, err, ErrStrategyNotFound)
}

func TestConfiguredSelector(t *testing.T) {
	t.Parallel()
	cfg := config.Default().Delivery
	cfg.DefaultMode = "multi_message"
	sel, err := NewConfiguredSelector(cfg)
	require.NoError(t, err)
	assert.Equal(t, ModeMultiMessage, sel(Context{ChatID: "x"}))
}

func TestStripSplitMarkers(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "ab", StripSplitMarkers("a|||b", "|||"))
	assert.Equal(t, "a|||b", StripSplitMarkers("a|||b", ""))
}
