package rxscope

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/norasector/rxscope/pkg/rxscope/device"
)

func TestOrderClockRoles(t *testing.T) {
	tests := []struct {
		name      string
		configs   []DeviceConfig
		wantNames []string
		wantRoles []ClockRole
		wantErr   bool
	}{
		{"single default", []DeviceConfig{{}}, []string{"rx"}, []ClockRole{FreeRunning}, false},
		{"single free-running", []DeviceConfig{{Name: "a", ClockRole: FreeRunning}}, []string{"a"}, []ClockRole{FreeRunning}, false},
		{"single master", []DeviceConfig{{ClockRole: Master}}, nil, nil, true},
		{"single slave", []DeviceConfig{{ClockRole: SlaveExternal}}, nil, nil, true},
		{"pair", dualConfigs(), []string{"master", "slave"}, []ClockRole{Master, SlaveExternal}, false},
		{"two masters", []DeviceConfig{{ClockRole: Master}, {ClockRole: Master}}, nil, nil, true},
		{"two slaves", []DeviceConfig{{ClockRole: SlaveExternal}, {ClockRole: SlaveExternal}}, nil, nil, true},
		{"pair without roles", []DeviceConfig{{}, {}}, nil, nil, true},
		{"pair free-running", []DeviceConfig{{ClockRole: FreeRunning}, {ClockRole: Master}}, nil, nil, true},
		{"duplicate names", []DeviceConfig{{Name: "x", ClockRole: Master}, {Name: "x", ClockRole: SlaveExternal}}, nil, nil, true},
		{"none", nil, nil, nil, true},
		{"three", []DeviceConfig{{ClockRole: Master}, {ClockRole: SlaveExternal}, {ClockRole: SlaveExternal}}, nil, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OrderClockRoles(tt.configs)
			if tt.wantErr {
				var clockErr *ClockConfigurationError
				require.True(t, errors.As(err, &clockErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			var names []string
			var roles []ClockRole
			for _, cfg := range got {
				names = append(names, cfg.Name)
				roles = append(roles, cfg.ClockRole)
			}
			assert.Equal(t, tt.wantNames, names)
			assert.Equal(t, tt.wantRoles, roles)
		})
	}
}

func TestNewChannelSetOpensNothing(t *testing.T) {
	master := newFakeDevice("master-dev", false)
	slave := newFakeDevice("slave-dev", true)
	set, err := NewChannelSet(fakeOpener{"master-dev": master, "slave-dev": slave}, dualConfigs())
	require.NoError(t, err)
	require.Equal(t, 2, set.Len())
	chans := set.Channels()
	assert.Equal(t, "master", chans[0].Name())
	assert.Equal(t, "master-dev", chans[0].Config.Identity)
	assert.Nil(t, chans[0].Session.Device())
	assert.Nil(t, chans[1].Session.Device())

	_, err = NewChannelSet(fakeOpener{}, []DeviceConfig{{ClockRole: Master}, {ClockRole: Master}})
	var clockErr *ClockConfigurationError
	assert.True(t, errors.As(err, &clockErr))
}

func TestSessionConfigure(t *testing.T) {
	dev := newFakeDevice("dev", true)
	opener := fakeOpener{"dev": dev}
	cfg := DeviceConfig{Identity: "dev", SampleRate: 2e6, CenterFreq: 863.5e6, Gain: 40, DCOffset: true, ClockRole: SlaveExternal}

	var confErr *ConfigurationError

	s := NewSession("rx", device.RX, opener)
	bad := cfg
	bad.SampleRate = 0
	require.True(t, errors.As(s.Configure(bad), &confErr))
	bad = cfg
	bad.CenterFreq = -1
	require.True(t, errors.As(s.Configure(bad), &confErr))

	missing := cfg
	missing.Identity = "nope"
	err := s.Configure(missing)
	require.True(t, errors.As(err, &confErr))
	assert.True(t, errors.Is(err, device.ErrUnknownDriver))

	require.NoError(t, s.Configure(cfg))
	assert.Equal(t, 2e6, dev.sampleRate)
	assert.Equal(t, 863.5e6, dev.centerFreq)
	assert.Equal(t, 40.0, dev.gain)
	assert.True(t, dev.dcOffset)
	assert.Equal(t, device.ClockExternal, dev.clock)
	assert.Equal(t, cfg, s.Config())
}

func TestSessionSlaveNeedsExternalClock(t *testing.T) {
	dev := newFakeDevice("dev", false)
	s := NewSession("slave", device.RX, fakeOpener{"dev": dev})
	err := s.Configure(DeviceConfig{Identity: "dev", SampleRate: 1e6, CenterFreq: 1e8, ClockRole: SlaveExternal})
	var clockErr *ClockConfigurationError
	require.True(t, errors.As(err, &clockErr), "got %v", err)
	assert.Equal(t, "slave", clockErr.Channel)
	assert.True(t, errors.Is(err, device.ErrUnsupported))

	// Masters keep whatever reference the board picks.
	master := NewSession("master", device.RX, fakeOpener{"dev": dev})
	require.NoError(t, master.Configure(DeviceConfig{Identity: "dev", SampleRate: 1e6, CenterFreq: 1e8, ClockRole: Master}))
	assert.Equal(t, device.ClockInternal, dev.clock)
}

func TestSessionLifecycleOrder(t *testing.T) {
	dev := newFakeDevice("dev", false)
	s := NewSession("rx", device.RX, fakeOpener{"dev": dev})
	cfg := DeviceConfig{Identity: "dev", SampleRate: 1e6, CenterFreq: 1e8, ClockRole: FreeRunning}

	var lcErr *LifecycleError
	require.True(t, errors.As(s.OpenStream(device.FormatCF32), &lcErr), "open before configure")
	require.True(t, errors.As(s.Activate(), &lcErr), "activate before open")
	require.True(t, errors.As(s.Deactivate(), &lcErr), "deactivate before open")
	_, err := s.Read(make([]complex64, 4), time.Millisecond)
	require.True(t, errors.As(err, &lcErr), "read before open")

	require.NoError(t, s.Configure(cfg))
	require.NoError(t, s.OpenStream(device.FormatCF32))
	assert.Equal(t, StreamOpened, s.State())
	require.True(t, errors.As(s.OpenStream(device.FormatCF32), &lcErr), "second open")
	require.True(t, errors.As(s.Configure(cfg), &lcErr), "configure with open stream")

	_, err = s.Read(make([]complex64, 4), time.Millisecond)
	require.True(t, errors.As(err, &lcErr), "read before activate")

	require.NoError(t, s.Activate())
	require.NoError(t, s.Activate())
	assert.Equal(t, StreamActivated, s.State())
	assert.Equal(t, 1, dev.streams[0].activated)

	n, err := s.Read(make([]complex64, 4), time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	require.NoError(t, s.Deactivate())
	require.NoError(t, s.Deactivate())
	assert.Equal(t, StreamDeactivated, s.State())
	assert.Equal(t, 1, dev.streams[0].deactivated)

	// Reactivation after a pause is allowed.
	require.NoError(t, s.Activate())
	require.NoError(t, s.Deactivate())

	require.NoError(t, s.CloseStream())
	require.NoError(t, s.CloseStream())
	assert.Equal(t, StreamClosed, s.State())
	assert.Equal(t, 1, dev.streams[0].closed)
	require.True(t, errors.As(s.Activate(), &lcErr), "activate after close")

	require.NoError(t, s.Close())
	assert.Equal(t, 1, dev.closeCount())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, dev.closeCount())
}

func TestReader(t *testing.T) {
	dev := newFakeDevice("dev", false)
	dev.script = []readResult{
		{n: 3},
		{n: 0},
		{err: device.ErrTimeout},
		{err: device.ErrOverflow},
		{err: device.ErrStreamClosed},
		{err: errors.New("usb gone")},
		{n: -3},
		{n: 99},
	}
	s := NewSession("rx", device.RX, fakeOpener{"dev": dev})
	require.NoError(t, s.Configure(DeviceConfig{Identity: "dev", SampleRate: 1e6, CenterFreq: 1e8}))
	require.NoError(t, s.OpenStream(device.FormatCF32))

	r := NewReader(s, 8, time.Millisecond)
	assert.Equal(t, 8, r.Capacity())

	_, err := r.Read()
	var lcErr *LifecycleError
	require.True(t, errors.As(err, &lcErr), "read on inactive stream")
	dev.streams[0].reads = 0
	require.NoError(t, s.Activate())

	b, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, 3, b.Valid)
	assert.Len(t, b.Samples(), 3)
	assert.Len(t, b.Data, 8)
	first := &b.Data[0]

	b, err = r.Read()
	require.NoError(t, err)
	assert.Equal(t, 0, b.Valid)
	assert.Nil(t, b.Samples())
	assert.Same(t, first, &b.Data[0], "scratch buffer reused")

	for _, code := range []int{CodeTimeout, CodeOverflow, CodeStreamError, CodeOther, CodeOther} {
		b, err = r.Read()
		var acqErr *AcquisitionError
		require.True(t, errors.As(err, &acqErr))
		assert.Equal(t, code, acqErr.Code)
		assert.Equal(t, "rx", acqErr.Channel)
		assert.Zero(t, b.Valid)
	}
	assert.ErrorIs(t, err, ErrNegativeCount, "negative count is an acquisition failure")

	b, err = r.Read()
	require.NoError(t, err)
	assert.Equal(t, 8, b.Valid, "clamped to capacity")
}
