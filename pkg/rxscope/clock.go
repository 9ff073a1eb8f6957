package rxscope

import (
	"fmt"

	"github.com/norasector/rxscope/pkg/rxscope/device"
)

// MaxChannels is the largest ChannelSet supported.
const MaxChannels = 2

// Channel pairs a receive session with the configuration it is set up
// with.
type Channel struct {
	Config  DeviceConfig
	Session *Session
}

func (c *Channel) Name() string {
	return c.Session.Name()
}

// ChannelSet holds one or two receive channels, master first.
type ChannelSet struct {
	channels []*Channel
}

// OrderClockRoles validates the clock roles of a channel set and returns
// the configs with defaults filled in and the master first.
//
// A single channel must be free-running (an empty role means free-running).
// Two channels need exactly one master and one slave-external.
func OrderClockRoles(configs []DeviceConfig) ([]DeviceConfig, error) {
	switch len(configs) {
	case 1:
		cfg := configs[0]
		if cfg.ClockRole == "" {
			cfg.ClockRole = FreeRunning
		}
		if cfg.ClockRole != FreeRunning {
			return nil, &ClockConfigurationError{Channel: cfg.Name, Role: cfg.ClockRole,
				Err: fmt.Errorf("a single channel must be %s", FreeRunning)}
		}
		if cfg.Name == "" {
			cfg.Name = "rx"
		}
		return []DeviceConfig{cfg}, nil
	case 2:
		var master, slave *DeviceConfig
		for i := range configs {
			cfg := configs[i]
			switch cfg.ClockRole {
			case Master:
				if master != nil {
					return nil, &ClockConfigurationError{Err: fmt.Errorf("more than one %s", Master)}
				}
				master = &cfg
			case SlaveExternal:
				if slave != nil {
					return nil, &ClockConfigurationError{Err: fmt.Errorf("more than one %s", SlaveExternal)}
				}
				slave = &cfg
			default:
				return nil, &ClockConfigurationError{Channel: cfg.Name, Role: cfg.ClockRole,
					Err: fmt.Errorf("two channels need roles %s and %s", Master, SlaveExternal)}
			}
		}
		if master.Name == "" {
			master.Name = "master"
		}
		if slave.Name == "" {
			slave.Name = "slave"
		}
		if master.Name == slave.Name {
			return nil, &ClockConfigurationError{Err: fmt.Errorf("duplicate channel name %q", master.Name)}
		}
		return []DeviceConfig{*master, *slave}, nil
	default:
		return nil, &ClockConfigurationError{Err: fmt.Errorf("need 1 to %d channels, got %d", MaxChannels, len(configs))}
	}
}

// NewChannelSet validates clock roles and creates one receive session per
// config. No device is opened until the sessions are configured.
func NewChannelSet(opener device.Opener, configs []DeviceConfig) (*ChannelSet, error) {
	ordered, err := OrderClockRoles(configs)
	if err != nil {
		return nil, err
	}
	set := &ChannelSet{}
	for _, cfg := range ordered {
		set.channels = append(set.channels, &Channel{
			Config:  cfg,
			Session: NewSession(cfg.Name, device.RX, opener),
		})
	}
	return set, nil
}

func (cs *ChannelSet) Len() int {
	return len(cs.channels)
}

// Channels returns the channels in configuration order.
func (cs *ChannelSet) Channels() []*Channel {
	return append([]*Channel(nil), cs.channels...)
}

// dropSlave removes the slave channel, leaving the master free-running.
func (cs *ChannelSet) dropSlave() *Channel {
	if len(cs.channels) != MaxChannels {
		return nil
	}
	slave := cs.channels[1]
	cs.channels = cs.channels[:1]
	return slave
}
