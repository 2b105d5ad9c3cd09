// Package identify implements the Identify cluster (0x0003).
//
// IdentifyTime counts the seconds left. Writing it, or the Identify
// command, starts and stops the endpoint's identification through the
// node identification callback.
package identify

import (
	"context"
	"sync"
	"time"

	"github.com/espressif/esp-matter-sub221/pkg/clusters"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
	"github.com/espressif/esp-matter-sub221/pkg/tlv"
)

// Cluster constants.
const (
	ClusterID       datamodel.ClusterID = datamodel.IdentifyClusterID
	ClusterRevision uint16              = 5
)

// Attribute IDs.
const (
	AttrIdentifyTime datamodel.AttributeID = datamodel.IdentifyTimeAttributeID
	AttrIdentifyType datamodel.AttributeID = datamodel.IdentifyTypeAttributeID
)

// Command IDs.
const (
	CmdIdentify      datamodel.CommandID = 0x00
	CmdTriggerEffect datamodel.CommandID = 0x40
)

// IdentifyType values.
const (
	TypeNone             uint8 = 0
	TypeLightOutput      uint8 = 1
	TypeVisibleIndicator uint8 = 2
	TypeAudibleBeep      uint8 = 3
	TypeDisplay          uint8 = 4
	TypeActuator         uint8 = 5
)

// Effect identifiers for TriggerEffect.
const (
	EffectBlink         uint8 = 0x00
	EffectBreathe       uint8 = 0x01
	EffectOkay          uint8 = 0x02
	EffectChannelChange uint8 = 0x0B
	EffectFinish        uint8 = 0xFE
	EffectStop          uint8 = 0xFF
)

// Config holds the initial attribute values.
type Config struct {
	IdentifyTime uint16
	IdentifyType uint8
}

// DefaultConfig identifies with the light output.
func DefaultConfig() *Config {
	return &Config{IdentifyType: TypeLightOutput}
}

var pluginInit = clusters.Once(func() {})

// tick is the IdentifyTime countdown step.
var tick = time.Second

type server struct {
	c *datamodel.Cluster

	mu   sync.Mutex
	stop chan struct{}
}

// Create adds the Identify cluster to ep.
func Create(ep *datamodel.Endpoint, cfg *Config, flags datamodel.ClusterFlags) (*datamodel.Cluster, error) {
	c, err := clusters.Create(ep, clusters.Spec{
		ID:         ClusterID,
		Revision:   ClusterRevision,
		PluginInit: pluginInit,
	}, flags)
	if err != nil {
		return nil, err
	}
	s := &server{c: c}
	if flags&datamodel.ClusterFlagServer != 0 {
		c.SetFunctions(datamodel.ClusterFunctions{
			AttributeChanged: s.attributeChanged,
			Shutdown:         func(datamodel.EndpointID) { s.stopTimer() },
		})
		if cfg == nil {
			ep.Node().LoggerFactory().NewLogger("cluster").Errorf("Config is NULL. Cannot add some attributes.")
		} else if err := clusters.CreateAttributes(c,
			clusters.Attr{ID: AttrIdentifyTime, Flags: datamodel.AttributeFlagWritable, Val: datamodel.Uint16(cfg.IdentifyTime)},
			clusters.Attr{ID: AttrIdentifyType, Val: datamodel.Enum8(cfg.IdentifyType)},
		); err != nil {
			return nil, clusters.Abort(c, err)
		}
	}
	if err := clusters.CreateCommands(c,
		clusters.Cmd{ID: CmdIdentify, Flags: datamodel.CommandFlagAccepted, Callback: s.handleIdentify},
		clusters.Cmd{ID: CmdTriggerEffect, Flags: datamodel.CommandFlagAccepted, Callback: s.handleTriggerEffect},
	); err != nil {
		return nil, clusters.Abort(c, err)
	}
	return c, nil
}

// attributeChanged starts identification and the countdown for a non-zero
// IdentifyTime and stops both at zero. A write while counting down only
// changes the remaining time.
func (s *server) attributeChanged(path datamodel.AttributePath) {
	if path.Attribute != AttrIdentifyTime {
		return
	}
	id := s.c.Endpoint().Identify()
	if id == nil {
		return
	}
	if clusters.Get(s.c, AttrIdentifyTime).Uint() == 0 {
		s.stopTimer()
		_ = id.Stop()
		return
	}
	s.mu.Lock()
	running := s.stop != nil
	if !running {
		s.stop = make(chan struct{})
		go s.countdown(s.stop)
	}
	s.mu.Unlock()
	if !running {
		_ = id.Start(0)
	}
}

// countdown decrements IdentifyTime once per tick until it reaches zero
// or stop is closed.
func (s *server) countdown(stop chan struct{}) {
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
		}
		select {
		case <-stop:
			return
		default:
		}
		left := clusters.Get(s.c, AttrIdentifyTime).Uint()
		if left == 0 {
			return
		}
		_ = clusters.Set(s.c, AttrIdentifyTime, datamodel.Uint16(uint16(left-1)))
	}
}

func (s *server) stopTimer() {
	s.mu.Lock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.mu.Unlock()
}

func (s *server) handleIdentify(ctx context.Context, path datamodel.CommandPath, r *tlv.Reader, priv any) ([]byte, error) {
	f, err := clusters.DecodeFields(r)
	if err != nil {
		return nil, err
	}
	secs, err := f.Uint(0)
	if err != nil {
		return nil, err
	}
	if secs > 0xFFFF {
		return nil, clusters.ErrInvalidRequest
	}
	return nil, clusters.Set(s.c, AttrIdentifyTime, datamodel.Uint16(uint16(secs)))
}

func (s *server) handleTriggerEffect(ctx context.Context, path datamodel.CommandPath, r *tlv.Reader, priv any) ([]byte, error) {
	f, err := clusters.DecodeFields(r)
	if err != nil {
		return nil, err
	}
	effect, err := f.Uint(0)
	if err != nil {
		return nil, err
	}
	variant := f.UintOr(1, 0)
	id := s.c.Endpoint().Identify()
	if id == nil {
		return nil, datamodel.ErrInvalidState
	}
	if uint8(effect) == EffectStop {
		return nil, clusters.Set(s.c, AttrIdentifyTime, datamodel.Uint16(0))
	}
	return nil, id.TriggerEffect(uint8(effect), uint8(variant))
}
