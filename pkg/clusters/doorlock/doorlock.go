// Package doorlock implements the Door Lock cluster (0x0101).
//
// LockDoor and UnlockDoor drive an optional Actuator and then update
// LockState. Unlocking with a non-zero AutoRelockTime locks the door again
// once the time has passed.
package doorlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/espressif/esp-matter-sub221/pkg/clusters"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
	"github.com/espressif/esp-matter-sub221/pkg/tlv"
)

// Cluster constants.
const (
	ClusterID       datamodel.ClusterID = 0x0101
	ClusterRevision uint16              = 7
)

// Attribute IDs.
const (
	AttrLockState               datamodel.AttributeID = 0x0000
	AttrLockType                datamodel.AttributeID = 0x0001
	AttrActuatorEnabled         datamodel.AttributeID = 0x0002
	AttrAutoRelockTime          datamodel.AttributeID = 0x0023
	AttrOperatingMode           datamodel.AttributeID = 0x0025
	AttrSupportedOperatingModes datamodel.AttributeID = 0x0026
)

// Command IDs.
const (
	CmdLockDoor          datamodel.CommandID = 0x00
	CmdUnlockDoor        datamodel.CommandID = 0x01
	CmdUnlockWithTimeout datamodel.CommandID = 0x03
)

// Event IDs.
const (
	EventDoorLockAlarm datamodel.EventID = 0x00
	EventLockOperation datamodel.EventID = 0x02
)

// LockState values.
type LockState uint8

const (
	LockStateNotFullyLocked LockState = 0
	LockStateLocked         LockState = 1
	LockStateUnlocked       LockState = 2
	LockStateUnlatched      LockState = 3
)

func (s LockState) String() string {
	switch s {
	case LockStateNotFullyLocked:
		return "NotFullyLocked"
	case LockStateLocked:
		return "Locked"
	case LockStateUnlocked:
		return "Unlocked"
	case LockStateUnlatched:
		return "Unlatched"
	}
	return fmt.Sprintf("LockState(%d)", uint8(s))
}

// LockType values.
const (
	LockTypeDeadBolt uint8 = 0
	LockTypeMagnetic uint8 = 1
	LockTypeOther    uint8 = 2
)

// OperatingMode values.
const (
	OperatingModeNormal             uint8 = 0
	OperatingModeVacation           uint8 = 1
	OperatingModePrivacy            uint8 = 2
	OperatingModeNoRemoteLockUnlock uint8 = 3
	OperatingModePassage            uint8 = 4
)

// Actuator moves the physical lock. pin is the PINCode field of the
// command, nil when absent.
type Actuator interface {
	Operate(ctx context.Context, state LockState, pin []byte) error
}

// ActuatorFunc adapts a function to Actuator.
type ActuatorFunc func(ctx context.Context, state LockState, pin []byte) error

// Operate calls f.
func (f ActuatorFunc) Operate(ctx context.Context, state LockState, pin []byte) error {
	return f(ctx, state, pin)
}

// Config holds the initial attribute values.
type Config struct {
	LockState       LockState
	LockType        uint8
	ActuatorEnabled bool
	AutoRelockTime  uint32
	OperatingMode   uint8
	// SupportedOperatingModes has a cleared bit for each supported mode.
	SupportedOperatingModes uint16
	Actuator                Actuator
}

// DefaultConfig returns a locked dead bolt supporting every mode.
func DefaultConfig() *Config {
	return &Config{
		LockState:               LockStateLocked,
		LockType:                LockTypeDeadBolt,
		ActuatorEnabled:         true,
		SupportedOperatingModes: 0xFFE0,
	}
}

// Errors returned by the lock commands.
var (
	ErrActuatorDisabled = errors.New("doorlock: actuator disabled")
	ErrRemoteDisabled   = errors.New("doorlock: remote lock and unlock disabled")
)

// lock is the delegate of a server instance.
type lock struct {
	mu       sync.Mutex
	actuator Actuator
	relock   *time.Timer
}

var pluginInit = clusters.Once(func() {})

// Create adds the Door Lock cluster to ep.
func Create(ep *datamodel.Endpoint, cfg *Config, flags datamodel.ClusterFlags) (*datamodel.Cluster, error) {
	var c *datamodel.Cluster
	c, err := clusters.Create(ep, clusters.Spec{
		ID:       ClusterID,
		Revision: ClusterRevision,
		Functions: datamodel.ClusterFunctions{
			Shutdown: func(datamodel.EndpointID) { stopRelock(c) },
		},
		PluginInit: pluginInit,
	}, flags)
	if err != nil {
		return nil, err
	}
	l := &lock{}
	if cfg != nil {
		l.actuator = cfg.Actuator
	}
	c.SetDelegateAndInitCallback(nil, l)
	if flags&datamodel.ClusterFlagServer != 0 {
		c.SetAddBoundsCallback(addBounds)
		if cfg == nil {
			ep.Node().LoggerFactory().NewLogger("cluster").Errorf("Config is NULL. Cannot add some attributes.")
		} else if err := clusters.CreateAttributes(c,
			clusters.Attr{ID: AttrLockState, Flags: datamodel.AttributeFlagNullable, Val: datamodel.NullableEnum8(uint8(cfg.LockState))},
			clusters.Attr{ID: AttrLockType, Val: datamodel.Enum8(cfg.LockType)},
			clusters.Attr{ID: AttrActuatorEnabled, Val: datamodel.Bool(cfg.ActuatorEnabled)},
			clusters.Attr{ID: AttrAutoRelockTime, Flags: datamodel.AttributeFlagWritable, Val: datamodel.Uint32(cfg.AutoRelockTime)},
			clusters.Attr{ID: AttrOperatingMode, Flags: datamodel.AttributeFlagWritable, Val: datamodel.Enum8(cfg.OperatingMode)},
			clusters.Attr{ID: AttrSupportedOperatingModes, Val: datamodel.Bitmap16(cfg.SupportedOperatingModes)},
		); err != nil {
			return nil, clusters.Abort(c, err)
		}
		if err := clusters.CreateEvents(c, EventDoorLockAlarm, EventLockOperation); err != nil {
			return nil, clusters.Abort(c, err)
		}
	}
	if err := clusters.CreateCommands(c,
		clusters.Cmd{ID: CmdLockDoor, Flags: datamodel.CommandFlagAccepted, Callback: handleOperate(c, LockStateLocked)},
		clusters.Cmd{ID: CmdUnlockDoor, Flags: datamodel.CommandFlagAccepted, Callback: handleOperate(c, LockStateUnlocked)},
	); err != nil {
		return nil, clusters.Abort(c, err)
	}
	return c, nil
}

// CommandUnlockWithTimeoutCreate adds the optional UnlockWithTimeout
// command.
func CommandUnlockWithTimeoutCreate(c *datamodel.Cluster) error {
	return clusters.CreateCommands(c, clusters.Cmd{
		ID: CmdUnlockWithTimeout, Flags: datamodel.CommandFlagAccepted, Callback: handleUnlockWithTimeout(c),
	})
}

func addBounds(c *datamodel.Cluster) {
	if a := c.Attribute(AttrOperatingMode); a != nil {
		_ = a.AddBounds(datamodel.Enum8(OperatingModeNormal), datamodel.Enum8(OperatingModePassage))
	}
}

// SetActuator attaches a to c.
func SetActuator(c *datamodel.Cluster, a Actuator) {
	if l := delegate(c); l != nil {
		l.mu.Lock()
		l.actuator = a
		l.mu.Unlock()
	}
}

func delegate(c *datamodel.Cluster) *lock {
	d, _ := c.Delegate()
	l, _ := d.(*lock)
	return l
}

// State returns LockState and false when it is null.
func State(c *datamodel.Cluster) (LockState, bool) {
	v := clusters.Get(c, AttrLockState)
	if v.Type == datamodel.ValTypeInvalid || v.IsNull() {
		return 0, false
	}
	return LockState(v.Uint()), true
}

// SetState reports a lock state observed by the application, for
// example a manual turn of the key.
func SetState(c *datamodel.Cluster, s LockState) error {
	return clusters.Set(c, AttrLockState, datamodel.NullableEnum8(uint8(s)))
}

// Operate drives the lock to state as a remote command would.
func Operate(ctx context.Context, c *datamodel.Cluster, state LockState, pin []byte) error {
	if !clusters.Get(c, AttrActuatorEnabled).Bool() {
		return ErrActuatorDisabled
	}
	if uint8(clusters.Get(c, AttrOperatingMode).Uint()) == OperatingModeNoRemoteLockUnlock {
		return ErrRemoteDisabled
	}
	l := delegate(c)
	l.mu.Lock()
	a := l.actuator
	l.mu.Unlock()
	if a != nil {
		if err := a.Operate(ctx, state, pin); err != nil {
			return fmt.Errorf("%w: %v", datamodel.ErrFailure, err)
		}
	}
	stopRelock(c)
	return SetState(c, state)
}

func handleOperate(c *datamodel.Cluster, state LockState) datamodel.CommandCallback {
	return func(ctx context.Context, path datamodel.CommandPath, r *tlv.Reader, priv any) ([]byte, error) {
		f, err := clusters.DecodeFields(r)
		if err != nil {
			return nil, err
		}
		pin, _ := f.Bytes(0)
		if err := Operate(ctx, c, state, pin); err != nil {
			return nil, err
		}
		if state == LockStateUnlocked {
			if secs := clusters.Get(c, AttrAutoRelockTime).Uint(); secs > 0 {
				scheduleRelock(c, time.Duration(secs)*time.Second)
			}
		}
		return nil, nil
	}
}

func handleUnlockWithTimeout(c *datamodel.Cluster) datamodel.CommandCallback {
	return func(ctx context.Context, path datamodel.CommandPath, r *tlv.Reader, priv any) ([]byte, error) {
		f, err := clusters.DecodeFields(r)
		if err != nil {
			return nil, err
		}
		timeout, err := f.Uint(0)
		if err != nil {
			return nil, err
		}
		if timeout == 0 || timeout > 0xFFFF {
			return nil, clusters.ErrInvalidRequest
		}
		pin, _ := f.Bytes(1)
		if err := Operate(ctx, c, LockStateUnlocked, pin); err != nil {
			return nil, err
		}
		scheduleRelock(c, time.Duration(timeout)*time.Second)
		return nil, nil
	}
}

func scheduleRelock(c *datamodel.Cluster, d time.Duration) {
	l := delegate(c)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.relock != nil {
		l.relock.Stop()
	}
	l.relock = time.AfterFunc(d, func() {
		log := c.Endpoint().Node().LoggerFactory().NewLogger("cluster")
		if err := Operate(context.Background(), c, LockStateLocked, nil); err != nil {
			log.Warnf("Auto relock on endpoint 0x%04X failed: %v", uint16(c.EndpointID()), err)
		}
	})
}

func stopRelock(c *datamodel.Cluster) {
	l := delegate(c)
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.relock != nil {
		l.relock.Stop()
		l.relock = nil
	}
}

// LockOperationEvent is the LockOperation payload.
type LockOperationEvent struct {
	// OperationType is 0 for lock and 1 for unlock.
	OperationType uint8
	// OperationSource is 7 for remote.
	OperationSource uint8
	UserIndex   *uint16
	FabricIndex datamodel.FabricIndex
}

// EmitLockOperation sends a LockOperation event for c to sink.
func EmitLockOperation(sink clusters.EventSink, c *datamodel.Cluster, ev LockOperationEvent) error {
	e := clusters.NewCommandEncoder().Uint(0, uint64(ev.OperationType)).Uint(1, uint64(ev.OperationSource))
	if ev.UserIndex != nil {
		e.Uint(2, uint64(*ev.UserIndex))
	} else {
		e.Null(2)
	}
	if ev.FabricIndex != 0 {
		e.Uint(3, uint64(ev.FabricIndex))
	} else {
		e.Null(3)
	}
	payload, err := e.Finish()
	if err != nil {
		return err
	}
	return clusters.Emit(sink, c, EventLockOperation, payload)
}
