package generalcommissioning

import (
	"context"

	"github.com/espressif/esp-matter-sub221/pkg/clusters"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
	"github.com/espressif/esp-matter-sub221/pkg/tlv"
)

func (s *server) read(ctx context.Context, path datamodel.AttributePath, w *tlv.Writer, tag tlv.Tag) error {
	if path.Attribute != AttrBasicCommissioningInfo {
		return datamodel.ErrUnsupportedRead
	}
	info := s.cfg.BasicCommissioningInfo
	if err := w.StartStructure(tag); err != nil {
		return err
	}
	if err := w.PutUint(tlv.ContextTag(0), uint64(info.FailSafeExpiryLengthSeconds)); err != nil {
		return err
	}
	if err := w.PutUint(tlv.ContextTag(1), uint64(info.MaxCumulativeFailsafeSeconds)); err != nil {
		return err
	}
	return w.EndContainer()
}

func response(code CommissioningErrorCode, debugText string) ([]byte, error) {
	return clusters.NewCommandEncoder().Uint(0, uint64(code)).String(1, debugText).Finish()
}

func (s *server) setBreadcrumb(v uint64) {
	if s.c.IsServer() {
		_ = clusters.Set(s.c, AttrBreadcrumb, datamodel.Uint64(v))
	}
}

func (s *server) windowOpen() bool {
	return s.cfg.Window != nil && s.cfg.Window.IsCommissioningWindowOpen()
}

// handleArmFailSafe arms, extends or disarms the fail-safe. A zero expiry
// disarms. Only the fabric that armed the fail-safe may touch it again.
func (s *server) handleArmFailSafe(ctx context.Context, path datamodel.CommandPath, r *tlv.Reader, priv any) ([]byte, error) {
	f, err := clusters.DecodeFields(r)
	if err != nil {
		return nil, err
	}
	expiry, err := f.Uint(0)
	if err != nil {
		return nil, err
	}
	if expiry > 0xFFFF {
		return nil, clusters.ErrInvalidRequest
	}
	breadcrumb, err := f.Uint(1)
	if err != nil {
		return nil, err
	}
	fabricIndex := datamodel.FabricIndexFromContext(ctx)

	code, text := CommissioningOK, ""
	fs := s.cfg.FailSafe
	switch {
	case fs == nil:
	case !fs.IsArmed() && s.windowOpen() && fabricIndex != 0:
		// CASE sessions may not arm while a PASE commissioner owns the window.
		code, text = CommissioningBusyWithOtherAdmin, "commissioning window is open"
	case fs.IsArmed() && fs.ArmedFabricIndex() != fabricIndex:
		code, text = CommissioningBusyWithOtherAdmin, "fail-safe armed by different fabric"
	case expiry == 0:
		if fs.IsArmed() {
			if err := fs.Disarm(fabricIndex); err != nil {
				code, text = CommissioningNoFailSafe, err.Error()
			}
		}
	case fs.IsArmed():
		if err := fs.ExtendArm(fabricIndex, uint16(expiry)); err != nil {
			code, text = CommissioningNoFailSafe, err.Error()
		}
	default:
		if err := fs.Arm(fabricIndex, uint16(expiry)); err != nil {
			code, text = CommissioningNoFailSafe, err.Error()
		}
	}
	if code == CommissioningOK {
		s.setBreadcrumb(breadcrumb)
	}
	return response(code, text)
}

func (s *server) handleSetRegulatoryConfig(ctx context.Context, path datamodel.CommandPath, r *tlv.Reader, priv any) ([]byte, error) {
	f, err := clusters.DecodeFields(r)
	if err != nil {
		return nil, err
	}
	v, err := f.Uint(0)
	if err != nil {
		return nil, err
	}
	country, err := f.String(1)
	if err != nil {
		return nil, err
	}
	breadcrumb, err := f.Uint(2)
	if err != nil {
		return nil, err
	}
	if len(country) != 2 {
		return nil, clusters.ErrInvalidRequest
	}
	cfg := RegulatoryLocationType(v)
	if cfg > RegulatoryIndoorOutdoor {
		return response(CommissioningValueOutsideRange, "unknown location type")
	}
	if capability := s.cfg.LocationCapability; capability != RegulatoryIndoorOutdoor && cfg != capability {
		return response(CommissioningValueOutsideRange, "device is "+capability.String()+" only")
	}
	if s.c.IsServer() {
		if err := clusters.Set(s.c, AttrRegulatoryConfig, datamodel.Enum8(uint8(cfg))); err != nil {
			return nil, err
		}
	}
	s.setBreadcrumb(breadcrumb)
	return response(CommissioningOK, "")
}

func (s *server) handleCommissioningComplete(ctx context.Context, path datamodel.CommandPath, r *tlv.Reader, priv any) ([]byte, error) {
	fabricIndex := datamodel.FabricIndexFromContext(ctx)
	code, text := CommissioningOK, ""
	switch fs := s.cfg.FailSafe; {
	case fs == nil:
	case !fs.IsArmed():
		code, text = CommissioningNoFailSafe, "fail-safe not armed"
	case fs.ArmedFabricIndex() != fabricIndex:
		code, text = CommissioningInvalidAuthentication, "fail-safe armed by different fabric"
	default:
		if err := fs.Complete(fabricIndex); err != nil {
			code, text = CommissioningNoFailSafe, err.Error()
		}
	}
	if code == CommissioningOK {
		s.setBreadcrumb(0)
	}
	return response(code, text)
}
