package console

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strconv"

	"github.com/espressif/esp-matter-sub221/pkg/clusters/otarequestor"
	"github.com/espressif/esp-matter-sub221/pkg/commissioning"
	"github.com/espressif/esp-matter-sub221/pkg/datamodel"
	"github.com/pion/logging"
)

// Device is the node surface the built-in tables drive.
type Device interface {
	DataModel() *datamodel.Node
	SetupPayload() commissioning.SetupPayload
	FactoryReset() error
}

// Updater is the OTA requestor surface of "matter esp ota".
type Updater interface {
	TriggerQuery(ctx context.Context) error
	Apply(ctx context.Context) error
	State() otarequestor.UpdateState
	Progress() int
}

// Options configures the built-in command tables.
type Options struct {
	Device Device

	// OTA enables "matter esp ota" when set.
	OTA Updater

	LoggerFactory logging.LoggerFactory
}

// New returns a root engine holding the "matter" command and its nested
// tables.
func New(opts Options) (*Engine, error) {
	if opts.Device == nil {
		return nil, fmt.Errorf("%w: no device", ErrInvalidArgs)
	}
	if opts.LoggerFactory == nil {
		opts.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	b := &builtins{
		dev: opts.Device,
		ota: opts.OTA,
		log: opts.LoggerFactory.NewLogger("console"),
	}

	esp := NewEngine()
	if err := esp.RegisterCommands(
		Command{"factoryreset", "Erase all data and restart", b.factoryReset},
		Command{"diagnostics", "Diagnostic commands", Dispatch(b.diagnostics())},
		Command{"attribute", "Attribute commands. Usage: matter esp attribute <set|get> ...", Dispatch(b.attribute())},
		Command{"bounds", "Bounds commands. Usage: matter esp bounds get <endpoint> <cluster> <attribute>", Dispatch(b.bounds())},
		Command{"endpoint", "Endpoint commands. Usage: matter esp endpoint <list|enable|disable> ...", Dispatch(b.endpoint())},
	); err != nil {
		return nil, err
	}
	if b.ota != nil {
		if err := esp.RegisterCommands(Command{"ota", "OTA requestor commands", Dispatch(b.otaTable())}); err != nil {
			return nil, err
		}
	}

	matter := NewEngine()
	if err := matter.RegisterCommands(
		Command{"esp", "ESP Matter commands", Dispatch(esp)},
		Command{"onboardingcodes", "Onboarding codes. Usage: matter onboardingcodes [none|softap|ble|onnetwork] [qrcode|manualpairingcode]", b.onboardingCodes},
		Command{"config", "Commissionable data. Usage: matter config <discriminator|pincode|vendorid|productid>", b.config},
	); err != nil {
		return nil, err
	}
	if err := matter.RegisterCommands(Command{"help", "Print this help", func(_ context.Context, _ []string, out io.Writer) error {
		return matter.PrintHelp(out)
	}}); err != nil {
		return nil, err
	}

	root := NewEngine()
	if err := root.RegisterCommands(Command{"matter", "Matter commands", Dispatch(matter)}); err != nil {
		return nil, err
	}
	return root, nil
}

type builtins struct {
	dev Device
	ota Updater
	log logging.LeveledLogger
}

func (b *builtins) factoryReset(_ context.Context, _ []string, out io.Writer) error {
	b.log.Warn("factory reset requested from console")
	if err := b.dev.FactoryReset(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(out, "Factory reset done")
	return err
}

func (b *builtins) diagnostics() *Engine {
	e := NewEngine()
	_ = e.RegisterCommands(Command{"mem-dump", "Print memory statistics", func(_ context.Context, _ []string, out io.Writer) error {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		_, err := fmt.Fprintf(out, "heap alloc: %d\nheap sys: %d\nheap objects: %d\ntotal alloc: %d\nnum gc: %d\ngoroutines: %d\n",
			ms.HeapAlloc, ms.HeapSys, ms.HeapObjects, ms.TotalAlloc, ms.NumGC, runtime.NumGoroutine())
		return err
	}})
	return e
}

// parsePath parses an endpoint, cluster and attribute id triple. Ids are
// decimal or 0x-prefixed hex.
func parsePath(args []string) (datamodel.AttributePath, error) {
	if len(args) < 3 {
		return datamodel.AttributePath{}, fmt.Errorf("%w: want <endpoint> <cluster> <attribute>", ErrInvalidArgs)
	}
	ep, err := strconv.ParseUint(args[0], 0, 16)
	if err != nil {
		return datamodel.AttributePath{}, fmt.Errorf("%w: endpoint %q", ErrInvalidArgs, args[0])
	}
	cl, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		return datamodel.AttributePath{}, fmt.Errorf("%w: cluster %q", ErrInvalidArgs, args[1])
	}
	at, err := strconv.ParseUint(args[2], 0, 32)
	if err != nil {
		return datamodel.AttributePath{}, fmt.Errorf("%w: attribute %q", ErrInvalidArgs, args[2])
	}
	return datamodel.AttributePath{
		Endpoint:  datamodel.EndpointID(ep),
		Cluster:   datamodel.ClusterID(cl),
		Attribute: datamodel.AttributeID(at),
	}, nil
}

func (b *builtins) lookup(args []string) (datamodel.AttributePath, *datamodel.Attribute, error) {
	p, err := parsePath(args)
	if err != nil {
		return p, nil, err
	}
	a := b.dev.DataModel().Attribute(p.Endpoint, p.Cluster, p.Attribute)
	if a == nil {
		return p, nil, fmt.Errorf("%w: %s", datamodel.ErrAttributeNotFound, p)
	}
	return p, a, nil
}

func (b *builtins) attribute() *Engine {
	e := NewEngine()
	_ = e.RegisterCommands(
		Command{"set", "Usage: matter esp attribute set <endpoint> <cluster> <attribute> <value>", func(_ context.Context, args []string, out io.Writer) error {
			if len(args) != 4 {
				return fmt.Errorf("%w: want <endpoint> <cluster> <attribute> <value>", ErrInvalidArgs)
			}
			p, a, err := b.lookup(args)
			if err != nil {
				return err
			}
			val, err := datamodel.ParseVal(a.Type(), args[3])
			if err != nil {
				return err
			}
			return b.dev.DataModel().Update(p.Endpoint, p.Cluster, p.Attribute, val)
		}},
		Command{"get", "Usage: matter esp attribute get <endpoint> <cluster> <attribute>", func(_ context.Context, args []string, out io.Writer) error {
			p, _, err := b.lookup(args)
			if err != nil {
				return err
			}
			node := b.dev.DataModel()
			val, err := node.GetVal(p.Endpoint, p.Cluster, p.Attribute)
			if err != nil {
				return err
			}
			node.ValPrint(p.Endpoint, p.Cluster, p.Attribute, val, true)
			_, err = fmt.Fprintf(out, "%s: %s\n", val.Type, val)
			return err
		}},
	)
	return e
}

func (b *builtins) bounds() *Engine {
	e := NewEngine()
	_ = e.RegisterCommands(Command{"get", "Usage: matter esp bounds get <endpoint> <cluster> <attribute>", func(_ context.Context, args []string, out io.Writer) error {
		_, a, err := b.lookup(args)
		if err != nil {
			return err
		}
		bounds, err := a.Bounds()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "min: %s, max: %s\n", bounds.Min, bounds.Max)
		return err
	}})
	return e
}

func (b *builtins) endpointArg(args []string) (*datamodel.Endpoint, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%w: want <endpoint>", ErrInvalidArgs)
	}
	id, err := strconv.ParseUint(args[0], 0, 16)
	if err != nil {
		return nil, fmt.Errorf("%w: endpoint %q", ErrInvalidArgs, args[0])
	}
	ep := b.dev.DataModel().Endpoint(datamodel.EndpointID(id))
	if ep == nil {
		return nil, fmt.Errorf("%w: 0x%04X", datamodel.ErrEndpointNotFound, id)
	}
	return ep, nil
}

func (b *builtins) endpoint() *Engine {
	e := NewEngine()
	_ = e.RegisterCommands(
		Command{"list", "List endpoints", func(_ context.Context, _ []string, out io.Writer) error {
			for _, ep := range b.dev.DataModel().Endpoints() {
				if _, err := fmt.Fprintf(out, "endpoint 0x%04X enabled=%t", uint16(ep.ID()), ep.IsEnabled()); err != nil {
					return err
				}
				for _, dt := range ep.DeviceTypes() {
					fmt.Fprintf(out, " device-type=0x%04X/%d", uint32(dt.ID), dt.Revision)
				}
				fmt.Fprintf(out, " clusters=%d\n", len(ep.ServerClusters()))
			}
			return nil
		}},
		Command{"enable", "Usage: matter esp endpoint enable <endpoint>", func(_ context.Context, args []string, _ io.Writer) error {
			ep, err := b.endpointArg(args)
			if err != nil {
				return err
			}
			return ep.Enable()
		}},
		Command{"disable", "Usage: matter esp endpoint disable <endpoint>", func(_ context.Context, args []string, _ io.Writer) error {
			ep, err := b.endpointArg(args)
			if err != nil {
				return err
			}
			return ep.Disable()
		}},
	)
	return e
}

func (b *builtins) otaTable() *Engine {
	e := NewEngine()
	_ = e.RegisterCommands(
		Command{"query", "Query the default OTA provider", func(ctx context.Context, _ []string, _ io.Writer) error {
			return b.ota.TriggerQuery(ctx)
		}},
		Command{"state", "Print the OTA requestor state", func(_ context.Context, _ []string, out io.Writer) error {
			_, err := fmt.Fprintf(out, "state: %s progress: %d\n", b.ota.State(), b.ota.Progress())
			return err
		}},
		Command{"apply", "Apply a downloaded image", func(ctx context.Context, _ []string, _ io.Writer) error {
			return b.ota.Apply(ctx)
		}},
	)
	return e
}

func (b *builtins) onboardingCodes(_ context.Context, args []string, out io.Writer) error {
	p := b.dev.SetupPayload()
	if len(args) > 0 {
		r, err := commissioning.ParseRendezvous(args[0])
		if err != nil {
			return err
		}
		p.Rendezvous = r
	}
	kind := ""
	if len(args) > 1 {
		kind = args[1]
	}
	if len(args) > 2 || kind != "" && kind != "qrcode" && kind != "manualpairingcode" {
		return fmt.Errorf("%w: want [none|softap|ble|onnetwork] [qrcode|manualpairingcode]", ErrInvalidArgs)
	}
	if kind == "" || kind == "qrcode" {
		qr, err := commissioning.EncodeQRCode(&p)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "QRCode: %s\n", qr)
	}
	if kind == "" || kind == "manualpairingcode" {
		code, err := commissioning.EncodeManualCode(&p)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "ManualPairingCode: %s\n", code)
	}
	return nil
}

func (b *builtins) config(_ context.Context, args []string, out io.Writer) error {
	p := b.dev.SetupPayload()
	if len(args) == 0 {
		_, err := fmt.Fprintf(out, "VendorId: %d (0x%04X)\nProductId: %d (0x%04X)\nPinCode: %08d\nDiscriminator: %d (0x%03X)\n",
			p.VendorID, p.VendorID, p.ProductID, p.ProductID, p.Passcode, p.Discriminator, p.Discriminator)
		return err
	}
	if len(args) != 1 {
		return fmt.Errorf("%w: want <discriminator|pincode|vendorid|productid>", ErrInvalidArgs)
	}
	var err error
	switch args[0] {
	case "discriminator":
		_, err = fmt.Fprintf(out, "%d\n", p.Discriminator)
	case "pincode":
		_, err = fmt.Fprintf(out, "%08d\n", p.Passcode)
	case "vendorid":
		_, err = fmt.Fprintf(out, "%d\n", p.VendorID)
	case "productid":
		_, err = fmt.Fprintf(out, "%d\n", p.ProductID)
	default:
		return fmt.Errorf("%w: config %s", ErrUnknownCommand, args[0])
	}
	return err
}
