// Package matter starts a Matter device on top of the ESP-Matter data model.
//
// A Node owns the platform side of a device: the data model with its root
// endpoint, the commissionable data (setup payload and SPAKE2+ verifier),
// the operational UDP port, the commissionable DNS-SD advertisement and the
// commissioning window. The protocol stack itself (sessions, PASE/CASE and
// the interaction model) is a collaborator: it receives datagrams through
// NodeConfig.PacketHandler and reports commissioning progress back through
// CommissioningComplete and RemoveFabric.
//
// # Creating a Device
//
//	node, err := matter.NewNode(matter.NodeConfig{
//	    VendorID:      0xFFF1,
//	    ProductID:     0x8000,
//	    DeviceName:    "ESP Light",
//	    Discriminator: 3840,
//	    Passcode:      20202021,
//	    Storage:       storage.NewMemoryStore(),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Add application endpoints
//	light, err := endpoints.CreateExtendedColorLight(node.DataModel(), nil, datamodel.EndpointFlagNone, nil)
//
//	// Start the node
//	if err := node.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Commissioning
//
// An uncommissioned node opens a basic commissioning window when started
// and advertises _matterc._udp until the window closes. To reopen it:
//
//	node.OpenCommissioningWindow(3 * time.Minute)
//	qr, _ := node.QRCode()
//
// # Events
//
// NodeConfig.OnEvent receives a DeviceEvent for start, window and fabric
// changes, factory reset and OTA requestor transitions.
package matter
