// Package gatt provides a Bluetooth Low Energy GATT attribute model.
//
// Gatt (Generic Attribute Profile) is the protocol used to write
// BLE peripherals (servers) and centrals (clients). This package models
// the attributes both sides deal with: services, characteristics with
// their properties, security modes and length-checked values,
// descriptors, and the client characteristic configuration (CCCD).
//
// ROLES
//
// Every characteristic is either Local or Remote.
//
// Local characteristics are hosted by a Server. Their values are
// authoritative: setting one notifies or indicates the centrals that
// subscribed to it. The radio driver hands the server reads and writes
// from connected centrals; the server checks properties and link
// security and answers with ATT error codes.
//
// Remote characteristics are discovered on a peer and owned by a Peer.
// Their values are a cache. Setting one updates the cache at once and
// queues a write to the peer through a Driver; if the peer rejects the
// write, the cache is reverted and the failure is reported. When the
// peer disconnects, its characteristics become invalid.
//
// USAGE
//
// Gatt servers are constructed by creating a new server, adding
// services and characteristics, and then starting the server.
//
//     srv := gatt.NewServer(gatt.Name("gophergatt"))
//     svc, _ := srv.AddService(gatt.MustParseUUID("09fc95c0-c111-11e3-9904-0002a5d5c51b"))
//
//     // Add a write characteristic that logs when written to
//     wchar, _ := svc.AddCharacteristic(gatt.MustParseUUID("16fe0d80-c111-11e3-b8c8-0002a5d5c51b"),
//     	gatt.CharWrite, gatt.MaxLength(64))
//     wchar.HandleWriteFunc(
//     	func(r gatt.Request, data []byte) gatt.AttError {
//     		log.Println("Wrote:", string(data))
//     		return gatt.ErrSuccess
//     	})
//
//     // Add a notify characteristic; subscribers get every new value
//     nchar, _ := svc.AddCharacteristic(gatt.MustParseUUID("1c927b50-c116-11e3-8a33-0800200c9a66"),
//     	gatt.CharRead|gatt.CharNotify)
//
//     // Lay out the attribute table
//     srv.Start()
//     nchar.SetValue([]byte("count: 1"))
//
// Attribute construction errors wrap ErrInvalidArgument, ErrLength,
// ErrRole or ErrDisconnected; use errors.Cause to tell them apart.
//
// Note that some BLE central devices, particularly iOS, may aggressively
// cache results from previous connections. If you change your services or
// characteristics, you may need to reboot the other device to pick up the
// changes.
package gatt
