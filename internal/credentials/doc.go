// Package credentials turns the three credential references of a broker
// connection (CA bundle, client certificate, private key) into a client
// tls.Config.
//
// A Store keeps the active configuration and can swap it when the files are
// rotated on disk (see Store.Watch). Connections that are already open keep
// the material they were established with; the next connect picks up the
// new material.
//
// # Usage
//
//	store, err := credentials.NewStore(credentials.Files{
//	    CAFile:   "/etc/brokerlink/ca.pem",
//	    CertFile: "/etc/brokerlink/device.pem",
//	    KeyFile:  "/etc/brokerlink/device.key",
//	}, "1.2")
//	if err != nil {
//	    return err
//	}
//	go store.Watch(ctx)
package credentials
