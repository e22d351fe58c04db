// Package transport provides the secure stream a broker session runs over: a
// TCP connection upgraded to TLS with mutual authentication.
//
// Connecting is asynchronous. ConnectEncrypted returns at once and the
// attempt reports its progress through a Handler (OnConnected, OnEncrypted,
// OnError, OnDisconnected) and through State. WaitForEncrypted gives callers
// a bounded wait on the current attempt.
//
// The session layer does not dial on its own. It obtains the established
// stream through Open, and failures seen on that stream are reported back
// here so State stays truthful even when the session layer has not noticed
// the loss yet.
//
// # Usage
//
//	t := transport.New(store, transport.Options{})
//	t.SetHandler(h)
//	t.ConnectEncrypted("broker.example.com", 8883)
//	if err := t.WaitForEncrypted(5 * time.Second); err != nil {
//	    log.Warn("broker not reachable yet", "error", err)
//	}
package transport
