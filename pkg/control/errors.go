package control

import "errors"

// ErrTransport classifies I/O failures on the datagram socket. It is wrapped,
// not returned bare, so callers can errors.Is against it.
var ErrTransport = errors.New("control: transport error")
