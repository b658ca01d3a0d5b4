// Package server implements the relay's session handling and HTTP surface.
//
// A Hub owns the room registry and every live Session. Each WebSocket
// connection to /ws/{room}/{client} becomes a Session that joins its room,
// receives a roster of the members already present, and then routes every
// inbound message either to one named member ("to") or to the rest of the
// room. When the connection ends the session leaves the room and the
// remaining members are told.
package server
