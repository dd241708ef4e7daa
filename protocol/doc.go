// Package protocol implements the server side of the git smart
// transfer protocol (version 1): ref advertisement, want/have
// negotiation with ACK/NAK responses, shallow/deepen handling, and
// side-band multiplexing of the resulting packfile.
//
// The entry point for a full fetch is UploadPack; the lower-level
// pieces (AdvertiseRefs, Session, Mux) are exported so transports
// with their own request framing (stateless http rpc for example)
// can drive the exchange themselves
package protocol
