package protocol

import "errors"

var (
	// ErrUnknownWant is returned when the client wants an object
	// the repository doesn't have. Hard error: the negotiation is
	// aborted and no packfile is sent
	ErrUnknownWant = errors.New("want references an unknown object")

	// ErrMalformedLine is returned when a request line doesn't
	// follow the protocol grammar
	ErrMalformedLine = errors.New("malformed request line")

	// ErrInvalidAckStatus is returned when an ACK status other than
	// common, ready, or continue is about to be emitted. It guards
	// against programming errors, a well-formed session never
	// triggers it
	ErrInvalidAckStatus = errors.New("invalid ack status")

	// ErrInvalidState is returned when an operation is applied to a
	// session in the wrong state, like processing haves before any
	// want was received
	ErrInvalidState = errors.New("invalid session state")

	// ErrUnknownChannel is returned by Demux when a packet starts
	// with a channel byte outside of 1-3
	ErrUnknownChannel = errors.New("unknown side-band channel")
)
