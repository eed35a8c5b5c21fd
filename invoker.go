// Package invoker exposes a registered function over a single bidirectional
// stream, multiplexing any number of input arguments and output results as
// logical streams of one physical connection.
//
// The pieces, leaves first:
//
//	wire      frame types and codecs (protobuf wire format, CBOR)
//	negotiate content-type negotiation
//	payload   content-type keyed value codecs
//	mux       input demultiplexer and output multiplexer
//	function  function signatures, adapters and the registry
//	engine    binds logical streams to a function invocation
//	session   per-connection state machine
//
// Transports live under transport/, the process entry point under
// cmd/invoker. This package only carries the error taxonomy shared by all of
// them.
package invoker

// ProtocolVersion is bumped on incompatible frame layout changes.
const ProtocolVersion = 1
