// Package partialjson turns prefixes of a JSON document into the best
// complete value available so far. The stream assembler feeds it tool input
// fragments to publish progressive tool arguments before the call is closed.
//
//	p := partialjson.NewParser()
//	p.Write(`{"ci`)      // {}
//	p.Write(`ty":"S`)    // {"city":"S"}
//	p.Write(`F"}`)       // {"city":"SF"}
//	raw, err := p.Final() // strict parse
package partialjson
