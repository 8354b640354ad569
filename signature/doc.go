// Package signature validates the kwargs handed to handlers.
//
// Handlers declare their parameters statically with Param values. The
// parameters of all handlers grouped in one action are merged into a
// Contract once, when the routing table is built, and a Binding applies
// the contract (or an explicit list of ParamSpecs) to every incoming
// record.
package signature
