// Package route holds the routing graph: path enumerations, actions,
// queues, payloads and the immutable Table compiled from a definition.
//
// A definition maps paths to actions:
//
//	paths := route.MustEnum("Path", "ECHO", "STORE")
//	table, err := route.Build(route.Routes{
//		paths.Must("ECHO"): {route.Func("echo", echo, signature.Required("foo", signature.String))},
//		paths.Must("STORE"): {route.Action{
//			Paths:  []route.Target{route.Name("ECHO")},
//			Queues: []route.Queue{{Transport: route.TransportQueue, Name: "archive", Path: "ARCHIVE"}},
//		}},
//	}, paths)
//
// Build resolves every reference, merges handler parameters, rejects
// cycles and fingerprints the result. Nothing is rewritten afterwards, so
// one Table can serve concurrent invocations.
package route
