// Package mcptool exposes the tools of a Model Context Protocol server as
// [tool.Descriptor] values. Each descriptor's executor forwards the call to
// the server over the connected session.
//
//	source := mcptool.New(mcptool.WithPrefix("fs_"))
//	if err := source.Connect(ctx, mcptool.CommandTransport("mcp-server-filesystem", "/tmp")); err != nil { ... }
//	defer source.Close()
//	descriptors, err := source.Descriptors(ctx)
//	registry, err := tool.NewRegistry(descriptors...)
package mcptool
