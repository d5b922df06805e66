package main

import "github.com/thedtvn/reverseproxy/domain/plugin"

// registeredPlugins lists the statically linked plugin implementations
// compiled into this binary. The plugin loader is in-process only: there
// is no dynamic .so loading, so extending the pipeline means adding an
// entry here and rebuilding.
func registeredPlugins() []plugin.Plugin {
	return nil
}
