// Package affinity detects guarded operations running off their home
// goroutine.
//
// Component frameworks with an event loop (UI toolkits, game loops,
// single-writer state machines) require that their components are only
// touched from that loop. This package reports every call chain that
// breaks the rule, once per chain, with the stack of the offending call.
//
// # Quick Start
//
// Tag the component types and let the weaver insert the hooks:
//
//	//affinity:guarded
//	type Button struct{ text string }
//
//	$ affinityweave build ./cmd/app
//	$ ./app
//
// Name the event loop so the monitor can recognize it, and register a
// listener:
//
//	func main() {
//		affinity.SetListener(affinity.LogListener(slog.Default()))
//		affinity.Go("event-loop", runLoop)
//		// ...
//	}
//
// # How It Works
//
// Every guarded method starts with a deferred hook pair:
//
//	// Original code:
//	func (b *Button) SetText(s string) {
//		b.text = s
//	}
//
//	// Woven code:
//	func (b *Button) SetText(s string) {
//		defer affinity.Exit(affinity.EnterStrict(_affinityOp0))
//		b.text = s
//	}
//
// On a goroutine whose name does not carry the affinity prefix, the first
// guarded entry marks the goroutine and produces a [Problem]. Nested
// guarded calls find the mark and stay silent; the mark disappears when
// the outermost call returns. Operations known to be safe from any
// goroutine (repaint requests, listener registration) use [EnterExempt],
// which marks without reporting.
//
// Problems produced before a listener is registered are buffered (when
// monitoring is enabled) and delivered in order by [SetListener].
//
// # API Overview
//
//   - Hooks: [Enter], [EnterStrict], [EnterExempt], [Exit], [ContainerAttach]
//   - Delivery: [SetListener], [SetMonitoringEnabled], [NewCollector], [LogListener], [Tee]
//   - Diagnostics: [AttachSite], [GetStats], [Handler]
//   - Goroutine roles: [NameGoroutine], [Go]
//   - Setup: [Configure], [LoadConfig], [Default]
//
// # Configuration
//
// The process-wide monitor reads the YAML file named by $AFFINITY_CONFIG on
// first use. [Configure] replaces it explicitly.
package affinity
