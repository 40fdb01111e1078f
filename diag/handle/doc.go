// Package handle tracks page-side element handles so long automation
// sessions cannot leak them.
//
// Every handle acquired by a component is wrapped in a SmartHandle and
// registered with a Manager. Disposal is idempotent and failures are
// swallowed after logging, so cleanup paths never mask the error that
// triggered them.
//
// # Basic Usage
//
//	mgr := handle.NewManager(handle.Options{HandleCap: 500}, logger, collector)
//
//	el, _ := pg.Query(ctx, "#submit")
//	h := mgr.Track(el, "submit button")
//	defer h.Dispose(ctx)
//
// Batch cleanup uses all-settled semantics: every handle gets a disposal
// attempt regardless of individual failures.
//
//	mgr.DisposeBatch(ctx, handles)
//
// The Manager reports ActiveCount and PeakCount through Stats, which the
// health checker compares against the configured handle cap.
package handle
