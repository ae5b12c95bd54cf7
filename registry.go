package turbonerf

import (
	"errors"
	"sync"
)

var (
	engineMu      sync.RWMutex
	defaultEngine Engine
)

// RegisterEngine registers an execution engine for controllers constructed
// without WithEngine.
//
// Only one engine can be registered. Subsequent calls replace the previous
// one; the replaced engine is NOT closed, its owner remains responsible for
// it. The current logger is propagated to the new engine.
//
// Typical usage via blank import in engine packages:
//
//	func init() {
//	    turbonerf.RegisterEngine(gpu.NewEngine(gpu.DefaultConfig()))
//	}
func RegisterEngine(e Engine) error {
	if e == nil {
		return errors.New("turbonerf: cannot register nil engine")
	}

	engineMu.Lock()
	defaultEngine = e
	engineMu.Unlock()

	propagateLogger(e, Logger())
	return nil
}

// activeEngine returns the registered engine, or nil when none is registered.
func activeEngine() Engine {
	engineMu.RLock()
	defer engineMu.RUnlock()
	return defaultEngine
}
