// Package factory builds pluggable components (telemetry stores, metrics
// sinks) from configuration. A component is selected by a type string and
// configured by a map of raw settings that its factory decodes into a typed
// struct.
//
// The telemetry store registers its backends this way:
//
//	reg := factory.NewRegistry[*store.Store]()
//	reg.Register("sqlite", func(conf map[string]any) (*store.Store, error) {
//	    var c store.SQLiteConfig
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return store.NewSQLiteStore(c.Path)
//	})
//	s, err := reg.Create(factory.ModuleConfig{Type: "sqlite", Conf: map[string]any{"path": "sitepulse.db"}})
package factory
