// Package config provides loading and environment overlay for coedit
// runtime configuration. It exposes a Default() baseline that Load and
// FromEnv refine.
//
// Example:
//
//	cfg, err := config.Load("/etc/coedit.yaml")
//	if err != nil {
//	    return err
//	}
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//	rt, _ := runtime.Open(ctx, runtime.Options{DataDir: config.DefaultDataDir(), Config: cfg})
//	defer rt.Close()
package config
