package config

// ResolveUser determines the acting username using precedence:
// 1. flagOverride (--user flag)
// 2. config.toml default_user
// An empty result means no resolved identity; sessions must not start.
func ResolveUser(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := Load(Path())
	if err == nil && cfg.DefaultUser != "" {
		return cfg.DefaultUser
	}
	return ""
}
