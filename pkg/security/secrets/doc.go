/*
Package secrets resolves ${secret:name} references in configuration values.

Service tokens in the configuration file may name a secret instead of
holding it:

	handle:
	  enabled: true
	  base_url: https://pid.example.org
	  token: ${secret:handle-token}

The Manager looks the name up in its providers, in order:

  - FileProvider reads <dir>/<name>, the layout of Kubernetes and Docker
    secret mounts. Files must have mode 0600 or 0400.
  - EnvProvider reads <prefix><NAME>, hyphens turned into underscores,
    for example CALLISTO_SECRET_HANDLE_TOKEN.

Resolved values are cached for the configured TTL so a long running daemon
picks up rotated files without a restart.

	mgr := secrets.NewManager(secrets.CacheConfig{TTL: 5 * time.Minute},
		fileProvider, secrets.NewEnvProvider("CALLISTO_SECRET_"))
	token, err := mgr.Resolve(ctx, cfg.Handle.Token)

Secret names are never logged in full and values are never logged.
*/
package secrets
