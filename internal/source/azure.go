package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/microsoft/go-mssqldb/azuread"

	"etl-notifier/internal/config"
)

const defaultFedAuth = azuread.ActiveDirectoryManagedIdentity

// openAzureSQL connects to Azure SQL with an Entra ID token instead of a password.
// msi_client_id selects a user-assigned managed identity; without it the system-assigned
// identity is used. fedauth may override the authentication flow (e.g. ActiveDirectoryDefault).
func openAzureSQL(ctx context.Context, name string, cfg config.SourceConfig) (Source, error) {
	dsn := connectionString(cfg)
	if dsn == "" {
		return nil, fmt.Errorf("source %s: connection_string is required", name)
	}
	dsn, err := azureDSN(dsn, cfg.String("fedauth"), strings.TrimSpace(cfg.String("msi_client_id")))
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", name, err)
	}
	return openSQL(ctx, name, azuread.DriverName, dsn, cfg)
}

// azureDSN adds fedauth and the client id to a URL or key=value connection string.
// Values already present in dsn win.
func azureDSN(dsn, fedauth, clientID string) (string, error) {
	if fedauth == "" {
		fedauth = defaultFedAuth
	}
	if strings.HasPrefix(dsn, "sqlserver://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse connection_string: %w", err)
		}
		q := u.Query()
		if q.Get("fedauth") == "" {
			q.Set("fedauth", fedauth)
		}
		if clientID != "" && q.Get("user id") == "" {
			q.Set("user id", clientID)
		}
		u.RawQuery = q.Encode()
		return u.String(), nil
	}

	lower := strings.ToLower(dsn)
	parts := []string{strings.TrimRight(dsn, ";")}
	if !strings.Contains(lower, "fedauth=") {
		parts = append(parts, "fedauth="+fedauth)
	}
	if clientID != "" && !strings.Contains(lower, "user id=") {
		parts = append(parts, "user id="+clientID)
	}
	return strings.Join(parts, ";"), nil
}
