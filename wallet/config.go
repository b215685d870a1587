package wallet

import "os"

// Config configures a wallet at Open. WalletPath may be overridden at
// runtime by the CASHU_WALLET_DB environment variable, the way the
// teacher's nutw CLI lets CASHU_WALLET_PATH override its config.
type Config struct {
	MintURL    string
	WalletPath string
}

func (c Config) resolvedPath() string {
	if path := os.Getenv("CASHU_WALLET_DB"); path != "" {
		return path
	}
	return c.WalletPath
}
