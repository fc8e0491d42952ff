package entity

// ExportVersion tags the current wallet import/export file format.
const ExportVersion = "2.0"

// ExportEntry is one wallet in an import/export file. Only identity and label
// data are carried; balances, tokens and delegation are always re-fetched.
type ExportEntry struct {
	Address  string `json:"address"`
	Alias    string `json:"alias"`
	Enabled  bool   `json:"enabled"`
	Type     string `json:"type,omitempty"`
	TzDomain string `json:"tzdomain,omitempty"`
}

// ExportFile is the version-tagged wallet list file. Files without a version
// (or with version != "2.0") are treated as the legacy 1.0 format where every
// entry is a Tezos wallet.
type ExportFile struct {
	Version    string        `json:"version"`
	ExportDate string        `json:"exportDate"`
	Wallets    []ExportEntry `json:"wallets"`
}

// ImportResult summarises one import run.
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Reasons  []string `json:"reasons,omitempty"`
}
