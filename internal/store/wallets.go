package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"tezfolio/internal/domain/entity"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	walletsKey   = "wallets"
	snapshotsKey = "snapshots"
)

var (
	// ErrDuplicateAddress rejects adding an address that is already tracked.
	ErrDuplicateAddress = errors.New("address is already tracked")
	// ErrWalletNotFound marks mutations against an unknown wallet id.
	ErrWalletNotFound = errors.New("wallet not found")
)

// WalletStore owns the durable wallet and snapshot lists on top of a KV
// adapter. Every mutation re-reads the persisted list before writing, with a
// store-level mutex held across the read and the write so two rapid mutations
// never lose updates.
type WalletStore struct {
	kv     KV
	logger *zap.Logger

	// mu serializes read-modify-write cycles; the KV's own lock only covers
	// single operations.
	mu sync.Mutex
}

// NewWalletStore wraps a KV adapter.
func NewWalletStore(kv KV, logger *zap.Logger) *WalletStore {
	return &WalletStore{kv: kv, logger: logger.Named("WalletStore")}
}

// List returns the persisted wallet list in display order.
func (s *WalletStore) List() ([]entity.Wallet, error) {
	var wallets []entity.Wallet
	if _, err := s.kv.Get(walletsKey, &wallets); err != nil {
		return nil, err
	}
	return wallets, nil
}

// Get returns one wallet by id.
func (s *WalletStore) Get(id string) (entity.Wallet, bool, error) {
	wallets, err := s.List()
	if err != nil {
		return entity.Wallet{}, false, err
	}
	for _, w := range wallets {
		if w.ID == id {
			return w, true, nil
		}
	}
	return entity.Wallet{}, false, nil
}

// Contains reports whether an address is already tracked, case-insensitively.
func (s *WalletStore) Contains(address string) (bool, error) {
	wallets, err := s.List()
	if err != nil {
		return false, err
	}
	return containsAddress(wallets, address), nil
}

func containsAddress(wallets []entity.Wallet, address string) bool {
	for _, w := range wallets {
		if strings.EqualFold(w.Address, address) {
			return true
		}
	}
	return false
}

// Add appends a wallet, rejecting duplicate addresses case-insensitively.
func (s *WalletStore) Add(w entity.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wallets, err := s.List()
	if err != nil {
		return err
	}
	if containsAddress(wallets, w.Address) {
		return fmt.Errorf("address %s: %w", w.Address, ErrDuplicateAddress)
	}
	return s.kv.Set(walletsKey, append(wallets, w))
}

// Update replaces the stored wallet with the same id. Mutating an unknown id
// is an error; the address never changes once created.
func (s *WalletStore) Update(w entity.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wallets, err := s.List()
	if err != nil {
		return err
	}
	for i := range wallets {
		if wallets[i].ID == w.ID {
			w.Address = wallets[i].Address
			w.AddedAt = wallets[i].AddedAt
			wallets[i] = w
			return s.kv.Set(walletsKey, wallets)
		}
	}
	return fmt.Errorf("wallet %s: %w", w.ID, ErrWalletNotFound)
}

// Rename updates only the user-editable label.
func (s *WalletStore) Rename(id, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wallets, err := s.List()
	if err != nil {
		return err
	}
	for i := range wallets {
		if wallets[i].ID == id {
			wallets[i].Label = label
			return s.kv.Set(walletsKey, wallets)
		}
	}
	return fmt.Errorf("wallet %s: %w", id, ErrWalletNotFound)
}

// Remove deletes a wallet by id. Removing an unknown id is a no-op.
func (s *WalletStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wallets, err := s.List()
	if err != nil {
		return err
	}
	kept := wallets[:0]
	for _, w := range wallets {
		if w.ID != id {
			kept = append(kept, w)
		}
	}
	return s.kv.Set(walletsKey, kept)
}

// AppendSnapshot records a balance snapshot for timeline features.
func (s *WalletStore) AppendSnapshot(snap entity.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var snaps []entity.Snapshot
	if _, err := s.kv.Get(snapshotsKey, &snaps); err != nil {
		return err
	}
	return s.kv.Set(snapshotsKey, append(snaps, snap))
}

// Snapshots returns snapshots, optionally filtered by wallet id.
func (s *WalletStore) Snapshots(walletID string) ([]entity.Snapshot, error) {
	var snaps []entity.Snapshot
	if _, err := s.kv.Get(snapshotsKey, &snaps); err != nil {
		return nil, err
	}
	if walletID == "" {
		return snaps, nil
	}
	filtered := make([]entity.Snapshot, 0, len(snaps))
	for _, snap := range snaps {
		if snap.WalletID == walletID {
			filtered = append(filtered, snap)
		}
	}
	return filtered, nil
}

// Export produces the version-tagged wallet list file. Only identity and
// label data are exported, never derived or fetched fields.
func (s *WalletStore) Export() (entity.ExportFile, error) {
	wallets, err := s.List()
	if err != nil {
		return entity.ExportFile{}, err
	}
	file := entity.ExportFile{
		Version:    entity.ExportVersion,
		ExportDate: time.Now().UTC().Format(time.RFC3339),
		Wallets:    make([]entity.ExportEntry, 0, len(wallets)),
	}
	for _, w := range wallets {
		file.Wallets = append(file.Wallets, entity.ExportEntry{
			Address:  w.Address,
			Alias:    w.Label,
			Enabled:  true,
			Type:     string(w.Chain),
			TzDomain: w.TezDomain,
		})
	}
	return file, nil
}

// Import merges an exported wallet list. Files without version "2.0" are
// treated as the legacy 1.0 format where every entry is Tezos. Disabled
// entries are skipped; addresses already tracked (case-insensitive) count as
// failed with a reason. Imported wallets are seeded with zeroed balances and
// picked up by the normal refresh path; import itself performs no network
// calls.
func (s *WalletStore) Import(file entity.ExportFile) (entity.ImportResult, error) {
	legacy := file.Version != entity.ExportVersion

	s.mu.Lock()
	defer s.mu.Unlock()
	var result entity.ImportResult
	wallets, err := s.List()
	if err != nil {
		return result, err
	}

	now := time.Now().UTC()
	for _, e := range file.Wallets {
		if !e.Enabled {
			result.Skipped++
			continue
		}
		if containsAddress(wallets, e.Address) {
			result.Failed++
			result.Reasons = append(result.Reasons,
				fmt.Sprintf("address %s is already tracked", e.Address))
			continue
		}
		chain := entity.ChainType(e.Type)
		if legacy || chain == "" {
			chain = entity.ChainTezos
		}
		if chain != entity.ChainTezos && chain != entity.ChainEtherlink {
			result.Failed++
			result.Reasons = append(result.Reasons,
				fmt.Sprintf("address %s has unknown chain type %q", e.Address, e.Type))
			continue
		}
		label := e.Alias
		if label == "" {
			label = e.Address
		}
		wallets = append(wallets, entity.Wallet{
			ID:        uuid.NewString(),
			Chain:     chain,
			Address:   e.Address,
			Label:     label,
			AddedAt:   now,
			TezDomain: e.TzDomain,
			Status:    initialStatus(chain),
		})
		result.Imported++
	}

	if result.Imported > 0 {
		if err := s.kv.Set(walletsKey, wallets); err != nil {
			return result, err
		}
	}
	s.logger.Info("wallet import complete",
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))
	return result, nil
}

func initialStatus(chain entity.ChainType) entity.DelegationStatus {
	if chain == entity.ChainTezos {
		return entity.StatusUndelegated
	}
	return ""
}
