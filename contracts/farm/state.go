package farm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/vsc-eco/vsc-farm/internal/kv"
)

// Keys
const (
	keyFarmCount     = "meta/farm_count"
	keyTransferNonce = "meta/transfer_nonce"
	keyFarmPrefix    = "farms/"     // farms/<id>
	keyStakePrefix   = "stakes/"    // stakes/<account>/<farm id>
	keyStoragePrefix = "storage/"   // storage/<account>
	keyOwedPrefix    = "owed/"      // owed/<account>/<token>
	keyTransferPfx   = "transfers/" // transfers/<correlation id>
)

// Ids are zero padded so prefix iteration returns them in numeric order.
func formatID(id uint64) string {
	return fmt.Sprintf("%020d", id)
}

func parseID(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

func farmKey(id uint64) string { return keyFarmPrefix + formatID(id) }

func stakePrefix(account string) string { return keyStakePrefix + account + "/" }

func stakeKey(account string, farmID uint64) string {
	return stakePrefix(account) + formatID(farmID)
}

func storageKey(account string) string { return keyStoragePrefix + account }

func owedPrefix(account string) string { return keyOwedPrefix + account + "/" }

func owedKey(account, token string) string { return owedPrefix(account) + token }

func transferKey(id string) string { return keyTransferPfx + id }

// txn buffers the writes of one call over the store. Nothing reaches the
// store until commit, so a failed call leaves no trace.
type txn struct {
	store  kv.Getter
	writes map[string][]byte // nil value marks a delete
}

func newTxn(store kv.Getter) *txn {
	return &txn{store: store, writes: make(map[string][]byte)}
}

func (t *txn) getRaw(key string) ([]byte, bool, error) {
	if v, ok := t.writes[key]; ok {
		return v, v != nil, nil
	}
	v, err := t.store.Get([]byte(key))
	if err != nil {
		if kv.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return v, true, nil
}

// get decodes the record at key into out, reporting whether it exists.
func (t *txn) get(key string, out interface{}) (bool, error) {
	raw, ok, err := t.getRaw(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (t *txn) put(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	t.writes[key] = raw
	return nil
}

func (t *txn) del(key string) {
	t.writes[key] = nil
}

func (t *txn) getUint(key string) (uint64, error) {
	raw, ok, err := t.getRaw(key)
	if err != nil || !ok {
		return 0, err
	}
	return strconv.ParseUint(string(raw), 10, 64)
}

func (t *txn) setUint(key string, v uint64) {
	t.writes[key] = []byte(strconv.FormatUint(v, 10))
}

// iterate visits committed and buffered records under prefix in key order.
func (t *txn) iterate(prefix string, fn func(key string, raw []byte) bool) error {
	merged := make(map[string][]byte)
	err := t.store.Iterate([]byte(prefix), func(k, v []byte) bool {
		merged[string(k)] = v
		return true
	})
	if err != nil {
		return err
	}
	for k, v := range t.writes {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if v == nil {
			delete(merged, k)
		} else {
			merged[k] = v
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !fn(k, merged[k]) {
			break
		}
	}
	return nil
}

func (t *txn) commit(store kv.Store) error {
	if len(t.writes) == 0 {
		return nil
	}
	b := store.NewBatch()
	for k, v := range t.writes {
		var err error
		if v == nil {
			err = b.Delete([]byte(k))
		} else {
			err = b.Put([]byte(k), v)
		}
		if err != nil {
			return err
		}
	}
	if err := b.Write(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	t.writes = make(map[string][]byte)
	return nil
}

// Typed accessors.

func (t *txn) loadFarm(id uint64) (*Farm, error) {
	var f Farm
	ok, err := t.get(farmKey(id), &f)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("farm %d: %w", id, ErrFarmNotFound)
	}
	return &f, nil
}

func (t *txn) saveFarm(id uint64, f *Farm) error {
	return t.put(farmKey(id), f)
}

// loadStake returns nil without error when the account has no stake.
func (t *txn) loadStake(account string, farmID uint64) (*Stake, error) {
	var s Stake
	ok, err := t.get(stakeKey(account, farmID), &s)
	if err != nil || !ok {
		return nil, err
	}
	return &s, nil
}

func (t *txn) saveStake(account string, farmID uint64, s *Stake) error {
	return t.put(stakeKey(account, farmID), s)
}

func (t *txn) deleteStake(account string, farmID uint64) {
	t.del(stakeKey(account, farmID))
}

func (t *txn) loadStorage(account string) (StorageBalance, error) {
	var b StorageBalance
	_, err := t.get(storageKey(account), &b)
	return b, err
}

func (t *txn) saveStorage(account string, b StorageBalance) error {
	if b.Deposit.IsZero() && b.UsedBytes == 0 {
		t.del(storageKey(account))
		return nil
	}
	return t.put(storageKey(account), b)
}

func (t *txn) loadOwed(account, token string) (Amount, error) {
	var a Amount
	_, err := t.get(owedKey(account, token), &a)
	return a, err
}

func (t *txn) saveOwed(account, token string, a Amount) error {
	if a.IsZero() {
		t.del(owedKey(account, token))
		return nil
	}
	return t.put(owedKey(account, token), a)
}

func (t *txn) loadTransfer(id string) (*Transfer, error) {
	var tr Transfer
	ok, err := t.get(transferKey(id), &tr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("transfer %s: %w", id, ErrTransferNotFound)
	}
	return &tr, nil
}
