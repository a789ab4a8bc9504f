package farm

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// transferID derives the correlation id of an outbound transfer. The nonce
// keeps ids of otherwise equal transfers apart.
func transferID(tr *Transfer, nonce uint64) string {
	h, _ := blake2b.New256(nil)
	var buf [8]byte

	h.Write([]byte(tr.Kind))
	h.Write([]byte{0})
	h.Write([]byte(tr.Receiver))
	h.Write([]byte{0})
	h.Write([]byte(tr.Token))
	h.Write([]byte{0})
	binary.BigEndian.PutUint64(buf[:], tr.FarmID)
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(tr.Slot))
	h.Write(buf[:])
	amount := tr.Amount.Bytes32()
	h.Write(amount[:])
	binary.BigEndian.PutUint64(buf[:], nonce)
	h.Write(buf[:])

	return hex.EncodeToString(h.Sum(nil))
}

// issueTransfer records a pending outbound transfer and adds it to the
// receipt. Its outcome arrives later through ResolveTransfer.
func issueTransfer(tx *txn, r *Receipt, tr Transfer) error {
	nonce, err := tx.getUint(keyTransferNonce)
	if err != nil {
		return fmt.Errorf("transfer nonce: %w", err)
	}
	nonce++
	tx.setUint(keyTransferNonce, nonce)

	tr.ID = transferID(&tr, nonce)
	if err := tx.put(transferKey(tr.ID), tr); err != nil {
		return err
	}
	r.Transfers = append(r.Transfers, tr)
	return nil
}
