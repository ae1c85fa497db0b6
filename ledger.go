package transbase

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ledger hashes are computed in chunks of this size for large objects
const ledgerChunkSize = 8

// AuditProof proves that a record with RecordHash belongs to the ledger
// with LedgerHash at LedgerIdx.
type AuditProof struct {
	LedgerHash []byte
	LedgerIdx  int64
	RecordID   int64
	RecordHash []byte
}

// ConsistencyProof proves that the ledger at LedgerIdxNew extends the one
// at LedgerIdxOld.
type ConsistencyProof struct {
	LedgerHashOld []byte
	LedgerIdxOld  int64
	LedgerHashNew []byte
	LedgerIdxNew  int64
}

// HashLedgerRecord hashes the current row of rs the way the server hashes
// ledger records. The record_id column is skipped.
func HashLedgerRecord(rs *ResultSet) ([]byte, error) {
	h := sha256.New()
	h.Write([]byte{0})

	for _, c := range rs.Columns() {
		if strings.EqualFold(c.Name, "record_id") {
			continue
		}
		isNull, err := rs.IsNull(c.Col)
		if err != nil {
			return nil, err
		}
		if isNull {
			h.Write([]byte{0})
			continue
		}
		h.Write([]byte{1})

		if c.Type == SQLBlob || c.Type == SQLClob {
			for more := true; more; {
				buf, err := rs.ReadValueAsBuffer(c.Col, ledgerChunkSize)
				if err != nil {
					return nil, err
				}
				h.Write(buf.Data)
				more = buf.HasMore
			}
			continue
		}

		s, err := rs.ReadValueAsString(c.Col)
		if err != nil {
			return nil, err
		}
		if s != nil {
			h.Write([]byte(*s))
		}
	}
	return h.Sum(nil), nil
}

// HashLedgerNodes returns the hash of the parent of two Merkle tree nodes.
func HashLedgerNodes(first, second []byte) []byte {
	h := sha256.New()
	h.Write([]byte{1})
	h.Write(first)
	h.Write(second)
	return h.Sum(nil)
}

// VerifyAuditProof checks p against the proof path stored in the ledger.
func VerifyAuditProof(tb *Transbase, p AuditProof) (bool, error) {
	typeCast := true
	rows, err := ledgerRows(tb, "select hash, first from ledger_audit_proof(?, ?) order by level asc",
		[]any{p.LedgerIdx, p.RecordID}, typeCast)
	if err != nil {
		return false, err
	}

	proof := p.RecordHash
	for _, row := range rows {
		hash, err := ledgerHash(row)
		if err != nil {
			return false, err
		}
		if asBool(row["first"]) {
			proof = HashLedgerNodes(hash, proof)
		} else {
			proof = HashLedgerNodes(proof, hash)
		}
	}
	return equalHashes(proof, p.LedgerHash), nil
}

// VerifyConsistencyProof checks that both ledger hashes of p can be
// rebuilt from the stored consistency proof.
func VerifyConsistencyProof(tb *Transbase, p ConsistencyProof) (bool, error) {
	rows, err := ledgerRows(tb, "select hash, first, old, new from ledger_consistency_proof(?, ?) order by new asc",
		[]any{p.LedgerIdxOld, p.LedgerIdxNew}, true)
	if err != nil {
		return false, err
	}

	calc := func(index any, first bool, current, hash []byte) []byte {
		if index == nil {
			return current
		}
		if current == nil {
			return hash
		}
		if first {
			return HashLedgerNodes(hash, current)
		}
		return HashLedgerNodes(current, hash)
	}

	var hashOld, hashNew []byte
	for _, row := range rows {
		hash, err := ledgerHash(row)
		if err != nil {
			return false, err
		}
		first := asBool(row["first"])
		hashOld = calc(row["old"], first, hashOld, hash)
		hashNew = calc(row["new"], first, hashNew, hash)
	}
	return equalHashes(hashOld, p.LedgerHashOld) && equalHashes(hashNew, p.LedgerHashNew), nil
}

func ledgerRows(tb *Transbase, sql string, params []any, typeCast bool) ([]Row, error) {
	res, err := tb.Query(sql, params, QueryOptions{TypeCast: &typeCast})
	if err != nil {
		return nil, err
	}
	if res.ResultSet == nil {
		return nil, ErrNoResultSet
	}
	return res.ResultSet.ToArray()
}

func ledgerHash(row Row) ([]byte, error) {
	switch v := row["hash"].(type) {
	case string:
		h, err := hex.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("bad ledger hash %q: %w", v, err)
		}
		return h, nil
	case []byte:
		return v, nil
	}
	return nil, fmt.Errorf("bad ledger hash %v", row["hash"])
}

func asBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int32:
		return b != 0
	case int64:
		return b != 0
	case string:
		return b == "true" || b == "1"
	}
	return false
}

func equalHashes(a, b []byte) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return bytes.Equal(a, b)
}
