// Package reconcile computes minimal edit scripts between two ordered entity
// snapshots so list views apply incremental updates instead of full redraws.
// Matching is keyed on identity; fingerprints flag in-place content changes.
package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	pkgerrors "github.com/mgiraldo-dev/canteen-backend/pkg/errors"
	"github.com/mgiraldo-dev/canteen-backend/pkg/store"
)

// Entry is one element of a snapshot: a stable identity plus a deterministic
// fingerprint over the display-relevant fields.
type Entry struct {
	ID          string `json:"id"`
	Fingerprint string `json:"fingerprint"`
}

// OpKind enumerates edit operations.
type OpKind string

const (
	OpInsert OpKind = "insert"
	OpRemove OpKind = "remove"
	OpMove   OpKind = "move"
	OpUpdate OpKind = "update"
)

// Op is a single edit. OldIndex and NewIndex are -1 when not applicable
// (inserts have no old position, removes no new one).
type Op struct {
	Kind     OpKind `json:"kind"`
	ID       string `json:"id"`
	OldIndex int    `json:"old_index"`
	NewIndex int    `json:"new_index"`
}

// Script is an ordered edit script: removes (descending old index), then
// inserts (ascending new index), then moves, then content updates. Applying
// it in order transforms a display of the old snapshot into the new one.
type Script struct {
	Ops []Op `json:"ops"`
}

// Empty reports whether the script contains no operations.
func (s Script) Empty() bool {
	return len(s.Ops) == 0
}

// Diff computes the edit script from old to new. Both snapshots must have
// unique identities; a duplicate fails with DUPLICATE_IDENTITY. The result
// is deterministic: identical inputs always yield an identical script.
func Diff(oldSeq, newSeq []Entry) (Script, error) {
	oldIndex, err := indexByID(oldSeq, "old")
	if err != nil {
		return Script{}, err
	}
	newIndex, err := indexByID(newSeq, "new")
	if err != nil {
		return Script{}, err
	}

	stable := lcs(oldSeq, newSeq)

	var removes, inserts, moves, updates []Op

	// Walk old back to front so removes carry indices that stay valid as
	// the applier deletes rows.
	for i := len(oldSeq) - 1; i >= 0; i-- {
		if _, ok := newIndex[oldSeq[i].ID]; !ok {
			removes = append(removes, Op{Kind: OpRemove, ID: oldSeq[i].ID, OldIndex: i, NewIndex: -1})
		}
	}

	for j, entry := range newSeq {
		i, matched := oldIndex[entry.ID]
		if !matched {
			inserts = append(inserts, Op{Kind: OpInsert, ID: entry.ID, OldIndex: -1, NewIndex: j})
			continue
		}
		if !stable[entry.ID] {
			moves = append(moves, Op{Kind: OpMove, ID: entry.ID, OldIndex: i, NewIndex: j})
		}
		if oldSeq[i].Fingerprint != entry.Fingerprint {
			updates = append(updates, Op{Kind: OpUpdate, ID: entry.ID, OldIndex: i, NewIndex: j})
		}
	}

	ops := make([]Op, 0, len(removes)+len(inserts)+len(moves)+len(updates))
	ops = append(ops, removes...)
	ops = append(ops, inserts...)
	ops = append(ops, moves...)
	ops = append(ops, updates...)
	if len(ops) == 0 {
		return Script{}, nil
	}
	return Script{Ops: ops}, nil
}

// FromRecords adapts a store snapshot batch: identity is the record id, the
// fingerprint hashes the document body. Every entity kind shares this one
// adapter instead of a per-kind diff implementation.
func FromRecords(recs []store.Record) []Entry {
	entries := make([]Entry, len(recs))
	for i, rec := range recs {
		sum := sha256.Sum256(rec.Data)
		entries[i] = Entry{ID: rec.ID, Fingerprint: hex.EncodeToString(sum[:])}
	}
	return entries
}

func indexByID(seq []Entry, side string) (map[string]int, error) {
	index := make(map[string]int, len(seq))
	for i, entry := range seq {
		if _, dup := index[entry.ID]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeDuplicateIdentity,
				fmt.Sprintf("duplicate identity %q in %s sequence", entry.ID, side))
		}
		index[entry.ID] = i
	}
	return index, nil
}

// lcs returns the identities on a longest common subsequence of the two
// snapshots. Entries on it keep their relative order; matched entries off it
// are moves. The DP tie-breaks consistently, so the result is stable.
func lcs(oldSeq, newSeq []Entry) map[string]bool {
	n, m := len(oldSeq), len(newSeq)
	if n == 0 || m == 0 {
		return map[string]bool{}
	}

	lengths := make([][]int, n+1)
	for i := range lengths {
		lengths[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if oldSeq[i].ID == newSeq[j].ID {
				lengths[i][j] = lengths[i+1][j+1] + 1
			} else if lengths[i+1][j] >= lengths[i][j+1] {
				lengths[i][j] = lengths[i+1][j]
			} else {
				lengths[i][j] = lengths[i][j+1]
			}
		}
	}

	stable := make(map[string]bool, lengths[0][0])
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case oldSeq[i].ID == newSeq[j].ID:
			stable[oldSeq[i].ID] = true
			i++
			j++
		case lengths[i+1][j] >= lengths[i][j+1]:
			i++
		default:
			j++
		}
	}
	return stable
}
