/*
 * Copyright 2017-2022 Provide Technologies Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package ledger

import (
	"bytes"
	"hash"
	"sync"

	mimc "github.com/consensys/gnark-crypto/hash"
	"github.com/providenetwork/merkletree"
	"github.com/providenetwork/smt"
)

// treeContent wraps an arbitrary value for insertion into the dense commitment tree
type treeContent struct {
	hash  hash.Hash
	value []byte
}

// CalculateHash returns the hash of the underlying value using the configured hash function
func (tc *treeContent) CalculateHash() ([]byte, error) {
	tc.hash.Reset()
	tc.hash.Write(tc.value)
	return tc.hash.Sum(nil), nil
}

// Equals returns true if the given content matches the underlying value
func (tc *treeContent) Equals(other merkletree.Content) (bool, error) {
	h0, err := tc.CalculateHash()
	if err != nil {
		return false, err
	}
	h1, err := other.CalculateHash()
	if err != nil {
		return false, err
	}
	return bytes.Equal(h0, h1), nil
}

// treeIndexes are in-memory merkle indexes maintained alongside the hash-chain
// accumulator: a dense tree over the append-only commitment log and a sparse
// tree over the nullifier set; both are rebuilt from the persisted record on
// load rather than persisted themselves
type treeIndexes struct {
	hash  hash.Hash
	mutex sync.Mutex

	commitmentTree     *merkletree.MerkleTree
	commitmentContents []merkletree.Content

	nullifierTree *smt.SparseMerkleTree
}

func initTreeIndexes() (*treeIndexes, error) {
	return &treeIndexes{
		hash:          mimc.MIMC_BN254.New(),
		nullifierTree: smt.NewSparseMerkleTree(smt.NewSimpleMap(), smt.NewSimpleMap(), mimc.MIMC_BN254.New()),
	}, nil
}

func (t *treeIndexes) digest(val []byte) []byte {
	t.hash.Reset()
	t.hash.Write(val)
	sum := t.hash.Sum(nil)
	t.hash.Reset()
	return sum
}

func (t *treeIndexes) insertCommitment(commitment string) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.commitmentContents = append(t.commitmentContents, &treeContent{
		hash:  mimc.MIMC_BN254.New(),
		value: []byte(commitment),
	})
	return t.rebuildCommitmentTree()
}

// rebuildCommitmentTree rebuilds the dense tree from the current content list;
// the tree cannot be constructed over zero leaves so it remains nil until the
// first commitment is inserted
func (t *treeIndexes) rebuildCommitmentTree() error {
	if len(t.commitmentContents) == 0 {
		t.commitmentTree = nil
		return nil
	}

	if t.commitmentTree != nil {
		return t.commitmentTree.RebuildTreeWith(t.commitmentContents)
	}

	tree, err := merkletree.NewTreeWithHashStrategy(
		t.commitmentContents,
		func() hash.Hash {
			return mimc.MIMC_BN254.New()
		},
	)
	if err != nil {
		return err
	}

	t.commitmentTree = tree
	return nil
}

func (t *treeIndexes) insertNullifier(nullifier string) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	val := []byte(nullifier)
	_, err := t.nullifierTree.Update(t.digest(val), val)
	return err
}

func (t *treeIndexes) containsNullifier(nullifier string) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	val := []byte(nullifier)
	key := t.digest(val)

	proof, err := t.nullifierTree.Prove(key)
	if err != nil {
		return false
	}

	return smt.VerifyProof(proof, t.nullifierTree.Root(), key, val, mimc.MIMC_BN254.New())
}

// commitmentRoot returns the current dense-tree root over the commitment log
func (t *treeIndexes) commitmentRoot() []byte {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.commitmentTree == nil {
		return nil
	}
	return t.commitmentTree.MerkleRoot()
}

// nullifierRoot returns the current sparse-tree root over the nullifier set
func (t *treeIndexes) nullifierRoot() []byte {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.nullifierTree.Root()
}

// rebuild reconstructs both indexes from a persisted record
func (t *treeIndexes) rebuild(record *Record) error {
	t.mutex.Lock()
	t.commitmentContents = make([]merkletree.Content, 0)
	t.commitmentTree = nil
	for _, commitment := range record.Commitments {
		t.commitmentContents = append(t.commitmentContents, &treeContent{
			hash:  mimc.MIMC_BN254.New(),
			value: []byte(commitment),
		})
	}
	err := t.rebuildCommitmentTree()
	t.mutex.Unlock()
	if err != nil {
		return err
	}

	t.mutex.Lock()
	t.nullifierTree = smt.NewSparseMerkleTree(smt.NewSimpleMap(), smt.NewSimpleMap(), mimc.MIMC_BN254.New())
	t.mutex.Unlock()

	for _, nullifier := range record.Nullifiers {
		if err := t.insertNullifier(nullifier); err != nil {
			return err
		}
	}
	return nil
}
