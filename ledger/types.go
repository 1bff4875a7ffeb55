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
	"github.com/shieldpay/privacy/proof"
	"github.com/shieldpay/privacy/prover"
)

// ShieldedNote is a confidential value commitment; created by ingestion and
// mutated exactly once, to set Nullifier and SpentAt, when consumed
type ShieldedNote struct {
	NoteID     string  `json:"note_id"`
	OwnerHint  string  `json:"owner_hint"`
	Asset      string  `json:"asset"`
	Amount     string  `json:"amount"`
	Blinding   string  `json:"blinding"`
	Commitment string  `json:"commitment"`
	Nullifier  *string `json:"nullifier,omitempty"`
	CreatedAt  string  `json:"created_at"`
	SpentAt    *string `json:"spent_at,omitempty"`
}

// Spendable returns true if the note has not been consumed
func (n *ShieldedNote) Spendable() bool {
	return n.SpentAt == nil
}

// NoteCiphertext is the recipient-encrypted note payload keyed by commitment;
// stored verbatim and never interpreted
type NoteCiphertext struct {
	Commitment      string `json:"commitment"`
	RecipientHint   string `json:"recipient_hint"`
	EphemeralPubKey string `json:"ephemeral_pub_key"`
	Ciphertext      string `json:"ciphertext"`
	Nonce           string `json:"nonce"`
}

// PaymentRequest is a receiver-published request for a shielded payment;
// created once and paid at most once
type PaymentRequest struct {
	RequestHash           string  `json:"request_hash"`
	ReceiverStealthPubkey string  `json:"receiver_stealth_pubkey"`
	Expiry                int64   `json:"expiry"`
	Memo                  *string `json:"memo,omitempty"`
	Asset                 string  `json:"asset"`
	AmountCommitment      string  `json:"amount_commitment"`
	CreatedAt             string  `json:"created_at"`
	Paid                  bool    `json:"paid"`
	PaidCommitmentRef     *string `json:"paid_commitment_ref,omitempty"`
}

// WalletSnapshot is a derived, read-only view of the ledger for one wallet hint
type WalletSnapshot struct {
	Root               string            `json:"root"`
	TotalCommitments   int               `json:"total_commitments"`
	KnownNotes         []*ShieldedNote   `json:"known_notes"`
	PendingRequests    []*PaymentRequest `json:"pending_requests"`
	NullifierCount     int               `json:"nullifier_count"`
	CommitmentTreeRoot *string           `json:"commitment_tree_root,omitempty"`
	NullifierTreeRoot  *string           `json:"nullifier_tree_root,omitempty"`
	LastSyncedAt       string            `json:"last_synced_at"`
}

// IngestNoteParams describes the plaintext note fields recorded alongside an
// ingested commitment
type IngestNoteParams struct {
	OwnerHint string `json:"owner_hint"`
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
	Blinding  string `json:"blinding"`
}

// IngestResult reports the accumulator position assigned to an ingested commitment
type IngestResult struct {
	Root  string `json:"root"`
	Index int    `json:"index"`
}

// RootResult reports the current accumulator root and insertion count
type RootResult struct {
	Root            string `json:"root"`
	CommitmentCount int    `json:"commitment_count"`
}

// TransferExecutionRequest submits a transfer proof bundle together with the
// claimed plaintext witness it was generated from
type TransferExecutionRequest struct {
	SenderHint  string              `json:"sender_hint"`
	Root        string              `json:"root"`
	Asset       string              `json:"asset"`
	FeeAmount   string              `json:"fee_amount"`
	InputNotes  []prover.InputNote  `json:"input_notes"`
	OutputNotes []prover.OutputNote `json:"output_notes"`
	ProofBundle *proof.Bundle       `json:"proof_bundle"`
	RequestHash *string             `json:"request_hash,omitempty"`
}

// InsertedCommitment identifies a commitment inserted by a transfer execution
type InsertedCommitment struct {
	Commitment string `json:"commitment"`
	OwnerHint  string `json:"owner_hint"`
	Index      int    `json:"index"`
}

// TransferExecutionResult reports the state transition applied by a transfer
type TransferExecutionResult struct {
	NewRoot             string                `json:"new_root"`
	Nullifiers          []string              `json:"nullifiers"`
	SpentCommitments    []string              `json:"spent_commitments"`
	OutputCommitments   []string              `json:"output_commitments"`
	InsertedCommitments []*InsertedCommitment `json:"inserted_commitments"`
	PaidRequestHash     *string               `json:"paid_request_hash,omitempty"`
}

// WithdrawExecutionRequest submits a withdraw proof bundle together with the
// claimed plaintext witness it was generated from
type WithdrawExecutionRequest struct {
	SenderHint     string             `json:"sender_hint"`
	Root           string             `json:"root"`
	Asset          string             `json:"asset"`
	Recipient      string             `json:"recipient"`
	WithdrawAmount string             `json:"withdraw_amount"`
	FeeAmount      string             `json:"fee_amount"`
	InputNotes     []prover.InputNote `json:"input_notes"`
	ChangeBlinding *string            `json:"change_blinding,omitempty"`
	ProofBundle    *proof.Bundle      `json:"proof_bundle"`
}

// WithdrawExecutionResult reports the state transition applied by a withdraw
type WithdrawExecutionResult struct {
	NewRoot          string   `json:"new_root"`
	Nullifiers       []string `json:"nullifiers"`
	SpentCommitments []string `json:"spent_commitments"`
	AmountCommitment string   `json:"amount_commitment"`
	ChangeCommitment *string  `json:"change_commitment,omitempty"`
	Recipient        string   `json:"recipient"`
	WithdrawAmount   string   `json:"withdraw_amount"`
}

// Record is the full persisted ledger state; serialized in its entirety to the
// configured snapshot provider after every mutation
type Record struct {
	Root            string                     `json:"root"`
	CommitmentCount int                        `json:"commitment_count"`
	Nullifiers      []string                   `json:"nullifiers"`
	Commitments     []string                   `json:"commitments"`
	NotesByHint     map[string][]*ShieldedNote `json:"notes_by_hint"`
	Ciphertexts     map[string]*NoteCiphertext `json:"ciphertexts"`
	PaymentRequests map[string]*PaymentRequest `json:"payment_requests"`
	KnownRoots      []string                   `json:"known_roots"`
}
