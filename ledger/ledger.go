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
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/shieldpay/privacy/common"
	"github.com/shieldpay/privacy/felt"
	"github.com/shieldpay/privacy/proof"
	"github.com/shieldpay/privacy/store"
)

// Ledger is the authoritative commitment state machine: note ownership index,
// nullifier set, append-only accumulator and payment-request registry. All
// mutating operations are serialized behind a single write lock and follow a
// validate-then-mutate-then-persist discipline; reads proceed concurrently
type Ledger struct {
	mutex   sync.RWMutex
	record  *Record
	store   *store.Store
	indexes *treeIndexes
}

func initialRecord() *Record {
	return &Record{
		Root:            felt.GenesisRoot,
		CommitmentCount: 0,
		Nullifiers:      make([]string, 0),
		Commitments:     make([]string, 0),
		NotesByHint:     make(map[string][]*ShieldedNote),
		Ciphertexts:     make(map[string]*NoteCiphertext),
		PaymentRequests: make(map[string]*PaymentRequest),
		KnownRoots:      []string{felt.GenesisRoot},
	}
}

// InitLedger initializes a ledger over the given snapshot store; a nil store
// yields a purely in-memory ledger. A missing or unparseable prior snapshot
// falls back to the empty initial state
func InitLedger(s *store.Store) (*Ledger, error) {
	indexes, err := initTreeIndexes()
	if err != nil {
		return nil, err
	}

	l := &Ledger{
		record:  initialRecord(),
		store:   s,
		indexes: indexes,
	}

	if s == nil {
		return l, nil
	}

	raw, found, err := s.Load()
	if err != nil {
		common.Log.Warningf("failed to load ledger snapshot; resuming from initial state; %s", err.Error())
		return l, nil
	}

	if !found {
		return l, nil
	}

	record := &Record{}
	if err := json.Unmarshal(raw, record); err != nil {
		common.Log.Warningf("failed to parse ledger snapshot; resuming from initial state; %s", err.Error())
		return l, nil
	}

	if record.NotesByHint == nil {
		record.NotesByHint = make(map[string][]*ShieldedNote)
	}
	if record.Ciphertexts == nil {
		record.Ciphertexts = make(map[string]*NoteCiphertext)
	}
	if record.PaymentRequests == nil {
		record.PaymentRequests = make(map[string]*PaymentRequest)
	}

	l.record = record
	if err := l.indexes.rebuild(record); err != nil {
		return nil, err
	}

	common.Log.Debugf("restored ledger snapshot; root: %s; %d commitments", record.Root, record.CommitmentCount)
	return l, nil
}

func nowTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func (l *Ledger) cloneRecord() *Record {
	raw, _ := json.Marshal(l.record)
	clone := &Record{}
	json.Unmarshal(raw, clone)
	if clone.NotesByHint == nil {
		clone.NotesByHint = make(map[string][]*ShieldedNote)
	}
	if clone.Ciphertexts == nil {
		clone.Ciphertexts = make(map[string]*NoteCiphertext)
	}
	if clone.PaymentRequests == nil {
		clone.PaymentRequests = make(map[string]*PaymentRequest)
	}
	return clone
}

// persist serializes the full record to the snapshot store, synchronously with
// the mutation that triggered it
func (l *Ledger) persist() error {
	if l.store == nil {
		return nil
	}

	raw, err := json.Marshal(l.record)
	if err != nil {
		return common.NewConfigurationError("failed to serialize ledger snapshot; %s", err.Error())
	}

	if err := l.store.Save(raw); err != nil {
		return common.NewConfigurationError("failed to persist ledger snapshot; %s", err.Error())
	}

	return nil
}

// rollback restores the record captured before a failed mutation so the
// in-memory state never diverges from the last durably committed state
func (l *Ledger) rollback(prev *Record) {
	l.record = prev
	if err := l.indexes.rebuild(prev); err != nil {
		common.Log.Warningf("failed to rebuild ledger tree indexes on rollback; %s", err.Error())
	}
}

func assertEqualArray(actual, expected []string, label string) error {
	if len(actual) != len(expected) {
		return common.NewValidationError("%s length mismatch", label)
	}
	for i := range actual {
		if actual[i] != expected[i] {
			return common.NewValidationError("%s mismatch at index %d", label, i)
		}
	}
	return nil
}

func assertBundleShape(bundle *proof.Bundle) error {
	if bundle == nil {
		return common.NewValidationError("proof bundle required")
	}
	if len(bundle.Proof) == 0 {
		return common.NewValidationError("proof payload is empty")
	}
	if bundle.Mock && !proof.IsMockBundleConsistent(bundle) {
		return common.NewValidationError("mock proof checksum mismatch")
	}
	return nil
}

func (l *Ledger) getUnspentNoteByCommitment(walletHint, commitment string) (*ShieldedNote, error) {
	for _, note := range l.record.NotesByHint[walletHint] {
		if note.Commitment == commitment {
			if !note.Spendable() {
				return nil, common.NewConflictError("input note %s already spent", commitment)
			}
			return note, nil
		}
	}
	return nil, common.NewConflictError("input note %s not found for %s", commitment, walletHint)
}

func (l *Ledger) isKnownRoot(root string) bool {
	for _, known := range l.record.KnownRoots {
		if known == root {
			return true
		}
	}
	return false
}

func (l *Ledger) isNullifierUsed(nullifier string) bool {
	for _, used := range l.record.Nullifiers {
		if used == nullifier {
			return true
		}
	}
	return false
}

// ingestCommitment appends to the accumulator and note index without taking
// the lock or persisting; callers own both
func (l *Ledger) ingestCommitment(commitment, recipientHint string, note *IngestNoteParams, ciphertext *NoteCiphertext) *IngestResult {
	index := l.record.CommitmentCount
	nextRoot := felt.DeriveRoot(l.record.Root, commitment, index)

	l.record.CommitmentCount++
	l.record.Root = nextRoot
	l.record.Commitments = append(l.record.Commitments, commitment)
	l.record.KnownRoots = append(l.record.KnownRoots, nextRoot)
	l.record.Ciphertexts[commitment] = ciphertext

	l.record.NotesByHint[recipientHint] = append(l.record.NotesByHint[recipientHint], &ShieldedNote{
		NoteID:     fmt.Sprintf("%s-%d", recipientHint, index),
		OwnerHint:  note.OwnerHint,
		Asset:      note.Asset,
		Amount:     note.Amount,
		Blinding:   note.Blinding,
		Commitment: commitment,
		CreatedAt:  nowTimestamp(),
	})

	if err := l.indexes.insertCommitment(commitment); err != nil {
		common.Log.Warningf("failed to index commitment %s; %s", commitment, err.Error())
	}

	return &IngestResult{
		Root:  nextRoot,
		Index: index,
	}
}

func (l *Ledger) spendNullifier(nullifier string) error {
	if l.isNullifierUsed(nullifier) {
		return common.NewConflictError("nullifier already used")
	}

	l.record.Nullifiers = append(l.record.Nullifiers, nullifier)
	if err := l.indexes.insertNullifier(nullifier); err != nil {
		common.Log.Warningf("failed to index nullifier %s; %s", nullifier, err.Error())
	}
	return nil
}

func (l *Ledger) markNoteSpent(walletHint, commitment, nullifier string) (*ShieldedNote, error) {
	notes := l.record.NotesByHint[walletHint]
	if len(notes) == 0 {
		return nil, common.NewConflictError("wallet has no notes")
	}

	for _, note := range notes {
		if note.Commitment == commitment && note.Spendable() {
			now := nowTimestamp()
			note.Nullifier = common.StringOrNil(nullifier)
			note.SpentAt = &now
			return note, nil
		}
	}

	return nil, common.NewConflictError("note not found")
}

// randomCiphertext mints an opaque placeholder ciphertext for a note inserted
// by the ledger itself (transfer outputs, withdraw change)
func randomCiphertext(commitment, recipientHint string) (*NoteCiphertext, error) {
	ephemeralPubKey, err := felt.RandomHex(16)
	if err != nil {
		return nil, err
	}
	ciphertext, err := felt.RandomHex(32)
	if err != nil {
		return nil, err
	}
	nonce, err := felt.RandomHex(12)
	if err != nil {
		return nil, err
	}

	return &NoteCiphertext{
		Commitment:      commitment,
		RecipientHint:   recipientHint,
		EphemeralPubKey: ephemeralPubKey,
		Ciphertext:      ciphertext,
		Nonce:           nonce,
	}, nil
}

// GetRoot returns the current accumulator root and insertion count
func (l *Ledger) GetRoot() *RootResult {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return &RootResult{
		Root:            l.record.Root,
		CommitmentCount: l.record.CommitmentCount,
	}
}

// IsKnownRoot returns true if the given root was ever issued by the accumulator
func (l *Ledger) IsKnownRoot(root string) bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.isKnownRoot(root)
}

// IsNullifierUsed returns true if the given nullifier has been spent
func (l *Ledger) IsNullifierUsed(nullifier string) bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	used := l.isNullifierUsed(nullifier)
	if used && !l.indexes.containsNullifier(nullifier) {
		common.Log.Warningf("nullifier index diverged from ledger record for nullifier %s", nullifier)
	}
	return used
}

// GetNotes returns every note recorded under the given wallet hint
func (l *Ledger) GetNotes(walletHint string) []*ShieldedNote {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	notes := l.record.NotesByHint[walletHint]
	out := make([]*ShieldedNote, len(notes))
	copy(out, notes)
	return out
}

// GetSnapshot returns a derived, read-only view of the ledger for one wallet hint
func (l *Ledger) GetSnapshot(walletHint string) *WalletSnapshot {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	pending := make([]*PaymentRequest, 0)
	for _, request := range l.record.PaymentRequests {
		if !request.Paid && request.ReceiverStealthPubkey == walletHint {
			pending = append(pending, request)
		}
	}

	notes := l.record.NotesByHint[walletHint]
	knownNotes := make([]*ShieldedNote, len(notes))
	copy(knownNotes, notes)

	var commitmentTreeRoot *string
	if root := l.indexes.commitmentRoot(); root != nil {
		commitmentTreeRoot = common.StringOrNil(fmt.Sprintf("0x%s", hex.EncodeToString(root)))
	}

	var nullifierTreeRoot *string
	if root := l.indexes.nullifierRoot(); len(root) > 0 {
		nullifierTreeRoot = common.StringOrNil(fmt.Sprintf("0x%s", hex.EncodeToString(root)))
	}

	return &WalletSnapshot{
		Root:               l.record.Root,
		TotalCommitments:   l.record.CommitmentCount,
		KnownNotes:         knownNotes,
		PendingRequests:    pending,
		NullifierCount:     len(l.record.Nullifiers),
		CommitmentTreeRoot: commitmentTreeRoot,
		NullifierTreeRoot:  nullifierTreeRoot,
		LastSyncedAt:       nowTimestamp(),
	}
}

// IngestCommitment appends a commitment to the accumulator, records its
// ciphertext and appends a new unspent note under the recipient hint; duplicate
// commitments are accepted, mirroring an append-only log
func (l *Ledger) IngestCommitment(commitment, recipientHint string, note *IngestNoteParams, ciphertext *NoteCiphertext) (*IngestResult, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	prev := l.cloneRecord()
	result := l.ingestCommitment(commitment, recipientHint, note, ciphertext)

	if err := l.persist(); err != nil {
		l.rollback(prev)
		return nil, err
	}

	l.dispatchNotification(natsLedgerNotificationNoteDeposited, map[string]interface{}{
		"commitment": commitment,
		"index":      result.Index,
		"root":       result.Root,
	})

	return result, nil
}

// SpendNullifier appends the given nullifier to the nullifier set; fails if
// it was already spent
func (l *Ledger) SpendNullifier(nullifier string) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	prev := l.cloneRecord()
	if err := l.spendNullifier(nullifier); err != nil {
		return err
	}

	if err := l.persist(); err != nil {
		l.rollback(prev)
		return err
	}

	l.dispatchNotification(natsLedgerNotificationNoteNullified, map[string]interface{}{
		"nullifier": nullifier,
	})

	return nil
}

// MarkNoteSpent sets the nullifier and spend timestamp on the matching note
func (l *Ledger) MarkNoteSpent(walletHint, commitment, nullifier string) (*ShieldedNote, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	prev := l.cloneRecord()
	note, err := l.markNoteSpent(walletHint, commitment, nullifier)
	if err != nil {
		return nil, err
	}

	if err := l.persist(); err != nil {
		l.rollback(prev)
		return nil, err
	}

	return note, nil
}

// ExecutePrivateTransfer validates a transfer proof bundle against the claimed
// plaintext witness and, only after every precondition holds, atomically spends
// the input notes and inserts the output commitments
func (l *Ledger) ExecutePrivateTransfer(request *TransferExecutionRequest) (*TransferExecutionResult, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if !l.isKnownRoot(request.Root) {
		return nil, common.NewValidationError("unknown accumulator root")
	}

	if request.ProofBundle == nil || request.ProofBundle.Circuit != proof.CircuitTransfer {
		return nil, common.NewValidationError("transfer execution requires transfer proof bundle")
	}

	if err := assertBundleShape(request.ProofBundle); err != nil {
		return nil, err
	}

	publicInputs := request.ProofBundle.PublicInputs.Transfer
	if publicInputs == nil {
		return nil, common.NewValidationError("transfer execution requires transfer public inputs")
	}

	if publicInputs.Root != request.Root {
		return nil, common.NewValidationError("proof root mismatch")
	}

	if publicInputs.Asset != request.Asset {
		return nil, common.NewValidationError("proof asset mismatch")
	}

	if len(request.InputNotes) == 0 || len(request.OutputNotes) == 0 {
		return nil, common.NewValidationError("transfer needs at least one input and output")
	}

	if len(publicInputs.InputNullifiers) != len(request.InputNotes) {
		return nil, common.NewValidationError("nullifier count mismatch")
	}

	expectedInputCommitments := make([]string, len(request.InputNotes))
	for i, note := range request.InputNotes {
		expectedInputCommitments[i] = note.Commitment
	}
	if err := assertEqualArray(publicInputs.InputCommitments, expectedInputCommitments, "input commitments"); err != nil {
		return nil, err
	}

	expectedOutputCommitments := make([]string, len(request.OutputNotes))
	for i, output := range request.OutputNotes {
		expectedOutputCommitments[i] = felt.DeriveCommitment(output.OwnerHint, request.Asset, output.Amount, output.Blinding)
	}
	if err := assertEqualArray(publicInputs.OutputCommitments, expectedOutputCommitments, "output commitments"); err != nil {
		return nil, err
	}

	feeSeedParts := append([]string{"transfer-fee", request.Asset, request.FeeAmount}, expectedInputCommitments...)
	expectedFeeCommitment := felt.AmountToCommitment(request.FeeAmount, felt.HashToField(feeSeedParts...))
	if publicInputs.FeeCommitment != expectedFeeCommitment {
		return nil, common.NewValidationError("fee commitment mismatch")
	}

	totalIn := new(big.Int)
	for _, note := range request.InputNotes {
		amount, err := felt.ParseNonNegativeAmount(note.Amount, "input amount")
		if err != nil {
			return nil, common.NewValidationError(err.Error())
		}
		totalIn.Add(totalIn, amount)
	}

	totalOut := new(big.Int)
	for _, note := range request.OutputNotes {
		amount, err := felt.ParseNonNegativeAmount(note.Amount, "output amount")
		if err != nil {
			return nil, common.NewValidationError(err.Error())
		}
		totalOut.Add(totalOut, amount)
	}

	fee, err := felt.ParseNonNegativeAmount(request.FeeAmount, "fee amount")
	if err != nil {
		return nil, common.NewValidationError(err.Error())
	}

	if totalIn.Cmp(new(big.Int).Add(totalOut, fee)) != 0 {
		return nil, common.NewValidationError("conservation check failed for transfer")
	}

	for i, input := range request.InputNotes {
		stored, err := l.getUnspentNoteByCommitment(request.SenderHint, input.Commitment)
		if err != nil {
			return nil, err
		}

		if stored.Asset != request.Asset {
			return nil, common.NewValidationError("input note asset mismatch at %d", i)
		}

		if stored.Amount != input.Amount || stored.Blinding != input.Blinding {
			return nil, common.NewValidationError("input note witness mismatch at %d", i)
		}

		if l.isNullifierUsed(publicInputs.InputNullifiers[i]) {
			return nil, common.NewConflictError("nullifier already used at %d", i)
		}
	}

	var requestToPay *PaymentRequest
	if request.RequestHash != nil {
		requestToPay = l.record.PaymentRequests[*request.RequestHash]
		if requestToPay == nil {
			return nil, common.NewValidationError("referenced payment request not found")
		}

		if requestToPay.Paid {
			return nil, common.NewConflictError("referenced payment request is already paid")
		}

		if requestToPay.Asset != request.Asset {
			return nil, common.NewValidationError("payment request asset mismatch")
		}

		if requestToPay.ReceiverStealthPubkey != request.OutputNotes[0].OwnerHint {
			return nil, common.NewValidationError("payment request receiver does not match transfer recipient")
		}
	}

	ciphertexts := make([]*NoteCiphertext, len(request.OutputNotes))
	for i, output := range request.OutputNotes {
		ciphertexts[i], err = randomCiphertext(expectedOutputCommitments[i], output.OwnerHint)
		if err != nil {
			return nil, common.NewConfigurationError("failed to mint note ciphertext; %s", err.Error())
		}
	}

	// all preconditions hold; mutate
	prev := l.cloneRecord()

	spentCommitments := make([]string, 0, len(request.InputNotes))
	for i, input := range request.InputNotes {
		nullifier := publicInputs.InputNullifiers[i]
		if err := l.spendNullifier(nullifier); err != nil {
			l.rollback(prev)
			return nil, err
		}
		if _, err := l.markNoteSpent(request.SenderHint, input.Commitment, nullifier); err != nil {
			l.rollback(prev)
			return nil, err
		}
		spentCommitments = append(spentCommitments, input.Commitment)
	}

	insertedCommitments := make([]*InsertedCommitment, 0, len(request.OutputNotes))
	for i, output := range request.OutputNotes {
		commitment := expectedOutputCommitments[i]
		result := l.ingestCommitment(commitment, output.OwnerHint, &IngestNoteParams{
			OwnerHint: output.OwnerHint,
			Asset:     request.Asset,
			Amount:    output.Amount,
			Blinding:  output.Blinding,
		}, ciphertexts[i])

		insertedCommitments = append(insertedCommitments, &InsertedCommitment{
			Commitment: commitment,
			OwnerHint:  output.OwnerHint,
			Index:      result.Index,
		})
	}

	if requestToPay != nil {
		requestToPay.Paid = true
		requestToPay.PaidCommitmentRef = common.StringOrNil(expectedOutputCommitments[0])
	}

	if err := l.persist(); err != nil {
		l.rollback(prev)
		return nil, err
	}

	result := &TransferExecutionResult{
		NewRoot:             l.record.Root,
		Nullifiers:          publicInputs.InputNullifiers,
		SpentCommitments:    spentCommitments,
		OutputCommitments:   expectedOutputCommitments,
		InsertedCommitments: insertedCommitments,
		PaidRequestHash:     request.RequestHash,
	}

	l.dispatchNotification(natsLedgerNotificationTransferExecuted, map[string]interface{}{
		"root":               result.NewRoot,
		"nullifiers":         result.Nullifiers,
		"output_commitments": result.OutputCommitments,
	})
	if request.RequestHash != nil {
		l.dispatchNotification(natsLedgerNotificationRequestPaid, map[string]interface{}{
			"request_hash":   *request.RequestHash,
			"commitment_ref": expectedOutputCommitments[0],
		})
	}

	return result, nil
}

// ExecutePrivateWithdraw validates a withdraw proof bundle against the claimed
// plaintext witness and atomically spends the input notes, minting a change
// note to the sender when the withdrawal leaves a surplus
func (l *Ledger) ExecutePrivateWithdraw(request *WithdrawExecutionRequest) (*WithdrawExecutionResult, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if !l.isKnownRoot(request.Root) {
		return nil, common.NewValidationError("unknown accumulator root")
	}

	if request.ProofBundle == nil || request.ProofBundle.Circuit != proof.CircuitWithdraw {
		return nil, common.NewValidationError("withdraw execution requires withdraw proof bundle")
	}

	if err := assertBundleShape(request.ProofBundle); err != nil {
		return nil, err
	}

	publicInputs := request.ProofBundle.PublicInputs.Withdraw
	if publicInputs == nil {
		return nil, common.NewValidationError("withdraw execution requires withdraw public inputs")
	}

	if publicInputs.Root != request.Root {
		return nil, common.NewValidationError("proof root mismatch")
	}

	if publicInputs.Asset != request.Asset {
		return nil, common.NewValidationError("proof asset mismatch")
	}

	if publicInputs.Recipient != request.Recipient {
		return nil, common.NewValidationError("proof recipient mismatch")
	}

	if len(publicInputs.InputNullifiers) != len(request.InputNotes) {
		return nil, common.NewValidationError("nullifier count mismatch")
	}

	expectedInputCommitments := make([]string, len(request.InputNotes))
	for i, note := range request.InputNotes {
		expectedInputCommitments[i] = note.Commitment
	}
	if err := assertEqualArray(publicInputs.InputCommitments, expectedInputCommitments, "input commitments"); err != nil {
		return nil, err
	}

	expectedAmountCommitment := felt.HashToField("withdraw-amount", request.WithdrawAmount, request.Recipient, request.Asset, request.FeeAmount)
	if publicInputs.AmountCommitment != expectedAmountCommitment {
		return nil, common.NewValidationError("withdraw amount commitment mismatch")
	}

	expectedFeeCommitment := felt.AmountToCommitment(request.FeeAmount, felt.HashToField("withdraw-fee", request.Asset, request.Recipient, request.FeeAmount))
	if publicInputs.FeeCommitment != expectedFeeCommitment {
		return nil, common.NewValidationError("withdraw fee commitment mismatch")
	}

	totalIn := new(big.Int)
	for _, note := range request.InputNotes {
		amount, err := felt.ParseNonNegativeAmount(note.Amount, "input amount")
		if err != nil {
			return nil, common.NewValidationError(err.Error())
		}
		totalIn.Add(totalIn, amount)
	}

	withdrawAmount, err := felt.ParseNonNegativeAmount(request.WithdrawAmount, "withdraw amount")
	if err != nil {
		return nil, common.NewValidationError(err.Error())
	}

	feeAmount, err := felt.ParseNonNegativeAmount(request.FeeAmount, "fee amount")
	if err != nil {
		return nil, common.NewValidationError(err.Error())
	}

	spendTotal := new(big.Int).Add(withdrawAmount, feeAmount)
	if totalIn.Cmp(spendTotal) < 0 {
		return nil, common.NewValidationError("insufficient private balance for withdrawal + fee")
	}

	changeAmount := new(big.Int).Sub(totalIn, spendTotal)
	if changeAmount.Sign() > 0 && request.ChangeBlinding == nil {
		return nil, common.NewValidationError("changeBlinding is required when withdrawal leaves change")
	}

	for i, input := range request.InputNotes {
		stored, err := l.getUnspentNoteByCommitment(request.SenderHint, input.Commitment)
		if err != nil {
			return nil, err
		}

		if stored.Asset != request.Asset {
			return nil, common.NewValidationError("input note asset mismatch at %d", i)
		}

		if stored.Amount != input.Amount || stored.Blinding != input.Blinding {
			return nil, common.NewValidationError("input note witness mismatch at %d", i)
		}

		if l.isNullifierUsed(publicInputs.InputNullifiers[i]) {
			return nil, common.NewConflictError("nullifier already used at %d", i)
		}
	}

	var changeCommitment *string
	var changeCiphertext *NoteCiphertext
	if changeAmount.Sign() > 0 {
		commitment := felt.DeriveCommitment(request.SenderHint, request.Asset, changeAmount.String(), *request.ChangeBlinding)
		changeCommitment = common.StringOrNil(commitment)

		changeCiphertext, err = randomCiphertext(commitment, request.SenderHint)
		if err != nil {
			return nil, common.NewConfigurationError("failed to mint note ciphertext; %s", err.Error())
		}
	}

	// all preconditions hold; mutate
	prev := l.cloneRecord()

	spentCommitments := make([]string, 0, len(request.InputNotes))
	for i, input := range request.InputNotes {
		nullifier := publicInputs.InputNullifiers[i]
		if err := l.spendNullifier(nullifier); err != nil {
			l.rollback(prev)
			return nil, err
		}
		if _, err := l.markNoteSpent(request.SenderHint, input.Commitment, nullifier); err != nil {
			l.rollback(prev)
			return nil, err
		}
		spentCommitments = append(spentCommitments, input.Commitment)
	}

	if changeCommitment != nil {
		l.ingestCommitment(*changeCommitment, request.SenderHint, &IngestNoteParams{
			OwnerHint: request.SenderHint,
			Asset:     request.Asset,
			Amount:    changeAmount.String(),
			Blinding:  *request.ChangeBlinding,
		}, changeCiphertext)
	}

	if err := l.persist(); err != nil {
		l.rollback(prev)
		return nil, err
	}

	result := &WithdrawExecutionResult{
		NewRoot:          l.record.Root,
		Nullifiers:       publicInputs.InputNullifiers,
		SpentCommitments: spentCommitments,
		AmountCommitment: publicInputs.AmountCommitment,
		ChangeCommitment: changeCommitment,
		Recipient:        request.Recipient,
		WithdrawAmount:   request.WithdrawAmount,
	}

	l.dispatchNotification(natsLedgerNotificationWithdrawExecuted, map[string]interface{}{
		"root":       result.NewRoot,
		"nullifiers": result.Nullifiers,
		"recipient":  result.Recipient,
	})

	return result, nil
}

// CreatePaymentRequest registers a receiver-published payment request; the
// request hash must be unique
func (l *Ledger) CreatePaymentRequest(request *PaymentRequest) (*PaymentRequest, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if request == nil || request.RequestHash == "" {
		return nil, common.NewValidationError("payment request hash required")
	}

	if l.record.PaymentRequests[request.RequestHash] != nil {
		return nil, common.NewConflictError("payment request already exists")
	}

	if request.CreatedAt == "" {
		request.CreatedAt = nowTimestamp()
	}
	request.Paid = false
	request.PaidCommitmentRef = nil

	prev := l.cloneRecord()
	l.record.PaymentRequests[request.RequestHash] = request

	if err := l.persist(); err != nil {
		l.rollback(prev)
		return nil, err
	}

	return request, nil
}

// MarkPaymentRequestPaid transitions a request from unpaid to paid exactly once
func (l *Ledger) MarkPaymentRequestPaid(requestHash, commitmentRef string) (*PaymentRequest, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	request := l.record.PaymentRequests[requestHash]
	if request == nil {
		return nil, common.NewValidationError("payment request not found")
	}

	if request.Paid {
		return nil, common.NewConflictError("payment request already paid")
	}

	prev := l.cloneRecord()
	request.Paid = true
	request.PaidCommitmentRef = common.StringOrNil(commitmentRef)

	if err := l.persist(); err != nil {
		l.rollback(prev)
		return nil, err
	}

	l.dispatchNotification(natsLedgerNotificationRequestPaid, map[string]interface{}{
		"request_hash":   requestHash,
		"commitment_ref": commitmentRef,
	})

	return request, nil
}

// GetPaymentRequest returns the payment request with the given hash, if any
func (l *Ledger) GetPaymentRequest(requestHash string) *PaymentRequest {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.record.PaymentRequests[requestHash]
}
