package ledger

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shieldpay/privacy/felt"
	"github.com/shieldpay/privacy/prover"
	"github.com/shieldpay/privacy/store"
	zkp "github.com/shieldpay/privacy/zkp/providers"
)

const testAsset = "tBTC"

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := InitLedger(nil)
	require.NoError(t, err)
	return l
}

func mockProver() *prover.Service {
	return prover.InitService(zkp.InitMockProofBackend())
}

// mintNote ingests a fresh unspent note for the given hint and returns the
// witness view a spender would hold
func mintNote(t *testing.T, l *Ledger, hint, amount string) prover.InputNote {
	t.Helper()

	blinding, err := felt.RandomHex(8)
	require.NoError(t, err)

	commitment := felt.DeriveCommitment(hint, testAsset, amount, blinding)
	_, err = l.IngestCommitment(commitment, hint, &IngestNoteParams{
		OwnerHint: hint,
		Asset:     testAsset,
		Amount:    amount,
		Blinding:  blinding,
	}, nil)
	require.NoError(t, err)

	return prover.InputNote{
		Commitment: commitment,
		Amount:     amount,
		Blinding:   blinding,
	}
}

func buildTransfer(t *testing.T, l *Ledger, senderHint string, input prover.InputNote, outputs []prover.OutputNote, fee string) *TransferExecutionRequest {
	t.Helper()

	root := l.GetRoot().Root
	response, err := mockProver().CreateTransferProof(&prover.TransferProofRequest{
		Root:         root,
		InputNotes:   []prover.InputNote{input},
		OutputNotes:  outputs,
		FeeAmount:    fee,
		Asset:        testAsset,
		SenderSecret: senderHint + "-secret",
	})
	require.NoError(t, err)

	return &TransferExecutionRequest{
		SenderHint:  senderHint,
		Root:        root,
		Asset:       testAsset,
		FeeAmount:   fee,
		InputNotes:  []prover.InputNote{input},
		OutputNotes: outputs,
		ProofBundle: response.Bundle,
	}
}

func buildWithdraw(t *testing.T, l *Ledger, senderHint string, input prover.InputNote, recipient, amount, fee string, changeBlinding *string) *WithdrawExecutionRequest {
	t.Helper()

	root := l.GetRoot().Root
	response, err := mockProver().CreateWithdrawProof(&prover.WithdrawProofRequest{
		Root:         root,
		InputNotes:   []prover.InputNote{input},
		Recipient:    recipient,
		Amount:       amount,
		FeeAmount:    fee,
		Asset:        testAsset,
		SenderSecret: senderHint + "-secret",
	})
	require.NoError(t, err)

	return &WithdrawExecutionRequest{
		SenderHint:     senderHint,
		Root:           root,
		Asset:          testAsset,
		Recipient:      recipient,
		WithdrawAmount: amount,
		FeeAmount:      fee,
		InputNotes:     []prover.InputNote{input},
		ChangeBlinding: changeBlinding,
		ProofBundle:    response.Bundle,
	}
}

func unspentNotes(l *Ledger, hint string) []*ShieldedNote {
	notes := make([]*ShieldedNote, 0)
	for _, note := range l.GetNotes(hint) {
		if note.Spendable() {
			notes = append(notes, note)
		}
	}
	return notes
}

func TestIngestCommitmentAdvancesRoot(t *testing.T) {
	l := newTestLedger(t)

	initial := l.GetRoot()
	assert.Equal(t, felt.GenesisRoot, initial.Root)
	assert.Equal(t, 0, initial.CommitmentCount)

	mintNote(t, l, "alice", "100")

	next := l.GetRoot()
	assert.NotEqual(t, initial.Root, next.Root)
	assert.Equal(t, 1, next.CommitmentCount)
	assert.True(t, l.IsKnownRoot(initial.Root))
	assert.True(t, l.IsKnownRoot(next.Root))
}

func TestRootMonotonicity(t *testing.T) {
	l := newTestLedger(t)

	expectedRoot := felt.GenesisRoot
	roots := []string{expectedRoot}

	for i := 0; i < 5; i++ {
		note := mintNote(t, l, "alice", fmt.Sprintf("%d", 10+i))
		expectedRoot = felt.DeriveRoot(expectedRoot, note.Commitment, i)
		roots = append(roots, expectedRoot)
	}

	current := l.GetRoot()
	assert.Equal(t, expectedRoot, current.Root)
	assert.Equal(t, 5, current.CommitmentCount)

	for _, root := range roots {
		assert.True(t, l.IsKnownRoot(root), "root %s must remain known", root)
	}
}

func TestSpendNullifierTwiceFails(t *testing.T) {
	l := newTestLedger(t)

	nullifier := felt.ToField("12345")
	require.NoError(t, l.SpendNullifier(nullifier))
	assert.True(t, l.IsNullifierUsed(nullifier))

	err := l.SpendNullifier(nullifier)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already used")
}

func TestMarkNoteSpentTwiceFails(t *testing.T) {
	l := newTestLedger(t)

	input := mintNote(t, l, "alice", "100")
	nullifier := felt.ToField("0x111")

	note, err := l.MarkNoteSpent("alice", input.Commitment, nullifier)
	require.NoError(t, err)
	require.NotNil(t, note.Nullifier)
	assert.Equal(t, nullifier, *note.Nullifier)

	// the note mutates exactly once; a second mark must not overwrite the
	// recorded nullifier
	_, err = l.MarkNoteSpent("alice", input.Commitment, felt.ToField("0x222"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	spent := l.GetNotes("alice")[0]
	require.NotNil(t, spent.Nullifier)
	assert.Equal(t, nullifier, *spent.Nullifier)
}

func TestSimpleTransferScenario(t *testing.T) {
	l := newTestLedger(t)

	input := mintNote(t, l, "alice", "100")
	request := buildTransfer(t, l, "alice", input, []prover.OutputNote{
		{OwnerHint: "bob", Amount: "30", Blinding: "blind-bob"},
		{OwnerHint: "alice", Amount: "65", Blinding: "blind-change"},
	}, "5")

	result, err := l.ExecutePrivateTransfer(request)
	require.NoError(t, err)

	assert.NotEqual(t, request.Root, result.NewRoot)
	assert.Len(t, result.Nullifiers, 1)
	assert.Equal(t, []string{input.Commitment}, result.SpentCommitments)
	assert.Len(t, result.InsertedCommitments, 2)

	bobNotes := unspentNotes(l, "bob")
	require.Len(t, bobNotes, 1)
	assert.Equal(t, "30", bobNotes[0].Amount)

	aliceNotes := unspentNotes(l, "alice")
	require.Len(t, aliceNotes, 1)
	assert.Equal(t, "65", aliceNotes[0].Amount)

	for _, note := range l.GetNotes("alice") {
		if note.Commitment == input.Commitment {
			assert.False(t, note.Spendable())
			require.NotNil(t, note.Nullifier)
			assert.Equal(t, result.Nullifiers[0], *note.Nullifier)
		}
	}

	assert.True(t, l.IsNullifierUsed(result.Nullifiers[0]))
}

func TestTransferAgainstHistoricalRoot(t *testing.T) {
	l := newTestLedger(t)

	input := mintNote(t, l, "alice", "100")
	request := buildTransfer(t, l, "alice", input, []prover.OutputNote{
		{OwnerHint: "bob", Amount: "100", Blinding: "blind-bob"},
	}, "0")

	// the accumulator advances after the proof was generated
	mintNote(t, l, "carol", "10")
	mintNote(t, l, "dave", "20")
	assert.NotEqual(t, request.Root, l.GetRoot().Root)

	_, err := l.ExecutePrivateTransfer(request)
	require.NoError(t, err)
}

func TestTransferDoubleSpendRejected(t *testing.T) {
	l := newTestLedger(t)

	input := mintNote(t, l, "alice", "100")
	first := buildTransfer(t, l, "alice", input, []prover.OutputNote{
		{OwnerHint: "bob", Amount: "100", Blinding: "blind-1"},
	}, "0")
	_, err := l.ExecutePrivateTransfer(first)
	require.NoError(t, err)

	second := buildTransfer(t, l, "alice", input, []prover.OutputNote{
		{OwnerHint: "carol", Amount: "100", Blinding: "blind-2"},
	}, "0")
	_, err = l.ExecutePrivateTransfer(second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already spent")
}

func TestTransferRejectionLeavesStateUnchanged(t *testing.T) {
	l := newTestLedger(t)

	input := mintNote(t, l, "alice", "100")
	request := buildTransfer(t, l, "alice", input, []prover.OutputNote{
		{OwnerHint: "bob", Amount: "30", Blinding: "blind-bob"},
		{OwnerHint: "alice", Amount: "65", Blinding: "blind-change"},
	}, "5")

	// claim a different fee than the one the proof committed to
	request.FeeAmount = "4"
	request.OutputNotes[1].Amount = "66"

	rootBefore := l.GetRoot()
	snapshotBefore := l.GetSnapshot("alice")

	_, err := l.ExecutePrivateTransfer(request)
	require.Error(t, err)

	rootAfter := l.GetRoot()
	snapshotAfter := l.GetSnapshot("alice")

	assert.Equal(t, rootBefore, rootAfter)
	assert.Equal(t, snapshotBefore.NullifierCount, snapshotAfter.NullifierCount)
	assert.Equal(t, len(snapshotBefore.KnownNotes), len(snapshotAfter.KnownNotes))
	assert.Len(t, unspentNotes(l, "alice"), 1)
}

func TestTransferWitnessMismatchRejected(t *testing.T) {
	l := newTestLedger(t)

	mintNote(t, l, "alice", "100")
	forged := prover.InputNote{
		Commitment: felt.DeriveCommitment("alice", testAsset, "1000", "forged"),
		Amount:     "1000",
		Blinding:   "forged",
	}

	request := buildTransfer(t, l, "alice", forged, []prover.OutputNote{
		{OwnerHint: "bob", Amount: "1000", Blinding: "blind-bob"},
	}, "0")

	_, err := l.ExecutePrivateTransfer(request)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestTransferUnknownRootRejected(t *testing.T) {
	l := newTestLedger(t)

	input := mintNote(t, l, "alice", "100")
	request := buildTransfer(t, l, "alice", input, []prover.OutputNote{
		{OwnerHint: "bob", Amount: "100", Blinding: "blind-bob"},
	}, "0")
	request.Root = felt.ToField("99999")
	request.ProofBundle.PublicInputs.Transfer.Root = request.Root

	_, err := l.ExecutePrivateTransfer(request)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown accumulator root")
}

func TestTransferTamperedBundleRejected(t *testing.T) {
	l := newTestLedger(t)

	input := mintNote(t, l, "alice", "100")
	request := buildTransfer(t, l, "alice", input, []prover.OutputNote{
		{OwnerHint: "bob", Amount: "100", Blinding: "blind-bob"},
	}, "0")

	// inflate an amount after proving; the mock checksum no longer matches
	request.ProofBundle.PublicInputs.Transfer.OutputCommitments[0] = felt.ToField("31337")

	_, err := l.ExecutePrivateTransfer(request)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestWithdrawExactNoChange(t *testing.T) {
	l := newTestLedger(t)

	input := mintNote(t, l, "alice", "100")
	request := buildWithdraw(t, l, "alice", input, "bc1qrecipient", "90", "10", nil)

	result, err := l.ExecutePrivateWithdraw(request)
	require.NoError(t, err)

	assert.Nil(t, result.ChangeCommitment)
	assert.Equal(t, "90", result.WithdrawAmount)
	assert.Equal(t, "bc1qrecipient", result.Recipient)
	assert.Empty(t, unspentNotes(l, "alice"))
	assert.True(t, l.IsNullifierUsed(result.Nullifiers[0]))

	// no change note means the accumulator did not advance
	assert.Equal(t, request.Root, result.NewRoot)
}

func TestWithdrawChangeRequiresBlinding(t *testing.T) {
	l := newTestLedger(t)

	input := mintNote(t, l, "alice", "100")
	request := buildWithdraw(t, l, "alice", input, "bc1qrecipient", "50", "10", nil)

	_, err := l.ExecutePrivateWithdraw(request)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "changeBlinding is required")

	// nothing was consumed
	assert.Len(t, unspentNotes(l, "alice"), 1)
	assert.Equal(t, 0, l.GetSnapshot("alice").NullifierCount)
}

func TestWithdrawWithChange(t *testing.T) {
	l := newTestLedger(t)

	input := mintNote(t, l, "alice", "100")
	changeBlinding := "change-blinding"
	request := buildWithdraw(t, l, "alice", input, "bc1qrecipient", "50", "10", &changeBlinding)

	result, err := l.ExecutePrivateWithdraw(request)
	require.NoError(t, err)

	require.NotNil(t, result.ChangeCommitment)
	expectedChange := felt.DeriveCommitment("alice", testAsset, "40", changeBlinding)
	assert.Equal(t, expectedChange, *result.ChangeCommitment)

	changeNotes := unspentNotes(l, "alice")
	require.Len(t, changeNotes, 1)
	assert.Equal(t, "40", changeNotes[0].Amount)
	assert.Equal(t, expectedChange, changeNotes[0].Commitment)
}

func TestPaymentRequestSettlement(t *testing.T) {
	l := newTestLedger(t)

	requestHash := felt.HashToField("request", "bob", "30")
	_, err := l.CreatePaymentRequest(&PaymentRequest{
		RequestHash:           requestHash,
		ReceiverStealthPubkey: "bob",
		Expiry:                4102444800,
		Asset:                 testAsset,
		AmountCommitment:      felt.AmountToCommitment("30", "request-blinding"),
	})
	require.NoError(t, err)

	input := mintNote(t, l, "alice", "100")
	request := buildTransfer(t, l, "alice", input, []prover.OutputNote{
		{OwnerHint: "bob", Amount: "30", Blinding: "blind-bob"},
		{OwnerHint: "alice", Amount: "70", Blinding: "blind-change"},
	}, "0")
	request.RequestHash = &requestHash

	result, err := l.ExecutePrivateTransfer(request)
	require.NoError(t, err)
	require.NotNil(t, result.PaidRequestHash)
	assert.Equal(t, requestHash, *result.PaidRequestHash)

	paid := l.GetPaymentRequest(requestHash)
	require.NotNil(t, paid)
	assert.True(t, paid.Paid)
	require.NotNil(t, paid.PaidCommitmentRef)
	assert.Equal(t, result.OutputCommitments[0], *paid.PaidCommitmentRef)
}

func TestPaymentRequestDuplicateCreateFails(t *testing.T) {
	l := newTestLedger(t)

	request := &PaymentRequest{
		RequestHash:           felt.ToField("777"),
		ReceiverStealthPubkey: "bob",
		Asset:                 testAsset,
		AmountCommitment:      felt.ToField("1"),
	}
	_, err := l.CreatePaymentRequest(request)
	require.NoError(t, err)

	_, err = l.CreatePaymentRequest(request)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestPaymentRequestDoublePaymentFails(t *testing.T) {
	l := newTestLedger(t)

	requestHash := felt.ToField("888")
	_, err := l.CreatePaymentRequest(&PaymentRequest{
		RequestHash:           requestHash,
		ReceiverStealthPubkey: "bob",
		Asset:                 testAsset,
		AmountCommitment:      felt.ToField("1"),
	})
	require.NoError(t, err)

	_, err = l.MarkPaymentRequestPaid(requestHash, felt.ToField("2"))
	require.NoError(t, err)

	_, err = l.MarkPaymentRequestPaid(requestHash, felt.ToField("3"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already paid")
}

func TestPaymentRequestReceiverMismatchRejected(t *testing.T) {
	l := newTestLedger(t)

	requestHash := felt.ToField("999")
	_, err := l.CreatePaymentRequest(&PaymentRequest{
		RequestHash:           requestHash,
		ReceiverStealthPubkey: "carol",
		Asset:                 testAsset,
		AmountCommitment:      felt.ToField("1"),
	})
	require.NoError(t, err)

	input := mintNote(t, l, "alice", "100")
	request := buildTransfer(t, l, "alice", input, []prover.OutputNote{
		{OwnerHint: "bob", Amount: "100", Blinding: "blind-bob"},
	}, "0")
	request.RequestHash = &requestHash

	_, err = l.ExecutePrivateTransfer(request)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "receiver does not match")
}

func TestGetSnapshot(t *testing.T) {
	l := newTestLedger(t)

	mintNote(t, l, "alice", "100")
	mintNote(t, l, "alice", "50")
	mintNote(t, l, "bob", "25")

	_, err := l.CreatePaymentRequest(&PaymentRequest{
		RequestHash:           felt.ToField("123"),
		ReceiverStealthPubkey: "alice",
		Asset:                 testAsset,
		AmountCommitment:      felt.ToField("1"),
	})
	require.NoError(t, err)

	snapshot := l.GetSnapshot("alice")
	assert.Equal(t, l.GetRoot().Root, snapshot.Root)
	assert.Equal(t, 3, snapshot.TotalCommitments)
	assert.Len(t, snapshot.KnownNotes, 2)
	assert.Len(t, snapshot.PendingRequests, 1)
	assert.Equal(t, 0, snapshot.NullifierCount)
	require.NotNil(t, snapshot.CommitmentTreeRoot)
	assert.Regexp(t, "^0x[0-9a-f]+$", *snapshot.CommitmentTreeRoot)
	assert.NotEmpty(t, snapshot.LastSyncedAt)
}

func TestLedgerRestoreFromFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")

	s, err := store.InitStore("ledger", "file", path)
	require.NoError(t, err)

	l, err := InitLedger(s)
	require.NoError(t, err)

	mintNote(t, l, "alice", "100")
	mintNote(t, l, "bob", "50")
	expected := l.GetRoot()

	// a restarted process constructs its own store over the same path
	reopened, err := store.InitStore("ledger", "file", path)
	require.NoError(t, err)

	restored, err := InitLedger(reopened)
	require.NoError(t, err)

	assert.Equal(t, expected, restored.GetRoot())
	assert.Len(t, restored.GetNotes("alice"), 1)
	assert.Len(t, restored.GetNotes("bob"), 1)
	assert.True(t, restored.IsKnownRoot(felt.GenesisRoot))
}

func TestLedgerRestoreFromLevelDBStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots")

	s, err := store.InitStore("ledger", "leveldb", path)
	require.NoError(t, err)

	l, err := InitLedger(s)
	require.NoError(t, err)

	input := mintNote(t, l, "alice", "100")
	request := buildTransfer(t, l, "alice", input, []prover.OutputNote{
		{OwnerHint: "bob", Amount: "100", Blinding: "blind-bob"},
	}, "0")
	_, err = l.ExecutePrivateTransfer(request)
	require.NoError(t, err)

	expected := l.GetRoot()
	require.NoError(t, s.Close())

	reopened, err := store.InitStore("ledger", "leveldb", path)
	require.NoError(t, err)
	defer reopened.Close()

	restored, err := InitLedger(reopened)
	require.NoError(t, err)

	assert.Equal(t, expected, restored.GetRoot())
	assert.True(t, restored.IsNullifierUsed(request.ProofBundle.PublicInputs.Transfer.InputNullifiers[0]))
	require.Len(t, restored.GetNotes("bob"), 1)
	assert.Equal(t, "100", restored.GetNotes("bob")[0].Amount)
}
