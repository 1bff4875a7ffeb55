package gnark

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/test"
)

func TestTransferCircuit(t *testing.T) {
	assert := test.NewAssert(t)

	var circuit TransferCircuit

	assert.ProverSucceeded(&circuit, &TransferCircuit{
		Root:             1,
		Asset:            2,
		InCommitments:    [2]frontend.Variable{11, 21},
		InputNullifiers:  [2]frontend.Variable{16, 26},
		OutCommitments:   [2]frontend.Variable{31, 41},
		FeeCommitment:    99,
		SenderSecret:     5,
		InAmounts:        [2]frontend.Variable{60, 40},
		OutAmounts:       [2]frontend.Variable{30, 65},
		Fee:              5,
		RootIn:           1,
		AssetIn:          2,
		OutCommitmentsIn: [2]frontend.Variable{31, 41},
		FeeCommitmentIn:  99,
	}, test.WithCurves(ecc.BN254), test.WithBackends(backend.GROTH16))
}

func TestTransferCircuitPaddedInputSlot(t *testing.T) {
	assert := test.NewAssert(t)

	var circuit TransferCircuit

	// single-input transfer: the unused slot carries a zero commitment, a
	// zero amount and a nullifier of 0 + senderSecret
	assert.ProverSucceeded(&circuit, &TransferCircuit{
		Root:             1,
		Asset:            2,
		InCommitments:    [2]frontend.Variable{11, 0},
		InputNullifiers:  [2]frontend.Variable{16, 5},
		OutCommitments:   [2]frontend.Variable{31, 41},
		FeeCommitment:    99,
		SenderSecret:     5,
		InAmounts:        [2]frontend.Variable{100, 0},
		OutAmounts:       [2]frontend.Variable{30, 65},
		Fee:              5,
		RootIn:           1,
		AssetIn:          2,
		OutCommitmentsIn: [2]frontend.Variable{31, 41},
		FeeCommitmentIn:  99,
	}, test.WithCurves(ecc.BN254), test.WithBackends(backend.GROTH16))
}

func TestTransferCircuitConservationViolation(t *testing.T) {
	assert := test.NewAssert(t)

	var circuit TransferCircuit

	assert.ProverFailed(&circuit, &TransferCircuit{
		Root:             1,
		Asset:            2,
		InCommitments:    [2]frontend.Variable{11, 21},
		InputNullifiers:  [2]frontend.Variable{16, 26},
		OutCommitments:   [2]frontend.Variable{31, 41},
		FeeCommitment:    99,
		SenderSecret:     5,
		InAmounts:        [2]frontend.Variable{60, 40},
		OutAmounts:       [2]frontend.Variable{30, 66},
		Fee:              5,
		RootIn:           1,
		AssetIn:          2,
		OutCommitmentsIn: [2]frontend.Variable{31, 41},
		FeeCommitmentIn:  99,
	}, test.WithCurves(ecc.BN254), test.WithBackends(backend.GROTH16))
}

func TestTransferCircuitNullifierBinding(t *testing.T) {
	assert := test.NewAssert(t)

	var circuit TransferCircuit

	assert.ProverFailed(&circuit, &TransferCircuit{
		Root:             1,
		Asset:            2,
		InCommitments:    [2]frontend.Variable{11, 21},
		InputNullifiers:  [2]frontend.Variable{17, 26},
		OutCommitments:   [2]frontend.Variable{31, 41},
		FeeCommitment:    99,
		SenderSecret:     5,
		InAmounts:        [2]frontend.Variable{60, 40},
		OutAmounts:       [2]frontend.Variable{30, 65},
		Fee:              5,
		RootIn:           1,
		AssetIn:          2,
		OutCommitmentsIn: [2]frontend.Variable{31, 41},
		FeeCommitmentIn:  99,
	}, test.WithCurves(ecc.BN254), test.WithBackends(backend.GROTH16))
}

func TestTransferCircuitOutputCommitmentBinding(t *testing.T) {
	assert := test.NewAssert(t)

	var circuit TransferCircuit

	assert.ProverFailed(&circuit, &TransferCircuit{
		Root:             1,
		Asset:            2,
		InCommitments:    [2]frontend.Variable{11, 21},
		InputNullifiers:  [2]frontend.Variable{16, 26},
		OutCommitments:   [2]frontend.Variable{31, 42},
		FeeCommitment:    99,
		SenderSecret:     5,
		InAmounts:        [2]frontend.Variable{60, 40},
		OutAmounts:       [2]frontend.Variable{30, 65},
		Fee:              5,
		RootIn:           1,
		AssetIn:          2,
		OutCommitmentsIn: [2]frontend.Variable{31, 41},
		FeeCommitmentIn:  99,
	}, test.WithCurves(ecc.BN254), test.WithBackends(backend.GROTH16))
}

func TestWithdrawCircuit(t *testing.T) {
	assert := test.NewAssert(t)

	var circuit WithdrawCircuit

	assert.ProverSucceeded(&circuit, &WithdrawCircuit{
		Root:               1,
		Asset:              2,
		InCommitment:       11,
		Recipient:          7,
		InputNullifier:     16,
		AmountCommitment:   88,
		FeeCommitment:      99,
		SenderSecret:       5,
		InAmount:           100,
		WithdrawAmount:     90,
		Fee:                10,
		RootIn:             1,
		AssetIn:            2,
		RecipientIn:        7,
		AmountCommitmentIn: 88,
		FeeCommitmentIn:    99,
	}, test.WithCurves(ecc.BN254), test.WithBackends(backend.GROTH16))
}

func TestWithdrawCircuitPartialSpendFails(t *testing.T) {
	assert := test.NewAssert(t)

	var circuit WithdrawCircuit

	assert.ProverFailed(&circuit, &WithdrawCircuit{
		Root:               1,
		Asset:              2,
		InCommitment:       11,
		Recipient:          7,
		InputNullifier:     16,
		AmountCommitment:   88,
		FeeCommitment:      99,
		SenderSecret:       5,
		InAmount:           100,
		WithdrawAmount:     50,
		Fee:                10,
		RootIn:             1,
		AssetIn:            2,
		RecipientIn:        7,
		AmountCommitmentIn: 88,
		FeeCommitmentIn:    99,
	}, test.WithCurves(ecc.BN254), test.WithBackends(backend.GROTH16))
}

func TestWithdrawCircuitRecipientBinding(t *testing.T) {
	assert := test.NewAssert(t)

	var circuit WithdrawCircuit

	assert.ProverFailed(&circuit, &WithdrawCircuit{
		Root:               1,
		Asset:              2,
		InCommitment:       11,
		Recipient:          8,
		InputNullifier:     16,
		AmountCommitment:   88,
		FeeCommitment:      99,
		SenderSecret:       5,
		InAmount:           100,
		WithdrawAmount:     90,
		Fee:                10,
		RootIn:             1,
		AssetIn:            2,
		RecipientIn:        7,
		AmountCommitmentIn: 88,
		FeeCommitmentIn:    99,
	}, test.WithCurves(ecc.BN254), test.WithBackends(backend.GROTH16))
}
