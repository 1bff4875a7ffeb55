package gnark

import (
	"github.com/consensys/gnark/frontend"
)

// TransferCircuit proves a 2-input, 2-output shielded transfer: each input
// nullifier is bound to its commitment and the sender secret, each public
// input is bound to its witness counterpart, and total input value equals
// total output value plus the fee. Unused slots are zeroed by the prover.
// Public signal order follows field declaration order:
// [root, asset, inCommitments[0..1], inputNullifiers[0..1], outputCommitments[0..1], feeCommitment]
type TransferCircuit struct {
	Root            frontend.Variable    `gnark:",public"`
	Asset           frontend.Variable    `gnark:",public"`
	InCommitments   [2]frontend.Variable `gnark:",public"`
	InputNullifiers [2]frontend.Variable `gnark:",public"`
	OutCommitments  [2]frontend.Variable `gnark:",public"`
	FeeCommitment   frontend.Variable    `gnark:",public"`

	SenderSecret     frontend.Variable
	InAmounts        [2]frontend.Variable
	OutAmounts       [2]frontend.Variable
	Fee              frontend.Variable
	RootIn           frontend.Variable
	AssetIn          frontend.Variable
	OutCommitmentsIn [2]frontend.Variable
	FeeCommitmentIn  frontend.Variable
}

// Define the transfer circuit
func (circuit *TransferCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(circuit.Root, circuit.RootIn)
	api.AssertIsEqual(circuit.Asset, circuit.AssetIn)

	for i := 0; i < 2; i++ {
		nullifier := api.Add(circuit.InCommitments[i], circuit.SenderSecret)
		api.AssertIsEqual(circuit.InputNullifiers[i], nullifier)
		api.AssertIsEqual(circuit.OutCommitments[i], circuit.OutCommitmentsIn[i])
	}

	totalIn := api.Add(circuit.InAmounts[0], circuit.InAmounts[1])
	totalOut := api.Add(circuit.OutAmounts[0], circuit.OutAmounts[1])
	api.AssertIsEqual(totalIn, api.Add(totalOut, circuit.Fee))

	api.AssertIsEqual(circuit.FeeCommitment, circuit.FeeCommitmentIn)

	return nil
}
