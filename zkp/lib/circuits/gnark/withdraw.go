package gnark

import (
	"github.com/consensys/gnark/frontend"
)

// WithdrawCircuit proves a single-input shielded withdrawal: the nullifier is
// bound to the consumed commitment and the sender secret, each public input is
// bound to its witness counterpart, and the input value is exactly exhausted
// by the withdrawal plus the fee. Public signal order follows field
// declaration order:
// [root, asset, inCommitment, recipient, inputNullifier, amountCommitment, feeCommitment]
type WithdrawCircuit struct {
	Root             frontend.Variable `gnark:",public"`
	Asset            frontend.Variable `gnark:",public"`
	InCommitment     frontend.Variable `gnark:",public"`
	Recipient        frontend.Variable `gnark:",public"`
	InputNullifier   frontend.Variable `gnark:",public"`
	AmountCommitment frontend.Variable `gnark:",public"`
	FeeCommitment    frontend.Variable `gnark:",public"`

	SenderSecret       frontend.Variable
	InAmount           frontend.Variable
	WithdrawAmount     frontend.Variable
	Fee                frontend.Variable
	RootIn             frontend.Variable
	AssetIn            frontend.Variable
	RecipientIn        frontend.Variable
	AmountCommitmentIn frontend.Variable
	FeeCommitmentIn    frontend.Variable
}

// Define the withdraw circuit
func (circuit *WithdrawCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(circuit.Root, circuit.RootIn)
	api.AssertIsEqual(circuit.Asset, circuit.AssetIn)
	api.AssertIsEqual(circuit.Recipient, circuit.RecipientIn)

	nullifier := api.Add(circuit.InCommitment, circuit.SenderSecret)
	api.AssertIsEqual(circuit.InputNullifier, nullifier)

	api.AssertIsEqual(circuit.InAmount, api.Add(circuit.WithdrawAmount, circuit.Fee))

	api.AssertIsEqual(circuit.AmountCommitment, circuit.AmountCommitmentIn)
	api.AssertIsEqual(circuit.FeeCommitment, circuit.FeeCommitmentIn)

	return nil
}
