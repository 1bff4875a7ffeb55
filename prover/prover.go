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

package prover

import (
	"math/big"

	"github.com/shieldpay/privacy/common"
	"github.com/shieldpay/privacy/felt"
	"github.com/shieldpay/privacy/proof"
	zkp "github.com/shieldpay/privacy/zkp/providers"
)

// transfer public signal offsets, in circuit declaration order
const transferSignalOffsetNullifiers = 4
const transferSignalOffsetOutputCommitments = 6
const transferSignalOffsetFeeCommitment = 8

// withdraw public signal offsets, in circuit declaration order
const withdrawSignalOffsetNullifier = 4
const withdrawSignalOffsetAmountCommitment = 5
const withdrawSignalOffsetFeeCommitment = 6

// InputNote is the witness view of a note being consumed
type InputNote struct {
	Commitment string `json:"commitment"`
	Amount     string `json:"amount"`
	Blinding   string `json:"blinding"`
}

// OutputNote is the witness view of a note being created
type OutputNote struct {
	OwnerHint string `json:"owner_hint"`
	Amount    string `json:"amount"`
	Blinding  string `json:"blinding"`
}

// TransferProofRequest is the private witness for a transfer proof
type TransferProofRequest struct {
	Root         string       `json:"root"`
	InputNotes   []InputNote  `json:"input_notes"`
	OutputNotes  []OutputNote `json:"output_notes"`
	FeeAmount    string       `json:"fee_amount"`
	Asset        string       `json:"asset"`
	SenderSecret string       `json:"sender_secret"`
}

// WithdrawProofRequest is the private witness for a withdraw proof
type WithdrawProofRequest struct {
	Root         string      `json:"root"`
	InputNotes   []InputNote `json:"input_notes"`
	Recipient    string      `json:"recipient"`
	Amount       string      `json:"amount"`
	FeeAmount    string      `json:"fee_amount"`
	Asset        string      `json:"asset"`
	SenderSecret string      `json:"sender_secret"`
}

// TransferProofResponse pairs the proof bundle with the witness-derived values
type TransferProofResponse struct {
	Bundle  *proof.Bundle         `json:"bundle"`
	Derived *TransferProofDerived `json:"derived"`
}

// TransferProofDerived are the values the caller needs to construct a ledger
// execution request from the returned bundle
type TransferProofDerived struct {
	OutputBlindings   []string `json:"output_blindings"`
	OutputCommitments []string `json:"output_commitments"`
	InputNullifiers   []string `json:"input_nullifiers"`
}

// WithdrawProofResponse pairs the proof bundle with the witness-derived values
type WithdrawProofResponse struct {
	Bundle  *proof.Bundle         `json:"bundle"`
	Derived *WithdrawProofDerived `json:"derived"`
}

// WithdrawProofDerived are the values the caller needs to construct a ledger
// execution request from the returned bundle
type WithdrawProofDerived struct {
	AmountCommitment string   `json:"amount_commitment"`
	InputNullifiers  []string `json:"input_nullifiers"`
}

// Service is the proof subsystem: it derives every public input from the
// private witness, delegates proof mechanics to the configured backend and
// refuses to return a bundle whose public inputs disagree with the witness
type Service struct {
	backend zkp.ProofBackend
}

// InitService initializes a proof subsystem service over the given backend
func InitService(backend zkp.ProofBackend) *Service {
	return &Service{backend: backend}
}

// proofBackendFactory resolves a proof backend instance per the configured
// backend identifier
func proofBackendFactory() zkp.ProofBackend {
	switch common.ProofBackend {
	case common.ProofBackendGnark:
		backend, err := zkp.InitGnarkProofBackend(common.ZkArtifactsDir)
		if err != nil {
			common.Log.Warningf("failed to initialize gnark proof backend; %s", err.Error())
			return nil
		}
		return backend
	case common.ProofBackendMock:
		return zkp.InitMockProofBackend()
	default:
		common.Log.Warningf("failed to initialize proof backend; unknown backend: %s", common.ProofBackend)
	}

	return nil
}

// InitServiceFromConfig initializes a proof subsystem service using the
// environment-configured backend
func InitServiceFromConfig() *Service {
	backend := proofBackendFactory()
	if backend == nil {
		backend = zkp.InitMockProofBackend()
	}
	return InitService(backend)
}

// deriveCircuitNullifier binds a commitment to the sender secret the way the
// arithmetic circuits do, by field addition of the canonicalized operands
func deriveCircuitNullifier(commitment, senderSecret string) string {
	return felt.Sum(commitment, senderSecret)
}

func sumAmounts(values []string, label string) (*big.Int, error) {
	total := new(big.Int)
	for _, value := range values {
		parsed, err := felt.ParseNonNegativeAmount(value, label)
		if err != nil {
			return nil, err
		}
		total.Add(total, parsed)
	}
	return total, nil
}

// CreateTransferProof derives the transfer public inputs from the witness,
// checks value conservation, proves via the configured backend and validates
// the resulting public signals against the witness before returning a bundle
func (s *Service) CreateTransferProof(request *TransferProofRequest) (*TransferProofResponse, error) {
	if len(request.InputNotes) == 0 || len(request.OutputNotes) == 0 {
		return nil, common.NewValidationError("transfer proof requires at least one input and output note")
	}

	inputCommitments := make([]string, len(request.InputNotes))
	inputAmounts := make([]string, len(request.InputNotes))
	for i, note := range request.InputNotes {
		inputCommitments[i] = note.Commitment
		inputAmounts[i] = note.Amount
	}

	outputBlindings := make([]string, len(request.OutputNotes))
	outputCommitments := make([]string, len(request.OutputNotes))
	outputAmounts := make([]string, len(request.OutputNotes))
	for i, note := range request.OutputNotes {
		outputBlindings[i] = note.Blinding
		outputCommitments[i] = felt.DeriveCommitment(note.OwnerHint, request.Asset, note.Amount, note.Blinding)
		outputAmounts[i] = note.Amount
	}

	totalIn, err := sumAmounts(inputAmounts, "input amount")
	if err != nil {
		return nil, err
	}
	totalOut, err := sumAmounts(outputAmounts, "output amount")
	if err != nil {
		return nil, err
	}
	fee, err := felt.ParseNonNegativeAmount(request.FeeAmount, "fee amount")
	if err != nil {
		return nil, err
	}

	if totalIn.Cmp(new(big.Int).Add(totalOut, fee)) != 0 {
		return nil, common.NewValidationError("transfer conservation check failed before proof generation")
	}

	feeSeedParts := append([]string{"transfer-fee", request.Asset, request.FeeAmount}, inputCommitments...)
	feeCommitment := felt.AmountToCommitment(request.FeeAmount, felt.HashToField(feeSeedParts...))

	inputNullifiers := make([]string, len(request.InputNotes))
	for i, note := range request.InputNotes {
		if s.backend.Mock() {
			inputNullifiers[i] = felt.DeriveNullifier(note.Commitment, request.SenderSecret)
		} else {
			inputNullifiers[i] = deriveCircuitNullifier(note.Commitment, request.SenderSecret)
		}
	}

	publicInputs := &proof.TransferPublicInputs{
		Root:              request.Root,
		InputCommitments:  inputCommitments,
		InputNullifiers:   inputNullifiers,
		OutputCommitments: outputCommitments,
		FeeCommitment:     feeCommitment,
		Asset:             request.Asset,
	}

	response, err := s.backend.Prove(&zkp.ProvingRequest{
		Circuit:      proof.CircuitTransfer,
		PublicInputs: &proof.PublicInputs{Transfer: publicInputs},
		Witness: &zkp.CircuitWitness{
			SenderSecret:  request.SenderSecret,
			InputAmounts:  inputAmounts,
			OutputAmounts: outputAmounts,
			FeeAmount:     request.FeeAmount,
		},
	})
	if err != nil {
		return nil, err
	}

	if !s.backend.Mock() {
		err = validateTransferSignals(response.PublicSignals, publicInputs)
		if err != nil {
			return nil, err
		}
	}

	bundle := &proof.Bundle{
		Proof:         response.Proof,
		PublicInputs:  proof.PublicInputs{Transfer: publicInputs},
		Scheme:        proof.SchemeGroth16,
		Circuit:       proof.CircuitTransfer,
		Mock:          s.backend.Mock(),
		ProofData:     response.ProofData,
		PublicSignals: response.PublicSignals,
	}

	common.Log.Debugf("generated %s transfer proof referencing root %s", bundle.Scheme, request.Root)

	return &TransferProofResponse{
		Bundle: bundle,
		Derived: &TransferProofDerived{
			OutputBlindings:   outputBlindings,
			OutputCommitments: outputCommitments,
			InputNullifiers:   inputNullifiers,
		},
	}, nil
}

// validateTransferSignals requires exact equality between the witness-derived
// public inputs and the commitments the circuit reported; a mismatch means
// the circuit binding is broken and the bundle must not be released
func validateTransferSignals(signals []string, publicInputs *proof.TransferPublicInputs) error {
	if len(signals) < transferSignalOffsetFeeCommitment+1 {
		return common.NewValidationError("transfer public signals are incomplete")
	}

	for i := range publicInputs.InputNullifiers {
		parsed, err := felt.FromDecimal(signals[transferSignalOffsetNullifiers+i])
		if err != nil || parsed != publicInputs.InputNullifiers[i] {
			return common.NewValidationError("transfer nullifier mismatch between witness and public signals at %d", i)
		}
	}

	for i := range publicInputs.OutputCommitments {
		parsed, err := felt.FromDecimal(signals[transferSignalOffsetOutputCommitments+i])
		if err != nil || parsed != publicInputs.OutputCommitments[i] {
			return common.NewValidationError("transfer output commitment mismatch between witness and public signals at %d", i)
		}
	}

	parsedFee, err := felt.FromDecimal(signals[transferSignalOffsetFeeCommitment])
	if err != nil || parsedFee != publicInputs.FeeCommitment {
		return common.NewValidationError("transfer fee commitment mismatch between witness and public signals")
	}

	return nil
}

// CreateWithdrawProof derives the withdraw public inputs from the witness,
// checks the witness against the single-input circuit shape, proves via the
// configured backend and validates the resulting public signals
func (s *Service) CreateWithdrawProof(request *WithdrawProofRequest) (*WithdrawProofResponse, error) {
	if len(request.InputNotes) != 1 {
		return nil, common.NewValidationError("withdraw circuit currently supports exactly 1 input note")
	}

	feeAmount := request.FeeAmount
	if feeAmount == "" {
		feeAmount = "0"
	}

	inAmount, err := felt.ParseNonNegativeAmount(request.InputNotes[0].Amount, "input amount")
	if err != nil {
		return nil, err
	}
	withdrawAmount, err := felt.ParseNonNegativeAmount(request.Amount, "withdraw amount")
	if err != nil {
		return nil, err
	}
	fee, err := felt.ParseNonNegativeAmount(feeAmount, "fee amount")
	if err != nil {
		return nil, err
	}

	required := new(big.Int).Add(withdrawAmount, fee)
	if s.backend.Mock() {
		// change is minted by the ledger outside proof scope, so the mock
		// path only requires sufficiency
		if inAmount.Cmp(required) < 0 {
			return nil, common.NewValidationError("withdraw conservation check failed before proof generation")
		}
	} else if inAmount.Cmp(required) != 0 {
		return nil, common.NewValidationError("withdraw conservation check failed before proof generation")
	}

	amountCommitment := felt.HashToField("withdraw-amount", request.Amount, request.Recipient, request.Asset, feeAmount)
	feeCommitment := felt.AmountToCommitment(feeAmount, felt.HashToField("withdraw-fee", request.Asset, request.Recipient, feeAmount))

	var nullifier string
	if s.backend.Mock() {
		nullifier = felt.DeriveNullifier(request.InputNotes[0].Commitment, request.SenderSecret)
	} else {
		nullifier = deriveCircuitNullifier(request.InputNotes[0].Commitment, request.SenderSecret)
	}

	publicInputs := &proof.WithdrawPublicInputs{
		Root:             request.Root,
		InputCommitments: []string{request.InputNotes[0].Commitment},
		InputNullifiers:  []string{nullifier},
		Recipient:        request.Recipient,
		AmountCommitment: amountCommitment,
		FeeCommitment:    feeCommitment,
		Asset:            request.Asset,
	}

	response, err := s.backend.Prove(&zkp.ProvingRequest{
		Circuit:      proof.CircuitWithdraw,
		PublicInputs: &proof.PublicInputs{Withdraw: publicInputs},
		Witness: &zkp.CircuitWitness{
			SenderSecret:   request.SenderSecret,
			InputAmounts:   []string{request.InputNotes[0].Amount},
			WithdrawAmount: request.Amount,
			FeeAmount:      feeAmount,
		},
	})
	if err != nil {
		return nil, err
	}

	if !s.backend.Mock() {
		err = validateWithdrawSignals(response.PublicSignals, publicInputs)
		if err != nil {
			return nil, err
		}
	}

	bundle := &proof.Bundle{
		Proof:         response.Proof,
		PublicInputs:  proof.PublicInputs{Withdraw: publicInputs},
		Scheme:        proof.SchemeGroth16,
		Circuit:       proof.CircuitWithdraw,
		Mock:          s.backend.Mock(),
		ProofData:     response.ProofData,
		PublicSignals: response.PublicSignals,
	}

	common.Log.Debugf("generated %s withdraw proof referencing root %s", bundle.Scheme, request.Root)

	return &WithdrawProofResponse{
		Bundle: bundle,
		Derived: &WithdrawProofDerived{
			AmountCommitment: amountCommitment,
			InputNullifiers:  []string{nullifier},
		},
	}, nil
}

// validateWithdrawSignals requires exact equality between the witness-derived
// public inputs and the commitments the circuit reported
func validateWithdrawSignals(signals []string, publicInputs *proof.WithdrawPublicInputs) error {
	if len(signals) < withdrawSignalOffsetFeeCommitment+1 {
		return common.NewValidationError("withdraw public signals are incomplete")
	}

	parsedNullifier, err := felt.FromDecimal(signals[withdrawSignalOffsetNullifier])
	if err != nil || parsedNullifier != publicInputs.InputNullifiers[0] {
		return common.NewValidationError("withdraw nullifier mismatch between witness and public signals")
	}

	parsedAmount, err := felt.FromDecimal(signals[withdrawSignalOffsetAmountCommitment])
	if err != nil || parsedAmount != publicInputs.AmountCommitment {
		return common.NewValidationError("withdraw amount commitment mismatch between witness and public signals (expected=%s, actual=%s)", publicInputs.AmountCommitment, parsedAmount)
	}

	parsedFee, err := felt.FromDecimal(signals[withdrawSignalOffsetFeeCommitment])
	if err != nil || parsedFee != publicInputs.FeeCommitment {
		return common.NewValidationError("withdraw fee commitment mismatch between witness and public signals (expected=%s, actual=%s)", publicInputs.FeeCommitment, parsedFee)
	}

	return nil
}

// VerifyProofBundle verifies the internal consistency of the given bundle;
// mock bundles are checked against their recomputed checksum, real bundles
// are delegated to the backend verifier
func (s *Service) VerifyProofBundle(bundle *proof.Bundle) (bool, error) {
	if bundle.Mock {
		return proof.IsMockBundleConsistent(bundle), nil
	}

	if bundle.ProofData == nil || len(bundle.PublicSignals) == 0 {
		return false, nil
	}

	return s.backend.Verify(bundle)
}
