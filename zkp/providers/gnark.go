package providers

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	"github.com/shieldpay/privacy/common"
	"github.com/shieldpay/privacy/felt"
	"github.com/shieldpay/privacy/proof"
	circuits "github.com/shieldpay/privacy/zkp/lib/circuits/gnark"
)

const transferPublicSignalCount = 9
const withdrawPublicSignalCount = 7

// circuitArtifacts are the per-circuit file locations of the compiled
// constraint system and the groth16 proving/verifying keys
type circuitArtifacts struct {
	r1csPath         string
	provingKeyPath   string
	verifyingKeyPath string
}

// GnarkProofBackend generates and verifies groth16 proofs over BN254 using
// fixed, precompiled circuit artifacts resolved from the artifacts directory
type GnarkProofBackend struct {
	artifactsDir string
	circuits     map[string]*circuitArtifacts

	verifyingKeys map[string]groth16.VerifyingKey
	mutex         sync.Mutex
}

func envOrDefault(name, fallback string) string {
	if val := os.Getenv(name); val != "" {
		return val
	}
	return fallback
}

// InitGnarkProofBackend initializes and configures a new GnarkProofBackend
// instance; the configured proving curve and scheme must resolve to BN254 and
// groth16, the only pairing the shipped circuit artifacts are produced for
func InitGnarkProofBackend(artifactsDir string) (*GnarkProofBackend, error) {
	if curveID := common.GnarkCurveIDFactory(common.StringOrNil(common.ProvingCurve)); curveID != ecc.BN254 {
		return nil, common.NewConfigurationError("unsupported proving curve: %s", common.ProvingCurve)
	}
	if schemeID := common.GnarkProvingSchemeFactory(common.StringOrNil(common.ProvingScheme)); schemeID != backend.GROTH16 {
		return nil, common.NewConfigurationError("unsupported proving scheme: %s", common.ProvingScheme)
	}

	return &GnarkProofBackend{
		artifactsDir: artifactsDir,
		circuits: map[string]*circuitArtifacts{
			proof.CircuitTransfer: {
				r1csPath:         envOrDefault("SHIELDPAY_TRANSFER_R1CS", filepath.Join(artifactsDir, "transfer.r1cs")),
				provingKeyPath:   envOrDefault("SHIELDPAY_TRANSFER_PROVING_KEY", filepath.Join(artifactsDir, "transfer.pk")),
				verifyingKeyPath: envOrDefault("SHIELDPAY_TRANSFER_VERIFYING_KEY", filepath.Join(artifactsDir, "transfer.vk")),
			},
			proof.CircuitWithdraw: {
				r1csPath:         envOrDefault("SHIELDPAY_WITHDRAW_R1CS", filepath.Join(artifactsDir, "withdraw.r1cs")),
				provingKeyPath:   envOrDefault("SHIELDPAY_WITHDRAW_PROVING_KEY", filepath.Join(artifactsDir, "withdraw.pk")),
				verifyingKeyPath: envOrDefault("SHIELDPAY_WITHDRAW_VERIFYING_KEY", filepath.Join(artifactsDir, "withdraw.vk")),
			},
		},
		verifyingKeys: map[string]groth16.VerifyingKey{},
	}, nil
}

// Mock returns false
func (b *GnarkProofBackend) Mock() bool {
	return false
}

func (b *GnarkProofBackend) circuitArtifactsFactory(circuit string) (*circuitArtifacts, error) {
	artifacts, artifactsOk := b.circuits[strings.ToLower(circuit)]
	if !artifactsOk {
		return nil, common.NewValidationError("unknown circuit: %s", circuit)
	}
	return artifacts, nil
}

// ensureCircuitArtifacts verifies all required artifact files exist on disk;
// absence is a configuration failure, not a witness failure
func (b *GnarkProofBackend) ensureCircuitArtifacts(circuit string) (*circuitArtifacts, error) {
	artifacts, err := b.circuitArtifactsFactory(circuit)
	if err != nil {
		return nil, err
	}

	missing := make([]string, 0)
	for _, path := range []string{artifacts.r1csPath, artifacts.provingKeyPath, artifacts.verifyingKeyPath} {
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, path)
		}
	}

	if len(missing) > 0 {
		return nil, common.NewConfigurationError("missing %s proof artifacts in %s: %s", circuit, b.artifactsDir, strings.Join(missing, ", "))
	}

	return artifacts, nil
}

func (b *GnarkProofBackend) decodeR1CS(encodedR1CS []byte) (frontend.CompiledConstraintSystem, error) {
	decodedR1CS := groth16.NewCS(ecc.BN254)
	_, err := decodedR1CS.ReadFrom(bytes.NewReader(encodedR1CS))
	if err != nil {
		common.Log.Warningf("unable to decode R1CS; %s", err.Error())
		return nil, err
	}
	return decodedR1CS, nil
}

func (b *GnarkProofBackend) decodeProvingKey(pk []byte) (groth16.ProvingKey, error) {
	provingKey := groth16.NewProvingKey(ecc.BN254)
	_, err := provingKey.ReadFrom(bytes.NewReader(pk))
	if err != nil {
		return nil, fmt.Errorf("unable to decode proving key; %s", err.Error())
	}
	return provingKey, nil
}

func (b *GnarkProofBackend) decodeProof(raw []byte) (groth16.Proof, error) {
	prf := groth16.NewProof(ecc.BN254)
	_, err := prf.ReadFrom(bytes.NewReader(raw))
	if err != nil {
		common.Log.Warningf("unable to decode proof; %s", err.Error())
		return nil, err
	}
	return prf, nil
}

// verifyingKeyFactory returns the cached verifying key for the circuit,
// loading and parsing it from disk at most once
func (b *GnarkProofBackend) verifyingKeyFactory(circuit string) (groth16.VerifyingKey, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if vk, vkOk := b.verifyingKeys[circuit]; vkOk {
		return vk, nil
	}

	artifacts, err := b.circuitArtifactsFactory(circuit)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(artifacts.verifyingKeyPath)
	if err != nil {
		return nil, common.NewConfigurationError("failed to read %s verifying key; %s", circuit, err.Error())
	}

	vk := groth16.NewVerifyingKey(ecc.BN254)
	_, err = vk.ReadFrom(bytes.NewReader(raw))
	if err != nil {
		return nil, common.NewConfigurationError("unable to decode %s verifying key; %s", circuit, err.Error())
	}

	b.verifyingKeys[circuit] = vk
	return vk, nil
}

func padToTwo(values []string) ([2]string, error) {
	if len(values) > 2 {
		return [2]string{}, common.NewValidationError("circuit supports at most 2 values, got %d", len(values))
	}

	padded := [2]string{"0", "0"}
	for i, val := range values {
		padded[i] = val
	}
	return padded, nil
}

func feltsToDecimal(values []string) []string {
	out := make([]string, len(values))
	for i, val := range values {
		out[i] = felt.ToDecimal(val)
	}
	return out
}

// Prove generates a groth16 proof for the given request and returns the
// serialized proof together with the flattened public signal vector, in
// circuit declaration order
func (b *GnarkProofBackend) Prove(request *ProvingRequest) (*ProvingResponse, error) {
	artifacts, err := b.ensureCircuitArtifacts(request.Circuit)
	if err != nil {
		return nil, err
	}

	var assignment frontend.Circuit
	var signals []string

	switch request.Circuit {
	case proof.CircuitTransfer:
		assignment, signals, err = b.transferAssignmentFactory(request)
	case proof.CircuitWithdraw:
		assignment, signals, err = b.withdrawAssignmentFactory(request)
	default:
		return nil, common.NewValidationError("unknown circuit: %s", request.Circuit)
	}
	if err != nil {
		return nil, err
	}

	encodedR1CS, err := os.ReadFile(artifacts.r1csPath)
	if err != nil {
		return nil, common.NewConfigurationError("failed to read %s constraint system; %s", request.Circuit, err.Error())
	}

	r1cs, err := b.decodeR1CS(encodedR1CS)
	if err != nil {
		return nil, common.NewConfigurationError("failed to decode %s constraint system; %s", request.Circuit, err.Error())
	}

	encodedPk, err := os.ReadFile(artifacts.provingKeyPath)
	if err != nil {
		return nil, common.NewConfigurationError("failed to read %s proving key; %s", request.Circuit, err.Error())
	}

	pk, err := b.decodeProvingKey(encodedPk)
	if err != nil {
		return nil, common.NewConfigurationError("failed to decode %s proving key; %s", request.Circuit, err.Error())
	}

	wtns, err := frontend.NewWitness(assignment, ecc.BN254)
	if err != nil {
		return nil, common.NewValidationError("failed to build %s witness; %s", request.Circuit, err.Error())
	}

	prf, err := groth16.Prove(r1cs, pk, wtns)
	if err != nil {
		common.Log.Warningf("failed to generate %s proof; %s", request.Circuit, err.Error())
		return nil, err
	}

	buf := new(bytes.Buffer)
	_, err = prf.(io.WriterTo).WriteTo(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal binary %s proof; %s", request.Circuit, err.Error())
	}

	encodedProof := hex.EncodeToString(buf.Bytes())

	return &ProvingResponse{
		Proof: []string{encodedProof},
		ProofData: map[string]interface{}{
			"protocol": proof.SchemeGroth16,
			"curve":    ecc.BN254.String(),
			"proof":    encodedProof,
		},
		PublicSignals: signals,
	}, nil
}

// transferAssignmentFactory builds the full transfer witness assignment and
// the public signal vector it implies
func (b *GnarkProofBackend) transferAssignmentFactory(request *ProvingRequest) (frontend.Circuit, []string, error) {
	publicInputs := request.PublicInputs.Transfer
	if publicInputs == nil || request.Witness == nil {
		return nil, nil, common.NewValidationError("transfer proving request requires transfer public inputs and witness")
	}

	inCommitments, err := padToTwo(feltsToDecimal(publicInputs.InputCommitments))
	if err != nil {
		return nil, nil, err
	}
	inputNullifiers, err := padToTwo(feltsToDecimal(publicInputs.InputNullifiers))
	if err != nil {
		return nil, nil, err
	}
	// the nullifier constraint also binds unused input slots, whose padded
	// zero commitment yields a nullifier of 0 + senderSecret
	for i := len(publicInputs.InputNullifiers); i < 2; i++ {
		inputNullifiers[i] = felt.ToDecimal(felt.Sum(inCommitments[i], request.Witness.SenderSecret))
	}
	outCommitments, err := padToTwo(feltsToDecimal(publicInputs.OutputCommitments))
	if err != nil {
		return nil, nil, err
	}
	inAmounts, err := padToTwo(request.Witness.InputAmounts)
	if err != nil {
		return nil, nil, err
	}
	outAmounts, err := padToTwo(request.Witness.OutputAmounts)
	if err != nil {
		return nil, nil, err
	}

	feeCommitment := felt.ToDecimal(publicInputs.FeeCommitment)

	assignment := &circuits.TransferCircuit{}
	assignment.Root = felt.ToDecimal(publicInputs.Root)
	assignment.Asset = felt.ToDecimal(felt.ToField(publicInputs.Asset))
	for i := 0; i < 2; i++ {
		assignment.InCommitments[i] = inCommitments[i]
		assignment.InputNullifiers[i] = inputNullifiers[i]
		assignment.OutCommitments[i] = outCommitments[i]
		assignment.OutCommitmentsIn[i] = outCommitments[i]
		assignment.InAmounts[i] = inAmounts[i]
		assignment.OutAmounts[i] = outAmounts[i]
	}
	assignment.FeeCommitment = feeCommitment
	assignment.FeeCommitmentIn = feeCommitment
	assignment.RootIn = assignment.Root
	assignment.AssetIn = assignment.Asset
	assignment.SenderSecret = felt.ToDecimal(felt.ToField(request.Witness.SenderSecret))
	assignment.Fee = request.Witness.FeeAmount

	signals := []string{
		assignment.Root.(string),
		assignment.Asset.(string),
		inCommitments[0], inCommitments[1],
		inputNullifiers[0], inputNullifiers[1],
		outCommitments[0], outCommitments[1],
		feeCommitment,
	}

	return assignment, signals, nil
}

// withdrawAssignmentFactory builds the full withdraw witness assignment and
// the public signal vector it implies
func (b *GnarkProofBackend) withdrawAssignmentFactory(request *ProvingRequest) (frontend.Circuit, []string, error) {
	publicInputs := request.PublicInputs.Withdraw
	if publicInputs == nil || request.Witness == nil {
		return nil, nil, common.NewValidationError("withdraw proving request requires withdraw public inputs and witness")
	}

	if len(publicInputs.InputCommitments) != 1 || len(publicInputs.InputNullifiers) != 1 {
		return nil, nil, common.NewValidationError("withdraw circuit supports exactly 1 input note")
	}

	if len(request.Witness.InputAmounts) != 1 {
		return nil, nil, common.NewValidationError("withdraw circuit supports exactly 1 input amount")
	}

	amountCommitment := felt.ToDecimal(publicInputs.AmountCommitment)
	feeCommitment := felt.ToDecimal(publicInputs.FeeCommitment)

	assignment := &circuits.WithdrawCircuit{}
	assignment.Root = felt.ToDecimal(publicInputs.Root)
	assignment.Asset = felt.ToDecimal(felt.ToField(publicInputs.Asset))
	assignment.InCommitment = felt.ToDecimal(publicInputs.InputCommitments[0])
	assignment.Recipient = felt.ToDecimal(felt.ToField(publicInputs.Recipient))
	assignment.InputNullifier = felt.ToDecimal(publicInputs.InputNullifiers[0])
	assignment.AmountCommitment = amountCommitment
	assignment.FeeCommitment = feeCommitment
	assignment.AmountCommitmentIn = amountCommitment
	assignment.FeeCommitmentIn = feeCommitment
	assignment.RootIn = assignment.Root
	assignment.AssetIn = assignment.Asset
	assignment.RecipientIn = assignment.Recipient
	assignment.SenderSecret = felt.ToDecimal(felt.ToField(request.Witness.SenderSecret))
	assignment.InAmount = request.Witness.InputAmounts[0]
	assignment.WithdrawAmount = request.Witness.WithdrawAmount
	assignment.Fee = request.Witness.FeeAmount

	signals := []string{
		assignment.Root.(string),
		assignment.Asset.(string),
		assignment.InCommitment.(string),
		assignment.Recipient.(string),
		assignment.InputNullifier.(string),
		amountCommitment,
		feeCommitment,
	}

	return assignment, signals, nil
}

// Verify decodes the bundle proof and verifies it against the cached
// verifying key and the public witness reconstructed from the signal vector
func (b *GnarkProofBackend) Verify(bundle *proof.Bundle) (bool, error) {
	if bundle.Mock {
		return false, common.NewValidationError("gnark proof backend cannot verify mock %s bundle", bundle.Circuit)
	}

	if len(bundle.Proof) == 0 || len(bundle.PublicSignals) == 0 {
		return false, nil
	}

	raw, err := hex.DecodeString(bundle.Proof[0])
	if err != nil {
		common.Log.Debugf("failed to decode %s proof as hex for verification; %s", bundle.Circuit, err.Error())
		return false, nil
	}

	prf, err := b.decodeProof(raw)
	if err != nil {
		return false, nil
	}

	vk, err := b.verifyingKeyFactory(bundle.Circuit)
	if err != nil {
		return false, err
	}

	assignment, err := publicAssignmentFactory(bundle.Circuit, bundle.PublicSignals)
	if err != nil {
		return false, err
	}

	publicWitness, err := frontend.NewWitness(assignment, ecc.BN254, frontend.PublicOnly())
	if err != nil {
		return false, common.NewValidationError("failed to build %s public witness; %s", bundle.Circuit, err.Error())
	}

	err = groth16.Verify(prf, vk, publicWitness)
	if err != nil {
		common.Log.Debugf("failed to verify %s proof; %s", bundle.Circuit, err.Error())
		return false, nil
	}

	return true, nil
}

// publicAssignmentFactory reconstructs a public-only circuit assignment from
// the flattened signal vector, in circuit declaration order
func publicAssignmentFactory(circuit string, signals []string) (frontend.Circuit, error) {
	switch circuit {
	case proof.CircuitTransfer:
		if len(signals) < transferPublicSignalCount {
			return nil, common.NewValidationError("transfer public signals are incomplete")
		}
		assignment := &circuits.TransferCircuit{}
		assignment.Root = signals[0]
		assignment.Asset = signals[1]
		assignment.InCommitments[0] = signals[2]
		assignment.InCommitments[1] = signals[3]
		assignment.InputNullifiers[0] = signals[4]
		assignment.InputNullifiers[1] = signals[5]
		assignment.OutCommitments[0] = signals[6]
		assignment.OutCommitments[1] = signals[7]
		assignment.FeeCommitment = signals[8]
		return assignment, nil
	case proof.CircuitWithdraw:
		if len(signals) < withdrawPublicSignalCount {
			return nil, common.NewValidationError("withdraw public signals are incomplete")
		}
		assignment := &circuits.WithdrawCircuit{}
		assignment.Root = signals[0]
		assignment.Asset = signals[1]
		assignment.InCommitment = signals[2]
		assignment.Recipient = signals[3]
		assignment.InputNullifier = signals[4]
		assignment.AmountCommitment = signals[5]
		assignment.FeeCommitment = signals[6]
		return assignment, nil
	}

	return nil, common.NewValidationError("unknown circuit: %s", circuit)
}
