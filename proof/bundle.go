package proof

import (
	"encoding/json"

	"github.com/shieldpay/privacy/felt"
)

// SchemeGroth16 is the only proving scheme currently emitted by the proof subsystem
const SchemeGroth16 = "groth16"

// CircuitTransfer n-input, n-output shielded transfer circuit
const CircuitTransfer = "transfer"

// CircuitWithdraw single-input shielded withdraw circuit
const CircuitWithdraw = "withdraw"

// TransferPublicInputs are the public inputs attested to by a transfer proof
type TransferPublicInputs struct {
	Root              string   `json:"root"`
	InputCommitments  []string `json:"input_commitments"`
	InputNullifiers   []string `json:"input_nullifiers"`
	OutputCommitments []string `json:"output_commitments"`
	FeeCommitment     string   `json:"fee_commitment"`
	Asset             string   `json:"asset"`
}

// WithdrawPublicInputs are the public inputs attested to by a withdraw proof
type WithdrawPublicInputs struct {
	Root             string   `json:"root"`
	InputCommitments []string `json:"input_commitments"`
	InputNullifiers  []string `json:"input_nullifiers"`
	Recipient        string   `json:"recipient"`
	AmountCommitment string   `json:"amount_commitment"`
	FeeCommitment    string   `json:"fee_commitment"`
	Asset            string   `json:"asset"`
}

// PublicInputs is the tagged union over the two circuit shapes; exactly one
// of Transfer or Withdraw is non-nil, discriminated by the bundle circuit
type PublicInputs struct {
	Transfer *TransferPublicInputs `json:"transfer,omitempty"`
	Withdraw *WithdrawPublicInputs `json:"withdraw,omitempty"`
}

// Circuit returns the circuit identifier implied by the populated shape
func (p *PublicInputs) Circuit() string {
	if p.Transfer != nil {
		return CircuitTransfer
	}
	if p.Withdraw != nil {
		return CircuitWithdraw
	}
	return ""
}

// Root returns the accumulator root the populated shape references
func (p *PublicInputs) Root() string {
	if p.Transfer != nil {
		return p.Transfer.Root
	}
	if p.Withdraw != nil {
		return p.Withdraw.Root
	}
	return ""
}

// Bundle pairs a proof with the public inputs it attests to; immutable once
// produced and consumed at most once by a successful ledger execution
type Bundle struct {
	Proof         []string               `json:"proof"`
	PublicInputs  PublicInputs           `json:"public_inputs"`
	Scheme        string                 `json:"scheme"`
	Circuit       string                 `json:"circuit"`
	Mock          bool                   `json:"mock"`
	ProofData     map[string]interface{} `json:"proof_data,omitempty"`
	PublicSignals []string               `json:"public_signals,omitempty"`
}

// ChecksumPublicInputs derives the deterministic mock-mode checksum over the
// canonical JSON rendering of the given public inputs
func ChecksumPublicInputs(publicInputs interface{}) string {
	raw, _ := json.Marshal(publicInputs)
	return felt.HashToField("proof", string(raw))
}

// IsMockBundleConsistent returns true if the bundle proof payload contains the
// checksum recomputed from its stated public inputs
func IsMockBundleConsistent(bundle *Bundle) bool {
	var checksum string
	switch bundle.Circuit {
	case CircuitTransfer:
		if bundle.PublicInputs.Transfer == nil {
			return false
		}
		checksum = ChecksumPublicInputs(bundle.PublicInputs.Transfer)
	case CircuitWithdraw:
		if bundle.PublicInputs.Withdraw == nil {
			return false
		}
		checksum = ChecksumPublicInputs(bundle.PublicInputs.Withdraw)
	default:
		return false
	}

	for _, member := range bundle.Proof {
		if member == checksum {
			return true
		}
	}

	return false
}
