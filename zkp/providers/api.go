package providers

import (
	"github.com/shieldpay/privacy/proof"
)

// CircuitWitness is the plaintext private witness for one circuit invocation;
// amounts are non-negative decimal strings
type CircuitWitness struct {
	SenderSecret   string
	InputAmounts   []string
	OutputAmounts  []string
	FeeAmount      string
	WithdrawAmount string
}

// ProvingRequest carries the public inputs exactly as they will appear in the
// returned bundle, together with the private witness backing them
type ProvingRequest struct {
	Circuit      string
	PublicInputs *proof.PublicInputs
	Witness      *CircuitWitness
}

// ProvingResponse is the backend-specific proof material for a bundle
type ProvingResponse struct {
	Proof         []string
	ProofData     map[string]interface{}
	PublicSignals []string
}

// ProofBackend provides a common interface to produce and verify proofs for
// the transfer and withdraw circuits
type ProofBackend interface {
	Mock() bool
	Prove(request *ProvingRequest) (*ProvingResponse, error)
	Verify(bundle *proof.Bundle) (bool, error)
}
