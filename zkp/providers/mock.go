package providers

import (
	"fmt"

	"github.com/shieldpay/privacy/proof"
)

// MockProofBackend emits deterministic checksum proofs over the stated public
// inputs. It provides no cryptographic soundness and exists so the full
// system can be exercised without circuit artifacts; it must never be enabled
// where proofs cross a trust boundary.
type MockProofBackend struct{}

// InitMockProofBackend initializes a new MockProofBackend instance
func InitMockProofBackend() *MockProofBackend {
	return &MockProofBackend{}
}

// Mock returns true
func (b *MockProofBackend) Mock() bool {
	return true
}

// Prove returns a single-element proof containing the public input checksum
func (b *MockProofBackend) Prove(request *ProvingRequest) (*ProvingResponse, error) {
	var checksum string

	switch request.Circuit {
	case proof.CircuitTransfer:
		if request.PublicInputs == nil || request.PublicInputs.Transfer == nil {
			return nil, fmt.Errorf("failed to generate mock %s proof; no public inputs", request.Circuit)
		}
		checksum = proof.ChecksumPublicInputs(request.PublicInputs.Transfer)
	case proof.CircuitWithdraw:
		if request.PublicInputs == nil || request.PublicInputs.Withdraw == nil {
			return nil, fmt.Errorf("failed to generate mock %s proof; no public inputs", request.Circuit)
		}
		checksum = proof.ChecksumPublicInputs(request.PublicInputs.Withdraw)
	default:
		return nil, fmt.Errorf("failed to generate mock proof; unknown circuit: %s", request.Circuit)
	}

	return &ProvingResponse{
		Proof: []string{checksum},
	}, nil
}

// Verify recomputes the checksum from the bundle public inputs and requires
// it to appear in the proof payload
func (b *MockProofBackend) Verify(bundle *proof.Bundle) (bool, error) {
	if !bundle.Mock {
		return false, fmt.Errorf("mock proof backend cannot verify non-mock %s bundle", bundle.Circuit)
	}
	return proof.IsMockBundleConsistent(bundle), nil
}
