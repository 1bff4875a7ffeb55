package felt

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"unicode/utf16"

	"github.com/shieldpay/privacy/common"
)

// fieldPrime is the prime modulus of the accumulator field; every commitment,
// nullifier and root is a canonical residue mod this prime
var fieldPrime, _ = new(big.Int).SetString("800000000000011000000000000000000000000000000000000000000000001", 16)

// GenesisRoot is the accumulator root of an empty ledger
const GenesisRoot = "0x0"

var hexPattern = regexp.MustCompile(`^0x[0-9a-fA-F]+$`)
var decimalPattern = regexp.MustCompile(`^[0-9]+$`)

func normalizeHex(input string) string {
	if strings.HasPrefix(input, "0x") {
		return strings.ToLower(input)
	}
	return fmt.Sprintf("0x%s", strings.ToLower(input))
}

func normalizeFelt(value *big.Int) string {
	bounded := new(big.Int).Mod(value, fieldPrime)
	if bounded.Sign() < 0 {
		bounded.Add(bounded, fieldPrime)
	}
	return normalizeHex(bounded.Text(16))
}

// IsNumberish returns true if the given value parses as a hex or decimal field element
func IsNumberish(value string) bool {
	return hexPattern.MatchString(value) || decimalPattern.MatchString(value)
}

// ToField canonicalizes the given value as a normalized hex field element;
// hex and decimal inputs are reduced mod the field prime, any other string is
// deterministically hashed into the field. Idempotent and total.
func ToField(value string) string {
	if IsNumberish(value) {
		parsed, ok := new(big.Int).SetString(strings.TrimPrefix(value, "0x"), base(value))
		if !ok {
			return HashToField("field", value)
		}
		return normalizeFelt(parsed)
	}

	return HashToField("field", value)
}

func base(value string) int {
	if strings.HasPrefix(value, "0x") {
		return 16
	}
	return 10
}

// ToDecimal returns the base-10 rendering of the canonicalized field element
func ToDecimal(value string) string {
	canonical := ToField(value)
	parsed, _ := new(big.Int).SetString(strings.TrimPrefix(canonical, "0x"), 16)
	return parsed.Text(10)
}

// FromDecimal canonicalizes a base-10 field element rendering as normalized hex
func FromDecimal(value string) (string, error) {
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return "", fmt.Errorf("invalid decimal field element: %s", value)
	}
	return normalizeFelt(parsed), nil
}

var char131 = big.NewInt(131)

// HashToField deterministically mixes the ordered parts into a single field
// element; the same parts in the same order always produce the same output.
// The rolling polynomial walks UTF-16 code units, so supplementary-plane
// characters contribute their surrogate pair
func HashToField(parts ...string) string {
	state := new(big.Int)
	char := new(big.Int)

	seeded := strings.Join(parts, "|")
	for _, unit := range utf16.Encode([]rune(seeded)) {
		state.Mul(state, char131)
		state.Add(state, char.SetInt64(int64(unit)))
		state.Mod(state, fieldPrime)
	}

	return normalizeFelt(state)
}

// DeriveCommitment derives the hiding commitment for a note
func DeriveCommitment(ownerHint, asset, amount, blinding string) string {
	return HashToField("commitment", ownerHint, asset, amount, blinding)
}

// DeriveNullifier derives the one-time spend tag for a committed note
func DeriveNullifier(commitment, senderSecret string) string {
	return HashToField("nullifier", commitment, senderSecret)
}

// DeriveRoot chains the accumulator root over the inserted commitment at the given index
func DeriveRoot(previousRoot, commitment string, index int) string {
	return HashToField("root", previousRoot, commitment, fmt.Sprintf("%d", index))
}

// AmountToCommitment commits to a plaintext amount under the given blinding factor
func AmountToCommitment(amount, blinding string) string {
	return HashToField("amount", amount, blinding)
}

// Sum returns the canonical field element a + b mod the field prime; both
// operands are canonicalized via ToField first
func Sum(a, b string) string {
	left, _ := new(big.Int).SetString(strings.TrimPrefix(ToField(a), "0x"), 16)
	right, _ := new(big.Int).SetString(strings.TrimPrefix(ToField(b), "0x"), 16)
	return normalizeFelt(new(big.Int).Add(left, right))
}

// RandomHex returns n cryptographically random bytes as a normalized hex string
func RandomHex(n int) (string, error) {
	buf, err := common.RandomBytes(n)
	if err != nil {
		return "", err
	}
	return normalizeHex(hex.EncodeToString(buf)), nil
}

// ParseNonNegativeAmount parses an arbitrary-precision, non-negative decimal
// amount; malformed or negative input is rejected with a labeled error rather
// than silently coerced
func ParseNonNegativeAmount(value, label string) (*big.Int, error) {
	if !decimalPattern.MatchString(value) {
		return nil, fmt.Errorf("invalid %s", label)
	}

	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s", label)
	}

	return parsed, nil
}
