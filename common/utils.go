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

package common

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend"
)

// StringOrNil returns the given string or nil when empty
func StringOrNil(str string) *string {
	if str == "" {
		return nil
	}
	return &str
}

// RandomBytes generates a cryptographically random byte array; it never falls
// back to a weaker entropy source -- an error is returned instead, since weak
// blinding factors would undermine the privacy guarantees downstream
func RandomBytes(length int) ([]byte, error) {
	b := make([]byte, length)
	_, err := rand.Read(b)
	if err != nil {
		return nil, fmt.Errorf("error generating random bytes %s", err.Error())
	}
	return b, nil
}

// GnarkCurveIDFactory returns an ecc curve id corresponding to the input name
func GnarkCurveIDFactory(curveID *string) ecc.ID {
	if curveID == nil {
		return ecc.UNKNOWN
	}

	switch strings.ToLower(*curveID) {
	case ecc.BLS12_377.String():
		return ecc.BLS12_377
	case ecc.BLS12_381.String():
		return ecc.BLS12_381
	case ecc.BN254.String():
		return ecc.BN254
	case ecc.BW6_761.String():
		return ecc.BW6_761
	case ecc.BLS24_315.String():
		return ecc.BLS24_315
	default:
		return ecc.UNKNOWN
	}
}

const gnarkProvingSchemeGroth16 = "groth16"
const gnarkProvingSchemePlonk = "plonk"

// GnarkProvingSchemeFactory returns a backend id corresponding to the input name
func GnarkProvingSchemeFactory(provingScheme *string) backend.ID {
	if provingScheme == nil {
		return backend.UNKNOWN
	}

	switch strings.ToLower(*provingScheme) {
	case gnarkProvingSchemeGroth16:
		return backend.GROTH16
	case gnarkProvingSchemePlonk:
		return backend.PLONK
	default:
		return backend.UNKNOWN
	}
}
