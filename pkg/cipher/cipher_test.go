// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cipher

import (
	"math/bits"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameKnown(t *testing.T) {
	cases := map[ID]string{
		ECB:     "AES-ECB",
		AES256:  "AES-256",
		GCM:     "AES-GCM",
		SHA256:  "SHA2-256",
		SHAKE128: "SHAKE-128",
		HMACSHA2256: "HMAC-SHA2-256",
		CMACAES: "CMAC-AES",
		NISTP256: "P-256",
		DRBGCTR: "ctrDRBG",
		ED25519: "ED-25519",
	}
	for id, want := range cases {
		got, ok := Name(id)
		assert.True(t, ok, "id %x should resolve", uint64(id))
		assert.Equal(t, want, got)
	}
}

func TestNameUnknown(t *testing.T) {
	_, ok := Name(Unknown)
	assert.False(t, ok)

	_, ok = Name(ID(0x9999999999999999))
	assert.False(t, ok)
}

func TestMatch(t *testing.T) {
	set := AES256 | CBC | ECB
	assert.True(t, Match(set, AES256))
	assert.True(t, Match(set, CBC|AES256))
	assert.False(t, Match(set, XTS))
}

func TestFamilyOf(t *testing.T) {
	assert.Equal(t, FamilyAES, FamilyOf(ECB))
	assert.Equal(t, FamilyAES, FamilyOf(AES256))
	assert.Equal(t, FamilyTDES, FamilyOf(TDESCBC))
	assert.Equal(t, FamilyAEAD, FamilyOf(GCM))
	assert.Equal(t, FamilyHash, FamilyOf(SHA256))
	assert.Equal(t, FamilyMAC, FamilyOf(HMACSHA1))
	assert.Equal(t, FamilyECC, FamilyOf(NISTP256))
	assert.Equal(t, FamilyDRBG, FamilyOf(DRBGHASH))
	assert.Equal(t, FamilyUnknown, FamilyOf(Unknown))
}

func TestEveryNamedIDHasExactlyOneFamilyAndFeatureBit(t *testing.T) {
	for id := range names {
		assert.NotEqual(t, FamilyUnknown, FamilyOf(id), "id %x must have a family", uint64(id))
		assert.Equal(t, 1, bits.OnesCount64(uint64(id&^familyMask)), "id %x must have exactly one feature bit", uint64(id))
	}
}
